// Package noop provides a sink that discards all reports.
// Useful for testing and for disabling reporting.
package noop

import (
	"context"

	"github.com/strongdm/crashkit/pkg/crashkit/report"
)

type noopSink struct{}

// NewNoopSink creates a sink that discards all reports.
func NewNoopSink() report.Sink {
	return &noopSink{}
}

func (s *noopSink) Write(ctx context.Context, r report.Report) error {
	return nil
}

func (s *noopSink) Flush(ctx context.Context) error {
	return nil
}

func (s *noopSink) Close() error {
	return nil
}
