// Package multi provides a sink that fans out to several sinks.
// Every sink receives every report; errors are joined.
package multi

import (
	"context"
	"errors"

	"github.com/strongdm/crashkit/pkg/crashkit/report"
)

type multiSink struct {
	sinks []report.Sink
}

// NewMultiSink creates a sink that writes to all of sinks. Nil sinks are
// skipped.
func NewMultiSink(sinks ...report.Sink) report.Sink {
	s := &multiSink{}
	for _, sink := range sinks {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
	return s
}

// Write sends r to every sink, even when some fail.
func (s *multiSink) Write(ctx context.Context, r report.Report) error {
	return s.each(func(sink report.Sink) error { return sink.Write(ctx, r) })
}

func (s *multiSink) Flush(ctx context.Context) error {
	return s.each(func(sink report.Sink) error { return sink.Flush(ctx) })
}

func (s *multiSink) Close() error {
	return s.each(report.Sink.Close)
}

func (s *multiSink) each(fn func(report.Sink) error) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := fn(sink); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
