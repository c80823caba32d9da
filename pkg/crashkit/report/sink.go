// sink.go defines where reports go.

package report

import "context"

// Sink is the destination for crash reports.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Write persists a report. Called after scrubbing and fingerprinting.
	Write(ctx context.Context, r Report) error

	// Flush ensures buffered reports are persisted.
	// For synchronous sinks, this may be a no-op.
	Flush(ctx context.Context) error

	// Close releases resources held by the sink.
	Close() error
}

type discardSink struct{}

func (discardSink) Write(context.Context, Report) error { return nil }
func (discardSink) Flush(context.Context) error         { return nil }
func (discardSink) Close() error                        { return nil }
