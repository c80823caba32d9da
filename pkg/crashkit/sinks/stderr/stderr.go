// Package stderr provides a sink that prints reports in human-readable form.
// Useful for development and debugging.
package stderr

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/strongdm/crashkit/pkg/crashkit/report"
)

// StderrSinkOption configures the stderr sink.
type StderrSinkOption func(*stderrSinkConfig)

type stderrSinkConfig struct {
	verbose bool
	out     io.Writer
}

// WithVerbose adds the stack trace, annotations and breadcrumbs.
func WithVerbose() StderrSinkOption {
	return func(c *stderrSinkConfig) {
		c.verbose = true
	}
}

// WithWriter writes to w instead of os.Stderr.
func WithWriter(w io.Writer) StderrSinkOption {
	return func(c *stderrSinkConfig) {
		if w != nil {
			c.out = w
		}
	}
}

type stderrSink struct {
	verbose bool

	mu  sync.Mutex
	out io.Writer
}

// NewStderrSink creates a sink that writes to stderr.
func NewStderrSink(opts ...StderrSinkOption) report.Sink {
	cfg := &stderrSinkConfig{out: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}
	return &stderrSink{
		verbose: cfg.verbose,
		out:     cfg.out,
	}
}

// Write prints one report. The header line has the form
//
//	[CRASHKIT] <timestamp> <SEVERITY> <error type> (user: <id>)
func (s *stderrSink) Write(ctx context.Context, r report.Report) error {
	var b strings.Builder

	severity := strings.ToUpper(string(r.Severity))
	timestamp := r.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	fmt.Fprintf(&b, "[CRASHKIT] %s %s %s", timestamp, severity, r.ErrorType)
	if r.User.Identifier != "" {
		fmt.Fprintf(&b, " (user: %s)", r.User.Identifier)
	}
	b.WriteByte('\n')

	if r.Message != "" {
		fmt.Fprintf(&b, "        Message: %s\n", r.Message)
	}
	if r.Fingerprint != "" {
		fmt.Fprintf(&b, "        Fingerprint: %s\n", r.Fingerprint)
	}
	if r.ContextID != nil {
		fmt.Fprintf(&b, "        Context: %d\n", *r.ContextID)
	}

	if s.verbose {
		if r.StackTrace != "" {
			b.WriteString("        Stack trace:\n")
			for _, line := range strings.Split(strings.TrimRight(r.StackTrace, "\n"), "\n") {
				fmt.Fprintf(&b, "          %s\n", line)
			}
		}
		if len(r.Keys) > 0 {
			b.WriteString("        Keys:\n")
			keys := make([]string, 0, len(r.Keys))
			for k := range r.Keys {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "          %s = %s\n", k, firstLine(r.Keys[k]))
			}
		}
		if len(r.Breadcrumbs) > 0 {
			b.WriteString("        Breadcrumbs:\n")
			for _, c := range r.Breadcrumbs {
				fmt.Fprintf(&b, "          %s %s\n", c.Timestamp.Format("15:04:05.000"), c.Message)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.out, b.String())
	return err
}

func firstLine(v string) string {
	if line, _, found := strings.Cut(v, "\n"); found {
		return line + " ..."
	}
	return v
}

// Flush is a no-op for the stderr sink.
func (s *stderrSink) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op for the stderr sink.
func (s *stderrSink) Close() error {
	return nil
}
