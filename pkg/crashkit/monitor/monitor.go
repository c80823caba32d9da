// Package monitor reports panics that crash the process outright.
//
// Start re-executes the program under github.com/bugsnag/panicwrap. One
// process keeps running the program; the other watches its stderr and, when
// a panic is printed, parses it into a PanicError and raises it on the
// platform channel, where a crashkit.Router reports it and exits.
package monitor

import (
	"fmt"
	"strings"

	bserrors "github.com/bugsnag/bugsnag-go/errors"
	"github.com/bugsnag/panicwrap"
	"go.uber.org/zap"

	"github.com/strongdm/crashkit/pkg/crashkit"
)

var _ crashkit.NativeError = (*PanicError)(nil)

// PanicError is a panic read from a crashed process's output.
type PanicError struct {
	message  string
	typeName string
	frames   []bserrors.StackFrame
	output   string
}

// FromPanicOutput parses the text a Go program prints when it dies of a
// panic.
func FromPanicOutput(output string) (*PanicError, error) {
	parsed, err := bserrors.ParsePanic(output)
	if err != nil {
		return nil, fmt.Errorf("parse panic output: %w", err)
	}
	return &PanicError{
		message:  parsed.Error(),
		typeName: parsed.TypeName(),
		frames:   parsed.StackFrames(),
		output:   output,
	}, nil
}

// unparsedPanic keeps the first line of output that could not be parsed.
func unparsedPanic(output string) *PanicError {
	first, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	return &PanicError{
		message:  strings.TrimPrefix(first, "panic: "),
		typeName: "panic",
		output:   output,
	}
}

// Error returns the panic message.
func (e *PanicError) Error() string {
	return e.message
}

// TypeName returns "panic".
func (e *PanicError) TypeName() string {
	return e.typeName
}

// StackTrace returns the raw panic output.
func (e *PanicError) StackTrace() string {
	return e.output
}

// Throwable maps the parsed goroutine frames onto a Throwable.
func (e *PanicError) Throwable() *crashkit.Throwable {
	t := &crashkit.Throwable{
		Message: e.typeName + ": " + e.message,
		Frames:  make([]crashkit.StackFrame, 0, len(e.frames)),
	}
	for _, f := range e.frames {
		line := f.LineNumber
		if line <= 0 {
			line = crashkit.NativeLineNumber
		}
		t.Frames = append(t.Frames, crashkit.StackFrame{
			ClassName:       f.Package,
			MethodSignature: f.Name + " ()",
			FileLabel:       f.Package + "." + f.Name + "..go",
			LineNumber:      line,
		})
	}
	return t
}

// Handler returns the panicwrap handler that raises parsed panics on p's
// platform channel.
func Handler(p *crashkit.Platform, logger *zap.Logger) panicwrap.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(output string) {
		perr, err := FromPanicOutput(output)
		if err != nil {
			logger.Warn("panic output not parsed", zap.Error(err))
			perr = unparsedPanic(output)
		}
		if !p.Platform().Raise(perr) {
			logger.Error("panic not routed, no platform subscribers", zap.String("message", perr.Error()))
		}
	}
}

// Start forks the program under panic monitoring. In the running program it
// returns nil, or an error if monitoring could not start. In the monitor
// process it does not return.
func Start(p *crashkit.Platform, logger *zap.Logger) error {
	if err := panicwrap.BasicMonitor(Handler(p, logger)); err != nil {
		return fmt.Errorf("start panic monitor: %w", err)
	}
	return nil
}
