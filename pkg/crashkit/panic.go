// panic.go turns recovered panics into errors that already carry a Throwable.

package crashkit

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const maxPanicFrames = 64

// PanicError is a recovered panic value with the stack it was raised on.
type PanicError struct {
	// Value is the value passed to panic.
	Value any

	frames []runtime.Frame
	stack  string
}

// newPanicError captures the stack of the panicking goroutine. It must be
// called from a deferred function during a panic; frames up to and including
// the runtime's panic machinery are dropped.
func newPanicError(value any) *PanicError {
	pcs := make([]uintptr, maxPanicFrames)
	n := runtime.Callers(2, pcs)

	var all []runtime.Frame
	panicAt := -1
	iter := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := iter.Next()
		if frame.Function == "runtime.gopanic" {
			panicAt = len(all)
		}
		all = append(all, frame)
		if !more {
			break
		}
	}

	var frames []runtime.Frame
	for _, frame := range all[panicAt+1:] {
		if frame.Function == "" || strings.HasPrefix(frame.Function, "runtime.") {
			continue
		}
		frames = append(frames, frame)
	}

	return &PanicError{
		Value:  value,
		frames: frames,
		stack:  string(debug.Stack()),
	}
}

// Error returns the formatted panic value.
func (e *PanicError) Error() string {
	return formatRecovered(e.Value)
}

// TypeName returns the panic value's type when it is an error, else "panic".
func (e *PanicError) TypeName() string {
	if err, ok := e.Value.(error); ok {
		return TypeName(err)
	}
	return "panic"
}

// StackTrace returns the goroutine stack captured at recovery.
func (e *PanicError) StackTrace() string {
	return e.stack
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Throwable builds frames straight from the captured program counters.
func (e *PanicError) Throwable() *Throwable {
	t := &Throwable{
		Message: e.TypeName() + ": " + e.Error(),
		Frames:  make([]StackFrame, 0, len(e.frames)),
	}
	for _, f := range e.frames {
		t.Frames = append(t.Frames, goFrame(f))
	}
	return t
}

// goFrame maps a Go runtime frame onto a StackFrame, labelling the file with
// the call site's code offset the same way managed frames are labelled.
func goFrame(f runtime.Frame) StackFrame {
	class, method := splitFuncName(f.Function)
	offset := ""
	if f.Entry != 0 && f.PC >= f.Entry {
		offset = fmt.Sprintf("0x%x", f.PC-f.Entry)
	}

	line := f.Line
	if line == 0 {
		line = NativeLineNumber
	}
	return StackFrame{
		ClassName:       class,
		MethodSignature: method + " ()",
		FileLabel:       class + "." + method + "." + offset + ".go",
		LineNumber:      line,
	}
}

// splitFuncName splits "github.com/x/pkg.(*T).Method" into
// "github.com/x/pkg.(*T)" and "Method".
func splitFuncName(name string) (class, method string) {
	slash := strings.LastIndexByte(name, '/')
	dot := strings.LastIndexByte(name[slash+1:], '.')
	if dot < 0 {
		return "", name
	}
	dot += slash + 1
	return name[:dot], name[dot+1:]
}

// formatRecovered formats a recovered panic value as a string.
func formatRecovered(recovered any) string {
	if recovered == nil {
		return "<nil>"
	}
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", recovered)
}
