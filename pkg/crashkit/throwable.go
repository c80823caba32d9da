// throwable.go defines the structured, SDK-facing representation of a failure.

package crashkit

import (
	"strconv"
	"strings"
)

// NativeLineNumber marks a frame without source line information.
const NativeLineNumber = -2

// StackFrame is one structured frame of a Throwable.
type StackFrame struct {
	// ClassName is the declaring type of the method.
	ClassName string

	// MethodSignature is the method name followed by its parameter list.
	MethodSignature string

	// FileLabel is the synthetic file name the backend groups crashes by.
	FileLabel string

	// LineNumber is the source line, or NativeLineNumber.
	LineNumber int
}

// String renders the frame the way a JVM prints it.
func (f StackFrame) String() string {
	var b strings.Builder
	b.WriteString(f.ClassName)
	b.WriteByte('.')
	b.WriteString(f.MethodSignature)
	b.WriteByte('(')
	if f.LineNumber == NativeLineNumber {
		b.WriteString("Native Method")
	} else {
		b.WriteString(f.FileLabel)
		if f.LineNumber >= 0 {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(f.LineNumber))
		}
	}
	b.WriteByte(')')
	return b.String()
}

// Throwable is the crash SDK's representation of a failure: a message,
// ordered frames with the outermost call first, and an optional cause.
type Throwable struct {
	Message string
	Frames  []StackFrame
	Cause   *Throwable
}

// NativeError is implemented by errors that already carry a Throwable.
// Translation returns the carried Throwable unchanged.
type NativeError interface {
	error
	Throwable() *Throwable
}

// Error returns the throwable's message.
func (t *Throwable) Error() string {
	return t.Message
}

// Unwrap returns the cause, or nil.
func (t *Throwable) Unwrap() error {
	if t.Cause == nil {
		return nil
	}
	return t.Cause
}

// Throwable returns t itself so a *Throwable satisfies NativeError.
func (t *Throwable) Throwable() *Throwable {
	return t
}

// Chain returns t followed by its causes. A cause that reappears ends the
// chain.
func (t *Throwable) Chain() []*Throwable {
	var chain []*Throwable
	seen := make(map[*Throwable]struct{})
	for cur := t; cur != nil; cur = cur.Cause {
		if _, ok := seen[cur]; ok {
			break
		}
		seen[cur] = struct{}{}
		chain = append(chain, cur)
	}
	return chain
}

// String renders the throwable and its causes as a JVM-style stack trace.
func (t *Throwable) String() string {
	var b strings.Builder
	for i, cur := range t.Chain() {
		if i > 0 {
			b.WriteString("Caused by: ")
		}
		b.WriteString(cur.Message)
		b.WriteByte('\n')
		for _, f := range cur.Frames {
			b.WriteString("\tat ")
			b.WriteString(f.String())
			b.WriteByte('\n')
		}
	}
	return b.String()
}
