// exception.go defines the application-side view of a failure and adapts
// arbitrary Go errors to it.

package crashkit

import (
	"errors"
	"reflect"
)

// Exception is an application failure with a formatted stack trace and an
// optional cause.
type Exception struct {
	// Type is the fully qualified type name, e.g. "System.InvalidOperationException".
	Type string

	// Message is the human-readable message.
	Message string

	// StackTrace is the multi-line formatted stack trace.
	StackTrace string

	// Inner is the cause of this exception, or nil.
	Inner error

	// Aggregate marks a wrapper whose Inner error is the meaningful failure.
	Aggregate bool
}

// Error returns the exception message.
func (e *Exception) Error() string {
	return e.Message
}

// Unwrap returns the inner exception.
func (e *Exception) Unwrap() error {
	return e.Inner
}

// QualifiedMessage returns "<type>: <message>".
func (e *Exception) QualifiedMessage() string {
	return e.Type + ": " + e.Message
}

// NewAggregate wraps inner in an aggregate exception.
func NewAggregate(message string, inner error) *Exception {
	return &Exception{
		Type:      "System.AggregateException",
		Message:   message,
		Inner:     inner,
		Aggregate: true,
	}
}

// AsException views err as an Exception. An *Exception is returned as is.
// Other errors take their type name from a TypeName method or from
// reflection, their stack from a StackTrace method, and their cause from
// errors.Unwrap. Errors wrapping several errors are treated as aggregates.
func AsException(err error) *Exception {
	if isNil(err) {
		return nil
	}
	if ex, ok := err.(*Exception); ok {
		return ex
	}

	ex := &Exception{
		Type:    TypeName(err),
		Message: err.Error(),
	}
	if st, ok := err.(interface{ StackTrace() string }); ok {
		ex.StackTrace = st.StackTrace()
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		ex.Aggregate = true
		ex.Inner = firstError(multi.Unwrap())
	} else {
		ex.Inner = errors.Unwrap(err)
	}
	return ex
}

// TypeName returns the fully qualified type name of err.
func TypeName(err error) string {
	if isNil(err) {
		return ""
	}
	if ex, ok := err.(*Exception); ok {
		return ex.Type
	}
	if tn, ok := err.(interface{ TypeName() string }); ok {
		return tn.TypeName()
	}

	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// stackTraceText returns the formatted stack trace carried by err, if any.
func stackTraceText(err error) string {
	if ex := AsException(err); ex != nil {
		return ex.StackTrace
	}
	return ""
}

// isAggregate reports whether err is an aggregate wrapper.
func isAggregate(err error) bool {
	switch e := err.(type) {
	case *Exception:
		return e != nil && e.Aggregate
	case interface{ Unwrap() []error }:
		return true
	}
	return false
}

// aggregateInner returns the first inner error of an aggregate.
func aggregateInner(err error) error {
	switch e := err.(type) {
	case *Exception:
		return e.Inner
	case interface{ Unwrap() []error }:
		return firstError(e.Unwrap())
	}
	return nil
}

func firstError(errs []error) error {
	for _, err := range errs {
		if !isNil(err) {
			return err
		}
	}
	return nil
}
