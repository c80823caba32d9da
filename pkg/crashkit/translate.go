// translate.go converts application errors into Throwables.

package crashkit

import (
	"errors"
	"reflect"

	"go.uber.org/zap"

	"github.com/strongdm/crashkit/pkg/crashkit/stacktrace"
)

// ErrEmptyAggregate is reported when an aggregate error has no inner error.
var ErrEmptyAggregate = errors.New("aggregate error has no inner error")

const (
	// DefaultSourceExtension is the extension used in synthetic file labels.
	DefaultSourceExtension = "cs"

	// DefaultMaxCauseDepth bounds the translated cause chain.
	DefaultMaxCauseDepth = 64
)

// TranslatorOption configures a Translator.
type TranslatorOption func(*translatorConfig)

type translatorConfig struct {
	sourceExtension string
	maxCauseDepth   int
	logger          *zap.Logger
}

// WithSourceExtension sets the extension of synthetic file labels (default: "cs").
func WithSourceExtension(ext string) TranslatorOption {
	return func(c *translatorConfig) {
		if ext != "" {
			c.sourceExtension = ext
		}
	}
}

// WithMaxCauseDepth bounds how many links of a cause chain are translated (default: 64).
func WithMaxCauseDepth(depth int) TranslatorOption {
	return func(c *translatorConfig) {
		if depth > 0 {
			c.maxCauseDepth = depth
		}
	}
}

// WithTranslatorLogger sets the logger for translation diagnostics.
func WithTranslatorLogger(logger *zap.Logger) TranslatorOption {
	return func(c *translatorConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Translator builds Throwables from errors. It holds no mutable state and is
// safe for concurrent use.
type Translator struct {
	sourceExtension string
	maxCauseDepth   int
	logger          *zap.Logger
}

// NewTranslator creates a Translator with the given options.
func NewTranslator(opts ...TranslatorOption) *Translator {
	cfg := &translatorConfig{
		sourceExtension: DefaultSourceExtension,
		maxCauseDepth:   DefaultMaxCauseDepth,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Translator{
		sourceExtension: cfg.sourceExtension,
		maxCauseDepth:   cfg.maxCauseDepth,
		logger:          cfg.logger,
	}
}

// Translate converts err and its causes into a Throwable chain. Aggregates
// are unwrapped first, and errors that already carry a Throwable are returned
// unchanged. Translation never fails; unparseable stack lines are dropped.
// A nil error yields nil.
func (t *Translator) Translate(err error) *Throwable {
	var root, tail *Throwable
	attach := func(th *Throwable) {
		if root == nil {
			root = th
		} else {
			tail.Cause = th
		}
		tail = th
	}

	visited := make(map[error]struct{})
	for depth := 0; !isNil(err); depth++ {
		if depth >= t.maxCauseDepth {
			t.logger.Warn("cause chain truncated", zap.Int("max_depth", t.maxCauseDepth))
			break
		}

		unwrapped, aggErr := unwrapAggregate(err, t.maxCauseDepth)
		if aggErr != nil {
			t.logger.Warn("translating degenerate aggregate",
				zap.Error(aggErr),
				zap.String("type", TypeName(unwrapped)))
			ex := AsException(unwrapped)
			attach(&Throwable{Message: ex.QualifiedMessage()})
			break
		}
		err = unwrapped

		if native, ok := err.(NativeError); ok {
			if th := native.Throwable(); th != nil {
				attach(th)
				break
			}
		}

		if identityKeyed(err) {
			if _, seen := visited[err]; seen {
				t.logger.Warn("cause chain cycle detected", zap.String("type", TypeName(err)))
				break
			}
			visited[err] = struct{}{}
		}

		ex := AsException(err)
		attach(&Throwable{
			Message: ex.QualifiedMessage(),
			Frames:  t.Frames(ex.StackTrace),
		})
		err = ex.Inner
	}
	return root
}

// Frames parses a formatted stack trace into frames, in source order.
func (t *Translator) Frames(text string) []StackFrame {
	lines := stacktrace.Parse(text)
	if len(lines) == 0 {
		return nil
	}

	frames := make([]StackFrame, 0, len(lines))
	for _, line := range lines {
		frames = append(frames, t.frame(line))
	}
	return frames
}

func (t *Translator) frame(line stacktrace.Line) StackFrame {
	lineNumber := line.LineNumber
	if lineNumber == 0 {
		lineNumber = NativeLineNumber
	}

	// The backend groups crashes by file name; label each call site
	// separately instead of reusing the real source file.
	label := line.ClassName + "." + line.MethodName + "." +
		stacktrace.OffsetToken(line.Offset) + "." + t.sourceExtension

	return StackFrame{
		ClassName:       line.ClassName,
		MethodSignature: line.MethodName + " " + line.Arguments,
		FileLabel:       label,
		LineNumber:      lineNumber,
	}
}

// unwrapAggregate follows aggregate wrappers to the first non-aggregate
// error. When an aggregate has no inner error, or nesting exceeds limit, the
// last aggregate is returned together with ErrEmptyAggregate.
func unwrapAggregate(err error, limit int) (error, error) {
	for n := 0; isAggregate(err); n++ {
		inner := aggregateInner(err)
		if n >= limit {
			inner = nil
		}
		if isNil(inner) {
			return err, ErrEmptyAggregate
		}
		err = inner
	}
	return err, nil
}

// identityKeyed reports whether err is a pointer, so it can key the visited
// set without hashing its contents.
func identityKeyed(err error) bool {
	return reflect.TypeOf(err).Kind() == reflect.Pointer
}
