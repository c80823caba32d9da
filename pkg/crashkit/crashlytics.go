// crashlytics.go provides the public reporting facade over an SDK.

package crashkit

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// Annotation keys set before a failure is handed to the SDK.
const (
	KeyNonFatalStackTrace = "non-fatal exception stack trace"
	KeyNonFatalMessage    = "non-fatal exception message"
	KeyNonFatalType       = "non-fatal exception"

	KeyFatalStackTrace = "fatal exception stack trace"
	KeyFatalMessage    = "fatal exception message"
	KeyFatalType       = "fatal exception"
)

// KitIdentifier names the Crashlytics kit.
const KitIdentifier = "crashkit.crashlytics"

// Option configures a Crashlytics facade.
type Option func(*config)

type config struct {
	translator *Translator
	logger     *zap.Logger
}

// WithTranslator sets the translator used for recorded errors.
func WithTranslator(t *Translator) Option {
	return func(c *config) {
		if t != nil {
			c.translator = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Crashlytics is the application-facing API. Setters return the receiver so
// calls can be chained. It is safe for concurrent use if the SDK is.
type Crashlytics struct {
	sdk        SDK
	translator *Translator
	logger     *zap.Logger
}

// New creates a facade over sdk.
func New(sdk SDK, opts ...Option) *Crashlytics {
	cfg := &config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.translator == nil {
		cfg.translator = NewTranslator(WithTranslatorLogger(cfg.logger))
	}
	return &Crashlytics{
		sdk:        sdk,
		translator: cfg.translator,
		logger:     cfg.logger,
	}
}

// SDK returns the underlying SDK.
func (c *Crashlytics) SDK() SDK {
	return c.sdk
}

// Translator returns the translator used for recorded errors.
func (c *Crashlytics) Translator() *Translator {
	return c.translator
}

// Version returns the SDK version.
func (c *Crashlytics) Version() string {
	return c.sdk.Version()
}

// Crash triggers a deliberate test crash.
func (c *Crashlytics) Crash() {
	c.sdk.Crash()
}

// RecordException reports err as a non-fatal failure. A nil error, including
// a typed nil pointer, is ignored.
func (c *Crashlytics) RecordException(err error) {
	if isNil(err) {
		return
	}
	c.annotate(err, KeyNonFatalStackTrace, KeyNonFatalMessage, KeyNonFatalType)
	c.sdk.LogException(c.translator.Translate(err))
}

// annotate records the raw stack trace, message and type of err.
func (c *Crashlytics) annotate(err error, stackKey, messageKey, typeKey string) {
	c.sdk.SetString(stackKey, stackTraceText(err))
	c.sdk.SetString(messageKey, err.Error())
	c.sdk.SetString(typeKey, TypeName(err))
}

// Log appends a breadcrumb when the SDK keeps a log.
func (c *Crashlytics) Log(message string) *Crashlytics {
	if l, ok := c.sdk.(Logger); ok {
		l.Log(message)
	}
	return c
}

func (c *Crashlytics) SetStringValue(key, value string) *Crashlytics {
	c.sdk.SetString(key, value)
	return c
}

func (c *Crashlytics) SetBoolValue(key string, value bool) *Crashlytics {
	c.sdk.SetBool(key, value)
	return c
}

func (c *Crashlytics) SetFloatValue(key string, value float32) *Crashlytics {
	c.sdk.SetFloat(key, value)
	return c
}

func (c *Crashlytics) SetDoubleValue(key string, value float64) *Crashlytics {
	c.sdk.SetDouble(key, value)
	return c
}

func (c *Crashlytics) SetIntValue(key string, value int32) *Crashlytics {
	c.sdk.SetInt(key, value)
	return c
}

func (c *Crashlytics) SetLongValue(key string, value int64) *Crashlytics {
	c.sdk.SetLong(key, value)
	return c
}

// SetObjectValue stores the default text form of value. A nil value, or a
// nil pointer, clears the key.
func (c *Crashlytics) SetObjectValue(key string, value any) *Crashlytics {
	if isNil(value) {
		if cl, ok := c.sdk.(Clearer); ok {
			cl.Clear(key)
		} else {
			c.sdk.SetString(key, "")
		}
		return c
	}
	c.sdk.SetString(key, fmt.Sprint(value))
	return c
}

func (c *Crashlytics) SetUserEmail(email string) *Crashlytics {
	c.sdk.SetUserEmail(email)
	return c
}

func (c *Crashlytics) SetUserIdentifier(identifier string) *Crashlytics {
	c.sdk.SetUserIdentifier(identifier)
	return c
}

func (c *Crashlytics) SetUserName(name string) *Crashlytics {
	c.sdk.SetUserName(name)
	return c
}

// Identifier implements Kit.
func (c *Crashlytics) Identifier() string {
	return KitIdentifier
}

// Initialize implements Kit by initializing the SDK when it is itself a kit.
func (c *Crashlytics) Initialize(p *Platform) error {
	if k, ok := c.sdk.(Kit); ok {
		return k.Initialize(p)
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
