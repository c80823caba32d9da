// sdk.go defines the crash-reporting SDK surface crashkit adapts.

package crashkit

// SDK is the crash-reporting SDK surface. Implementations must be safe for
// concurrent use; crashkit adds no synchronization of its own.
type SDK interface {
	Version() string

	// Crash deliberately crashes the process to test reporting.
	Crash()

	// LogException records a non-fatal failure.
	LogException(t *Throwable)

	SetString(key, value string)
	SetBool(key string, value bool)
	SetInt(key string, value int32)
	SetLong(key string, value int64)
	SetFloat(key string, value float32)
	SetDouble(key string, value float64)

	SetUserEmail(email string)
	SetUserIdentifier(identifier string)
	SetUserName(name string)
}

// Clearer is implemented by SDKs that can remove an annotation.
type Clearer interface {
	Clear(key string)
}

// Logger is implemented by SDKs that keep a breadcrumb log.
type Logger interface {
	Log(message string)
}

// Kit is a module registered with a Host and initialized when it starts.
type Kit interface {
	// Identifier names the kit.
	Identifier() string

	// Initialize sets the kit up against the platform. SDK kits install their
	// uncaught handler here.
	Initialize(p *Platform) error
}

// UncaughtHandler receives failures that escaped all application handling.
type UncaughtHandler interface {
	UncaughtException(t *Throwable)
}

// UncaughtHandlerFunc adapts a function to UncaughtHandler.
type UncaughtHandlerFunc func(t *Throwable)

// UncaughtException calls f(t).
func (f UncaughtHandlerFunc) UncaughtException(t *Throwable) {
	f(t)
}

// noopHandler swallows failures. Installed while the SDK sets itself up.
type noopHandler struct{}

func (noopHandler) UncaughtException(*Throwable) {}
