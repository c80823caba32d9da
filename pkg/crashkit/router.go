// router.go routes every unhandled-failure channel into the SDK and then
// terminates the process.

package crashkit

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultExitCode is the exit status after a fatal failure has been reported.
const DefaultExitCode = 10

// State is the Router lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateInitialized
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// RouterOption configures a Router.
type RouterOption func(*routerConfig)

type routerConfig struct {
	exitCode int
	logger   *zap.Logger
}

// WithExitCode sets the exit status used after a fatal failure (default: 10).
// Codes below 1 are ignored.
func WithExitCode(code int) RouterOption {
	return func(c *routerConfig) {
		if code > 0 {
			c.exitCode = code
		}
	}
}

// WithRouterLogger sets the logger.
func WithRouterLogger(logger *zap.Logger) RouterOption {
	return func(c *routerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Router installs itself on every unhandled-failure channel of a Platform.
// A routed failure is annotated, translated, handed to the SDK's uncaught
// handler and then the process exits.
//
// Initialization is two-phase around the Host's kit setup: before the SDK
// initializes, the platform default handler is saved and replaced by a no-op
// so the SDK chains to nothing; afterwards the SDK's handler is captured and
// the original default handler restored.
type Router struct {
	crash    *Crashlytics
	host     *Host
	platform *Platform
	exitCode int
	logger   *zap.Logger

	mu    sync.Mutex
	state atomic.Int32

	previous   UncaughtHandler
	sdkHandler UncaughtHandler
}

// NewRouter creates a Router for crash, registered with host on Initialize.
func NewRouter(crash *Crashlytics, host *Host, opts ...RouterOption) *Router {
	cfg := &routerConfig{
		exitCode: DefaultExitCode,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Router{
		crash:    crash,
		host:     host,
		platform: host.Platform(),
		exitCode: cfg.exitCode,
		logger:   cfg.logger,
	}
}

// State returns the current lifecycle state.
func (r *Router) State() State {
	return State(r.state.Load())
}

// Initialize registers the facade as a kit and hooks the host lifecycle.
// Only the first call has an effect; concurrent callers wait for it.
func (r *Router) Initialize() {
	if r.State() >= StateInitialized {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != StateUninitialized {
		return
	}
	r.state.Store(int32(StateInitializing))

	r.host.AddKit(r.crash)
	r.host.OnBeforeInitialize(r.beforeInitialize)
	r.host.OnAfterInitialize(r.afterInitialize)

	r.state.Store(int32(StateInitialized))
	r.logger.Debug("crash router initialized")
}

func (r *Router) beforeInitialize() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.previous = r.platform.DefaultUncaughtHandler()
	r.platform.SetDefaultUncaughtHandler(noopHandler{})
}

func (r *Router) afterInitialize() {
	r.mu.Lock()
	r.sdkHandler = r.platform.DefaultUncaughtHandler()
	r.platform.SetDefaultUncaughtHandler(r.previous)
	r.mu.Unlock()

	for _, ch := range r.platform.Channels() {
		ch.Subscribe(r.handle)
	}
	r.logger.Debug("crash router subscribed", zap.Int("channels", len(r.platform.Channels())))
}

// handle routes one payload. Payloads that are not errors are ignored;
// anything else ends the process.
func (r *Router) handle(payload any) {
	err, ok := payload.(error)
	if !ok || isNil(err) {
		return
	}

	r.crash.annotate(err, KeyFatalStackTrace, KeyFatalMessage, KeyFatalType)
	t := r.crash.Translator().Translate(err)

	r.mu.Lock()
	handler := r.sdkHandler
	r.mu.Unlock()

	r.logger.Error("unhandled failure", zap.String("type", TypeName(err)), zap.String("message", err.Error()))
	if _, isNoop := handler.(noopHandler); handler == nil || isNoop {
		r.crash.SDK().LogException(t)
	} else {
		handler.UncaughtException(t)
	}

	r.terminate()
}

// terminate exits the process. It never returns.
func (r *Router) terminate() {
	r.state.Store(int32(StateTerminated))
	_ = r.logger.Sync()
	r.platform.Exit(r.exitCode)
	panic("crashkit: platform exit returned")
}
