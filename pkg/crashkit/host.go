// host.go provides the kit initialization manager.

package crashkit

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// HostOption configures a Host.
type HostOption func(*Host)

// WithHostLogger sets the logger for kit lifecycle messages.
func WithHostLogger(logger *zap.Logger) HostOption {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Host registers kits and initializes them against a Platform, firing
// before- and after-initialize hooks around the kits' setup.
type Host struct {
	platform *Platform
	logger   *zap.Logger

	mu      sync.Mutex
	kits    []Kit
	before  []func()
	after   []func()
	started bool
}

// NewHost creates a Host for p.
func NewHost(p *Platform, opts ...HostOption) *Host {
	h := &Host{
		platform: p,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Platform returns the platform kits are initialized against.
func (h *Host) Platform() *Platform {
	return h.platform
}

// AddKit registers k for initialization on Start.
func (h *Host) AddKit(k Kit) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kits = append(h.kits, k)
}

// Kits returns the registered kits in registration order.
func (h *Host) Kits() []Kit {
	h.mu.Lock()
	defer h.mu.Unlock()
	kits := make([]Kit, len(h.kits))
	copy(kits, h.kits)
	return kits
}

// OnBeforeInitialize registers fn to run before any kit initializes.
func (h *Host) OnBeforeInitialize(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.before = append(h.before, fn)
}

// OnAfterInitialize registers fn to run after every kit has initialized.
func (h *Host) OnAfterInitialize(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.after = append(h.after, fn)
}

// Started reports whether Start has run.
func (h *Host) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// Start fires the before hooks, initializes every kit, then fires the after
// hooks. It runs once; later calls return nil. Kit errors do not stop the
// sequence and are returned joined.
func (h *Host) Start() error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	kits := append([]Kit(nil), h.kits...)
	before := append([]func(){}, h.before...)
	after := append([]func(){}, h.after...)
	h.mu.Unlock()

	for _, fn := range before {
		fn()
	}

	var errs []error
	for _, k := range kits {
		if err := k.Initialize(h.platform); err != nil {
			h.logger.Error("kit initialization failed", zap.String("kit", k.Identifier()), zap.Error(err))
			errs = append(errs, fmt.Errorf("initialize kit %s: %w", k.Identifier(), err))
			continue
		}
		h.logger.Debug("kit initialized", zap.String("kit", k.Identifier()))
	}

	for _, fn := range after {
		fn()
	}
	return errors.Join(errs...)
}
