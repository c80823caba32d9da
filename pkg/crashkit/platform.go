// platform.go models the hosting runtime's failure notification surface: a
// default uncaught handler slot and the channels unhandled failures arrive on.

package crashkit

import (
	"os"
	"sync"
)

// Channel names.
const (
	ChannelPlatform       = "platform"
	ChannelProcess        = "process"
	ChannelUnobservedTask = "unobserved-task"
)

// Channel is a notification channel for unhandled failures. Subscribers run
// synchronously on the raising goroutine.
type Channel struct {
	name string
	mu   sync.RWMutex
	subs []func(payload any)
}

func newChannel(name string) *Channel {
	return &Channel{name: name}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Subscribe registers fn for every payload raised on the channel.
func (c *Channel) Subscribe(fn func(payload any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Subscribers returns the number of subscribers.
func (c *Channel) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Raise delivers payload to every subscriber and reports whether anyone was
// subscribed.
func (c *Channel) Raise(payload any) bool {
	c.mu.RLock()
	subs := make([]func(any), len(c.subs))
	copy(subs, c.subs)
	c.mu.RUnlock()

	for _, fn := range subs {
		fn(payload)
	}
	return len(subs) > 0
}

// PlatformOption configures a Platform.
type PlatformOption func(*Platform)

// WithExit replaces the function used to terminate the process (default: os.Exit).
// The function must not return.
func WithExit(exit func(code int)) PlatformOption {
	return func(p *Platform) {
		if exit != nil {
			p.exit = exit
		}
	}
}

// Platform owns the default uncaught handler and the unhandled-failure
// channels. Construct one at startup and pass it to whatever needs it.
type Platform struct {
	mu             sync.RWMutex
	defaultHandler UncaughtHandler

	platform   *Channel
	process    *Channel
	unobserved *Channel

	exit func(code int)
}

// NewPlatform creates a Platform with no default handler.
func NewPlatform(opts ...PlatformOption) *Platform {
	p := &Platform{
		platform:   newChannel(ChannelPlatform),
		process:    newChannel(ChannelProcess),
		unobserved: newChannel(ChannelUnobservedTask),
		exit:       os.Exit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultUncaughtHandler returns the current default handler, or nil.
func (p *Platform) DefaultUncaughtHandler() UncaughtHandler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultHandler
}

// SetDefaultUncaughtHandler replaces the default handler.
func (p *Platform) SetDefaultUncaughtHandler(h UncaughtHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultHandler = h
}

// Platform returns the channel for failures reported by the platform itself,
// such as a monitored child process crashing.
func (p *Platform) Platform() *Channel { return p.platform }

// Process returns the channel for panics escaping goroutines.
func (p *Platform) Process() *Channel { return p.process }

// UnobservedTask returns the channel for background task errors nobody waited for.
func (p *Platform) UnobservedTask() *Channel { return p.unobserved }

// Channels returns all channels.
func (p *Platform) Channels() []*Channel {
	return []*Channel{p.platform, p.process, p.unobserved}
}

// Exit terminates the process with code.
func (p *Platform) Exit(code int) {
	p.exit(code)
}

// Go runs fn in a new goroutine whose panics are routed through Recover.
func (p *Platform) Go(fn func()) {
	go func() {
		defer p.Recover()
		fn()
	}()
}

// Recover must be deferred directly. A recovered panic is raised on the
// process channel. Without subscribers the default handler, if any, sees it
// and the panic is re-raised.
//
//	defer platform.Recover()
func (p *Platform) Recover() {
	r := recover()
	if r == nil {
		return
	}

	perr := newPanicError(r)
	if p.process.Raise(perr) {
		return
	}
	if h := p.DefaultUncaughtHandler(); h != nil {
		h.UncaughtException(perr.Throwable())
	}
	panic(r)
}
