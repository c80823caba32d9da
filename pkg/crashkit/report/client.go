// client.go provides the Go-native crash reporting SDK.

package report

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strongdm/crashkit/pkg/crashkit"
)

const (
	// KitIdentifier names the client when registered as a kit.
	KitIdentifier = "crashkit.report"

	// Version is the client's SDK version unless WithVersion overrides it.
	Version = "0.1.0"

	DefaultMaxBreadcrumbs = 64
	DefaultMaxKeys        = 64
)

// ErrForcedCrash is the panic value of Client.Crash.
var ErrForcedCrash = errors.New("crashkit: forced crash")

var (
	_ crashkit.SDK             = (*Client)(nil)
	_ crashkit.Kit             = (*Client)(nil)
	_ crashkit.Clearer         = (*Client)(nil)
	_ crashkit.Logger          = (*Client)(nil)
	_ crashkit.UncaughtHandler = (*Client)(nil)
)

// Option configures a Client.
type Option func(*config)

type config struct {
	sink           Sink
	scrubber       *Scrubber
	logger         *zap.Logger
	version        string
	maxBreadcrumbs int
	maxKeys        int
	contextID      *uint64
	flushTimeout   time.Duration
	now            func() time.Time
}

// WithSink sets the sink reports are written to.
func WithSink(sink Sink) Option {
	return func(c *config) {
		c.sink = sink
	}
}

// WithScrubber configures scrubbing with a custom configuration.
func WithScrubber(cfg ScrubberConfig) Option {
	return func(c *config) {
		c.scrubber = NewScrubber(cfg)
	}
}

// WithDefaultScrubbing enables scrubbing with production-safe defaults.
func WithDefaultScrubbing() Option {
	return func(c *config) {
		c.scrubber = NewScrubber(DefaultScrubberConfig())
	}
}

// WithLogger sets the logger for sink failures and lifecycle messages.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithVersion overrides the reported SDK version.
func WithVersion(version string) Option {
	return func(c *config) {
		if version != "" {
			c.version = version
		}
	}
}

// WithMaxBreadcrumbs bounds the breadcrumb log (default: 64). Zero disables it.
func WithMaxBreadcrumbs(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxBreadcrumbs = n
		}
	}
}

// WithMaxKeys bounds the number of custom annotations (default: 64). Zero
// means no limit.
func WithMaxKeys(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxKeys = n
		}
	}
}

// WithContextID links every report to an existing cxdb context.
func WithContextID(id uint64) Option {
	return func(c *config) {
		c.contextID = &id
	}
}

// WithFlushTimeout bounds the sink flush on the fatal path. Zero waits
// until the sink is done.
func WithFlushTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.flushTimeout = d
		}
	}
}

// WithClock sets the time source for report and breadcrumb timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// Client records throwables as crash reports and writes them to a sink.
// It implements crashkit.SDK and installs itself as the platform's uncaught
// handler when initialized as a kit. Safe for concurrent use.
type Client struct {
	sink         Sink
	scrubber     *Scrubber
	logger       *zap.Logger
	version      string
	contextID    *uint64
	flushTimeout time.Duration
	now          func() time.Time
	startTime    time.Time

	keys *keyStore

	mu       sync.Mutex
	user     User
	crumbs   *breadcrumbBuffer
	previous crashkit.UncaughtHandler
}

// NewClient creates a client. Without a sink, reports are discarded.
func NewClient(opts ...Option) *Client {
	cfg := &config{
		logger:         zap.NewNop(),
		version:        Version,
		maxBreadcrumbs: DefaultMaxBreadcrumbs,
		maxKeys:        DefaultMaxKeys,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.sink == nil {
		cfg.sink = discardSink{}
	}

	return &Client{
		sink:         cfg.sink,
		scrubber:     cfg.scrubber,
		logger:       cfg.logger,
		version:      cfg.version,
		contextID:    cfg.contextID,
		flushTimeout: cfg.flushTimeout,
		now:          cfg.now,
		startTime:    cfg.now(),
		keys:         newKeyStore(cfg.maxKeys),
		crumbs:       newBreadcrumbBuffer(cfg.maxBreadcrumbs),
	}
}

// Version returns the SDK version.
func (c *Client) Version() string {
	return c.version
}

// Crash panics with ErrForcedCrash.
func (c *Client) Crash() {
	c.logger.Warn("forced crash requested")
	panic(ErrForcedCrash)
}

// LogException records a non-fatal report.
func (c *Client) LogException(t *crashkit.Throwable) {
	c.record(context.Background(), SeverityNonFatal, t)
}

// UncaughtException records a fatal report, flushes the sink, then hands t
// to the handler that was installed before the client.
func (c *Client) UncaughtException(t *crashkit.Throwable) {
	c.record(context.Background(), SeverityFatal, t)

	ctx := context.Background()
	if c.flushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.flushTimeout)
		defer cancel()
	}
	if err := c.sink.Flush(ctx); err != nil {
		c.logger.Warn("sink flush failed", zap.Error(err))
	}

	c.mu.Lock()
	previous := c.previous
	c.mu.Unlock()
	if previous != nil {
		previous.UncaughtException(t)
	}
}

func (c *Client) SetString(key, value string) {
	c.setKey(key, value)
}

func (c *Client) SetBool(key string, value bool) {
	c.setKey(key, strconv.FormatBool(value))
}

func (c *Client) SetInt(key string, value int32) {
	c.setKey(key, strconv.FormatInt(int64(value), 10))
}

func (c *Client) SetLong(key string, value int64) {
	c.setKey(key, strconv.FormatInt(value, 10))
}

func (c *Client) SetFloat(key string, value float32) {
	c.setKey(key, strconv.FormatFloat(float64(value), 'g', -1, 32))
}

func (c *Client) SetDouble(key string, value float64) {
	c.setKey(key, strconv.FormatFloat(value, 'g', -1, 64))
}

// setKey stores an annotation. The failure annotations crashkit writes are
// always accepted, even when the store is full.
func (c *Client) setKey(key, value string) {
	if !c.keys.Set(key, value, isFailureKey(key)) {
		c.logger.Warn("annotation dropped, key limit reached", zap.String("key", key))
	}
}

func isFailureKey(key string) bool {
	switch key {
	case crashkit.KeyNonFatalStackTrace, crashkit.KeyNonFatalMessage, crashkit.KeyNonFatalType,
		crashkit.KeyFatalStackTrace, crashkit.KeyFatalMessage, crashkit.KeyFatalType:
		return true
	}
	return false
}

// Clear removes an annotation.
func (c *Client) Clear(key string) {
	c.keys.Delete(key)
}

func (c *Client) SetUserEmail(email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user.Email = email
}

func (c *Client) SetUserIdentifier(identifier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user.Identifier = identifier
}

func (c *Client) SetUserName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user.Name = name
}

// Log appends a breadcrumb, evicting the oldest when the log is full.
func (c *Client) Log(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crumbs.Add(Breadcrumb{Timestamp: c.now(), Message: message})
}

// Identifier names the client kit.
func (c *Client) Identifier() string {
	return KitIdentifier
}

// Initialize installs the client as p's default uncaught handler, chaining
// to whatever was installed before. Initializing twice keeps the first chain.
func (c *Client) Initialize(p *crashkit.Platform) error {
	current := p.DefaultUncaughtHandler()
	if h, ok := current.(*Client); ok && h == c {
		return nil
	}

	c.mu.Lock()
	c.previous = current
	c.mu.Unlock()

	p.SetDefaultUncaughtHandler(c)
	c.logger.Debug("report client installed", zap.String("version", c.version))
	return nil
}

// Keys returns a copy of the current annotations.
func (c *Client) Keys() map[string]string {
	return c.keys.Snapshot()
}

// User returns the current user identity.
func (c *Client) User() User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Breadcrumbs returns the breadcrumb log, oldest first.
func (c *Client) Breadcrumbs() []Breadcrumb {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crumbs.All()
}

// Flush delegates to the sink.
func (c *Client) Flush(ctx context.Context) error {
	return c.sink.Flush(ctx)
}

// Close delegates to the sink.
func (c *Client) Close() error {
	return c.sink.Close()
}

// record builds a report for t and writes it. Sink errors are logged, never
// returned: reporting must not fail the caller.
func (c *Client) record(ctx context.Context, severity Severity, t *crashkit.Throwable) {
	if t == nil {
		return
	}

	r := c.build(severity, t)
	if err := c.sink.Write(ctx, r); err != nil {
		c.logger.Warn("sink write failed",
			zap.String("event_id", r.EventID),
			zap.String("severity", string(severity)),
			zap.Error(err))
		return
	}
	c.logger.Debug("report recorded",
		zap.String("event_id", r.EventID),
		zap.String("severity", string(severity)),
		zap.String("fingerprint", r.Fingerprint))
}

func (c *Client) build(severity Severity, t *crashkit.Throwable) Report {
	c.mu.Lock()
	user := c.user
	crumbs := c.crumbs.All()
	c.mu.Unlock()

	r := Report{
		EventID:     uuid.NewString(),
		Timestamp:   c.now(),
		Severity:    severity,
		ErrorType:   errorType(t.Message),
		Message:     t.Message,
		Throwable:   t,
		Keys:        c.keys.Snapshot(),
		User:        user,
		Breadcrumbs: crumbs,
		SystemState: CaptureSystemState(c.startTime),
		SDKVersion:  c.version,
	}
	if c.contextID != nil {
		id := *c.contextID
		r.ContextID = &id
	}

	if c.scrubber != nil {
		r.Throwable = c.scrubber.ScrubThrowable(t)
		r.Message = r.Throwable.Message
		r.Keys = c.scrubber.ScrubKeys(r.Keys)
		r.User = c.scrubber.ScrubUser(r.User)
		r.Breadcrumbs = c.scrubber.ScrubBreadcrumbs(r.Breadcrumbs)
		r.StackTrace = c.scrubber.ScrubStackTrace(r.Throwable.String())
	} else {
		r.StackTrace = t.String()
	}

	r.Fingerprint = Fingerprint(r)
	return r
}
