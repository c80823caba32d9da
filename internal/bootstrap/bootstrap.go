// Package bootstrap assembles a running crashkit stack from configuration.
package bootstrap

import (
	"errors"
	"fmt"
	"io"

	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	"go.uber.org/zap"

	"github.com/strongdm/crashkit/internal/config"
	"github.com/strongdm/crashkit/pkg/crashkit"
	"github.com/strongdm/crashkit/pkg/crashkit/monitor"
	"github.com/strongdm/crashkit/pkg/crashkit/report"
	"github.com/strongdm/crashkit/pkg/crashkit/sinks/async"
	"github.com/strongdm/crashkit/pkg/crashkit/sinks/cxdb"
	"github.com/strongdm/crashkit/pkg/crashkit/sinks/multi"
	"github.com/strongdm/crashkit/pkg/crashkit/sinks/stderr"
)

// Dialer connects to cxdb. The returned close function releases the
// connection.
type Dialer func(address, clientTag string) (cxdb.CXDBClient, func() error, error)

// DialCXDB dials a cxdb server over its binary protocol.
func DialCXDB(address, clientTag string) (cxdb.CXDBClient, func() error, error) {
	client, err := cxdbclient.Dial(address, cxdbclient.WithClientTag(clientTag))
	if err != nil {
		return nil, nil, err
	}
	return client, func() error {
		client.Close()
		return nil
	}, nil
}

// Option configures New.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	dial         Dialer
	stderr       io.Writer
	platformOpts []crashkit.PlatformOption
	startMonitor func(*crashkit.Platform, *zap.Logger) error
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDialer replaces the cxdb dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dial = d
		}
	}
}

// WithStderr redirects the stderr sink.
func WithStderr(w io.Writer) Option {
	return func(o *options) {
		o.stderr = w
	}
}

// WithPlatformOptions passes options to the platform.
func WithPlatformOptions(opts ...crashkit.PlatformOption) Option {
	return func(o *options) {
		o.platformOpts = append(o.platformOpts, opts...)
	}
}

// WithMonitorStarter replaces monitor.Start.
func WithMonitorStarter(start func(*crashkit.Platform, *zap.Logger) error) Option {
	return func(o *options) {
		if start != nil {
			o.startMonitor = start
		}
	}
}

// Stack is a wired crashkit: platform, host, report client, facade, router
// and task scheduler.
type Stack struct {
	Platform    *crashkit.Platform
	Host        *crashkit.Host
	Client      *report.Client
	Crashlytics *crashkit.Crashlytics
	Router      *crashkit.Router
	Tasks       *crashkit.TaskScheduler

	monitor      bool
	startMonitor func(*crashkit.Platform, *zap.Logger) error
	logger       *zap.Logger
	closers      []func() error
}

// New builds a Stack from cfg. Nothing is installed until Start.
func New(cfg *config.Config, opts ...Option) (*Stack, error) {
	o := &options{
		logger:       zap.NewNop(),
		dial:         DialCXDB,
		startMonitor: monitor.Start,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Stack{
		monitor:      cfg.Router.Monitor,
		startMonitor: o.startMonitor,
		logger:       o.logger,
	}

	sink, err := s.buildSink(cfg, o)
	if err != nil {
		_ = s.closeConnections()
		return nil, err
	}

	clientOpts := []report.Option{
		report.WithSink(sink),
		report.WithLogger(o.logger.Named("report")),
		report.WithVersion(cfg.Report.Version),
		report.WithMaxBreadcrumbs(cfg.Report.MaxBreadcrumbs),
		report.WithMaxKeys(cfg.Report.MaxKeys),
		report.WithFlushTimeout(cfg.Report.FlushTimeout),
	}
	if cfg.Report.Scrub {
		clientOpts = append(clientOpts, report.WithDefaultScrubbing())
	}
	if cfg.Report.ContextID != 0 {
		clientOpts = append(clientOpts, report.WithContextID(cfg.Report.ContextID))
	}

	translator := crashkit.NewTranslator(
		crashkit.WithSourceExtension(cfg.Translator.SourceExtension),
		crashkit.WithMaxCauseDepth(cfg.Translator.MaxCauseDepth),
		crashkit.WithTranslatorLogger(o.logger.Named("translator")),
	)

	s.Platform = crashkit.NewPlatform(o.platformOpts...)
	s.Host = crashkit.NewHost(s.Platform, crashkit.WithHostLogger(o.logger.Named("host")))
	s.Client = report.NewClient(clientOpts...)
	s.Crashlytics = crashkit.New(s.Client,
		crashkit.WithTranslator(translator),
		crashkit.WithLogger(o.logger),
	)
	s.Router = crashkit.NewRouter(s.Crashlytics, s.Host,
		crashkit.WithExitCode(cfg.Router.ExitCode),
		crashkit.WithRouterLogger(o.logger.Named("router")),
	)
	s.Tasks = crashkit.NewTaskScheduler(s.Platform, cfg.Tasks.Limit)
	return s, nil
}

// buildSink assembles the configured sinks, fanned out and optionally
// queued. No sink configured yields a discarding client.
func (s *Stack) buildSink(cfg *config.Config, o *options) (report.Sink, error) {
	var sinks []report.Sink

	if cfg.Sinks.Stderr.Enabled {
		var stderrOpts []stderr.StderrSinkOption
		if cfg.Sinks.Stderr.Verbose {
			stderrOpts = append(stderrOpts, stderr.WithVerbose())
		}
		if o.stderr != nil {
			stderrOpts = append(stderrOpts, stderr.WithWriter(o.stderr))
		}
		sinks = append(sinks, stderr.NewStderrSink(stderrOpts...))
	}

	if c := cfg.Sinks.CXDB; c.Enabled() {
		client, closeFn, err := o.dial(c.Address, c.ClientTag)
		if err != nil {
			return nil, fmt.Errorf("connect to cxdb at %s: %w", c.Address, err)
		}
		if closeFn != nil {
			s.closers = append(s.closers, closeFn)
		}
		cxdbOpts := []cxdb.CXDBSinkOption{
			cxdb.WithClientTag(c.ClientTag),
			cxdb.WithLabels(c.Labels),
		}
		if c.ContextID != 0 {
			cxdbOpts = append(cxdbOpts, cxdb.WithContextID(c.ContextID))
		}
		sinks = append(sinks, cxdb.NewCXDBSink(client, cxdbOpts...))
		o.logger.Debug("cxdb sink configured", zap.String("address", c.Address))
	}

	if len(sinks) == 0 {
		return nil, nil
	}

	var sink report.Sink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else {
		sink = multi.NewMultiSink(sinks...)
	}
	if cfg.Sinks.Async.Enabled {
		sink = async.NewAsyncSink(sink,
			async.WithQueueSize(cfg.Sinks.Async.QueueSize),
			async.WithLogger(o.logger.Named("async")),
		)
	}
	return sink, nil
}

// Start wires the router into the host and initializes every kit. When the
// monitor is enabled, the program is then re-executed under panic
// monitoring.
func (s *Stack) Start() error {
	s.Router.Initialize()
	if err := s.Host.Start(); err != nil {
		return fmt.Errorf("start host: %w", err)
	}
	if s.monitor {
		if err := s.startMonitor(s.Platform, s.logger.Named("monitor")); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for background tasks, then closes the sinks and any cxdb
// connection.
func (s *Stack) Close() error {
	s.Tasks.Close()
	return errors.Join(s.Client.Close(), s.closeConnections())
}

func (s *Stack) closeConnections() error {
	var errs []error
	for _, closeFn := range s.closers {
		errs = append(errs, closeFn())
	}
	s.closers = nil
	return errors.Join(errs...)
}
