// Package async wraps a sink with a bounded queue and a background writer.
// When the queue is full the oldest report is dropped.
package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/strongdm/crashkit/pkg/crashkit/report"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("async sink is closed")

const pollInterval = 5 * time.Millisecond

// AsyncSinkOption configures the async sink.
type AsyncSinkOption func(*asyncSinkConfig)

type asyncSinkConfig struct {
	queueSize int
	onDropped func(count int)
	logger    *zap.Logger
}

// WithQueueSize sets the maximum number of queued reports (default: 1000).
func WithQueueSize(size int) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithOnDropped sets a callback invoked when reports are dropped.
func WithOnDropped(fn func(count int)) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		c.onDropped = fn
	}
}

// WithLogger sets the logger for inner sink failures.
func WithLogger(logger *zap.Logger) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type asyncSink struct {
	inner     report.Sink
	queue     chan report.Report
	done      chan struct{}
	wg        sync.WaitGroup
	onDropped func(count int)
	logger    *zap.Logger

	// pending counts reports accepted but not yet written.
	pending atomic.Int64

	closeOnce sync.Once
	closeMu   sync.RWMutex
	closed    bool
}

// NewAsyncSink wraps inner with a bounded queue. Write returns immediately;
// reports are written to inner by a background goroutine that Close stops.
func NewAsyncSink(inner report.Sink, opts ...AsyncSinkOption) report.Sink {
	cfg := &asyncSinkConfig{
		queueSize: 1000,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &asyncSink{
		inner:     inner,
		queue:     make(chan report.Report, cfg.queueSize),
		done:      make(chan struct{}),
		onDropped: cfg.onDropped,
		logger:    cfg.logger,
	}

	s.wg.Add(1)
	go s.processLoop()

	return s
}

func (s *asyncSink) processLoop() {
	defer s.wg.Done()
	for {
		select {
		case r := <-s.queue:
			s.write(r)
		case <-s.done:
			for {
				select {
				case r := <-s.queue:
					s.write(r)
				default:
					return
				}
			}
		}
	}
}

func (s *asyncSink) write(r report.Report) {
	defer s.pending.Add(-1)
	if err := s.inner.Write(context.Background(), r); err != nil {
		s.logger.Warn("async sink write failed", zap.String("event_id", r.EventID), zap.Error(err))
	}
}

// Write enqueues r. If the queue is full, the oldest report is dropped.
func (s *asyncSink) Write(ctx context.Context, r report.Report) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	s.pending.Add(1)
	select {
	case s.queue <- r:
		return nil
	default:
		s.dropOldestAndEnqueue(r)
		return nil
	}
}

func (s *asyncSink) dropOldestAndEnqueue(r report.Report) {
	select {
	case <-s.queue:
		s.dropped()
	default:
		// the writer emptied a slot
	}

	select {
	case s.queue <- r:
	default:
		s.dropped()
	}
}

func (s *asyncSink) dropped() {
	s.pending.Add(-1)
	if s.onDropped != nil {
		s.onDropped(1)
	}
}

// Flush blocks until every accepted report is written, then flushes inner.
func (s *asyncSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for s.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return s.inner.Flush(ctx)
}

// Close drains the queue, stops the writer and closes inner.
func (s *asyncSink) Close() error {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		s.closeMu.Unlock()

		close(s.done)
		s.wg.Wait()
	})
	return s.inner.Close()
}
