package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/strongdm/crashkit/pkg/crashkit/report"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gatedSink records reports; each Write blocks until the gate is open.
type gatedSink struct {
	mu       sync.Mutex
	reports  []report.Report
	gate     chan struct{}
	entered  chan struct{}
	writeErr error
	flushed  atomic.Int32
	closed   atomic.Int32
}

func newGatedSink(open bool) *gatedSink {
	s := &gatedSink{gate: make(chan struct{}), entered: make(chan struct{}, 64)}
	if open {
		close(s.gate)
	}
	return s
}

func (s *gatedSink) Write(ctx context.Context, r report.Report) error {
	s.entered <- struct{}{}
	<-s.gate
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return s.writeErr
}

func (s *gatedSink) Flush(ctx context.Context) error {
	s.flushed.Add(1)
	return nil
}

func (s *gatedSink) Close() error {
	s.closed.Add(1)
	return nil
}

func (s *gatedSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.reports))
	for i, r := range s.reports {
		ids[i] = r.EventID
	}
	return ids
}

func TestAsyncSink_ImplementsSinkInterface(t *testing.T) {
	sink := NewAsyncSink(newGatedSink(true))
	defer sink.Close()
	var _ report.Sink = sink
}

func TestAsyncSink_Write_ReturnsImmediately(t *testing.T) {
	inner := newGatedSink(false)
	sink := NewAsyncSink(inner, WithQueueSize(10))

	done := make(chan error, 1)
	go func() { done <- sink.Write(context.Background(), report.Report{EventID: "r-1"}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Write blocked on the inner sink")
	}

	close(inner.gate)
	require.NoError(t, sink.Close())
}

func TestAsyncSink_DropsOldestWhenFull(t *testing.T) {
	inner := newGatedSink(false)
	var dropped atomic.Int32
	sink := NewAsyncSink(inner,
		WithQueueSize(2),
		WithOnDropped(func(count int) { dropped.Add(int32(count)) }),
	)

	// r-0 is taken by the writer, which then blocks on the gate.
	require.NoError(t, sink.Write(context.Background(), report.Report{EventID: "r-0"}))
	<-inner.entered

	for i := 1; i <= 4; i++ {
		require.NoError(t, sink.Write(context.Background(), report.Report{EventID: fmt.Sprintf("r-%d", i)}))
	}

	close(inner.gate)
	require.NoError(t, sink.Flush(context.Background()))

	assert.Equal(t, int32(2), dropped.Load())
	assert.Equal(t, []string{"r-0", "r-3", "r-4"}, inner.ids())
	require.NoError(t, sink.Close())
}

func TestAsyncSink_Flush_DrainsQueue(t *testing.T) {
	inner := newGatedSink(true)
	sink := NewAsyncSink(inner, WithQueueSize(100))

	for i := 0; i < 10; i++ {
		require.NoError(t, sink.Write(context.Background(), report.Report{EventID: fmt.Sprintf("r-%d", i)}))
	}

	require.NoError(t, sink.Flush(context.Background()))
	assert.Len(t, inner.ids(), 10)
	assert.Equal(t, int32(1), inner.flushed.Load())

	require.NoError(t, sink.Close())
}

func TestAsyncSink_Flush_HonorsContext(t *testing.T) {
	inner := newGatedSink(false)
	sink := NewAsyncSink(inner)

	require.NoError(t, sink.Write(context.Background(), report.Report{EventID: "stuck"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sink.Flush(ctx), context.DeadlineExceeded)

	close(inner.gate)
	require.NoError(t, sink.Close())
}

func TestAsyncSink_Close_DrainsAndClosesInner(t *testing.T) {
	inner := newGatedSink(true)
	sink := NewAsyncSink(inner, WithQueueSize(100))

	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Write(context.Background(), report.Report{EventID: "r"}))
	}

	require.NoError(t, sink.Close())
	assert.Len(t, inner.ids(), 5)
	assert.Equal(t, int32(1), inner.closed.Load())
}

func TestAsyncSink_WriteAfterClose(t *testing.T) {
	sink := NewAsyncSink(newGatedSink(true))
	require.NoError(t, sink.Close())

	assert.ErrorIs(t, sink.Write(context.Background(), report.Report{}), ErrClosed)
}

func TestAsyncSink_InnerErrorsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	inner := newGatedSink(true)
	inner.writeErr = errors.New("backend down")
	sink := NewAsyncSink(inner, WithLogger(zap.New(core)))

	require.NoError(t, sink.Write(context.Background(), report.Report{EventID: "r-1"}))
	require.NoError(t, sink.Flush(context.Background()))
	require.NoError(t, sink.Close())

	entries := logs.FilterMessage("async sink write failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "r-1", entries[0].ContextMap()["event_id"])
}
