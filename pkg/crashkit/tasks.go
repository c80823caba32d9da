// tasks.go runs background tasks whose errors, if nobody waits for them, are
// raised on the platform's unobserved-task channel.

package crashkit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrSchedulerClosed is the error of a task started after Close.
var ErrSchedulerClosed = errors.New("task scheduler closed")

// Task is a running or finished background task.
type Task struct {
	done     chan struct{}
	err      error
	observed atomic.Bool
}

// Wait blocks until the task finishes and returns its error. Waiting marks
// the error as observed.
func (t *Task) Wait() error {
	<-t.done
	t.observed.Store(true)
	return t.err
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// TaskScheduler runs tasks on a bounded errgroup.
type TaskScheduler struct {
	platform *Platform
	group    errgroup.Group

	mu     sync.Mutex
	tasks  []*Task
	closed bool

	// starting counts Run calls between the closed check and group.Go.
	starting sync.WaitGroup
}

// NewTaskScheduler creates a scheduler that raises unobserved errors on p.
// limit bounds concurrently running tasks; zero or less means no limit.
func NewTaskScheduler(p *Platform, limit int) *TaskScheduler {
	s := &TaskScheduler{platform: p}
	if limit > 0 {
		s.group.SetLimit(limit)
	}
	return s
}

// Run starts fn with ctx. It blocks while the scheduler is at its limit. A panic in fn
// becomes the task's error. Once Close has begun, fn is not run and the
// returned task fails with ErrSchedulerClosed.
func (s *TaskScheduler) Run(ctx context.Context, fn func(ctx context.Context) error) *Task {
	t := &Task{done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.err = ErrSchedulerClosed
		close(t.done)
		return t
	}
	s.tasks = append(s.tasks, t)
	s.starting.Add(1)
	s.mu.Unlock()
	defer s.starting.Done()

	s.group.Go(func() error {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.err = newPanicError(r)
			}
		}()
		t.err = fn(ctx)
		return nil
	})
	return t
}

// Close waits for every task and raises each error nobody waited for on the
// unobserved-task channel, in start order. Close may be called concurrently
// with Run.
func (s *TaskScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.starting.Wait()
	_ = s.group.Wait()

	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	for _, t := range tasks {
		if t.err != nil && !t.observed.Load() {
			s.platform.UnobservedTask().Raise(t.err)
		}
	}
}
