package workqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default limits for the background queue.
const (
	DefaultMaxConcurrent = 8
	DefaultTaskTimeout   = 90 * time.Second
)

// Queue is a bounded fire-and-forget dispatcher. At most maxConcurrent tasks
// run at once; each gets its own timeout. Panics are recovered and reported
// like errors.
type Queue struct {
	slots   chan struct{}
	timeout time.Duration

	// mu orders wg.Add in Submit against the closed flip in Shutdown
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	// Cancellation context for running tasks
	ctx    context.Context
	cancel context.CancelFunc

	stats  counters
	logger *zap.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMaxConcurrent bounds how many tasks run at once.
func WithMaxConcurrent(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.slots = make(chan struct{}, n)
		}
	}
}

// WithTaskTimeout sets the per-task deadline.
func WithTaskTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// New creates a new work queue with the given options.
func New(logger *zap.Logger, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		slots:   make(chan struct{}, DefaultMaxConcurrent),
		timeout: DefaultTaskTimeout,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.Named("workqueue"),
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Submit schedules fn and returns immediately. After Shutdown has begun,
// new tasks are dropped with a warning.
func (q *Queue) Submit(name string, fn TaskFunc) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.stats.dropped.Add(1)
		q.logger.Warn("Queue shut down, dropping task", zap.String("task", name))
		return
	}
	q.stats.submitted.Add(1)
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()

		select {
		case q.slots <- struct{}{}:
		case <-q.ctx.Done():
			q.stats.dropped.Add(1)
			q.logger.Warn("Queue cancelled before task started", zap.String("task", name))
			return
		}
		defer func() { <-q.slots }()

		q.run(name, fn)
	}()
}

func (q *Queue) run(name string, fn TaskFunc) {
	q.stats.running.Add(1)
	defer q.stats.running.Add(-1)

	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	start := time.Now()
	err := safeCall(ctx, fn)
	if err != nil {
		q.stats.failed.Add(1)
		q.logger.Warn("Background task failed",
			zap.String("task", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}

	q.stats.completed.Add(1)
	q.logger.Debug("Background task completed",
		zap.String("task", name),
		zap.Duration("elapsed", time.Since(start)))
}

func safeCall(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Stats returns a snapshot of task counters.
func (q *Queue) Stats() Stats {
	return q.stats.snapshot()
}

// Shutdown stops accepting tasks and waits for in-flight ones. If ctx expires
// first, running and waiting tasks are cancelled and ctx.Err() is returned
// without waiting for them to notice.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}

var _ Dispatcher = (*Queue)(nil)
