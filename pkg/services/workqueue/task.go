package workqueue

import (
	"context"
	"sync/atomic"
)

// TaskFunc is one unit of best-effort background work.
type TaskFunc func(ctx context.Context) error

// Dispatcher runs best-effort side effects (alert mail, learning forwards,
// document processing) outside the request that triggered them.
// Failures are logged and dropped; nothing is retried.
type Dispatcher interface {
	Submit(name string, fn TaskFunc)
}

// Stats counts tasks by outcome since the queue was created.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Running   int64 `json:"running"`
}

type counters struct {
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	running   atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Submitted: c.submitted.Load(),
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
		Dropped:   c.dropped.Load(),
		Running:   c.running.Load(),
	}
}

// Inline runs every task synchronously on the caller's goroutine with a
// background context. Used by tests and by tools that need deterministic ordering.
type Inline struct {
	Errors []error
}

// Submit runs fn immediately and records its error.
func (d *Inline) Submit(name string, fn TaskFunc) {
	if err := fn(context.Background()); err != nil {
		d.Errors = append(d.Errors, err)
	}
}

var _ Dispatcher = (*Inline)(nil)
