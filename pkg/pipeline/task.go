// Package pipeline runs volume loads and mask saves as one-shot background
// tasks with progress reporting and cooperative cancellation.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"triplanar/pkg/logging"
)

// ProgressFunc receives integer progress in [0,100]. It is called from the
// task goroutine and never after the task has been cancelled.
type ProgressFunc func(percent int)

// Options configure a task.
type Options struct {
	// Workers is the number of goroutines used by the data-parallel kernels.
	Workers int
	// Progress is optional.
	Progress ProgressFunc
	Log      logging.Logger
}

func (o Options) logger() logging.Logger {
	if o.Log == nil {
		return logging.Default()
	}
	return o.Log
}

// task is the state shared by load and save tasks. The cancel function is
// the only thing the foreground and the worker share besides the channels.
type task struct {
	ID      uuid.UUID
	Started time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	progress ProgressFunc
	errc     chan error
}

func newTask(ctx context.Context, progress ProgressFunc) task {
	ctx, cancel := context.WithCancel(ctx)
	return task{
		ID:       uuid.New(),
		Started:  time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		progress: progress,
		errc:     make(chan error, 1),
	}
}

// Cancel requests cooperative cancellation. It may be called more than once.
func (t *task) Cancel() {
	t.cancel()
}

// Err delivers the failure of the task, if any. Exactly one of Err and the
// task's result channel receives a value.
func (t *task) Err() <-chan error {
	return t.errc
}

func (t *task) report(percent int) {
	if t.progress == nil || t.ctx.Err() != nil {
		return
	}
	t.progress(percent)
}

func (t *task) fail(err error) {
	t.errc <- err
	t.cancel()
}
