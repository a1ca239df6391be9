// Package shutdownqueue provides a LIFO queue of named cleanup tasks.
//
// Construct one Queue in main, hand it to whatever opens resources, and drain
// it on the way out:
//
//	q := shutdownqueue.New(slog.Default())
//	defer q.Shutdown(ctx)
//
// Tasks run once, in reverse order of registration. Panics are recovered.
// Shutdown is idempotent and returns an aggregated error via errors.Join.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is a shutdown function. It should honor ctx and return an error
// if it can't finish (or ctx is canceled).
type Task func(ctx context.Context) error

type entry struct {
	name string
	task Task
}

// Queue collects tasks until Shutdown drains it. The zero value is not usable;
// call New.
type Queue struct {
	log *slog.Logger

	mu     sync.Mutex
	tasks  []entry
	closed bool
}

// New returns an empty queue. A nil logger falls back to slog.Default.
func New(log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}

	return &Queue{
		log:   log,
		tasks: make([]entry, 0, 8),
	}
}

// Add registers a named task to be run on Shutdown, in LIFO order.
// If t is nil or shutdown has already started, Add does nothing.
func (q *Queue) Add(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.Warn("shutdown task registered after shutdown started; ignored", "task", name)
		return
	}

	q.tasks = append(q.tasks, entry{name: name, task: t})
}

// Len reports how many tasks are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Shutdown drains all registered tasks in LIFO order.
// Calls after the first one are no-ops.
//
// If ctx is canceled or times out mid-drain, Shutdown stops early and returns
// the context error joined with any task errors so far.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()

	if q.closed && len(q.tasks) == 0 {
		q.mu.Unlock()

		return nil
	}

	q.closed = true
	tasks := q.tasks
	q.tasks = nil

	q.mu.Unlock()

	var errs []error

	for i := len(tasks) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("shutdown canceled before %q: %w", tasks[i].name, ctx.Err()))

			return errors.Join(errs...)
		default:
		}

		err := q.run(ctx, tasks[i])
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (q *Queue) run(ctx context.Context, e entry) (err error) {
	start := time.Now()

	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("panic in shutdown task %q: %v", e.name, r)
		}

		if err != nil {
			q.log.Error("shutdown task failed", "task", e.name, "error", err)
			return
		}

		q.log.Info("shutdown task done", "task", e.name, "duration", time.Since(start))
	}()

	err = e.task(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}

	return nil
}
