package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// PanicError is reported to Task.OnFailure when Execute panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

type Worker struct {
	// the worker id
	id string

	// channel from which the worker consumes work, closed when the pool stops
	tasks <-chan Task

	// how long a single task may run, zero means no limit
	timeout time.Duration

	// used to signal the pool to clean itself up
	wg *sync.WaitGroup

	log *slog.Logger
}

func NewWorker(id string, tasks <-chan Task, timeout time.Duration, wg *sync.WaitGroup, log *slog.Logger) *Worker {
	return &Worker{
		id:      id,
		wg:      wg,
		log:     log,
		tasks:   tasks,
		timeout: timeout,
	}
}

func (w *Worker) Start() {
	w.log.Info(fmt.Sprintf("starting worker %s", w.id))

	defer func() {
		w.wg.Done()
		w.log.Info(fmt.Sprintf("worker %s has been stopped", w.id))
	}()

	for task := range w.tasks {
		if err := w.run(task); err != nil {
			task.OnFailure(err)
		}
	}

	w.log.Info(fmt.Sprintf("stopping worker %s with closed tasks channel", w.id))
}

// run executes task in its own goroutine so that a task running past the
// timeout does not hold the worker. The abandoned goroutine's result is dropped.
func (w *Worker) run(task Task) error {
	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if w.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- &PanicError{Value: rec, Stack: debug.Stack()}
			}
		}()
		done <- task.Execute(ctx)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
			return w.timeoutErr()
		}
		return err
	case <-ctx.Done():
		w.log.Warn(fmt.Sprintf("worker %s abandoned a task after %s", w.id, w.timeout))
		return w.timeoutErr()
	}
}

func (w *Worker) timeoutErr() error {
	return fmt.Errorf("%w after %s", ErrExecutionTimeout, w.timeout)
}
