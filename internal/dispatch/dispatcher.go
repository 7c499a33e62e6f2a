package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"dubber/internal/jobs"
	"dubber/internal/logging"
	"dubber/internal/observability"
	"dubber/internal/stage"
)

const defaultMaxConcurrent = 4

// Dispatcher runs matching stages for incoming changes.
type Dispatcher struct {
	handlers []stage.Handler
	sem      *semaphore.Weighted
	limit    int64
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
	wg       sync.WaitGroup
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithMaxConcurrent caps how many stages run at once.
func WithMaxConcurrent(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.limit = int64(n)
		}
	}
}

// WithStageTimeout bounds each stage invocation.
func WithStageTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logging.NewComponentLogger(logger, "dispatch")
	}
}

// WithMetrics records dispatched changes.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// New builds a Dispatcher over handlers.
func New(handlers []stage.Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: handlers,
		limit:    defaultMaxConcurrent,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.sem = semaphore.NewWeighted(d.limit)
	return d
}

// Handlers returns the stages the dispatcher routes to.
func (d *Dispatcher) Handlers() []stage.Handler {
	return d.handlers
}

// Dispatch starts the stage matching change, if any, and reports whether one
// was started. It blocks only while every worker is busy; ctx cancels that
// wait but never the started stage, which runs to completion under the
// stage timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, change jobs.Change) (bool, error) {
	handler, ok := stage.Resolve(d.handlers, change)
	if !ok {
		return false, nil
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	d.metrics.RecordDispatch(ctx, string(change.Kind))

	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				logging.ErrorWithContext(logging.WithContext(runCtx, d.logger), "stage panicked", "stage_panic",
					logging.Stage(handler.Name()),
					logging.String("panic", fmt.Sprint(r)),
					logging.Hint("the job stays at its current status; check the stage for a bug"),
				)
			}
		}()
		if d.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, d.timeout)
			defer cancel()
		}
		handler.Process(runCtx, change)
	}()
	return true, nil
}

// Wait blocks until every started stage has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
