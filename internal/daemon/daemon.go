package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"dubber/internal/config"
	"dubber/internal/deps"
	"dubber/internal/dispatch"
	"dubber/internal/jobs"
	"dubber/internal/logging"
	"dubber/internal/observability"
	"dubber/internal/stage"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *jobs.Store
	handlers []stage.Handler
	scratch  dispatch.ScratchCleaner
	metrics  *observability.Metrics

	lockPath string
	lock     *flock.Flock

	mu         sync.Mutex
	running    atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	pollerDone chan struct{}
	sweeper    *dispatch.Sweeper
	api        *apiServer
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	JobCounts    map[jobs.Status]int
	StageHealth  []stage.Health
	Dependencies []deps.Status
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithScratchCleaner lets the sweep remove abandoned scratch directories.
func WithScratchCleaner(cleaner dispatch.ScratchCleaner) Option {
	return func(d *Daemon) {
		d.scratch = cleaner
	}
}

// WithMetrics records dispatch counters.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(d *Daemon) {
		d.metrics = metrics
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger, handlers []stage.Handler, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}
	if len(handlers) == 0 {
		return nil, errors.New("daemon requires at least one stage")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		handlers: handlers,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock and launches the feed poller, the sweep
// schedule, and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dubber daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	abort := func(err error) error {
		cancel()
		if unlockErr := d.lock.Unlock(); unlockErr != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(unlockErr))
		}
		return err
	}

	sweeper := dispatch.NewSweeper(d.store, d.scratch, d.sweepOptions(), d.logger)
	if schedule := strings.TrimSpace(d.cfg.Workflow.StallSweepSchedule); schedule != "" {
		if err := sweeper.Start(runCtx, schedule); err != nil {
			return abort(fmt.Errorf("start sweep: %w", err))
		}
	}

	server, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		sweeper.Stop()
		return abort(fmt.Errorf("api server: %w", err))
	}
	if err := server.start(runCtx); err != nil {
		sweeper.Stop()
		return abort(err)
	}

	dispatcher := dispatch.New(d.handlers,
		dispatch.WithMaxConcurrent(d.cfg.Workflow.MaxConcurrentStages),
		dispatch.WithStageTimeout(time.Duration(d.cfg.Workflow.StageTimeoutSeconds)*time.Second),
		dispatch.WithLogger(d.logger),
		dispatch.WithMetrics(d.metrics),
	)
	poller := dispatch.NewPoller(d.store, dispatcher,
		time.Duration(d.cfg.Workflow.PollIntervalMillis)*time.Millisecond,
		d.cfg.Workflow.BatchSize,
		d.logger,
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := poller.Run(runCtx); err != nil {
			d.logger.Error("change feed stopped", logging.Error(err))
		}
	}()

	d.ctx = runCtx
	d.cancel = cancel
	d.pollerDone = done
	d.sweeper = sweeper
	d.api = server
	d.running.Store(true)
	d.logger.Info("dubber daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
		logging.Int("stages", len(d.handlers)),
	)
	return nil
}

// Stop stops polling, waits for in-flight stages, and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.pollerDone != nil {
		<-d.pollerDone
		d.pollerDone = nil
	}
	if d.sweeper != nil {
		d.sweeper.Stop()
		d.sweeper = nil
	}
	d.api.stop()
	d.api = nil
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("dubber daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the bound API address while the daemon runs.
func (d *Daemon) APIAddress() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	counts, err := d.store.Counts(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "job counts unavailable", "status_counts_failed",
			logging.Error(err),
			logging.Hint("check the job database"),
			logging.Impact("status omits job counts"),
		)
	}
	health := make([]stage.Health, 0, len(d.handlers))
	for _, handler := range d.handlers {
		health = append(health, handler.HealthCheck(ctx))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		JobCounts:    counts,
		StageHealth:  health,
		Dependencies: deps.Check(ctx, deps.FFmpeg(d.cfg.Transcoder.Binary)),
	}
}

// sweepOptions maps workflow settings onto the sweeper. Scratch directories
// outliving two stage timeouts belong to a stage that can no longer be
// running.
func (d *Daemon) sweepOptions() dispatch.SweepOptions {
	wf := d.cfg.Workflow
	return dispatch.SweepOptions{
		StallAfter:    time.Duration(wf.StallAfterMinutes) * time.Minute,
		Retention:     time.Duration(wf.ChangeRetentionDays) * 24 * time.Hour,
		ScratchMaxAge: 2 * time.Duration(wf.StageTimeoutSeconds) * time.Second,
	}
}
