package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"dubber/internal/jobs"
	"dubber/internal/logging"
)

// SweepStore is the store surface the sweeper reads and prunes.
type SweepStore interface {
	Stalled(ctx context.Context, cutoff time.Time) ([]*jobs.Record, error)
	PruneDelivered(ctx context.Context, cutoff time.Time) (int64, error)
}

// ScratchCleaner removes abandoned scratch directories.
type ScratchCleaner interface {
	CleanStale(maxAge time.Duration) int
}

// SweepOptions controls what a sweep considers old.
type SweepOptions struct {
	// StallAfter flags non-terminal jobs idle for longer than this.
	StallAfter time.Duration
	// Retention keeps delivered changes for this long. Zero disables pruning.
	Retention time.Duration
	// ScratchMaxAge removes scratch directories older than this. Zero
	// disables the scratch pass.
	ScratchMaxAge time.Duration
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Stalled        []*jobs.Record
	Pruned         int64
	ScratchRemoved int
}

// Sweeper periodically looks for stuck jobs and reclaims space.
type Sweeper struct {
	store   SweepStore
	scratch ScratchCleaner
	opts    SweepOptions
	logger  *slog.Logger
	now     func() time.Time
	group   singleflight.Group
	cron    *cron.Cron
}

// NewSweeper builds a sweeper. scratch may be nil.
func NewSweeper(store SweepStore, scratch ScratchCleaner, opts SweepOptions, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:   store,
		scratch: scratch,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "sweep"),
		now:     time.Now,
	}
}

// Start schedules sweeps using a standard five-field cron expression.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	if s.cron != nil {
		return errors.New("sweeper already started")
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(s.logger, "sweep failed", "sweep_failed",
				logging.Error(err),
				logging.Hint("check the job database"),
				logging.Impact("stalled jobs not reported until the next sweep"),
			)
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep runs one pass. Concurrent callers share the in-flight result.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	v, err, _ := s.group.Do("sweep", func() (any, error) {
		return s.sweep(ctx)
	})
	if err != nil {
		return SweepResult{}, err
	}
	return v.(SweepResult), nil
}

func (s *Sweeper) sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()

	if s.opts.StallAfter > 0 {
		stalled, err := s.store.Stalled(ctx, now.Add(-s.opts.StallAfter))
		if err != nil {
			return result, fmt.Errorf("list stalled jobs: %w", err)
		}
		result.Stalled = stalled
		for _, rec := range stalled {
			logging.WarnWithContext(s.logger, "job stalled", "job_stalled",
				logging.JobID(rec.ID),
				logging.UserID(rec.UserID),
				logging.String("status", string(rec.Status)),
				logging.Duration("idle", now.Sub(rec.UpdatedAt).Round(time.Second)),
				logging.Hint("check stage precondition warnings and service credentials"),
				logging.Impact("job will not advance on its own"),
			)
		}
	}

	if s.opts.Retention > 0 {
		pruned, err := s.store.PruneDelivered(ctx, now.Add(-s.opts.Retention))
		if err != nil {
			return result, fmt.Errorf("prune delivered changes: %w", err)
		}
		result.Pruned = pruned
	}

	if s.scratch != nil && s.opts.ScratchMaxAge > 0 {
		result.ScratchRemoved = s.scratch.CleanStale(s.opts.ScratchMaxAge)
	}

	s.logger.Info("sweep complete",
		logging.Event("sweep_complete"),
		logging.Int("stalled", len(result.Stalled)),
		logging.Int64("pruned_changes", result.Pruned),
		logging.Int("scratch_removed", result.ScratchRemoved),
	)
	return result, nil
}
