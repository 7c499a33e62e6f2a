package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dubber/internal/jobs"
	"dubber/internal/logging"
	"dubber/internal/services"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBatchSize    = 50
)

// Feed is the change feed the poller consumes.
type Feed interface {
	PendingChanges(ctx context.Context, limit int) ([]jobs.Change, error)
	MarkDelivered(ctx context.Context, seqs ...int64) error
}

// Poller moves changes from the feed to the dispatcher.
type Poller struct {
	feed       Feed
	dispatcher *Dispatcher
	interval   time.Duration
	batchSize  int
	logger     *slog.Logger
}

// NewPoller builds a poller. Non-positive interval or batch size use defaults.
func NewPoller(feed Feed, dispatcher *Dispatcher, interval time.Duration, batchSize int, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Poller{
		feed:       feed,
		dispatcher: dispatcher,
		interval:   interval,
		batchSize:  batchSize,
		logger:     logging.NewComponentLogger(logger, "feed"),
	}
}

// Run polls until ctx is done, then waits for in-flight stages.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.dispatcher.Wait()

	for {
		for {
			n, err := p.PollOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logging.WarnWithContext(p.logger, "change feed poll failed", "feed_poll_failed",
					logging.Error(err),
					logging.Hint("check the job database"),
					logging.Impact("changes are retried on the next poll"),
				)
				break
			}
			if n < p.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce delivers one batch and returns how many changes were handed
// over. Changes are marked delivered only after dispatch, so a crash in
// between redelivers them; the stage claim absorbs the duplicate.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	changes, err := p.feed.PendingChanges(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}

	delivered := make([]int64, 0, len(changes))
	var dispatchErr error
	for _, change := range changes {
		changeCtx := services.WithRequestID(ctx, uuid.NewString())
		changeCtx = services.WithJobID(changeCtx, change.JobID)
		changeCtx = services.WithUserID(changeCtx, change.UserID)

		started, err := p.dispatcher.Dispatch(changeCtx, change)
		if err != nil {
			dispatchErr = err
			break
		}
		delivered = append(delivered, change.Seq)
		if started {
			logging.WithContext(changeCtx, p.logger).Debug("change dispatched",
				logging.Int64("seq", change.Seq),
				logging.String("kind", string(change.Kind)),
				logging.Event("change_dispatched"),
			)
		}
	}

	if len(delivered) > 0 {
		if err := p.feed.MarkDelivered(context.WithoutCancel(ctx), delivered...); err != nil {
			return len(delivered), errors.Join(dispatchErr, err)
		}
	}
	return len(delivered), dispatchErr
}
