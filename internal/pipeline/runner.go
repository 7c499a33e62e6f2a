package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dubber/internal/jobs"
	"dubber/internal/logging"
	"dubber/internal/observability"
	"dubber/internal/services"
	"dubber/internal/stage"
	"dubber/internal/workspace"
)

// Stage names double as claim keys and span names.
const (
	StageTranscribe = "transcribe"
	StageTranslate  = "translate"
	StageSynthesize = "synthesize"
	StageAlign      = "align"
)

// Dependencies are the collaborators every stage shares.
type Dependencies struct {
	Store   JobStore
	Blobs   BlobStore
	Scratch ScratchAllocator
	Logger  *slog.Logger
	Tracer  *observability.Tracer
	Metrics *observability.Metrics
}

// outcome is what a successful stage body hands back for commit.
type outcome struct {
	// artifact is an object uploaded before commit; it is deleted when the
	// commit fails.
	artifact string
	apply    func(*jobs.Record)
}

type plan struct {
	scratch bool
	run     func(ctx context.Context, ws *workspace.Workspace) (outcome, error)
}

// definition is the per-stage part of the protocol.
type definition interface {
	Name() string
	Trigger() jobs.Status
	next() jobs.Status
	errorField() jobs.ErrorField
	prepare(rec *jobs.Record) (plan, error)
}

func preconditionError(stageName, message string, err error) error {
	return services.Wrap(services.ErrValidation, stageName, "precondition", message, err)
}

func (d Dependencies) process(ctx context.Context, def definition, change jobs.Change) {
	if !stage.Triggered(change, def.Trigger()) {
		return
	}
	name := def.Name()
	rec := change.After
	ctx = services.WithJobID(ctx, rec.ID)
	ctx = services.WithUserID(ctx, rec.UserID)
	ctx = services.WithStage(ctx, name)
	logger := logging.WithContext(ctx, logging.NewComponentLogger(d.Logger, "pipeline"))
	start := time.Now()

	p, err := def.prepare(rec)
	if err != nil {
		logging.WarnWithContext(logger, "stage precondition failed", "stage_precondition_failed",
			logging.String("status", string(rec.Status)),
			logging.Error(err),
			logging.Hint("check the job inputs and the service credentials"),
			logging.Impact("job left unchanged and will not advance"),
		)
		d.Metrics.RecordStageRun(ctx, name, observability.OutcomeSkipped, time.Since(start))
		return
	}

	claimed, err := d.Store.Claim(ctx, rec.ID, name, def.Trigger())
	if err != nil {
		logging.ErrorWithContext(logger, "stage claim failed", "stage_claim_failed",
			logging.Error(err),
			logging.Hint("check the job database"),
		)
		d.Metrics.RecordStageRun(ctx, name, observability.OutcomeSkipped, time.Since(start))
		return
	}
	if !claimed {
		logger.Info("stage already claimed",
			logging.Event("stage_duplicate"),
			logging.String("status", string(rec.Status)),
		)
		d.Metrics.RecordStageRun(ctx, name, observability.OutcomeSkipped, time.Since(start))
		return
	}

	ctx, span := d.Tracer.StartStage(ctx, name, rec.ID)
	defer span.End()

	logger.Info("stage started",
		logging.Event("stage_start"),
		logging.String("status", string(rec.Status)),
		logging.String("file_path", rec.FilePath),
	)

	out, err := d.execute(ctx, logger, name, rec, p)
	if err != nil {
		observability.RecordError(span, err)
		d.fail(ctx, logger, def, rec, err, nil)
		d.Metrics.RecordStageRun(ctx, name, observability.OutcomeFailed, time.Since(start))
		return
	}

	committed, err := d.Store.Transition(ctx, rec.ID, def.Trigger(), func(r *jobs.Record) {
		if out.apply != nil {
			out.apply(r)
		}
		r.ClearError(def.errorField())
		r.Status = def.next()
	})
	if err != nil {
		observability.RecordError(span, err)
		compErr := d.compensate(ctx, logger, out.artifact)
		d.fail(ctx, logger, def, rec, fmt.Errorf("commit %s: %w", name, err), compErr)
		d.Metrics.RecordStageRun(ctx, name, observability.OutcomeFailed, time.Since(start))
		return
	}

	logger.Info("stage committed",
		logging.Event("stage_complete"),
		logging.String("next_status", string(committed.Status)),
		logging.Int64("version", committed.Version),
		logging.Duration("stage_duration", time.Since(start)),
	)
	d.Metrics.RecordStageRun(ctx, name, observability.OutcomeCommitted, time.Since(start))
}

func (d Dependencies) execute(ctx context.Context, logger *slog.Logger, name string, rec *jobs.Record, p plan) (outcome, error) {
	var ws *workspace.Workspace
	if p.scratch {
		var err error
		ws, err = d.Scratch.Acquire(ctx, name+"-"+rec.ID)
		if err != nil {
			return outcome{}, err
		}
		defer func() {
			if err := ws.Cleanup(); err != nil {
				logging.WarnWithContext(logger, "scratch cleanup failed", "scratch_cleanup_failed",
					logging.String("path", ws.Dir()),
					logging.Error(err),
					logging.Hint("remove the directory manually or wait for the stale sweep"),
					logging.Impact("disk space not reclaimed"),
				)
			}
		}()
	}
	return p.run(ctx, ws)
}

// compensate deletes an artifact whose commit failed. It returns the delete
// error, if any, so the caller can persist it beside the commit error.
func (d Dependencies) compensate(ctx context.Context, logger *slog.Logger, artifact string) error {
	if strings.TrimSpace(artifact) == "" {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	if err := d.Blobs.Delete(ctx, artifact); err != nil {
		logging.ErrorWithContext(logger, "artifact compensation failed", "stage_compensation_failed",
			logging.String("object_path", artifact),
			logging.Error(err),
			logging.Hint("delete the orphaned object manually"),
		)
		return err
	}
	logger.Info("artifact removed after failed commit",
		logging.Event("stage_compensated"),
		logging.String("object_path", artifact),
	)
	return nil
}

// fail persists cause (and compErr when set) on the record and moves it to
// error. It runs detached from ctx cancellation so a timed out stage still
// leaves a visible failure.
func (d Dependencies) fail(ctx context.Context, logger *slog.Logger, def definition, rec *jobs.Record, cause, compErr error) {
	ctx = context.WithoutCancel(ctx)
	message := services.FailureMessage(cause)
	logger.Error("stage failed",
		logging.Event("stage_failure"),
		logging.String("error_field", string(def.errorField())),
		logging.ErrorKind(cause),
		logging.Error(cause),
	)

	_, err := d.Store.Transition(ctx, rec.ID, def.Trigger(), func(r *jobs.Record) {
		r.SetFailed(def.errorField(), message)
		if compErr != nil {
			r.SetFailed(jobs.FieldCompensationError, services.FailureMessage(compErr))
		}
	})
	if err != nil {
		logging.ErrorWithContext(logger, "failed to persist stage failure", "stage_failure_persist_failed",
			logging.String("error_message", message),
			logging.Error(err),
			logging.Hint("inspect the job with `dubber jobs show`"),
		)
	}
}

func readiness(name string, ready func() error) stage.Health {
	if err := ready(); err != nil {
		return stage.Unhealthy(name, services.FailureMessage(err))
	}
	return stage.Healthy(name)
}
