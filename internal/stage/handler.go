package stage

import (
	"context"

	"dubber/internal/jobs"
)

// Handler describes the contract the dispatcher needs from each stage.
// Process absorbs every failure: whatever goes wrong is either persisted on
// the job record or logged, never returned.
type Handler interface {
	Name() string
	Trigger() jobs.Status
	Matches(jobs.Change) bool
	Process(context.Context, jobs.Change)
	HealthCheck(context.Context) Health
}
