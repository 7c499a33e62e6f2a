package jobs

import (
	"context"
	"fmt"
	"strings"

	"dubber/internal/services"
)

// Claim records that stage has started for job id. It succeeds at most once
// per (job, stage) and only while the record is still at trigger, so two
// deliveries of the same change cannot both run the stage. The boolean is
// false when another invocation already holds the claim or the record has
// moved on.
func (s *Store) Claim(ctx context.Context, id, stage string, trigger Status) (bool, error) {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return false, services.Wrap(services.ErrValidation, "jobs", "claim", "stage required", nil)
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO stage_claims (job_id, stage, claimed_at)
         SELECT id, ?, ? FROM jobs WHERE id = ? AND status = ?`,
		stage,
		formatTime(s.now()),
		id,
		trigger,
	)
	if err != nil {
		return false, fmt.Errorf("claim stage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// Claims lists the stages claimed for job id.
func (s *Store) Claims(ctx context.Context, id string) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT stage FROM stage_claims WHERE job_id = ? ORDER BY claimed_at, stage`, id)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var stages []string
	for rows.Next() {
		var stage string
		if err := rows.Scan(&stage); err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}
