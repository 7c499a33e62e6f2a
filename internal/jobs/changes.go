package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func insertChange(ctx context.Context, tx *sql.Tx, jobID string, kind ChangeKind, before, after any, at time.Time) error {
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO job_changes (job_id, kind, before_json, after_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		jobID,
		kind,
		before,
		after,
		formatTime(at),
	); err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	return nil
}

// PendingChanges returns up to limit undelivered changes in feed order.
func (s *Store) PendingChanges(ctx context.Context, limit int) ([]Change, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT seq, job_id, kind, before_json, after_json, created_at
         FROM job_changes WHERE delivered_at IS NULL ORDER BY seq LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending changes: %w", err)
	}
	defer rows.Close()

	var changes []Change
	for rows.Next() {
		var (
			change     Change
			kind       string
			beforeRaw  sql.NullString
			afterRaw   sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&change.Seq, &change.JobID, &kind, &beforeRaw, &afterRaw, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		change.Kind = ChangeKind(kind)
		if change.Before, err = decodeSnapshot(beforeRaw); err != nil {
			return nil, fmt.Errorf("change %d: %w", change.Seq, err)
		}
		if change.After, err = decodeSnapshot(afterRaw); err != nil {
			return nil, fmt.Errorf("change %d: %w", change.Seq, err)
		}
		if change.After != nil {
			change.UserID = change.After.UserID
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			change.CreatedAt = created
		}
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

// MarkDelivered stamps the given changes as handed off.
func (s *Store) MarkDelivered(ctx context.Context, seqs ...int64) error {
	if len(seqs) == 0 {
		return nil
	}
	args := make([]any, 0, len(seqs)+1)
	args = append(args, formatTime(s.now()))
	for _, seq := range seqs {
		args = append(args, seq)
	}
	query := `UPDATE job_changes SET delivered_at = ? WHERE delivered_at IS NULL AND seq IN (` + makePlaceholders(len(seqs)) + `)`
	if _, err := s.execWithRetry(ctx, query, args...); err != nil {
		return fmt.Errorf("mark changes delivered: %w", err)
	}
	return nil
}

// PruneDelivered deletes delivered changes older than cutoff.
func (s *Store) PruneDelivered(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM job_changes WHERE delivered_at IS NOT NULL AND delivered_at < ?`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune delivered changes: %w", err)
	}
	return res.RowsAffected()
}
