package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dubber/internal/services"
)

// ValidateUserID rejects user IDs that cannot stand as one object path
// segment. Artifact paths locate the upload folder by segment position, so a
// separator in the user ID would make uploads share a folder.
func ValidateUserID(userID string) error {
	switch {
	case userID == "":
		return services.Wrap(services.ErrValidation, "jobs", "validate user", "user id required", nil)
	case userID == "." || userID == "..", strings.ContainsAny(userID, `/\`):
		return services.Wrap(services.ErrValidation, "jobs", "validate user",
			fmt.Sprintf("user id %q must not contain path separators or be a relative path segment", userID), nil)
	}
	return nil
}

// Create inserts a new record with status uploaded and appends a create
// change to the feed in the same transaction.
func (s *Store) Create(ctx context.Context, job NewJob) (*Record, error) {
	job.ID = strings.TrimSpace(job.ID)
	job.UserID = strings.TrimSpace(job.UserID)
	job.FilePath = strings.TrimSpace(job.FilePath)
	job.LanguageToDub = strings.TrimSpace(job.LanguageToDub)
	if err := ValidateUserID(job.UserID); err != nil {
		return nil, err
	}
	if job.FilePath == "" {
		return nil, services.Wrap(services.ErrValidation, "jobs", "create", "file path required", nil)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	now := s.now()
	record := &Record{
		ID:            job.ID,
		UserID:        job.UserID,
		Status:        StatusUploaded,
		FilePath:      job.FilePath,
		LanguageToDub: job.LanguageToDub,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	after, err := encodeSnapshot(record)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO jobs (id, user_id, status, file_path, language_to_dub, version, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID,
			record.UserID,
			record.Status,
			record.FilePath,
			nullableString(record.LanguageToDub),
			record.Version,
			formatTime(now),
			formatTime(now),
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return insertChange(ctx, tx, record.ID, ChangeCreate, nil, after, now)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Get fetches a record by id. Missing records report ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM jobs WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %q: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return record, nil
}

// List returns records matching filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Record, error) {
	ctx = ensureContext(ctx)
	var (
		clauses []string
		args    []any
	)
	if user := strings.TrimSpace(filter.UserID); user != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, user)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	query := `SELECT ` + recordColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return scanRecords(rows)
}

// Transition applies mutate to the record identified by id and persists the
// result, provided the record is still at status from. It rejects status
// changes CanTransition forbids and any change to the identity fields. The
// write is a compare-and-swap on version; losing the race reports
// ErrConflict. An update change carrying both snapshots is appended in the
// same transaction.
func (s *Store) Transition(ctx context.Context, id string, from Status, mutate func(*Record)) (*Record, error) {
	if mutate == nil {
		return nil, services.Wrap(services.ErrValidation, "jobs", "transition", "mutate function required", nil)
	}
	ctx = ensureContext(ctx)

	var result *Record
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM jobs WHERE id = ?`, id)
		before, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job %q: %w", id, services.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load job: %w", err)
		}
		if before.Status != from {
			return services.Wrap(services.ErrConflict, "jobs", "transition",
				fmt.Sprintf("job %s is %s, expected %s", id, before.Status, from), nil)
		}

		after := before.Clone()
		mutate(after)
		if err := validateMutation(before, after); err != nil {
			return err
		}

		now := s.now()
		after.Version = before.Version + 1
		after.UpdatedAt = now

		res, err := tx.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, transcript = ?, transcript_path = ?, detected_language = ?, translation = ?,
                 synthesized_audio_path = ?, aligned_audio_path = ?, error = ?, translation_error = ?,
                 synthesis_error = ?, alignment_error = ?, compensation_error = ?, version = ?, updated_at = ?
             WHERE id = ? AND status = ? AND version = ?`,
			after.Status,
			nullableString(after.Transcript),
			nullableString(after.TranscriptPath),
			nullableString(after.DetectedLanguage),
			nullableString(after.Translation),
			nullableString(after.SynthesizedAudioPath),
			nullableString(after.AlignedAudioPath),
			nullableString(after.Error),
			nullableString(after.TranslationError),
			nullableString(after.SynthesisError),
			nullableString(after.AlignmentError),
			nullableString(after.CompensationError),
			after.Version,
			formatTime(now),
			id,
			before.Status,
			before.Version,
		)
		if err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected != 1 {
			return services.Wrap(services.ErrConflict, "jobs", "transition",
				fmt.Sprintf("job %s changed concurrently", id), nil)
		}

		beforeJSON, err := encodeSnapshot(before)
		if err != nil {
			return err
		}
		afterJSON, err := encodeSnapshot(after)
		if err != nil {
			return err
		}
		if err := insertChange(ctx, tx, id, ChangeUpdate, beforeJSON, afterJSON, now); err != nil {
			return err
		}
		result = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validateMutation(before, after *Record) error {
	switch {
	case after.ID != before.ID:
		return services.Wrap(services.ErrValidation, "jobs", "transition", "id is immutable", nil)
	case after.UserID != before.UserID:
		return services.Wrap(services.ErrValidation, "jobs", "transition", "userId is immutable", nil)
	case after.FilePath != before.FilePath:
		return services.Wrap(services.ErrValidation, "jobs", "transition", "filePath is immutable", nil)
	case after.LanguageToDub != before.LanguageToDub:
		return services.Wrap(services.ErrValidation, "jobs", "transition", "languageToDub is immutable", nil)
	}
	if after.Status != before.Status && !CanTransition(before.Status, after.Status) {
		return services.Wrap(services.ErrValidation, "jobs", "transition",
			fmt.Sprintf("illegal transition %s -> %s", before.Status, after.Status), nil)
	}
	return nil
}

// Stalled returns non-terminal records not updated since cutoff, oldest first.
func (s *Store) Stalled(ctx context.Context, cutoff time.Time) ([]*Record, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM jobs WHERE status NOT IN (?, ?) AND updated_at < ? ORDER BY updated_at`,
		StatusAligned,
		StatusError,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("query stalled jobs: %w", err)
	}
	return scanRecords(rows)
}

// Counts returns the number of records per status.
func (s *Store) Counts(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
