package jobs

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// migrations[i] moves a database from user_version i to i+1.
var migrations = []string{
	schemaSQL,
}

// ErrSchemaMismatch means the database was written by a newer build.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// initSchema applies every pending migration inside one transaction and
// records the result in PRAGMA user_version.
func (s *Store) initSchema(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	target := len(migrations)
	switch {
	case current == target:
		return nil
	case current > target:
		return fmt.Errorf("%w: %s is at version %d, this build knows %d", ErrSchemaMismatch, s.path, current, target)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for v := current; v < target; v++ {
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			return fmt.Errorf("migrate to version %d: %w", v+1, err)
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
		return fmt.Errorf("record user_version: %w", err)
	}
	return tx.Commit()
}
