package store

import (
	"context"
	"fmt"

	"github.com/hengadev/clinicvault/internal/cverr"
)

// QuickCheck verifies storage integrity. It is the blocking precondition for
// a backup: any reported corruption or dangling foreign key aborts before a
// snapshot is taken.
func (s *Store) QuickCheck(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&result); err != nil {
		return fmt.Errorf("failed to run quick_check: %w", err)
	}
	if result != "ok" {
		return cverr.NewIntegrityError(fmt.Sprintf("quick_check reported: %s", result))
	}

	rows, err := s.db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("failed to run foreign_key_check: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		return cverr.NewIntegrityError("foreign_key_check reported dangling references")
	}
	return rows.Err()
}

// SnapshotInto writes a point-in-time consistent copy of the whole database
// to the given path using VACUUM INTO.
func (s *Store) SnapshotInto(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}
