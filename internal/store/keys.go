package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hengadev/clinicvault/internal/cverr"
)

// The Store doubles as the keyring's persistence layer: wrapped key material
// lives next to the data it protects so that one consistent snapshot carries
// both. Only wrapped forms are ever stored.

// GetKeyMaterial loads a named wrapped key layer.
func (s *Store) GetKeyMaterial(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM key_material WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cverr.NewNotFoundError("key material", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load key material '%s': %w", name, err)
	}
	return data, nil
}

// PutKeyMaterial stores a named wrapped key layer, replacing any prior value.
func (s *Store) PutKeyMaterial(ctx context.Context, name string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO key_material (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		name, data, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store key material '%s': %w", name, err)
	}
	return nil
}

// HasKeyMaterial reports whether the key hierarchy has been initialized.
func (s *Store) HasKeyMaterial(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM key_material`).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check key material: %w", err)
	}
	return count > 0, nil
}

// CurrentFieldKey returns the highest non-retired field key version.
func (s *Store) CurrentFieldKey(ctx context.Context) ([]byte, int, error) {
	var wrapped []byte
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT wrapped, version FROM field_keys WHERE retired = 0 ORDER BY version DESC LIMIT 1`,
	).Scan(&wrapped, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, cverr.NewNotFoundError("field key", "current")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load current field key: %w", err)
	}
	return wrapped, version, nil
}

// PutFieldKey records a new wrapped field key version.
func (s *Store) PutFieldKey(ctx context.Context, version int, wrapped []byte) error {
	return insertFieldKey(ctx, s.db, version, wrapped)
}

// InsertFieldKeyTx records a new wrapped field key version inside the
// caller's transaction, used by rotation.
func InsertFieldKeyTx(ctx context.Context, tx *sql.Tx, version int, wrapped []byte) error {
	return insertFieldKey(ctx, tx, version, wrapped)
}

// RetireFieldKeysBelowTx marks every field key version below the given one
// retired, inside the caller's transaction. Rotation calls this only after
// every protected field has been re-encrypted under the new version.
func RetireFieldKeysBelowTx(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx, `UPDATE field_keys SET retired = 1 WHERE version < ?`, version)
	if err != nil {
		return fmt.Errorf("failed to retire field keys: %w", err)
	}
	return nil
}

func insertFieldKey(ctx context.Context, q querier, version int, wrapped []byte) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO field_keys (version, wrapped, retired, created_at) VALUES (?, ?, 0, ?)`,
		version, wrapped, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store field key version %d: %w", version, err)
	}
	return nil
}
