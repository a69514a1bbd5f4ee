package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hengadev/clinicvault/internal/cverr"
)

// openEnd is the sentinel valid_to of the single open version per entity.
const openEnd = int64(math.MaxInt64)

// Version is one interval-tagged snapshot of an entity's attributes, valid
// over [ValidFrom, ValidTo). The open version has ValidTo equal to the
// sentinel far future.
type Version struct {
	ID         int64
	EntityType string
	EntityID   string
	Attrs      map[string]any
	ValidFrom  time.Time
	ValidTo    time.Time
	Actor      string
}

// Open reports whether this is the entity's current open version.
func (v *Version) Open() bool {
	return v.ValidTo.UnixNano() == openEnd
}

// OpenVersion starts version history for an entity: inserts an open version
// beginning at the given instant. The entity must not already have an open
// version.
func OpenVersion(ctx context.Context, q querier, entityType, entityID string, attrs map[string]any, actor string, at time.Time) error {
	cur, err := CurrentVersion(ctx, q, entityType, entityID)
	if err == nil && cur != nil {
		return fmt.Errorf("entity %s/%s already has an open version", entityType, entityID)
	}

	blob, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode version attributes: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO entity_versions (entity_type, entity_id, attrs, valid_from, valid_to, actor)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entityType, entityID, string(blob), at.UTC().UnixNano(), openEnd, actor)
	if err != nil {
		return fmt.Errorf("failed to open version: %w", err)
	}
	return nil
}

// Supersede atomically closes the entity's open version at the given instant
// and opens a new one with the supplied attributes. Fails with NotFound if
// the entity has no open version.
func Supersede(ctx context.Context, q querier, entityType, entityID string, attrs map[string]any, actor string, at time.Time) error {
	if err := CloseCurrent(ctx, q, entityType, entityID, at); err != nil {
		return err
	}
	blob, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode version attributes: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO entity_versions (entity_type, entity_id, attrs, valid_from, valid_to, actor)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entityType, entityID, string(blob), at.UTC().UnixNano(), openEnd, actor)
	if err != nil {
		return fmt.Errorf("failed to open superseding version: %w", err)
	}
	return nil
}

// CloseCurrent closes the entity's open version without opening a new one,
// used when the entity itself is deleted.
func CloseCurrent(ctx context.Context, q querier, entityType, entityID string, at time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE entity_versions SET valid_to = ? WHERE entity_type = ? AND entity_id = ? AND valid_to = ?`,
		at.UTC().UnixNano(), entityType, entityID, openEnd)
	if err != nil {
		return fmt.Errorf("failed to close open version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close open version: %w", err)
	}
	if affected == 0 {
		return cverr.NewNotFoundError("open version for entity", entityType+"/"+entityID)
	}
	return nil
}

// CurrentVersion returns the entity's open version, or NotFound if the
// entity does not exist (or no longer exists).
func CurrentVersion(ctx context.Context, q querier, entityType, entityID string) (*Version, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, attrs, valid_from, valid_to, actor FROM entity_versions
		 WHERE entity_type = ? AND entity_id = ? AND valid_to = ?`,
		entityType, entityID, openEnd)
	return scanVersion(row, entityType, entityID)
}

// VersionAsOf returns the unique version whose interval contains the given
// instant, or NotFound if the entity did not exist then.
func VersionAsOf(ctx context.Context, q querier, entityType, entityID string, at time.Time) (*Version, error) {
	t := at.UTC().UnixNano()
	row := q.QueryRowContext(ctx,
		`SELECT id, attrs, valid_from, valid_to, actor FROM entity_versions
		 WHERE entity_type = ? AND entity_id = ? AND valid_from <= ? AND valid_to > ?`,
		entityType, entityID, t, t)
	return scanVersion(row, entityType, entityID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner, entityType, entityID string) (*Version, error) {
	v := &Version{EntityType: entityType, EntityID: entityID}
	var blob string
	var from, to int64
	err := row.Scan(&v.ID, &blob, &from, &to, &v.Actor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cverr.NewNotFoundError("version for entity", entityType+"/"+entityID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan version: %w", err)
	}
	if err := json.Unmarshal([]byte(blob), &v.Attrs); err != nil {
		return nil, fmt.Errorf("failed to decode version attributes: %w", err)
	}
	v.ValidFrom = time.Unix(0, from).UTC()
	v.ValidTo = time.Unix(0, to).UTC()
	return v, nil
}
