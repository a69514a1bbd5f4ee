package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/clinicvault/internal/cverr"
)

func TestOpenVersionAndCurrent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	attrs := map[string]any{"full_name": "Doc", "job_title": "gp"}
	require.NoError(t, OpenVersion(ctx, s.DB(), EntityStaff, "D1", attrs, "admin", t0))

	cur, err := CurrentVersion(ctx, s.DB(), EntityStaff, "D1")
	require.NoError(t, err)
	assert.True(t, cur.Open())
	assert.Equal(t, "admin", cur.Actor)
	assert.Equal(t, "Doc", cur.Attrs["full_name"])
	assert.Equal(t, t0, cur.ValidFrom)

	// A second open version for the same entity is refused.
	err = OpenVersion(ctx, s.DB(), EntityStaff, "D1", attrs, "admin", t0.Add(time.Hour))
	assert.Error(t, err)
}

func TestSupersedeKeepsSingleOpenVersion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(2 * time.Hour)
	require.NoError(t, OpenVersion(ctx, s.DB(), EntityAppointment, "A1",
		map[string]any{"diagnosis_cipher": ""}, "N2001", t0))
	require.NoError(t, Supersede(ctx, s.DB(), EntityAppointment, "A1",
		map[string]any{"diagnosis_cipher": "abc"}, "D1001", t1))

	cur, err := CurrentVersion(ctx, s.DB(), EntityAppointment, "A1")
	require.NoError(t, err)
	assert.Equal(t, "abc", cur.Attrs["diagnosis_cipher"])
	assert.Equal(t, t1, cur.ValidFrom)
	assert.Equal(t, "D1001", cur.Actor)

	// The first version is closed exactly where the second begins.
	prev, err := VersionAsOf(ctx, s.DB(), EntityAppointment, "A1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, prev.Open())
	assert.Equal(t, "", prev.Attrs["diagnosis_cipher"])
	assert.Equal(t, t1, prev.ValidTo)
}

func TestVersionAsOfBoundaries(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	require.NoError(t, OpenVersion(ctx, s.DB(), EntityPatient, "P1",
		map[string]any{"full_name_cipher": "v1"}, "admin", t0))
	require.NoError(t, Supersede(ctx, s.DB(), EntityPatient, "P1",
		map[string]any{"full_name_cipher": "v2"}, "admin", t1))

	// Before creation there is no version at all.
	_, err := VersionAsOf(ctx, s.DB(), EntityPatient, "P1", t0.Add(-time.Second))
	assert.ErrorIs(t, err, cverr.ErrNotFound)

	// Intervals are half-open: the boundary instant belongs to the newer one.
	v, err := VersionAsOf(ctx, s.DB(), EntityPatient, "P1", t0)
	require.NoError(t, err)
	assert.Equal(t, "v1", v.Attrs["full_name_cipher"])

	v, err = VersionAsOf(ctx, s.DB(), EntityPatient, "P1", t1)
	require.NoError(t, err)
	assert.Equal(t, "v2", v.Attrs["full_name_cipher"])
}

func TestCloseCurrentEndsHistory(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	require.NoError(t, OpenVersion(ctx, s.DB(), EntityAppointment, "A1",
		map[string]any{"diagnosis_cipher": ""}, "N2001", t0))
	require.NoError(t, CloseCurrent(ctx, s.DB(), EntityAppointment, "A1", t1))

	// No current version remains, but the closed interval is still queryable.
	_, err := CurrentVersion(ctx, s.DB(), EntityAppointment, "A1")
	assert.ErrorIs(t, err, cverr.ErrNotFound)

	v, err := VersionAsOf(ctx, s.DB(), EntityAppointment, "A1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, t1, v.ValidTo)

	// Closing again is a NotFound: there is nothing open to close.
	err = CloseCurrent(ctx, s.DB(), EntityAppointment, "A1", t1.Add(time.Hour))
	assert.ErrorIs(t, err, cverr.ErrNotFound)
}

func TestClosedVersionsAreImmutable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, OpenVersion(ctx, s.DB(), EntityStaff, "D1",
		map[string]any{"full_name": "Doc"}, "admin", t0))
	require.NoError(t, Supersede(ctx, s.DB(), EntityStaff, "D1",
		map[string]any{"full_name": "Doc Jr"}, "admin", t0.Add(time.Hour)))

	// Closed intervals reject rewrites at the schema level.
	_, err := s.DB().ExecContext(ctx,
		`UPDATE entity_versions SET attrs = '{}' WHERE entity_type = ? AND valid_to <> ?`,
		EntityStaff, openEnd)
	assert.Error(t, err)

	_, err = s.DB().ExecContext(ctx,
		`DELETE FROM entity_versions WHERE entity_type = ?`, EntityStaff)
	assert.Error(t, err)

	// History is intact after both rejected attempts.
	v, err := VersionAsOf(ctx, s.DB(), EntityStaff, "D1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "Doc", v.Attrs["full_name"])
}
