package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clinic.db")
	s, err := Open(context.Background(), path, "system", "localhost", "store-test")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRecordsSchemaAndConnection(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	structural, err := ListStructuralChanges(ctx, s.DB())
	require.NoError(t, err)
	assert.NotEmpty(t, structural, "schema creation is a structural change")
	for _, e := range structural {
		assert.Equal(t, "system", e.Actor)
	}

	connections, err := ListConnections(ctx, s.DB())
	require.NoError(t, err)
	require.Len(t, connections, 1)
	assert.Equal(t, "store-test", connections[0].AppName)
	assert.Equal(t, "localhost", connections[0].Host)
}

func TestReopenRecordsAnotherConnection(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clinic.db")

	s, err := Open(ctx, path, "system", "localhost", "first")
	require.NoError(t, err)
	before, err := ListStructuralChanges(ctx, s.DB())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, "system", "localhost", "second")
	require.NoError(t, err)
	defer s.Close()

	connections, err := ListConnections(ctx, s.DB())
	require.NoError(t, err)
	assert.Len(t, connections, 2)

	// Schema creation is only audited once; reopening is not a DDL event.
	after, err := ListStructuralChanges(ctx, s.DB())
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := InsertStaff(ctx, tx, StaffRow{
			ID: "D1", FullName: "Doc", JobTitle: "gp", CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	exists, err := StaffExists(ctx, s.DB(), "D1")
	require.NoError(t, err)
	assert.False(t, exists, "failed unit of work must leave no partial writes")
}

func TestKeyMaterialRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	has, err := s.HasKeyMaterial(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.PutKeyMaterial(ctx, "master_secret", []byte{1, 2, 3}))
	data, err := s.GetKeyMaterial(ctx, "master_secret")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	// Replacement is allowed for key material (re-keying), unlike audit rows.
	require.NoError(t, s.PutKeyMaterial(ctx, "master_secret", []byte{4}))
	data, err = s.GetKeyMaterial(ctx, "master_secret")
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, data)

	has, err = s.HasKeyMaterial(ctx)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestFieldKeyVersions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, _, err := s.CurrentFieldKey(ctx)
	require.Error(t, err)

	require.NoError(t, s.PutFieldKey(ctx, 1, []byte("wrapped-v1")))
	wrapped, version, err := s.CurrentFieldKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, []byte("wrapped-v1"), wrapped)

	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := InsertFieldKeyTx(ctx, tx, 2, []byte("wrapped-v2")); err != nil {
			return err
		}
		return RetireFieldKeysBelowTx(ctx, tx, 2)
	}))

	wrapped, version, err = s.CurrentFieldKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.Equal(t, []byte("wrapped-v2"), wrapped)
}

func TestQuickCheck(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	assert.NoError(t, s.QuickCheck(ctx))
}

func TestSnapshotInto(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, InsertStaff(ctx, s.DB(), StaffRow{
		ID: "D1", FullName: "Doc", JobTitle: "gp", CreatedAt: time.Now(),
	}))

	target := filepath.Join(t.TempDir(), "snap.db")
	require.NoError(t, s.SnapshotInto(ctx, target))

	copyStore, err := Open(ctx, target, "system", "localhost", "snapshot-test")
	require.NoError(t, err)
	defer copyStore.Close()

	exists, err := StaffExists(ctx, copyStore.DB(), "D1")
	require.NoError(t, err)
	assert.True(t, exists)
}
