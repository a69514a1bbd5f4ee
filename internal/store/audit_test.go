package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditAppendOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, RecordStructuralChange(ctx, s.DB(), "admin", "capability policy applied"))
	require.NoError(t, RecordStructuralChange(ctx, s.DB(), "admin", "field key rotated to version 2"))

	entries, err := ListStructuralChanges(ctx, s.DB())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2)

	last := entries[len(entries)-1]
	assert.Equal(t, "field key rotated to version 2", last.Command)
	assert.Equal(t, "capability policy applied", entries[len(entries)-2].Command)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].ID, entries[i-1].ID)
	}
}

func TestAuditLedgerIsImmutable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, RecordStructuralChange(ctx, s.DB(), "admin", "something happened"))
	before, err := ListStructuralChanges(ctx, s.DB())
	require.NoError(t, err)

	// The triggers reject any rewrite of history, regardless of caller.
	_, err = s.DB().ExecContext(ctx, `UPDATE audit_structural SET actor = 'mallory'`)
	assert.Error(t, err)
	_, err = s.DB().ExecContext(ctx, `DELETE FROM audit_structural`)
	assert.Error(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE audit_connection SET app_name = 'other'`)
	assert.Error(t, err)
	_, err = s.DB().ExecContext(ctx, `DELETE FROM audit_connection`)
	assert.Error(t, err)

	after, err := ListStructuralChanges(ctx, s.DB())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	connections, err := ListConnections(ctx, s.DB())
	require.NoError(t, err)
	assert.NotEmpty(t, connections)
}
