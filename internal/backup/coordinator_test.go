package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/clinicvault/internal/cverr"
	"github.com/hengadev/clinicvault/internal/keyring"
	"github.com/hengadev/clinicvault/internal/store"
)

var (
	rootPass   = []byte("root passphrase for tests")
	backupPass = []byte("backup passphrase, a different secret")
)

// cheapParams keeps Argon2 fast in tests.
func cheapParams() *keyring.Argon2Params {
	return &keyring.Argon2Params{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestSystem(t *testing.T) (*store.Store, *keyring.Manager, *Coordinator) {
	t.Helper()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "clinic.db")
	s, err := store.Open(ctx, dbPath, "system", "localhost", "backup-test")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	guard, err := keyring.NewPassphraseGuard(rootPass, cheapParams())
	require.NoError(t, err)
	manager, err := keyring.Initialize(ctx, s, guard)
	require.NoError(t, err)

	artifacts, err := NewLocalStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)

	return s, manager, New(s, manager, artifacts, cheapParams())
}

func TestRunFullBackupProducesCompleteSet(t *testing.T) {
	ctx := context.Background()
	_, _, coord := newTestSystem(t)

	artifact, err := coord.RunFullBackup(ctx, backupPass)
	require.NoError(t, err)

	assert.Equal(t, SystemName, artifact.System)
	require.Len(t, artifact.Objects, 4)
	for _, kind := range []string{KindFullData, KindAuditLog, KindMasterKey, KindIdentityKey} {
		name := artifact.Objects[kind]
		require.NotEmpty(t, name, kind)
		assert.Contains(t, name, SystemName+"-"+kind+"-")

		data, err := coord.artifacts.Get(ctx, name)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}
}

func TestRunFullBackupRequiresPassphrase(t *testing.T) {
	ctx := context.Background()
	_, _, coord := newTestSystem(t)

	_, err := coord.RunFullBackup(ctx, nil)
	assert.ErrorIs(t, err, cverr.ErrIntegrity)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, manager, coord := newTestSystem(t)

	// A protected field written before the backup must decrypt after restore.
	session, err := manager.OpenSession(ctx)
	require.NoError(t, err)
	cipher, err := session.Encrypt("Maria Keller")
	require.NoError(t, err)
	require.NoError(t, session.Close())
	require.NoError(t, store.InsertPatient(ctx, s.DB(), store.PatientRow{
		ID: "P3001", FullNameCipher: cipher, CreatedAt: time.Now(),
	}))

	artifact, err := coord.RunFullBackup(ctx, backupPass)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "restored.db")
	restored, restoredKeys, err := Restore(ctx, coord.artifacts, artifact, target, rootPass, backupPass, cheapParams())
	require.NoError(t, err)
	defer restored.Close()

	patients, err := store.ListPatients(ctx, restored.DB())
	require.NoError(t, err)
	require.Len(t, patients, 1)

	restoredSession, err := restoredKeys.OpenSession(ctx)
	require.NoError(t, err)
	defer restoredSession.Discard()
	name, err := restoredSession.Decrypt(patients[0].FullNameCipher)
	require.NoError(t, err)
	assert.Equal(t, "Maria Keller", name)
}

func TestRestoreWrongBackupPassphrase(t *testing.T) {
	ctx := context.Background()
	_, _, coord := newTestSystem(t)

	artifact, err := coord.RunFullBackup(ctx, backupPass)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "restored.db")
	_, _, err = Restore(ctx, coord.artifacts, artifact, target, rootPass, []byte("wrong"), cheapParams())
	require.Error(t, err)

	// Keys are recovered before data: a failed unwrap leaves no database file.
	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRestoreRefusesExistingTarget(t *testing.T) {
	ctx := context.Background()
	_, _, coord := newTestSystem(t)

	artifact, err := coord.RunFullBackup(ctx, backupPass)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, os.WriteFile(target, []byte("occupied"), 0o600))

	_, _, err = Restore(ctx, coord.artifacts, artifact, target, rootPass, backupPass, cheapParams())
	assert.Error(t, err)
}

func TestLocalStoreRefusesOverwrite(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocalStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)

	require.NoError(t, l.Put(ctx, "obj", []byte("first")))
	assert.Error(t, l.Put(ctx, "obj", []byte("second")))

	data, err := l.Get(ctx, "obj")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
}
