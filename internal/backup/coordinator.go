package backup

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hengadev/errsx"

	"github.com/hengadev/clinicvault/internal/cverr"
	"github.com/hengadev/clinicvault/internal/keyring"
	"github.com/hengadev/clinicvault/internal/security"
	"github.com/hengadev/clinicvault/internal/store"
)

// SystemName prefixes every artifact object name.
const SystemName = "clinicvault"

// Coordinator produces and restores backup artifact sets. A set is generated
// from one consistency-checked point: the integrity check is a blocking
// precondition and fails the run before any snapshot is taken.
type Coordinator struct {
	store     *store.Store
	keys      *keyring.Manager
	artifacts ArtifactStore
	params    *keyring.Argon2Params
}

// New creates a coordinator over the given store, key manager and artifact
// destination.
func New(s *store.Store, keys *keyring.Manager, artifacts ArtifactStore, params *keyring.Argon2Params) *Coordinator {
	if params == nil {
		params = keyring.DefaultArgon2Params()
	}
	return &Coordinator{store: s, keys: keys, artifacts: artifacts, params: params}
}

// logSnapshot is the serialized form of the incremental audit log export.
type logSnapshot struct {
	Structural  []store.AuditEntry `json:"structural"`
	Connections []store.AuditEntry `json:"connections"`
}

// RunFullBackup produces a complete artifact set: integrity check, full data
// snapshot, audit log snapshot, then the master-secret and identity-key
// exports. Everything is wrapped under the backup passphrase, which is an
// explicit, externally supplied secret distinct from the operational root
// passphrase; it is never derived from it and never defaulted.
func (c *Coordinator) RunFullBackup(ctx context.Context, backupPassphrase []byte) (*Artifact, error) {
	if len(backupPassphrase) == 0 {
		return nil, cverr.NewIntegrityError("backup passphrase must be supplied")
	}

	// Fail fast: no partial artifact set is ever written after a failed check.
	if err := c.store.QuickCheck(ctx); err != nil {
		return nil, err
	}

	wrapper, err := keyring.NewPassphraseGuard(backupPassphrase, c.params)
	if err != nil {
		return nil, err
	}
	defer wrapper.Destroy()

	now := time.Now().UTC()
	stamp := now.Format("20060102T150405Z")

	artifact := &Artifact{
		ID:        uuid.New(),
		System:    SystemName,
		CreatedAt: now,
		Objects:   make(map[string]string),
	}

	snapshot, err := c.snapshotData(ctx)
	if err != nil {
		return nil, err
	}

	logDump, err := c.snapshotLog(ctx)
	if err != nil {
		return nil, err
	}

	master, identityPriv, err := c.keys.ExportLayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export key layers: %w", err)
	}
	defer security.ZeroBytes(master)
	defer security.ZeroBytes(identityPriv)

	// Each object is wrapped independently; a fresh salt per object.
	objects := []struct {
		kind string
		data []byte
	}{
		{KindFullData, snapshot},
		{KindAuditLog, logDump},
		{KindMasterKey, master},
		{KindIdentityKey, identityPriv},
	}

	errs := make(errsx.Map)
	for _, obj := range objects {
		wrapped, err := wrapper.Wrap(ctx, obj.data)
		if err != nil {
			errs.Set("wrap "+obj.kind, err)
			continue
		}
		name := fmt.Sprintf("%s-%s-%s", SystemName, obj.kind, stamp)
		if err := c.artifacts.Put(ctx, name, wrapped); err != nil {
			errs.Set("store "+obj.kind, err)
			continue
		}
		artifact.Objects[obj.kind] = name
	}
	if !errs.IsEmpty() {
		return nil, fmt.Errorf("backup artifact set incomplete: %w", errs.AsError())
	}

	log.Printf("backup %s complete: %d objects at %s", artifact.ID, len(artifact.Objects), stamp)
	return artifact, nil
}

// snapshotData writes a point-in-time copy of the database and returns its
// raw bytes.
func (c *Coordinator) snapshotData(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "clinicvault-backup-")
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "full.db")
	if err := c.store.SnapshotInto(ctx, path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

// snapshotLog exports both audit tables as JSON.
func (c *Coordinator) snapshotLog(ctx context.Context) ([]byte, error) {
	structural, err := store.ListStructuralChanges(ctx, c.store.DB())
	if err != nil {
		return nil, err
	}
	connections, err := store.ListConnections(ctx, c.store.DB())
	if err != nil {
		return nil, err
	}
	return json.Marshal(logSnapshot{Structural: structural, Connections: connections})
}

// Restore rebuilds a working instance from an artifact set. Key layers are
// unwrapped before any data is laid down, so a wrong backup passphrase fails
// the restore before a database file exists, and protected fields are
// decryptable the moment the restored store opens.
func Restore(ctx context.Context, artifacts ArtifactStore, artifact *Artifact, targetDBPath string, rootPassphrase, backupPassphrase []byte, params *keyring.Argon2Params) (*store.Store, *keyring.Manager, error) {
	if params == nil {
		params = keyring.DefaultArgon2Params()
	}
	wrapper, err := keyring.NewPassphraseGuard(backupPassphrase, params)
	if err != nil {
		return nil, nil, err
	}
	defer wrapper.Destroy()

	// Keys first.
	master, err := fetchAndUnwrap(ctx, artifacts, wrapper, artifact.Objects[KindMasterKey])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to recover master secret export: %w", err)
	}
	defer security.ZeroBytes(master)

	identityPriv, err := fetchAndUnwrap(ctx, artifacts, wrapper, artifact.Objects[KindIdentityKey])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to recover identity key export: %w", err)
	}
	defer security.ZeroBytes(identityPriv)

	// Then data.
	snapshot, err := fetchAndUnwrap(ctx, artifacts, wrapper, artifact.Objects[KindFullData])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to recover data snapshot: %w", err)
	}
	if _, err := os.Stat(targetDBPath); err == nil {
		return nil, nil, fmt.Errorf("restore target '%s' already exists", targetDBPath)
	}
	if err := os.WriteFile(targetDBPath, snapshot, 0o600); err != nil {
		return nil, nil, fmt.Errorf("failed to write restored database: %w", err)
	}

	restored, err := store.Open(ctx, targetDBPath, "system", "localhost", "clinicvault-restore")
	if err != nil {
		return nil, nil, err
	}

	rootGuard, err := keyring.NewPassphraseGuard(rootPassphrase, params)
	if err != nil {
		restored.Close()
		return nil, nil, err
	}
	manager, err := keyring.Open(ctx, restored, rootGuard)
	if err != nil {
		restored.Close()
		return nil, nil, err
	}

	// The snapshot and the key exports must restore to a mutually consistent
	// state: the master secret inside the restored store has to match the
	// exported one.
	restoredMaster, restoredIdentity, err := manager.ExportLayers(ctx)
	if err != nil {
		restored.Close()
		return nil, nil, err
	}
	defer security.ZeroBytes(restoredMaster)
	defer security.ZeroBytes(restoredIdentity)

	errs := make(errsx.Map)
	if subtle.ConstantTimeCompare(master, restoredMaster) != 1 {
		errs.Set("master secret", "export does not match restored store")
	}
	if subtle.ConstantTimeCompare(identityPriv, restoredIdentity) != 1 {
		errs.Set("identity key", "export does not match restored store")
	}
	if !errs.IsEmpty() {
		restored.Close()
		return nil, nil, cverr.NewIntegrityError(errs.AsError().Error())
	}

	log.Printf("restore of backup %s complete at %s", artifact.ID, targetDBPath)
	return restored, manager, nil
}

func fetchAndUnwrap(ctx context.Context, artifacts ArtifactStore, wrapper *keyring.PassphraseGuard, name string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("artifact set is missing an object")
	}
	wrapped, err := artifacts.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return wrapper.Unwrap(ctx, wrapped)
}
