package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Artifact kinds. Every backup run produces one object of each kind, named
// system + kind + timestamp so a set can be matched up externally.
const (
	KindFullData    = "full"
	KindAuditLog    = "log"
	KindMasterKey   = "master-key"
	KindIdentityKey = "identity-key"
)

// Artifact describes one immutable backup set: the data snapshot, the audit
// log snapshot and the two key exports, each independently wrapped under the
// backup passphrase.
type Artifact struct {
	ID        uuid.UUID
	System    string
	CreatedAt time.Time
	Objects   map[string]string // kind -> object name in the artifact store
}

// ArtifactStore persists backup objects. Objects are immutable once written.
// Implemented by the local directory store and the S3 provider.
type ArtifactStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// LocalStore writes artifacts to a directory on the local filesystem.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed and returns a store over it.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Put writes an object. Overwriting an existing artifact is refused.
func (l *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	path := filepath.Join(l.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create artifact object '%s': %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write artifact object '%s': %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close artifact object '%s': %w", name, err)
	}
	return nil
}

// Get reads an object back.
func (l *LocalStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact object '%s': %w", name, err)
	}
	return data, nil
}
