package clinicvault

import (
	"context"
	"fmt"
	"time"

	"github.com/hengadev/clinicvault/internal/backup"
	"github.com/hengadev/clinicvault/internal/capability"
	"github.com/hengadev/clinicvault/internal/cverr"
	"github.com/hengadev/clinicvault/internal/keyring"
	"github.com/hengadev/clinicvault/internal/store"
)

// Gateway is the sole entry point for reads and writes. Every operation
// resolves the caller's role through the capability directory and rejects
// anything not explicitly granted before touching storage or key material.
// Each operation runs in a single transaction; a failure at any point rolls
// the whole unit of work back.
type Gateway struct {
	store     *store.Store
	keys      *keyring.Manager
	directory *capability.Directory
	backups   *backup.Coordinator
	artifacts backup.ArtifactStore
	keyParams *keyring.Argon2Params
	now       func() time.Time
}

// Option customizes Gateway construction.
type Option func(*Gateway)

// WithArtifactStore routes backup artifacts to the given store (e.g. the S3
// provider) instead of the local backup directory.
func WithArtifactStore(s backup.ArtifactStore) Option {
	return func(g *Gateway) { g.artifacts = s }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithKeyParams overrides the Argon2id cost parameters used for the root and
// backup passphrase wrapping. Lowering them outside of tests weakens the
// hierarchy's outermost layer.
func WithKeyParams(params *keyring.Argon2Params) Option {
	return func(g *Gateway) { g.keyParams = params }
}

// New opens the store, unwraps (or on first boot creates) the key hierarchy
// under the root passphrase, and loads the capability policy. The root
// passphrase is held by the operator and never stored; a wrong passphrase
// fails here with a key state error.
func New(ctx context.Context, cfg Config, rootPassphrase []byte, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	dbFile, err := cfg.databaseFile()
	if err != nil {
		return nil, err
	}

	g := &Gateway{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}

	s, err := store.Open(ctx, dbFile, "system", cfg.Host, cfg.AppName)
	if err != nil {
		return nil, err
	}

	rootGuard, err := keyring.NewPassphraseGuard(rootPassphrase, g.keyParams)
	if err != nil {
		s.Close()
		return nil, err
	}

	initialized, err := s.HasKeyMaterial(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	var keys *keyring.Manager
	if initialized {
		keys, err = keyring.Open(ctx, s, rootGuard)
	} else {
		keys, err = keyring.Initialize(ctx, s, rootGuard)
	}
	if err != nil {
		s.Close()
		return nil, err
	}

	directory := capability.DefaultPolicy()
	if cfg.PolicyPath != "" {
		directory, err = capability.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			s.Close()
			return nil, err
		}
		// A capability mapping change is a structural change.
		if err := store.RecordStructuralChange(ctx, s.DB(), "system",
			fmt.Sprintf("capability policy applied from %s", cfg.PolicyPath)); err != nil {
			s.Close()
			return nil, err
		}
	}

	g.store = s
	g.keys = keys
	g.directory = directory
	if g.artifacts == nil {
		local, err := backup.NewLocalStore(cfg.BackupDir)
		if err != nil {
			s.Close()
			return nil, err
		}
		g.artifacts = local
	}
	g.backups = backup.New(s, keys, g.artifacts, g.keyParams)
	return g, nil
}

// RegisterPrincipal binds a principal to a role. Provisioning-time only.
func (g *Gateway) RegisterPrincipal(principalID string, role Role) error {
	return g.directory.RegisterPrincipal(principalID, role)
}

// Close releases the underlying store.
func (g *Gateway) Close() error {
	return g.store.Close()
}

// authorize resolves the principal's role and checks the capability grant.
// On denial the operation has performed no side effects.
func (g *Gateway) authorize(principal, operation string) (capability.Role, error) {
	role, err := g.directory.ResolveRole(principal)
	if err != nil {
		return "", err
	}
	if !g.directory.IsPermitted(role, operation) {
		return "", cverr.NewPermissionDeniedError(string(role), operation)
	}
	return role, nil
}
