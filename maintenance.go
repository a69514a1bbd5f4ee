package clinicvault

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hengadev/clinicvault/internal/backup"
	"github.com/hengadev/clinicvault/internal/capability"
	"github.com/hengadev/clinicvault/internal/keyring"
	"github.com/hengadev/clinicvault/internal/store"
)

// RotateFieldKey replaces the symmetric field key. Every existing protected
// field is re-encrypted under the new key inside one transaction before the
// old key is retired; if anything fails, the old key stays current and no
// ciphertext changes. The rotation is recorded as a structural change.
func (g *Gateway) RotateFieldKey(ctx context.Context, principal string) error {
	if _, err := g.authorize(principal, capability.OpRotateFieldKey); err != nil {
		return err
	}

	oldSession, err := g.keys.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer oldSession.Discard()

	staged, err := g.keys.StageFieldKey(ctx)
	if err != nil {
		return err
	}
	defer staged.Session.Discard()

	return g.store.WithTx(ctx, func(tx *sql.Tx) error {
		patients, err := store.ListPatients(ctx, tx)
		if err != nil {
			return err
		}
		for _, p := range patients {
			reencrypted, err := reencrypt(oldSession, staged.Session, p.FullNameCipher)
			if err != nil {
				return fmt.Errorf("patient '%s': %w", p.ID, err)
			}
			if err := store.UpdatePatientName(ctx, tx, p.ID, reencrypted); err != nil {
				return err
			}
		}

		appts, err := store.ListAppointmentsWithDiagnoses(ctx, tx)
		if err != nil {
			return err
		}
		for _, a := range appts {
			reencrypted, err := reencrypt(oldSession, staged.Session, a.DiagnosisCipher)
			if err != nil {
				return fmt.Errorf("appointment '%s': %w", a.ID, err)
			}
			if err := store.UpdateAppointmentDiagnosis(ctx, tx, a.ID, reencrypted); err != nil {
				return err
			}
		}

		if err := store.InsertFieldKeyTx(ctx, tx, staged.Version, staged.Wrapped); err != nil {
			return err
		}
		if err := store.RetireFieldKeysBelowTx(ctx, tx, staged.Version); err != nil {
			return err
		}
		return store.RecordStructuralChange(ctx, tx, principal,
			fmt.Sprintf("field key rotated to version %d", staged.Version))
	})
}

func reencrypt(oldSession, newSession *keyring.Session, ciphertext string) (string, error) {
	plaintext, err := oldSession.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return newSession.Encrypt(plaintext)
}

// RunFullBackup produces a consistent backup artifact set under the supplied
// backup passphrase, which must be distinct from and unrelated to the root
// passphrase.
func (g *Gateway) RunFullBackup(ctx context.Context, principal string, backupPassphrase []byte) (*backup.Artifact, error) {
	if _, err := g.authorize(principal, capability.OpRunFullBackup); err != nil {
		return nil, err
	}
	return g.backups.RunFullBackup(ctx, backupPassphrase)
}

// Restore rebuilds a Gateway from a backup artifact set onto a fresh
// database path. This is an operator procedure, run out-of-band of the
// gateway's operation surface: key layers are imported before data so
// protected fields are decryptable immediately after restore.
func Restore(ctx context.Context, cfg Config, artifacts backup.ArtifactStore, artifact *backup.Artifact, rootPassphrase, backupPassphrase []byte, opts ...Option) (*Gateway, error) {
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

	s, keys, err := backup.Restore(ctx, artifacts, artifact, dbFile, rootPassphrase, backupPassphrase, g.keyParams)
	if err != nil {
		return nil, err
	}

	directory := capability.DefaultPolicy()
	if cfg.PolicyPath != "" {
		directory, err = capability.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	g.store = s
	g.keys = keys
	g.directory = directory
	if g.artifacts == nil {
		g.artifacts = artifacts
	}
	g.backups = backup.New(s, keys, g.artifacts, g.keyParams)
	return g, nil
}
