package keyring

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"log"

	"golang.org/x/crypto/nacl/box"

	"github.com/hengadev/clinicvault/internal/cverr"
	"github.com/hengadev/clinicvault/internal/security"
)

// Key material names in the backing store. Each layer is persisted only in
// wrapped form: the master secret under the root guard, the identity private
// key under the master secret, the field key sealed to the identity public key.
const (
	materialMasterSecret    = "master_secret"
	materialIdentityPublic  = "identity_public"
	materialIdentityPrivate = "identity_private"
)

const fieldKeySize = 32 // AES-256

// Storage persists wrapped key material. Implemented by the sqlite store.
type Storage interface {
	GetKeyMaterial(ctx context.Context, name string) ([]byte, error)
	PutKeyMaterial(ctx context.Context, name string, data []byte) error
	CurrentFieldKey(ctx context.Context) (wrapped []byte, version int, err error)
	PutFieldKey(ctx context.Context, version int, wrapped []byte) error
}

// MasterGuard wraps and unwraps the master secret, the layer directly below
// the root passphrase. The local implementation derives a key from an
// operator-supplied passphrase; the Vault provider delegates to a transit key.
type MasterGuard interface {
	WrapMaster(ctx context.Context, plaintext []byte) ([]byte, error)
	UnwrapMaster(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// Manager owns the four-layer key chain and hands out scoped field sessions.
// It holds the unwrapped master secret for the process lifetime; the identity
// and field layers are unwrapped per session and zeroed again on close.
type Manager struct {
	storage Storage
	guard   MasterGuard
	master  []byte
}

// Initialize creates all persisted key layers on first boot: master secret
// under the guard, a fresh identity keypair under the master secret, and
// field key version 1 sealed to the identity public key.
func Initialize(ctx context.Context, storage Storage, guard MasterGuard) (*Manager, error) {
	master := make([]byte, fieldKeySize)
	if _, err := io.ReadFull(rand.Reader, master); err != nil {
		return nil, fmt.Errorf("failed to generate master secret: %w", err)
	}

	wrappedMaster, err := guard.WrapMaster(ctx, master)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap master secret: %w", err)
	}
	if err := storage.PutKeyMaterial(ctx, materialMasterSecret, wrappedMaster); err != nil {
		return nil, fmt.Errorf("failed to persist master secret: %w", err)
	}

	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity keypair: %w", err)
	}
	defer security.ZeroBytes(priv[:])

	privCipher, err := sealWithKey(master, priv[:])
	if err != nil {
		return nil, fmt.Errorf("failed to wrap identity private key: %w", err)
	}
	if err := storage.PutKeyMaterial(ctx, materialIdentityPublic, pub[:]); err != nil {
		return nil, fmt.Errorf("failed to persist identity public key: %w", err)
	}
	if err := storage.PutKeyMaterial(ctx, materialIdentityPrivate, privCipher); err != nil {
		return nil, fmt.Errorf("failed to persist identity private key: %w", err)
	}

	fieldKey := make([]byte, fieldKeySize)
	if _, err := io.ReadFull(rand.Reader, fieldKey); err != nil {
		return nil, fmt.Errorf("failed to generate field key: %w", err)
	}
	defer security.ZeroBytes(fieldKey)

	sealed, err := box.SealAnonymous(nil, fieldKey, pub, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to seal field key: %w", err)
	}
	if err := storage.PutFieldKey(ctx, 1, sealed); err != nil {
		return nil, fmt.Errorf("failed to persist field key: %w", err)
	}

	log.Printf("key hierarchy initialized, field key version 1")
	return &Manager{storage: storage, guard: guard, master: master}, nil
}

// Open unwraps the master secret and returns a Manager for an already
// initialized hierarchy. Fails if the guard cannot unwrap the master layer.
func Open(ctx context.Context, storage Storage, guard MasterGuard) (*Manager, error) {
	wrapped, err := storage.GetKeyMaterial(ctx, materialMasterSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to load master secret: %w", err)
	}
	master, err := guard.UnwrapMaster(ctx, wrapped)
	if err != nil {
		return nil, cverr.NewKeyStateError(fmt.Sprintf("master layer cannot be unwrapped: %v", err))
	}
	return &Manager{storage: storage, guard: guard, master: master}, nil
}

// OpenSession unwraps the identity layer, opens the current field key and
// returns a scoped session over it. Every caller needing field encryption
// opens its own session and must close it on every exit path.
func (m *Manager) OpenSession(ctx context.Context) (*Session, error) {
	wrapped, version, err := m.storage.CurrentFieldKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current field key: %w", err)
	}
	fieldKey, err := m.unsealFieldKey(ctx, wrapped)
	if err != nil {
		return nil, err
	}
	return newSession(fieldKey, version)
}

// StagedKey is a freshly generated, not yet persisted field key, used during
// rotation: the caller re-encrypts every protected field in its own
// transaction and persists Version/Wrapped only when that succeeds.
type StagedKey struct {
	Version int
	Wrapped []byte
	Session *Session
}

// StageFieldKey generates the next field key version sealed to the identity
// public key. Nothing is persisted; the returned session encrypts under the
// new key while the old key is still current.
func (m *Manager) StageFieldKey(ctx context.Context) (*StagedKey, error) {
	_, current, err := m.storage.CurrentFieldKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current field key: %w", err)
	}

	pubBytes, err := m.storage.GetKeyMaterial(ctx, materialIdentityPublic)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity public key: %w", err)
	}
	var pub [32]byte
	copy(pub[:], pubBytes)

	fieldKey := make([]byte, fieldKeySize)
	if _, err := io.ReadFull(rand.Reader, fieldKey); err != nil {
		return nil, fmt.Errorf("failed to generate field key: %w", err)
	}

	sealed, err := box.SealAnonymous(nil, fieldKey, &pub, rand.Reader)
	if err != nil {
		security.ZeroBytes(fieldKey)
		return nil, fmt.Errorf("failed to seal field key: %w", err)
	}

	session, err := newSession(fieldKey, current+1)
	if err != nil {
		return nil, err
	}
	return &StagedKey{Version: current + 1, Wrapped: sealed, Session: session}, nil
}

// ExportLayers returns copies of the unwrapped master secret and identity
// private key for the backup coordinator, which re-wraps them under a
// backup-specific passphrase. Callers must zero both copies when done.
func (m *Manager) ExportLayers(ctx context.Context) (master []byte, identityPriv []byte, err error) {
	privCipher, err := m.storage.GetKeyMaterial(ctx, materialIdentityPrivate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load identity private key: %w", err)
	}
	priv, err := openWithKey(m.master, privCipher)
	if err != nil {
		return nil, nil, cverr.NewKeyStateError(fmt.Sprintf("identity layer cannot be unwrapped: %v", err))
	}
	return security.SecureCopy(m.master), priv, nil
}

// unsealFieldKey walks the chain below the master secret: unwrap the identity
// private key, open the sealed field key, zero the private key again.
func (m *Manager) unsealFieldKey(ctx context.Context, sealed []byte) ([]byte, error) {
	privCipher, err := m.storage.GetKeyMaterial(ctx, materialIdentityPrivate)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity private key: %w", err)
	}
	pubBytes, err := m.storage.GetKeyMaterial(ctx, materialIdentityPublic)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity public key: %w", err)
	}

	privBytes, err := openWithKey(m.master, privCipher)
	if err != nil {
		return nil, cverr.NewKeyStateError(fmt.Sprintf("identity layer cannot be unwrapped: %v", err))
	}
	defer security.ZeroBytes(privBytes)

	var pub, priv [32]byte
	copy(pub[:], pubBytes)
	copy(priv[:], privBytes)
	defer security.ZeroBytes(priv[:])

	fieldKey, ok := box.OpenAnonymous(nil, sealed, &pub, &priv)
	if !ok {
		return nil, cverr.NewKeyStateError("field key cannot be opened with the identity layer")
	}
	return fieldKey, nil
}

// sealWithKey encrypts plaintext with AES-GCM under key, nonce prepended.
func sealWithKey(key []byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aesGCM.Seal(nonce, nonce, plaintext, nil), nil
}

// openWithKey decrypts a nonce-prefixed AES-GCM ciphertext under key.
func openWithKey(key []byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("invalid ciphertext size")
	}
	nonce, ciphertextBytes := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
