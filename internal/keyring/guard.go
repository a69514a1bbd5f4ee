package keyring

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"github.com/hengadev/clinicvault/internal/security"
)

// Argon2Params defines the parameters for Argon2id key derivation.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params returns recommended parameters for Argon2id.
func DefaultArgon2Params() *Argon2Params {
	return &Argon2Params{
		Memory:      64 * 1024, // 64MB
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// PassphraseGuard is the local MasterGuard: it derives a wrapping key from an
// operator-held root passphrase with Argon2id. The salt travels inside the
// wrapped blob (salt || nonce || ciphertext), so nothing about the root layer
// is persisted beyond what the blob itself carries.
type PassphraseGuard struct {
	passphrase []byte
	params     *Argon2Params
}

// NewPassphraseGuard creates a guard over the given passphrase. The
// passphrase is copied; the caller may zero its own buffer.
func NewPassphraseGuard(passphrase []byte, params *Argon2Params) (*PassphraseGuard, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("root passphrase must not be empty")
	}
	if params == nil {
		params = DefaultArgon2Params()
	}
	return &PassphraseGuard{
		passphrase: security.SecureCopy(passphrase),
		params:     params,
	}, nil
}

func (g *PassphraseGuard) deriveKey(salt []byte) []byte {
	return argon2.IDKey(
		g.passphrase,
		salt,
		g.params.Iterations,
		g.params.Memory,
		g.params.Parallelism,
		g.params.KeyLength,
	)
}

// WrapMaster encrypts the master secret under a key derived from the
// passphrase with a fresh salt.
func (g *PassphraseGuard) WrapMaster(ctx context.Context, plaintext []byte) ([]byte, error) {
	return g.Wrap(ctx, plaintext)
}

// UnwrapMaster reverses WrapMaster. A wrong passphrase surfaces as a GCM
// authentication failure.
func (g *PassphraseGuard) UnwrapMaster(ctx context.Context, ciphertext []byte) ([]byte, error) {
	return g.Unwrap(ctx, ciphertext)
}

// Wrap encrypts arbitrary bytes under the passphrase-derived key with a
// fresh salt, salt || nonce || ciphertext. The backup coordinator uses the
// same construction to protect snapshots and key exports.
func (g *PassphraseGuard) Wrap(ctx context.Context, plaintext []byte) ([]byte, error) {
	salt := make([]byte, g.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	key := g.deriveKey(salt)
	defer security.ZeroBytes(key)

	sealed, err := sealWithKey(key, plaintext)
	if err != nil {
		return nil, err
	}
	return append(salt, sealed...), nil
}

// Unwrap reverses Wrap.
func (g *PassphraseGuard) Unwrap(ctx context.Context, ciphertext []byte) ([]byte, error) {
	saltLen := int(g.params.SaltLength)
	if len(ciphertext) <= saltLen {
		return nil, fmt.Errorf("wrapped master secret too short")
	}
	salt, sealed := ciphertext[:saltLen], ciphertext[saltLen:]
	key := g.deriveKey(salt)
	defer security.ZeroBytes(key)

	return openWithKey(key, sealed)
}

// Destroy zeroes the held passphrase copy.
func (g *PassphraseGuard) Destroy() {
	security.ZeroBytes(g.passphrase)
}
