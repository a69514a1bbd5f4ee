package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/hengadev/clinicvault/internal/cverr"
	"github.com/hengadev/clinicvault/internal/security"
)

// Session is a scoped handle on an open symmetric field key. It must be
// closed on every exit path of the operation that opened it; encrypt and
// decrypt calls after Close fail with a key state error. Concurrent
// operations each open their own session.
type Session struct {
	mu      sync.Mutex
	gcm     cipher.AEAD
	key     []byte
	version int
	closed  bool
}

func newSession(fieldKey []byte, version int) (*Session, error) {
	block, err := aes.NewCipher(fieldKey)
	if err != nil {
		security.ZeroBytes(fieldKey)
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		security.ZeroBytes(fieldKey)
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Session{gcm: aesGCM, key: fieldKey, version: version}, nil
}

// Version reports the field key version this session operates under.
func (s *Session) Version() int {
	return s.version
}

// Encrypt encrypts a protected field value, returning base64(nonce || ciphertext).
func (s *Session) Encrypt(plaintext string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", cverr.NewKeyStateError("encrypt on a closed session")
	}

	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}
	ciphertext := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a value produced by Encrypt. Ciphertext not produced by
// this hierarchy, or truncated input, fails with a key state error.
func (s *Session) Decrypt(encoded string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", cverr.NewKeyStateError("decrypt on a closed session")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", cverr.NewKeyStateError(fmt.Sprintf("ciphertext is not valid base64: %v", err))
	}
	nonceSize := s.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", cverr.NewKeyStateError("ciphertext shorter than nonce")
	}
	nonce, ciphertextBytes := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", cverr.NewKeyStateError("ciphertext was not produced under this field key")
	}
	return string(plaintext), nil
}

// Close zeroes the field key and marks the session unusable. Closing an
// already closed session is a key state error.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cverr.NewKeyStateError("session already closed")
	}
	security.ZeroBytes(s.key)
	s.key = nil
	s.closed = true
	return nil
}

// Discard closes the session ignoring the already-closed error, for use in
// defer alongside an explicit Close on the success path.
func (s *Session) Discard() {
	_ = s.Close()
}
