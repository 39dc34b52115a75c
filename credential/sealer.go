package credential

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts credential values with XChaCha20-Poly1305, using the owner
// and credential id as associated data so a value cannot be replayed under
// another identity.
type Sealer struct {
	key []byte
}

// NewSealer derives a 32-byte key from secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("credential: empty sealing secret")
	}
	key := blake2b.Sum256([]byte(secret))
	return &Sealer{key: key[:]}, nil
}

func associated(userID, credentialID string) []byte {
	return []byte(userID + "\x00" + credentialID)
}

// Seal encrypts value and returns nonce||ciphertext, base64 encoded.
func (s *Sealer) Seal(value, userID, credentialID string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("credential: create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("credential: generate nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(value), associated(userID, credentialID))
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed, userID, credentialID string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("credential: decode: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("credential: create cipher: %w", err)
	}
	if len(data) < aead.NonceSize() {
		return "", fmt.Errorf("credential: sealed value too short")
	}
	nonce, ct := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, associated(userID, credentialID))
	if err != nil {
		return "", fmt.Errorf("credential: open: %w", err)
	}
	return string(plain), nil
}

// Fingerprint returns a short keyed hash of value, safe to log.
func (s *Sealer) Fingerprint(value string) string {
	h, err := blake2b.New(16, s.key)
	if err != nil {
		return ""
	}
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}
