package evidence

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/cryptoutil"
)

const signaturePrefix = "hmac-sha256:"

// MinKeyBytes is the shortest accepted signing key.
const MinKeyBytes = cryptoutil.MinKeyBytes

// Signer creates and verifies HMAC-SHA256 signatures for audit records.
type Signer struct {
	key []byte
}

// NewSigner creates a signer. The key is either at least 32 raw bytes or an
// even-length hex string of 64+ characters.
func NewSigner(key string) (*Signer, error) {
	keyBytes, err := ResolveSigningKey(key)
	if err != nil {
		return nil, err
	}
	return &Signer{key: keyBytes}, nil
}

// ResolveSigningKey returns the key bytes for key, decoding hex when key
// looks like hex.
func ResolveSigningKey(key string) ([]byte, error) {
	b, err := cryptoutil.KeyBytes(key)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	return b, nil
}

// DeriveSigningKey returns a deterministic hex key bound to seed. It is used
// when no key is configured, so records stay verifiable across restarts on
// the same host but offer no protection against anyone who knows the seed.
func DeriveSigningKey(seed string) string {
	sum := sha256.Sum256([]byte("redactx-audit-signing:" + seed))
	return hex.EncodeToString(sum[:]) + hex.EncodeToString(sum[:])
}

// Sign creates an HMAC-SHA256 signature for data.
func (s *Signer) Sign(data []byte) (string, error) {
	h := hmac.New(sha256.New, s.key)
	if _, err := h.Write(data); err != nil {
		return "", err
	}
	return signaturePrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether signature is valid for data.
func (s *Signer) Verify(data []byte, signature string) bool {
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}
	expected, err := s.Sign(data)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
