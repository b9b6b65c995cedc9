package evidence

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	vaultInfo  = "redactx/mapping-vault/v1"
	nonceBytes = 24
)

// ErrSealedData is returned when sealed data is malformed or fails
// authentication.
var ErrSealedData = errors.New("sealed data cannot be opened")

// Vault seals reversible mappings with NaCl secretbox under a key derived
// by HKDF-SHA256.
type Vault struct {
	key [32]byte
}

// NewVault derives a vault key from secret. Different info strings give
// independent keys from the same secret.
func NewVault(secret []byte, info string) (*Vault, error) {
	if len(secret) == 0 {
		return nil, errors.New("vault secret is empty")
	}
	v := &Vault{}
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), v.key[:]); err != nil {
		return nil, fmt.Errorf("deriving vault key: %w", err)
	}
	return v, nil
}

// Seal encrypts plain and returns base64(nonce || box).
func (v *Vault) Seal(plain []byte) (string, error) {
	var nonce [nonceBytes]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], plain, &nonce, &v.key)
	return base64.StdEncoding.EncodeToString(box), nil
}

// Open reverses Seal.
func (v *Vault) Open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceBytes+secretbox.Overhead {
		return nil, ErrSealedData
	}
	var nonce [nonceBytes]byte
	copy(nonce[:], raw[:nonceBytes])
	plain, ok := secretbox.Open(nil, raw[nonceBytes:], &nonce, &v.key)
	if !ok {
		return nil, ErrSealedData
	}
	return plain, nil
}
