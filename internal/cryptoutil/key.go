// Package cryptoutil interprets key material supplied through configuration.
package cryptoutil

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// MinKeyBytes is the shortest accepted key after decoding.
const MinKeyBytes = 32

// ErrShortKey is returned for key material below MinKeyBytes.
var ErrShortKey = errors.New("key too short")

// KeyBytes returns the bytes of key. An even-length hex string of at least
// 2*MinKeyBytes characters is decoded; anything else is used as raw bytes.
func KeyBytes(key string) ([]byte, error) {
	if len(key) >= 2*MinKeyBytes && len(key)%2 == 0 && isHex(key) {
		return hex.DecodeString(key)
	}
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("%w: need at least %d bytes or %d hex characters (got %d)", ErrShortKey, MinKeyBytes, 2*MinKeyBytes, len(key))
	}
	return []byte(key), nil
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
