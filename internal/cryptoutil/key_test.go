package cryptoutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyBytes(t *testing.T) {
	hexKey := strings.Repeat("a1", 32)
	raw := "raw-signing-key-of-32-characters"

	tests := []struct {
		name    string
		key     string
		wantLen int
		wantErr bool
	}{
		{"hex key decoded", hexKey, 32, false},
		{"uppercase hex decoded", strings.ToUpper(hexKey), 32, false},
		{"raw key kept", raw, len(raw), false},
		{"odd-length hex kept raw", hexKey + "a", len(hexKey) + 1, false},
		{"short hex treated as raw", strings.Repeat("ab", 16), 32, false},
		{"too short", "short", 0, true},
		{"empty", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KeyBytes(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrShortKey)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestIsHex(t *testing.T) {
	assert.True(t, isHex("DeAdBeEf0123"))
	assert.False(t, isHex("0123abcg"))
	assert.False(t, isHex("abcd\n"))
}
