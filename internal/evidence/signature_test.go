package evidence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	s, err := NewSigner(testSigningKey)
	require.NoError(t, err)

	sig, err := s.Sign([]byte("payload"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "hmac-sha256:"))
	assert.True(t, s.Verify([]byte("payload"), sig))
	assert.False(t, s.Verify([]byte("payload!"), sig))
	assert.False(t, s.Verify([]byte("payload"), strings.TrimPrefix(sig, "hmac-sha256:")))
}

func TestResolveSigningKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	key, err := ResolveSigningKey(hexKey)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	key, err = ResolveSigningKey(testSigningKey)
	require.NoError(t, err)
	assert.Equal(t, []byte(testSigningKey), key)

	_, err = ResolveSigningKey("too-short")
	assert.Error(t, err)
}

func TestDeriveSigningKey(t *testing.T) {
	a := DeriveSigningKey("host-1")
	assert.Equal(t, a, DeriveSigningKey("host-1"))
	assert.NotEqual(t, a, DeriveSigningKey("host-2"))

	_, err := NewSigner(a)
	assert.NoError(t, err)
}
