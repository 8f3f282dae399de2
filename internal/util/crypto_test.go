package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashToken(t *testing.T) {
	t.Run("returns 64 character hex string", func(t *testing.T) {
		assert.Len(t, HashToken("gho_token"), 64)
	})

	t.Run("same input produces same hash", func(t *testing.T) {
		assert.Equal(t, HashToken("gho_token"), HashToken("gho_token"))
	})

	t.Run("different input produces different hash", func(t *testing.T) {
		assert.NotEqual(t, HashToken("token-1"), HashToken("token-2"))
	})
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual("admin", "admin"))
	assert.False(t, ConstantTimeEqual("admin", "root"))
	assert.False(t, ConstantTimeEqual("admin", "admin2"))
	assert.True(t, ConstantTimeEqual("", ""))
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("ZOMGSECRET")
	require.NoError(t, err)

	assert.True(t, CheckPasswordHash("ZOMGSECRET", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
	assert.False(t, CheckPasswordHash("ZOMGSECRET", "not-a-hash"))
}

func TestMaskCode(t *testing.T) {
	assert.Equal(t, "****", MaskCode("ABC"))
	assert.Equal(t, "****", MaskCode("ABCD"))
	assert.Equal(t, "AB****", MaskCode("ABC123"))
}

func TestSanitizeLogin(t *testing.T) {
	tests := map[string]string{
		"alice":        "alice",
		" al-ice ":     "alice",
		"a.l/i\\ce":    "alice",
		"../../etc":    "etc",
		"bob\tsmith\n": "bobsmith",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeLogin(in), "input %q", in)
	}
}
