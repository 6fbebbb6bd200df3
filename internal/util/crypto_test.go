package util

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Run("generates hex token of expected length", func(t *testing.T) {
		token, err := GenerateToken()
		require.NoError(t, err)

		assert.Len(t, token, tokenBytes*2)
		_, err = hex.DecodeString(token)
		assert.NoError(t, err)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			token, err := GenerateToken()
			require.NoError(t, err)
			assert.False(t, seen[token], "duplicate token generated: %s", token)
			seen[token] = true
		}
	})
}

func TestConstantTimeEqual(t *testing.T) {
	t.Run("equal strings match", func(t *testing.T) {
		assert.True(t, ConstantTimeEqual("abc123", "abc123"))
	})

	t.Run("different strings do not match", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("abc123", "abc124"))
	})

	t.Run("different lengths do not match", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("abc", "abc123"))
	})

	t.Run("empty strings match", func(t *testing.T) {
		assert.True(t, ConstantTimeEqual("", ""))
	})
}

func TestMaskToken(t *testing.T) {
	t.Run("masks long tokens", func(t *testing.T) {
		assert.Equal(t, "deadbeef****", MaskToken("deadbeefdeadbeef"))
	})

	t.Run("hides short tokens entirely", func(t *testing.T) {
		assert.Equal(t, "****", MaskToken("abcd"))
	})
}
