package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecretHashing(t *testing.T) {
	hash, err := HashSecret("secret")
	require.NoError(t, err)

	require.True(t, VerifySecret(hash, "secret"))
	require.False(t, VerifySecret(hash, "incorrect"))
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	other, err := GenerateToken(32)
	require.NoError(t, err)
	require.NotEqual(t, token, other)

	_, err = GenerateToken(0)
	require.Error(t, err)
}

func TestNewAPIKey(t *testing.T) {
	key, err := NewAPIKey("adk", "stripe")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(key.Plaintext, "adk_stripe_"))
	require.True(t, strings.HasPrefix(key.Plaintext, key.DisplayPrefix))
	require.Less(t, len(key.DisplayPrefix), len(key.Plaintext))
	require.True(t, VerifySecret(key.Hash, key.Plaintext))
	require.NotContains(t, key.Hash, key.Plaintext)
}

func TestNewAPIKeyRequiresServiceAndPrefix(t *testing.T) {
	_, err := NewAPIKey("", "stripe")
	require.Error(t, err)

	_, err = NewAPIKey("adk", "  ")
	require.Error(t, err)
}
