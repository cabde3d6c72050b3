// internal/auth/auth_test.go
package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *TokenConfig {
	return &TokenConfig{
		Secret:     []byte("test-secret-key"),
		Expiration: time.Hour,
	}
}

func TestTokenRoundtrip(t *testing.T) {
	cfg := testConfig()

	tokenString, err := GenerateToken("ye", cfg)
	require.NoError(t, err)

	token, err := ParseToken(tokenString, cfg)
	require.NoError(t, err)
	assert.Equal(t, "ye", token.UserID)
}

func TestTokenTamperedSignatureRejected(t *testing.T) {
	cfg := testConfig()

	tokenString, err := GenerateToken("ye", cfg)
	require.NoError(t, err)

	_, err = ParseToken(tokenString+"x", cfg)
	assert.Error(t, err)
}

func TestTokenWrongSecretRejected(t *testing.T) {
	tokenString, err := GenerateToken("ye", testConfig())
	require.NoError(t, err)

	_, err = ParseToken(tokenString, &TokenConfig{Secret: []byte("other-secret")})
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	cfg := &TokenConfig{Secret: []byte("k"), Expiration: -time.Minute}

	tokenString, err := GenerateToken("ye", cfg)
	require.NoError(t, err)

	_, err = ParseToken(tokenString, cfg)
	assert.ErrorContains(t, err, "expired")
}

func TestAuthenticatorLogin(t *testing.T) {
	a := NewAuthenticator("ye", "correct-horse", testConfig())
	require.True(t, a.Enabled())

	token, err := a.Login("ye", "correct-horse")
	require.NoError(t, err)

	username, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ye", username)

	_, err = a.Login("ye", "wrong")
	assert.Error(t, err)
	_, err = a.Login("someone", "correct-horse")
	assert.Error(t, err)
}

func TestAuthenticatorDisabledWithoutPassword(t *testing.T) {
	a := NewAuthenticator("ye", "", testConfig())
	assert.False(t, a.Enabled())

	_, err := a.Login("ye", "anything")
	assert.Error(t, err)
}
