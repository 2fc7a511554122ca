package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/models"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		SecretKey:                "test-secret-key",
		Algorithm:                "HS256",
		AccessTokenExpireMinutes: 30,
		BcryptCost:               4, // minimum cost keeps tests fast
	}
}

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, VerifyPassword(hash, "s3cret"))
	assert.False(t, VerifyPassword(hash, "wrong"))
}

func TestHashPassword_OutOfRangeCostFallsBack(t *testing.T) {
	hash, err := HashPassword("s3cret", 99)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "s3cret"))
}

func TestBurnPasswordCheck(t *testing.T) {
	// Must not panic; exists purely for timing equalization.
	BurnPasswordCheck("anything")
}

func TestTokenIssuer_MintAndParse(t *testing.T) {
	issuer, err := NewTokenIssuer(testAuthConfig())
	require.NoError(t, err)

	token, err := issuer.Mint("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
}

func TestTokenIssuer_RejectsWrongSecret(t *testing.T) {
	issuer, err := NewTokenIssuer(testAuthConfig())
	require.NoError(t, err)

	other := testAuthConfig()
	other.SecretKey = "different-secret"
	otherIssuer, err := NewTokenIssuer(other)
	require.NoError(t, err)

	token, err := issuer.Mint("alice")
	require.NoError(t, err)

	_, err = otherIssuer.Parse(token)
	require.Error(t, err)
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	cfg := testAuthConfig()
	issuer, err := NewTokenIssuer(cfg)
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{
		Subject:   "alice",
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.SecretKey))
	require.NoError(t, err)

	_, err = issuer.Parse(expired)
	require.Error(t, err)
}

func TestTokenIssuer_RejectsAlgorithmSubstitution(t *testing.T) {
	cfg := testAuthConfig()
	issuer, err := NewTokenIssuer(cfg)
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	// Signed with HS512 while the issuer expects HS256.
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.SecretKey))
	require.NoError(t, err)

	_, err = issuer.Parse(token)
	require.Error(t, err)
}

func TestNewTokenIssuer_Validation(t *testing.T) {
	t.Run("unsupported algorithm", func(t *testing.T) {
		cfg := testAuthConfig()
		cfg.Algorithm = "RS256"
		_, err := NewTokenIssuer(cfg)
		require.Error(t, err)
	})

	t.Run("missing secret", func(t *testing.T) {
		cfg := testAuthConfig()
		cfg.SecretKey = ""
		_, err := NewTokenIssuer(cfg)
		require.Error(t, err)
	})
}

func TestUserContext_RoundTrip(t *testing.T) {
	user := &models.User{Username: "alice"}
	ctx := ContextWithUser(context.Background(), user)

	got, ok := UserFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Username)
}

func TestUserFromContext_Missing(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)
}
