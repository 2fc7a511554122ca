package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mediaforge/mediaforge/internal/config"
)

// TokenIssuer mints and parses signed bearer tokens.
type TokenIssuer struct {
	secret   []byte
	method   jwt.SigningMethod
	lifetime time.Duration
}

// NewTokenIssuer creates a TokenIssuer from auth configuration.
func NewTokenIssuer(cfg config.AuthConfig) (*TokenIssuer, error) {
	var method jwt.SigningMethod
	switch cfg.Algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm: %s", cfg.Algorithm)
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	return &TokenIssuer{
		secret:   []byte(cfg.SecretKey),
		method:   method,
		lifetime: cfg.TokenLifetime(),
	}, nil
}

// Mint issues a signed token whose subject is the username.
func (t *TokenIssuer) Mint(username string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.lifetime)),
	}
	signed, err := jwt.NewWithClaims(t.method, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Parse validates a token string and returns its subject username.
func (t *TokenIssuer) Parse(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != t.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{t.method.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Subject, nil
}

// Lifetime returns the configured token lifetime.
func (t *TokenIssuer) Lifetime() time.Duration {
	return t.lifetime
}
