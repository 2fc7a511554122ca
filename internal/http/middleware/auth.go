package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mediaforge/mediaforge/internal/auth"
	"github.com/mediaforge/mediaforge/internal/models"
)

// UserLoader resolves a verified token subject to an account.
type UserLoader interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// TokenParser validates a bearer token and returns its subject.
type TokenParser interface {
	Parse(token string) (string, error)
}

// BearerToken extracts the bearer credential from a request: the
// Authorization header, or a token query parameter for clients (such as
// browser WebSockets) that cannot set headers.
func BearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// ResolveUser validates the request's bearer token and loads its account.
func ResolveUser(r *http.Request, tokens TokenParser, users UserLoader) (*models.User, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, models.ErrInvalidCredentials
	}
	username, err := tokens.Parse(token)
	if err != nil {
		return nil, models.ErrInvalidCredentials
	}
	user, err := users.GetByUsername(r.Context(), username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

// RequireUser guards raw chi routes: requests without a valid bearer token
// get 401; otherwise the resolved account is stored in the request context.
func RequireUser(tokens TokenParser, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := ResolveUser(r, tokens, users)
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "Not authenticated", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
		})
	}
}
