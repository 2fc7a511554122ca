package auth

import (
	"context"

	"github.com/mediaforge/mediaforge/internal/models"
)

type contextKey string

// UserContextKey is the context key under which the authenticated user is
// stored. Exported so API-layer middleware that wraps contexts indirectly
// (huma) can set it.
const UserContextKey contextKey = "auth.user"

// ContextWithUser returns a context carrying the authenticated user.
func ContextWithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// UserFromContext returns the authenticated user from the context, if any.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok && user != nil
}
