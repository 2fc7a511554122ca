package handlers

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mediaforge/mediaforge/internal/auth"
	"github.com/mediaforge/mediaforge/internal/http/middleware"
)

// NewAuthMiddleware returns a huma middleware enforcing bearer auth on every
// operation that declares a security requirement. The resolved account is
// stored in the request context under the auth package's key.
func NewAuthMiddleware(api huma.API, tokens middleware.TokenParser, users middleware.UserLoader) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if len(ctx.Operation().Security) == 0 {
			next(ctx)
			return
		}

		token, ok := strings.CutPrefix(ctx.Header("Authorization"), "Bearer ")
		if !ok || token == "" {
			unauthorized(api, ctx)
			return
		}

		username, err := tokens.Parse(token)
		if err != nil {
			unauthorized(api, ctx)
			return
		}

		user, err := users.GetByUsername(ctx.Context(), username)
		if err != nil {
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "failed to load account")
			return
		}
		if user == nil {
			unauthorized(api, ctx)
			return
		}

		next(huma.WithValue(ctx, auth.UserContextKey, user))
	}
}

func unauthorized(api huma.API, ctx huma.Context) {
	ctx.SetHeader("WWW-Authenticate", "Bearer")
	_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "Not authenticated")
}
