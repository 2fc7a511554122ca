package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/mediaforge/mediaforge/internal/auth"
	"github.com/mediaforge/mediaforge/internal/models"
	"github.com/mediaforge/mediaforge/internal/service"
)

// AuthHandler handles login and account endpoints.
type AuthHandler struct {
	users  *service.UserService
	tokens *auth.TokenIssuer
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users *service.UserService, tokens *auth.TokenIssuer, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{users: users, tokens: tokens, logger: logger}
}

// Register registers the account routes with the API.
func (h *AuthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "registerUser",
		Method:        "POST",
		Path:          "/users/",
		Summary:       "Register user",
		Description:   "Creates a new account",
		Tags:          []string{"Auth"},
		DefaultStatus: http.StatusCreated,
	}, h.RegisterUser)

	huma.Register(api, huma.Operation{
		OperationID: "getCurrentUser",
		Method:      "GET",
		Path:        "/users/me",
		Summary:     "Current user",
		Description: "Returns the account owning the bearer token",
		Tags:        []string{"Auth"},
		Security:    BearerSecurity,
	}, h.Me)
}

// RegisterToken mounts the rate-limited login route on the router. Login is
// a form post outside the JSON API, so it stays a raw handler.
func (h *AuthHandler) RegisterToken(router chi.Router, perMinute int) {
	router.With(httprate.LimitByIP(perMinute, time.Minute)).
		Post("/token", h.HandleToken)
}

// TokenResponse is the login response body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// HandleToken is the password-grant login endpoint. Credentials arrive as
// form fields; failures never reveal which part was wrong.
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.users.Authenticate(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, models.ErrInvalidCredentials.Error(), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token, err := h.tokens.Mint(user.Username)
	if err != nil {
		h.logger.Error("minting token", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

// RegisterUserInput is the input for registering an account.
type RegisterUserInput struct {
	Body struct {
		Username string `json:"username" minLength:"1" maxLength:"64" doc:"Account name"`
		Password string `json:"password" minLength:"1" doc:"Account password"`
	}
}

// RegisterUserOutput is the output for registering an account.
type RegisterUserOutput struct {
	Body UserResponse
}

// RegisterUser creates a new account.
func (h *AuthHandler) RegisterUser(ctx context.Context, input *RegisterUserInput) (*RegisterUserOutput, error) {
	user, err := h.users.Register(ctx, input.Body.Username, input.Body.Password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUsernameTaken),
			errors.Is(err, models.ErrUsernameRequired),
			errors.Is(err, models.ErrPasswordRequired):
			return nil, huma.Error400BadRequest(err.Error())
		default:
			return nil, huma.Error500InternalServerError("failed to register user", err)
		}
	}
	return &RegisterUserOutput{Body: UserFromModel(user)}, nil
}

// MeInput is the input for the current-user endpoint.
type MeInput struct{}

// MeOutput is the output for the current-user endpoint.
type MeOutput struct {
	Body UserResponse
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(ctx context.Context, _ *MeInput) (*MeOutput, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return &MeOutput{Body: UserFromModel(user)}, nil
}
