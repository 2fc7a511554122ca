// Package service implements the business logic: accounts, asset catalogue,
// and the task lifecycle coordinator.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mediaforge/mediaforge/internal/auth"
	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/models"
	"github.com/mediaforge/mediaforge/internal/observability"
	"github.com/mediaforge/mediaforge/internal/repository"
)

// UserService provides account registration and credential verification.
type UserService struct {
	users      repository.UserRepository
	bcryptCost int
	logger     *slog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(users repository.UserRepository, cfg config.AuthConfig) *UserService {
	return &UserService{
		users:      users,
		bcryptCost: cfg.BcryptCost,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *UserService) WithLogger(logger *slog.Logger) *UserService {
	s.logger = observability.WithComponent(logger, "user-service")
	return s
}

// Register creates a new account.
func (s *UserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" {
		return nil, models.ErrUsernameRequired
	}
	if password == "" {
		return nil, models.ErrPasswordRequired
	}

	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.ErrUsernameTaken
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &models.User{
		Username:       username,
		HashedPassword: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("username", username))
	return user, nil
}

// Authenticate verifies credentials. An unknown username still burns a hash
// comparison so response timing does not reveal account existence.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		auth.BurnPasswordCheck(password)
		return nil, models.ErrInvalidCredentials
	}
	if !auth.VerifyPassword(user.HashedPassword, password) {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

// GetByUsername resolves a token subject to its account.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.users.GetByUsername(ctx, username)
}
