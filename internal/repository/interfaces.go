// Package repository defines data access interfaces for mediaforge entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"

	"github.com/mediaforge/mediaforge/internal/models"
)

// UserRepository defines operations for user persistence.
type UserRepository interface {
	// Create creates a new user.
	Create(ctx context.Context, user *models.User) error
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.User, error)
	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// AssetRepository defines operations for asset persistence.
type AssetRepository interface {
	// Create creates a new asset.
	Create(ctx context.Context, asset *models.Asset) error
	// GetByID retrieves an asset by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Asset, error)
	// GetByOwner retrieves all assets for an owner, newest first.
	GetByOwner(ctx context.Context, ownerID models.ULID) ([]*models.Asset, error)
	// Update updates an existing asset.
	Update(ctx context.Context, asset *models.Asset) error
	// Delete deletes an asset by ID.
	Delete(ctx context.Context, id models.ULID) error
}

// TaskRepository defines operations for task persistence.
type TaskRepository interface {
	// Create creates a new task.
	Create(ctx context.Context, task *models.Task) error
	// GetByID retrieves a task by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Task, error)
	// GetByOwner retrieves a page of an owner's tasks, newest first.
	GetByOwner(ctx context.Context, ownerID models.ULID, offset, limit int) ([]*models.Task, error)
	// GetNonTerminal retrieves all tasks still in pending or processing state.
	GetNonTerminal(ctx context.Context) ([]*models.Task, error)
	// Update updates an existing task.
	Update(ctx context.Context, task *models.Task) error
	// UpdateProgress updates only the progress column of a task.
	UpdateProgress(ctx context.Context, id models.ULID, progress int) error
	// Delete deletes a task by ID.
	Delete(ctx context.Context, id models.ULID) error
	// DeleteBySourceDisplayName deletes an owner's tasks whose source display
	// name matches; used when the source asset is removed.
	DeleteBySourceDisplayName(ctx context.Context, ownerID models.ULID, displayName string) (int64, error)
	// DeleteByResultAssetID deletes an owner's tasks referencing the asset as
	// their result.
	DeleteByResultAssetID(ctx context.Context, ownerID models.ULID, assetID models.ULID) (int64, error)
}
