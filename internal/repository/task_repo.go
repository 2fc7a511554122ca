package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/mediaforge/mediaforge/internal/models"
)

// taskRepo implements TaskRepository using GORM.
type taskRepo struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *gorm.DB) *taskRepo {
	return &taskRepo{db: db}
}

// Create creates a new task.
func (r *taskRepo) Create(ctx context.Context, task *models.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by ID.
func (r *taskRepo) GetByID(ctx context.Context, id models.ULID) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting task by ID: %w", err)
	}
	return &task, nil
}

// GetByOwner retrieves a page of an owner's tasks, newest first.
func (r *taskRepo) GetByOwner(ctx context.Context, ownerID models.ULID, offset, limit int) ([]*models.Task, error) {
	var tasks []*models.Task
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("getting tasks by owner: %w", err)
	}
	return tasks, nil
}

// GetNonTerminal retrieves all tasks still in pending or processing state.
func (r *taskRepo) GetNonTerminal(ctx context.Context) ([]*models.Task, error) {
	var tasks []*models.Task
	if err := r.db.WithContext(ctx).
		Where("status IN (?, ?)", models.TaskStatusPending, models.TaskStatusProcessing).
		Order("created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("getting non-terminal tasks: %w", err)
	}
	return tasks, nil
}

// Update updates an existing task.
func (r *taskRepo) Update(ctx context.Context, task *models.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	return nil
}

// UpdateProgress updates only the progress column of a task.
func (r *taskRepo) UpdateProgress(ctx context.Context, id models.ULID, progress int) error {
	if err := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", id).
		UpdateColumn("progress", progress).Error; err != nil {
		return fmt.Errorf("updating task progress: %w", err)
	}
	return nil
}

// Delete deletes a task by ID.
func (r *taskRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Task{}).Error; err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	return nil
}

// DeleteBySourceDisplayName deletes an owner's tasks whose source display name matches.
func (r *taskRepo) DeleteBySourceDisplayName(ctx context.Context, ownerID models.ULID, displayName string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("owner_id = ? AND source_display_name = ?", ownerID, displayName).
		Delete(&models.Task{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting tasks by source display name: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteByResultAssetID deletes an owner's tasks referencing the asset as their result.
func (r *taskRepo) DeleteByResultAssetID(ctx context.Context, ownerID models.ULID, assetID models.ULID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("owner_id = ? AND result_asset_id = ?", ownerID, assetID).
		Delete(&models.Task{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting tasks by result asset: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure taskRepo implements TaskRepository at compile time.
var _ TaskRepository = (*taskRepo)(nil)
