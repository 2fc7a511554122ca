package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/mediaforge/mediaforge/internal/models"
)

// assetRepo implements AssetRepository using GORM.
type assetRepo struct {
	db *gorm.DB
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(db *gorm.DB) *assetRepo {
	return &assetRepo{db: db}
}

// Create creates a new asset.
func (r *assetRepo) Create(ctx context.Context, asset *models.Asset) error {
	if err := r.db.WithContext(ctx).Create(asset).Error; err != nil {
		return fmt.Errorf("creating asset: %w", err)
	}
	return nil
}

// GetByID retrieves an asset by ID.
func (r *assetRepo) GetByID(ctx context.Context, id models.ULID) (*models.Asset, error) {
	var asset models.Asset
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&asset).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting asset by ID: %w", err)
	}
	return &asset, nil
}

// GetByOwner retrieves all assets for an owner, newest first.
func (r *assetRepo) GetByOwner(ctx context.Context, ownerID models.ULID) ([]*models.Asset, error) {
	var assets []*models.Asset
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("getting assets by owner: %w", err)
	}
	return assets, nil
}

// Update updates an existing asset.
func (r *assetRepo) Update(ctx context.Context, asset *models.Asset) error {
	if err := r.db.WithContext(ctx).Save(asset).Error; err != nil {
		return fmt.Errorf("updating asset: %w", err)
	}
	return nil
}

// Delete deletes an asset by ID.
func (r *assetRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Asset{}).Error; err != nil {
		return fmt.Errorf("deleting asset: %w", err)
	}
	return nil
}

// Ensure assetRepo implements AssetRepository at compile time.
var _ AssetRepository = (*assetRepo)(nil)
