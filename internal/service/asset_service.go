package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mediaforge/mediaforge/internal/ffmpeg"
	"github.com/mediaforge/mediaforge/internal/models"
	"github.com/mediaforge/mediaforge/internal/observability"
	"github.com/mediaforge/mediaforge/internal/repository"
	"github.com/mediaforge/mediaforge/internal/storage"
)

// AssetService manages the per-user asset catalogue and its on-disk files.
type AssetService struct {
	assets repository.AssetRepository
	tasks  repository.TaskRepository
	ws     *storage.Workspace
	intake *storage.Intake
	prober *ffmpeg.Prober
	logger *slog.Logger
}

// NewAssetService creates a new AssetService.
func NewAssetService(
	assets repository.AssetRepository,
	tasks repository.TaskRepository,
	ws *storage.Workspace,
	intake *storage.Intake,
	prober *ffmpeg.Prober,
) *AssetService {
	return &AssetService{
		assets: assets,
		tasks:  tasks,
		ws:     ws,
		intake: intake,
		prober: prober,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *AssetService) WithLogger(logger *slog.Logger) *AssetService {
	s.logger = observability.WithComponent(logger, "asset-service")
	return s
}

// MaxUploadSize returns the configured upload bound in bytes.
func (s *AssetService) MaxUploadSize() int64 {
	return s.intake.MaxSize()
}

// CheckDeclaredSize fast-rejects uploads by declared content length.
func (s *AssetService) CheckDeclaredSize(declared int64) error {
	return s.intake.CheckDeclaredSize(declared)
}

// Upload validates and stores one uploaded file, registering an Asset for
// it. The stored file is removed if registration fails.
func (s *AssetService) Upload(ctx context.Context, ownerID models.ULID, filename string, r io.Reader) (*models.Asset, error) {
	storedPath, size, err := s.intake.Save(ownerID, filename, r)
	if err != nil {
		return nil, err
	}

	asset := &models.Asset{
		OwnerID:     ownerID,
		DisplayName: filename,
		StoredPath:  storedPath,
		Status:      models.AssetStatusUploaded,
		SizeBytes:   size,
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		_ = s.ws.Remove(storedPath)
		return nil, fmt.Errorf("registering upload: %w", err)
	}

	s.logger.Info("asset uploaded",
		slog.String("asset_id", asset.ID.String()),
		slog.String("owner_id", ownerID.String()),
		slog.Int64("size", size))
	return asset, nil
}

// List returns an owner's assets, newest first.
func (s *AssetService) List(ctx context.Context, ownerID models.ULID) ([]*models.Asset, error) {
	return s.assets.GetByOwner(ctx, ownerID)
}

// GetOwned fetches an asset and enforces ownership.
func (s *AssetService) GetOwned(ctx context.Context, ownerID, assetID models.ULID) (*models.Asset, error) {
	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, models.ErrNotFound
	}
	if asset.OwnerID != ownerID {
		return nil, models.ErrForbidden
	}
	return asset, nil
}

// ResolvePath maps an asset's stored path to its current on-disk location,
// tolerating a workspace root that moved since the record was written.
func (s *AssetService) ResolvePath(asset *models.Asset) (string, error) {
	path := s.ws.Resolve(asset.StoredPath, asset.OwnerID)
	if path == "" {
		return "", fmt.Errorf("%w: file missing on disk", models.ErrNotFound)
	}
	return path, nil
}

// Probe reads container and stream metadata for an owned asset.
func (s *AssetService) Probe(ctx context.Context, ownerID, assetID models.ULID) (*ffmpeg.ProbeResult, error) {
	asset, err := s.GetOwned(ctx, ownerID, assetID)
	if err != nil {
		return nil, err
	}
	path, err := s.ResolvePath(asset)
	if err != nil {
		return nil, err
	}
	return s.prober.Probe(ctx, path)
}

// Delete removes an asset, its on-disk file, and every task that refers to
// it either as source or as result.
func (s *AssetService) Delete(ctx context.Context, ownerID, assetID models.ULID) error {
	asset, err := s.GetOwned(ctx, ownerID, assetID)
	if err != nil {
		return err
	}

	if _, err := s.tasks.DeleteBySourceDisplayName(ctx, ownerID, asset.DisplayName); err != nil {
		return err
	}
	if _, err := s.tasks.DeleteByResultAssetID(ctx, ownerID, asset.ID); err != nil {
		return err
	}

	if path := s.ws.Resolve(asset.StoredPath, asset.OwnerID); path != "" {
		if err := s.ws.Remove(path); err != nil {
			return err
		}
	}

	if err := s.assets.Delete(ctx, asset.ID); err != nil {
		return err
	}

	s.logger.Info("asset deleted",
		slog.String("asset_id", assetID.String()),
		slog.String("owner_id", ownerID.String()))
	return nil
}
