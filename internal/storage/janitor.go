package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/models"
	"github.com/mediaforge/mediaforge/internal/observability"
	"github.com/mediaforge/mediaforge/internal/repository"
)

// Janitor periodically removes orphaned files from the workspace: temp
// outputs left behind by crashed tasks and files no asset references.
type Janitor struct {
	ws        *Workspace
	assets    repository.AssetRepository
	tasks     repository.TaskRepository
	retention time.Duration
	schedule  string
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewJanitor creates a Janitor from storage configuration.
func NewJanitor(ws *Workspace, assets repository.AssetRepository, tasks repository.TaskRepository, cfg config.StorageConfig, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{
		ws:        ws,
		assets:    assets,
		tasks:     tasks,
		retention: time.Duration(cfg.TempRetention),
		schedule:  cfg.JanitorSchedule,
		logger:    observability.WithComponent(log, "janitor"),
	}
}

// Start runs one sweep immediately, then schedules further sweeps on the
// configured 6-field cron expression.
func (j *Janitor) Start(ctx context.Context) error {
	sweep := func() {
		if removed, err := j.Sweep(ctx); err != nil {
			j.logger.Error("sweep failed", slog.Any("error", err))
		} else if removed > 0 {
			j.logger.Info("sweep removed orphaned files", slog.Int("count", removed))
		}
	}

	j.cron = cron.New(cron.WithSeconds())
	if _, err := j.cron.AddFunc(j.schedule, sweep); err != nil {
		return fmt.Errorf("scheduling janitor: %w", err)
	}

	// Orphans from a crashed previous run are cleared right away rather than
	// waiting for the first scheduled slot.
	go sweep()

	j.cron.Start()
	j.logger.Info("janitor started", slog.String("schedule", j.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Sweep removes files older than the retention window that neither an asset
// nor a task's planned output references. Returns the number removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	referenced, err := j.referencedBasenames(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-j.retention)
	removed := 0

	ownerDirs, err := os.ReadDir(j.ws.Root())
	if err != nil {
		return 0, fmt.Errorf("reading workspace root: %w", err)
	}

	for _, ownerDir := range ownerDirs {
		if !ownerDir.IsDir() {
			continue
		}
		if _, err := models.ParseULID(ownerDir.Name()); err != nil {
			// Not an owner directory; leave it alone.
			continue
		}

		dir := filepath.Join(j.ws.Root(), ownerDir.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			j.logger.Warn("skipping unreadable owner directory",
				slog.String("dir", dir), slog.Any("error", err))
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || referenced[entry.Name()] {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				j.logger.Warn("failed to remove orphan",
					slog.String("path", path), slog.Any("error", err))
				continue
			}
			removed++
		}
	}

	return removed, nil
}

// referencedBasenames collects every basename the store still cares about:
// asset stored paths and planned outputs of non-terminal tasks.
func (j *Janitor) referencedBasenames(ctx context.Context) (map[string]bool, error) {
	referenced := make(map[string]bool)

	ownerDirs, err := os.ReadDir(j.ws.Root())
	if err != nil {
		return nil, fmt.Errorf("reading workspace root: %w", err)
	}
	for _, ownerDir := range ownerDirs {
		if !ownerDir.IsDir() {
			continue
		}
		ownerID, err := models.ParseULID(ownerDir.Name())
		if err != nil {
			continue
		}
		assets, err := j.assets.GetByOwner(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("listing assets for sweep: %w", err)
		}
		for _, asset := range assets {
			referenced[filepath.Base(asset.StoredPath)] = true
		}
	}

	tasks, err := j.tasks.GetNonTerminal(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing non-terminal tasks for sweep: %w", err)
	}
	for _, task := range tasks {
		if task.PlannedFinalPath != "" {
			referenced[filepath.Base(task.PlannedFinalPath)] = true
		}
	}

	return referenced, nil
}
