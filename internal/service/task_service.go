package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mediaforge/mediaforge/internal/ffmpeg"
	"github.com/mediaforge/mediaforge/internal/hwaccel"
	"github.com/mediaforge/mediaforge/internal/models"
	"github.com/mediaforge/mediaforge/internal/observability"
	"github.com/mediaforge/mediaforge/internal/progress"
	"github.com/mediaforge/mediaforge/internal/queue"
	"github.com/mediaforge/mediaforge/internal/repository"
	"github.com/mediaforge/mediaforge/internal/storage"
	"github.com/mediaforge/mediaforge/internal/transcode"
)

// taskPageSize is the page length for task listings.
const taskPageSize = 100

// restartedDetails marks tasks found in flight during crash recovery.
const restartedDetails = "Server restarted while task was in flight."

// taskRunner abstracts the subprocess runner so tests can substitute a fake.
type taskRunner interface {
	Run(ctx context.Context, taskID models.ULID, args []string, totalDuration float64, onProgress ffmpeg.ProgressFunc) ([]string, error)
	Kill(taskID models.ULID) bool
}

// TaskService coordinates the task lifecycle: creation, dispatch, progress
// publication, post-processing, cancellation, and crash recovery.
type TaskService struct {
	tasks    repository.TaskRepository
	assets   repository.AssetRepository
	ws       *storage.Workspace
	runner   taskRunner
	hub      *progress.Hub
	queues   *queue.Set
	detector *hwaccel.Detector
	logger   *slog.Logger
}

// NewTaskService creates a new TaskService.
func NewTaskService(
	tasks repository.TaskRepository,
	assets repository.AssetRepository,
	ws *storage.Workspace,
	runner taskRunner,
	hub *progress.Hub,
	queues *queue.Set,
	detector *hwaccel.Detector,
) *TaskService {
	return &TaskService{
		tasks:    tasks,
		assets:   assets,
		ws:       ws,
		runner:   runner,
		hub:      hub,
		queues:   queues,
		detector: detector,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *TaskService) WithLogger(logger *slog.Logger) *TaskService {
	s.logger = observability.WithComponent(logger, "task-service")
	return s
}

// Hub exposes the progress hub for observer attachment.
func (s *TaskService) Hub() *progress.Hub {
	return s.hub
}

// Capabilities returns the cached hardware capability profile.
func (s *TaskService) Capabilities(ctx context.Context) *hwaccel.Profile {
	return s.detector.Detect(ctx)
}

// CreateTasks creates and enqueues one task per valid referenced asset.
// Unknown, unowned, or unparseable file ids are skipped; if nothing remains
// the request is rejected.
func (s *TaskService) CreateTasks(ctx context.Context, ownerID models.ULID, req transcode.Request) ([]*models.Task, error) {
	profile := s.detector.Detect(ctx)

	var created []*models.Task
	for _, fileID := range req.Files {
		assetID, err := models.ParseULID(fileID)
		if err != nil {
			continue
		}
		asset, err := s.assets.GetByID(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if asset == nil || asset.OwnerID != ownerID {
			continue
		}

		sourcePath := s.ws.Resolve(asset.StoredPath, asset.OwnerID)
		if sourcePath == "" {
			// Missing on disk; keep the stored path so the task fails with a
			// diagnosable transcoder error rather than silently vanishing.
			sourcePath = asset.StoredPath
		}

		plan := transcode.Synthesize(sourcePath, asset.DisplayName, req, profile)

		task := &models.Task{
			OwnerID:           ownerID,
			SourceDisplayName: asset.DisplayName,
			Command:           plan.DisplayCommand,
			PlannedFinalPath:  plan.FinalPath,
			Status:            models.TaskStatusPending,
		}
		if err := s.tasks.Create(ctx, task); err != nil {
			return nil, err
		}

		s.queues.Enqueue(&queue.Item{
			TaskID:        task.ID,
			OwnerID:       ownerID,
			Plan:          plan,
			TotalDuration: req.TotalDuration,
		})
		created = append(created, task)

		s.logger.Info("task enqueued",
			slog.String("task_id", task.ID.String()),
			slog.String("owner_id", ownerID.String()),
			slog.String("source", asset.DisplayName))
	}

	if len(created) == 0 {
		return nil, models.ErrBadRequest
	}
	return created, nil
}

// Process runs one dequeued task to completion. It is the dispatcher's
// handler; any error ends in the task marked failed, never in a dispatcher
// fault.
func (s *TaskService) Process(ctx context.Context, item *queue.Item) {
	task, err := s.tasks.GetByID(ctx, item.TaskID)
	if err != nil {
		s.logger.Error("loading task for processing",
			slog.String("task_id", item.TaskID.String()), slog.Any("error", err))
		return
	}
	if task == nil || task.IsTerminal() {
		// Cancelled while queued, or deleted.
		return
	}

	task.MarkProcessing()
	if err := s.tasks.Update(ctx, task); err != nil {
		s.logger.Error("marking task processing",
			slog.String("task_id", task.ID.String()), slog.Any("error", err))
		return
	}
	s.hub.Publish(task.ID, progress.Update{Progress: 0, Status: string(models.TaskStatusProcessing)})

	tail, runErr := s.runner.Run(ctx, task.ID, item.Plan.Args, item.TotalDuration, func(p int) {
		if err := s.tasks.UpdateProgress(ctx, task.ID, p); err != nil {
			s.logger.Warn("persisting progress",
				slog.String("task_id", task.ID.String()), slog.Any("error", err))
		}
		s.hub.Publish(task.ID, progress.Update{Progress: p})
	})

	if runErr != nil {
		s.fail(ctx, task, item.Plan.TempPath, failureDetails(runErr, tail))
		return
	}

	if err := s.postProcess(ctx, task, item.Plan); err != nil {
		s.fail(ctx, task, item.Plan.TempPath, "post-processing failed: "+err.Error())
		return
	}
}

// postProcess promotes a finished temp output: rename into place, register
// the result asset, and mark the task completed at 100%.
func (s *TaskService) postProcess(ctx context.Context, task *models.Task, plan transcode.Plan) error {
	if err := s.ws.Rename(plan.TempPath, plan.FinalPath); err != nil {
		return err
	}

	size, err := s.ws.Size(plan.FinalPath)
	if err != nil {
		size = 0
	}

	asset := &models.Asset{
		OwnerID:     task.OwnerID,
		DisplayName: plan.FinalDisplayName,
		StoredPath:  plan.FinalPath,
		Status:      models.AssetStatusProcessed,
		SizeBytes:   size,
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		return err
	}

	task.MarkCompleted(asset.ID)
	if err := s.tasks.Update(ctx, task); err != nil {
		return err
	}

	s.hub.Publish(task.ID, progress.Update{Progress: 100, Status: string(models.TaskStatusCompleted)})
	s.logger.Info("task completed",
		slog.String("task_id", task.ID.String()),
		slog.String("result_asset_id", asset.ID.String()))
	return nil
}

// fail marks a task failed, removes its temp output, and pushes the terminal
// status to any observer.
func (s *TaskService) fail(ctx context.Context, task *models.Task, tempPath, details string) {
	if tempPath != "" {
		_ = s.ws.Remove(tempPath)
	}

	task.MarkFailed(details)
	if err := s.tasks.Update(ctx, task); err != nil {
		s.logger.Error("marking task failed",
			slog.String("task_id", task.ID.String()), slog.Any("error", err))
	}

	s.hub.Publish(task.ID, progress.Update{Progress: task.Progress, Status: string(models.TaskStatusFailed)})
	s.logger.Warn("task failed",
		slog.String("task_id", task.ID.String()),
		slog.String("details", details))
}

// failureDetails maps a runner error to the diagnostic blob stored on the
// task.
func failureDetails(runErr error, tail []string) string {
	switch {
	case errors.Is(runErr, models.ErrTranscoderStalled):
		return "stalled"
	case errors.Is(runErr, models.ErrCancelled):
		return "cancelled"
	case errors.Is(runErr, models.ErrTranscoderMissing):
		return runErr.Error()
	default:
		if len(tail) > 0 {
			return strings.Join(tail, "\n")
		}
		return runErr.Error()
	}
}

// List returns a page of an owner's tasks, newest first.
func (s *TaskService) List(ctx context.Context, ownerID models.ULID, skip int) ([]*models.Task, error) {
	if skip < 0 {
		skip = 0
	}
	return s.tasks.GetByOwner(ctx, ownerID, skip, taskPageSize)
}

// GetOwned fetches a task snapshot and enforces ownership.
func (s *TaskService) GetOwned(ctx context.Context, ownerID, taskID models.ULID) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, models.ErrNotFound
	}
	if task.OwnerID != ownerID {
		return nil, models.ErrForbidden
	}
	return task, nil
}

// Cancel stops a task: a still-queued task is removed from its queue and
// marked failed without ever reaching processing; a running task's process
// is killed and the run path marks it failed. Cancel after a terminal state
// is a no-op.
func (s *TaskService) Cancel(ctx context.Context, ownerID, taskID models.ULID) error {
	task, err := s.GetOwned(ctx, ownerID, taskID)
	if err != nil {
		return err
	}
	if task.IsTerminal() {
		return nil
	}

	if s.queues.Remove(taskID) {
		s.fail(ctx, task, task.PlannedFinalPath, "cancelled")
		return nil
	}

	if s.runner.Kill(taskID) {
		// The runner's return path marks the task failed and cleans up.
		return nil
	}

	// Neither queued nor running: a race with dispatch pickup or a stale
	// pending row. Mark failed directly.
	s.fail(ctx, task, "", "cancelled")
	return nil
}

// Delete cancels a task if needed and removes its record.
func (s *TaskService) Delete(ctx context.Context, ownerID, taskID models.ULID) error {
	if err := s.Cancel(ctx, ownerID, taskID); err != nil {
		return err
	}
	return s.tasks.Delete(ctx, taskID)
}

// RecoverInFlight marks every non-terminal task failed. Called once at
// startup, before the dispatcher begins consuming, so tasks orphaned by a
// crash never present as live work.
func (s *TaskService) RecoverInFlight(ctx context.Context) error {
	stale, err := s.tasks.GetNonTerminal(ctx)
	if err != nil {
		return err
	}
	for _, task := range stale {
		task.MarkFailed(restartedDetails)
		if err := s.tasks.Update(ctx, task); err != nil {
			return err
		}
		s.logger.Warn("recovered in-flight task",
			slog.String("task_id", task.ID.String()))
	}
	if len(stale) > 0 {
		s.logger.Info("crash recovery complete", slog.Int("tasks_failed", len(stale)))
	}
	return nil
}
