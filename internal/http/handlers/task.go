package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mediaforge/mediaforge/internal/models"
	"github.com/mediaforge/mediaforge/internal/service"
	"github.com/mediaforge/mediaforge/internal/transcode"
)

// TaskHandler handles the transcoding task endpoints.
type TaskHandler struct {
	tasks  *service.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(tasks *service.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{tasks: tasks, logger: logger}
}

// Register registers the task routes with the API.
func (h *TaskHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "processFiles",
		Method:      "POST",
		Path:        "/api/process",
		Summary:     "Start transcoding",
		Description: "Creates and enqueues one task per referenced file",
		Tags:        []string{"Tasks"},
		Security:    BearerSecurity,
	}, h.Process)

	huma.Register(api, huma.Operation{
		OperationID: "listTasks",
		Method:      "GET",
		Path:        "/api/tasks",
		Summary:     "List tasks",
		Description: "Returns the caller's tasks, newest first",
		Tags:        []string{"Tasks"},
		Security:    BearerSecurity,
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getTaskStatus",
		Method:      "GET",
		Path:        "/api/task-status/{id}",
		Summary:     "Get task status",
		Description: "Returns a task snapshot",
		Tags:        []string{"Tasks"},
		Security:    BearerSecurity,
	}, h.Status)

	huma.Register(api, huma.Operation{
		OperationID: "deleteTask",
		Method:      "DELETE",
		Path:        "/api/tasks/{id}",
		Summary:     "Delete task",
		Description: "Cancels a task if live and removes its record",
		Tags:        []string{"Tasks"},
		Security:    BearerSecurity,
	}, h.Delete)
}

// ProcessInput is the input for starting transcoding.
type ProcessInput struct {
	Body transcode.Request
}

// ProcessOutput is the output for starting transcoding.
type ProcessOutput struct {
	Body struct {
		Tasks []TaskResponse `json:"tasks"`
	}
}

// Process creates one task per valid referenced file.
func (h *TaskHandler) Process(ctx context.Context, input *ProcessInput) (*ProcessOutput, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	created, err := h.tasks.CreateTasks(ctx, user.ID, input.Body)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			return nil, huma.Error404NotFound("no usable source files in request")
		}
		return nil, huma.Error500InternalServerError("failed to create tasks", err)
	}

	resp := &ProcessOutput{}
	resp.Body.Tasks = make([]TaskResponse, 0, len(created))
	for _, t := range created {
		resp.Body.Tasks = append(resp.Body.Tasks, TaskFromModel(t))
	}
	return resp, nil
}

// ListTasksInput is the input for listing tasks.
type ListTasksInput struct {
	Skip int `query:"skip" default:"0" minimum:"0" doc:"Number of tasks to skip"`
}

// ListTasksOutput is the output for listing tasks.
type ListTasksOutput struct {
	Body struct {
		Tasks []TaskResponse `json:"tasks"`
	}
}

// List returns a page of the caller's tasks.
func (h *TaskHandler) List(ctx context.Context, input *ListTasksInput) (*ListTasksOutput, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	tasks, err := h.tasks.List(ctx, user.ID, input.Skip)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list tasks", err)
	}

	resp := &ListTasksOutput{}
	resp.Body.Tasks = make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp.Body.Tasks = append(resp.Body.Tasks, TaskFromModel(t))
	}
	return resp, nil
}

// TaskStatusInput is the input for the task-status endpoint.
type TaskStatusInput struct {
	ID string `path:"id" doc:"Task ID (ULID)"`
}

// TaskStatusOutput is the output for the task-status endpoint.
type TaskStatusOutput struct {
	Body TaskResponse
}

// Status returns a task snapshot.
func (h *TaskHandler) Status(ctx context.Context, input *TaskStatusInput) (*TaskStatusOutput, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid task id", err)
	}

	task, err := h.tasks.GetOwned(ctx, user.ID, id)
	if err != nil {
		return nil, translateOwnershipError(err, "task")
	}
	return &TaskStatusOutput{Body: TaskFromModel(task)}, nil
}

// DeleteTaskInput is the input for deleting a task.
type DeleteTaskInput struct {
	ID string `path:"id" doc:"Task ID (ULID)"`
}

// DeleteTaskOutput is the output for deleting a task.
type DeleteTaskOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Delete cancels a task if still live and removes its record.
func (h *TaskHandler) Delete(ctx context.Context, input *DeleteTaskInput) (*DeleteTaskOutput, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid task id", err)
	}

	if err := h.tasks.Delete(ctx, user.ID, id); err != nil {
		return nil, translateOwnershipError(err, "task")
	}

	resp := &DeleteTaskOutput{}
	resp.Body.Message = "task deleted"
	return resp, nil
}
