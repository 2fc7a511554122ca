package models

import "gorm.io/gorm"

// TaskStatus represents the current status of a transcoding task.
//
// Transitions are only pending → processing → {completed, failed}; a task
// never returns from a terminal state. A task cancelled while still queued
// goes pending → failed without passing through processing.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is queued and waiting.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusProcessing indicates the transcoder is running.
	TaskStatusProcessing TaskStatus = "processing"
	// TaskStatusCompleted indicates the task finished and its artifact was
	// registered as a new asset.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed, stalled, or was cancelled.
	TaskStatusFailed TaskStatus = "failed"
)

// Task is one transcoder invocation and the state tracking its lifetime.
type Task struct {
	BaseModel

	// OwnerID is the user that created this task.
	OwnerID ULID `gorm:"not null;type:varchar(26);index" json:"owner_id"`

	// SourceDisplayName is the display name of the source asset, copied at
	// creation time for historical reference.
	SourceDisplayName string `gorm:"size:512" json:"source_display_name"`

	// Command is the full transcoder command as a single shell-printable
	// string, kept for diagnostics.
	Command string `gorm:"size:4096" json:"command"`

	// PlannedFinalPath is where the artifact will land on success.
	PlannedFinalPath string `gorm:"size:1024" json:"-"`

	// Status is the lifecycle state.
	Status TaskStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// Progress is 0-100, monotonically non-decreasing until terminal.
	// 100 is published only after post-processing succeeds.
	Progress int `gorm:"default:0" json:"progress"`

	// Details carries the last stderr tail or a short failure reason.
	Details string `gorm:"size:4096" json:"details,omitempty"`

	// ResultAssetID references the produced asset. Set iff completed.
	ResultAssetID *ULID `gorm:"type:varchar(26);index" json:"result_asset_id,omitempty"`
}

// TableName returns the table name for Task.
func (Task) TableName() string {
	return "tasks"
}

// IsTerminal returns true once the task reached completed or failed.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// MarkProcessing marks the task as picked up by the dispatcher.
func (t *Task) MarkProcessing() {
	t.Status = TaskStatusProcessing
	t.Progress = 0
}

// MarkCompleted marks the task as completed with its produced asset.
func (t *Task) MarkCompleted(resultAssetID ULID) {
	t.Status = TaskStatusCompleted
	t.Progress = 100
	t.ResultAssetID = &resultAssetID
	t.Details = "completed"
}

// MarkFailed marks the task as failed with a diagnostic reason.
func (t *Task) MarkFailed(details string) {
	t.Status = TaskStatusFailed
	t.ResultAssetID = nil
	t.Details = details
}

// AdvanceProgress raises progress without ever lowering it.
func (t *Task) AdvanceProgress(progress int) {
	if progress > t.Progress {
		t.Progress = progress
	}
}

// BeforeCreate is a GORM hook that validates the task and generates a ULID.
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if err := t.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if t.Status == "" {
		t.Status = TaskStatusPending
	}
	if t.OwnerID.IsZero() {
		return ErrBadRequest
	}
	return nil
}
