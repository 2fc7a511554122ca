// Package handlers provides HTTP API handlers for mediaforge.
package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mediaforge/mediaforge/internal/auth"
	"github.com/mediaforge/mediaforge/internal/models"
)

// BearerSecurity marks a huma operation as requiring a bearer token. The
// server's auth middleware enforces it.
var BearerSecurity = []map[string][]string{{"bearer": {}}}

// UserResponse represents an account in API responses.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// UserFromModel converts a user model to a response.
func UserFromModel(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

// AssetResponse represents a catalogued file in API responses. The on-disk
// location is deliberately never exposed.
type AssetResponse struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Status     string    `json:"status"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadDate time.Time `json:"upload_date"`
}

// AssetFromModel converts an asset model to a response.
func AssetFromModel(a *models.Asset) AssetResponse {
	return AssetResponse{
		ID:         a.ID.String(),
		Filename:   a.DisplayName,
		Status:     string(a.Status),
		SizeBytes:  a.SizeBytes,
		UploadDate: a.CreatedAt,
	}
}

// TaskResponse represents a transcoding task in API responses.
type TaskResponse struct {
	ID             string    `json:"id"`
	SourceFilename string    `json:"source_filename"`
	Command        string    `json:"command"`
	Status         string    `json:"status"`
	Progress       int       `json:"progress"`
	Details        string    `json:"details,omitempty"`
	ResultAssetID  string    `json:"result_asset_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TaskFromModel converts a task model to a response.
func TaskFromModel(t *models.Task) TaskResponse {
	resp := TaskResponse{
		ID:             t.ID.String(),
		SourceFilename: t.SourceDisplayName,
		Command:        t.Command,
		Status:         string(t.Status),
		Progress:       t.Progress,
		Details:        t.Details,
		CreatedAt:      t.CreatedAt,
	}
	if t.ResultAssetID != nil {
		resp.ResultAssetID = t.ResultAssetID.String()
	}
	return resp
}

// currentUser pulls the authenticated account from the context. The auth
// middleware guarantees presence on operations carrying BearerSecurity.
func currentUser(ctx context.Context) (*models.User, error) {
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("Not authenticated")
	}
	return user, nil
}
