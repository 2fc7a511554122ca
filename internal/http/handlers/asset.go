package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/mediaforge/mediaforge/internal/auth"
	"github.com/mediaforge/mediaforge/internal/ffmpeg"
	"github.com/mediaforge/mediaforge/internal/models"
	"github.com/mediaforge/mediaforge/internal/service"
)

// AssetHandler handles the per-user file catalogue endpoints.
type AssetHandler struct {
	assets *service.AssetService
	logger *slog.Logger
}

// NewAssetHandler creates a new asset handler.
func NewAssetHandler(assets *service.AssetService, logger *slog.Logger) *AssetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetHandler{assets: assets, logger: logger}
}

// Register registers the JSON file routes with the API.
func (h *AssetHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listFiles",
		Method:      "GET",
		Path:        "/api/files",
		Summary:     "List files",
		Description: "Returns the caller's files, newest first",
		Tags:        []string{"Files"},
		Security:    BearerSecurity,
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getFileInfo",
		Method:      "GET",
		Path:        "/api/file-info",
		Summary:     "Get file info",
		Description: "Returns container and stream metadata for a file",
		Tags:        []string{"Files"},
		Security:    BearerSecurity,
	}, h.FileInfo)

	huma.Register(api, huma.Operation{
		OperationID: "deleteFile",
		Method:      "DELETE",
		Path:        "/api/delete-file",
		Summary:     "Delete file",
		Description: "Removes a file, its catalogue entry, and tasks referencing it",
		Tags:        []string{"Files"},
		Security:    BearerSecurity,
	}, h.Delete)
}

// RegisterRaw mounts the streaming routes (multipart upload, file download)
// on the router behind the given auth middleware.
func (h *AssetHandler) RegisterRaw(router chi.Router, requireUser func(http.Handler) http.Handler) {
	router.With(requireUser).Post("/api/upload", h.HandleUpload)
	router.With(requireUser).Get("/api/download-file/{id}", h.HandleDownload)
}

// HandleUpload stores one multipart file field. The declared Content-Length
// is checked up front; the copy itself is bounded again so a forged header
// cannot defeat the limit.
func (h *AssetHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	if err := h.assets.CheckDeclaredSize(r.ContentLength); err != nil {
		http.Error(w, fmt.Sprintf("file exceeds the %d byte upload limit", h.assets.MaxUploadSize()),
			http.StatusRequestEntityTooLarge)
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expected multipart/form-data", http.StatusBadRequest)
		return
	}

	var asset *models.Asset
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, "reading multipart body", http.StatusBadRequest)
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		asset, err = h.assets.Upload(r.Context(), user.ID, part.FileName(), part)
		_ = part.Close()
		if err != nil {
			h.writeUploadError(w, err)
			return
		}
		break
	}

	if asset == nil {
		http.Error(w, "no file field in upload", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(AssetFromModel(asset))
}

func (h *AssetHandler) writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrTooLarge):
		http.Error(w, fmt.Sprintf("file exceeds the %d byte upload limit", h.assets.MaxUploadSize()),
			http.StatusRequestEntityTooLarge)
	case errors.Is(err, models.ErrUnsupportedFormat):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("upload failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// HandleDownload streams a file back under its display name.
func (h *AssetHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	id, err := models.ParseULID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid file id", http.StatusBadRequest)
		return
	}

	asset, err := h.assets.GetOwned(r.Context(), user.ID, id)
	if err != nil {
		h.writeOwnershipError(w, err)
		return
	}
	path, err := h.assets.ResolvePath(asset)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": asset.DisplayName})
	w.Header().Set("Content-Disposition", disposition)
	http.ServeFile(w, r, path)
}

func (h *AssetHandler) writeOwnershipError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "file not found", http.StatusNotFound)
	case errors.Is(err, models.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		h.logger.Error("loading asset", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// ListFilesInput is the input for listing files.
type ListFilesInput struct{}

// ListFilesOutput is the output for listing files.
type ListFilesOutput struct {
	Body struct {
		Files []AssetResponse `json:"files"`
	}
}

// List returns the caller's files.
func (h *AssetHandler) List(ctx context.Context, _ *ListFilesInput) (*ListFilesOutput, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	assets, err := h.assets.List(ctx, user.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list files", err)
	}

	resp := &ListFilesOutput{}
	resp.Body.Files = make([]AssetResponse, 0, len(assets))
	for _, a := range assets {
		resp.Body.Files = append(resp.Body.Files, AssetFromModel(a))
	}
	return resp, nil
}

// FileInfoInput is the input for the file-info endpoint.
type FileInfoInput struct {
	Filename string `query:"filename" required:"true" doc:"File ID (ULID)"`
}

// FileInfoOutput is the output for the file-info endpoint.
type FileInfoOutput struct {
	Body struct {
		Filename string               `json:"filename"`
		Duration float64              `json:"duration"`
		Format   ffmpeg.ProbeFormat   `json:"format"`
		Streams  []ffmpeg.ProbeStream `json:"streams"`
	}
}

// FileInfo probes a file and returns its metadata.
func (h *AssetHandler) FileInfo(ctx context.Context, input *FileInfoInput) (*FileInfoOutput, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	id, err := models.ParseULID(input.Filename)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid file id", err)
	}

	asset, err := h.assets.GetOwned(ctx, user.ID, id)
	if err != nil {
		return nil, translateOwnershipError(err, "file")
	}

	probe, err := h.assets.Probe(ctx, user.ID, id)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return nil, huma.Error404NotFound("file not found")
		case errors.Is(err, models.ErrTranscoderMissing):
			return nil, huma.Error503ServiceUnavailable("probe binary unavailable")
		default:
			return nil, huma.Error500InternalServerError("failed to probe file", err)
		}
	}

	resp := &FileInfoOutput{}
	resp.Body.Filename = asset.DisplayName
	resp.Body.Duration = probe.DurationSeconds()
	resp.Body.Format = probe.Format
	// Hide the on-disk location.
	resp.Body.Format.Filename = asset.DisplayName
	resp.Body.Streams = probe.Streams
	return resp, nil
}

// DeleteFileInput is the input for deleting a file.
type DeleteFileInput struct {
	Filename string `query:"filename" required:"true" doc:"File ID (ULID)"`
}

// DeleteFileOutput is the output for deleting a file.
type DeleteFileOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Delete removes a file and everything referencing it.
func (h *AssetHandler) Delete(ctx context.Context, input *DeleteFileInput) (*DeleteFileOutput, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	id, err := models.ParseULID(input.Filename)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid file id", err)
	}

	if err := h.assets.Delete(ctx, user.ID, id); err != nil {
		return nil, translateOwnershipError(err, "file")
	}

	resp := &DeleteFileOutput{}
	resp.Body.Message = "file deleted"
	return resp, nil
}

// translateOwnershipError maps service sentinels to huma status errors.
func translateOwnershipError(err error, noun string) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return huma.Error404NotFound(noun + " not found")
	case errors.Is(err, models.ErrForbidden):
		return huma.Error403Forbidden("forbidden")
	default:
		return huma.Error500InternalServerError("failed to load "+noun, err)
	}
}
