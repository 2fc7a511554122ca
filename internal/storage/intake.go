package storage

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/models"
	"github.com/mediaforge/mediaforge/internal/observability"
)

// copyChunkSize is the streaming copy granularity for uploads.
const copyChunkSize = 1024 * 1024

// Intake validates and persists uploads into the workspace.
type Intake struct {
	ws      *Workspace
	cfg     config.StorageConfig
	logger  *slog.Logger
	maxSize int64
}

// NewIntake creates an upload intake over a workspace.
func NewIntake(ws *Workspace, cfg config.StorageConfig, log *slog.Logger) *Intake {
	if log == nil {
		log = slog.Default()
	}
	return &Intake{
		ws:      ws,
		cfg:     cfg,
		logger:  observability.WithComponent(log, "intake"),
		maxSize: int64(cfg.MaxUploadSize),
	}
}

// MaxSize returns the upload size bound in bytes.
func (in *Intake) MaxSize() int64 {
	return in.maxSize
}

// CheckDeclaredSize fast-rejects an upload by its declared content length.
// Zero or negative means unknown; those pass and are enforced while copying.
func (in *Intake) CheckDeclaredSize(declared int64) error {
	if declared > in.maxSize {
		return fmt.Errorf("%w: limit is %d bytes", models.ErrTooLarge, in.maxSize)
	}
	return nil
}

// Save streams an upload to the owner's directory under a fresh opaque
// basename. The extension must be allowlisted, the leading bytes must match
// the claimed container, and the size bound is enforced while copying so a
// forged content length cannot bypass it. The partial file is removed on any
// failure.
func (in *Intake) Save(ownerID models.ULID, filename string, r io.Reader) (storedPath string, size int64, err error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || !in.cfg.ExtensionAllowed(ext) {
		return "", 0, fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, ext)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", 0, fmt.Errorf("reading upload: %w", err)
	}
	head = head[:n]

	if !matchSignature(ext, head) {
		return "", 0, fmt.Errorf("%w: content does not match %s", models.ErrUnsupportedFormat, ext)
	}

	storedPath, err = in.ws.NewStoredPath(ownerID, ext)
	if err != nil {
		return "", 0, err
	}

	out, err := os.OpenFile(storedPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("creating upload file: %w", err)
	}

	cleanup := func() {
		_ = out.Close()
		_ = os.Remove(storedPath)
	}

	size, err = in.copyBounded(out, io.MultiReader(bytes.NewReader(head), r))
	if err != nil {
		cleanup()
		return "", 0, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(storedPath)
		return "", 0, fmt.Errorf("closing upload file: %w", err)
	}

	in.logger.Debug("upload stored",
		slog.String("owner_id", ownerID.String()),
		slog.String("path", storedPath),
		slog.Int64("size", size))

	return storedPath, size, nil
}

// copyBounded copies r to w enforcing the size bound chunk by chunk.
func (in *Intake) copyBounded(w io.Writer, r io.Reader) (int64, error) {
	var written int64
	buf := make([]byte, copyChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > in.maxSize {
				return written, fmt.Errorf("%w: limit is %d bytes", models.ErrTooLarge, in.maxSize)
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("writing upload: %w", werr)
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, fmt.Errorf("reading upload: %w", err)
		}
	}
}
