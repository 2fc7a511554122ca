// Package storage manages the on-disk workspace: per-owner asset
// directories, upload intake, and cleanup of orphaned temp files.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mediaforge/mediaforge/internal/models"
)

// Workspace is the filesystem layout {root}/{owner_id}/{opaque-basename}.
type Workspace struct {
	root string
}

// NewWorkspace creates a Workspace rooted at dir, creating it if needed.
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// OwnerDir returns an owner's directory, creating it on first use.
func (w *Workspace) OwnerDir(ownerID models.ULID) (string, error) {
	dir := filepath.Join(w.root, ownerID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating owner directory: %w", err)
	}
	return dir, nil
}

// NewStoredPath generates a fresh opaque path in the owner's directory with
// the given dotted extension.
func (w *Workspace) NewStoredPath(ownerID models.ULID, ext string) (string, error) {
	dir, err := w.OwnerDir(ownerID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, uuid.NewString()+ext), nil
}

// Resolve maps a stored path to its current on-disk location. Paths recorded
// before a workspace move are reconstructed by basename into the owner's
// directory. Returns "" when the file exists nowhere.
func (w *Workspace) Resolve(storedPath string, ownerID models.ULID) string {
	if storedPath == "" {
		return ""
	}
	normalized := filepath.Clean(storedPath)
	if w.Exists(normalized) {
		return normalized
	}

	reconstructed := filepath.Join(w.root, ownerID.String(), filepath.Base(normalized))
	if w.Exists(reconstructed) {
		return reconstructed
	}
	return ""
}

// Exists reports whether a regular file exists at path.
func (w *Workspace) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Size returns the file size in bytes.
func (w *Workspace) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// Rename moves src to dst, unlinking any pre-existing dst first so a leftover
// destination never fails the move.
func (w *Workspace) Rename(src, dst string) error {
	if w.Exists(dst) {
		if err := os.Remove(dst); err != nil {
			return fmt.Errorf("unlinking existing destination: %w", err)
		}
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("renaming %s: %w", src, err)
	}
	return nil
}

// Remove deletes a file, treating an already-absent file as success.
func (w *Workspace) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}
