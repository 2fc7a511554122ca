package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/models"
	"github.com/mediaforge/mediaforge/internal/repository"
)

func testWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	return ws
}

func testStorageConfig(root string) config.StorageConfig {
	return config.StorageConfig{
		WorkspaceRoot:     root,
		MaxUploadSize:     1024,
		AllowedExtensions: []string{".mp4", ".mp3", ".mkv", ".wav"},
		TempRetention:     config.Duration(24 * time.Hour),
		JanitorSchedule:   "0 0 3 * * *",
	}
}

// mp4Header fabricates a plausible ISO BMFF file head.
func mp4Header() []byte {
	head := make([]byte, 16)
	copy(head[4:], "ftypisom")
	return head
}

func TestWorkspace_OwnerLayout(t *testing.T) {
	ws := testWorkspace(t)
	owner := models.NewULID()

	path, err := ws.NewStoredPath(owner, ".mp4")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(path, filepath.Join(ws.Root(), owner.String())+string(filepath.Separator)))
	assert.True(t, strings.HasSuffix(path, ".mp4"))

	// Fresh opaque basenames never collide.
	other, err := ws.NewStoredPath(owner, ".mp4")
	require.NoError(t, err)
	assert.NotEqual(t, path, other)
}

func TestWorkspace_RenameUnlinksExistingDestination(t *testing.T) {
	ws := testWorkspace(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "src.mp4")
	dst := filepath.Join(dir, "dst.mp4")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	require.NoError(t, ws.Rename(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	assert.False(t, ws.Exists(src))
}

func TestWorkspace_RemoveMissingIsNoError(t *testing.T) {
	ws := testWorkspace(t)
	assert.NoError(t, ws.Remove(filepath.Join(t.TempDir(), "absent.mp4")))
}

func TestWorkspace_ResolveLegacyPath(t *testing.T) {
	ws := testWorkspace(t)
	owner := models.NewULID()

	dir, err := ws.OwnerDir(owner)
	require.NoError(t, err)
	current := filepath.Join(dir, "abc123.mp4")
	require.NoError(t, os.WriteFile(current, []byte("x"), 0o644))

	t.Run("existing path returned verbatim", func(t *testing.T) {
		assert.Equal(t, current, ws.Resolve(current, owner))
	})

	t.Run("moved prefix reconstructed by basename", func(t *testing.T) {
		legacy := filepath.Join("/old/uploads", owner.String(), "abc123.mp4")
		assert.Equal(t, current, ws.Resolve(legacy, owner))
	})

	t.Run("missing everywhere", func(t *testing.T) {
		assert.Empty(t, ws.Resolve("/old/uploads/nope.mp4", owner))
	})
}

func TestIntake_SaveValidUpload(t *testing.T) {
	ws := testWorkspace(t)
	in := NewIntake(ws, testStorageConfig(ws.Root()), nil)
	owner := models.NewULID()

	content := append(mp4Header(), bytes.Repeat([]byte{0xAB}, 100)...)
	path, size, err := in.Save(owner, "clip.mp4", bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, int64(len(content)), size)
	assert.True(t, ws.Exists(path))
	assert.True(t, strings.HasPrefix(path, filepath.Join(ws.Root(), owner.String())))
	assert.NotContains(t, filepath.Base(path), "clip", "stored basename is opaque")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestIntake_RejectsDisallowedExtension(t *testing.T) {
	ws := testWorkspace(t)
	in := NewIntake(ws, testStorageConfig(ws.Root()), nil)

	_, _, err := in.Save(models.NewULID(), "evil.exe", bytes.NewReader([]byte("MZ")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnsupportedFormat))

	_, _, err = in.Save(models.NewULID(), "noext", bytes.NewReader([]byte("x")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnsupportedFormat))
}

func TestIntake_RejectsMismatchedSignature(t *testing.T) {
	ws := testWorkspace(t)
	in := NewIntake(ws, testStorageConfig(ws.Root()), nil)

	// Claims mp4 but carries an EBML (mkv) header.
	content := append([]byte{0x1A, 0x45, 0xDF, 0xA3}, bytes.Repeat([]byte{0}, 100)...)
	_, _, err := in.Save(models.NewULID(), "fake.mp4", bytes.NewReader(content))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnsupportedFormat))
}

func TestIntake_EnforcesSizeBoundWhileCopying(t *testing.T) {
	ws := testWorkspace(t)
	in := NewIntake(ws, testStorageConfig(ws.Root()), nil)
	owner := models.NewULID()

	oversize := append(mp4Header(), bytes.Repeat([]byte{0}, 2048)...)
	_, _, err := in.Save(owner, "big.mp4", bytes.NewReader(oversize))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTooLarge))

	// No partial file survives.
	dir := filepath.Join(ws.Root(), owner.String())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIntake_CheckDeclaredSize(t *testing.T) {
	ws := testWorkspace(t)
	in := NewIntake(ws, testStorageConfig(ws.Root()), nil)

	assert.NoError(t, in.CheckDeclaredSize(0))
	assert.NoError(t, in.CheckDeclaredSize(1024))
	assert.True(t, errors.Is(in.CheckDeclaredSize(1025), models.ErrTooLarge))
}

func TestIntake_SmallFilePassesSniff(t *testing.T) {
	ws := testWorkspace(t)
	in := NewIntake(ws, testStorageConfig(ws.Root()), nil)

	// Too short for a signature check; accepted.
	path, size, err := in.Save(models.NewULID(), "tiny.wav", bytes.NewReader([]byte("ab")))
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
	assert.True(t, ws.Exists(path))
}

func TestMatchSignature(t *testing.T) {
	pad := func(b []byte) []byte {
		out := make([]byte, 16)
		copy(out, b)
		return out
	}

	assert.True(t, matchSignature(".mp4", mp4Header()))
	assert.False(t, matchSignature(".mp4", pad([]byte("RIFF1234AVI "))))
	assert.True(t, matchSignature(".avi", pad([]byte("RIFF1234AVI "))))
	assert.True(t, matchSignature(".wav", pad([]byte("RIFF1234WAVE"))))
	assert.False(t, matchSignature(".wav", pad([]byte("RIFF1234AVI "))))
	assert.True(t, matchSignature(".mkv", pad([]byte{0x1A, 0x45, 0xDF, 0xA3})))
	assert.True(t, matchSignature(".flac", pad([]byte("fLaC"))))
	assert.True(t, matchSignature(".mp3", pad([]byte("ID3"))))
	assert.True(t, matchSignature(".mp3", pad([]byte{0xFF, 0xFB})))
	assert.False(t, matchSignature(".mp3", pad([]byte("OggS"))))
	assert.True(t, matchSignature(".ogg", pad([]byte("OggS"))))
	// Unknown extension passes through.
	assert.True(t, matchSignature(".xyz", pad([]byte("whatever"))))
	// Truncated content passes through.
	assert.True(t, matchSignature(".mp4", []byte("short")))
}

func setupJanitorDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Asset{}, &models.Task{}))
	return db
}

func TestJanitor_SweepRemovesOnlyOrphans(t *testing.T) {
	ws := testWorkspace(t)
	db := setupJanitorDB(t)
	ctx := context.Background()

	assetRepo := repository.NewAssetRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	user := &models.User{Username: "alice", HashedPassword: "x"}
	require.NoError(t, repository.NewUserRepository(db).Create(ctx, user))

	dir, err := ws.OwnerDir(user.ID)
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)

	writeAged := func(name string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(path, old, old))
		return path
	}

	kept := writeAged("kept.mp4")
	require.NoError(t, assetRepo.Create(ctx, &models.Asset{
		OwnerID:     user.ID,
		DisplayName: "clip.mp4",
		StoredPath:  kept,
	}))

	planned := writeAged("planned.mp4")
	require.NoError(t, taskRepo.Create(ctx, &models.Task{
		OwnerID:           user.ID,
		SourceDisplayName: "clip.mp4",
		PlannedFinalPath:  planned,
	}))

	orphan := writeAged("orphan.mp4")

	// Recent files are protected by retention regardless of references.
	recent := filepath.Join(dir, "recent.mp4")
	require.NoError(t, os.WriteFile(recent, []byte("x"), 0o644))

	cfg := testStorageConfig(ws.Root())
	j := NewJanitor(ws, assetRepo, taskRepo, cfg, nil)

	removed, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.True(t, ws.Exists(kept))
	assert.True(t, ws.Exists(planned))
	assert.True(t, ws.Exists(recent))
	assert.False(t, ws.Exists(orphan))
}

func TestJanitor_SweepCleanWorkspace(t *testing.T) {
	ws := testWorkspace(t)
	db := setupJanitorDB(t)

	j := NewJanitor(ws, repository.NewAssetRepository(db), repository.NewTaskRepository(db),
		testStorageConfig(ws.Root()), nil)

	removed, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
