package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mediaforge/mediaforge/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.User{}, &models.Asset{}, &models.Task{})
	require.NoError(t, err)

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username:       username,
		HashedPassword: "$2a$10$notarealhashnotarealhashnotarealhash",
	}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}

func TestUserRepo_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &models.User{
		Username:       "alice",
		HashedPassword: "$2a$10$notarealhash",
	}

	err := repo.Create(ctx, user)
	require.NoError(t, err)
	assert.False(t, user.ID.IsZero())

	found, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "alice", found.Username)
}

func TestUserRepo_Create_DuplicateUsername(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	createTestUser(t, db, "alice")

	dup := &models.User{Username: "alice", HashedPassword: "$2a$10$other"}
	err := repo.Create(ctx, dup)
	require.Error(t, err)
}

func TestUserRepo_GetByUsername(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createTestUser(t, db, "bob")

	t.Run("existing user", func(t *testing.T) {
		found, err := repo.GetByUsername(ctx, "bob")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, user.ID, found.ID)
	})

	t.Run("non-existent user", func(t *testing.T) {
		found, err := repo.GetByUsername(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestAssetRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssetRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "alice")

	asset := &models.Asset{
		OwnerID:     owner.ID,
		DisplayName: "clip.mp4",
		StoredPath:  "/data/uploads/x/abc.mp4",
		SizeBytes:   2048,
	}

	require.NoError(t, repo.Create(ctx, asset))
	assert.False(t, asset.ID.IsZero())
	assert.Equal(t, models.AssetStatusUploaded, asset.Status)

	found, err := repo.GetByID(ctx, asset.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "clip.mp4", found.DisplayName)
	assert.Equal(t, int64(2048), found.SizeBytes)
}

func TestAssetRepo_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssetRepository(db)

	found, err := repo.GetByID(context.Background(), models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestAssetRepo_GetByOwner(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssetRepository(db)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	for _, name := range []string{"a.mp4", "b.mkv", "c.mp3"} {
		require.NoError(t, repo.Create(ctx, &models.Asset{
			OwnerID:     alice.ID,
			DisplayName: name,
			StoredPath:  "/data/" + name,
		}))
	}
	require.NoError(t, repo.Create(ctx, &models.Asset{
		OwnerID:     bob.ID,
		DisplayName: "other.mp4",
		StoredPath:  "/data/other.mp4",
	}))

	assets, err := repo.GetByOwner(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, assets, 3)
	for _, a := range assets {
		assert.Equal(t, alice.ID, a.OwnerID)
	}
}

func TestAssetRepo_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssetRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "alice")
	asset := &models.Asset{
		OwnerID:     owner.ID,
		DisplayName: "clip.mp4",
		StoredPath:  "/data/clip.mp4",
	}
	require.NoError(t, repo.Create(ctx, asset))

	asset.Status = models.AssetStatusProcessed
	asset.SizeBytes = 4096
	require.NoError(t, repo.Update(ctx, asset))

	found, err := repo.GetByID(ctx, asset.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.AssetStatusProcessed, found.Status)
	assert.Equal(t, int64(4096), found.SizeBytes)
}

func TestAssetRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssetRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "alice")
	asset := &models.Asset{
		OwnerID:     owner.ID,
		DisplayName: "clip.mp4",
		StoredPath:  "/data/clip.mp4",
	}
	require.NoError(t, repo.Create(ctx, asset))

	require.NoError(t, repo.Delete(ctx, asset.ID))

	found, err := repo.GetByID(ctx, asset.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestTaskRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "alice")

	task := &models.Task{
		OwnerID:           owner.ID,
		SourceDisplayName: "clip.mp4",
		Command:           "ffmpeg -i clip.mp4 out.mp4",
		PlannedFinalPath:  "/data/out.mp4",
	}

	require.NoError(t, repo.Create(ctx, task))
	assert.False(t, task.ID.IsZero())
	assert.Equal(t, models.TaskStatusPending, task.Status)

	found, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "clip.mp4", found.SourceDisplayName)
}

func TestTaskRepo_GetByOwner_Pagination(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "alice")

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &models.Task{
			OwnerID:           owner.ID,
			SourceDisplayName: "clip.mp4",
		}))
		// Distinct created_at values so ordering is deterministic.
		time.Sleep(2 * time.Millisecond)
	}

	first, err := repo.GetByOwner(ctx, owner.ID, 0, 3)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	rest, err := repo.GetByOwner(ctx, owner.ID, 3, 3)
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	// Newest first.
	require.NotEmpty(t, first)
	require.NotEmpty(t, rest)
	assert.True(t, first[0].CreatedAt.After(rest[len(rest)-1].CreatedAt) ||
		first[0].CreatedAt.Equal(rest[len(rest)-1].CreatedAt))
}

func TestTaskRepo_GetNonTerminal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "alice")

	pending := &models.Task{OwnerID: owner.ID, SourceDisplayName: "a.mp4"}
	require.NoError(t, repo.Create(ctx, pending))

	processing := &models.Task{OwnerID: owner.ID, SourceDisplayName: "b.mp4"}
	require.NoError(t, repo.Create(ctx, processing))
	processing.MarkProcessing()
	require.NoError(t, repo.Update(ctx, processing))

	done := &models.Task{OwnerID: owner.ID, SourceDisplayName: "c.mp4"}
	require.NoError(t, repo.Create(ctx, done))
	done.MarkFailed("boom")
	require.NoError(t, repo.Update(ctx, done))

	tasks, err := repo.GetNonTerminal(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, tk := range tasks {
		assert.False(t, tk.IsTerminal())
	}
}

func TestTaskRepo_UpdateProgress(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "alice")
	task := &models.Task{OwnerID: owner.ID, SourceDisplayName: "clip.mp4"}
	require.NoError(t, repo.Create(ctx, task))

	require.NoError(t, repo.UpdateProgress(ctx, task.ID, 42))

	found, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 42, found.Progress)
}

func TestTaskRepo_DeleteBySourceDisplayName(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	require.NoError(t, repo.Create(ctx, &models.Task{OwnerID: alice.ID, SourceDisplayName: "clip.mp4"}))
	require.NoError(t, repo.Create(ctx, &models.Task{OwnerID: alice.ID, SourceDisplayName: "clip.mp4"}))
	require.NoError(t, repo.Create(ctx, &models.Task{OwnerID: alice.ID, SourceDisplayName: "other.mp4"}))
	require.NoError(t, repo.Create(ctx, &models.Task{OwnerID: bob.ID, SourceDisplayName: "clip.mp4"}))

	n, err := repo.DeleteBySourceDisplayName(ctx, alice.ID, "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Bob's task with the same name is untouched.
	remaining, err := repo.GetByOwner(ctx, bob.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestTaskRepo_DeleteByResultAssetID(t *testing.T) {
	db := setupTestDB(t)
	taskRepo := NewTaskRepository(db)
	assetRepo := NewAssetRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "alice")

	asset := &models.Asset{
		OwnerID:     owner.ID,
		DisplayName: "clip_processed.mp4",
		StoredPath:  "/data/clip_processed.mp4",
		Status:      models.AssetStatusProcessed,
	}
	require.NoError(t, assetRepo.Create(ctx, asset))

	task := &models.Task{OwnerID: owner.ID, SourceDisplayName: "clip.mp4"}
	require.NoError(t, taskRepo.Create(ctx, task))
	task.MarkCompleted(asset.ID)
	require.NoError(t, taskRepo.Update(ctx, task))

	n, err := taskRepo.DeleteByResultAssetID(ctx, owner.ID, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err := taskRepo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}
