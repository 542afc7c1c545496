package implementation

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"notesync-be/internal/config"
	"notesync-be/internal/entity"
	"notesync-be/internal/model"
	"notesync-be/internal/repository/contract"
	"notesync-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) (*gorm.DB, int) {
	t.Helper()
	_ = godotenv.Load("../../../.env")
	if os.Getenv("DB_CONNECTION_STRING") == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}
	cfg := config.Load()

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	ctx := context.Background()
	require.NoError(t, database.EnsureVectorExtension(ctx, db))
	require.NoError(t, db.AutoMigrate(&model.Record{}, &model.Tombstone{}, &model.RetryEntry{}, &model.LongJob{}))
	return db, cfg.Vector.Dimension
}

func unitVector(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = 1
	return v
}

func TestPrimaryStore_Postgres(t *testing.T) {
	db, dim := openTestDB(t)
	ctx := context.Background()
	store := NewPrimaryStore(db)
	tenant := "it-" + uuid.NewString()
	t.Cleanup(func() { db.Where("tenant_id = ?", tenant).Delete(&model.Record{}) })

	records := []*entity.Record{
		{UniqueID: "n1", TenantID: tenant, RecordType: entity.RecordTypeNote, Title: "alpha", Created: 1, LastModified: 100,
			Tags: []entity.TagRef{{ID: "t1"}}, Vector: unitVector(dim, 0)},
		{UniqueID: "n2", TenantID: tenant, RecordType: entity.RecordTypeNote, Title: "beta", Created: 1, LastModified: 200,
			Vector: unitVector(dim, 1)},
	}
	for _, r := range records {
		r.SyncTagIDs()
	}
	require.NoError(t, store.UpsertBatch(ctx, records))

	t.Run("fetch window is strict", func(t *testing.T) {
		after := int64(100)
		got, err := store.Fetch(ctx, entity.RecordFilter{TenantID: tenant, ModifiedAfter: &after}, 10, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "n2", got[0].UniqueID)
	})

	t.Run("tag filter", func(t *testing.T) {
		got, err := store.Fetch(ctx, entity.RecordFilter{TenantID: tenant, AnyTagIDs: []string{"t1"}}, 10, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "n1", got[0].UniqueID)
	})

	t.Run("nearest neighbour first", func(t *testing.T) {
		got, err := store.QueryByVector(ctx, entity.VectorQuery{Filter: entity.RecordFilter{TenantID: tenant}, Vector: unitVector(dim, 1)}, 2, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "n2", got[0].UniqueID)
	})

	t.Run("metadata update and delete", func(t *testing.T) {
		title := "gamma"
		updated, err := store.UpdateMetadata(ctx, tenant, "n1", &entity.MetadataUpdate{Title: &title, LastModified: 300})
		require.NoError(t, err)
		assert.Equal(t, "gamma", updated.Title)

		require.NoError(t, store.DeleteMany(ctx, tenant, []string{"n1", "n2"}))
		got, err := store.Get(ctx, tenant, "n1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestLedgers_Postgres(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	tenant := "it-" + uuid.NewString()
	t.Cleanup(func() { db.Where("tenant_id = ?", tenant).Delete(&model.Tombstone{}) })

	tombstones := NewTombstoneRepository(db)
	blob := "s3://bucket/a.png"
	require.NoError(t, tombstones.Append(ctx, []*entity.Tombstone{
		{UniqueID: "n1", RecordType: entity.RecordTypeNote, TenantID: tenant, DeletedAt: 1000, BlobPath: &blob},
	}))
	got, err := tombstones.FindSince(ctx, tenant, 1000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, blob, *got[0].BlobPath)

	// one bulk delete shares a deletedAt; pages must still walk all of it
	bulkAt := time.Now().UnixNano()
	bulk := make([]*entity.Tombstone, 3)
	for i := range bulk {
		path := fmt.Sprintf("acme/bulk-%d.png", i)
		bulk[i] = &entity.Tombstone{UniqueID: fmt.Sprintf("b%d", i), RecordType: entity.RecordTypeNote, TenantID: tenant, DeletedAt: bulkAt, BlobPath: &path}
	}
	require.NoError(t, tombstones.Append(ctx, bulk))
	start := entity.TombstoneCursor{DeletedAt: bulkAt - 1}
	first, err := tombstones.FindWithBlobBetween(ctx, start, bulkAt, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	rest, err := tombstones.FindWithBlobBetween(ctx, entity.CursorOf(first[1]), bulkAt, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.NotContains(t, []uuid.UUID{first[0].ID, first[1].ID}, rest[0].ID)

	jobs := NewLongJobRepository(db)
	job := &entity.LongJob{Status: entity.JobStatusStarted, JobType: "sync", OwnerID: tenant}
	require.NoError(t, jobs.Create(ctx, job))
	t.Cleanup(func() { db.Delete(&model.LongJob{}, "id = ?", job.ID) })

	require.NoError(t, jobs.UpdateStatus(ctx, job.ID, entity.JobStatusCompleted, map[string]any{"n": 1}))
	assert.ErrorIs(t, jobs.UpdateStatus(ctx, job.ID, entity.JobStatusProcessing, nil), contract.ErrInvalidTransition)

	found, err := jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, found.Status)
	assert.WithinDuration(t, time.Now(), found.UpdatedAt, time.Minute)
}
