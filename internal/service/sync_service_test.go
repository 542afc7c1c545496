package service

import (
	"context"
	"database/sql/driver"
	"fmt"
	"testing"
	"time"

	"notesync-be/internal/entity"
	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/repository/memory"
	"notesync-be/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncFixture struct {
	dual       *dualWriteFixture
	svc        *syncService
	tombstones *tombstoneService
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	d := newDualWriteFixture(t)
	log := logger.NewNopLogger()
	tomb := NewTombstoneService(d.tombstones, log, d.metrics).(*tombstoneService)
	tomb.newBackOff = noBackOff
	svc := NewSyncService(d.primary, NewBatchFetcher(log, d.metrics), tomb, d.jobs, d.pool, log).(*syncService)
	return &syncFixture{dual: d, svc: svc, tombstones: tomb}
}

func TestSync_InsertThenSync(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	require.NoError(t, f.dual.svc.Insert(ctx, testNote("acme", "A", 100)))

	got, err := f.svc.SyncSince(ctx, SyncRequest{TenantID: "acme", LastSync: 50})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, recordIDs(got.Results))
	assert.Empty(t, got.DeletedResults)
	assert.True(t, got.TombstonesIncluded)
}

func TestSync_DeleteThenSync(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	require.NoError(t, f.dual.svc.Insert(ctx, testNote("acme", "A", 100)))
	f.dual.svc.now = func() int64 { return 200 }
	require.NoError(t, f.dual.svc.Delete(ctx, "acme", "A", entity.RecordTypeNote, ""))

	got, err := f.svc.SyncSince(ctx, SyncRequest{TenantID: "acme", LastSync: 150})
	require.NoError(t, err)
	assert.Empty(t, got.Results)
	require.Len(t, got.DeletedResults, 1)
	assert.Equal(t, "A", got.DeletedResults[0].UniqueID)
	assert.Equal(t, int64(200), got.DeletedResults[0].DeletedAt)
}

func TestSync_ReplicaFailureDoesNotFailInsert(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	f.dual.replica.FailOn("Insert", errStoreDown)

	require.NoError(t, f.dual.svc.Insert(ctx, testNote("acme", "B", 100)))

	got, err := f.svc.SyncSince(ctx, SyncRequest{TenantID: "acme", LastSync: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, recordIDs(got.Results))
}

func TestSync_WindowIsBackdatedOneMinute(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	for id, modified := range map[string]int64{"old": 39_999, "edge": 40_000, "skewed": 40_001, "new": 100_000} {
		require.NoError(t, f.dual.primary.Insert(ctx, testNote("acme", id, modified)))
	}

	got, err := f.svc.SyncSince(ctx, SyncRequest{TenantID: "acme", LastSync: 100_000})
	require.NoError(t, err)
	assert.Equal(t, []string{"skewed", "new"}, recordIDs(got.Results))
}

func TestSync_Modes(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	for i := 0; i < 250; i++ {
		require.NoError(t, f.dual.primary.Insert(ctx, testNote("acme", fmt.Sprintf("n%03d", i), int64(100_000+i))))
	}
	require.NoError(t, f.tombstones.Record(ctx, []*entity.Tombstone{{UniqueID: "gone", TenantID: "acme", DeletedAt: 100_500}}))

	tests := []struct {
		name          string
		req           SyncRequest
		wantCount     int
		wantFirst     string
		wantDeleted   int
		wantTombstone bool
	}{
		{"full walks every page", SyncRequest{TenantID: "acme", LastSync: 0}, 250, "n000", 1, true},
		{"first page carries tombstones", SyncRequest{TenantID: "acme", Paginated: true, Limit: 100}, 100, "n000", 1, true},
		{"later page omits tombstones", SyncRequest{TenantID: "acme", Paginated: true, Limit: 100, Offset: 200}, 50, "n200", 0, false},
		{"default page size", SyncRequest{TenantID: "acme", Paginated: true}, 250, "n000", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.SyncSince(ctx, tt.req)
			require.NoError(t, err)
			assert.Len(t, got.Results, tt.wantCount)
			assert.Equal(t, tt.wantFirst, got.Results[0].UniqueID)
			assert.Len(t, got.DeletedResults, tt.wantDeleted)
			assert.NotNil(t, got.DeletedResults)
			assert.Equal(t, tt.wantTombstone, got.TombstonesIncluded)
		})
	}
}

func TestSync_TombstoneOutageDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	require.NoError(t, f.dual.svc.Insert(ctx, testNote("acme", "A", 100)))
	require.NoError(t, f.dual.svc.Delete(ctx, "acme", "A", entity.RecordTypeNote, ""))
	f.dual.tombstones.FailOn("FindSince", driver.ErrBadConn, driver.ErrBadConn, driver.ErrBadConn, driver.ErrBadConn)

	got, err := f.svc.SyncSince(ctx, SyncRequest{TenantID: "acme", LastSync: 0})
	require.NoError(t, err)
	assert.Empty(t, got.DeletedResults)
	assert.NotNil(t, got.DeletedResults)
}

func TestSync_StoreOutageFailsSync(t *testing.T) {
	f := newSyncFixture(t)
	f.dual.primary.FailOn("Fetch", errStoreDown)

	_, err := f.svc.SyncSince(context.Background(), SyncRequest{TenantID: "acme", LastSync: 0})
	assert.ErrorIs(t, err, errStoreDown)
}

func TestSync_Deferred(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	require.NoError(t, f.dual.svc.Insert(ctx, testNote("acme", "A", 100)))

	jobID, err := f.svc.SyncSinceDeferred(ctx, SyncRequest{TenantID: "acme", LastSync: 50})
	require.NoError(t, err)

	var job *entity.LongJob
	require.Eventually(t, func() bool {
		job, err = f.dual.jobs.Get(ctx, jobID)
		return err == nil && job.Status == entity.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "sync", job.JobType)
	results := job.Results.(map[string]any)
	rows := results["results"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].(map[string]any)["uniqueId"])
	assert.Equal(t, true, results["tombstonesIncluded"])
}

func TestSync_DeferredSurfacesSaturation(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNopLogger()
	m := metrics.NewNop()
	pool := worker.NewPool(1, 0, log, m)
	jobRepo := memory.NewLongJobRepository()
	jobs := NewLongJobService(jobRepo, memory.NewJobCache(time.Minute), log)
	svc := NewSyncService(memory.NewRecordStore("primary"), NewBatchFetcher(log, m),
		NewTombstoneService(memory.NewTombstoneRepository(), log, m), jobs, pool, log)

	// no workers started and no queue: every submission is rejected
	_, err := svc.SyncSinceDeferred(ctx, SyncRequest{TenantID: "acme"})
	assert.ErrorIs(t, err, worker.ErrPoolSaturated)
	assert.Equal(t, 1, jobRepo.Calls("Create"))
}
