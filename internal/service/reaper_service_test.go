package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"notesync-be/internal/entity"
	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/repository/memory"
	"notesync-be/pkg/objectstore"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reaperNow = time.UnixMilli(10_000_000)

func stone(id string, deletedAt int64, blob string) *entity.Tombstone {
	t := &entity.Tombstone{UniqueID: id, TenantID: "acme", RecordType: entity.RecordTypeNote, DeletedAt: deletedAt}
	if blob != "" {
		t.BlobPath = &blob
	}
	return t
}

func newReaperFixture(t *testing.T, stones ...*entity.Tombstone) (*reaperService, *objectstore.MemoryStore, *metrics.Metrics) {
	t.Helper()
	repo := memory.NewTombstoneRepository()
	require.NoError(t, repo.Append(context.Background(), stones))
	blobs := objectstore.NewMemoryStore()
	m := metrics.NewNop()
	svc := NewReaperService(repo, blobs, time.Hour, logger.NewNopLogger(), m).(*reaperService)
	svc.now = func() time.Time { return reaperNow }
	return svc, blobs, m
}

func TestReaper_DeletesExpiredBlobs(t *testing.T) {
	expired := reaperNow.Add(-2 * time.Hour).UnixMilli()
	fresh := reaperNow.Add(-time.Minute).UnixMilli()
	svc, blobs, m := newReaperFixture(t,
		stone("a", expired, "https://cdn.example.com/acme/a.jpeg?sig=1"),
		stone("b", expired+1, "acme/b.pdf"),
		stone("c", expired+2, ""),
		stone("d", fresh, "acme/d.png"),
	)
	blobs.Put("acme/a.jpeg", 10)
	blobs.Put("acme/a.jpg", 10)
	blobs.Put("acme/d.png", 10)

	report, err := svc.Reap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReapReport{Deleted: 1, Missing: 1}, report)

	assert.False(t, blobs.Has("acme/a.jpeg"))
	assert.False(t, blobs.Has("acme/a.jpg"))
	assert.True(t, blobs.Has("acme/d.png"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TombstonesReaped.WithLabelValues("missing")))
}

func TestReaper_CursorSkipsHandledTombstones(t *testing.T) {
	expired := reaperNow.Add(-2 * time.Hour).UnixMilli()
	svc, blobs, _ := newReaperFixture(t, stone("a", expired, "acme/a.png"))
	blobs.Put("acme/a.png", 1)

	first, err := svc.Reap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Deleted)

	second, err := svc.Reap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReapReport{}, second)
}

func TestReaper_PagesThroughBacklog(t *testing.T) {
	expired := reaperNow.Add(-2 * time.Hour).UnixMilli()
	var stones []*entity.Tombstone
	for i := 0; i < 250; i++ {
		key := fmt.Sprintf("acme/%03d.png", i)
		stones = append(stones, stone(key, expired+int64(i/2), key))
	}
	svc, blobs, _ := newReaperFixture(t, stones...)
	for _, s := range stones {
		blobs.Put(*s.BlobPath, 1)
	}

	report, err := svc.Reap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250, report.Deleted)
	for _, s := range stones {
		assert.False(t, blobs.Has(*s.BlobPath))
	}
}

func TestReaper_BulkDeleteSharingOneTimestamp(t *testing.T) {
	expired := reaperNow.Add(-2 * time.Hour).UnixMilli()
	var stones []*entity.Tombstone
	for i := 0; i < 150; i++ {
		key := fmt.Sprintf("acme/bulk-%03d.png", i)
		stones = append(stones, stone(key, expired, key))
	}
	svc, blobs, _ := newReaperFixture(t, stones...)
	for _, s := range stones {
		blobs.Put(*s.BlobPath, 1)
	}

	first, err := svc.Reap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReapReport{Deleted: 150}, first)

	second, err := svc.Reap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReapReport{}, second)
	for _, s := range stones {
		assert.False(t, blobs.Has(*s.BlobPath), *s.BlobPath)
	}
}
