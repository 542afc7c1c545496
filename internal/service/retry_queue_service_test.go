package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"notesync-be/internal/entity"
	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/repository/memory"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type retryFixture struct {
	svc     *retryQueueService
	repo    *memory.RetryQueueRepository
	primary *memory.RecordStore
	replica *memory.RecordStore
	metrics *metrics.Metrics
}

func newRetryFixture(retries int) retryFixture {
	f := retryFixture{
		repo:    memory.NewRetryQueueRepository(),
		primary: memory.NewRecordStore("primary"),
		replica: memory.NewRecordStore("replica"),
		metrics: metrics.NewNop(),
	}
	svc := NewRetryQueueService(f.repo, f.primary, f.replica, &stubEmbedder{vector: []float32{1, 0, 0}},
		3, retries, logger.NewNopLogger(), f.metrics).(*retryQueueService)
	svc.newBackOff = noBackOff
	f.svc = svc
	return f
}

func TestParseOperationKind(t *testing.T) {
	tests := []struct {
		name string
		want OperationKind
		ok   bool
	}{
		{"insert_record", OpInsertRecord, true},
		{"replica_upsert_record", OpReplicaUpsertRecord, true},
		{"replica_delete_records", OpReplicaDeleteRecords, true},
		{"note_route_insert_record", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseOperationKind(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetryQueue_ReplicaUpsertConverges(t *testing.T) {
	ctx := context.Background()
	f := newRetryFixture(3)
	require.NoError(t, f.primary.Insert(ctx, testNote("acme", "n1", 10)))

	require.NoError(t, f.svc.Enqueue(ctx, OpReplicaUpsertRecord, map[string]any{"tenantId": "acme", "uniqueId": "n1"}))
	report, err := f.svc.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{Processed: 1, Succeeded: 1}, report)
	assert.Empty(t, f.repo.All())

	got, err := f.replica.Get(ctx, "acme", "n1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "note n1", got.Title)
}

func TestRetryQueue_ReplicaUpsertOfDeletedRecordDeletes(t *testing.T) {
	ctx := context.Background()
	f := newRetryFixture(3)
	require.NoError(t, f.replica.Insert(ctx, testNote("acme", "gone", 10)))

	require.NoError(t, f.svc.Enqueue(ctx, OpReplicaUpsertRecord, map[string]any{"tenantId": "acme", "uniqueId": "gone"}))
	_, err := f.svc.Drain(ctx, 10)
	require.NoError(t, err)

	got, err := f.replica.Get(ctx, "acme", "gone")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRetryQueue_InsertRecordEmbedsAndWritesBothStores(t *testing.T) {
	ctx := context.Background()
	f := newRetryFixture(3)

	rec := testNote("", "n1", 10)
	require.NoError(t, f.svc.Enqueue(ctx, OpInsertRecord, map[string]any{"tenantId": "acme", "record": rec}))
	report, err := f.svc.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	got, err := f.primary.Get(ctx, "acme", "n1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []float32{1, 0, 0}, got.Vector)

	replicated, err := f.replica.Get(ctx, "acme", "n1")
	require.NoError(t, err)
	assert.NotNil(t, replicated)
}

func TestRetryQueue_BudgetExhaustion(t *testing.T) {
	ctx := context.Background()
	f := newRetryFixture(3)
	f.replica.FailOn("DeleteMany", errStoreDown)

	require.NoError(t, f.svc.Enqueue(ctx, OpReplicaDeleteRecords, map[string]any{"tenantId": "acme", "uniqueIds": []string{"a"}}))

	var reports []DrainReport
	for i := 0; i < 5; i++ {
		report, err := f.svc.Drain(ctx, 10)
		require.NoError(t, err)
		reports = append(reports, report)
	}

	assert.Equal(t, 3, f.replica.Calls("DeleteMany"))
	assert.Equal(t, 1, reports[0].Requeued)
	assert.Equal(t, 1, reports[1].Requeued)
	assert.Equal(t, 1, reports[2].Terminal)
	assert.Zero(t, reports[3].Processed)
	assert.Empty(t, f.repo.All())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RetryTerminalFailures))
}

func TestRetryQueue_RequeueDecrementsBudget(t *testing.T) {
	ctx := context.Background()
	f := newRetryFixture(3)
	f.replica.FailOn("DeleteMany", errStoreDown)
	require.NoError(t, f.svc.Enqueue(ctx, OpReplicaDeleteRecords, map[string]any{"tenantId": "acme", "uniqueIds": []string{"a"}}))

	_, err := f.svc.Drain(ctx, 10)
	require.NoError(t, err)

	entries := f.repo.All()
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].RetriesRemaining)
	assert.Equal(t, string(OpReplicaDeleteRecords), entries[0].OperationName)
}

func TestRetryQueue_UnknownOperationIsDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newRetryFixture(3)
	require.NoError(t, f.repo.Create(ctx, &entity.RetryEntry{
		OperationName:    "rebuild_universe",
		Parameters:       map[string]any{},
		RetriesRemaining: 3,
	}))

	report, err := f.svc.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unknown)
	assert.Empty(t, f.repo.All())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RetryOutcomes.WithLabelValues("unknown", "unknown")))
}

func TestRetryQueue_LedgerOutageSpendsNoBudget(t *testing.T) {
	ctx := context.Background()
	f := newRetryFixture(3)
	require.NoError(t, f.svc.Enqueue(ctx, OpReplicaDeleteRecords, map[string]any{"tenantId": "acme", "uniqueIds": []string{"a"}}))
	f.repo.FailOn("Ping", driver.ErrBadConn, driver.ErrBadConn, driver.ErrBadConn, driver.ErrBadConn)

	report, err := f.svc.Drain(ctx, 10)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Zero(t, report.Processed)
	assert.Equal(t, 4, f.repo.Calls("Ping"))
	assert.Zero(t, f.replica.Calls("DeleteMany"))

	entries := f.repo.All()
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].RetriesRemaining)
}

func TestRetryQueue_LedgerRecoversWithinAttempts(t *testing.T) {
	ctx := context.Background()
	f := newRetryFixture(3)
	require.NoError(t, f.svc.Enqueue(ctx, OpReplicaDeleteRecords, map[string]any{"tenantId": "acme", "uniqueIds": []string{"a"}}))
	f.repo.FailOn("FindOldest", driver.ErrBadConn, driver.ErrBadConn, driver.ErrBadConn)

	report, err := f.svc.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 4, f.repo.Calls("FindOldest"))
}

func TestRetryQueue_NonTransientLedgerErrorIsNotRetried(t *testing.T) {
	ctx := context.Background()
	f := newRetryFixture(3)
	f.repo.FailOn("FindOldest", errors.New("syntax error"))

	_, err := f.svc.Drain(ctx, 10)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Equal(t, 1, f.repo.Calls("FindOldest"))
}

func TestRetryQueue_ConcurrentDrainIsSkipped(t *testing.T) {
	f := newRetryFixture(3)
	f.svc.draining.Lock()
	defer f.svc.draining.Unlock()

	report, err := f.svc.Drain(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
}

func TestRetryQueue_NoReplicaMakesReplicaOpsNoops(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRetryQueueRepository()
	svc := NewRetryQueueService(repo, memory.NewRecordStore("primary"), nil, &stubEmbedder{},
		3, 3, logger.NewNopLogger(), metrics.NewNop()).(*retryQueueService)
	svc.newBackOff = noBackOff

	require.NoError(t, svc.Enqueue(ctx, OpReplicaUpsertRecord, map[string]any{"tenantId": "acme", "uniqueId": "x"}))
	require.NoError(t, svc.Enqueue(ctx, OpReplicaDeleteRecords, map[string]any{"tenantId": "acme", "uniqueIds": []string{"x"}}))

	report, err := svc.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
}
