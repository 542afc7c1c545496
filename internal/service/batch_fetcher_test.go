package service

import (
	"context"
	"fmt"
	"testing"

	"notesync-be/internal/entity"
	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/repository/memory"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedSource serves n synthetic records and fails reads larger than maxOK
// or whose offset is listed in failAt.
type pagedSource struct {
	n      int
	maxOK  int
	failAt map[int]bool
	calls  []string
}

func (p *pagedSource) read(ctx context.Context, limit, offset int) ([]*entity.Record, error) {
	p.calls = append(p.calls, fmt.Sprintf("%d@%d", limit, offset))
	if limit > p.maxOK || p.failAt[offset] {
		return nil, errStoreDown
	}
	var out []*entity.Record
	for i := offset; i < offset+limit && i < p.n; i++ {
		out = append(out, &entity.Record{UniqueID: fmt.Sprintf("r%03d", i)})
	}
	return out, nil
}

func TestBatchFetcher_Fetch(t *testing.T) {
	tests := []struct {
		name       string
		src        *pagedSource
		fixedSmall int
		limit      int
		offset     int
		wantCount  int
		wantFirst  string
		wantErr    bool
		wantCalls  int
	}{
		{"full read succeeds", &pagedSource{n: 500, maxOK: 1000}, 0, 100, 0, 100, "r000", false, 1},
		{"degrades to tenths", &pagedSource{n: 500, maxOK: 10}, 0, 100, 0, 100, "r000", false, 11},
		{"stops on empty page", &pagedSource{n: 25, maxOK: 10}, 0, 100, 0, 25, "r000", false, 5},
		{"skips failed sub-read", &pagedSource{n: 500, maxOK: 10, failAt: map[int]bool{10: true}}, 0, 100, 0, 90, "r000", false, 11},
		{"honours offset", &pagedSource{n: 500, maxOK: 10}, 0, 30, 200, 30, "r200", false, 11},
		{"vector reads use fixed size", &pagedSource{n: 500, maxOK: 10}, 10, 100, 0, 100, "r000", false, 11},
		{"every read fails", &pagedSource{n: 500, maxOK: 0}, 0, 20, 0, 0, "", true, 11},
		{"non-positive limit", &pagedSource{n: 500, maxOK: 1000}, 0, 0, 0, 0, "", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewBatchFetcher(logger.NewNopLogger(), metrics.NewNop())
			got, err := f.Fetch(context.Background(), "filter", tt.fixedSmall, tt.src.read, tt.limit, tt.offset)
			if tt.wantErr {
				assert.ErrorIs(t, err, errStoreDown)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, got)
			}
			assert.Len(t, got, tt.wantCount)
			if tt.wantFirst != "" {
				assert.Equal(t, tt.wantFirst, got[0].UniqueID)
			}
			assert.Len(t, tt.src.calls, tt.wantCalls)
		})
	}
}

func TestBatchFetcher_QueryVectorDegrades(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore("primary")
	for i := 0; i < 150; i++ {
		r := testNote("acme", fmt.Sprintf("n%03d", i), int64(i))
		r.Vector = []float32{1, float32(i) / 150, 0}
		require.NoError(t, store.Insert(ctx, r))
	}
	flaky := &failingFirst{RecordStore: store}
	m := metrics.NewNop()
	f := NewBatchFetcher(logger.NewNopLogger(), m)

	got, err := f.QueryVector(ctx, flaky, entity.VectorQuery{
		Filter: entity.RecordFilter{TenantID: "acme"},
		Vector: []float32{1, 0, 0},
	}, 100, 0)
	require.NoError(t, err)
	assert.Len(t, got, 100)
	assert.Equal(t, 11, flaky.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchDegradations.WithLabelValues("vector")))
}

// failingFirst fails the first similarity read only.
type failingFirst struct {
	*memory.RecordStore
	calls int
}

func (f *failingFirst) QueryByVector(ctx context.Context, query entity.VectorQuery, limit, offset int) ([]*entity.Record, error) {
	f.calls++
	if f.calls == 1 {
		return nil, errStoreDown
	}
	return f.RecordStore.QueryByVector(ctx, query, limit, offset)
}
