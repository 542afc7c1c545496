package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"notesync-be/internal/entity"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/repository/contract"
	"notesync-be/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLongJobFixture() (ILongJobService, *memory.LongJobRepository) {
	repo := memory.NewLongJobRepository()
	return NewLongJobService(repo, memory.NewJobCache(time.Minute), logger.NewNopLogger()), repo
}

func TestLongJobService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLongJobFixture()

	id, err := svc.Create(ctx, "sync", "acme")
	require.NoError(t, err)

	job, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusStarted, job.Status)
	assert.Equal(t, "acme", job.OwnerID)
	assert.Equal(t, []any{}, job.Results)

	require.NoError(t, svc.SetStatus(ctx, id, entity.JobStatusProcessing, nil))
	require.NoError(t, svc.SetStatus(ctx, id, entity.JobStatusCompleted, map[string]any{"count": 2}))

	job, err = svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, map[string]any{"count": 2}, job.Results)

	err = svc.SetStatus(ctx, id, entity.JobStatusProcessing, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidTransition)
}

func TestLongJobService_TerminalJobsServedFromCache(t *testing.T) {
	ctx := context.Background()
	svc, repo := newLongJobFixture()
	id, err := svc.Create(ctx, "sync", "acme")
	require.NoError(t, err)
	require.NoError(t, svc.SetStatus(ctx, id, entity.JobStatusError, "boom"))

	_, err = svc.Get(ctx, id)
	require.NoError(t, err)
	_, err = svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.Calls("FindByID"))
}

func TestLongJobService_UnknownJob(t *testing.T) {
	svc, _ := newLongJobFixture()
	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, contract.ErrJobNotFound)
}

func TestLongJobService_RejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLongJobFixture()
	id, err := svc.Create(ctx, "sync", "acme")
	require.NoError(t, err)
	assert.ErrorIs(t, svc.SetStatus(ctx, id, "paused", nil), contract.ErrInvalidTransition)
}

type labelled string

func (l labelled) String() string { return "label:" + string(l) }

func TestNormalizeResults(t *testing.T) {
	id := uuid.MustParse("7a6cbbf5-3f5e-4c0a-9a3e-9f6d8d9b0c11")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"primitives pass through", map[string]any{"n": 1, "s": "x", "b": true}, map[string]any{"n": 1, "s": "x", "b": true}},
		{"uuid becomes string", id, id.String()},
		{"time becomes RFC3339", at, "2024-05-01T12:00:00Z"},
		{"error becomes message", errors.New("bad"), "bad"},
		{"stringer", labelled("x"), "label:x"},
		{"nested", map[string]any{"ids": []uuid.UUID{id}}, map[string]any{"ids": []any{id.String()}}},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeResults(tt.in))
		})
	}
}
