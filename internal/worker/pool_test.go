package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := NewPool(2, 10, logger.NewNopLogger(), metrics.NewNop())
	p.Start(context.Background())

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit("count", func(ctx context.Context) { ran.Add(1) }))
	}
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(5), ran.Load())
}

func TestPool_SaturationIsVisible(t *testing.T) {
	m := metrics.NewNop()
	p := NewPool(1, 1, logger.NewNopLogger(), m)

	block := make(chan struct{})
	started := make(chan struct{})
	p.Start(context.Background())

	require.NoError(t, p.Submit("block", func(ctx context.Context) {
		close(started)
		<-block
	}))
	<-started
	require.NoError(t, p.Submit("queued", func(ctx context.Context) {}))

	err := p.Submit("overflow", func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolSaturated)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PoolRejections.WithLabelValues("overflow")))

	close(block)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.ErrorIs(t, p.Submit("late", func(ctx context.Context) {}), ErrPoolClosed)
}

func TestPool_RecoversPanics(t *testing.T) {
	p := NewPool(1, 2, logger.NewNopLogger(), metrics.NewNop())
	p.Start(context.Background())

	var after atomic.Bool
	require.NoError(t, p.Submit("boom", func(ctx context.Context) { panic("boom") }))
	require.NoError(t, p.Submit("after", func(ctx context.Context) { after.Store(true) }))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, after.Load())
}

func TestEvery_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error)
	go func() {
		done <- Every(ctx, 5*time.Millisecond, "tick", logger.NewNopLogger(), func(ctx context.Context) error {
			if calls.Add(1) == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Every did not stop")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}
