package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RetryTerminalFailures.Inc()
	m.RetryOutcomes.WithLabelValues("insert_record", "terminal").Inc()
	m.PoolQueueDepth.Set(3)
	m.RetryEnqueueFailures.WithLabelValues("replica_upsert_record").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RetryTerminalFailures))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.PoolQueueDepth))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["notesync_retry_terminal_failures_total"])
	assert.True(t, names["notesync_worker_queue_depth"])
	assert.True(t, names["notesync_retry_enqueue_failures_total"])
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop()
		NewNop()
	})
}
