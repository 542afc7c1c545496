// Package metrics provides Prometheus collectors for the sync core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notesync"

// Metrics is built once per process and injected where it is needed.
type Metrics struct {
	// FetchDegradations counts bulk reads that fell back to small sub-reads.
	FetchDegradations *prometheus.CounterVec
	// SubReadFailures counts skipped sub-reads during degraded fetches.
	SubReadFailures *prometheus.CounterVec

	ReplicaFailures   *prometheus.CounterVec
	BroadcastFailures *prometheus.CounterVec

	// RetryOutcomes tracks drained entries by outcome: success, requeued, terminal, unknown.
	RetryOutcomes          *prometheus.CounterVec
	RetryTerminalFailures  prometheus.Counter
	// RetryEnqueueFailures counts operations that could not be queued at all.
	RetryEnqueueFailures   *prometheus.CounterVec
	TombstoneFetchFailures prometheus.Counter

	PoolQueueDepth prometheus.Gauge
	PoolRejections *prometheus.CounterVec

	TombstonesReaped *prometheus.CounterVec
	ClientsConnected prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchDegradations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_degradations_total",
				Help:      "Bulk reads that failed at full size and were split",
			},
			[]string{"kind"}, // kind: filter/vector
		),
		SubReadFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_subread_failures_total",
				Help:      "Sub-reads skipped during degraded fetches",
			},
			[]string{"kind"},
		),
		ReplicaFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replica_failures_total",
				Help:      "Replica writes that failed and were queued for retry",
			},
			[]string{"operation"},
		),
		BroadcastFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcast_failures_total",
				Help:      "Events that could not be handed to the relay",
			},
			[]string{"transport"},
		),
		RetryOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_outcomes_total",
				Help:      "Retry queue entries processed, by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		RetryTerminalFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_terminal_failures_total",
				Help:      "Retry queue entries dropped after exhausting their budget",
			},
		),
		RetryEnqueueFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_enqueue_failures_total",
				Help:      "Operations lost because the retry queue ledger rejected them",
			},
			[]string{"operation"},
		),
		TombstoneFetchFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tombstone_fetch_failures_total",
				Help:      "Syncs that returned no tombstones because the ledger was unreachable",
			},
		),
		PoolQueueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_queue_depth",
				Help:      "Tasks waiting in the background worker queue",
			},
		),
		PoolRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_rejections_total",
				Help:      "Tasks rejected because the worker queue was full",
			},
			[]string{"task"},
		),
		TombstonesReaped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tombstones_reaped_total",
				Help:      "Blob deletions performed for tombstones",
			},
			[]string{"status"}, // status: deleted/missing/error
		),
		ClientsConnected: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Websocket clients connected to this process",
			},
		),
	}
}

// NewNop returns collectors registered nowhere, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
