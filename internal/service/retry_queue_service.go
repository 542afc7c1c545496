package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"notesync-be/internal/entity"
	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/repository/contract"
	"notesync-be/pkg/database"
	"notesync-be/pkg/embedding"

	"github.com/cenkalti/backoff/v5"
)

// OperationKind is the closed set of operations the retry queue can replay.
type OperationKind string

const (
	// OpInsertRecord re-inserts a record whose primary write failed.
	OpInsertRecord OperationKind = "insert_record"
	// OpReplicaUpsertRecord copies the primary's current copy of a record to the replica.
	OpReplicaUpsertRecord OperationKind = "replica_upsert_record"
	// OpReplicaDeleteRecords removes records from the replica.
	OpReplicaDeleteRecords OperationKind = "replica_delete_records"
)

// ParseOperationKind rejects names this build cannot dispatch.
func ParseOperationKind(name string) (OperationKind, bool) {
	switch k := OperationKind(name); k {
	case OpInsertRecord, OpReplicaUpsertRecord, OpReplicaDeleteRecords:
		return k, true
	default:
		return "", false
	}
}

// ErrLedgerUnavailable aborts a drain without spending any entry's budget.
var ErrLedgerUnavailable = errors.New("retry ledger unavailable")

type DrainReport struct {
	Skipped   bool `json:"skipped"`
	Processed int  `json:"processed"`
	Succeeded int  `json:"succeeded"`
	Requeued  int  `json:"requeued"`
	Terminal  int  `json:"terminal"`
	Unknown   int  `json:"unknown"`
}

type IRetryQueueService interface {
	Enqueue(ctx context.Context, kind OperationKind, params map[string]any) error
	Drain(ctx context.Context, batchSize int) (DrainReport, error)
}

type insertRecordParams struct {
	TenantID string         `json:"tenantId"`
	Record   *entity.Record `json:"record"`
}

type replicaUpsertParams struct {
	TenantID string `json:"tenantId"`
	UniqueID string `json:"uniqueId"`
}

type replicaDeleteParams struct {
	TenantID  string   `json:"tenantId"`
	UniqueIDs []string `json:"uniqueIds"`
}

type retryQueueService struct {
	repo           contract.RetryQueueRepository
	primary        contract.VectorStore
	replica        contract.VectorStore // nil when the replica is disabled
	embedder       embedding.Embedder
	dimension      int
	defaultRetries int
	logger         logger.ILogger
	metrics        *metrics.Metrics
	newBackOff     func() backoff.BackOff

	draining sync.Mutex
}

func NewRetryQueueService(
	repo contract.RetryQueueRepository,
	primary contract.VectorStore,
	replica contract.VectorStore,
	embedder embedding.Embedder,
	dimension int,
	defaultRetries int,
	log logger.ILogger,
	m *metrics.Metrics,
) IRetryQueueService {
	if defaultRetries <= 0 {
		defaultRetries = 3
	}
	return &retryQueueService{
		repo:           repo,
		primary:        primary,
		replica:        replica,
		embedder:       embedder,
		dimension:      dimension,
		defaultRetries: defaultRetries,
		logger:         log,
		metrics:        m,
		newBackOff:     ledgerBackOff,
	}
}

func (s *retryQueueService) Enqueue(ctx context.Context, kind OperationKind, params map[string]any) error {
	entry := &entity.RetryEntry{
		OperationName:    string(kind),
		Parameters:       params,
		RetriesRemaining: s.defaultRetries,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.metrics.RetryEnqueueFailures.WithLabelValues(string(kind)).Inc()
		s.logger.Error("RetryQueue", "Failed to enqueue operation", map[string]interface{}{
			"operation": string(kind),
			"error":     err,
		})
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	s.logger.Info("RetryQueue", "Operation enqueued", map[string]interface{}{
		"operation": string(kind),
		"entry_id":  entry.ID.String(),
	})
	return nil
}

// Drain processes up to batchSize of the oldest entries. Concurrent drains
// in one process are skipped rather than queued.
func (s *retryQueueService) Drain(ctx context.Context, batchSize int) (DrainReport, error) {
	var report DrainReport
	if !s.draining.TryLock() {
		report.Skipped = true
		return report, nil
	}
	defer s.draining.Unlock()

	if err := s.ledger(ctx, "ping", func() error { return s.repo.Ping(ctx) }); err != nil {
		return report, err
	}

	var entries []*entity.RetryEntry
	err := s.ledger(ctx, "find", func() error {
		var err error
		entries, err = s.repo.FindOldest(ctx, batchSize)
		return err
	})
	if err != nil {
		return report, err
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := s.process(ctx, entry, &report); err != nil {
			return report, err
		}
		report.Processed++
	}

	if report.Processed > 0 {
		s.logger.Info("RetryQueue", "Drain finished", map[string]interface{}{
			"processed": report.Processed,
			"succeeded": report.Succeeded,
			"requeued":  report.Requeued,
			"terminal":  report.Terminal,
			"unknown":   report.Unknown,
		})
	}
	return report, nil
}

// process only returns an error when the ledger itself is failing.
func (s *retryQueueService) process(ctx context.Context, entry *entity.RetryEntry, report *DrainReport) error {
	kind, ok := ParseOperationKind(entry.OperationName)
	if !ok {
		s.logger.Error("RetryQueue", "Unknown operation, discarding entry", map[string]interface{}{
			"operation": entry.OperationName,
			"entry_id":  entry.ID.String(),
		})
		s.metrics.RetryOutcomes.WithLabelValues("unknown", "unknown").Inc()
		report.Unknown++
		return s.ledger(ctx, "delete", func() error { return s.repo.Delete(ctx, entry.ID) })
	}

	dispatchErr := s.dispatch(ctx, kind, entry.Parameters)
	if dispatchErr == nil {
		s.metrics.RetryOutcomes.WithLabelValues(string(kind), "success").Inc()
		report.Succeeded++
		return s.ledger(ctx, "delete", func() error { return s.repo.Delete(ctx, entry.ID) })
	}

	if entry.RetriesRemaining > 1 {
		next := &entity.RetryEntry{
			OperationName:    entry.OperationName,
			Parameters:       entry.Parameters,
			RetriesRemaining: entry.RetriesRemaining - 1,
		}
		if err := s.ledger(ctx, "create", func() error { return s.repo.Create(ctx, next) }); err != nil {
			return err
		}
		if err := s.ledger(ctx, "delete", func() error { return s.repo.Delete(ctx, entry.ID) }); err != nil {
			return err
		}
		s.metrics.RetryOutcomes.WithLabelValues(string(kind), "requeued").Inc()
		report.Requeued++
		s.logger.Warn("RetryQueue", "Operation failed, requeued", map[string]interface{}{
			"operation":         string(kind),
			"entry_id":          next.ID.String(),
			"retries_remaining": next.RetriesRemaining,
			"error":             dispatchErr.Error(),
		})
		return nil
	}

	if err := s.ledger(ctx, "delete", func() error { return s.repo.Delete(ctx, entry.ID) }); err != nil {
		return err
	}
	s.metrics.RetryOutcomes.WithLabelValues(string(kind), "terminal").Inc()
	s.metrics.RetryTerminalFailures.Inc()
	report.Terminal++
	s.logger.Error("RetryQueue", "Operation failed permanently", map[string]interface{}{
		"operation":  string(kind),
		"entry_id":   entry.ID.String(),
		"parameters": entry.Parameters,
		"error":      dispatchErr,
	})
	return nil
}

// ledger runs a queue-ledger call, backing off on connection-class errors.
func (s *retryQueueService) ledger(ctx context.Context, op string, call func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := call()
		if err != nil && !database.IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(s.newBackOff()), backoff.WithMaxTries(ledgerRetries+1))
	if err == nil {
		return nil
	}
	s.logger.Error("RetryQueue", "Ledger call failed, aborting drain", map[string]interface{}{
		"call":  op,
		"error": err,
	})
	return fmt.Errorf("%w: %s: %w", ErrLedgerUnavailable, op, err)
}

func (s *retryQueueService) dispatch(ctx context.Context, kind OperationKind, params map[string]any) error {
	switch kind {
	case OpInsertRecord:
		var p insertRecordParams
		if err := decodeParams(params, &p); err != nil {
			return err
		}
		return s.insertRecord(ctx, p)
	case OpReplicaUpsertRecord:
		var p replicaUpsertParams
		if err := decodeParams(params, &p); err != nil {
			return err
		}
		return s.replicaUpsert(ctx, p)
	case OpReplicaDeleteRecords:
		var p replicaDeleteParams
		if err := decodeParams(params, &p); err != nil {
			return err
		}
		if s.replica == nil {
			return nil
		}
		return s.replica.DeleteMany(ctx, p.TenantID, p.UniqueIDs)
	default:
		return fmt.Errorf("unhandled operation %q", kind)
	}
}

func (s *retryQueueService) insertRecord(ctx context.Context, p insertRecordParams) error {
	if p.Record == nil {
		return fmt.Errorf("%w: record missing", entity.ErrInvalidRecord)
	}
	rec := p.Record
	rec.TenantID = p.TenantID
	rec.SyncTagIDs()
	if err := rec.Validate(); err != nil {
		return err
	}
	if len(rec.Vector) == 0 {
		vec, err := s.embedder.Embed(ctx, rec.EmbeddingText(), false)
		if err != nil {
			return fmt.Errorf("embedding record %s: %w", rec.UniqueID, err)
		}
		rec.Vector = vec
	}
	rec.Vector = entity.FitVector(rec.Vector, s.dimension)

	if err := s.primary.Insert(ctx, rec); err != nil {
		return err
	}
	if s.replica != nil {
		if err := s.replica.Insert(ctx, rec); err != nil {
			s.metrics.ReplicaFailures.WithLabelValues("insert").Inc()
			if qerr := s.Enqueue(ctx, OpReplicaUpsertRecord, map[string]any{"tenantId": rec.TenantID, "uniqueId": rec.UniqueID}); qerr != nil {
				s.logger.Warn("RetryQueue", "Replica copy not queued, replica stays stale", map[string]interface{}{
					"tenant":    rec.TenantID,
					"unique_id": rec.UniqueID,
					"error":     qerr.Error(),
				})
			}
		}
	}
	return nil
}

// replicaUpsert converges the replica on whatever the primary holds now.
func (s *retryQueueService) replicaUpsert(ctx context.Context, p replicaUpsertParams) error {
	if s.replica == nil {
		return nil
	}
	current, err := s.primary.Get(ctx, p.TenantID, p.UniqueID)
	if err != nil {
		return err
	}
	if current == nil {
		return s.replica.Delete(ctx, p.TenantID, p.UniqueID)
	}
	return s.replica.Insert(ctx, current)
}

func decodeParams(params map[string]any, dst any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding retry parameters: %w", err)
	}
	return nil
}
