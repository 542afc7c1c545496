package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notesync-be/internal/entity"
	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/repository/contract"
	"notesync-be/internal/worker"
	"notesync-be/pkg/embedding"
	"notesync-be/pkg/events"

	"github.com/google/uuid"
)

// tagCascadeLimit bounds how many notes a tag deletion rewrites.
const tagCascadeLimit = 10000

type VectorUpdate struct {
	TenantID     string
	UniqueID     string
	RecordType   entity.RecordType
	Vector       []float32
	Text         string // embedded when Vector is empty
	LastModified int64
}

// IDualWriteService applies every mutation to the primary store first and
// to the replica second. Only primary failures reach the caller.
type IDualWriteService interface {
	Insert(ctx context.Context, record *entity.Record) error
	UpsertBatch(ctx context.Context, tenantID string, records []*entity.Record) error
	// UpsertBatchDeferred runs UpsertBatch on the worker pool and returns the
	// long job tracking it.
	UpsertBatchDeferred(ctx context.Context, tenantID string, records []*entity.Record) (uuid.UUID, error)
	// UpdateMetadata falls back to inserting snapshot when the record is
	// missing from the primary. A nil snapshot turns that case into
	// contract.ErrRecordNotFound.
	UpdateMetadata(ctx context.Context, tenantID, uniqueID string, update *entity.MetadataUpdate, snapshot *entity.Record) (*entity.Record, error)
	UpdateVector(ctx context.Context, update VectorUpdate) error
	Delete(ctx context.Context, tenantID, uniqueID string, recordType entity.RecordType, blobPath string) error
	// DeleteMany takes blob paths aligned by index with uniqueIDs; it may be shorter.
	DeleteMany(ctx context.Context, tenantID string, uniqueIDs []string, recordType entity.RecordType, blobPaths []string) error
}

type dualWriteService struct {
	primary    contract.VectorStore
	replica    contract.VectorStore // nil when the replica is disabled
	tombstones ITombstoneService
	retry      IRetryQueueService
	broadcast  IBroadcastService
	longJobs   ILongJobService
	fetcher    *BatchFetcher
	pool       *worker.Pool
	embedder   embedding.Embedder
	dimension  int
	logger     logger.ILogger
	metrics    *metrics.Metrics
	now        func() int64
}

func NewDualWriteService(
	primary contract.VectorStore,
	replica contract.VectorStore,
	tombstones ITombstoneService,
	retry IRetryQueueService,
	broadcast IBroadcastService,
	longJobs ILongJobService,
	fetcher *BatchFetcher,
	pool *worker.Pool,
	embedder embedding.Embedder,
	dimension int,
	log logger.ILogger,
	m *metrics.Metrics,
) IDualWriteService {
	return &dualWriteService{
		primary:    primary,
		replica:    replica,
		tombstones: tombstones,
		retry:      retry,
		broadcast:  broadcast,
		longJobs:   longJobs,
		fetcher:    fetcher,
		pool:       pool,
		embedder:   embedder,
		dimension:  dimension,
		logger:     log,
		metrics:    m,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// prepare validates the record and makes sure it carries a fitted vector.
func (s *dualWriteService) prepare(ctx context.Context, rec *entity.Record) error {
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
	return nil
}

func (s *dualWriteService) Insert(ctx context.Context, record *entity.Record) error {
	if err := s.prepare(ctx, record); err != nil {
		return err
	}
	if err := s.primary.Insert(ctx, record); err != nil {
		s.logger.Error("DualWrite", "Primary insert failed", map[string]interface{}{
			"tenant":    record.TenantID,
			"unique_id": record.UniqueID,
			"error":     err,
		})
		return err
	}
	s.replicaUpsert(ctx, "insert", record.TenantID, []*entity.Record{record})

	category := record.RecordType.EventCategory()
	s.broadcast.Publish(ctx, events.New(category, events.Named(category, "created"), record.TenantID, map[string]interface{}{
		"uniqueid": record.UniqueID,
		category:   eventRecord(record),
	}))
	return nil
}

func (s *dualWriteService) UpsertBatch(ctx context.Context, tenantID string, records []*entity.Record) error {
	for _, rec := range records {
		rec.TenantID = tenantID
		if err := s.prepare(ctx, rec); err != nil {
			return err
		}
	}
	if err := s.primary.UpsertBatch(ctx, records); err != nil {
		s.logger.Error("DualWrite", "Primary batch upsert failed", map[string]interface{}{
			"tenant": tenantID,
			"count":  len(records),
			"error":  err,
		})
		return err
	}
	s.replicaUpsert(ctx, "upsert_batch", tenantID, records)
	s.publishUpdated(ctx, tenantID, records)
	return nil
}

func (s *dualWriteService) publishUpdated(ctx context.Context, tenantID string, records []*entity.Record) {
	for _, rec := range records {
		category := rec.RecordType.EventCategory()
		s.broadcast.Publish(ctx, events.New(category, events.Named(category, "updated"), tenantID, map[string]interface{}{
			"uniqueid": rec.UniqueID,
			category:   eventRecord(rec),
		}))
	}
}

func (s *dualWriteService) UpsertBatchDeferred(ctx context.Context, tenantID string, records []*entity.Record) (uuid.UUID, error) {
	for _, rec := range records {
		rec.TenantID = tenantID
		rec.SyncTagIDs()
		if err := rec.Validate(); err != nil {
			return uuid.Nil, err
		}
	}
	jobID, err := s.longJobs.Create(ctx, "upsert", tenantID)
	if err != nil {
		return uuid.Nil, err
	}

	err = s.pool.Submit("upsert_batch", func(taskCtx context.Context) {
		trackJob(taskCtx, s.longJobs, s.logger, "DualWrite", jobID, entity.JobStatusProcessing, nil)
		stored, queued := s.upsertTolerant(taskCtx, tenantID, records)
		trackJob(taskCtx, s.longJobs, s.logger, "DualWrite", jobID, entity.JobStatusCompleted, map[string]any{
			"upserted": stored,
			"queued":   queued,
		})
	})
	if err != nil {
		trackJob(ctx, s.longJobs, s.logger, "DualWrite", jobID, entity.JobStatusError, map[string]any{"error": err.Error()})
		return uuid.Nil, err
	}
	return jobID, nil
}

// upsertTolerant never fails as a whole: records the primary rejects after
// embedding go to the retry queue as insert_record.
func (s *dualWriteService) upsertTolerant(ctx context.Context, tenantID string, records []*entity.Record) (stored []string, queued []string) {
	ready := make([]*entity.Record, 0, len(records))
	for _, rec := range records {
		if err := s.prepare(ctx, rec); err != nil {
			s.logger.Warn("DualWrite", "Skipping record that could not be prepared", map[string]interface{}{
				"tenant":    tenantID,
				"unique_id": rec.UniqueID,
				"error":     err.Error(),
			})
			continue
		}
		ready = append(ready, rec)
	}

	written := ready
	if err := s.primary.UpsertBatch(ctx, ready); err != nil {
		s.logger.Warn("DualWrite", "Primary batch upsert failed, inserting one by one", map[string]interface{}{
			"tenant": tenantID,
			"count":  len(ready),
			"error":  err.Error(),
		})
		written = written[:0:0]
		for _, rec := range ready {
			if err := s.primary.Insert(ctx, rec); err != nil {
				if s.queueRetry(ctx, OpInsertRecord, tenantID, []string{rec.UniqueID}, map[string]any{"tenantId": tenantID, "record": rec}) {
					queued = append(queued, rec.UniqueID)
				}
				continue
			}
			written = append(written, rec)
		}
	}

	s.replicaUpsert(ctx, "upsert_batch", tenantID, written)
	s.publishUpdated(ctx, tenantID, written)
	for _, rec := range written {
		stored = append(stored, rec.UniqueID)
	}
	return stored, queued
}

func (s *dualWriteService) UpdateMetadata(ctx context.Context, tenantID, uniqueID string, update *entity.MetadataUpdate, snapshot *entity.Record) (*entity.Record, error) {
	current, err := s.primary.Get(ctx, tenantID, uniqueID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		if err := update.ValidateFor(current.RecordType); err != nil {
			return nil, err
		}
	}

	rec, err := s.applyMetadata(ctx, tenantID, uniqueID, update)
	if errors.Is(err, contract.ErrRecordNotFound) {
		if snapshot == nil {
			return nil, err
		}
		s.logger.Info("DualWrite", "Record missing on metadata update, inserting snapshot", map[string]interface{}{
			"tenant":    tenantID,
			"unique_id": uniqueID,
		})
		snapshot.TenantID = tenantID
		snapshot.UniqueID = uniqueID
		update.Apply(snapshot)
		if err := s.prepare(ctx, snapshot); err != nil {
			return nil, err
		}
		if err := s.primary.Insert(ctx, snapshot); err != nil {
			return nil, err
		}
		s.replicaUpsert(ctx, "insert", tenantID, []*entity.Record{snapshot})
		rec, err = snapshot, nil
	}
	if err != nil {
		return nil, err
	}

	category := rec.RecordType.EventCategory()
	fields := map[string]interface{}{
		"uniqueid":         uniqueID,
		"metadata_updates": update.Changes(),
	}
	if snapshot != nil {
		fields["full_data"] = eventRecord(snapshot)
	}
	s.broadcast.Publish(ctx, events.New(category, events.Named(category, "updated"), tenantID, fields))
	return rec, nil
}

// applyMetadata updates both stores without broadcasting.
func (s *dualWriteService) applyMetadata(ctx context.Context, tenantID, uniqueID string, update *entity.MetadataUpdate) (*entity.Record, error) {
	rec, err := s.primary.UpdateMetadata(ctx, tenantID, uniqueID, update)
	if err != nil {
		return nil, err
	}
	if s.replica == nil {
		return rec, nil
	}
	if _, rerr := s.replica.UpdateMetadata(ctx, tenantID, uniqueID, update); rerr != nil {
		if errors.Is(rerr, contract.ErrRecordNotFound) {
			// the replica missed the insert; copy the whole record over
			s.replicaUpsert(ctx, "update_metadata", tenantID, []*entity.Record{rec})
		} else {
			s.replicaFailed(ctx, "update_metadata", tenantID, []string{uniqueID}, rerr)
		}
	}
	return rec, nil
}

func (s *dualWriteService) UpdateVector(ctx context.Context, u VectorUpdate) error {
	vector := u.Vector
	if len(vector) == 0 {
		vec, err := s.embedder.Embed(ctx, u.Text, false)
		if err != nil {
			return fmt.Errorf("embedding record %s: %w", u.UniqueID, err)
		}
		vector = vec
	}
	vector = entity.FitVector(vector, s.dimension)
	lastModified := u.LastModified
	if lastModified == 0 {
		lastModified = s.now()
	}

	if err := s.primary.UpdateVector(ctx, u.TenantID, u.UniqueID, vector, lastModified); err != nil {
		return err
	}
	if s.replica != nil {
		if err := s.replica.UpdateVector(ctx, u.TenantID, u.UniqueID, vector, lastModified); err != nil {
			s.replicaFailed(ctx, "update_vector", u.TenantID, []string{u.UniqueID}, err)
		}
	}

	category := u.RecordType.EventCategory()
	fields := map[string]interface{}{"uniqueid": u.UniqueID}
	if u.Text != "" {
		fields["title"] = u.Text
	}
	s.broadcast.Publish(ctx, events.New(category, events.Named(category, "vector_updated"), u.TenantID, fields))
	return nil
}

func (s *dualWriteService) Delete(ctx context.Context, tenantID, uniqueID string, recordType entity.RecordType, blobPath string) error {
	if err := s.deleteRecords(ctx, tenantID, []string{uniqueID}, recordType, []string{blobPath}); err != nil {
		return err
	}

	category := recordType.EventCategory()
	fields := map[string]interface{}{"uniqueid": uniqueID}
	if category == events.CategoryNote {
		fields["s3_path"] = nilIfEmpty(blobPath)
	}
	s.broadcast.Publish(ctx, events.New(category, events.Named(category, "deleted"), tenantID, fields))
	return nil
}

func (s *dualWriteService) DeleteMany(ctx context.Context, tenantID string, uniqueIDs []string, recordType entity.RecordType, blobPaths []string) error {
	if len(uniqueIDs) == 0 {
		return nil
	}
	if err := s.deleteRecords(ctx, tenantID, uniqueIDs, recordType, blobPaths); err != nil {
		return err
	}

	if recordType.EventCategory() == events.CategoryTag {
		for _, id := range uniqueIDs {
			s.broadcast.Publish(ctx, events.New(events.CategoryTag, events.TagDeleted, tenantID, map[string]interface{}{
				"uniqueid": id,
			}))
		}
		return nil
	}
	s.broadcast.Publish(ctx, events.New(events.CategoryNote, events.NotesDeleted, tenantID, map[string]interface{}{
		"uniqueids": uniqueIDs,
		"s3_paths":  blobPaths,
	}))
	return nil
}

// deleteRecords deletes from the primary, records tombstones, then deletes
// from the replica. A tombstone failure fails the delete so the client
// retries it; the primary delete is idempotent.
func (s *dualWriteService) deleteRecords(ctx context.Context, tenantID string, uniqueIDs []string, recordType entity.RecordType, blobPaths []string) error {
	if err := s.primary.DeleteMany(ctx, tenantID, uniqueIDs); err != nil {
		s.logger.Error("DualWrite", "Primary delete failed", map[string]interface{}{
			"tenant": tenantID,
			"ids":    uniqueIDs,
			"error":  err,
		})
		return err
	}

	deletedAt := s.now()
	tombstones := make([]*entity.Tombstone, len(uniqueIDs))
	for i, id := range uniqueIDs {
		t := &entity.Tombstone{
			UniqueID:   id,
			RecordType: recordType,
			TenantID:   tenantID,
			DeletedAt:  deletedAt,
		}
		if i < len(blobPaths) && blobPaths[i] != "" {
			path := blobPaths[i]
			t.BlobPath = &path
		}
		tombstones[i] = t
	}
	if err := s.tombstones.Record(ctx, tombstones); err != nil {
		return fmt.Errorf("recording tombstones: %w", err)
	}

	if s.replica != nil {
		if err := s.replica.DeleteMany(ctx, tenantID, uniqueIDs); err != nil {
			s.metrics.ReplicaFailures.WithLabelValues("delete").Inc()
			s.logger.Warn("DualWrite", "Replica delete failed, queued for retry", map[string]interface{}{
				"tenant": tenantID,
				"ids":    uniqueIDs,
				"error":  err.Error(),
			})
			s.queueRetry(ctx, OpReplicaDeleteRecords, tenantID, uniqueIDs, map[string]any{"tenantId": tenantID, "uniqueIds": uniqueIDs})
		}
	}

	if recordType == entity.RecordTypeTag {
		for _, id := range uniqueIDs {
			s.detachTag(ctx, tenantID, id)
		}
	}
	return nil
}

// detachTag removes a deleted tag from every note that still references it.
func (s *dualWriteService) detachTag(ctx context.Context, tenantID, tagID string) {
	notes, err := s.fetcher.FetchFiltered(ctx, s.primary, entity.RecordFilter{
		TenantID:  tenantID,
		AnyTagIDs: []string{tagID},
	}, tagCascadeLimit, 0)
	if err != nil {
		s.logger.Warn("DualWrite", "Could not load notes referencing deleted tag", map[string]interface{}{
			"tenant": tenantID,
			"tag_id": tagID,
			"error":  err.Error(),
		})
		return
	}
	for _, note := range notes {
		remaining := make([]entity.TagRef, 0, len(note.Tags))
		for _, t := range note.Tags {
			if t.ID != tagID {
				remaining = append(remaining, t)
			}
		}
		update := &entity.MetadataUpdate{Tags: &remaining}
		if _, err := s.applyMetadata(ctx, tenantID, note.UniqueID, update); err != nil {
			s.logger.Warn("DualWrite", "Failed to detach tag from note", map[string]interface{}{
				"tenant":    tenantID,
				"tag_id":    tagID,
				"unique_id": note.UniqueID,
				"error":     err.Error(),
			})
		}
	}
}

// replicaUpsert writes records to the replica, queueing each for retry on failure.
func (s *dualWriteService) replicaUpsert(ctx context.Context, op, tenantID string, records []*entity.Record) {
	if s.replica == nil || len(records) == 0 {
		return
	}
	var err error
	if len(records) == 1 {
		err = s.replica.Insert(ctx, records[0])
	} else {
		err = s.replica.UpsertBatch(ctx, records)
	}
	if err == nil {
		return
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.UniqueID
	}
	s.replicaFailed(ctx, op, tenantID, ids, err)
}

func (s *dualWriteService) replicaFailed(ctx context.Context, op, tenantID string, uniqueIDs []string, err error) {
	s.metrics.ReplicaFailures.WithLabelValues(op).Inc()
	s.logger.Warn("DualWrite", "Replica write failed, queued for retry", map[string]interface{}{
		"operation": op,
		"tenant":    tenantID,
		"ids":       uniqueIDs,
		"error":     err.Error(),
	})
	for _, id := range uniqueIDs {
		s.queueRetry(ctx, OpReplicaUpsertRecord, tenantID, []string{id}, map[string]any{"tenantId": tenantID, "uniqueId": id})
	}
}

// queueRetry reports whether the operation made it into the retry queue.
// A miss leaves the replica stale until the record is written again.
func (s *dualWriteService) queueRetry(ctx context.Context, kind OperationKind, tenantID string, uniqueIDs []string, params map[string]any) bool {
	err := s.retry.Enqueue(ctx, kind, params)
	if err == nil {
		return true
	}
	s.logger.Warn("DualWrite", "Could not queue retry, write is lost", map[string]interface{}{
		"operation": string(kind),
		"tenant":    tenantID,
		"ids":       uniqueIDs,
		"error":     err.Error(),
	})
	return false
}

// eventRecord is the record as sent to clients, without its vector.
func eventRecord(r *entity.Record) *entity.Record {
	cp := *r
	cp.Vector = nil
	return &cp
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
