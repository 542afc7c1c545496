package service

import (
	"context"
	"fmt"

	"notesync-be/internal/entity"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/repository/contract"
	"notesync-be/internal/worker"

	"github.com/google/uuid"
)

const (
	// syncLookback widens the record window to absorb client clock skew.
	syncLookback = int64(60_000)

	fullSyncBatchSize = 100
	fullSyncMaxRounds = 1000

	defaultSyncPageSize = 1000
)

type SyncRequest struct {
	TenantID string
	LastSync int64 // epoch millis
	DeviceID string
	// Paginated selects a single page of Limit records at Offset instead of
	// walking the whole window.
	Paginated bool
	Limit     int
	Offset    int
}

type SyncResult struct {
	Results        []*entity.Record    `json:"results"`
	DeletedResults []*entity.Tombstone `json:"deletedResults"`
	// TombstonesIncluded is false for paginated pages past the first, which
	// never carry tombstones.
	TombstonesIncluded bool `json:"tombstonesIncluded"`
}

type ISyncService interface {
	SyncSince(ctx context.Context, req SyncRequest) (*SyncResult, error)
	// SyncSinceDeferred runs SyncSince on the worker pool and returns the long
	// job that will hold the result. worker.ErrPoolSaturated is returned as is.
	SyncSinceDeferred(ctx context.Context, req SyncRequest) (uuid.UUID, error)
}

type syncService struct {
	store      contract.VectorStore
	fetcher    *BatchFetcher
	tombstones ITombstoneService
	longJobs   ILongJobService
	pool       *worker.Pool
	logger     logger.ILogger
}

// NewSyncService reads records from store, which is either the primary or the replica.
func NewSyncService(
	store contract.VectorStore,
	fetcher *BatchFetcher,
	tombstones ITombstoneService,
	longJobs ILongJobService,
	pool *worker.Pool,
	log logger.ILogger,
) ISyncService {
	return &syncService{
		store:      store,
		fetcher:    fetcher,
		tombstones: tombstones,
		longJobs:   longJobs,
		pool:       pool,
		logger:     log,
	}
}

func (s *syncService) SyncSince(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	since := req.LastSync - syncLookback
	filter := entity.RecordFilter{
		TenantID:      req.TenantID,
		ModifiedAfter: &since,
	}

	var (
		records []*entity.Record
		err     error
	)
	if req.Paginated {
		limit := req.Limit
		if limit <= 0 {
			limit = defaultSyncPageSize
		}
		records, err = s.fetcher.FetchFiltered(ctx, s.store, filter, limit, max(req.Offset, 0))
	} else {
		records, err = s.fullWindow(ctx, filter)
	}
	if err != nil {
		s.logger.Error("Sync", "Record fetch failed", map[string]interface{}{
			"tenant": req.TenantID,
			"device": req.DeviceID,
			"error":  err,
		})
		return nil, fmt.Errorf("sync records: %w", err)
	}

	result := &SyncResult{
		Results:        records,
		DeletedResults: []*entity.Tombstone{},
	}
	if !req.Paginated || req.Offset <= 0 {
		result.DeletedResults = s.tombstones.Since(ctx, req.TenantID, req.LastSync)
		result.TombstonesIncluded = true
	}

	s.logger.Info("Sync", "Sync served", map[string]interface{}{
		"tenant":    req.TenantID,
		"device":    req.DeviceID,
		"source":    s.store.Name(),
		"records":   len(result.Results),
		"deleted":   len(result.DeletedResults),
		"paginated": req.Paginated,
	})
	return result, nil
}

// fullWindow walks the window in fixed pages until an empty one.
func (s *syncService) fullWindow(ctx context.Context, filter entity.RecordFilter) ([]*entity.Record, error) {
	all := []*entity.Record{}
	for round := 0; round < fullSyncMaxRounds; round++ {
		batch, err := s.fetcher.FetchFiltered(ctx, s.store, filter, fullSyncBatchSize, round*fullSyncBatchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
	}
	return all, nil
}

func (s *syncService) SyncSinceDeferred(ctx context.Context, req SyncRequest) (uuid.UUID, error) {
	jobID, err := s.longJobs.Create(ctx, "sync", req.TenantID)
	if err != nil {
		return uuid.Nil, err
	}

	err = s.pool.Submit("sync", func(taskCtx context.Context) {
		trackJob(taskCtx, s.longJobs, s.logger, "Sync", jobID, entity.JobStatusProcessing, nil)
		result, err := s.SyncSince(taskCtx, req)
		if err != nil {
			trackJob(taskCtx, s.longJobs, s.logger, "Sync", jobID, entity.JobStatusError, map[string]any{"error": err.Error()})
			return
		}
		trackJob(taskCtx, s.longJobs, s.logger, "Sync", jobID, entity.JobStatusCompleted, result)
	})
	if err != nil {
		trackJob(ctx, s.longJobs, s.logger, "Sync", jobID, entity.JobStatusError, map[string]any{"error": err.Error()})
		return uuid.Nil, err
	}
	return jobID, nil
}
