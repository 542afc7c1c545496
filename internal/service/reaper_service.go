package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"notesync-be/internal/entity"
	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/repository/contract"
	"notesync-be/pkg/objectstore"
)

const reaperPageSize = 100

type ReapReport struct {
	Deleted int `json:"deleted"`
	Missing int `json:"missing"`
}

// IReaperService deletes the blobs of records whose tombstones are older
// than the retention window.
type IReaperService interface {
	Reap(ctx context.Context) (ReapReport, error)
}

type reaperService struct {
	repo      contract.TombstoneRepository
	blobs     objectstore.Store
	retention time.Duration
	logger    logger.ILogger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu     sync.Mutex
	cursor entity.TombstoneCursor // last tombstone fully handled
}

func NewReaperService(repo contract.TombstoneRepository, blobs objectstore.Store, retention time.Duration, log logger.ILogger, m *metrics.Metrics) IReaperService {
	if retention <= 0 {
		retention = time.Hour
	}
	return &reaperService{
		repo:      repo,
		blobs:     blobs,
		retention: retention,
		logger:    log,
		metrics:   m,
		now:       time.Now,
	}
}

func (s *reaperService) Reap(ctx context.Context) (ReapReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report ReapReport
	upTo := s.now().Add(-s.retention).UnixMilli()
	for {
		page, err := s.repo.FindWithBlobBetween(ctx, s.cursor, upTo, reaperPageSize)
		if err != nil {
			return report, fmt.Errorf("listing tombstones: %w", err)
		}
		for _, t := range page {
			missing, err := s.purge(ctx, t)
			if err != nil {
				s.metrics.TombstonesReaped.WithLabelValues("failed").Inc()
				s.logger.Warn("Reaper", "Blob delete failed, will retry next run", map[string]interface{}{
					"tenant":    t.TenantID,
					"unique_id": t.UniqueID,
					"blob_path": *t.BlobPath,
					"error":     err.Error(),
				})
				return report, err
			}
			if missing {
				report.Missing++
				s.metrics.TombstonesReaped.WithLabelValues("missing").Inc()
			} else {
				report.Deleted++
				s.metrics.TombstonesReaped.WithLabelValues("deleted").Inc()
			}
			s.cursor = entity.CursorOf(t)
		}
		if len(page) < reaperPageSize {
			break
		}
	}

	if report.Deleted+report.Missing > 0 {
		s.logger.Info("Reaper", "Blobs reaped", map[string]interface{}{
			"deleted": report.Deleted,
			"missing": report.Missing,
			"cursor":  s.cursor.DeletedAt,
		})
	}
	return report, nil
}

// purge deletes the tombstone's blob and, for .jpeg blobs, the .jpg twin.
// missing reports that the primary object was already gone.
func (s *reaperService) purge(ctx context.Context, t *entity.Tombstone) (missing bool, err error) {
	key := objectstore.KeyFromPath(*t.BlobPath)
	keys := []string{key}
	if strings.HasSuffix(key, ".jpeg") {
		keys = append(keys, strings.TrimSuffix(key, ".jpeg")+".jpg")
	}
	for i, k := range keys {
		err := s.blobs.Delete(ctx, k)
		if errors.Is(err, objectstore.ErrNotFound) {
			if i == 0 {
				missing = true
			}
			continue
		}
		if err != nil {
			return false, err
		}
	}
	return missing, nil
}
