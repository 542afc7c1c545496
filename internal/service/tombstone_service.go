package service

import (
	"context"
	"time"

	"notesync-be/internal/entity"
	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/repository/contract"
	"notesync-be/pkg/database"

	"github.com/cenkalti/backoff/v5"
)

type ITombstoneService interface {
	// Record appends one tombstone per deleted record.
	Record(ctx context.Context, tombstones []*entity.Tombstone) error
	// Since returns the tenant's tombstones with deletedAt >= since. Ledger
	// outages degrade to an empty list after a bounded retry.
	Since(ctx context.Context, tenantID string, since int64) []*entity.Tombstone
}

type tombstoneService struct {
	repo       contract.TombstoneRepository
	logger     logger.ILogger
	metrics    *metrics.Metrics
	newBackOff func() backoff.BackOff
}

func NewTombstoneService(repo contract.TombstoneRepository, log logger.ILogger, m *metrics.Metrics) ITombstoneService {
	return &tombstoneService{
		repo:       repo,
		logger:     log,
		metrics:    m,
		newBackOff: ledgerBackOff,
	}
}

// ledgerBackOff waits 1s, 2s and then 4s between the initial call and its
// three retries.
func ledgerBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 4 * time.Second
	return b
}

// ledgerRetries counts retries after the initial ledger call.
const ledgerRetries = 3

func (s *tombstoneService) Record(ctx context.Context, tombstones []*entity.Tombstone) error {
	if len(tombstones) == 0 {
		return nil
	}
	if err := s.repo.Append(ctx, tombstones); err != nil {
		s.logger.Error("Tombstone", "Failed to append tombstones", map[string]interface{}{
			"count": len(tombstones),
			"error": err,
		})
		return err
	}
	return nil
}

func (s *tombstoneService) Since(ctx context.Context, tenantID string, since int64) []*entity.Tombstone {
	attempt := 0
	tombstones, err := backoff.Retry(ctx, func() ([]*entity.Tombstone, error) {
		attempt++
		found, err := s.repo.FindSince(ctx, tenantID, since)
		if err != nil && !database.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			s.logger.Warn("Tombstone", "Ledger unreachable, retrying", map[string]interface{}{
				"tenant":  tenantID,
				"attempt": attempt,
				"error":   err.Error(),
			})
		}
		return found, err
	}, backoff.WithBackOff(s.newBackOff()), backoff.WithMaxTries(ledgerRetries+1))

	if err != nil {
		s.metrics.TombstoneFetchFailures.Inc()
		s.logger.Error("Tombstone", "Continuing without tombstones; they will be included in the next sync", map[string]interface{}{
			"tenant": tenantID,
			"error":  err,
		})
		return []*entity.Tombstone{}
	}
	if tombstones == nil {
		tombstones = []*entity.Tombstone{}
	}
	return tombstones
}
