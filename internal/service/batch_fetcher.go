package service

import (
	"context"

	"notesync-be/internal/entity"
	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/repository/contract"
)

// vectorSubReadSize is the page size for degraded similarity reads, which
// fail on result volume rather than on the requested limit.
const vectorSubReadSize = 10

// ReadFunc reads one page of a bulk query.
type ReadFunc func(ctx context.Context, limit, offset int) ([]*entity.Record, error)

// BatchFetcher wraps bulk reads. When a read fails at full size it retries
// as a sequence of smaller reads and returns whatever they collect.
type BatchFetcher struct {
	logger  logger.ILogger
	metrics *metrics.Metrics
}

func NewBatchFetcher(log logger.ILogger, m *metrics.Metrics) *BatchFetcher {
	return &BatchFetcher{logger: log, metrics: m}
}

func (f *BatchFetcher) FetchFiltered(ctx context.Context, store contract.VectorStore, filter entity.RecordFilter, limit, offset int) ([]*entity.Record, error) {
	return f.Fetch(ctx, "filter", 0, func(ctx context.Context, l, o int) ([]*entity.Record, error) {
		return store.Fetch(ctx, filter, l, o)
	}, limit, offset)
}

func (f *BatchFetcher) QueryVector(ctx context.Context, store contract.VectorStore, query entity.VectorQuery, limit, offset int) ([]*entity.Record, error) {
	return f.Fetch(ctx, "vector", vectorSubReadSize, func(ctx context.Context, l, o int) ([]*entity.Record, error) {
		return store.QueryByVector(ctx, query, l, o)
	}, limit, offset)
}

// Fetch runs read at full size first. On failure it switches to sub-reads
// of max(limit/10, 1) records (or fixedSmall when > 0) at increasing
// offsets, skipping failed sub-reads and stopping on an empty page. It
// errors only when every read failed.
func (f *BatchFetcher) Fetch(ctx context.Context, kind string, fixedSmall int, read ReadFunc, limit, offset int) ([]*entity.Record, error) {
	if limit <= 0 {
		return []*entity.Record{}, nil
	}
	records, err := read(ctx, limit, offset)
	if err == nil {
		return truncate(records, limit), nil
	}

	small := fixedSmall
	if small <= 0 {
		small = max(limit/10, 1)
	}
	rounds := (limit + small - 1) / small

	f.metrics.FetchDegradations.WithLabelValues(kind).Inc()
	f.logger.Warn("BatchFetcher", "Full read failed, degrading to sub-reads", map[string]interface{}{
		"kind":     kind,
		"limit":    limit,
		"offset":   offset,
		"sub_size": small,
		"rounds":   rounds,
		"error":    err.Error(),
	})

	out := make([]*entity.Record, 0, limit)
	failures := 0
	var lastErr error
	for i := 0; i < rounds && len(out) < limit; i++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		page, err := read(ctx, small, offset+i*small)
		if err != nil {
			failures++
			lastErr = err
			f.metrics.SubReadFailures.WithLabelValues(kind).Inc()
			f.logger.Warn("BatchFetcher", "Sub-read failed, skipping", map[string]interface{}{
				"kind":   kind,
				"offset": offset + i*small,
				"error":  err.Error(),
			})
			continue
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)
	}

	if len(out) == 0 && lastErr != nil && (failures == rounds || ctx.Err() != nil) {
		return nil, lastErr
	}
	return truncate(out, limit), nil
}

func truncate(records []*entity.Record, limit int) []*entity.Record {
	if records == nil {
		return []*entity.Record{}
	}
	if len(records) > limit {
		return records[:limit]
	}
	return records
}
