package service

import (
	"context"
	"fmt"
	"strings"

	"notesync-be/internal/entity"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/repository/contract"
	"notesync-be/pkg/embedding"
)

const defaultQueryLimit = 50

type RecordQuery struct {
	TenantID    string
	RecordTypes []entity.RecordType
	TagIDs      []string
	Text        string // query text for vector and keyword reads
	Limit       int
	Offset      int
}

func (q RecordQuery) filter() entity.RecordFilter {
	return entity.RecordFilter{
		TenantID:    q.TenantID,
		RecordTypes: q.RecordTypes,
		AnyTagIDs:   q.TagIDs,
	}
}

func (q RecordQuery) limit() int {
	if q.Limit <= 0 {
		return defaultQueryLimit
	}
	return q.Limit
}

// IRecordQueryService serves read-only record queries through the batch fetcher.
type IRecordQueryService interface {
	Get(ctx context.Context, tenantID, uniqueID string) (*entity.Record, error)
	Recent(ctx context.Context, q RecordQuery) ([]*entity.Record, error)
	List(ctx context.Context, q RecordQuery) ([]*entity.Record, error)
	QueryVector(ctx context.Context, q RecordQuery) ([]*entity.Record, error)
	QueryKeyword(ctx context.Context, q RecordQuery) ([]*entity.Record, error)
}

type recordQueryService struct {
	store     contract.VectorStore
	fetcher   *BatchFetcher
	embedder  embedding.Embedder
	dimension int
	logger    logger.ILogger
}

func NewRecordQueryService(store contract.VectorStore, fetcher *BatchFetcher, embedder embedding.Embedder, dimension int, log logger.ILogger) IRecordQueryService {
	return &recordQueryService{
		store:     store,
		fetcher:   fetcher,
		embedder:  embedder,
		dimension: dimension,
		logger:    log,
	}
}

func (s *recordQueryService) Get(ctx context.Context, tenantID, uniqueID string) (*entity.Record, error) {
	rec, err := s.store.Get(ctx, tenantID, uniqueID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, contract.ErrRecordNotFound
	}
	return rec, nil
}

func (s *recordQueryService) Recent(ctx context.Context, q RecordQuery) ([]*entity.Record, error) {
	f := q.filter()
	f.NewestFirst = true
	return s.fetcher.FetchFiltered(ctx, s.store, f, q.limit(), q.Offset)
}

func (s *recordQueryService) List(ctx context.Context, q RecordQuery) ([]*entity.Record, error) {
	return s.fetcher.FetchFiltered(ctx, s.store, q.filter(), q.limit(), q.Offset)
}

func (s *recordQueryService) QueryVector(ctx context.Context, q RecordQuery) ([]*entity.Record, error) {
	if strings.TrimSpace(q.Text) == "" {
		return []*entity.Record{}, nil
	}
	vec, err := s.embedder.Embed(ctx, q.Text, true)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	records, err := s.fetcher.QueryVector(ctx, s.store, entity.VectorQuery{
		Filter: q.filter(),
		Vector: entity.FitVector(vec, s.dimension),
	}, q.limit(), q.Offset)
	if err != nil {
		s.logger.Error("RecordQuery", "Vector query failed", map[string]interface{}{
			"tenant": q.TenantID,
			"error":  err,
		})
		return nil, err
	}
	return withoutVectors(records), nil
}

func (s *recordQueryService) QueryKeyword(ctx context.Context, q RecordQuery) ([]*entity.Record, error) {
	if strings.TrimSpace(q.Text) == "" {
		return []*entity.Record{}, nil
	}
	f := q.filter()
	f.Keyword = strings.TrimSpace(q.Text)
	f.NewestFirst = true
	records, err := s.fetcher.FetchFiltered(ctx, s.store, f, q.limit(), q.Offset)
	if err != nil {
		return nil, err
	}
	return withoutVectors(records), nil
}

func withoutVectors(records []*entity.Record) []*entity.Record {
	for _, r := range records {
		r.Vector = nil
	}
	return records
}
