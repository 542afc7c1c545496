package contract

import (
	"context"
	"errors"

	"notesync-be/internal/entity"
)

var ErrRecordNotFound = errors.New("record not found")

// VectorStore is implemented by both the primary and the replica store.
type VectorStore interface {
	Name() string
	// Insert has upsert semantics: inserting the same uniqueId twice leaves one record.
	Insert(ctx context.Context, record *entity.Record) error
	UpsertBatch(ctx context.Context, records []*entity.Record) error
	// UpdateMetadata returns ErrRecordNotFound when the record does not exist.
	UpdateMetadata(ctx context.Context, tenantID, uniqueID string, update *entity.MetadataUpdate) (*entity.Record, error)
	UpdateVector(ctx context.Context, tenantID, uniqueID string, vector []float32, lastModified int64) error
	Delete(ctx context.Context, tenantID, uniqueID string) error
	DeleteMany(ctx context.Context, tenantID string, uniqueIDs []string) error
	// Get returns nil, nil when the record does not exist.
	Get(ctx context.Context, tenantID, uniqueID string) (*entity.Record, error)
	Fetch(ctx context.Context, filter entity.RecordFilter, limit, offset int) ([]*entity.Record, error)
	QueryByVector(ctx context.Context, query entity.VectorQuery, limit, offset int) ([]*entity.Record, error)
	Count(ctx context.Context, filter entity.RecordFilter) (int64, error)
}
