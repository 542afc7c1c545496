package contract

import (
	"context"
	"errors"

	"notesync-be/internal/entity"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound       = errors.New("long job not found")
	ErrInvalidTransition = errors.New("invalid long job status transition")
)

// TombstoneRepository is append-only: tombstones are never updated.
type TombstoneRepository interface {
	Append(ctx context.Context, tombstones []*entity.Tombstone) error
	// FindSince returns the tenant's tombstones with deletedAt >= since.
	FindSince(ctx context.Context, tenantID string, since int64) ([]*entity.Tombstone, error)
	// FindWithBlobBetween returns tombstones carrying a blob path that sort
	// after the cursor and have deletedAt <= upTo, ordered by (deletedAt, id).
	FindWithBlobBetween(ctx context.Context, after entity.TombstoneCursor, upTo int64, limit int) ([]*entity.Tombstone, error)
	Ping(ctx context.Context) error
}

// RetryQueueRepository only ever creates and deletes entries.
type RetryQueueRepository interface {
	Create(ctx context.Context, entry *entity.RetryEntry) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOldest(ctx context.Context, limit int) ([]*entity.RetryEntry, error)
	Ping(ctx context.Context) error
}

type LongJobRepository interface {
	Create(ctx context.Context, job *entity.LongJob) error
	// UpdateStatus applies a forward-only transition atomically. It returns
	// ErrJobNotFound or ErrInvalidTransition when nothing was updated.
	UpdateStatus(ctx context.Context, id uuid.UUID, status entity.JobStatus, results any) error
	// FindByID returns nil, nil when the job does not exist.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.LongJob, error)
}
