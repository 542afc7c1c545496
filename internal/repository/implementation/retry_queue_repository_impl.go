package implementation

import (
	"context"

	"notesync-be/internal/entity"
	"notesync-be/internal/mapper"
	"notesync-be/internal/model"
	"notesync-be/internal/repository/contract"
	"notesync-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RetryQueueRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.LedgerMapper
}

func NewRetryQueueRepository(db *gorm.DB) contract.RetryQueueRepository {
	return &RetryQueueRepositoryImpl{
		db:     db,
		mapper: mapper.NewLedgerMapper(),
	}
}

func (r *RetryQueueRepositoryImpl) Create(ctx context.Context, entry *entity.RetryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	m, err := r.mapper.RetryEntryToModel(entry)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	entry.ID = m.Id
	entry.CreatedAt = m.CreatedAt
	return nil
}

// Delete of an already-deleted entry is a no-op so concurrent drains stay harmless.
func (r *RetryQueueRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return specification.Apply(r.db.WithContext(ctx), specification.ByID{ID: id}).
		Delete(&model.RetryEntry{}).Error
}

func (r *RetryQueueRepositoryImpl) FindOldest(ctx context.Context, limit int) ([]*entity.RetryEntry, error) {
	var models []*model.RetryEntry
	err := specification.Apply(r.db.WithContext(ctx),
		specification.OrderBy{Field: "created_at"},
		specification.Pagination{Limit: limit},
	).Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*entity.RetryEntry, len(models))
	for i, m := range models {
		out[i] = r.mapper.RetryEntryToEntity(m)
	}
	return out, nil
}

func (r *RetryQueueRepositoryImpl) Ping(ctx context.Context) error {
	return pingGorm(ctx, r.db)
}
