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

type TombstoneRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.LedgerMapper
}

func NewTombstoneRepository(db *gorm.DB) contract.TombstoneRepository {
	return &TombstoneRepositoryImpl{
		db:     db,
		mapper: mapper.NewLedgerMapper(),
	}
}

func (r *TombstoneRepositoryImpl) Append(ctx context.Context, tombstones []*entity.Tombstone) error {
	if len(tombstones) == 0 {
		return nil
	}
	models := make([]*model.Tombstone, len(tombstones))
	for i, t := range tombstones {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		models[i] = r.mapper.TombstoneToModel(t)
	}
	if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
		return err
	}
	for i, m := range models {
		tombstones[i].ID = m.Id
	}
	return nil
}

func (r *TombstoneRepositoryImpl) FindSince(ctx context.Context, tenantID string, since int64) ([]*entity.Tombstone, error) {
	var models []*model.Tombstone
	err := specification.Apply(r.db.WithContext(ctx),
		specification.ByTenant{TenantID: tenantID},
		specification.DeletedSince{Millis: since},
		specification.OrderBy{Field: "deleted_at"},
	).Find(&models).Error
	if err != nil {
		return nil, err
	}
	return r.toEntities(models), nil
}

func (r *TombstoneRepositoryImpl) FindWithBlobBetween(ctx context.Context, after entity.TombstoneCursor, upTo int64, limit int) ([]*entity.Tombstone, error) {
	var models []*model.Tombstone
	err := r.db.WithContext(ctx).
		Where("blob_path IS NOT NULL AND blob_path <> ''").
		Where("(deleted_at, id) > (?, ?) AND deleted_at <= ?", after.DeletedAt, after.ID, upTo).
		Order("deleted_at ASC, id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return r.toEntities(models), nil
}

func (r *TombstoneRepositoryImpl) Ping(ctx context.Context) error {
	return pingGorm(ctx, r.db)
}

func (r *TombstoneRepositoryImpl) toEntities(models []*model.Tombstone) []*entity.Tombstone {
	out := make([]*entity.Tombstone, len(models))
	for i, m := range models {
		out[i] = r.mapper.TombstoneToEntity(m)
	}
	return out
}

func pingGorm(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
