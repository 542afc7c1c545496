package implementation

import (
	"context"
	"errors"
	"fmt"

	"notesync-be/internal/entity"
	"notesync-be/internal/mapper"
	"notesync-be/internal/model"
	"notesync-be/internal/repository/contract"
	"notesync-be/internal/repository/specification"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PrimaryStoreImpl is the authoritative pgvector-backed store.
type PrimaryStoreImpl struct {
	db     *gorm.DB
	mapper *mapper.RecordMapper
}

func NewPrimaryStore(db *gorm.DB) contract.VectorStore {
	return &PrimaryStoreImpl{
		db:     db,
		mapper: mapper.NewRecordMapper(),
	}
}

func (r *PrimaryStoreImpl) Name() string {
	return "primary"
}

func (r *PrimaryStoreImpl) upsertClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "unique_id"}},
		UpdateAll: true,
	}
}

func (r *PrimaryStoreImpl) Insert(ctx context.Context, record *entity.Record) error {
	m := r.mapper.ToModel(record)
	if err := r.db.WithContext(ctx).Clauses(r.upsertClause()).Create(m).Error; err != nil {
		return fmt.Errorf("insert record %s: %w", record.UniqueID, err)
	}
	return nil
}

func (r *PrimaryStoreImpl) UpsertBatch(ctx context.Context, records []*entity.Record) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]*model.Record, len(records))
	for i, rec := range records {
		models[i] = r.mapper.ToModel(rec)
	}
	if err := r.db.WithContext(ctx).Clauses(r.upsertClause()).CreateInBatches(models, 100).Error; err != nil {
		return fmt.Errorf("upsert batch of %d: %w", len(records), err)
	}
	return nil
}

func (r *PrimaryStoreImpl) UpdateMetadata(ctx context.Context, tenantID, uniqueID string, update *entity.MetadataUpdate) (*entity.Record, error) {
	var updated *entity.Record
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Record
		err := specification.Apply(tx.Clauses(clause.Locking{Strength: "UPDATE"}),
			specification.ByTenant{TenantID: tenantID},
			specification.ByUniqueID{UniqueID: uniqueID},
		).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return contract.ErrRecordNotFound
		}
		if err != nil {
			return err
		}

		rec := r.mapper.ToEntity(&m)
		update.Apply(rec)
		if err := tx.Save(r.mapper.ToModel(rec)).Error; err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update metadata %s: %w", uniqueID, err)
	}
	return updated, nil
}

func (r *PrimaryStoreImpl) UpdateVector(ctx context.Context, tenantID, uniqueID string, vector []float32, lastModified int64) error {
	res := specification.Apply(r.db.WithContext(ctx).Model(&model.Record{}),
		specification.ByTenant{TenantID: tenantID},
		specification.ByUniqueID{UniqueID: uniqueID},
	).Updates(map[string]interface{}{
		"embedding":     pgvector.NewVector(vector),
		"last_modified": gorm.Expr("GREATEST(last_modified, ?)", lastModified),
	})
	if res.Error != nil {
		return fmt.Errorf("update vector %s: %w", uniqueID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update vector %s: %w", uniqueID, contract.ErrRecordNotFound)
	}
	return nil
}

func (r *PrimaryStoreImpl) Delete(ctx context.Context, tenantID, uniqueID string) error {
	return r.DeleteMany(ctx, tenantID, []string{uniqueID})
}

// DeleteMany is idempotent: deleting ids that are already gone is not an error.
func (r *PrimaryStoreImpl) DeleteMany(ctx context.Context, tenantID string, uniqueIDs []string) error {
	if len(uniqueIDs) == 0 {
		return nil
	}
	err := specification.Apply(r.db.WithContext(ctx),
		specification.ByTenant{TenantID: tenantID},
		specification.UniqueIDIn{UniqueIDs: uniqueIDs},
	).Delete(&model.Record{}).Error
	if err != nil {
		return fmt.Errorf("delete %d records: %w", len(uniqueIDs), err)
	}
	return nil
}

func (r *PrimaryStoreImpl) Get(ctx context.Context, tenantID, uniqueID string) (*entity.Record, error) {
	var m model.Record
	err := specification.Apply(r.db.WithContext(ctx),
		specification.ByTenant{TenantID: tenantID},
		specification.ByUniqueID{UniqueID: uniqueID},
	).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *PrimaryStoreImpl) Fetch(ctx context.Context, filter entity.RecordFilter, limit, offset int) ([]*entity.Record, error) {
	specs := specification.ForRecordFilter(filter)
	specs = append(specs, specification.OrderForRecordFilter(filter)...)
	specs = append(specs, specification.Pagination{Limit: limit, Offset: offset})

	var models []*model.Record
	if err := specification.Apply(r.db.WithContext(ctx), specs...).Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *PrimaryStoreImpl) QueryByVector(ctx context.Context, query entity.VectorQuery, limit, offset int) ([]*entity.Record, error) {
	var models []*model.Record
	err := specification.Apply(r.db.WithContext(ctx), specification.ForRecordFilter(query.Filter)...).
		Where("embedding IS NOT NULL").
		Order(gorm.Expr("embedding <=> ?", pgvector.NewVector(query.Vector))).
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *PrimaryStoreImpl) Count(ctx context.Context, filter entity.RecordFilter) (int64, error) {
	var count int64
	err := specification.Apply(r.db.WithContext(ctx).Model(&model.Record{}), specification.ForRecordFilter(filter)...).
		Count(&count).Error
	return count, err
}
