package implementation

import (
	"context"
	"encoding/json"
	"errors"

	"notesync-be/internal/entity"
	"notesync-be/internal/mapper"
	"notesync-be/internal/model"
	"notesync-be/internal/repository/contract"
	"notesync-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LongJobRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.LedgerMapper
}

func NewLongJobRepository(db *gorm.DB) contract.LongJobRepository {
	return &LongJobRepositoryImpl{
		db:     db,
		mapper: mapper.NewLedgerMapper(),
	}
}

func (r *LongJobRepositoryImpl) Create(ctx context.Context, job *entity.LongJob) error {
	results, err := json.Marshal(job.Results)
	if err != nil {
		return err
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	m := &model.LongJob{
		Id:      job.ID,
		Status:  string(job.Status),
		Results: datatypes.JSON(results),
		JobType: job.JobType,
		OwnerID: job.OwnerID,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	job.ID = m.Id
	job.CreatedAt = m.CreatedAt
	job.UpdatedAt = m.UpdatedAt
	return nil
}

// UpdateStatus is a single conditional UPDATE guarded by the allowed
// predecessor statuses, so racing writers cannot move a job backwards.
func (r *LongJobRepositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.JobStatus, results any) error {
	from := status.Predecessors()
	if len(from) == 0 {
		return contract.ErrInvalidTransition
	}
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	updates := map[string]interface{}{"status": string(status)}
	if results != nil {
		raw, err := json.Marshal(results)
		if err != nil {
			return err
		}
		updates["results"] = datatypes.JSON(raw)
	}

	res := specification.Apply(r.db.WithContext(ctx).Model(&model.LongJob{}), specification.ByID{ID: id}).
		Where("status IN ?", allowed).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	existing, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return contract.ErrJobNotFound
	}
	return contract.ErrInvalidTransition
}

func (r *LongJobRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*entity.LongJob, error) {
	var m model.LongJob
	if err := specification.Apply(r.db.WithContext(ctx), specification.ByID{ID: id}).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.LongJobToEntity(&m), nil
}
