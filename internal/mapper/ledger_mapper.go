package mapper

import (
	"encoding/json"

	"notesync-be/internal/entity"
	"notesync-be/internal/model"

	"gorm.io/datatypes"
)

type LedgerMapper struct{}

func NewLedgerMapper() *LedgerMapper {
	return &LedgerMapper{}
}

func (m *LedgerMapper) TombstoneToEntity(t *model.Tombstone) *entity.Tombstone {
	if t == nil {
		return nil
	}
	return &entity.Tombstone{
		ID:         t.Id,
		UniqueID:   t.UniqueID,
		RecordType: entity.RecordType(t.RecordType),
		TenantID:   t.TenantID,
		DeletedAt:  t.DeletedAt,
		BlobPath:   t.BlobPath,
	}
}

func (m *LedgerMapper) TombstoneToModel(t *entity.Tombstone) *model.Tombstone {
	if t == nil {
		return nil
	}
	return &model.Tombstone{
		Id:         t.ID,
		UniqueID:   t.UniqueID,
		RecordType: string(t.RecordType),
		TenantID:   t.TenantID,
		DeletedAt:  t.DeletedAt,
		BlobPath:   t.BlobPath,
	}
}

func (m *LedgerMapper) RetryEntryToEntity(r *model.RetryEntry) *entity.RetryEntry {
	if r == nil {
		return nil
	}
	e := &entity.RetryEntry{
		ID:               r.Id,
		OperationName:    r.OperationName,
		RetriesRemaining: r.RetriesRemaining,
		CreatedAt:        r.CreatedAt,
	}
	decodeJSON(r.Parameters, &e.Parameters)
	return e
}

func (m *LedgerMapper) RetryEntryToModel(e *entity.RetryEntry) (*model.RetryEntry, error) {
	params, err := json.Marshal(e.Parameters)
	if err != nil {
		return nil, err
	}
	return &model.RetryEntry{
		Id:               e.ID,
		OperationName:    e.OperationName,
		Parameters:       datatypes.JSON(params),
		RetriesRemaining: e.RetriesRemaining,
		CreatedAt:        e.CreatedAt,
	}, nil
}

func (m *LedgerMapper) LongJobToEntity(j *model.LongJob) *entity.LongJob {
	if j == nil {
		return nil
	}
	e := &entity.LongJob{
		ID:        j.Id,
		Status:    entity.JobStatus(j.Status),
		JobType:   j.JobType,
		OwnerID:   j.OwnerID,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	decodeJSON(j.Results, &e.Results)
	return e
}
