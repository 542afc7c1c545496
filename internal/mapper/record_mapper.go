package mapper

import (
	"encoding/json"

	"notesync-be/internal/entity"
	"notesync-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type RecordMapper struct{}

func NewRecordMapper() *RecordMapper {
	return &RecordMapper{}
}

func (m *RecordMapper) ToEntity(r *model.Record) *entity.Record {
	if r == nil {
		return nil
	}

	e := &entity.Record{
		UniqueID:           r.UniqueID,
		TenantID:           r.TenantID,
		RecordType:         entity.RecordType(r.RecordType),
		Created:            r.Created,
		LastModified:       r.LastModified,
		LastUpdateDevice:   r.LastUpdateDevice,
		LastUpdateDeviceID: r.LastUpdateDeviceID,
		Title:              r.Title,
		Content:            r.Content,
	}
	if r.Embedding != nil {
		e.Vector = r.Embedding.Slice()
	}
	decodeJSON(r.Tags, &e.Tags)
	decodeJSON(r.TagIDs, &e.TagIDs)
	decodeJSON(r.IncomingConnections, &e.IncomingConnections)
	decodeJSON(r.OutgoingConnections, &e.OutgoingConnections)
	decodeJSON(r.Properties, &e.Attributes)
	return e
}

func (m *RecordMapper) ToModel(e *entity.Record) *model.Record {
	if e == nil {
		return nil
	}

	r := &model.Record{
		TenantID:            e.TenantID,
		UniqueID:            e.UniqueID,
		RecordType:          string(e.RecordType),
		Created:             e.Created,
		LastModified:        e.LastModified,
		LastUpdateDevice:    e.LastUpdateDevice,
		LastUpdateDeviceID:  e.LastUpdateDeviceID,
		Title:               e.Title,
		Content:             e.Content,
		Tags:                encodeJSON(e.Tags),
		TagIDs:              encodeJSON(e.TagIDs),
		IncomingConnections: encodeJSON(e.IncomingConnections),
		OutgoingConnections: encodeJSON(e.OutgoingConnections),
		Properties:          encodeJSON(e.Attributes),
	}
	if len(e.Vector) > 0 {
		v := pgvector.NewVector(e.Vector)
		r.Embedding = &v
	}
	return r
}

func (m *RecordMapper) ToEntities(records []*model.Record) []*entity.Record {
	entities := make([]*entity.Record, len(records))
	for i, r := range records {
		entities[i] = m.ToEntity(r)
	}
	return entities
}

// encodeJSON stores empty collections as JSON null so the columns stay sparse.
func encodeJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" || string(raw) == "[]" || string(raw) == "{}" {
		return nil
	}
	return datatypes.JSON(raw)
}

func decodeJSON(raw datatypes.JSON, dst any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dst)
}
