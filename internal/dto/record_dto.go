package dto

import (
	"fmt"

	"notesync-be/internal/entity"
)

type UpsertBatchRequest struct {
	Records    []*entity.Record `json:"records" validate:"required,min=1,max=1000"`
	Background bool             `json:"background"`
}

type UpsertBatchResponse struct {
	Count     int    `json:"count,omitempty"`
	LongJobID string `json:"long_job_id,omitempty"`
}

type UpdateMetadataRequest struct {
	Updates  entity.MetadataUpdate `json:"updates"`
	FullData *entity.Record        `json:"fullData"` // inserted when the record does not exist yet
}

type UpdateVectorRequest struct {
	RecordType   string    `json:"recordType"`
	Vector       []float32 `json:"vector"`
	Text         string    `json:"text" validate:"required_without=Vector"`
	LastModified int64     `json:"lastModified"`
}

type DeleteManyRequest struct {
	UniqueIDs  []string `json:"uniqueIds" validate:"required,min=1,max=1000"`
	RecordType string   `json:"recordType"`
	BlobPaths  []string `json:"blobPaths"` // aligned by index with UniqueIDs
}

type ListRecordsRequest struct {
	RecordTypes []string `json:"recordTypes"`
	TagIDs      []string `json:"tagIds"`
	Limit       int      `json:"limit" validate:"gte=0,lte=10000"`
	Offset      int      `json:"offset" validate:"gte=0"`
}

type QueryRecordsRequest struct {
	Query       string   `json:"query" validate:"required"`
	RecordTypes []string `json:"recordTypes"`
	TagIDs      []string `json:"tagIds"`
	Limit       int      `json:"limit" validate:"gte=0,lte=1000"`
	Offset      int      `json:"offset" validate:"gte=0"`
}

type DeleteRecordResponse struct {
	UniqueIDs []string `json:"uniqueIds"`
}

// RecordTypes converts the request's type names, rejecting unknown ones.
func RecordTypes(names []string) ([]entity.RecordType, error) {
	out := make([]entity.RecordType, 0, len(names))
	for _, n := range names {
		t, err := ParseRecordType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ParseRecordType defaults an empty name to note.
func ParseRecordType(name string) (entity.RecordType, error) {
	if name == "" {
		return entity.RecordTypeNote, nil
	}
	t := entity.RecordType(name)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown recordType %q", entity.ErrInvalidRecord, name)
	}
	return t, nil
}
