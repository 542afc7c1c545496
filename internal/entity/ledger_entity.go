package entity

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

type Tombstone struct {
	ID         uuid.UUID  `json:"-"`
	UniqueID   string     `json:"uniqueId"`
	RecordType RecordType `json:"recordType"`
	TenantID   string     `json:"tenantId"`
	DeletedAt  int64      `json:"deletedAt"` // epoch millis
	BlobPath   *string    `json:"blobPath,omitempty"`
}

// TombstoneCursor is a keyset position over tombstones ordered by
// (deletedAt, id). Ids break ties between tombstones of one bulk delete.
type TombstoneCursor struct {
	DeletedAt int64
	ID        uuid.UUID
}

// CursorOf returns the position of t.
func CursorOf(t *Tombstone) TombstoneCursor {
	return TombstoneCursor{DeletedAt: t.DeletedAt, ID: t.ID}
}

// Before reports whether c sorts strictly before t.
func (c TombstoneCursor) Before(t *Tombstone) bool {
	if c.DeletedAt != t.DeletedAt {
		return c.DeletedAt < t.DeletedAt
	}
	return bytes.Compare(c.ID[:], t.ID[:]) < 0
}

type RetryEntry struct {
	ID               uuid.UUID      `json:"id"`
	OperationName    string         `json:"operationName"`
	Parameters       map[string]any `json:"parameters"`
	RetriesRemaining int            `json:"retriesRemaining"`
	CreatedAt        time.Time      `json:"createdAt"`
}

type JobStatus string

const (
	JobStatusStarted    JobStatus = "started"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

func (s JobStatus) rank() int {
	switch s {
	case JobStatusStarted:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusError:
		return 2
	default:
		return -1
	}
}

func (s JobStatus) Valid() bool {
	return s.rank() >= 0
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// CanTransitionTo allows forward moves only. A processing job may report
// processing again to refresh its results; terminal states never change.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if s == next {
		return s == JobStatusProcessing
	}
	return next.rank() > s.rank()
}

// Predecessors lists every status that may move to s.
func (s JobStatus) Predecessors() []JobStatus {
	var out []JobStatus
	for _, from := range []JobStatus{JobStatusStarted, JobStatusProcessing} {
		if from.CanTransitionTo(s) {
			out = append(out, from)
		}
	}
	return out
}

type LongJob struct {
	ID        uuid.UUID `json:"id"`
	Status    JobStatus `json:"status"`
	Results   any       `json:"results"`
	JobType   string    `json:"jobType"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
