package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Tombstone struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UniqueID   string    `gorm:"column:unique_id;type:text;not null"`
	RecordType string    `gorm:"type:text;not null"`
	TenantID   string    `gorm:"column:tenant_id;type:text;not null;index:idx_tombstones_tenant_deleted,priority:1"`
	DeletedAt  int64     `gorm:"not null;index:idx_tombstones_tenant_deleted,priority:2;index"`
	BlobPath   *string   `gorm:"type:text"`
}

func (Tombstone) TableName() string {
	return "tombstones"
}

type RetryEntry struct {
	Id               uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OperationName    string         `gorm:"type:text;not null"`
	Parameters       datatypes.JSON `gorm:"type:jsonb"`
	RetriesRemaining int            `gorm:"not null;default:3"`
	CreatedAt        time.Time      `gorm:"autoCreateTime;index"`
}

func (RetryEntry) TableName() string {
	return "retry_entries"
}

type LongJob struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Status    string         `gorm:"type:text;not null;index"`
	Results   datatypes.JSON `gorm:"type:jsonb"`
	JobType   string         `gorm:"type:text"`
	OwnerID   string         `gorm:"type:text;index"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (LongJob) TableName() string {
	return "long_jobs"
}
