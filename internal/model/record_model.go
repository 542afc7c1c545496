package model

import (
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Record is the primary store row. Tenancy is part of the primary key so every
// query is partitioned by tenant.
type Record struct {
	TenantID            string           `gorm:"type:text;primaryKey"`
	UniqueID            string           `gorm:"type:text;primaryKey"`
	RecordType          string           `gorm:"type:text;not null;index"`
	Created             int64            `gorm:"not null"`
	LastModified        int64            `gorm:"not null;index"`
	LastUpdateDevice    string           `gorm:"type:text"`
	LastUpdateDeviceID  string           `gorm:"type:text"`
	Title               string           `gorm:"type:text"`
	Content             string           `gorm:"type:text"`
	Tags                datatypes.JSON   `gorm:"type:jsonb"`
	TagIDs              datatypes.JSON   `gorm:"column:tag_ids;type:jsonb;index:,type:gin"`
	IncomingConnections datatypes.JSON   `gorm:"type:jsonb"`
	OutgoingConnections datatypes.JSON   `gorm:"type:jsonb"`
	Properties          datatypes.JSON   `gorm:"type:jsonb"` // variant attributes
	Embedding           *pgvector.Vector `gorm:"type:vector"`  // NULL until embedded
}

func (Record) TableName() string {
	return "records"
}
