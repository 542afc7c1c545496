package dto

import (
	"fmt"
	"strconv"
	"time"
)

type SyncRequest struct {
	TenantID            string `json:"tenantId"`
	LastSyncDatetimeUtc string `json:"lastSyncDatetimeUtc" validate:"required"`
	Limit               *int   `json:"limit" validate:"omitempty,gte=1,lte=10000"`
	Offset              *int   `json:"offset" validate:"omitempty,gte=0"`
	UseBatching         bool   `json:"useBatching"`
	UseBackgroundTask   bool   `json:"useBackgroundTask"`
}

type DeferredResponse struct {
	LongJobID string `json:"longJobId"`
}

type JobStatusResponse struct {
	Status  string `json:"status"`
	Results any    `json:"results,omitempty"`
}

var syncTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// LastSyncMillis accepts RFC3339, a zone-less ISO timestamp taken as UTC,
// or epoch milliseconds.
func (r SyncRequest) LastSyncMillis() (int64, error) {
	if ms, err := strconv.ParseInt(r.LastSyncDatetimeUtc, 10, 64); err == nil {
		return ms, nil
	}
	for _, layout := range syncTimeLayouts {
		if t, err := time.ParseInLocation(layout, r.LastSyncDatetimeUtc, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("lastSyncDatetimeUtc %q is not a timestamp", r.LastSyncDatetimeUtc)
}
