package memory

import (
	"time"

	"notesync-be/internal/entity"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// JobCache keeps terminal long jobs in memory; their status can no longer change.
type JobCache struct {
	cache *cache.Cache
}

func NewJobCache(ttl time.Duration) *JobCache {
	return &JobCache{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (c *JobCache) Save(job *entity.LongJob) {
	if job == nil || !job.Status.Terminal() {
		return
	}
	c.cache.Set(job.ID.String(), job, cache.DefaultExpiration)
}

func (c *JobCache) Get(id uuid.UUID) (*entity.LongJob, bool) {
	if x, found := c.cache.Get(id.String()); found {
		return x.(*entity.LongJob), true
	}
	return nil, false
}

func (c *JobCache) Delete(id uuid.UUID) {
	c.cache.Delete(id.String())
}
