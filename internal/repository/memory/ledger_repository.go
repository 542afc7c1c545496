package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"notesync-be/internal/entity"
	"notesync-be/internal/repository/contract"

	"github.com/google/uuid"
)

// faults is the shared failure-injection switchboard of the ledger fakes.
type faults struct {
	mu     sync.Mutex
	errs   map[string][]error
	counts map[string]int
}

// FailOn queues errs to be returned, in order, by the next calls of op.
func (f *faults) FailOn(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string][]error)
	}
	f.errs[op] = append(f.errs[op], errs...)
}

func (f *faults) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op]
}

func (f *faults) next(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[op]++
	queue := f.errs[op]
	if len(queue) == 0 {
		return nil
	}
	f.errs[op] = queue[1:]
	return queue[0]
}

var _ contract.TombstoneRepository = (*TombstoneRepository)(nil)

type TombstoneRepository struct {
	faults
	mu         sync.RWMutex
	tombstones []*entity.Tombstone
}

func NewTombstoneRepository() *TombstoneRepository {
	return &TombstoneRepository{}
}

func (r *TombstoneRepository) Append(ctx context.Context, tombstones []*entity.Tombstone) error {
	if err := r.next("Append"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tombstones {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		cp := *t
		r.tombstones = append(r.tombstones, &cp)
	}
	return nil
}

func (r *TombstoneRepository) FindSince(ctx context.Context, tenantID string, since int64) ([]*entity.Tombstone, error) {
	if err := r.next("FindSince"); err != nil {
		return nil, err
	}
	return r.filter(func(t *entity.Tombstone) bool {
		return t.TenantID == tenantID && t.DeletedAt >= since
	}, 0), nil
}

func (r *TombstoneRepository) FindWithBlobBetween(ctx context.Context, after entity.TombstoneCursor, upTo int64, limit int) ([]*entity.Tombstone, error) {
	if err := r.next("FindWithBlobBetween"); err != nil {
		return nil, err
	}
	return r.filter(func(t *entity.Tombstone) bool {
		return t.BlobPath != nil && *t.BlobPath != "" && after.Before(t) && t.DeletedAt <= upTo
	}, limit), nil
}

func (r *TombstoneRepository) Ping(ctx context.Context) error {
	return r.next("Ping")
}

// All returns every stored tombstone in append order.
func (r *TombstoneRepository) All() []*entity.Tombstone {
	return r.filter(func(*entity.Tombstone) bool { return true }, 0)
}

func (r *TombstoneRepository) filter(keep func(*entity.Tombstone) bool, limit int) []*entity.Tombstone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Tombstone
	for _, t := range r.tombstones {
		if keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DeletedAt != out[j].DeletedAt {
			return out[i].DeletedAt < out[j].DeletedAt
		}
		return entity.CursorOf(out[i]).Before(out[j])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var _ contract.RetryQueueRepository = (*RetryQueueRepository)(nil)

type RetryQueueRepository struct {
	faults
	mu      sync.RWMutex
	entries []*entity.RetryEntry
	now     func() time.Time
}

func NewRetryQueueRepository() *RetryQueueRepository {
	return &RetryQueueRepository{now: time.Now}
}

func (r *RetryQueueRepository) Create(ctx context.Context, entry *entity.RetryEntry) error {
	if err := r.next("Create"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *RetryQueueRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.next("Delete"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *RetryQueueRepository) FindOldest(ctx context.Context, limit int) ([]*entity.RetryEntry, error) {
	if err := r.next("FindOldest"); err != nil {
		return nil, err
	}
	out := r.All()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RetryQueueRepository) Ping(ctx context.Context) error {
	return r.next("Ping")
}

// All returns the queued entries, oldest first.
func (r *RetryQueueRepository) All() []*entity.RetryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.RetryEntry, len(r.entries))
	for i, e := range r.entries {
		cp := *e
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

var _ contract.LongJobRepository = (*LongJobRepository)(nil)

type LongJobRepository struct {
	faults
	mu   sync.Mutex
	jobs map[uuid.UUID]*entity.LongJob
}

func NewLongJobRepository() *LongJobRepository {
	return &LongJobRepository{jobs: make(map[uuid.UUID]*entity.LongJob)}
}

func (r *LongJobRepository) Create(ctx context.Context, job *entity.LongJob) error {
	if err := r.next("Create"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now()
	job.CreatedAt, job.UpdatedAt = now, now
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *LongJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.JobStatus, results any) error {
	if err := r.next("UpdateStatus"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return contract.ErrJobNotFound
	}
	if !job.Status.CanTransitionTo(status) {
		return contract.ErrInvalidTransition
	}
	job.Status = status
	if results != nil {
		job.Results = results
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (r *LongJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.LongJob, error) {
	if err := r.next("FindByID"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}
