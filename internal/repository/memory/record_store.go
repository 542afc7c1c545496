// Package memory holds process-local implementations of the repository
// contracts. They back local runs without databases and the service tests.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"notesync-be/internal/entity"
	"notesync-be/internal/repository/contract"
)

var _ contract.VectorStore = (*RecordStore)(nil)

type recordKey struct {
	tenant string
	id     string
}

type RecordStore struct {
	name string

	mu       sync.RWMutex
	records  map[recordKey]*entity.Record
	failures map[string]error
	calls    map[string]int
}

func NewRecordStore(name string) *RecordStore {
	return &RecordStore{
		name:     name,
		records:  make(map[recordKey]*entity.Record),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (s *RecordStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls reports how often op has been invoked.
func (s *RecordStore) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

func (s *RecordStore) enter(op string) error {
	s.calls[op]++
	return s.failures[op]
}

func (s *RecordStore) Name() string {
	return s.name
}

func (s *RecordStore) Insert(ctx context.Context, record *entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Insert"); err != nil {
		return err
	}
	s.put(record)
	return nil
}

func (s *RecordStore) UpsertBatch(ctx context.Context, records []*entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertBatch"); err != nil {
		return err
	}
	for _, r := range records {
		s.put(r)
	}
	return nil
}

func (s *RecordStore) put(r *entity.Record) {
	key := recordKey{r.TenantID, r.UniqueID}
	cp := clone(r)
	if len(cp.Vector) == 0 {
		if prev, ok := s.records[key]; ok {
			cp.Vector = prev.Vector
		}
	}
	s.records[key] = cp
}

func (s *RecordStore) UpdateMetadata(ctx context.Context, tenantID, uniqueID string, update *entity.MetadataUpdate) (*entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateMetadata"); err != nil {
		return nil, err
	}
	r, ok := s.records[recordKey{tenantID, uniqueID}]
	if !ok {
		return nil, contract.ErrRecordNotFound
	}
	update.Apply(r)
	return clone(r), nil
}

func (s *RecordStore) UpdateVector(ctx context.Context, tenantID, uniqueID string, vector []float32, lastModified int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateVector"); err != nil {
		return err
	}
	r, ok := s.records[recordKey{tenantID, uniqueID}]
	if !ok {
		return contract.ErrRecordNotFound
	}
	r.Vector = append([]float32(nil), vector...)
	if lastModified > r.LastModified {
		r.LastModified = lastModified
	}
	return nil
}

func (s *RecordStore) Delete(ctx context.Context, tenantID, uniqueID string) error {
	return s.DeleteMany(ctx, tenantID, []string{uniqueID})
}

func (s *RecordStore) DeleteMany(ctx context.Context, tenantID string, uniqueIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteMany"); err != nil {
		return err
	}
	for _, id := range uniqueIDs {
		delete(s.records, recordKey{tenantID, id})
	}
	return nil
}

func (s *RecordStore) Get(ctx context.Context, tenantID, uniqueID string) (*entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Get"); err != nil {
		return nil, err
	}
	r, ok := s.records[recordKey{tenantID, uniqueID}]
	if !ok {
		return nil, nil
	}
	return clone(r), nil
}

func (s *RecordStore) Fetch(ctx context.Context, filter entity.RecordFilter, limit, offset int) ([]*entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Fetch"); err != nil {
		return nil, err
	}
	matched := s.match(filter)
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.LastModified != b.LastModified {
			if filter.NewestFirst {
				return a.LastModified > b.LastModified
			}
			return a.LastModified < b.LastModified
		}
		return a.UniqueID < b.UniqueID
	})
	return page(matched, limit, offset), nil
}

func (s *RecordStore) QueryByVector(ctx context.Context, query entity.VectorQuery, limit, offset int) ([]*entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("QueryByVector"); err != nil {
		return nil, err
	}
	var matched []*entity.Record
	for _, r := range s.match(query.Filter) {
		if len(r.Vector) > 0 {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return cosineDistance(matched[i].Vector, query.Vector) < cosineDistance(matched[j].Vector, query.Vector)
	})
	return page(matched, limit, offset), nil
}

func (s *RecordStore) Count(ctx context.Context, filter entity.RecordFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Count"); err != nil {
		return 0, err
	}
	return int64(len(s.match(filter))), nil
}

// match returns clones of every record accepted by f, ordered by uniqueId.
func (s *RecordStore) match(f entity.RecordFilter) []*entity.Record {
	var out []*entity.Record
	for key, r := range s.records {
		if key.tenant != f.TenantID || !accepts(f, r) {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out
}

func accepts(f entity.RecordFilter, r *entity.Record) bool {
	if len(f.RecordTypes) > 0 && !contains(f.RecordTypes, r.RecordType) {
		return false
	}
	if f.ModifiedAfter != nil && r.LastModified <= *f.ModifiedAfter {
		return false
	}
	if len(f.UniqueIDs) > 0 && !contains(f.UniqueIDs, r.UniqueID) {
		return false
	}
	if len(f.AnyTagIDs) > 0 {
		hit := false
		for _, id := range r.TagIDs {
			if contains(f.AnyTagIDs, id) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if f.Keyword != "" {
		kw := strings.ToLower(f.Keyword)
		text, _ := r.Attributes["text"].(string)
		name, _ := r.Attributes["name"].(string)
		hay := strings.ToLower(strings.Join([]string{r.Title, r.Content, text, name}, "\x00"))
		if !strings.Contains(hay, kw) {
			return false
		}
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func page(records []*entity.Record, limit, offset int) []*entity.Record {
	if offset >= len(records) {
		return nil
	}
	records = records[offset:]
	if limit >= 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, x := range a {
		na += float64(x) * float64(x)
	}
	for _, x := range b {
		nb += float64(x) * float64(x)
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func clone(r *entity.Record) *entity.Record {
	cp := *r
	cp.Vector = append([]float32(nil), r.Vector...)
	cp.Tags = append([]entity.TagRef(nil), r.Tags...)
	cp.TagIDs = append([]string(nil), r.TagIDs...)
	cp.IncomingConnections = append([]string(nil), r.IncomingConnections...)
	cp.OutgoingConnections = append([]string(nil), r.OutgoingConnections...)
	if r.Attributes != nil {
		cp.Attributes = make(map[string]any, len(r.Attributes))
		for k, v := range r.Attributes {
			cp.Attributes[k] = v
		}
	}
	return &cp
}
