package service

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"notesync-be/internal/entity"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/repository/contract"
	"notesync-be/internal/repository/memory"

	"github.com/google/uuid"
)

type ILongJobService interface {
	Create(ctx context.Context, jobType, ownerID string) (uuid.UUID, error)
	SetStatus(ctx context.Context, id uuid.UUID, status entity.JobStatus, results any) error
	// Get returns contract.ErrJobNotFound for unknown ids.
	Get(ctx context.Context, id uuid.UUID) (*entity.LongJob, error)
}

type longJobService struct {
	repo   contract.LongJobRepository
	cache  *memory.JobCache
	logger logger.ILogger
}

func NewLongJobService(repo contract.LongJobRepository, cache *memory.JobCache, log logger.ILogger) ILongJobService {
	return &longJobService{
		repo:   repo,
		cache:  cache,
		logger: log,
	}
}

func (s *longJobService) Create(ctx context.Context, jobType, ownerID string) (uuid.UUID, error) {
	job := &entity.LongJob{
		Status:  entity.JobStatusStarted,
		Results: []any{},
		JobType: jobType,
		OwnerID: ownerID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("creating long job: %w", err)
	}
	s.logger.Info("LongJob", "Job created", map[string]interface{}{
		"job_id":   job.ID.String(),
		"job_type": jobType,
	})
	return job.ID, nil
}

func (s *longJobService) SetStatus(ctx context.Context, id uuid.UUID, status entity.JobStatus, results any) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", contract.ErrInvalidTransition, status)
	}
	if results != nil {
		results = NormalizeResults(results)
	}
	if err := s.repo.UpdateStatus(ctx, id, status, results); err != nil {
		s.logger.Warn("LongJob", "Status update rejected", map[string]interface{}{
			"job_id": id.String(),
			"status": string(status),
			"error":  err.Error(),
		})
		return err
	}
	return nil
}

// trackJob moves a job on behalf of a background task. Failed transitions are
// logged against module; a job that cannot reach its terminal status is
// pushed to error so pollers do not wait on it forever.
func trackJob(ctx context.Context, jobs ILongJobService, log logger.ILogger, module string, id uuid.UUID, status entity.JobStatus, results any) {
	err := jobs.SetStatus(ctx, id, status, results)
	if err == nil {
		return
	}
	log.Error(module, "Long job status not recorded", map[string]interface{}{
		"job_id": id.String(),
		"status": string(status),
		"error":  err.Error(),
	})
	if status == entity.JobStatusCompleted {
		if ferr := jobs.SetStatus(ctx, id, entity.JobStatusError, map[string]any{"error": err.Error()}); ferr != nil {
			log.Error(module, "Long job left unfinished", map[string]interface{}{
				"job_id": id.String(),
				"error":  ferr.Error(),
			})
		}
	}
}

func (s *longJobService) Get(ctx context.Context, id uuid.UUID) (*entity.LongJob, error) {
	if job, ok := s.cache.Get(id); ok {
		return job, nil
	}
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, contract.ErrJobNotFound
	}
	s.cache.Save(job)
	return job, nil
}

// NormalizeResults rewrites v so that it only holds JSON primitives, maps and
// slices. Identifiers, times and other non-primitive values become strings.
func NormalizeResults(v any) any {
	switch x := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x
	case uuid.UUID:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case error:
		return x.Error()
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(x, &decoded); err != nil {
			return string(x)
		}
		return NormalizeResults(decoded)
	case json.Marshaler:
		return normalizeViaJSON(x)
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return NormalizeResults(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = NormalizeResults(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(NormalizeResults(iter.Key().Interface()))] = NormalizeResults(iter.Value().Interface())
		}
		return out
	case reflect.Struct:
		return normalizeViaJSON(v)
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	default:
		return fmt.Sprint(v)
	}
}

func normalizeViaJSON(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return NormalizeResults(decoded)
}
