package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

const (
	DefaultTTL = 24 * time.Hour

	statusKeyPrefix = "job_status:"
	indexKeyPrefix  = "job_index:"
)

// client is the subset of go-redis used by the store.
type client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	ZAdd(ctx context.Context, key string, members ...goredis.Z) *goredis.IntCmd
	ZRevRange(ctx context.Context, key string, start, stop int64) *goredis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *goredis.BoolCmd
}

// Store keeps enrichment job status in Redis under job_status:<id>, with a
// per-document sorted index. Entries expire after the configured TTL.
type Store struct {
	rdb client
	ttl time.Duration
}

func New(rdb *goredis.Client, ttl time.Duration) *Store {
	return newStore(rdb, ttl)
}

func newStore(rdb client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func statusKey(id string) string { return statusKeyPrefix + id }

func indexKey(documentID string) string { return indexKeyPrefix + documentID }

func (s *Store) CreateJob(ctx context.Context, job *domain.EnrichmentJob) error {
	if err := s.save(ctx, job); err != nil {
		return err
	}
	key := indexKey(job.DocumentID)
	if err := s.rdb.ZAdd(ctx, key, goredis.Z{
		Score:  float64(job.CreatedAt.UnixNano()),
		Member: job.ID,
	}).Err(); err != nil {
		return fmt.Errorf("index job: %w", err)
	}
	if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
		return fmt.Errorf("expire job index: %w", err)
	}
	return nil
}

// MarkRunning is a read-modify-write; a job is only ever driven by one
// worker at a time.
func (s *Store) MarkRunning(ctx context.Context, id string) (*domain.EnrichmentJob, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	job.Status = domain.JobRunning
	job.Attempts++
	job.StartedAt = &now
	job.Error = ""
	if err := s.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) FinishJob(ctx context.Context, id string, status domain.JobStatus, errMessage string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	job.Status = status
	job.Error = errMessage
	job.FinishedAt = &now
	return s.save(ctx, job)
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.EnrichmentJob, error) {
	raw, err := s.rdb.Get(ctx, statusKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get job", err)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	var job domain.EnrichmentJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// ListJobsByDocument returns jobs newest first, skipping expired entries.
func (s *Store) ListJobsByDocument(ctx context.Context, documentID string) ([]domain.EnrichmentJob, error) {
	ids, err := s.rdb.ZRevRange(ctx, indexKey(documentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}
	out := make([]domain.EnrichmentJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			if domain.IsKind(err, domain.ErrJobNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *job)
	}
	return out, nil
}

func (s *Store) save(ctx context.Context, job *domain.EnrichmentJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.rdb.Set(ctx, statusKey(job.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save job status: %w", err)
	}
	return nil
}
