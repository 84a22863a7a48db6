package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

// JobRepository is the durable enrichment job store.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, document_id, storage_key, mime_type, file_ref, status, attempts, error_message, created_at, started_at, finished_at`

func (r *JobRepository) CreateJob(ctx context.Context, job *domain.EnrichmentJob) error {
	var ref sql.NullString
	if job.FileRef != nil {
		raw, err := json.Marshal(job.FileRef)
		if err != nil {
			return fmt.Errorf("marshal file ref: %w", err)
		}
		ref = sql.NullString{String: string(raw), Valid: true}
	}
	const query = `
INSERT INTO enrichment_jobs (id, document_id, storage_key, mime_type, file_ref, status, attempts, error_message, created_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9)
`
	if _, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.DocumentID,
		job.StorageKey,
		job.MimeType,
		ref,
		string(job.Status),
		job.Attempts,
		job.Error,
		job.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert enrichment job: %w", err)
	}
	return nil
}

// MarkRunning moves a job to RUNNING and bumps its attempt counter.
func (r *JobRepository) MarkRunning(ctx context.Context, id string) (*domain.EnrichmentJob, error) {
	query := `
UPDATE enrichment_jobs
SET status = $2, attempts = attempts + 1, started_at = $3, error_message = ''
WHERE id = $1
RETURNING ` + jobColumns
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id, string(domain.JobRunning), time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "mark job running", err)
		}
		return nil, fmt.Errorf("mark job running: %w", err)
	}
	return job, nil
}

func (r *JobRepository) FinishJob(ctx context.Context, id string, status domain.JobStatus, errMessage string) error {
	const query = `
UPDATE enrichment_jobs
SET status = $2, error_message = $3, finished_at = $4
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, query, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish job rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrJobNotFound, "finish job", sql.ErrNoRows)
	}
	return nil
}

func (r *JobRepository) GetJob(ctx context.Context, id string) (*domain.EnrichmentJob, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM enrichment_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get job", err)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) ListJobsByDocument(ctx context.Context, documentID string) ([]domain.EnrichmentJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM enrichment_jobs WHERE document_id = $1 ORDER BY created_at DESC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.EnrichmentJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

func scanJob(s rowScanner) (*domain.EnrichmentJob, error) {
	var (
		job      domain.EnrichmentJob
		ref      []byte
		status   string
		started  sql.NullTime
		finished sql.NullTime
	)
	if err := s.Scan(
		&job.ID,
		&job.DocumentID,
		&job.StorageKey,
		&job.MimeType,
		&ref,
		&status,
		&job.Attempts,
		&job.Error,
		&job.CreatedAt,
		&started,
		&finished,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if len(ref) > 0 {
		var fr domain.FileRef
		if err := json.Unmarshal(ref, &fr); err != nil {
			return nil, fmt.Errorf("decode file ref: %w", err)
		}
		job.FileRef = &fr
	}
	if started.Valid {
		t := started.Time
		job.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	return &job, nil
}
