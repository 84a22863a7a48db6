package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, filename, original_name, mime_type, size_bytes, page_count, analysis, metadata, mindmap,
	start_time, end_time, duration_ms,
	status_upload, status_visual, status_enrichment, status_rag, status_overall,
	created_at, updated_at`

// listColumns leaves out the analysis body; listings never carry it.
const listColumns = `id, filename, original_name, mime_type, size_bytes, page_count, '' AS analysis, metadata, mindmap,
	start_time, end_time, duration_ms,
	status_upload, status_visual, status_enrichment, status_rag, status_overall,
	created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	const query = `
INSERT INTO documents (` + documentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
`
	_, err = r.db.ExecContext(ctx, query,
		doc.ID,
		doc.Filename,
		doc.OriginalName,
		doc.MimeType,
		doc.Size,
		doc.PageCount,
		doc.Analysis,
		string(meta),
		doc.Mindmap,
		doc.Timing.StartTime,
		nullTime(doc.Timing.EndTime),
		nullInt64(doc.Timing.Duration),
		string(doc.Status.Upload),
		string(doc.Status.VisualProcessing),
		string(doc.Status.Enrichment),
		string(doc.Status.RAG),
		string(doc.Status.Overall),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document by id", err)
		}
		return nil, fmt.Errorf("get document by id: %w", err)
	}
	return doc, nil
}

// List returns one page of records plus the total matching count. Search is
// a case-insensitive match on the original name or the metadata title.
func (r *DocumentRepository) List(ctx context.Context, q domain.ListQuery) ([]domain.Document, int, error) {
	q = q.Normalize()

	where := ""
	args := []any{}
	if term := strings.TrimSpace(q.Search); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		where = ` WHERE original_name ILIKE $1 OR metadata->>'title' ILIKE $1`
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	order := "DESC"
	if q.Order == domain.SortAsc {
		order = "ASC"
	}
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM documents%s ORDER BY created_at %s LIMIT $%d OFFSET $%d`,
		listColumns, where, order, n+1, n+2)
	args = append(args, q.Limit, q.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0, q.Limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate documents: %w", err)
	}
	return out, total, nil
}

func (r *DocumentRepository) UpdateUploadStatus(ctx context.Context, id string, status domain.PhaseStatus) error {
	const query = `UPDATE documents SET status_upload = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update upload status: %w", err)
	}
	return requireRow(res, "update upload status")
}

func (r *DocumentRepository) SavePhase1(ctx context.Context, id string, result domain.Phase1Result) error {
	meta, err := json.Marshal(result.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	const query = `
UPDATE documents
SET analysis = $2,
	metadata = $3::jsonb,
	page_count = $4,
	status_visual = $5,
	status_overall = $6,
	status_rag = $7,
	end_time = $8,
	duration_ms = $9,
	updated_at = $10
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, query,
		id,
		result.Analysis,
		string(meta),
		result.PageCount,
		string(result.Status),
		string(result.Overall),
		string(result.RAG),
		nullTime(result.Timing.EndTime),
		nullInt64(result.Timing.Duration),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return requireRow(res, "save analysis")
}

// SaveEnrichment writes the background phase outcome. Overall is promoted in
// the same statement so a failed visual phase can never be overwritten.
func (r *DocumentRepository) SaveEnrichment(ctx context.Context, id string, result domain.EnrichmentResult) error {
	finished := result.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	const query = `
UPDATE documents
SET mindmap = CASE WHEN $2 = '' THEN mindmap ELSE $2 END,
	status_enrichment = $3,
	status_overall = CASE WHEN $4 AND status_visual = 'SUCCESS' THEN 'SUCCESS' ELSE status_overall END,
	end_time = CASE WHEN $4 AND status_visual = 'SUCCESS' THEN $5 ELSE end_time END,
	duration_ms = CASE WHEN $4 AND status_visual = 'SUCCESS'
		THEN (EXTRACT(EPOCH FROM ($5 - start_time)) * 1000)::BIGINT
		ELSE duration_ms END,
	updated_at = $6
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, query,
		id,
		result.Mindmap,
		string(result.Enrichment),
		result.PromoteOverall,
		finished,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save enrichment: %w", err)
	}
	return requireRow(res, "save enrichment")
}

func (r *DocumentRepository) UpdateRAGStatus(ctx context.Context, id string, status domain.PhaseStatus) error {
	const query = `UPDATE documents SET status_rag = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update rag status: %w", err)
	}
	return requireRow(res, "update rag status")
}

func scanDocument(s rowScanner) (*domain.Document, error) {
	var (
		doc      domain.Document
		metaRaw  []byte
		endTime  sql.NullTime
		duration sql.NullInt64
		upload   string
		visual   string
		enrich   string
		rag      string
		overall  string
	)
	if err := s.Scan(
		&doc.ID,
		&doc.Filename,
		&doc.OriginalName,
		&doc.MimeType,
		&doc.Size,
		&doc.PageCount,
		&doc.Analysis,
		&metaRaw,
		&doc.Mindmap,
		&doc.Timing.StartTime,
		&endTime,
		&duration,
		&upload,
		&visual,
		&enrich,
		&rag,
		&overall,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if endTime.Valid {
		t := endTime.Time
		doc.Timing.EndTime = &t
	}
	if duration.Valid {
		d := duration.Int64
		doc.Timing.Duration = &d
	}
	doc.Status = domain.DocumentStatus{
		Upload:           domain.PhaseStatus(upload),
		VisualProcessing: domain.PhaseStatus(visual),
		Enrichment:       domain.PhaseStatus(enrich),
		RAG:              domain.PhaseStatus(rag),
		Overall:          domain.PhaseStatus(overall),
	}
	return &doc, nil
}

func requireRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, op, sql.ErrNoRows)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
