package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

const defaultHistoryLimit = 50

var resultTables = map[domain.ResultKind]string{
	domain.KindEntity:   "entity_results",
	domain.KindSummary:  "summary_results",
	domain.KindForm:     "form_results",
	domain.KindCompare:  "compare_results",
	domain.KindIdentity: "identity_results",
	domain.KindResume:   "resume_results",
	domain.KindImage:    "image_results",
}

func resultTableNames() []string {
	return []string{
		"entity_results",
		"summary_results",
		"form_results",
		"compare_results",
		"identity_results",
		"resume_results",
		"image_results",
	}
}

// ResultRepository stores derived feature results, one table per kind.
type ResultRepository struct {
	db *sql.DB
}

func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func tableFor(kind domain.ResultKind) (string, error) {
	table, ok := resultTables[kind]
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve result table", fmt.Errorf("unknown kind %q", kind))
	}
	return table, nil
}

func (r *ResultRepository) Append(ctx context.Context, rec domain.DerivedRecord) error {
	table, err := tableFor(rec.Kind)
	if err != nil {
		return err
	}
	query := `INSERT INTO ` + table + ` (id, document_id, related_document_id, status, payload, created_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6)`
	if _, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.DocumentID,
		rec.RelatedDocumentID,
		rec.Status,
		string(rec.Payload),
		rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert %s result: %w", rec.Kind, err)
	}
	return nil
}

func (r *ResultRepository) Latest(ctx context.Context, kind domain.ResultKind, documentID string) (*domain.DerivedRecord, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, document_id, related_document_id, status, payload, created_at FROM ` + table + `
WHERE document_id = $1 ORDER BY created_at DESC LIMIT 1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, documentID), kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest %s result: %w", kind, err)
	}
	return rec, nil
}

// List returns the newest entries first. An empty DocumentID lists across
// all documents.
func (r *ResultRepository) List(ctx context.Context, kind domain.ResultKind, q domain.HistoryQuery) ([]domain.DerivedRecord, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var rows *sql.Rows
	base := `SELECT id, document_id, related_document_id, status, payload, created_at FROM ` + table
	if q.DocumentID != "" {
		rows, err = r.db.QueryContext(ctx, base+` WHERE document_id = $1 ORDER BY created_at DESC LIMIT $2`, q.DocumentID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, base+` ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list %s results: %w", kind, err)
	}
	defer rows.Close()

	out := make([]domain.DerivedRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("scan %s result: %w", kind, err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s results: %w", kind, err)
	}
	return out, nil
}

func scanRecord(s rowScanner, kind domain.ResultKind) (*domain.DerivedRecord, error) {
	rec := domain.DerivedRecord{Kind: kind}
	var payload []byte
	if err := s.Scan(&rec.ID, &rec.DocumentID, &rec.RelatedDocumentID, &rec.Status, &payload, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Payload = payload
	return &rec, nil
}
