package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

// Client-facing messages.
const (
	msgFileRequired       = "File is required"
	msgOCRIDRequired      = "ocrId is required"
	msgRecordNotFound     = "OCR Record not found"
	msgAnalysisMissing    = "Analysis text not found. Please wait for OCR to complete."
	msgSchemaRequired     = "schema object is required to define the form structure"
	msgCompareIDsRequired = "Both sourceId and targetId are required"
	msgCompareNotFound    = "One or both documents not found"
	msgCompareNotAnalyzed = "Documents must be analyzed before comparison"
	msgResumeRequired     = "ocrId and job_description are required"
	msgResumeNotFound     = "Resume Parsing Record not found"
	msgResumeNotAnalyzed  = "Resume must be processed/analyzed first"
	msgImageNoAnalysis    = "No analysis text available to generate image"
	msgIdentityRequired   = "Both docA_Id and docB_Id are required"
	msgIdentityNotFound   = "Documents not found"
	msgIdentityNotReady   = "Documents must be analyzed before verification"
	msgIngestNoAnalysis   = "No analysis text available to ingest"
	msgQueryRequired      = "Query or Question is required"
	msgQuestionRequired   = "Question is required"
	msgPromptRequired     = "Prompt is required"
	msgDocumentNotFound   = "Document not found"
	msgJobNotFound        = "Job not found"
)

const (
	compareParseError = "Failed to parse comparison result"
	resultParseError  = "Failed to parse result"
)

func invalidInput(message string) error {
	return domain.NewError(domain.ErrInvalidInput, message)
}

// loadDocument maps a missing record to a client-facing not-found error.
func loadDocument(ctx context.Context, repo ports.DocumentRepository, id, notFound string) (*domain.Document, error) {
	doc, err := repo.GetByID(ctx, id)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return nil, domain.NewError(domain.ErrDocumentNotFound, notFound)
		}
		return nil, fmt.Errorf("fetch document %s: %w", id, err)
	}
	return doc, nil
}

// loadAnalyzed is loadDocument plus the requirement that phase 1 produced text.
func loadAnalyzed(ctx context.Context, repo ports.DocumentRepository, id, notFound, notAnalyzed string) (*domain.Document, error) {
	doc, err := loadDocument(ctx, repo, id, notFound)
	if err != nil {
		return nil, err
	}
	if !doc.Analyzed() {
		return nil, domain.NewError(domain.ErrNotAnalyzed, notAnalyzed)
	}
	return doc, nil
}

func history[T any](ctx context.Context, repo ports.ResultRepository, kind domain.ResultKind, query domain.HistoryQuery) ([]T, error) {
	records, err := repo.List(ctx, kind, query)
	if err != nil {
		return nil, fmt.Errorf("list %s history: %w", kind, err)
	}
	out := make([]T, 0, len(records))
	for _, rec := range records {
		item, err := domain.DecodePayload[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func newUUID() string {
	return uuid.NewString()
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func withSection(prompt, heading, body string) string {
	return prompt + "\n\n" + heading + "\n" + body
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// remarshal copies a decoded JSON object into a typed struct.
func remarshal(value map[string]any, v any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}
