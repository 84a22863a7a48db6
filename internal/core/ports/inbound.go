package ports

import (
	"context"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

// DocumentAnalyzer runs the synchronous analysis phase and queues enrichment.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, input domain.UploadInput) (*domain.AnalysisOutcome, error)
}

// DocumentReader is the read model for records.
type DocumentReader interface {
	GetDocument(ctx context.Context, id string) (*domain.DocumentView, error)
	GetStatus(ctx context.Context, id string) (*domain.DocumentStatusView, error)
	ListDocuments(ctx context.Context, query domain.ListQuery) (*domain.DocumentPage, error)
}

// JobReader exposes enrichment job lifecycle.
type JobReader interface {
	GetJob(ctx context.Context, id string) (*domain.EnrichmentJob, error)
	ListJobs(ctx context.Context, documentID string) ([]domain.EnrichmentJob, error)
}

// EnrichmentProcessor runs one queued enrichment job.
type EnrichmentProcessor interface {
	ProcessJob(ctx context.Context, job domain.EnrichmentJob) error
}

// DocumentQA is the retrieval-augmented question answering contract.
type DocumentQA interface {
	EnsureIngested(ctx context.Context, documentID string) error
	Search(ctx context.Context, documentID, query string) (*domain.Answer, error)
	Chat(ctx context.Context, documentID, question string, history []domain.ChatTurn) (*domain.Answer, error)
}

type EntityExtractor interface {
	ExtractEntities(ctx context.Context, req domain.EntityRequest) (*domain.EntityResult, error)
	EntityHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.EntityResult, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, req domain.SummaryRequest) (*domain.SummaryResult, error)
	SummaryHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.SummaryResult, error)
}

type FormFiller interface {
	FillForm(ctx context.Context, req domain.FormRequest) (*domain.FormResult, error)
	FormHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.FormResult, error)
}

type DocumentComparer interface {
	Compare(ctx context.Context, req domain.CompareRequest) (*domain.CompareResult, error)
	CompareHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.CompareResult, error)
}

type IdentityVerifier interface {
	Verify(ctx context.Context, req domain.IdentityRequest) (*domain.IdentityResult, error)
	IdentityHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.IdentityResult, error)
}

type ResumeMatcher interface {
	AnalyzeResume(ctx context.Context, req domain.ResumeRequest) (*domain.ResumeResult, error)
	ResumeHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.ResumeResult, error)
}

type DocumentImager interface {
	GenerateDocumentImage(ctx context.Context, documentID string) (*domain.ImageResult, error)
}

// PromptGenerator is free-form text generation.
type PromptGenerator interface {
	GenerateFromPrompt(ctx context.Context, prompt string) (string, error)
}
