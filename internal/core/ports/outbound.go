package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

// DocumentRepository persists and reads document records.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, query domain.ListQuery) ([]domain.Document, int, error)
	UpdateUploadStatus(ctx context.Context, id string, status domain.PhaseStatus) error
	SavePhase1(ctx context.Context, id string, result domain.Phase1Result) error
	SaveEnrichment(ctx context.Context, id string, result domain.EnrichmentResult) error
	UpdateRAGStatus(ctx context.Context, id string, status domain.PhaseStatus) error
}

// ResultRepository is the append-only history of derived feature results.
type ResultRepository interface {
	Append(ctx context.Context, rec domain.DerivedRecord) error
	// Latest returns nil without error when the document has no entry.
	Latest(ctx context.Context, kind domain.ResultKind, documentID string) (*domain.DerivedRecord, error)
	List(ctx context.Context, kind domain.ResultKind, query domain.HistoryQuery) ([]domain.DerivedRecord, error)
}

// JobStore tracks the lifecycle of enrichment jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.EnrichmentJob) error
	MarkRunning(ctx context.Context, id string) (*domain.EnrichmentJob, error)
	FinishJob(ctx context.Context, id string, status domain.JobStatus, errMessage string) error
	GetJob(ctx context.Context, id string) (*domain.EnrichmentJob, error)
	ListJobsByDocument(ctx context.Context, documentID string) ([]domain.EnrichmentJob, error)
}

// ObjectStorage stores uploads and generated artifacts.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete succeeds when the object is already gone.
	Delete(ctx context.Context, key string) error
}

// JobQueue hands enrichment jobs to workers.
type JobQueue interface {
	Enqueue(ctx context.Context, job domain.EnrichmentJob) error
}

// JobConsumer delivers queued jobs to a handler until ctx is done.
type JobConsumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.EnrichmentJob) error) error
}

// MIMEDetector resolves a usable MIME type for an upload.
type MIMEDetector interface {
	DetectMIME(declared, filename string, head []byte) string
}

// TextExtractor pulls plain text out of office documents.
type TextExtractor interface {
	Supports(mimeType, filename string) bool
	Extract(ctx context.Context, mimeType, filename string, data []byte) (string, error)
	PageCount(mimeType string, data []byte) int
}

type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type MultimodalGenerator interface {
	TextGenerator
	// GenerateMultimodal with a nil file is plain text generation.
	GenerateMultimodal(ctx context.Context, prompt string, file *domain.FileRef) (string, error)
	UploadFile(ctx context.Context, name, mimeType string, body io.Reader) (domain.FileRef, error)
	// ReleaseFile drops a file returned by UploadFile. Releasing a file that
	// is already gone succeeds.
	ReleaseFile(ctx context.Context, ref domain.FileRef) error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type ImageGenerator interface {
	// GenerateImage returns base64 encoded image bytes.
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// GenerationGateway is the full set of provider capabilities.
type GenerationGateway interface {
	MultimodalGenerator
	Embedder
	ImageGenerator
}

// Chunker splits text into overlapping chunks.
type Chunker interface {
	Split(text string) []string
}

// VectorStore indexes chunks and performs similarity search.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	Query(ctx context.Context, vector []float32, topK int, filter domain.VectorFilter) ([]domain.RetrievedChunk, error)
}

// PromptStore serves named prompt templates.
type PromptStore interface {
	Template(name string) string
	Render(name string, vars map[string]string) string
}

// RAGObserver records retrieval outcomes.
type RAGObserver interface {
	RecordRAGObservation(endpoint string, sourceCount int, duration time.Duration)
}

// FeatureObserver records derived-feature outcomes by result kind.
type FeatureObserver interface {
	RecordFeatureResult(kind string, err error)
}

// AnalysisObserver records phase 1 outcomes by source kind (text or media).
type AnalysisObserver interface {
	RecordAnalysis(source, status string)
}

// JobObserver records enrichment job execution.
type JobObserver interface {
	StartJob()
	FinishJob(duration time.Duration, err error)
	ObserveQueueLag(lag time.Duration)
}
