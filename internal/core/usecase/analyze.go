package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/llmjson"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

const (
	uploadsPrefix = "uploads/"
	sniffLength   = 512

	sourceText  = "text"
	sourceMedia = "media"
)

// AnalyzeUseCase runs phase 1 of the pipeline synchronously and hands the
// enrichment phase to the job queue.
type AnalyzeUseCase struct {
	docs      ports.DocumentRepository
	jobs      ports.JobStore
	storage   ports.ObjectStorage
	queue     ports.JobQueue
	extractor ports.TextExtractor
	mime      ports.MIMEDetector
	gen       ports.MultimodalGenerator
	prompts   ports.PromptStore
	observer  ports.AnalysisObserver
	logger    *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewAnalyzeUseCase(
	docs ports.DocumentRepository,
	jobs ports.JobStore,
	storage ports.ObjectStorage,
	queue ports.JobQueue,
	extractor ports.TextExtractor,
	mime ports.MIMEDetector,
	gen ports.MultimodalGenerator,
	prompts ports.PromptStore,
	observer ports.AnalysisObserver,
	logger *zap.Logger,
) *AnalyzeUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyzeUseCase{
		docs:      docs,
		jobs:      jobs,
		storage:   storage,
		queue:     queue,
		extractor: extractor,
		mime:      mime,
		gen:       gen,
		prompts:   prompts,
		observer:  observer,
		logger:    logger,
		now:       utcNow,
		newID:     newUUID,
	}
}

// analysisRun carries phase 1 state between steps.
type analysisRun struct {
	doc      *domain.Document
	data     []byte
	key      string
	source   string
	fileRef  *domain.FileRef
	uploaded bool
}

func (uc *AnalyzeUseCase) Analyze(ctx context.Context, input domain.UploadInput) (*domain.AnalysisOutcome, error) {
	if input.Body == nil {
		return nil, invalidInput(msgFileRequired)
	}
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	}
	if len(data) == 0 {
		return nil, invalidInput(msgFileRequired)
	}

	run, err := uc.create(ctx, input, data)
	if err != nil {
		return nil, err
	}
	log := uc.logger.With(zap.String("document_id", run.doc.ID), zap.String("mime_type", run.doc.MimeType))
	log.Info("analysis started", zap.String("original_name", run.doc.OriginalName), zap.Int("size", len(data)))

	phase1, err := uc.runPhase1(ctx, run)
	if err != nil {
		uc.fail(ctx, run, err)
		return nil, err
	}
	uc.record(run.source, "success")
	log.Info("analysis finished", zap.Int64p("duration_ms", phase1.Timing.Duration))

	outcome := &domain.AnalysisOutcome{
		ID: run.doc.ID,
		Status: domain.DocumentStatus{
			Upload:           domain.PhaseSuccess,
			VisualProcessing: phase1.Status,
			Enrichment:       domain.PhasePending,
			RAG:              phase1.RAG,
			Overall:          phase1.Overall,
		},
		Timing:   phase1.Timing,
		Metadata: phase1.Metadata,
		Analysis: phase1.Analysis,
	}

	retain := strings.HasPrefix(run.doc.MimeType, "image/")
	if !retain {
		uc.deleteUpload(ctx, run.key)
		uc.releaseFile(ctx, run)
	}
	jobID, err := uc.submitEnrichment(ctx, run, retain)
	if err != nil {
		log.Error("enrichment not queued", zap.Error(err))
		outcome.Status.Enrichment = domain.PhaseFailed
	}
	outcome.JobID = jobID
	return outcome, nil
}

func (uc *AnalyzeUseCase) create(ctx context.Context, input domain.UploadInput, data []byte) (*analysisRun, error) {
	head := data
	if len(head) > sniffLength {
		head = head[:sniffLength]
	}
	mimeType := uc.mime.DetectMIME(input.MimeType, input.OriginalName, head)

	id := uc.newID()
	filename := id + strings.ToLower(filepath.Ext(input.OriginalName))
	now := uc.now()
	doc := &domain.Document{
		ID:           id,
		Filename:     filename,
		OriginalName: input.OriginalName,
		MimeType:     mimeType,
		Size:         int64(len(data)),
		Timing:       domain.Timing{StartTime: now},
		Status:       domain.NewPendingStatus(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	source := sourceMedia
	if uc.extractor.Supports(mimeType, input.OriginalName) {
		source = sourceText
	}
	return &analysisRun{
		doc:    doc,
		data:   data,
		key:    uploadsPrefix + filename,
		source: source,
	}, nil
}

func (uc *AnalyzeUseCase) runPhase1(ctx context.Context, run *analysisRun) (domain.Phase1Result, error) {
	if err := uc.storage.Save(ctx, run.key, bytes.NewReader(run.data)); err != nil {
		return domain.Phase1Result{}, fmt.Errorf("store upload: %w", err)
	}
	run.uploaded = true
	if err := uc.docs.UpdateUploadStatus(ctx, run.doc.ID, domain.PhaseSuccess); err != nil {
		return domain.Phase1Result{}, fmt.Errorf("mark upload: %w", err)
	}

	var (
		raw string
		err error
	)
	if run.source == sourceText {
		raw, err = uc.analyzeText(ctx, run)
	} else {
		raw, err = uc.analyzeMedia(ctx, run)
	}
	if err != nil {
		return domain.Phase1Result{}, err
	}

	parsed := llmjson.ExtractJSON(raw)
	var meta domain.Metadata
	if parsed.Parsed() && !parsed.Decode(&meta) {
		uc.logger.Warn("metadata block has unexpected shape", zap.String("document_id", run.doc.ID))
	}
	if isBlank(meta.Title) {
		meta.Title = run.doc.OriginalName
	}

	timing := run.doc.Timing
	timing.Finish(uc.now())
	result := domain.Phase1Result{
		Analysis:  parsed.Cleaned,
		Metadata:  meta,
		PageCount: uc.extractor.PageCount(run.doc.MimeType, run.data),
		Status:    domain.PhaseSuccess,
		Overall:   domain.PhasePending,
		RAG:       domain.PhasePending,
		Timing:    timing,
	}
	if err := uc.docs.SavePhase1(ctx, run.doc.ID, result); err != nil {
		return domain.Phase1Result{}, fmt.Errorf("save analysis: %w", err)
	}
	return result, nil
}

func (uc *AnalyzeUseCase) analyzeText(ctx context.Context, run *analysisRun) (string, error) {
	content, err := uc.extractor.Extract(ctx, run.doc.MimeType, run.doc.OriginalName, run.data)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	prompt := withSection(uc.prompts.Template(ports.PromptPDFExtraction), "DOCUMENT CONTENT:", content) +
		"\n\n" + uc.prompts.Template(ports.PromptMetaJSON)
	raw, err := uc.gen.GenerateText(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("analyze text: %w", err)
	}
	return raw, nil
}

func (uc *AnalyzeUseCase) analyzeMedia(ctx context.Context, run *analysisRun) (string, error) {
	ref, err := uc.gen.UploadFile(ctx, run.doc.Filename, run.doc.MimeType, bytes.NewReader(run.data))
	if err != nil {
		return "", fmt.Errorf("upload to provider: %w", err)
	}
	run.fileRef = &ref

	prompt := uc.prompts.Template(mediaPrompt(run.doc.MimeType)) + "\n\n" + uc.prompts.Template(ports.PromptMetaJSON)
	raw, err := uc.gen.GenerateMultimodal(ctx, prompt, &ref)
	if err != nil {
		return "", fmt.Errorf("analyze media: %w", err)
	}
	return raw, nil
}

func mediaPrompt(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return ports.PromptImageContext
	case strings.HasPrefix(mimeType, "audio/"):
		return ports.PromptAudioContext
	case strings.HasPrefix(mimeType, "video/"):
		return ports.PromptVideoContext
	default:
		return ports.PromptPDFExtraction
	}
}

// submitEnrichment persists and queues the phase 2 job. The retained upload
// is owned by the job from here on.
func (uc *AnalyzeUseCase) submitEnrichment(ctx context.Context, run *analysisRun, retain bool) (string, error) {
	job := &domain.EnrichmentJob{
		ID:         uc.newID(),
		DocumentID: run.doc.ID,
		MimeType:   run.doc.MimeType,
		Status:     domain.JobPending,
		CreatedAt:  uc.now(),
	}
	if retain {
		job.StorageKey = run.key
		job.FileRef = run.fileRef
	}

	if err := uc.jobs.CreateJob(ctx, job); err != nil {
		uc.abandonEnrichment(ctx, run, "", err)
		return "", fmt.Errorf("create enrichment job: %w", err)
	}
	if err := uc.queue.Enqueue(ctx, *job); err != nil {
		uc.abandonEnrichment(ctx, run, job.ID, err)
		return job.ID, fmt.Errorf("enqueue enrichment job: %w", err)
	}
	return job.ID, nil
}

func (uc *AnalyzeUseCase) abandonEnrichment(ctx context.Context, run *analysisRun, jobID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	log := uc.logger.With(zap.String("document_id", run.doc.ID))
	if jobID != "" {
		if err := uc.jobs.FinishJob(ctx, jobID, domain.JobFailed, cause.Error()); err != nil {
			log.Warn("mark job failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}
	result := domain.EnrichmentResult{Enrichment: domain.PhaseFailed, FinishedAt: uc.now()}
	if err := uc.docs.SaveEnrichment(ctx, run.doc.ID, result); err != nil {
		log.Warn("mark enrichment failed", zap.Error(err))
	}
	uc.deleteUpload(ctx, run.key)
	uc.releaseFile(ctx, run)
}

// fail records a phase 1 failure. Writes outlive the request context.
func (uc *AnalyzeUseCase) fail(ctx context.Context, run *analysisRun, cause error) {
	ctx = context.WithoutCancel(ctx)
	log := uc.logger.With(zap.String("document_id", run.doc.ID))
	log.Error("analysis failed", zap.Error(cause))

	if !run.uploaded {
		if err := uc.docs.UpdateUploadStatus(ctx, run.doc.ID, domain.PhaseFailed); err != nil {
			log.Warn("mark upload failed", zap.Error(err))
		}
	}
	timing := run.doc.Timing
	timing.Finish(uc.now())
	failed := domain.Phase1Result{
		Status:  domain.PhaseFailed,
		Overall: domain.PhaseFailed,
		RAG:     domain.PhaseSkipped,
		Timing:  timing,
	}
	if err := uc.docs.SavePhase1(ctx, run.doc.ID, failed); err != nil {
		log.Warn("mark analysis failed", zap.Error(err))
	}
	if run.uploaded {
		uc.deleteUpload(ctx, run.key)
	}
	uc.releaseFile(ctx, run)
	uc.record(run.source, "failed")
}

func (uc *AnalyzeUseCase) deleteUpload(ctx context.Context, key string) {
	if err := uc.storage.Delete(ctx, key); err != nil {
		uc.logger.Warn("delete upload", zap.String("key", key), zap.Error(err))
	}
}

// releaseFile frees the provider copy unless a queued job took it over.
func (uc *AnalyzeUseCase) releaseFile(ctx context.Context, run *analysisRun) {
	if run.fileRef == nil {
		return
	}
	ref := *run.fileRef
	run.fileRef = nil
	if err := uc.gen.ReleaseFile(context.WithoutCancel(ctx), ref); err != nil {
		uc.logger.Warn("release provider file", zap.String("document_id", run.doc.ID), zap.String("uri", ref.URI), zap.Error(err))
	}
}

func (uc *AnalyzeUseCase) record(source, status string) {
	if uc.observer != nil {
		uc.observer.RecordAnalysis(source, status)
	}
}
