package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/llmjson"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

var errNoMermaid = errors.New("response contains no mermaid code")

// EnrichUseCase runs phase 2: the mind map for an analysed document.
type EnrichUseCase struct {
	docs     ports.DocumentRepository
	jobs     ports.JobStore
	storage  ports.ObjectStorage
	gen      ports.MultimodalGenerator
	prompts  ports.PromptStore
	observer ports.JobObserver
	logger   *zap.Logger

	now func() time.Time
}

func NewEnrichUseCase(
	docs ports.DocumentRepository,
	jobs ports.JobStore,
	storage ports.ObjectStorage,
	gen ports.MultimodalGenerator,
	prompts ports.PromptStore,
	observer ports.JobObserver,
	logger *zap.Logger,
) *EnrichUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrichUseCase{
		docs:     docs,
		jobs:     jobs,
		storage:  storage,
		gen:      gen,
		prompts:  prompts,
		observer: observer,
		logger:   logger,
		now:      utcNow,
	}
}

// ProcessJob swallows generation failures after recording them on the job
// and the document. It only returns an error when that bookkeeping failed,
// so durable queues can redeliver.
func (uc *EnrichUseCase) ProcessJob(ctx context.Context, job domain.EnrichmentJob) error {
	started := uc.now()
	if uc.observer != nil {
		uc.observer.StartJob()
		uc.observer.ObserveQueueLag(started.Sub(job.CreatedAt))
	}

	runErr, err := uc.process(ctx, job)

	if uc.observer != nil {
		outcome := err
		if outcome == nil {
			outcome = runErr
		}
		uc.observer.FinishJob(uc.now().Sub(started), outcome)
	}
	return err
}

func (uc *EnrichUseCase) process(ctx context.Context, job domain.EnrichmentJob) (runErr error, err error) {
	log := uc.logger.With(zap.String("job_id", job.ID), zap.String("document_id", job.DocumentID))
	defer uc.cleanup(ctx, job, log)

	running, err := uc.jobs.MarkRunning(ctx, job.ID)
	switch {
	case domain.IsKind(err, domain.ErrJobNotFound):
		log.Warn("job record missing, processing queued copy")
		running = &job
	case err != nil:
		return nil, fmt.Errorf("mark job running: %w", err)
	}
	log.Info("enrichment started", zap.Int("attempt", running.Attempts))

	doc, err := uc.docs.GetByID(ctx, job.DocumentID)
	if domain.IsKind(err, domain.ErrDocumentNotFound) {
		log.Info("document gone, nothing to enrich")
		return nil, uc.finish(ctx, job.ID, nil)
	}
	if err != nil {
		runErr = fmt.Errorf("fetch document: %w", err)
		return runErr, uc.finish(ctx, job.ID, runErr)
	}

	mindmap, runErr := uc.mindmap(ctx, doc, running.FileRef)
	result := domain.EnrichmentResult{FinishedAt: uc.now()}
	if runErr != nil {
		log.Error("enrichment failed", zap.Error(runErr))
		result.Enrichment = domain.PhaseFailed
	} else {
		result.Mindmap = mindmap
		result.Enrichment = domain.PhaseSuccess
		result.PromoteOverall = true
	}

	if err := uc.docs.SaveEnrichment(context.WithoutCancel(ctx), doc.ID, result); err != nil {
		saveErr := fmt.Errorf("save enrichment: %w", err)
		return runErr, errors.Join(saveErr, uc.finish(ctx, job.ID, saveErr))
	}
	if err := uc.finish(ctx, job.ID, runErr); err != nil {
		return runErr, err
	}
	log.Info("enrichment finished", zap.String("status", string(result.Enrichment)))
	return runErr, nil
}

// mindmap asks the model against the retained file when there is one,
// otherwise against the stored analysis.
func (uc *EnrichUseCase) mindmap(ctx context.Context, doc *domain.Document, ref *domain.FileRef) (string, error) {
	var (
		raw string
		err error
	)
	switch {
	case ref != nil:
		raw, err = uc.gen.GenerateMultimodal(ctx, uc.prompts.Template(ports.PromptEnrichment), ref)
	case doc.Analyzed():
		raw, err = uc.gen.GenerateText(ctx, withSection(uc.prompts.Template(ports.PromptEnrichment), "DOCUMENT CONTENT:", doc.Analysis))
	default:
		return "", domain.NewError(domain.ErrNotAnalyzed, "document has no analysis to enrich")
	}
	if err != nil {
		return "", fmt.Errorf("generate mindmap: %w", err)
	}

	code := llmjson.ExtractMermaid(raw)
	if code == "" {
		return "", errNoMermaid
	}
	return code, nil
}

func (uc *EnrichUseCase) finish(ctx context.Context, jobID string, runErr error) error {
	status, msg := domain.JobSuccess, ""
	if runErr != nil {
		status, msg = domain.JobFailed, runErr.Error()
	}
	err := uc.jobs.FinishJob(context.WithoutCancel(ctx), jobID, status, msg)
	if domain.IsKind(err, domain.ErrJobNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// cleanup drops everything the job owns, whatever its outcome.
func (uc *EnrichUseCase) cleanup(ctx context.Context, job domain.EnrichmentJob, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	if job.StorageKey != "" {
		if err := uc.storage.Delete(ctx, job.StorageKey); err != nil {
			log.Warn("delete retained upload", zap.String("key", job.StorageKey), zap.Error(err))
		}
	}
	if job.FileRef != nil {
		if err := uc.gen.ReleaseFile(ctx, *job.FileRef); err != nil {
			log.Warn("release provider file", zap.String("uri", job.FileRef.URI), zap.Error(err))
		}
	}
}
