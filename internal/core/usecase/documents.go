package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

// DocumentQueryUseCase serves the read side: records with their latest
// derived results, status polls, listings and enrichment jobs.
type DocumentQueryUseCase struct {
	docs    ports.DocumentRepository
	results ports.ResultRepository
	jobs    ports.JobStore

	now func() time.Time
}

func NewDocumentQueryUseCase(docs ports.DocumentRepository, results ports.ResultRepository, jobs ports.JobStore) *DocumentQueryUseCase {
	return &DocumentQueryUseCase{
		docs:    docs,
		results: results,
		jobs:    jobs,
		now:     utcNow,
	}
}

func (uc *DocumentQueryUseCase) GetDocument(ctx context.Context, id string) (*domain.DocumentView, error) {
	doc, err := loadDocument(ctx, uc.docs, id, msgDocumentNotFound)
	if err != nil {
		return nil, err
	}
	view := &domain.DocumentView{Document: *doc}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := uc.results.Latest(gctx, domain.KindEntity, id)
		if err != nil || rec == nil {
			return err
		}
		entity, err := domain.DecodePayload[domain.EntityResult](*rec)
		if err != nil {
			return err
		}
		view.EntityResult = entity.Entities
		return nil
	})
	g.Go(func() error {
		rec, err := uc.results.Latest(gctx, domain.KindSummary, id)
		if err != nil || rec == nil {
			return err
		}
		summary, err := domain.DecodePayload[domain.SummaryResult](*rec)
		if err != nil {
			return err
		}
		view.Summary = summary.Summary
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("project derived results for %s: %w", id, err)
	}
	return view, nil
}

// GetStatus reports a live duration while the pipeline is still running.
func (uc *DocumentQueryUseCase) GetStatus(ctx context.Context, id string) (*domain.DocumentStatusView, error) {
	doc, err := loadDocument(ctx, uc.docs, id, msgDocumentNotFound)
	if err != nil {
		return nil, err
	}

	timing := doc.Timing
	if doc.Status.Overall == domain.PhasePending {
		live := uc.now().Sub(timing.StartTime).Milliseconds()
		timing.Duration = &live
	}
	view := &domain.DocumentStatusView{
		ID:        doc.ID,
		Status:    doc.Status,
		Timing:    timing,
		Filename:  doc.OriginalName,
		CreatedAt: doc.CreatedAt,
	}

	jobs, err := uc.jobs.ListJobsByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", id, err)
	}
	if len(jobs) > 0 {
		view.Job = &jobs[0]
	}
	return view, nil
}

func (uc *DocumentQueryUseCase) ListDocuments(ctx context.Context, query domain.ListQuery) (*domain.DocumentPage, error) {
	query = query.Normalize()
	docs, total, err := uc.docs.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return &domain.DocumentPage{
		Data:       docs,
		Pagination: domain.NewPagination(total, query),
	}, nil
}

func (uc *DocumentQueryUseCase) GetJob(ctx context.Context, id string) (*domain.EnrichmentJob, error) {
	job, err := uc.jobs.GetJob(ctx, id)
	if err != nil {
		if domain.IsKind(err, domain.ErrJobNotFound) {
			return nil, domain.NewError(domain.ErrJobNotFound, msgJobNotFound)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// ListJobs returns the document's jobs, newest first.
func (uc *DocumentQueryUseCase) ListJobs(ctx context.Context, documentID string) ([]domain.EnrichmentJob, error) {
	if _, err := loadDocument(ctx, uc.docs, documentID, msgDocumentNotFound); err != nil {
		return nil, err
	}
	jobs, err := uc.jobs.ListJobsByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", documentID, err)
	}
	if jobs == nil {
		jobs = []domain.EnrichmentJob{}
	}
	return jobs, nil
}
