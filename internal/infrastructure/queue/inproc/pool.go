package inproc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

var (
	ErrQueueFull   = errors.New("enrichment queue is full")
	ErrQueueClosed = errors.New("enrichment queue is shut down")
)

type Config struct {
	Workers    int
	QueueDepth int
	JobTimeout time.Duration
}

// Pool is a bounded in-process job queue. Once its consumer stops it
// refuses new jobs and finishes the ones already buffered.
type Pool struct {
	jobs       chan domain.EnrichmentJob
	workers    int
	jobTimeout time.Duration
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func New(cfg Config, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		jobs:       make(chan domain.EnrichmentJob, cfg.QueueDepth),
		workers:    cfg.Workers,
		jobTimeout: cfg.JobTimeout,
		logger:     logger.Named("inproc_queue"),
	}
}

// Enqueue never blocks; a full buffer is reported as a temporary failure.
func (p *Pool) Enqueue(ctx context.Context, job domain.EnrichmentJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("enqueue enrichment job: %w", ErrQueueClosed)
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return domain.WrapError(domain.ErrTemporary, "enqueue enrichment job", fmt.Errorf("%w (depth %d)", ErrQueueFull, cap(p.jobs)))
	}
}

// Consume runs the workers until ctx is done. Jobs never see that
// cancellation: in-flight and buffered jobs run to the end under their own
// timeout before Consume returns.
func (p *Pool) Consume(ctx context.Context, handler func(context.Context, domain.EnrichmentJob) error) error {
	jobCtx := context.WithoutCancel(ctx)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for worker := range p.workers {
		wg.Go(func() {
			for {
				select {
				case job := <-p.jobs:
					p.run(jobCtx, worker, job, handler)
				case <-stop:
					for {
						select {
						case job := <-p.jobs:
							p.run(jobCtx, worker, job, handler)
						default:
							return
						}
					}
				}
			}
		})
	}

	<-ctx.Done()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.logger.Info("inproc_queue_draining", zap.Int("buffered", len(p.jobs)))
	close(stop)
	wg.Wait()
	return nil
}

func (p *Pool) run(ctx context.Context, worker int, job domain.EnrichmentJob, handler func(context.Context, domain.EnrichmentJob) error) {
	jobCtx := ctx
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("enrichment_job_panic",
				zap.Int("worker", worker),
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
			)
		}
	}()
	if err := handler(jobCtx, job); err != nil {
		p.logger.Error("enrichment_job_handler_failed",
			zap.Int("worker", worker),
			zap.String("job_id", job.ID),
			zap.String("document_id", job.DocumentID),
			zap.Error(err),
		)
	}
}
