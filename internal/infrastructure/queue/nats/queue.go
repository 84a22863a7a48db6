// Package nats carries enrichment jobs over a core NATS subject consumed by
// a queue group of workers. Delivery is at most once.
package nats

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/resilience"
)

const (
	queueGroup       = "enrichment-workers"
	headerDocumentID = "Docint-Document-Id"
)

type Queue struct {
	conn        *nats.Conn
	subject     string
	concurrency int
	executor    *resilience.Executor
	logger      *zap.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	// Concurrency bounds the jobs one consumer runs at once.
	Concurrency        int
	ResilienceExecutor *resilience.Executor
	Logger             *zap.Logger
}

func New(url, subject string, opts Options) (*Queue, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("nats")

	retry := true
	if opts.RetryOnFailedConnect != nil {
		retry = *opts.RetryOnFailedConnect
	}
	conn, err := nats.Connect(url,
		nats.Name("document-intelligence"),
		nats.Timeout(positive(opts.ConnectTimeout, 2*time.Second)),
		nats.ReconnectWait(positive(opts.ReconnectWait, 2*time.Second)),
		nats.MaxReconnects(positive(opts.MaxReconnects, 60)),
		nats.RetryOnFailedConnect(retry),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:        conn,
		subject:     cmp.Or(subject, "documents.enrichment"),
		concurrency: positive(opts.Concurrency, 1),
		executor:    opts.ResilienceExecutor,
		logger:      logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Enqueue(ctx context.Context, job domain.EnrichmentJob) error {
	msg, err := newJobMsg(q.subject, job)
	if err != nil {
		return err
	}
	publish := func(context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", publish, classifyPublish)
	} else {
		err = publish(ctx)
	}
	return resilience.Temporary("nats publish", err, classifyPublish)
}

// classifyPublish retries only connection-level failures.
func classifyPublish(err error) resilience.Class {
	switch {
	case resilience.Cancelled(err):
		return resilience.Rejected
	case resilience.IsCircuitOpen(err),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrDisconnected):
		return resilience.Transient
	default:
		return resilience.Permanent
	}
}

// Consume runs handler on up to Concurrency jobs at a time until ctx is
// cancelled. It then unsubscribes and finishes the jobs already delivered,
// whose contexts outlive ctx.
func (q *Queue) Consume(ctx context.Context, handler func(context.Context, domain.EnrichmentJob) error) error {
	msgs := make(chan *nats.Msg, q.concurrency*2)
	sub, err := q.conn.ChanQueueSubscribe(q.subject, queueGroup, msgs)
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}
	q.logger.Info("nats_consuming",
		zap.String("subject", q.subject),
		zap.String("queue_group", queueGroup),
		zap.Int("concurrency", q.concurrency),
	)

	jobCtx := context.WithoutCancel(ctx)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for range q.concurrency {
		wg.Go(func() {
			for {
				select {
				case msg := <-msgs:
					q.handle(jobCtx, msg, handler)
				case <-stop:
					for {
						select {
						case msg := <-msgs:
							q.handle(jobCtx, msg, handler)
						default:
							return
						}
					}
				}
			}
		})
	}

	<-ctx.Done()
	unsubErr := sub.Unsubscribe()
	close(stop)
	wg.Wait()
	if unsubErr != nil {
		return fmt.Errorf("nats unsubscribe: %w", unsubErr)
	}
	return nil
}

func (q *Queue) handle(ctx context.Context, msg *nats.Msg, handler func(context.Context, domain.EnrichmentJob) error) {
	job, err := decodeJob(msg.Data)
	if err != nil {
		q.logger.Error("nats_job_decode_failed",
			zap.String("msg_id", msg.Header.Get(nats.MsgIdHdr)),
			zap.Error(err),
		)
		return
	}
	if err := handler(ctx, job); err != nil {
		q.logger.Error("nats_job_handler_failed",
			zap.String("job_id", job.ID),
			zap.String("document_id", job.DocumentID),
			zap.Error(err),
		)
	}
}

// newJobMsg uses the job id as the message id.
func newJobMsg(subject string, job domain.EnrichmentJob) (*nats.Msg, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, job.ID)
	msg.Header.Set(headerDocumentID, job.DocumentID)
	return msg, nil
}

func decodeJob(data []byte) (domain.EnrichmentJob, error) {
	var job domain.EnrichmentJob
	if err := json.Unmarshal(data, &job); err != nil {
		return job, fmt.Errorf("unmarshal job: %w", err)
	}
	if job.ID == "" || job.DocumentID == "" {
		return job, fmt.Errorf("unmarshal job: missing id or document id")
	}
	return job, nil
}

func positive[T int | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}
