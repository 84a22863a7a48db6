package asynq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

const TaskTypeEnrichment = "enrichment:process"

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Queue         string
	MaxRetry      int
	RetryDelay    time.Duration
	JobTimeout    time.Duration
	Concurrency   int
}

func (c Config) withDefaults() Config {
	if c.Queue == "" {
		c.Queue = "default"
	}
	if c.MaxRetry < 0 {
		c.MaxRetry = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 10 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

func (c Config) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Queue publishes enrichment jobs as asynq tasks.
type Queue struct {
	client *asynq.Client
	cfg    Config
}

func NewQueue(cfg Config) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{client: asynq.NewClient(cfg.redisOpt()), cfg: cfg}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, job domain.EnrichmentJob) error {
	task, err := NewEnrichmentTask(job, q.cfg)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return domain.WrapError(domain.ErrTemporary, "enqueue enrichment task", err)
	}
	return nil
}

// NewEnrichmentTask encodes a job with the retry and timeout options of cfg.
// The job id doubles as the task id so a job is never queued twice.
func NewEnrichmentTask(job domain.EnrichmentJob, cfg Config) (*asynq.Task, error) {
	cfg = cfg.withDefaults()
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal enrichment task: %w", err)
	}
	return asynq.NewTask(TaskTypeEnrichment, payload,
		asynq.TaskID(job.ID),
		asynq.Queue(cfg.Queue),
		asynq.MaxRetry(cfg.MaxRetry),
		asynq.Timeout(cfg.JobTimeout),
	), nil
}

func ParseEnrichmentTask(t *asynq.Task) (domain.EnrichmentJob, error) {
	var job domain.EnrichmentJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return job, fmt.Errorf("unmarshal enrichment task: %w: %w", asynq.SkipRetry, err)
	}
	if job.ID == "" || job.DocumentID == "" {
		return job, fmt.Errorf("invalid enrichment task: %w", asynq.SkipRetry)
	}
	return job, nil
}

// Consumer runs an asynq server for enrichment tasks.
type Consumer struct {
	server *asynq.Server
	logger *zap.Logger
}

func NewConsumer(cfg Config, logger *zap.Logger) *Consumer {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("asynq")
	server := asynq.NewServer(cfg.redisOpt(), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return time.Duration(n) * cfg.RetryDelay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("asynq_task_failed", zap.String("type", task.Type()), zap.Error(err))
		}),
		Logger: zapAdapter{logger.Sugar()},
	})
	return &Consumer{server: server, logger: logger}
}

func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, domain.EnrichmentJob) error) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeEnrichment, func(taskCtx context.Context, t *asynq.Task) error {
		job, err := ParseEnrichmentTask(t)
		if err != nil {
			return err
		}
		return handler(taskCtx, job)
	})

	if err := c.server.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	<-ctx.Done()
	c.server.Shutdown()
	return nil
}

type zapAdapter struct {
	s *zap.SugaredLogger
}

func (a zapAdapter) Debug(args ...interface{}) { a.s.Debug(args...) }
func (a zapAdapter) Info(args ...interface{})  { a.s.Info(args...) }
func (a zapAdapter) Warn(args ...interface{})  { a.s.Warn(args...) }
func (a zapAdapter) Error(args ...interface{}) { a.s.Error(args...) }
func (a zapAdapter) Fatal(args ...interface{}) { a.s.Fatal(args...) }
