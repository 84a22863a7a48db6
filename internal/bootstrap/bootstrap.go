package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/config"
	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
	"github.com/kirillkom/document-intelligence/internal/core/usecase"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/chunking"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/extractor"
	redisjobs "github.com/kirillkom/document-intelligence/internal/infrastructure/jobstore/redis"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/llm/transport"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/prompts"
	asynqqueue "github.com/kirillkom/document-intelligence/internal/infrastructure/queue/asynq"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/queue/inproc"
	natsqueue "github.com/kirillkom/document-intelligence/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/resilience"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/storage/localfs"
	miniostorage "github.com/kirillkom/document-intelligence/internal/infrastructure/storage/minio"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/vector/memory"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/document-intelligence/internal/observability/tracing"
)

// Observers collects the metric sinks of the hosting process. Nil fields
// disable the corresponding observations.
type Observers struct {
	LLM      transport.Observer
	RAG      ports.RAGObserver
	Feature  ports.FeatureObserver
	Analysis ports.AnalysisObserver
	Jobs     ports.JobObserver
}

type App struct {
	Config config.Config
	Logger *zap.Logger

	Storage ports.ObjectStorage
	Queue   ports.JobQueue
	Jobs    ports.JobStore

	AnalyzeUC   *usecase.AnalyzeUseCase
	EnrichUC    *usecase.EnrichUseCase
	DocumentsUC *usecase.DocumentQueryUseCase
	RAGUC       *usecase.RAGUseCase
	FeatureUC   *usecase.FeatureUseCase

	consumer func() ports.JobConsumer
	closers  []func()
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger, obs Observers) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	docs := postgres.NewDocumentRepository(db)
	results := postgres.NewResultRepository(db)

	storage, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	if c, ok := storage.(io.Closer); ok {
		app.onClose(func() { _ = c.Close() })
	}
	app.Storage = storage

	jobs, err := app.newJobStore(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("init job store: %w", err)
	}
	app.Jobs = jobs

	executor := resilience.NewExecutor(resilienceConfig(cfg), logger)
	if err := app.initQueue(executor); err != nil {
		return nil, fmt.Errorf("init job queue: %w", err)
	}

	gen, err := newGenerator(cfg, storage, executor, obs.LLM)
	if err != nil {
		return nil, fmt.Errorf("init generation provider: %w", err)
	}

	promptStore, err := loadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	logger.Info("prompts_loaded",
		zap.String("file", cfg.PromptsFile),
		zap.Strings("templates", promptStore.Names()),
	)

	var vectors ports.VectorStore
	if cfg.QdrantURL == "" {
		logger.Warn("vector_index_in_memory", zap.String("reason", "QDRANT_URL not set"))
		vectors = memory.New()
	} else {
		q, err := qdrant.New(qdrant.Config{
			Addr:       cfg.QdrantURL,
			Collection: cfg.QdrantCollection,
			APIKey:     cfg.QdrantAPIKey,
		}, executor)
		if err != nil {
			return nil, fmt.Errorf("init vector index: %w", err)
		}
		app.onClose(func() { _ = q.Close() })
		vectors = q
	}

	ext := extractor.New()
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	app.AnalyzeUC = usecase.NewAnalyzeUseCase(docs, jobs, storage, app.Queue, ext, ext, gen, promptStore, obs.Analysis, logger.Named("analyze"))
	app.EnrichUC = usecase.NewEnrichUseCase(docs, jobs, storage, gen, promptStore, obs.Jobs, logger.Named("enrich"))
	app.DocumentsUC = usecase.NewDocumentQueryUseCase(docs, results, jobs)
	app.RAGUC = usecase.NewRAGUseCase(docs, chunker, gen, vectors, gen, promptStore, obs.RAG, logger.Named("rag"), cfg.EmbedConcurrency)
	app.FeatureUC = usecase.NewFeatureUseCase(docs, results, gen, promptStore, storage, obs.Feature, logger.Named("features"))

	logger.Info("bootstrap_complete",
		zap.String("llm_provider", cfg.LLMProvider),
		zap.String("storage", cfg.StorageBackend),
		zap.String("queue", cfg.QueueBackend),
		zap.String("job_store", cfg.JobStoreBackend),
		zap.Bool("qdrant", cfg.QdrantURL != ""),
	)
	return app, nil
}

// Consumer returns the job source for this process, or nil when the queue
// backend has none to offer here.
func (a *App) Consumer() ports.JobConsumer {
	if a.consumer == nil {
		return nil
	}
	return a.consumer()
}

// InProcessQueue reports whether enrichment jobs must be consumed by the
// process that enqueued them.
func (a *App) InProcessQueue() bool {
	return a.Config.QueueBackend == config.QueueInproc
}

// ProcessJob is the consumer handler: one enrichment job under the
// configured timeout.
func (a *App) ProcessJob(ctx context.Context, job domain.EnrichmentJob) (err error) {
	if a.Config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.JobTimeout)
		defer cancel()
	}
	ctx, span := tracing.Start(ctx, "enrichment.process",
		attribute.String("job.id", job.ID),
		attribute.String("document.id", job.DocumentID),
	)
	defer func() { tracing.End(span, err) }()
	return a.EnrichUC.ProcessJob(ctx, job)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *App) initQueue(executor *resilience.Executor) error {
	cfg := a.Config
	switch cfg.QueueBackend {
	case config.QueueInproc, "":
		pool := inproc.New(inproc.Config{
			Workers:    cfg.WorkerCount,
			QueueDepth: cfg.QueueDepth,
			JobTimeout: cfg.JobTimeout,
		}, a.Logger)
		a.Queue = pool
		a.consumer = func() ports.JobConsumer { return pool }
	case config.QueueNATS:
		q, err := natsqueue.New(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
			Concurrency:        cfg.WorkerCount,
			ResilienceExecutor: executor,
			Logger:             a.Logger,
		})
		if err != nil {
			return err
		}
		a.onClose(q.Close)
		a.Queue = q
		a.consumer = func() ports.JobConsumer { return q }
	case config.QueueAsynq:
		acfg := asynqqueue.Config{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
			Queue:         cfg.AsynqQueue,
			MaxRetry:      cfg.AsynqMaxRetry,
			RetryDelay:    cfg.AsynqRetryDelay,
			JobTimeout:    cfg.JobTimeout,
			Concurrency:   cfg.WorkerCount,
		}
		q := asynqqueue.NewQueue(acfg)
		a.onClose(func() { _ = q.Close() })
		a.Queue = q
		a.consumer = func() ports.JobConsumer { return asynqqueue.NewConsumer(acfg, a.Logger) }
	default:
		return fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
	return nil
}

func (a *App) newJobStore(ctx context.Context, db *sql.DB) (ports.JobStore, error) {
	cfg := a.Config
	switch cfg.JobStoreBackend {
	case config.JobStorePostgres, "":
		return postgres.NewJobRepository(db), nil
	case config.JobStoreRedis:
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.onClose(func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return redisjobs.New(rdb, cfg.JobStatusTTL), nil
	default:
		return nil, fmt.Errorf("unknown job store backend %q", cfg.JobStoreBackend)
	}
}

func newStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case config.StorageLocal, "":
		return localfs.New(cfg.StoragePath)
	case config.StorageMinio:
		s, err := miniostorage.New(miniostorage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newGenerator(cfg config.Config, storage ports.ObjectStorage, executor *resilience.Executor, observer transport.Observer) (ports.GenerationGateway, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini, "":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
		return gemini.New(gemini.Config{
			APIKey:           cfg.GeminiAPIKey,
			BaseURL:          cfg.GeminiBaseURL,
			Model:            cfg.GeminiModel,
			EmbeddingModel:   cfg.GeminiEmbeddingModel,
			ImageModel:       cfg.GeminiImageModel,
			FilePollInterval: cfg.GeminiFilePoll,
		}, executor, observer), nil
	case config.ProviderOllama:
		return ollama.New(ollama.Config{
			BaseURL:    cfg.OllamaURL,
			GenModel:   cfg.OllamaGenModel,
			EmbedModel: cfg.OllamaEmbedModel,
		}, storage, executor, observer), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func loadPrompts(path string) (*prompts.Store, error) {
	store, err := prompts.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return store, nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.ResilienceRetryMaxAttempts,
		RetryInitialBackoff:     cfg.ResilienceRetryInitialBackoff,
		RetryMaxBackoff:         cfg.ResilienceRetryMaxBackoff,
		RetryMultiplier:         cfg.ResilienceRetryMultiplier,
		BreakerEnabled:          cfg.ResilienceBreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.ResilienceBreakerFailureRatio,
		BreakerOpenTimeout:      cfg.ResilienceBreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.ResilienceBreakerHalfOpenMaxCalls, 0)),
	}
}
