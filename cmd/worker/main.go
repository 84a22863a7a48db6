package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/bootstrap"
	"github.com/kirillkom/document-intelligence/internal/config"
	"github.com/kirillkom/document-intelligence/internal/observability/logging"
	"github.com/kirillkom/document-intelligence/internal/observability/metrics"
	"github.com/kirillkom/document-intelligence/internal/observability/tracing"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New("worker", cfg.LogLevel,
		logging.WithFile(cfg.LogFile),
		logging.WithRotation(cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays),
	)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.QueueBackend == config.QueueInproc {
		logger.Fatal("worker_requires_external_queue",
			zap.String("queue", cfg.QueueBackend),
			zap.String("hint", "set QUEUE_BACKEND=nats or QUEUE_BACKEND=asynq"),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Init(ctx, logger, tracing.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  "document-intelligence-worker",
		Environment:  cfg.Environment,
		Version:      cfg.Version,
		Endpoint:     cfg.OTelEndpoint,
		Insecure:     cfg.OTelInsecure,
		Headers:      tracing.ParseHeaders(cfg.OTelHeaders),
		SampleRatio:  cfg.OTelSampleRatio,
		BatchTimeout: cfg.OTelBatchTimeout,
	})

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Observers{
		LLM:  workerMetrics,
		Jobs: workerMetrics,
	})
	if err != nil {
		logger.Fatal("bootstrap_failed", zap.Error(err))
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", zap.Error(err))
		}
	}()

	logger.Info("worker_consuming",
		zap.String("queue", cfg.QueueBackend),
		zap.Duration("job_timeout", cfg.JobTimeout),
	)
	if err := app.Consumer().Consume(ctx, app.ProcessJob); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_consume_failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("worker_metrics_shutdown_failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing_shutdown_failed", zap.Error(err))
	}
}
