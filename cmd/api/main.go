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

	httpadapter "github.com/kirillkom/document-intelligence/internal/adapters/http"
	"github.com/kirillkom/document-intelligence/internal/bootstrap"
	"github.com/kirillkom/document-intelligence/internal/config"
	"github.com/kirillkom/document-intelligence/internal/observability/logging"
	"github.com/kirillkom/document-intelligence/internal/observability/metrics"
	"github.com/kirillkom/document-intelligence/internal/observability/tracing"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New("api", cfg.LogLevel,
		logging.WithFile(cfg.LogFile),
		logging.WithRotation(cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays),
	)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Init(ctx, logger, tracing.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  "document-intelligence-api",
		Environment:  cfg.Environment,
		Version:      cfg.Version,
		Endpoint:     cfg.OTelEndpoint,
		Insecure:     cfg.OTelInsecure,
		Headers:      tracing.ParseHeaders(cfg.OTelHeaders),
		SampleRatio:  cfg.OTelSampleRatio,
		BatchTimeout: cfg.OTelBatchTimeout,
	})

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	obs := bootstrap.Observers{
		LLM:      httpMetrics,
		RAG:      httpMetrics,
		Feature:  httpMetrics,
		Analysis: httpMetrics,
	}
	if cfg.QueueBackend == config.QueueInproc {
		obs.Jobs = httpMetrics.JobMetrics()
	}

	app, err := bootstrap.New(ctx, cfg, logger, obs)
	if err != nil {
		logger.Fatal("bootstrap_failed", zap.Error(err))
	}
	defer app.Close()

	router, err := httpadapter.NewRouter(cfg, httpadapter.Services{
		Analyzer:  app.AnalyzeUC,
		Documents: app.DocumentsUC,
		Jobs:      app.DocumentsUC,
		QA:        app.RAGUC,
		Entities:  app.FeatureUC,
		Summaries: app.FeatureUC,
		Forms:     app.FeatureUC,
		Compare:   app.FeatureUC,
		Identity:  app.FeatureUC,
		Resume:    app.FeatureUC,
		Images:    app.FeatureUC,
		Generator: app.FeatureUC,
		Files:     app.Storage,
	}, logger, httpMetrics)
	if err != nil {
		logger.Fatal("router_init_failed", zap.Error(err))
	}

	// The consumer outlives the signal: requests still in flight during
	// shutdown may enqueue jobs, so it stops only after the server does.
	consumeCtx, stopConsumer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopConsumer()
	consumerDone := make(chan struct{})
	if app.InProcessQueue() {
		go func() {
			defer close(consumerDone)
			if err := app.Consumer().Consume(consumeCtx, app.ProcessJob); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("inproc_consumer_stopped", zap.Error(err))
			}
		}()
	} else {
		close(consumerDone)
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("api_server_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", zap.Error(err))
	}
	stopConsumer()
	drain := time.NewTimer(max(cfg.JobTimeout, 10*time.Second) + 5*time.Second)
	defer drain.Stop()
	select {
	case <-consumerDone:
	case <-drain.C:
		logger.Warn("inproc_consumer_drain_timeout")
	}
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFlush()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("tracing_shutdown_failed", zap.Error(err))
	}
}
