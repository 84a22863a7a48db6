package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	mcpadapter "github.com/kirillkom/document-intelligence/internal/adapters/mcp"
	"github.com/kirillkom/document-intelligence/internal/bootstrap"
	"github.com/kirillkom/document-intelligence/internal/config"
	"github.com/kirillkom/document-intelligence/internal/observability/logging"
)

func main() {
	transport := flag.String("transport", "stdio", "stdio or http")
	flag.Parse()

	cfg := config.Load()
	// stdout carries the protocol in stdio mode.
	logger, err := logging.New("mcp", cfg.LogLevel,
		logging.WithFile(cfg.LogFile),
		logging.WithRotation(cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays),
		logging.WithStderr(),
	)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Observers{})
	if err != nil {
		logger.Fatal("bootstrap_failed", zap.Error(err))
	}
	defer app.Close()

	mcpServer := mcpadapter.New(app.RAGUC, app.DocumentsUC, logger, cfg.Version).MCPServer()

	switch *transport {
	case "stdio":
		logger.Info("mcp_stdio_serving")
		if err := server.ServeStdio(mcpServer); err != nil {
			logger.Error("mcp_stdio_failed", zap.Error(err))
		}
	case "http":
		mux := http.NewServeMux()
		mux.Handle("/mcp", server.NewStreamableHTTPServer(mcpServer))
		httpServer := &http.Server{
			Addr:              ":" + cfg.MCPPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("mcp_http_listening", zap.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("mcp_http_failed", zap.Error(err))
			}
		}()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("mcp_http_shutdown_failed", zap.Error(err))
		}
	default:
		logger.Fatal("unknown_mcp_transport", zap.String("transport", *transport))
	}
}
