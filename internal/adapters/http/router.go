package httpadapter

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/config"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
	"github.com/kirillkom/document-intelligence/internal/observability/metrics"
)

const backpressureWait = 250 * time.Millisecond

// Services are the inbound ports the HTTP surface dispatches to.
type Services struct {
	Analyzer  ports.DocumentAnalyzer
	Documents ports.DocumentReader
	Jobs      ports.JobReader
	QA        ports.DocumentQA
	Entities  ports.EntityExtractor
	Summaries ports.Summarizer
	Forms     ports.FormFiller
	Compare   ports.DocumentComparer
	Identity  ports.IdentityVerifier
	Resume    ports.ResumeMatcher
	Images    ports.DocumentImager
	Generator ports.PromptGenerator
	Files     ports.ObjectStorage
}

type Router struct {
	cfg      config.Config
	services Services
	logger   *zap.Logger
	metrics  *metrics.HTTPServerMetrics
	api      *apiDocument
	started  time.Time
}

func NewRouter(cfg config.Config, services Services, logger *zap.Logger, httpMetrics *metrics.HTTPServerMetrics) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	api, err := loadAPIDocument(context.Background())
	if err != nil {
		return nil, err
	}
	return &Router{
		cfg:      cfg,
		services: services,
		logger:   logger.Named("http"),
		metrics:  httpMetrics,
		api:      api,
		started:  time.Now(),
	}, nil
}

func (rt *Router) Handler() http.Handler {
	r := gin.New()
	r.Use(recoveryMiddleware(rt.logger))
	if rt.cfg.OTelEnabled {
		r.Use(otelgin.Middleware("document-intelligence-api"))
	}
	r.Use(requestIDMiddleware())
	r.Use(accessLogMiddleware(rt.logger))
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware())
	}
	r.Use(rt.corsMiddleware())

	r.GET("/health", rt.health)
	if rt.metrics != nil {
		r.GET("/metrics", gin.WrapH(rt.metrics.Handler()))
	}

	api := r.Group("/api")
	api.Use(
		rateLimitMiddleware(rt.cfg.RateLimitRequests, rt.cfg.RateLimitWindow),
		backpressureMiddleware(rt.cfg.MaxInFlight, backpressureWait),
		timeoutMiddleware(rt.cfg.RequestTimeout),
	)
	if rt.cfg.OpenAPIValidation {
		api.Use(rt.api.validateRequests())
	}

	api.GET("/docs/openapi.json", rt.api.serve)

	ocr := api.Group("/ocr")
	ocr.POST("/analyze", rt.analyzeDocument)
	ocr.GET("/status/:id", rt.getDocumentStatus)
	ocr.GET("/list", rt.listDocuments)
	ocr.GET("/:id", rt.getDocument)
	ocr.GET("/:id/jobs", rt.listDocumentJobs)
	api.GET("/jobs/:id", rt.getJob)

	rag := api.Group("/rag")
	rag.POST("/ingest", rt.ingestDocument)
	rag.POST("/search", rt.searchDocument)
	rag.POST("/chat", rt.chatWithDocument)

	api.POST("/entities", rt.extractEntities)
	api.GET("/entities/history", rt.entityHistory)
	api.POST("/summary", rt.summarize)
	api.GET("/summary/history", rt.summaryHistory)
	api.POST("/forms/fill", rt.fillForm)
	api.GET("/forms/history", rt.formHistory)
	api.POST("/compare", rt.compareDocuments)
	api.GET("/compare", rt.compareHistory)
	api.POST("/identity/verify", rt.verifyIdentity)
	api.GET("/identity/history", rt.identityHistory)
	api.POST("/resume/analyze", rt.analyzeResume)
	api.GET("/resume/history", rt.resumeHistory)
	api.POST("/image/generate", rt.generateImage)
	api.GET("/files/*key", rt.serveFile)
	api.POST("/ai/generate", rt.generateText)

	r.NoRoute(func(c *gin.Context) {
		respondFailure(c, http.StatusNotFound, "Route not found", nil)
	})
	return r
}

func (rt *Router) corsMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	origins := rt.cfg.CORSAllowedOrigins
	if len(origins) == 0 || containsWildcard(origins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (rt *Router) health(c *gin.Context) {
	respondOK(c, "Document intelligence API is healthy", gin.H{
		"uptime":    time.Since(rt.started).Seconds(),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
