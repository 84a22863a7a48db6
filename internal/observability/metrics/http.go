package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPServerMetrics serves the API process: request traffic, retrieval
// quality, derived features, synchronous analyses and provider calls.
type HTTPServerMetrics struct {
	*llmCollectors
	registry registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge

	rag      ragCollectors
	features *prometheus.CounterVec
	analyses *prometheus.CounterVec
}

type ragCollectors struct {
	requests  *prometheus.CounterVec
	hits      *prometheus.CounterVec
	noContext *prometheus.CounterVec
	chunks    *prometheus.HistogramVec
	duration  *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	r := newRegistry(service)
	f := r.factory
	return &HTTPServerMetrics{
		llmCollectors: newLLMCollectors(f),
		registry:      r,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http",
			Name: "requests_total",
			Help: "HTTP requests by method, route template and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http",
			Name:    "request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method", "path"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http",
			Name: "in_flight_requests",
			Help: "HTTP requests currently being served.",
		}),
		rag: newRAGCollectors(f),
		features: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feature",
			Name: "results_total",
			Help: "Derived feature results by kind and outcome.",
		}, []string{"kind", "outcome"}),
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "analysis",
			Name: "documents_total",
			Help: "Synchronous document analyses by source kind and status.",
		}, []string{"source", "status"}),
	}
}

func newRAGCollectors(f promauto.Factory) ragCollectors {
	counter := func(name, help string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rag", Name: name, Help: help,
		}, []string{"endpoint"})
	}
	return ragCollectors{
		requests:  counter("requests_total", "Answered retrieval requests."),
		hits:      counter("retrieval_hit_total", "Retrieval requests with at least one source."),
		noContext: counter("no_context_total", "Retrieval requests answered without context."),
		chunks: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "rag",
			Name:    "retrieved_chunks",
			Help:    "Chunks retrieved per request.",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		}, []string{"endpoint"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "rag",
			Name:    "duration_seconds",
			Help:    "Retrieval plus generation time in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}, []string{"endpoint"}),
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return m.registry.handler()
}

// Middleware labels requests by route template so document ids stay out of
// label values. Unmatched routes share one label.
func (m *HTTPServerMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *HTTPServerMetrics) RecordRAGObservation(endpoint string, sourceCount int, duration time.Duration) {
	m.rag.requests.WithLabelValues(endpoint).Inc()
	m.rag.chunks.WithLabelValues(endpoint).Observe(float64(sourceCount))
	m.rag.duration.WithLabelValues(endpoint).Observe(duration.Seconds())
	if sourceCount > 0 {
		m.rag.hits.WithLabelValues(endpoint).Inc()
	} else {
		m.rag.noContext.WithLabelValues(endpoint).Inc()
	}
}

func (m *HTTPServerMetrics) RecordFeatureResult(kind string, err error) {
	m.features.WithLabelValues(kind, outcome(err)).Inc()
}

func (m *HTTPServerMetrics) RecordAnalysis(source, status string) {
	m.analyses.WithLabelValues(source, status).Inc()
}
