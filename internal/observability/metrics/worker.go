package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics tracks enrichment job execution, whether jobs arrive from
// an external queue or the in-process pool.
type WorkerMetrics struct {
	*llmCollectors
	registry registry

	jobs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	queueLag prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	r := newRegistry(service)
	return newWorkerMetrics(r, newLLMCollectors(r.factory))
}

// JobMetrics registers enrichment job collectors on the API registry, for
// the in-process worker pool.
func (m *HTTPServerMetrics) JobMetrics() *WorkerMetrics {
	return newWorkerMetrics(m.registry, m.llmCollectors)
}

func newWorkerMetrics(r registry, llm *llmCollectors) *WorkerMetrics {
	f := r.factory
	return &WorkerMetrics{
		llmCollectors: llm,
		registry:      r,
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worker",
			Name: "enrichment_jobs_total",
			Help: "Processed enrichment jobs by status.",
		}, []string{"status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "worker",
			Name:    "enrichment_job_duration_seconds",
			Help:    "Enrichment job duration in seconds by status.",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160, 300},
		}, []string{"status"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "worker",
			Name: "enrichment_jobs_in_flight",
			Help: "Enrichment jobs being processed.",
		}),
		queueLag: newQueueLag(f),
	}
}

func newQueueLag(f promauto.Factory) prometheus.Histogram {
	return f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "worker",
		Name:    "queue_lag_seconds",
		Help:    "Delay between job creation and processing start.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	})
}

func (m *WorkerMetrics) Handler() http.Handler {
	return m.registry.handler()
}

func (m *WorkerMetrics) StartJob() {
	m.inFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(duration time.Duration, err error) {
	m.inFlight.Dec()
	status := outcome(err)
	m.jobs.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveQueueLag ignores negative lag from clock skew between producers.
func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag >= 0 {
		m.queueLag.Observe(lag.Seconds())
	}
}
