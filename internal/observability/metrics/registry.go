// Package metrics exposes Prometheus collectors for the API, worker and
// in-process job pool. Every series carries a constant service label.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docint"

// registry pairs a private Prometheus registry with a factory that stamps
// the service label on everything it creates.
type registry struct {
	reg     *prometheus.Registry
	factory promauto.Factory
}

func newRegistry(service string) registry {
	reg := prometheus.NewRegistry()
	labelled := prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, reg)
	labelled.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry{reg: reg, factory: promauto.With(labelled)}
}

func (r registry) handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// llmCollectors is shared by every binary that talks to a generation
// provider.
type llmCollectors struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newLLMCollectors(f promauto.Factory) *llmCollectors {
	return &llmCollectors{
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Generation provider calls by operation and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Generation provider call duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"provider", "operation"}),
	}
}

func (c *llmCollectors) ObserveLLMCall(provider, operation string, duration time.Duration, err error) {
	c.calls.WithLabelValues(provider, operation, outcome(err)).Inc()
	c.duration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
