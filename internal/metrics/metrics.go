// Package metrics holds the Prometheus collectors of the generation pipeline.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_agent"

type Metrics struct {
	generations       *prometheus.CounterVec
	generationLatency *prometheus.HistogramVec
	llmAttempts       *prometheus.CounterVec
	retrievalErrors   prometheus.Counter
	trackingErrors    *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation requests by terminal status.",
		}, []string{"status"}),
		generationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_seconds",
			Help:      "Wall-clock latency of the LLM call including retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"status"}),
		llmAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_attempts_total",
			Help:      "Individual LLM backend attempts by outcome.",
		}, []string{"outcome"}),
		retrievalErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_errors_total",
			Help:      "Retrieval failures degraded to empty context.",
		}),
		trackingErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_errors_total",
			Help:      "Swallowed tracking backend failures by operation.",
		}, []string{"op"}),
	}
}

func (m *Metrics) ObserveGeneration(status string, llmLatency time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(status).Inc()
	if llmLatency > 0 {
		m.generationLatency.WithLabelValues(status).Observe(llmLatency.Seconds())
	}
}

func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.llmAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RetrievalError() {
	if m == nil {
		return
	}
	m.retrievalErrors.Inc()
}

func (m *Metrics) TrackingError(op string) {
	if m == nil {
		return
	}
	m.trackingErrors.WithLabelValues(op).Inc()
}
