// Package monitoring exposes Prometheus metrics for the generation service
// and runs periodic health checks that post alerts to a webhook.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/modelstore"
	"github.com/genx3d/genx3d/internal/resilience"
)

const namespace = "genx3d"

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	generations      *prometheus.CounterVec
	attempts         prometheus.Histogram
	stageLatency     *prometheus.HistogramVec
	retrievalResults *prometheus.CounterVec
	backendErrors    *prometheus.CounterVec
	modelsSwept      prometheus.Counter
	breakerState     *prometheus.GaugeVec

	collector *Collector
}

// NewMetrics registers collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation requests by terminal status.",
		}, []string{"status"}),
		attempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_attempts",
			Help:      "Attempts used per generation request.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		stageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 3, 10),
		}, []string{"stage", "outcome"}),
		retrievalResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_results_total",
			Help:      "Retrieval results by source.",
		}, []string{"source"}),
		backendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Masked backend failures by backend.",
		}, []string{"backend"}),
		modelsSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "models_swept_total",
			Help:      "Model files deleted by cleanup.",
		}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state per backend (0 closed, 1 open, 2 half-open).",
		}, []string{"backend"}),
	}
}

// WithCollector also feeds generation results to c for health checks.
func (m *Metrics) WithCollector(c *Collector) *Metrics {
	m.collector = c
	return m
}

// RetrievalResults counts results contributed by one source.
func (m *Metrics) RetrievalResults(source model.Source, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.retrievalResults.WithLabelValues(string(source)).Add(float64(n))
}

// BackendError counts a masked backend failure.
func (m *Metrics) BackendError(backend string) {
	if m == nil {
		return
	}
	m.backendErrors.WithLabelValues(backend).Inc()
}

// ObserveStage records one stage's latency.
func (m *Metrics) ObserveStage(stage string, d time.Duration, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.stageLatency.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// ObserveGeneration records a terminal generation result.
func (m *Metrics) ObserveGeneration(res model.GenerationResult) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(string(res.Status)).Inc()
	m.attempts.Observe(float64(res.Attempts))
	if m.collector != nil {
		m.collector.Record(res)
	}
}

// ObserveSweep records a cleanup pass.
func (m *Metrics) ObserveSweep(st modelstore.SweepStats) {
	if m == nil {
		return
	}
	m.modelsSwept.Add(float64(st.Deleted))
}

// BreakerChanged tracks circuit transitions. Its signature matches
// resilience.BreakerConfig.OnStateChange.
func (m *Metrics) BreakerChanged(b resilience.Backend, _, to resilience.CircuitState) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(string(b)).Set(float64(to))
}
