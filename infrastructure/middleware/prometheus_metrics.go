// Package middleware provides cross-cutting concerns for the ranking engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-selfrank/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It provides real-time monitoring of LLM request volume,
// latency, token consumption, and ranking scores.
type PrometheusMetrics struct {
	requestsTotal    *prometheus.CounterVec
	tokensTotal      *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
	rankingScores    *prometheus.HistogramVec
	operationLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance registered in the
// global Prometheus registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsWithRegistry creates a PrometheusMetrics instance
// registered in the given registry. Tests use this to avoid duplicate
// registration in the global registry.
func NewPrometheusMetricsWithRegistry(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selfrank_llm_requests_total",
				Help: "Total number of LLM completion requests by provider, phase, and status.",
			},
			[]string{"provider", "model", "phase", "status"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selfrank_llm_tokens_total",
				Help: "Total number of tokens consumed across all LLM interactions.",
			},
			[]string{"provider", "model", "phase", "token_type"},
		),
		requestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "selfrank_llm_latency_seconds",
				Help:    "Latency of LLM completion requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "phase", "status"},
		),
		rankingScores: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "selfrank_ranking_score",
				Help: "Distribution of aggregate logprob scores assigned to ranked outputs.",
				// Logprob scores are <= 0; buckets cover the useful range.
				Buckets: []float64{-10, -5, -2, -1, -0.5, -0.25, -0.1, -0.05, -0.01, 0},
			},
			[]string{"model"},
		),
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "selfrank_operation_duration_seconds",
				Help:    "Execution time of ranking engine operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selfrank_operations_total",
				Help: "Total number of operations performed by the ranking engine.",
			},
			[]string{"operation", "status"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "selfrank_system_state",
				Help: "Current system state values for the ranking engine.",
			},
			[]string{"metric"},
		),
	}
}

// labelOr returns the label value for key, or fallback when absent.
func labelOr(labels map[string]string, key, fallback string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return fallback
}

// RecordLatency implements the MetricsCollector interface by recording
// operation latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, _ map[string]string) {
	pm.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters. The transport middleware's request and token metrics
// are routed to their dedicated counter vectors; everything else lands in
// the generic operation counter.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "llm_requests_total":
		pm.requestsTotal.WithLabelValues(
			labelOr(labels, "provider", "unknown"),
			labelOr(labels, "model", "unknown"),
			labelOr(labels, "phase", "unknown"),
			labelOr(labels, "status", "unknown"),
		).Add(value)
	case "llm_tokens_total":
		pm.tokensTotal.WithLabelValues(
			labelOr(labels, "provider", "unknown"),
			labelOr(labels, "model", "unknown"),
			labelOr(labels, "phase", "unknown"),
			labelOr(labels, "token_type", "unknown"),
		).Add(value)
	default:
		pm.operationCounter.WithLabelValues(
			metric,
			labelOr(labels, "status", "success"),
		).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in the appropriate Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "llm_latency_seconds":
		pm.requestLatency.WithLabelValues(
			labelOr(labels, "provider", "unknown"),
			labelOr(labels, "phase", "unknown"),
			labelOr(labels, "status", "unknown"),
		).Observe(value)
	case "ranking_score":
		pm.rankingScores.WithLabelValues(
			labelOr(labels, "model", "unknown"),
		).Observe(value)
	default:
		pm.operationLatency.WithLabelValues(metric).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
