package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EvalMetrics instruments the evaluation harness: per-query outcomes,
// durations and retry pressure across the worker pool.
type EvalMetrics struct {
	registry *prometheus.Registry

	queryTotal    *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	queryInFlight prometheus.Gauge
	retryTotal    prometheus.Counter
}

func NewEvalMetrics(service string) *EvalMetrics {
	registry := prometheus.NewRegistry()

	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lrp",
			Subsystem: "eval",
			Name:      "query_total",
			Help:      "Total evaluated queries by status.",
		},
		[]string{"service", "status"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lrp",
			Subsystem: "eval",
			Name:      "query_duration_seconds",
			Help:      "Evaluation duration per query in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	queryInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lrp",
			Subsystem: "eval",
			Name:      "query_in_flight",
			Help:      "Number of queries currently being evaluated.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retryTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lrp",
			Subsystem: "eval",
			Name:      "retry_total",
			Help:      "Total retry attempts across all evaluated queries.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(queryTotal, queryDuration, queryInFlight, retryTotal)

	return &EvalMetrics{
		registry:      registry,
		queryTotal:    queryTotal,
		queryDuration: queryDuration,
		queryInFlight: queryInFlight,
		retryTotal:    retryTotal,
	}
}

func (m *EvalMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *EvalMetrics) StartQuery() {
	m.queryInFlight.Inc()
}

func (m *EvalMetrics) FinishQuery(service string, duration time.Duration, err error) {
	m.queryInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.queryTotal.WithLabelValues(service, status).Inc()
	m.queryDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *EvalMetrics) ObserveRetry() {
	m.retryTotal.Inc()
}
