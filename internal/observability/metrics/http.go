package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics holds the API server's registry: request-level
// metrics plus per-stage pipeline metrics. It implements the pipeline's
// Observer interface.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	stageDuration    *prometheus.HistogramVec
	queryOutcomes    *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
	guardrailCaveats prometheus.Histogram
	retrievedChunks  prometheus.Histogram
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lrp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lrp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lrp",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lrp",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	queryOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lrp",
			Subsystem: "pipeline",
			Name:      "query_outcomes_total",
			Help:      "Total finished queries by terminal outcome.",
		},
		[]string{"outcome"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lrp",
			Subsystem: "pipeline",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	guardrailCaveats := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lrp",
			Subsystem: "pipeline",
			Name:      "guardrail_caveats",
			Help:      "Distribution of guardrail caveats per answered query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		},
	)
	retrievedChunks := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lrp",
			Subsystem: "pipeline",
			Name:      "retrieved_chunks",
			Help:      "Distribution of chunks in the final context per query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		stageDuration,
		queryOutcomes,
		queryDuration,
		guardrailCaveats,
		retrievedChunks,
	)

	return &HTTPServerMetrics{
		registry:         registry,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		stageDuration:    stageDuration,
		queryOutcomes:    queryOutcomes,
		queryDuration:    queryDuration,
		guardrailCaveats: guardrailCaveats,
		retrievedChunks:  retrievedChunks,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// ObserveStage implements the pipeline Observer.
func (m *HTTPServerMetrics) ObserveStage(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveOutcome implements the pipeline Observer.
func (m *HTTPServerMetrics) ObserveOutcome(outcome string, duration time.Duration) {
	m.queryOutcomes.WithLabelValues(outcome).Inc()
	m.queryDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveGuardrailCaveats implements the pipeline Observer.
func (m *HTTPServerMetrics) ObserveGuardrailCaveats(count int) {
	m.guardrailCaveats.Observe(float64(count))
}

func (m *HTTPServerMetrics) ObserveRetrievedChunks(count int) {
	m.retrievedChunks.Observe(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
