package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
	"github.com/mel-hsw/longevity-research-portal/internal/observability/metrics"
)

const serviceName = "lrp-api"

type Router struct {
	query   ports.QueryService
	logger  *slog.Logger
	metrics *metrics.HTTPServerMetrics
	options RouterOptions
}

type RouterOptions struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	MaxQueueWait   time.Duration
}

func NewRouter(query ports.QueryService, logger *slog.Logger, m *metrics.HTTPServerMetrics, options RouterOptions) *Router {
	if options.MaxQueueWait <= 0 {
		options.MaxQueueWait = 2 * time.Second
	}
	return &Router{
		query:   query,
		logger:  logger,
		metrics: m,
		options: options,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.answerQuery)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.options.MaxInFlight, rt.options.MaxQueueWait)
	handler = rateLimitMiddleware(handler, rt.options.RateLimitRPS, rt.options.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequest struct {
	Question      string   `json:"question"`
	VectorWeight  *float64 `json:"vector_weight,omitempty"`
	LexicalWeight *float64 `json:"lexical_weight,omitempty"`
}

type queryResponse struct {
	RequestID string                  `json:"request_id"`
	Answer    *domain.Answer          `json:"answer"`
	Retrieval *domain.RetrievalResult `json:"retrieval"`
}

func (rt *Router) answerQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	if (req.VectorWeight == nil) != (req.LexicalWeight == nil) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "vector_weight and lexical_weight must be set together"})
		return
	}

	var opts []domain.QueryOption
	if req.VectorWeight != nil {
		opts = append(opts, domain.WithWeights(*req.VectorWeight, *req.LexicalWeight))
	}

	answer, retrieval, err := rt.query.Query(r.Context(), req.Question, opts...)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		rt.logger.Error("query_failed",
			"request_id", requestIDFromContext(r.Context()),
			"status", status,
			"error", err,
		)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		RequestID: requestIDFromContext(r.Context()),
		Answer:    answer,
		Retrieval: retrieval,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
