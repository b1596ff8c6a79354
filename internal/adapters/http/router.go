package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/ports"
	"github.com/kirillkom/docqa-retrieval/internal/observability/logging"
	"github.com/kirillkom/docqa-retrieval/internal/observability/metrics"
)

const maxRequestBodyBytes = 1 << 20

type Options struct {
	Defaults       domain.RetrievalConfig
	MaxLimit       int
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueWait      time.Duration
	Metrics        *metrics.HTTPServerMetrics
	Logger         *slog.Logger
}

type Router struct {
	retriever ports.Retriever
	facts     ports.FactFinder
	opts      Options
	logger    *slog.Logger
}

func NewRouter(retriever ports.Retriever, facts ports.FactFinder, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 50
	}
	return &Router{
		retriever: retriever,
		facts:     facts,
		opts:      opts,
		logger:    logger,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/retrieve", rt.retrieve)
	api.HandleFunc("/v1/facts", rt.extractFacts)

	var guarded http.Handler = api
	guarded = authMiddleware(guarded, rt.opts.APIKey)
	guarded = backpressureMiddleware(guarded, rt.opts.MaxInFlight, rt.opts.QueueWait)
	guarded = rateLimitMiddleware(guarded, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.opts.Metrics != nil {
		mux.Handle("/metrics", rt.opts.Metrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler, rt.logger)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type retrieveRequest struct {
	TenantID       string          `json:"tenant_id"`
	Query          string          `json:"query"`
	QueryEmbedding []float32       `json:"query_embedding"`
	Config         json.RawMessage `json:"config"`
	Limit          int             `json:"limit"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req retrieveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.TenantID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id is required"})
		return
	}
	cfg, err := rt.retrievalConfig(req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Limit < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must not be negative"})
		return
	}
	limit := min(req.Limit, rt.opts.MaxLimit)

	result, err := rt.retriever.Retrieve(r.Context(), domain.RetrieveRequest{
		TenantID:       req.TenantID,
		Query:          req.Query,
		QueryEmbedding: req.QueryEmbedding,
		Config:         cfg,
		Limit:          limit,
	})
	if err != nil {
		logging.FromContext(r.Context(), rt.logger).Warn("retrieve_failed", "tenant_id", req.TenantID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// retrievalConfig overlays the request's config object on the service defaults.
func (rt *Router) retrievalConfig(raw json.RawMessage) (domain.RetrievalConfig, error) {
	cfg := rt.opts.Defaults
	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return cfg, domain.WrapError(domain.ErrInvalidInput, "decode config", err)
		}
	}
	strategy, err := domain.ParseRerankStrategy(string(cfg.RerankStrategy))
	if err != nil {
		return cfg, err
	}
	cfg.RerankStrategy = strategy

	switch {
	case cfg.MMRLambda < 0 || cfg.MMRLambda > 1:
		return cfg, invalidConfig("mmr_lambda must be within [0,1]")
	case cfg.VectorTopK < 0 || cfg.BM25TopK < 0 || cfg.MMRTake < 0:
		return cfg, invalidConfig("top-k values must be positive")
	case cfg.RRFK < 0:
		return cfg, invalidConfig("rrf_k must be positive")
	case cfg.NeighborRadius < 0:
		return cfg, invalidConfig("neighbor_radius must not be negative")
	}
	return cfg, nil
}

func invalidConfig(msg string) error {
	return domain.WrapError(domain.ErrInvalidInput, "validate config", errors.New(msg))
}

type factsRequest struct {
	Kind            string `json:"kind"`
	TenantID        string `json:"tenant_id"`
	EntityName      string `json:"entity_name"`
	Limit           int    `json:"limit"`
	KnowledgeBaseID string `json:"knowledge_base_id"`
}

func (rt *Router) extractFacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req factsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	kind, err := domain.ParseFactKind(req.Kind)
	if err != nil {
		writeError(w, err)
		return
	}

	facts, err := rt.facts.ExtractFacts(r.Context(), domain.FactRequest{
		Kind:            kind,
		TenantID:        req.TenantID,
		EntityName:      req.EntityName,
		Limit:           min(req.Limit, rt.opts.MaxLimit),
		KnowledgeBaseID: req.KnowledgeBaseID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facts": facts})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
