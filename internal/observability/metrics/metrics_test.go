package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/retrieve", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/42", nil))

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodPost, "/v1/retrieve", "418")); got != 1 {
		t.Fatalf("expected 1 retrieve request, got %v", got)
	}
	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "other", "418")); got != 1 {
		t.Fatalf("expected unknown path folded into other, got %v", got)
	}
}

func TestObserveStageRecordsFailuresAndFallbacks(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	obs := m.Retrieval()
	ctx := context.Background()

	obs.ObserveStage(ctx, domain.StageEvent{Stage: domain.StageVectorSearch, Error: "down", Duration: time.Millisecond})
	obs.ObserveStage(ctx, domain.StageEvent{Stage: domain.StageRerank, Strategy: "llm_judge", Fallback: true, Count: 3})
	obs.ObserveStage(ctx, domain.StageEvent{Stage: domain.StageComplete, Strategy: "lexical", Count: 0})
	obs.ObserveStage(ctx, domain.StageEvent{Stage: domain.StageFacts, Strategy: "phone", Count: 2})

	if got := testutil.ToFloat64(obs.channelFailures.WithLabelValues("api", domain.StageVectorSearch)); got != 1 {
		t.Fatalf("expected channel failure, got %v", got)
	}
	if got := testutil.ToFloat64(obs.rerankFallbacks.WithLabelValues("api", "llm_judge")); got != 1 {
		t.Fatalf("expected rerank fallback, got %v", got)
	}
	if got := testutil.ToFloat64(obs.emptyRetrievals.WithLabelValues("api")); got != 1 {
		t.Fatalf("expected empty retrieval, got %v", got)
	}
	if got := testutil.ToFloat64(obs.factsExtracted.WithLabelValues("api", "phone")); got != 2 {
		t.Fatalf("expected 2 facts, got %v", got)
	}
}

func TestHandlerExposesRetrievalSeries(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.Retrieval().ObserveStage(context.Background(), domain.StageEvent{Stage: domain.StageFusion, Count: 4})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "docqa_retrieval_stage_candidates") {
		t.Fatalf("expected retrieval series in exposition")
	}
}

func TestMiddlewareRecordsResponseSize(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"citations":[],"confidence":0}`))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/retrieve", nil))

	if got := testutil.CollectAndCount(m.responseBytes); got != 1 {
		t.Fatalf("expected one response size series, got %d", got)
	}
}
