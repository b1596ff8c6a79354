package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
)

const namespace = "docqa"

// RetrievalMetrics turns pipeline stage events into Prometheus series.
type RetrievalMetrics struct {
	service string

	stageDuration   *prometheus.HistogramVec
	stageCandidates *prometheus.HistogramVec
	channelFailures *prometheus.CounterVec
	rerankFallbacks *prometheus.CounterVec
	confidence      *prometheus.HistogramVec
	factsExtracted  *prometheus.CounterVec
	emptyRetrievals *prometheus.CounterVec
}

func newRetrievalMetrics(registry *prometheus.Registry, service string) *RetrievalMetrics {
	m := &RetrievalMetrics{
		service: service,
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "stage_duration_seconds",
				Help:      "Duration of retrieval pipeline stages.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"service", "stage"},
		),
		stageCandidates: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "stage_candidates",
				Help:      "Candidates produced by each retrieval stage.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
			},
			[]string{"service", "stage"},
		),
		channelFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "channel_failures_total",
				Help:      "Search channel failures that degraded a retrieval.",
			},
			[]string{"service", "stage"},
		),
		rerankFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "rerank_fallbacks_total",
				Help:      "Reranker calls that fell back to diversified order.",
			},
			[]string{"service", "strategy"},
		),
		confidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "confidence",
				Help:      "Confidence of completed retrievals.",
				Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
			[]string{"service", "strategy"},
		),
		factsExtracted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "facts",
				Name:      "extracted_total",
				Help:      "Facts returned by extraction requests.",
			},
			[]string{"service", "kind"},
		),
		emptyRetrievals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "empty_total",
				Help:      "Completed retrievals without citations.",
			},
			[]string{"service"},
		),
	}

	registry.MustRegister(
		m.stageDuration,
		m.stageCandidates,
		m.channelFailures,
		m.rerankFallbacks,
		m.confidence,
		m.factsExtracted,
		m.emptyRetrievals,
	)
	return m
}

func (m *RetrievalMetrics) ObserveStage(_ context.Context, event domain.StageEvent) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(m.service, event.Stage).Observe(event.Duration.Seconds())

	switch event.Stage {
	case domain.StageComplete:
		m.confidence.WithLabelValues(m.service, labelOrUnknown(event.Strategy)).Observe(event.Confidence)
		if event.Count == 0 {
			m.emptyRetrievals.WithLabelValues(m.service).Inc()
		}
		return
	case domain.StageFacts:
		m.factsExtracted.WithLabelValues(m.service, labelOrUnknown(event.Strategy)).Add(float64(event.Count))
		return
	}

	m.stageCandidates.WithLabelValues(m.service, event.Stage).Observe(float64(event.Count))
	switch {
	case event.Error != "" && (event.Stage == domain.StageVectorSearch || event.Stage == domain.StageLexicalSearch):
		m.channelFailures.WithLabelValues(m.service, event.Stage).Inc()
	case event.Fallback && event.Stage == domain.StageRerank:
		m.rerankFallbacks.WithLabelValues(m.service, labelOrUnknown(event.Strategy)).Inc()
	}
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
