package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recall_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ChunksStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_chunks_stored_total",
			Help: "Total number of memory chunks persisted.",
		},
		[]string{"chunk_type"},
	)

	LayerFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_layer_fallbacks_total",
			Help: "Times a retrieval layer degraded to its fallback path.",
		},
		[]string{"layer"},
	)

	EmbeddingFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recall_embedding_failures_total",
			Help: "Embedding calls substituted with zero vectors.",
		},
	)

	ContextTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recall_context_tokens",
			Help:    "Token count of assembled contexts.",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		},
	)

	ProfileFoldsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_profile_folds_total",
			Help: "User profile merge operations by outcome.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ChunksStoredTotal,
		LayerFallbacksTotal,
		EmbeddingFailuresTotal,
		ContextTokens,
		ProfileFoldsTotal,
	)
}
