// Package metrics holds the Prometheus collectors shared by the service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "procurement"

// Embedding metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding provider request duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_retries_total",
			Help:      "Embedding attempts retried after a failure",
		},
		[]string{"model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

// Index and query metrics.
var (
	IndexedProposals = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_proposals",
			Help:      "Number of proposals held by the composite index",
		},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Search queries by outcome",
		},
		[]string{"status"}, // "ok" / "invalid" / "error"
	)

	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Search query duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	IngestedFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_files_total",
			Help:      "Proposal documents handled by the ingestion pipeline",
		},
		[]string{"result"}, // "extracted" / "cached" / "failed"
	)
)

func init() {
	prometheus.MustRegister(
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingRetriesTotal,
		EmbeddingCacheTotal,
		IndexedProposals,
		QueriesTotal,
		QueryDuration,
		IngestedFilesTotal,
	)
}
