// Package metrics exposes Prometheus collectors for the search pipeline and
// the per-query JSON metrics record.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	searchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsrag_search_latency_ms",
		Help:    "Latency of search pipeline stages in milliseconds",
		Buckets: []float64{10, 25, 50, 75, 100, 150, 200, 300, 500, 800, 1200, 2000},
	}, []string{"stage"})

	searchResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsrag_stage_results",
		Help:    "Number of candidates surviving a pipeline stage",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"stage"})

	sentimentLabels = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsrag_sentiment_labels_total",
		Help: "Sentiment labels assigned to returned articles",
	}, []string{"sentiment"})

	cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsrag_result_cache_total",
		Help: "Search result cache lookups",
	}, []string{"outcome"})

	ingestedChunks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "newsrag_ingested_chunks_total",
		Help: "Chunks written to the vector index",
	})

	duplicatesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsrag_duplicates_skipped_total",
		Help: "Articles skipped by deduplication, by signal",
	}, []string{"signal"})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(searchLatency, searchResults, sentimentLabels, cacheHits, ingestedChunks, duplicatesSkipped)
	})
}

// ObserveStage records latency and surviving candidate count for one pipeline
// stage (retrieval, rerank, filter, analysis).
func ObserveStage(stage string, start time.Time, results int) {
	ensureRegistered()
	searchLatency.WithLabelValues(stage).Observe(float64(time.Since(start).Milliseconds()))
	searchResults.WithLabelValues(stage).Observe(float64(results))
}

// IncSentiment counts one assigned sentiment label.
func IncSentiment(sentiment string) {
	ensureRegistered()
	sentimentLabels.WithLabelValues(sentiment).Inc()
}

// IncCache records a result cache hit or miss.
func IncCache(outcome string) {
	ensureRegistered()
	cacheHits.WithLabelValues(outcome).Inc()
}

// AddIngestedChunks counts chunks written during ingestion.
func AddIngestedChunks(n int) {
	ensureRegistered()
	ingestedChunks.Add(float64(n))
}

// IncDuplicateSkipped counts one deduplicated article by signal
// (url, title, content, stored).
func IncDuplicateSkipped(signal string) {
	ensureRegistered()
	duplicatesSkipped.WithLabelValues(signal).Inc()
}

// Collectors exposes all collectors for registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		searchLatency, searchResults, sentimentLabels, cacheHits, ingestedChunks, duplicatesSkipped,
	}
}
