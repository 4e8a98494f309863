package metrics

import (
	"encoding/json"
	"time"

	"github.com/news2vector/newsrag/common/logger"
)

// RetrievalMetrics captures one search round trip end to end. It is written as
// a single JSON log line so latency regressions can be traced per stage.
type RetrievalMetrics struct {
	QueryID   string    `json:"query_id"`
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`

	HybridSearch   bool `json:"hybrid_search"`
	PoolSize       int  `json:"pool_size,omitempty"`
	TotalRetrieved int  `json:"total_retrieved"`

	RetrievalLatencyMs int64 `json:"retrieval_latency_ms"`

	RerankEnabled   bool  `json:"rerank_enabled"`
	RerankApplied   bool  `json:"rerank_applied"`
	RerankLatencyMs int64 `json:"rerank_latency_ms,omitempty"`

	DateFiltered      int `json:"date_filtered,omitempty"`
	RelevanceFiltered int `json:"relevance_filtered,omitempty"`

	AnalysisLatencyMs int64 `json:"analysis_latency_ms,omitempty"`

	CacheHit       bool   `json:"cache_hit"`
	ReturnedCount  int    `json:"returned_count"`
	TotalLatencyMs int64  `json:"total_latency_ms"`
	Success        bool   `json:"success"`
	ErrorMsg       string `json:"error_msg,omitempty"`
}

// NewRetrievalMetrics starts a record stamped with now.
func NewRetrievalMetrics(queryID, query string) *RetrievalMetrics {
	return &RetrievalMetrics{QueryID: queryID, Query: query, Timestamp: time.Now()}
}

// Log emits the record as one JSON line.
func (m *RetrievalMetrics) Log() {
	if data, err := json.Marshal(m); err == nil {
		logger.Infof("[SEARCH_METRICS] %s", string(data))
	}
}
