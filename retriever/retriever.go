// Package retriever turns a query into ranked candidate hits. The vector
// retriever is the base stage; hybrid search layers lexical title boosting on
// top of it for portfolio-aware queries.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/news2vector/newsrag/common/logger"
	"github.com/news2vector/newsrag/config"
	"github.com/news2vector/newsrag/embedding"
	"github.com/news2vector/newsrag/schema"
	"github.com/news2vector/newsrag/vectordb"
)

// Retriever fetches topK candidates for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]schema.SearchHit, error)
}

// VectorRetriever embeds the query and searches the index directly.
type VectorRetriever struct {
	embedder embedding.Provider
	store    vectordb.Store
}

func NewVector(embedder embedding.Provider, store vectordb.Store) *VectorRetriever {
	return &VectorRetriever{embedder: embedder, store: store}
}

func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int) ([]schema.SearchHit, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

// HybridRetriever over-fetches a candidate pool and boosts hits whose title
// contains the query as a substring, then re-sorts and truncates. Boosted hits
// are tagged HYBRID; the rest keep their VECTOR tag.
type HybridRetriever struct {
	inner          Retriever
	boostFactor    float64
	poolMultiplier int
}

func NewHybrid(inner Retriever, cfg *config.SearchConfig) *HybridRetriever {
	return &HybridRetriever{
		inner:          inner,
		boostFactor:    cfg.BoostFactor,
		poolMultiplier: cfg.PoolMultiplier,
	}
}

func (r *HybridRetriever) Retrieve(ctx context.Context, query string, topK int) ([]schema.SearchHit, error) {
	pool := topK * r.poolMultiplier
	hits, err := r.inner.Retrieve(ctx, query, pool)
	if err != nil {
		return nil, err
	}
	boosted := BoostByTitle(hits, query, r.boostFactor)
	if len(boosted) > topK {
		boosted = boosted[:topK]
	}
	logger.Debugf("retriever: hybrid pool=%d kept=%d query=%q", len(hits), len(boosted), query)
	return boosted, nil
}

// BoostByTitle reorders hits by a combined score: VectorScore multiplied by
// factor for every hit whose title contains query case-insensitively. Boosted
// hits are tagged HYBRID. The combined score exists only for ordering;
// VectorScore stays the bounded 1/(1+distance) value so downstream relevance
// filtering and reported scores are unaffected by the boost. The input slice
// is not modified.
func BoostByTitle(hits []schema.SearchHit, query string, factor float64) []schema.SearchHit {
	out := make([]schema.SearchHit, len(hits))
	copy(out, hits)

	combined := make([]float64, len(out))
	for i := range out {
		combined[i] = out[i].VectorScore
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q != "" && factor > 0 {
		for i := range out {
			if strings.Contains(strings.ToLower(out[i].Title), q) {
				combined[i] *= factor
				out[i].MatchType = schema.MatchHybrid
			}
		}
	}

	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return combined[idx[a]] > combined[idx[b]]
	})
	ranked := make([]schema.SearchHit, len(out))
	for i, j := range idx {
		ranked[i] = out[j]
	}
	return ranked
}
