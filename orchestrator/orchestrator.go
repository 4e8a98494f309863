// Package orchestrator composes retrieval, reranking, filtering, and analysis
// into the exposed search operation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/news2vector/newsrag/analyzer"
	"github.com/news2vector/newsrag/cache"
	"github.com/news2vector/newsrag/common/logger"
	"github.com/news2vector/newsrag/config"
	"github.com/news2vector/newsrag/metrics"
	"github.com/news2vector/newsrag/post"
	"github.com/news2vector/newsrag/retriever"
	"github.com/news2vector/newsrag/schema"
)

// Validation errors surfaced to the caller as client faults. Everything else
// that can go wrong mid-pipeline degrades in place; only a total inability to
// reach the vector index also propagates.
var (
	ErrEmptyQuery  = errors.New("query must not be empty")
	ErrInvalidTopK = errors.New("topK out of range")
)

// Orchestrator runs one search request end to end. Safe for concurrent use;
// all per-request state is local to a Search call.
type Orchestrator struct {
	vector   retriever.Retriever
	hybrid   retriever.Retriever
	reranker post.Reranker
	analyzer analyzer.Analyzer

	search     config.SearchConfig
	rerankOn   bool
	collection string

	cache    cache.Cache
	cacheTTL time.Duration

	pool *ants.Pool
}

// New wires the pipeline stages together. The ants pool bounds concurrent
// sentiment lookups across all in-flight requests.
func New(cfg *config.Config, vector, hybrid retriever.Retriever, reranker post.Reranker, an analyzer.Analyzer, c cache.Cache) (*Orchestrator, error) {
	parallelism := cfg.Analyzer.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}
	pool, err := ants.NewPool(parallelism)
	if err != nil {
		return nil, fmt.Errorf("create sentiment worker pool: %w", err)
	}
	o := &Orchestrator{
		vector:     vector,
		hybrid:     hybrid,
		reranker:   reranker,
		analyzer:   an,
		search:     cfg.Search,
		rerankOn:   cfg.Rerank.Enable,
		collection: cfg.VectorDB.Collection,
		pool:       pool,
	}
	if cfg.Cache.Enable && c != nil {
		o.cache = c
		o.cacheTTL = time.Duration(cfg.Cache.TTLSeconds) * time.Second
	}
	return o, nil
}

// Close releases the worker pool.
func (o *Orchestrator) Close() {
	if o.pool != nil {
		o.pool.Release()
	}
}

// Search executes the full pipeline for one request.
func (o *Orchestrator) Search(ctx context.Context, req *schema.SearchRequest) (*schema.SearchResponse, error) {
	start := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	topK := req.TopK
	if topK == 0 {
		topK = o.search.TopKDefault
	}
	if topK < 1 || topK > o.search.TopKMax {
		return nil, fmt.Errorf("%w: %d not in [1,%d]", ErrInvalidTopK, req.TopK, o.search.TopKMax)
	}

	rec := metrics.NewRetrievalMetrics(uuid.NewString(), req.Query)
	effective := buildEffectiveQuery(req)
	useHybrid := req.PortfolioContext != nil && len(req.PortfolioContext.Holdings) > 0
	rec.HybridSearch = useHybrid
	if useHybrid {
		rec.PoolSize = topK * o.search.PoolMultiplier
	}

	key := cache.SearchKey(o.collection, effective, topK, filterRepr(req.Filters))
	if o.cache != nil {
		if v, ok := o.cache.Get(key); ok {
			metrics.IncCache("hit")
			resp := v.(*schema.SearchResponse)
			out := *resp
			out.Metadata.SearchTimeMs = time.Since(start).Milliseconds()
			rec.CacheHit = true
			rec.Success = true
			rec.ReturnedCount = out.Metadata.ReturnedCount
			rec.TotalLatencyMs = out.Metadata.SearchTimeMs
			rec.Log()
			return &out, nil
		}
		metrics.IncCache("miss")
	}

	// Retrieval is the one stage whose failure fails the request; without the
	// index there is nothing to degrade to.
	retrStart := time.Now()
	var hits []schema.SearchHit
	var err error
	if useHybrid {
		hits, err = o.hybrid.Retrieve(ctx, effective, topK)
	} else {
		hits, err = o.vector.Retrieve(ctx, effective, topK)
	}
	if err != nil {
		rec.ErrorMsg = err.Error()
		rec.TotalLatencyMs = time.Since(start).Milliseconds()
		rec.Log()
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}
	rec.RetrievalLatencyMs = time.Since(retrStart).Milliseconds()
	rec.TotalRetrieved = len(hits)
	metrics.ObserveStage("retrieval", retrStart, len(hits))

	if o.rerankOn && o.reranker != nil {
		rerankStart := time.Now()
		reranked, rerr := o.reranker.Rerank(ctx, req.Query, hits, 0)
		if rerr != nil {
			logger.Warnf("orchestrator: rerank failed: %v, keeping vector order", rerr)
		} else {
			hits = reranked
		}
		rec.RerankEnabled = true
		rec.RerankApplied = len(hits) > 0 && hits[0].HasRerank
		rec.RerankLatencyMs = time.Since(rerankStart).Milliseconds()
		metrics.ObserveStage("rerank", rerankStart, len(hits))
	}

	before := len(hits)
	hits = applyDateFilter(hits, req.Filters)
	rec.DateFiltered = before - len(hits)

	minRelevance := o.search.MinRelevance
	if req.Filters != nil && req.Filters.MinRelevance != nil {
		minRelevance = *req.Filters.MinRelevance
	}
	before = len(hits)
	hits = applyRelevanceFloor(hits, minRelevance)
	rec.RelevanceFiltered = before - len(hits)

	analysisStart := time.Now()
	articles := o.buildArticles(ctx, hits)
	dist := sentimentDistribution(articles)
	overall := overallSentiment(dist)

	texts := make([]string, len(hits))
	titles := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
		titles[i] = h.Title
	}
	batch := o.analyzer.AnalyzeBatch(ctx, texts, titles, req.PortfolioContext)
	rec.AnalysisLatencyMs = time.Since(analysisStart).Milliseconds()
	metrics.ObserveStage("analysis", analysisStart, len(articles))

	resp := &schema.SearchResponse{
		Query:        req.Query,
		NewsArticles: articles,
		Analysis: schema.Analysis{
			OverallSentiment:      overall,
			SentimentDistribution: dist,
			KeyTopics:             batch.KeyTopics,
			RiskFactors:           batch.RiskFactors,
			Opportunities:         batch.Opportunities,
			RecommendedStocks:     batch.RecommendedStocks,
		},
		Metadata: schema.Metadata{
			TotalMatches:  len(hits),
			ReturnedCount: len(articles),
			SearchTimeMs:  time.Since(start).Milliseconds(),
		},
	}

	if o.cache != nil {
		o.cache.Set(key, resp, o.cacheTTL)
	}
	rec.Success = true
	rec.ReturnedCount = len(articles)
	rec.TotalLatencyMs = resp.Metadata.SearchTimeMs
	rec.Log()
	return resp, nil
}

// buildArticles resolves sentiment labels in parallel and assembles the final
// article records in hit order.
func (o *Orchestrator) buildArticles(ctx context.Context, hits []schema.SearchHit) []schema.NewsArticle {
	sentiments := make([]schema.Sentiment, len(hits))
	var wg sync.WaitGroup
	for i := range hits {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			sentiments[i] = o.analyzer.LabelSentiment(ctx, hits[i].Text)
		}
		if o.pool == nil || o.pool.Submit(task) != nil {
			task()
		}
	}
	wg.Wait()

	articles := make([]schema.NewsArticle, len(hits))
	for i, h := range hits {
		metrics.IncSentiment(string(sentiments[i]))
		articles[i] = schema.NewsArticle{
			NewsID:         h.ID,
			Title:          h.Title,
			Summary:        truncateRunes(h.Text, 500),
			PublishedAt:    h.PublishedAt,
			URL:            h.URL,
			RelevanceScore: round(h.VectorScore, 4),
			Sentiment:      sentiments[i],
		}
	}
	return articles
}

// buildEffectiveQuery appends up to 3 holding names and 2 sectors so the
// embedding reflects what the caller actually holds.
func buildEffectiveQuery(req *schema.SearchRequest) string {
	parts := []string{req.Query}
	if pc := req.PortfolioContext; pc != nil {
		for i, h := range pc.Holdings {
			if i >= 3 {
				break
			}
			parts = append(parts, h.Name)
		}
		for i, s := range pc.Sectors {
			if i >= 2 {
				break
			}
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// applyDateFilter keeps hits whose date portion of publishedAt lies inside the
// closed range. Open-ended bounds are no-ops; lexicographic comparison works
// because dates are YYYY-MM-DD.
func applyDateFilter(hits []schema.SearchHit, f *schema.Filters) []schema.SearchHit {
	if f == nil || (f.StartDate == "" && f.EndDate == "") {
		return hits
	}
	out := hits[:0:0]
	for _, h := range hits {
		date := h.PublishedAt
		if len(date) > 10 {
			date = date[:10]
		}
		if f.StartDate != "" && date < f.StartDate {
			continue
		}
		if f.EndDate != "" && date > f.EndDate {
			continue
		}
		out = append(out, h)
	}
	return out
}

// applyRelevanceFloor drops hits below the floor. The floor always reads
// VectorScore; rerank scores are unbounded and unusable for thresholding.
func applyRelevanceFloor(hits []schema.SearchHit, floor float64) []schema.SearchHit {
	out := hits[:0:0]
	for _, h := range hits {
		if h.VectorScore >= floor {
			out = append(out, h)
		}
	}
	return out
}

// sentimentDistribution computes fractional counts rounded to 2 decimals. An
// empty article set reports the fixed neutral-leaning default instead of
// dividing by zero.
func sentimentDistribution(articles []schema.NewsArticle) schema.SentimentDistribution {
	if len(articles) == 0 {
		return schema.SentimentDistribution{Positive: 0.33, Negative: 0.33, Neutral: 0.34}
	}
	var pos, neg, neu int
	for _, a := range articles {
		switch a.Sentiment {
		case schema.SentimentPositive:
			pos++
		case schema.SentimentNegative:
			neg++
		default:
			neu++
		}
	}
	total := float64(len(articles))
	return schema.SentimentDistribution{
		Positive: round(float64(pos)/total, 2),
		Negative: round(float64(neg)/total, 2),
		Neutral:  round(float64(neu)/total, 2),
	}
}

// overallSentiment picks the dominant label; ties resolve POSITIVE, then
// NEGATIVE, then NEUTRAL.
func overallSentiment(d schema.SentimentDistribution) schema.Sentiment {
	max := d.Positive
	if d.Negative > max {
		max = d.Negative
	}
	if d.Neutral > max {
		max = d.Neutral
	}
	switch {
	case d.Positive == max:
		return schema.SentimentPositive
	case d.Negative == max:
		return schema.SentimentNegative
	default:
		return schema.SentimentNeutral
	}
}

func filterRepr(f *schema.Filters) string {
	if f == nil {
		return ""
	}
	min := ""
	if f.MinRelevance != nil {
		min = fmt.Sprintf("%.4f", *f.MinRelevance)
	}
	return fmt.Sprintf("%s..%s|%s", f.StartDate, f.EndDate, min)
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
