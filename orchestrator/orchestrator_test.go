package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/news2vector/newsrag/cache"
	"github.com/news2vector/newsrag/config"
	"github.com/news2vector/newsrag/schema"
)

type stubRetriever struct {
	hits      []schema.SearchHit
	err       error
	calls     int
	lastQuery string
	lastTopK  int
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, topK int) ([]schema.SearchHit, error) {
	s.calls++
	s.lastQuery = query
	s.lastTopK = topK
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

type stubReranker struct {
	out   []schema.SearchHit
	err   error
	calls int
}

func (s *stubReranker) Rerank(_ context.Context, _ string, in []schema.SearchHit, _ int) ([]schema.SearchHit, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.out != nil {
		return s.out, nil
	}
	return in, nil
}

type stubAnalyzer struct {
	sentiments map[string]schema.Sentiment
	batch      schema.BatchAnalysis
	batchTexts []string
}

func (s *stubAnalyzer) LabelSentiment(_ context.Context, text string) schema.Sentiment {
	if v, ok := s.sentiments[text]; ok {
		return v
	}
	return schema.SentimentNeutral
}

func (s *stubAnalyzer) AnalyzeBatch(_ context.Context, texts, _ []string, _ *schema.PortfolioContext) schema.BatchAnalysis {
	s.batchTexts = texts
	return s.batch
}

func testConfig() *config.Config {
	return &config.Config{
		Search:   config.SearchConfig{TopKDefault: 5, TopKMax: 20, MinRelevance: 0.7, BoostFactor: 1.5, PoolMultiplier: 5},
		VectorDB: config.VectorDBConfig{Collection: "stock_news_v1"},
		Analyzer: config.AnalyzerConfig{Parallelism: 4},
	}
}

func newOrch(t *testing.T, cfg *config.Config, vec, hyb *stubRetriever, rr *stubReranker, an *stubAnalyzer, c cache.Cache) *Orchestrator {
	t.Helper()
	o, err := New(cfg, vec, hyb, rr, an, c)
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func scoredHit(id int64, score float64) schema.SearchHit {
	return schema.SearchHit{
		ID: id, VectorScore: score,
		Title: "제목", Text: "본문", URL: "https://news.example", PublishedAt: "2025-01-15 09:00",
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	o := newOrch(t, testConfig(), &stubRetriever{}, &stubRetriever{}, nil, &stubAnalyzer{}, nil)
	_, err := o.Search(context.Background(), &schema.SearchRequest{Query: "   "})
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchRejectsOutOfRangeTopK(t *testing.T) {
	o := newOrch(t, testConfig(), &stubRetriever{}, &stubRetriever{}, nil, &stubAnalyzer{}, nil)

	_, err := o.Search(context.Background(), &schema.SearchRequest{Query: "증시", TopK: 21})
	require.ErrorIs(t, err, ErrInvalidTopK)

	_, err = o.Search(context.Background(), &schema.SearchRequest{Query: "증시", TopK: -1})
	require.ErrorIs(t, err, ErrInvalidTopK)
}

func TestSearchDefaultsTopK(t *testing.T) {
	vec := &stubRetriever{}
	o := newOrch(t, testConfig(), vec, &stubRetriever{}, nil, &stubAnalyzer{}, nil)

	_, err := o.Search(context.Background(), &schema.SearchRequest{Query: "증시"})
	require.NoError(t, err)
	require.Equal(t, 5, vec.lastTopK)
}

func TestSearchRelevanceFloor(t *testing.T) {
	vec := &stubRetriever{hits: []schema.SearchHit{
		scoredHit(1, 0.9),
		scoredHit(2, 0.65),
		scoredHit(3, 0.75),
	}}
	o := newOrch(t, testConfig(), vec, &stubRetriever{}, nil, &stubAnalyzer{}, nil)

	resp, err := o.Search(context.Background(), &schema.SearchRequest{Query: "증시"})
	require.NoError(t, err)

	// Exactly the 0.9 and 0.75 hits survive, in that order.
	require.Len(t, resp.NewsArticles, 2)
	require.Equal(t, int64(1), resp.NewsArticles[0].NewsID)
	require.Equal(t, int64(3), resp.NewsArticles[1].NewsID)
	require.Equal(t, 2, resp.Metadata.TotalMatches)
	require.Equal(t, 2, resp.Metadata.ReturnedCount)
}

func TestSearchFloorAndScoresIgnoreLexicalBoost(t *testing.T) {
	// A title-boosted hit keeps its bounded vector score: the boost decides
	// hybrid ordering only, so a 0.5 hit falls to the 0.7 floor even when it
	// arrives ranked first, and no reported relevanceScore can exceed 1.
	boosted := scoredHit(2, 0.5)
	boosted.MatchType = schema.MatchHybrid
	hyb := &stubRetriever{hits: []schema.SearchHit{boosted, scoredHit(1, 0.9)}}
	o := newOrch(t, testConfig(), &stubRetriever{}, hyb, nil, &stubAnalyzer{}, nil)

	resp, err := o.Search(context.Background(), &schema.SearchRequest{
		Query: "삼성전자",
		PortfolioContext: &schema.PortfolioContext{
			Holdings: []schema.Holding{{Symbol: "005930", Name: "삼성전자"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.NewsArticles, 1)
	require.Equal(t, int64(1), resp.NewsArticles[0].NewsID)
	require.LessOrEqual(t, resp.NewsArticles[0].RelevanceScore, 1.0)
}

func TestSearchCustomMinRelevance(t *testing.T) {
	vec := &stubRetriever{hits: []schema.SearchHit{scoredHit(1, 0.5), scoredHit(2, 0.3)}}
	o := newOrch(t, testConfig(), vec, &stubRetriever{}, nil, &stubAnalyzer{}, nil)

	min := 0.4
	resp, err := o.Search(context.Background(), &schema.SearchRequest{
		Query:   "증시",
		Filters: &schema.Filters{MinRelevance: &min},
	})
	require.NoError(t, err)
	require.Len(t, resp.NewsArticles, 1)
	require.Equal(t, int64(1), resp.NewsArticles[0].NewsID)
}

func TestSearchSentimentDistribution(t *testing.T) {
	hits := make([]schema.SearchHit, 4)
	texts := []string{"호재 기사", "또 호재", "악재 기사", "그저 그런 기사"}
	for i := range hits {
		hits[i] = scoredHit(int64(i+1), 0.9)
		hits[i].Text = texts[i]
	}
	an := &stubAnalyzer{sentiments: map[string]schema.Sentiment{
		"호재 기사":    schema.SentimentPositive,
		"또 호재":     schema.SentimentPositive,
		"악재 기사":    schema.SentimentNegative,
		"그저 그런 기사": schema.SentimentNeutral,
	}}
	o := newOrch(t, testConfig(), &stubRetriever{hits: hits}, &stubRetriever{}, nil, an, nil)

	resp, err := o.Search(context.Background(), &schema.SearchRequest{Query: "증시"})
	require.NoError(t, err)

	d := resp.Analysis.SentimentDistribution
	require.InDelta(t, 0.5, d.Positive, 1e-9)
	require.InDelta(t, 0.25, d.Negative, 1e-9)
	require.InDelta(t, 0.25, d.Neutral, 1e-9)
	require.Equal(t, schema.SentimentPositive, resp.Analysis.OverallSentiment)
}

func TestSearchEmptyResultDefaults(t *testing.T) {
	o := newOrch(t, testConfig(), &stubRetriever{}, &stubRetriever{}, nil, &stubAnalyzer{}, nil)

	resp, err := o.Search(context.Background(), &schema.SearchRequest{Query: "증시"})
	require.NoError(t, err)
	require.Empty(t, resp.NewsArticles)

	d := resp.Analysis.SentimentDistribution
	require.InDelta(t, 0.33, d.Positive, 1e-9)
	require.InDelta(t, 0.33, d.Negative, 1e-9)
	require.InDelta(t, 0.34, d.Neutral, 1e-9)
	require.Equal(t, schema.SentimentNeutral, resp.Analysis.OverallSentiment)
	require.Zero(t, resp.Metadata.TotalMatches)
}

func TestSearchHybridOnlyWithHoldings(t *testing.T) {
	vec := &stubRetriever{}
	hyb := &stubRetriever{}
	o := newOrch(t, testConfig(), vec, hyb, nil, &stubAnalyzer{}, nil)

	_, err := o.Search(context.Background(), &schema.SearchRequest{Query: "증시"})
	require.NoError(t, err)
	require.Equal(t, 1, vec.calls)
	require.Zero(t, hyb.calls)

	_, err = o.Search(context.Background(), &schema.SearchRequest{
		Query: "증시",
		PortfolioContext: &schema.PortfolioContext{
			Holdings: []schema.Holding{{Symbol: "005930", Name: "삼성전자"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, hyb.calls)
	require.Equal(t, 1, vec.calls)
}

func TestSearchEffectiveQueryExpansion(t *testing.T) {
	hyb := &stubRetriever{}
	o := newOrch(t, testConfig(), &stubRetriever{}, hyb, nil, &stubAnalyzer{}, nil)

	_, err := o.Search(context.Background(), &schema.SearchRequest{
		Query: "실적",
		PortfolioContext: &schema.PortfolioContext{
			Holdings: []schema.Holding{
				{Name: "삼성전자"}, {Name: "SK하이닉스"}, {Name: "네이버"}, {Name: "카카오"},
			},
			Sectors: []string{"반도체", "인터넷", "바이오"},
		},
	})
	require.NoError(t, err)
	// At most 3 holdings and 2 sectors are appended.
	require.Equal(t, "실적 삼성전자 SK하이닉스 네이버 반도체 인터넷", hyb.lastQuery)
	require.NotContains(t, hyb.lastQuery, "카카오")
	require.NotContains(t, hyb.lastQuery, "바이오")
}

func TestSearchDateFilter(t *testing.T) {
	early := scoredHit(1, 0.9)
	early.PublishedAt = "2025-01-05 10:00"
	mid := scoredHit(2, 0.9)
	mid.PublishedAt = "2025-01-15 10:00"
	late := scoredHit(3, 0.9)
	late.PublishedAt = "2025-02-01 10:00"

	vec := &stubRetriever{hits: []schema.SearchHit{early, mid, late}}
	o := newOrch(t, testConfig(), vec, &stubRetriever{}, nil, &stubAnalyzer{}, nil)

	resp, err := o.Search(context.Background(), &schema.SearchRequest{
		Query:   "증시",
		Filters: &schema.Filters{StartDate: "2025-01-10", EndDate: "2025-01-31"},
	})
	require.NoError(t, err)
	require.Len(t, resp.NewsArticles, 1)
	require.Equal(t, int64(2), resp.NewsArticles[0].NewsID)
}

func TestSearchRetrievalFailurePropagates(t *testing.T) {
	vec := &stubRetriever{err: errors.New("milvus unreachable")}
	o := newOrch(t, testConfig(), vec, &stubRetriever{}, nil, &stubAnalyzer{}, nil)

	_, err := o.Search(context.Background(), &schema.SearchRequest{Query: "증시"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "milvus unreachable")
}

func TestSearchRerankFailureKeepsVectorOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Rerank.Enable = true
	vec := &stubRetriever{hits: []schema.SearchHit{scoredHit(1, 0.9), scoredHit(2, 0.8)}}
	rr := &stubReranker{err: errors.New("model loading")}
	o := newOrch(t, cfg, vec, &stubRetriever{}, rr, &stubAnalyzer{}, nil)

	resp, err := o.Search(context.Background(), &schema.SearchRequest{Query: "증시"})
	require.NoError(t, err)
	require.Equal(t, 1, rr.calls)
	require.Equal(t, int64(1), resp.NewsArticles[0].NewsID)
	require.Equal(t, int64(2), resp.NewsArticles[1].NewsID)
}

func TestSearchRerankReordersButFilterReadsVectorScore(t *testing.T) {
	cfg := testConfig()
	cfg.Rerank.Enable = true

	first := scoredHit(1, 0.9)
	second := scoredHit(2, 0.75)
	// Reranker promotes the second hit; its unbounded score must not feed the
	// relevance floor.
	promoted := second
	promoted.RerankScore = 5.2
	promoted.HasRerank = true
	demoted := first
	demoted.RerankScore = -1.3
	demoted.HasRerank = true

	vec := &stubRetriever{hits: []schema.SearchHit{first, second}}
	rr := &stubReranker{out: []schema.SearchHit{promoted, demoted}}
	o := newOrch(t, cfg, vec, &stubRetriever{}, rr, &stubAnalyzer{}, nil)

	resp, err := o.Search(context.Background(), &schema.SearchRequest{Query: "증시"})
	require.NoError(t, err)
	require.Len(t, resp.NewsArticles, 2)
	require.Equal(t, int64(2), resp.NewsArticles[0].NewsID)
	require.InDelta(t, 0.75, resp.NewsArticles[0].RelevanceScore, 1e-9)
}

func TestSearchArticleAssembly(t *testing.T) {
	h := scoredHit(7, 0.73456)
	h.Text = strings.Repeat("가", 600)
	vec := &stubRetriever{hits: []schema.SearchHit{h}}
	o := newOrch(t, testConfig(), vec, &stubRetriever{}, nil, &stubAnalyzer{}, nil)

	resp, err := o.Search(context.Background(), &schema.SearchRequest{Query: "증시"})
	require.NoError(t, err)

	a := resp.NewsArticles[0]
	require.Equal(t, 500, len([]rune(a.Summary)))
	require.InDelta(t, 0.7346, a.RelevanceScore, 1e-9)
	require.Equal(t, "https://news.example", a.URL)
}

func TestSearchBatchAnalyzerReceivesSurvivors(t *testing.T) {
	an := &stubAnalyzer{batch: schema.BatchAnalysis{KeyTopics: []string{"반도체"}}}
	vec := &stubRetriever{hits: []schema.SearchHit{scoredHit(1, 0.9), scoredHit(2, 0.1)}}
	o := newOrch(t, testConfig(), vec, &stubRetriever{}, nil, an, nil)

	resp, err := o.Search(context.Background(), &schema.SearchRequest{Query: "증시"})
	require.NoError(t, err)
	// Only the surviving hit's text reaches the batch analyzer.
	require.Len(t, an.batchTexts, 1)
	require.Equal(t, []string{"반도체"}, resp.Analysis.KeyTopics)
}

func TestSearchResultCache(t *testing.T) {
	cfg := testConfig()
	cfg.Cache = config.CacheConfig{Enable: true, MaxEntries: 16, TTLSeconds: 60}
	vec := &stubRetriever{hits: []schema.SearchHit{scoredHit(1, 0.9)}}
	o := newOrch(t, cfg, vec, &stubRetriever{}, nil, &stubAnalyzer{}, cache.NewLRU(16, 0))

	req := &schema.SearchRequest{Query: "증시"}
	_, err := o.Search(context.Background(), req)
	require.NoError(t, err)
	resp, err := o.Search(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, 1, vec.calls)
	require.Len(t, resp.NewsArticles, 1)
}
