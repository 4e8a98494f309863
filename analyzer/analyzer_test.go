package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/news2vector/newsrag/config"
	"github.com/news2vector/newsrag/schema"
)

func TestKeywordSentiment(t *testing.T) {
	cases := []struct {
		text string
		want schema.Sentiment
	}{
		{"반도체 수출이 급등하며 실적 성장 기대", schema.SentimentPositive},
		{"수요 감소 우려에 주가 급락", schema.SentimentNegative},
		{"시장은 보합세를 유지했다", schema.SentimentNeutral},
		// One positive and one negative keyword tie to NEUTRAL.
		{"상승 출발했으나 하락 마감", schema.SentimentNeutral},
		{"", schema.SentimentNeutral},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, KeywordSentiment(tc.text), "text=%q", tc.text)
	}
}

func TestParseSentiment(t *testing.T) {
	require.Equal(t, schema.SentimentPositive, ParseSentiment("positive"))
	require.Equal(t, schema.SentimentPositive, ParseSentiment("감성: POSITIVE 입니다"))
	require.Equal(t, schema.SentimentNegative, ParseSentiment("NEGATIVE"))
	require.Equal(t, schema.SentimentNeutral, ParseSentiment("NEUTRAL"))
	require.Equal(t, schema.SentimentNeutral, ParseSentiment("중립적인 것 같습니다"))
}

func TestExtractJSON(t *testing.T) {
	fenced := "```json\n{\"keyTopics\": [\"반도체\"]}\n```"
	require.JSONEq(t, `{"keyTopics": ["반도체"]}`, ExtractJSON(fenced))

	bare := "```\n{\"a\": 1}\n```"
	require.JSONEq(t, `{"a": 1}`, ExtractJSON(bare))

	plain := `{"a": 1}`
	require.JSONEq(t, plain, ExtractJSON(plain))
}

func TestDisabledAnalyzerUsesKeywordFallback(t *testing.T) {
	a := New(&config.AnalyzerConfig{MaxArticles: 5})
	require.Equal(t, schema.SentimentPositive, a.LabelSentiment(context.Background(), "호재 연속 급등"))
}

func TestFallbackBatchAnalysisFromTitles(t *testing.T) {
	out := FallbackBatchAnalysis([]string{"삼성전자 반도체 투자 확대", "코스피 외국인 순매수"}, nil)
	require.NotEmpty(t, out.KeyTopics)
	require.LessOrEqual(t, len(out.KeyTopics), 5)
	require.Contains(t, out.KeyTopics, "삼성전자")
	require.Len(t, out.RiskFactors, 2)
	require.Len(t, out.Opportunities, 2)
	require.Empty(t, out.RecommendedStocks)
}

func TestFallbackBatchAnalysisEmptyTitles(t *testing.T) {
	out := FallbackBatchAnalysis(nil, nil)
	require.Equal(t, []string{"경제", "시장", "투자"}, out.KeyTopics)
}

func TestFallbackBatchAnalysisPortfolioRecommendations(t *testing.T) {
	p := &schema.PortfolioContext{Holdings: []schema.Holding{
		{Symbol: "005930", Name: "삼성전자", Weight: 0.4},
		{Symbol: "000660", Name: "SK하이닉스", Weight: 0.3},
		{Symbol: "035420", Name: "네이버", Weight: 0.3},
	}}
	out := FallbackBatchAnalysis([]string{"제목"}, p)
	// At most two holdings are promoted.
	require.Len(t, out.RecommendedStocks, 2)
	require.Equal(t, "005930", out.RecommendedStocks[0].Symbol)
	require.InDelta(t, 0.75, out.RecommendedStocks[0].Confidence, 1e-9)
}

func TestDisabledAnalyzerBatchUsesFallback(t *testing.T) {
	a := New(&config.AnalyzerConfig{})
	out := a.AnalyzeBatch(context.Background(), []string{"본문"}, []string{"코스닥 강세 지속"}, nil)
	require.Contains(t, out.KeyTopics, "코스닥")
}
