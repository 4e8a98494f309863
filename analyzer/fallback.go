package analyzer

import (
	"strings"

	"github.com/news2vector/newsrag/schema"
)

// Keyword lists driving the rule-based sentiment fallback. Tuned for Korean
// financial news vocabulary.
var (
	positiveKeywords = []string{"상승", "증가", "성장", "호재", "급등", "돌파", "성공"}
	negativeKeywords = []string{"하락", "감소", "위험", "악재", "급락", "실패", "우려"}
)

// KeywordSentiment counts positive and negative market vocabulary and labels
// by majority, NEUTRAL on ties.
func KeywordSentiment(text string) schema.Sentiment {
	lower := strings.ToLower(text)
	var pos, neg int
	for _, kw := range positiveKeywords {
		if strings.Contains(lower, kw) {
			pos++
		}
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return schema.SentimentPositive
	case neg > pos:
		return schema.SentimentNegative
	default:
		return schema.SentimentNeutral
	}
}

// FallbackBatchAnalysis derives topics from titles and fills generic risk and
// opportunity statements. With a portfolio present, up to two holdings become
// low-confidence recommendations.
func FallbackBatchAnalysis(titles []string, portfolio *schema.PortfolioContext) schema.BatchAnalysis {
	var topics []string
	seen := map[string]struct{}{}
	for i, title := range titles {
		if i >= maxBatchArticles || len(topics) >= 5 {
			break
		}
		picked := 0
		for _, w := range strings.Fields(title) {
			if len([]rune(w)) <= 2 || picked >= 2 {
				continue
			}
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			topics = append(topics, w)
			picked++
			if len(topics) >= 5 {
				break
			}
		}
	}
	if len(topics) == 0 {
		topics = []string{"경제", "시장", "투자"}
	}

	out := schema.BatchAnalysis{
		KeyTopics:         topics,
		RiskFactors:       []string{"시장 변동성 확대", "글로벌 경기 불확실성"},
		Opportunities:     []string{"신규 투자 기회 발굴", "저평가 종목 매수 기회"},
		RecommendedStocks: []schema.RecommendedStock{},
	}

	if portfolio != nil {
		for i, h := range portfolio.Holdings {
			if i >= 2 {
				break
			}
			out.RecommendedStocks = append(out.RecommendedStocks, schema.RecommendedStock{
				Symbol:     h.Symbol,
				Name:       h.Name,
				Reason:     "포트폴리오 핵심 종목으로 관련 뉴스 다수",
				Confidence: 0.75,
			})
		}
	}
	return out
}
