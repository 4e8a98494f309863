// Package analyzer labels news sentiment and produces the batch analysis
// block of a search response. An LLM backend does the real work; rule-based
// fallbacks keep every call total when the backend is absent or failing.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/news2vector/newsrag/common/logger"
	"github.com/news2vector/newsrag/config"
	"github.com/news2vector/newsrag/schema"
)

// Analyzer labels sentiment and summarizes an article batch. Implementations
// never return errors to the caller for backend trouble; they fall back.
type Analyzer interface {
	LabelSentiment(ctx context.Context, text string) schema.Sentiment
	AnalyzeBatch(ctx context.Context, texts, titles []string, portfolio *schema.PortfolioContext) schema.BatchAnalysis
}

// maxBatchArticles bounds how many articles go into one analysis prompt.
const maxBatchArticles = 5

// sentimentTextLimit and batchTextLimit cap per-article prompt text.
const (
	sentimentTextLimit = 500
	batchTextLimit     = 300
)

// LLMAnalyzer drives an OpenAI-compatible chat completion API.
type LLMAnalyzer struct {
	client      openai.Client
	model       string
	maxArticles int
	enabled     bool
}

// New builds the analyzer. Without a provider or API key only the rule-based
// fallbacks run, which is a supported degraded mode rather than an error.
func New(cfg *config.AnalyzerConfig) *LLMAnalyzer {
	a := &LLMAnalyzer{maxArticles: cfg.MaxArticles}
	if a.maxArticles <= 0 || a.maxArticles > maxBatchArticles {
		a.maxArticles = maxBatchArticles
	}
	if cfg.Provider == "" || cfg.APIKey == "" {
		logger.Warnf("analyzer: no LLM configured, using keyword fallback only")
		return a
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	a.client = openai.NewClient(opts...)
	a.model = cfg.Model
	if a.model == "" {
		a.model = string(openai.ChatModelGPT4oMini)
	}
	a.enabled = true
	return a
}

// LabelSentiment classifies one text as POSITIVE, NEGATIVE, or NEUTRAL.
func (a *LLMAnalyzer) LabelSentiment(ctx context.Context, text string) schema.Sentiment {
	if !a.enabled {
		return KeywordSentiment(text)
	}
	prompt := fmt.Sprintf(`다음 뉴스 텍스트의 감성을 분석해주세요.
반드시 POSITIVE, NEGATIVE, NEUTRAL 중 하나만 답변하세요.

텍스트: %s

감성:`, truncateRunes(text, sentimentTextLimit))

	out, err := a.complete(ctx, prompt)
	if err != nil {
		logger.Errorf("analyzer: sentiment call failed: %v, falling back to keywords", err)
		return KeywordSentiment(text)
	}
	return ParseSentiment(out)
}

// AnalyzeBatch summarizes up to maxArticles articles into topics, risks,
// opportunities, and stock recommendations.
func (a *LLMAnalyzer) AnalyzeBatch(ctx context.Context, texts, titles []string, portfolio *schema.PortfolioContext) schema.BatchAnalysis {
	if !a.enabled {
		return FallbackBatchAnalysis(titles, portfolio)
	}

	n := len(texts)
	if len(titles) < n {
		n = len(titles)
	}
	if n > a.maxArticles {
		n = a.maxArticles
	}

	var contextStr strings.Builder
	if portfolio != nil && len(portfolio.Holdings) > 0 {
		names := make([]string, len(portfolio.Holdings))
		for i, h := range portfolio.Holdings {
			names[i] = h.Name
		}
		fmt.Fprintf(&contextStr, "\n사용자 보유 종목: %s", strings.Join(names, ", "))
		if len(portfolio.Sectors) > 0 {
			fmt.Fprintf(&contextStr, "\n관심 섹터: %s", strings.Join(portfolio.Sectors, ", "))
		}
	}

	var news strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			news.WriteString("\n\n")
		}
		fmt.Fprintf(&news, "제목: %s\n내용: %s", titles[i], truncateRunes(texts[i], batchTextLimit))
	}

	prompt := fmt.Sprintf(`다음 뉴스들을 분석해서 JSON 형식으로 응답해주세요.
%s

뉴스:
%s

다음 형식으로 JSON만 반환하세요 (다른 텍스트 없이):
{
    "keyTopics": ["핵심 키워드1", "핵심 키워드2", "핵심 키워드3"],
    "riskFactors": ["리스크 요인1", "리스크 요인2"],
    "opportunities": ["기회 요인1", "기회 요인2"],
    "recommendedStocks": [
        {"symbol": "종목코드", "name": "종목명", "reason": "추천 이유", "confidence": 0.8}
    ]
}`, contextStr.String(), news.String())

	out, err := a.complete(ctx, prompt)
	if err != nil {
		logger.Errorf("analyzer: batch call failed: %v, using fallback", err)
		return FallbackBatchAnalysis(titles, portfolio)
	}

	var parsed schema.BatchAnalysis
	if err := json.Unmarshal([]byte(ExtractJSON(out)), &parsed); err != nil {
		logger.Errorf("analyzer: unparseable batch response: %v, using fallback", err)
		return FallbackBatchAnalysis(titles, portfolio)
	}
	if parsed.RecommendedStocks == nil {
		parsed.RecommendedStocks = []schema.RecommendedStock{}
	}
	return parsed
}

func (a *LLMAnalyzer) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(a.model),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// ParseSentiment maps free-form model output onto the three labels, defaulting
// to NEUTRAL.
func ParseSentiment(out string) schema.Sentiment {
	up := strings.ToUpper(out)
	switch {
	case strings.Contains(up, "POSITIVE"):
		return schema.SentimentPositive
	case strings.Contains(up, "NEGATIVE"):
		return schema.SentimentNegative
	default:
		return schema.SentimentNeutral
	}
}

// ExtractJSON strips markdown code fences that chat models like to wrap JSON
// in.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+len("```"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
