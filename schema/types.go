package schema

// MatchType tags how a search hit entered the candidate list.
type MatchType string

const (
	MatchVector  MatchType = "VECTOR"
	MatchKeyword MatchType = "KEYWORD"
	MatchHybrid  MatchType = "HYBRID"
)

// Sentiment is the label assigned to a news text by the analyzer.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
)

// NewsChunk is one bounded, overlapping segment of a normalized article.
// It is immutable once produced by the splitter and carries full source
// provenance so the stored record can be cited on its own.
type NewsChunk struct {
	Content     string
	ChunkIndex  int
	TotalChunks int
	SourceTitle string
	SourceURL   string
	PublishedAt string
}

// SearchHit is the single result shape every retrieval stage consumes and
// produces. VectorScore is derived from index distance (1/(1+distance)) and is
// the only score relevance filtering may read. RerankScore is an unbounded
// cross-encoder output used for ordering only; HasRerank reports whether the
// reranker actually populated it.
type SearchHit struct {
	ID          int64
	Distance    float64
	VectorScore float64
	RerankScore float64
	HasRerank   bool
	MatchType   MatchType
	Title       string
	Text        string
	URL         string
	PublishedAt string
}

// Holding is one position inside a portfolio context.
type Holding struct {
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// PortfolioContext personalizes a search request.
type PortfolioContext struct {
	Holdings   []Holding `json:"holdings,omitempty"`
	Sectors    []string  `json:"sectors,omitempty"`
	TotalValue float64   `json:"totalValue,omitempty"`
}

// Filters narrows search results. Dates use the YYYY-MM-DD form; empty bounds
// are open-ended. MinRelevance is nil when the caller wants the default floor.
type Filters struct {
	StartDate    string   `json:"startDate,omitempty"`
	EndDate      string   `json:"endDate,omitempty"`
	MinRelevance *float64 `json:"minRelevance,omitempty"`
}

// SearchRequest is the exposed search operation's input.
type SearchRequest struct {
	Query            string            `json:"query"`
	PortfolioContext *PortfolioContext `json:"portfolioContext,omitempty"`
	Filters          *Filters          `json:"filters,omitempty"`
	TopK             int               `json:"topK,omitempty"`
}

// NewsArticle is one finalized, ranked article in the response.
type NewsArticle struct {
	NewsID         int64     `json:"newsId"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	PublishedAt    string    `json:"publishedAt"`
	URL            string    `json:"url"`
	RelevanceScore float64   `json:"relevanceScore"`
	Sentiment      Sentiment `json:"sentiment"`
}

// SentimentDistribution holds fractional sentiment counts rounded to 2 decimals.
type SentimentDistribution struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// RecommendedStock is produced by the batch analyzer.
type RecommendedStock struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// BatchAnalysis is the analyzer's aggregate output over the surviving articles.
type BatchAnalysis struct {
	KeyTopics         []string           `json:"keyTopics"`
	RiskFactors       []string           `json:"riskFactors"`
	Opportunities     []string           `json:"opportunities"`
	RecommendedStocks []RecommendedStock `json:"recommendedStocks"`
}

// Analysis combines sentiment aggregation with the batch analyzer output.
type Analysis struct {
	OverallSentiment      Sentiment             `json:"overallSentiment"`
	SentimentDistribution SentimentDistribution `json:"sentimentDistribution"`
	KeyTopics             []string              `json:"keyTopics"`
	RiskFactors           []string              `json:"riskFactors"`
	Opportunities         []string              `json:"opportunities"`
	RecommendedStocks     []RecommendedStock    `json:"recommendedStocks"`
}

// Metadata describes a single search round trip.
type Metadata struct {
	TotalMatches  int   `json:"totalMatches"`
	ReturnedCount int   `json:"returnedCount"`
	SearchTimeMs  int64 `json:"searchTimeMs"`
}

// SearchResponse is the exposed search operation's output.
type SearchResponse struct {
	Query        string        `json:"query"`
	NewsArticles []NewsArticle `json:"newsArticles"`
	Analysis     Analysis      `json:"analysis"`
	Metadata     Metadata      `json:"metadata"`
}
