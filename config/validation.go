package config

import (
	"fmt"
	"strings"
)

// Validate checks cross-field consistency and fills defaults in place.
// It is called by Load but exported so tests and embedders can reuse it.
func (c *Config) Validate() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.BindAddr == "" {
		c.Server.BindAddr = ":8080"
	}

	if c.Search.TopKDefault <= 0 {
		c.Search.TopKDefault = 5
	}
	if c.Search.TopKMax <= 0 {
		c.Search.TopKMax = 20
	}
	if c.Search.TopKDefault > c.Search.TopKMax {
		return fmt.Errorf("search.top_k_default %d exceeds top_k_max %d", c.Search.TopKDefault, c.Search.TopKMax)
	}
	if c.Search.MinRelevance == 0 {
		c.Search.MinRelevance = 0.7
	}
	if c.Search.MinRelevance < 0 || c.Search.MinRelevance > 1 {
		return fmt.Errorf("search.min_relevance must be in [0,1], got %v", c.Search.MinRelevance)
	}
	if c.Search.BoostFactor == 0 {
		c.Search.BoostFactor = 1.5
	}
	if c.Search.BoostFactor < 1 {
		return fmt.Errorf("search.boost_factor must be >= 1, got %v", c.Search.BoostFactor)
	}
	if c.Search.PoolMultiplier <= 0 {
		c.Search.PoolMultiplier = 5
	}
	if c.Search.PoolMultiplier > 10 {
		return fmt.Errorf("search.pool_multiplier must be <= 10, got %d", c.Search.PoolMultiplier)
	}

	switch strings.ToLower(c.Splitter.Provider) {
	case "":
		c.Splitter.Provider = "character"
	case "character", "token":
	default:
		return fmt.Errorf("splitter.provider %q not supported (character, token)", c.Splitter.Provider)
	}
	if c.Splitter.ChunkSize <= 0 {
		c.Splitter.ChunkSize = 500
	}
	if c.Splitter.ChunkOverlap < 0 {
		return fmt.Errorf("splitter.chunk_overlap cannot be negative")
	}
	if c.Splitter.ChunkOverlap == 0 {
		c.Splitter.ChunkOverlap = 50
	}
	if c.Splitter.ChunkOverlap >= c.Splitter.ChunkSize {
		return fmt.Errorf("splitter.chunk_overlap %d must be smaller than chunk_size %d", c.Splitter.ChunkOverlap, c.Splitter.ChunkSize)
	}
	if c.Splitter.Encoding == "" {
		c.Splitter.Encoding = "cl100k_base"
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "":
		c.Embedding.Provider = "http"
	case "http", "openai":
	default:
		return fmt.Errorf("embedding.provider %q not supported (http, openai)", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 768
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}

	if c.VectorDB.Address == "" {
		c.VectorDB.Address = "localhost:19530"
	}
	if c.VectorDB.Collection == "" {
		c.VectorDB.Collection = "stock_news_v1"
	}
	if c.VectorDB.NList <= 0 {
		c.VectorDB.NList = 1024
	}
	if c.VectorDB.NProbe <= 0 {
		c.VectorDB.NProbe = 10
	}

	if c.Rerank.Enable && c.Rerank.Endpoint == "" {
		return fmt.Errorf("rerank.endpoint required when rerank is enabled")
	}

	if c.Analyzer.MaxArticles <= 0 {
		c.Analyzer.MaxArticles = 5
	}
	if c.Analyzer.Parallelism <= 0 {
		c.Analyzer.Parallelism = 4
	}

	if len(c.Collector.Keywords) == 0 {
		c.Collector.Keywords = []string{"증시", "주식시장", "코스피", "코스닥"}
	}
	if c.Collector.Display <= 0 || c.Collector.Display > 100 {
		c.Collector.Display = 100
	}
	if c.Collector.Attempts <= 0 {
		c.Collector.Attempts = 3
	}

	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 500
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 120
	}
	return nil
}
