package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/news2vector/newsrag/common/httpx"
)

// Config is the root configuration for the news retrieval service.
type Config struct {
	LogLevel  string          `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Search    SearchConfig    `json:"search" yaml:"search"`
	Splitter  SplitterConfig  `json:"splitter" yaml:"splitter"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	VectorDB  VectorDBConfig  `json:"vectordb" yaml:"vectordb"`
	Rerank    RerankConfig    `json:"rerank" yaml:"rerank"`
	Analyzer  AnalyzerConfig  `json:"analyzer" yaml:"analyzer"`
	Collector CollectorConfig `json:"collector" yaml:"collector"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	HTTP      *httpx.Config   `json:"http,omitempty" yaml:"http,omitempty"`
}

// ServerConfig describes the HTTP transport layer.
type ServerConfig struct {
	BindAddr string `json:"bind_addr,omitempty" yaml:"bind_addr,omitempty"`
}

// SearchConfig holds ranking policy knobs. BoostFactor and PoolMultiplier are
// tunable policy constants, not algorithm fixtures.
type SearchConfig struct {
	TopKDefault    int     `json:"top_k_default,omitempty" yaml:"top_k_default,omitempty"`
	TopKMax        int     `json:"top_k_max,omitempty" yaml:"top_k_max,omitempty"`
	MinRelevance   float64 `json:"min_relevance,omitempty" yaml:"min_relevance,omitempty"`
	BoostFactor    float64 `json:"boost_factor,omitempty" yaml:"boost_factor,omitempty"`
	PoolMultiplier int     `json:"pool_multiplier,omitempty" yaml:"pool_multiplier,omitempty"`
}

// SplitterConfig defines chunking behavior.
// Provider options: character (rune length), token (tiktoken length).
type SplitterConfig struct {
	Provider     string `json:"provider,omitempty" yaml:"provider,omitempty"`
	ChunkSize    int    `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty" yaml:"chunk_overlap,omitempty"`
	Encoding     string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
}

// EmbeddingConfig selects the embedding backend.
// Provider options: http (ko-sroberta embedding service), openai.
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider"`
	Endpoint   string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	BatchSize  int    `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
}

// VectorDBConfig describes the Milvus collection holding news chunks.
type VectorDBConfig struct {
	Address    string `json:"address,omitempty" yaml:"address,omitempty"`
	Username   string `json:"username,omitempty" yaml:"username,omitempty"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty"`
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`
	NList      int    `json:"nlist,omitempty" yaml:"nlist,omitempty"`
	NProbe     int    `json:"nprobe,omitempty" yaml:"nprobe,omitempty"`
}

// RerankConfig points at the cross-encoder scoring service.
type RerankConfig struct {
	Enable   bool   `json:"enable" yaml:"enable"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	TopN     int    `json:"top_n,omitempty" yaml:"top_n,omitempty"`
}

// AnalyzerConfig configures the LLM sentiment/topic analyzer. An empty
// provider leaves only the rule-based fallback active.
type AnalyzerConfig struct {
	Provider    string `json:"provider,omitempty" yaml:"provider,omitempty"`
	APIKey      string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL     string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model       string `json:"model,omitempty" yaml:"model,omitempty"`
	MaxArticles int    `json:"max_articles,omitempty" yaml:"max_articles,omitempty"`
	Parallelism int    `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
}

// CollectorConfig configures the Naver news collector.
type CollectorConfig struct {
	ClientID     string   `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	Keywords     []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Display      int      `json:"display,omitempty" yaml:"display,omitempty"`
	Attempts     int      `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

// CacheConfig controls the post-stage L1 result cache.
type CacheConfig struct {
	Enable     bool `json:"enable" yaml:"enable"`
	MaxEntries int  `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
	TTLSeconds int  `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
}

// Load reads a YAML config file, applies environment overrides for secrets,
// then validates and defaults the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv pulls secrets and connection overrides from the environment so
// credentials never need to live in the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("NAVER_CLIENT_ID"); v != "" {
		c.Collector.ClientID = v
	}
	if v := os.Getenv("NAVER_CLIENT_SECRET"); v != "" {
		c.Collector.ClientSecret = v
	}
	if v := os.Getenv("MILVUS_ADDR"); v != "" {
		c.VectorDB.Address = v
	}
	if v := os.Getenv("EMBEDDING_SERVICE_URL"); v != "" && c.Embedding.Endpoint == "" {
		c.Embedding.Endpoint = v
	}
	if v := os.Getenv("ANALYZER_API_KEY"); v != "" {
		c.Analyzer.APIKey = v
	}
	if v := os.Getenv("RERANK_ENDPOINT"); v != "" && c.Rerank.Endpoint == "" {
		c.Rerank.Endpoint = v
		c.Rerank.Enable = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}
