package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	require.Equal(t, 5, cfg.Search.TopKDefault)
	require.Equal(t, 20, cfg.Search.TopKMax)
	require.InDelta(t, 0.7, cfg.Search.MinRelevance, 1e-9)
	require.InDelta(t, 1.5, cfg.Search.BoostFactor, 1e-9)
	require.Equal(t, 5, cfg.Search.PoolMultiplier)
	require.Equal(t, 500, cfg.Splitter.ChunkSize)
	require.Equal(t, 50, cfg.Splitter.ChunkOverlap)
	require.Equal(t, "character", cfg.Splitter.Provider)
	require.Equal(t, 768, cfg.Embedding.Dimensions)
	require.Equal(t, "stock_news_v1", cfg.VectorDB.Collection)
	require.NotEmpty(t, cfg.Collector.Keywords)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap >= chunk size", func(c *Config) { c.Splitter.ChunkSize = 100; c.Splitter.ChunkOverlap = 100 }},
		{"boost below one", func(c *Config) { c.Search.BoostFactor = 0.5 }},
		{"relevance above one", func(c *Config) { c.Search.MinRelevance = 1.5 }},
		{"unknown splitter", func(c *Config) { c.Splitter.Provider = "semantic" }},
		{"rerank without endpoint", func(c *Config) { c.Rerank.Enable = true }},
		{"pool multiplier too large", func(c *Config) { c.Search.PoolMultiplier = 50 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
search:
  boost_factor: 2.0
  pool_multiplier: 4
vectordb:
  collection: stock_news_test
collector:
  client_id: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("NAVER_CLIENT_ID", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.InDelta(t, 2.0, cfg.Search.BoostFactor, 1e-9)
	require.Equal(t, 4, cfg.Search.PoolMultiplier)
	require.Equal(t, "stock_news_test", cfg.VectorDB.Collection)
	require.Equal(t, "from-env", cfg.Collector.ClientID)
	// Untouched sections still get defaults.
	require.InDelta(t, 0.7, cfg.Search.MinRelevance, 1e-9)
}
