// Package embedding turns text into the fixed-dimension vectors the index
// stores. Two backends exist: the ko-sroberta embedding HTTP service and any
// OpenAI-compatible embeddings API.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/news2vector/newsrag/config"
)

// Provider produces embeddings for query and chunk text.
type Provider interface {
	// Embed returns one vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns vectors for texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the vector width this provider emits.
	Dimensions() int
}

// NewProvider builds the configured backend wrapped with single-flight
// warmup (see Lazy).
func NewProvider(cfg *config.EmbeddingConfig) (Provider, error) {
	var p Provider
	switch strings.ToLower(cfg.Provider) {
	case "", "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedding endpoint required for http provider")
		}
		p = newHTTPProvider(cfg)
	case "openai":
		p = newOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("embedding provider %q not supported", cfg.Provider)
	}
	return NewLazy(p), nil
}
