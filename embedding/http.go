package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/news2vector/newsrag/common/httpx"
	"github.com/news2vector/newsrag/config"
)

// httpProvider talks to the standalone sentence-embedding service
// (ko-sroberta-multitask behind FastAPI). Contract:
//
//	POST {endpoint}/embed  {"texts": ["...", ...]}
//	-> 200 {"embeddings": [[...], ...]}
type httpProvider struct {
	endpoint   string
	dimensions int
	batchSize  int
	client     *httpx.Client
}

func newHTTPProvider(cfg *config.EmbeddingConfig) *httpProvider {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	return &httpProvider{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		dimensions: cfg.Dimensions,
		batchSize:  batch,
		client:     httpx.NewFromConfig(&httpx.Config{Retry: 2}),
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *httpProvider) Dimensions() int { return p.dimensions }

func (p *httpProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *httpProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := p.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *httpProvider) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(body))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(er.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(er.Embeddings), len(texts))
	}
	for i, v := range er.Embeddings {
		if p.dimensions > 0 && len(v) != p.dimensions {
			return nil, fmt.Errorf("vector %d has %d dimensions, want %d", i, len(v), p.dimensions)
		}
	}
	return er.Embeddings, nil
}
