// Package post reorders retrieved candidates, typically through an external
// cross-encoder scoring service. Every implementation degrades to a
// pass-through: a broken reranker must never cost the caller its results.
package post

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/news2vector/newsrag/common/httpx"
	"github.com/news2vector/newsrag/common/logger"
	"github.com/news2vector/newsrag/config"
	"github.com/news2vector/newsrag/schema"
)

// Reranker reorders candidates for a query. topN 0 means keep all.
type Reranker interface {
	Rerank(ctx context.Context, query string, in []schema.SearchHit, topN int) ([]schema.SearchHit, error)
}

// ErrMissingFields marks a candidate that reached the reranker without the
// title and text its scoring function consumes. That is a bug in the stage
// that produced the hit, not a degradable runtime condition, so it surfaces
// as an error instead of being coerced away.
var ErrMissingFields = errors.New("rerank candidate missing title or text")

// ModelReranker calls a cross-encoder service (ko-reranker, BGE-reranker,
// Cohere-style). Request/response shape:
//
//	POST endpoint {"query":"...","documents":["..."],"model":"...","top_n":5}
//	-> {"results":[{"index":0,"relevance_score":0.97}]}
//
// Scored hits get RerankScore set and HasRerank true; VectorScore is never
// touched, so downstream relevance filtering stays on the bounded scale.
type ModelReranker struct {
	Endpoint string
	Model    string
	APIKey   string
	Client   *httpx.Client
}

// NewModelReranker builds a reranker from config. A nil or disabled config
// yields a reranker that always passes through.
func NewModelReranker(cfg *config.RerankConfig, client *httpx.Client) *ModelReranker {
	m := &ModelReranker{Client: client}
	if cfg != nil && cfg.Enable {
		m.Endpoint = cfg.Endpoint
		m.Model = cfg.Model
		m.APIKey = cfg.APIKey
	}
	return m
}

type modelRerankReq struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopN      int      `json:"top_n,omitempty"`
}

type modelRerankResp struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (m *ModelReranker) Rerank(ctx context.Context, query string, in []schema.SearchHit, topN int) ([]schema.SearchHit, error) {
	if m.Endpoint == "" || len(in) == 0 {
		return passthrough(in, topN), nil
	}

	// The cross-encoder sees title and body together for context.
	documents := make([]string, len(in))
	for i, hit := range in {
		if hit.Title == "" || hit.Text == "" {
			logger.Errorf("rerank: candidate %d (id=%d) missing title or text", i, hit.ID)
			return nil, fmt.Errorf("candidate %d (id=%d): %w", i, hit.ID, ErrMissingFields)
		}
		documents[i] = hit.Title + ". " + hit.Text
	}

	bs, _ := json.Marshal(modelRerankReq{Query: query, Documents: documents, Model: m.Model, TopN: topN})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(bs))
	if err != nil {
		logger.Warnf("rerank: failed to build request: %v, keeping original order", err)
		return passthrough(in, topN), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if m.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.APIKey))
	}

	if m.Client == nil {
		m.Client = httpx.NewFromConfig(nil)
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		logger.Warnf("rerank: request failed: %v, keeping original order", err)
		return passthrough(in, topN), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warnf("rerank: service returned %d, keeping original order", resp.StatusCode)
		return passthrough(in, topN), nil
	}

	var rr modelRerankResp
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil || len(rr.Results) == 0 {
		logger.Warnf("rerank: unusable response (err=%v, results=%d), keeping original order", err, len(rr.Results))
		return passthrough(in, topN), nil
	}

	out := make([]schema.SearchHit, 0, len(rr.Results))
	for _, r := range rr.Results {
		if r.Index < 0 || r.Index >= len(in) {
			continue
		}
		hit := in[r.Index]
		hit.RerankScore = r.RelevanceScore
		hit.HasRerank = true
		out = append(out, hit)
	}
	if len(out) == 0 {
		return passthrough(in, topN), nil
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RerankScore > out[j].RerankScore })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	logger.Debugf("rerank: %d candidates rescored, top=%.4f", len(out), out[0].RerankScore)
	return out, nil
}

func passthrough(in []schema.SearchHit, topN int) []schema.SearchHit {
	if topN > 0 && len(in) > topN {
		return append([]schema.SearchHit(nil), in[:topN]...)
	}
	return in
}
