package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/news2vector/newsrag/config"
)

func newEmbedServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/embed", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embedResponse{Embeddings: make([][]float32, len(req.Texts))}
		for i := range req.Texts {
			vec := make([]float32, 768)
			vec[0] = float32(i + 1)
			resp.Embeddings[i] = vec
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPProviderEmbedBatch(t *testing.T) {
	var calls int32
	srv := newEmbedServer(t, &calls)
	defer srv.Close()

	p := newHTTPProvider(&config.EmbeddingConfig{
		Endpoint: srv.URL, Dimensions: 768, BatchSize: 2,
	})

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	require.Len(t, vecs[0], 768)
	// BatchSize 2 means two round trips for three texts.
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestHTTPProviderRejectsMismatchedCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{}})
	}))
	defer srv.Close()

	p := newHTTPProvider(&config.EmbeddingConfig{Endpoint: srv.URL, Dimensions: 768, BatchSize: 32})
	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
}

func TestHTTPProviderRejectsWrongDimensions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 2, 3}}})
	}))
	defer srv.Close()

	p := newHTTPProvider(&config.EmbeddingConfig{Endpoint: srv.URL, Dimensions: 768, BatchSize: 32})
	_, err := p.Embed(context.Background(), "a")
	require.Error(t, err)
}

func TestHTTPProviderSurfacesServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"texts must not be empty"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := newHTTPProvider(&config.EmbeddingConfig{Endpoint: srv.URL, Dimensions: 768, BatchSize: 32})
	_, err := p.Embed(context.Background(), "a")
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
}

func TestLazyWarmupRunsOnce(t *testing.T) {
	var calls int32
	srv := newEmbedServer(t, &calls)
	defer srv.Close()

	lazy := NewLazy(newHTTPProvider(&config.EmbeddingConfig{
		Endpoint: srv.URL, Dimensions: 768, BatchSize: 32,
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lazy.Embed(context.Background(), "text")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	// 8 real embeds plus exactly one shared warmup probe.
	require.EqualValues(t, 9, atomic.LoadInt32(&calls))
}

func TestNewProviderValidation(t *testing.T) {
	_, err := NewProvider(&config.EmbeddingConfig{Provider: "http"})
	require.Error(t, err)

	_, err = NewProvider(&config.EmbeddingConfig{Provider: "carrier-pigeon"})
	require.Error(t, err)

	p, err := NewProvider(&config.EmbeddingConfig{Provider: "http", Endpoint: "http://localhost:8000", Dimensions: 768, BatchSize: 32})
	require.NoError(t, err)
	require.Equal(t, 768, p.Dimensions())
}
