package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/news2vector/newsrag/orchestrator"
	"github.com/news2vector/newsrag/schema"
)

type stubSearcher struct {
	resp *schema.SearchResponse
	err  error
	last *schema.SearchRequest
}

func (s *stubSearcher) Search(_ context.Context, req *schema.SearchRequest) (*schema.SearchResponse, error) {
	s.last = req
	return s.resp, s.err
}

func doSearch(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/news/search", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSearchEndpoint(t *testing.T) {
	stub := &stubSearcher{resp: &schema.SearchResponse{
		Query:        "삼성전자",
		NewsArticles: []schema.NewsArticle{{NewsID: 1, Title: "제목", Sentiment: schema.SentimentPositive}},
		Metadata:     schema.Metadata{TotalMatches: 1, ReturnedCount: 1, SearchTimeMs: 12},
	}}
	s := New(stub)

	rec := doSearch(t, s, `{"query":"삼성전자","topK":5,"filters":{"startDate":"2025-01-01"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	require.Equal(t, "삼성전자", stub.last.Query)
	require.Equal(t, 5, stub.last.TopK)
	require.Equal(t, "2025-01-01", stub.last.Filters.StartDate)

	var resp schema.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.NewsArticles, 1)
	require.Equal(t, int64(1), resp.NewsArticles[0].NewsID)
}

func TestSearchValidationErrorIs400(t *testing.T) {
	stub := &stubSearcher{err: orchestrator.ErrEmptyQuery}
	rec := doSearch(t, New(stub), `{"query":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "INVALID_REQUEST", body.Error.Code)
}

func TestSearchBadJSONIs400(t *testing.T) {
	rec := doSearch(t, New(&stubSearcher{}), `{"query":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchPipelineFailureIs500(t *testing.T) {
	stub := &stubSearcher{err: errors.New("milvus unreachable")}
	rec := doSearch(t, New(stub), `{"query":"증시"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	// Internal detail is logged, not leaked.
	require.NotContains(t, body.Error.Message, "milvus")
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	New(&stubSearcher{}).Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	New(&stubSearcher{}).Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
