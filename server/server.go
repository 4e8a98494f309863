// Package server exposes the search pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/news2vector/newsrag/common/logger"
	"github.com/news2vector/newsrag/orchestrator"
	"github.com/news2vector/newsrag/schema"
)

// Searcher is the orchestrator surface the handlers need.
type Searcher interface {
	Search(ctx context.Context, req *schema.SearchRequest) (*schema.SearchResponse, error)
}

// Server holds the router and its collaborators.
type Server struct {
	searcher Searcher
	router   chi.Router
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// New builds the HTTP surface: the search endpoint plus health and metrics.
func New(searcher Searcher) *Server {
	s := &Server{searcher: searcher}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/api/news/search", s.handleSearch)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req schema.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body is not valid JSON")
		return
	}

	resp, err := s.searcher.Search(r.Context(), &req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyQuery) || errors.Is(err, orchestrator.ErrInvalidTopK) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		logger.Errorf("server: search failed: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "search failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("server: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}
