// Package dashboard serves the dashboard's JSON views. Every data route reads
// its search state from the URL query string and fetches through the
// backend client's request cache.
package dashboard

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"socialdash/internal/auth"
	"socialdash/internal/backend"
	"socialdash/internal/monitor"
	"socialdash/internal/savedsearch"
)

type Server struct {
	client  *backend.Client
	saved   *savedsearch.Service
	auth    *auth.Service
	monitor *monitor.Monitor
	log     zerolog.Logger
	perPage int
}

func New(client *backend.Client, saved *savedsearch.Service, authSvc *auth.Service, log zerolog.Logger, perPage int) *Server {
	if perPage < 1 {
		perPage = 10
	}
	return &Server{client: client, saved: saved, auth: authSvc, log: log, perPage: perPage}
}

// WithMonitor makes /health report the monitor's last check instead of
// probing on every request.
func (s *Server) WithMonitor(m *monitor.Monitor) *Server {
	s.monitor = m
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Post("/search", s.handleSearchForm)
		r.Get("/stats", s.handleStats)
		r.Get("/timeseries", s.handleTimeSeries)
		r.Get("/network", s.handleNetwork)
		r.Get("/sentiment", s.handleSentiment)
		r.Get("/topics", s.handleTopics)
		r.Get("/ai/summary", s.handleAISummary)
		r.Get("/overview", s.handleOverview)
		r.Post("/chat", s.handleChat)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAuth)
			r.Get("/cache", s.handleCacheStats)
			r.Delete("/cache", s.handleClearCache)
			r.Route("/saved-searches", func(r chi.Router) {
				r.Get("/", s.handleListSaved)
				r.Post("/", s.handleCreateSaved)
				r.Get("/{id}", s.handleGetSaved)
				r.Delete("/{id}", s.handleDeleteSaved)
			})
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
