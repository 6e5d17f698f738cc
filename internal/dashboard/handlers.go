package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"socialdash/internal/auth"
	"socialdash/internal/backend"
	"socialdash/internal/monitor"
	"socialdash/internal/savedsearch"
	"socialdash/internal/search"
)

// requestParams reads the search state from the URL. Fields that fail to
// parse are dropped and reported back.
func (s *Server) requestParams(r *http.Request) (search.Params, []string) {
	p := search.Parse(r.URL.RawQuery)
	bad := search.Malformed(r.URL.Query())
	if len(bad) > 0 {
		s.log.Debug().Strs("keys", bad).Str("query", r.URL.RawQuery).Msg("ignoring malformed query values")
	}
	return p, bad
}

func fetchOptions(r *http.Request) backend.Options {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return backend.Options{ForceRefresh: refresh}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var st monitor.Status
	if s.monitor != nil {
		st = s.monitor.Status()
	} else {
		err := s.client.Health(r.Context())
		st = monitor.Status{Healthy: err == nil}
		if err != nil {
			s.log.Warn().Err(err).Msg("backend health check failed")
			st.Error = backend.UserMessage(err)
		}
	}
	backendStatus := "ok"
	if !st.Healthy {
		backendStatus = "unreachable"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"backend": backendStatus,
		"monitor": st,
		"cache":   s.client.Cache().Stats(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	p, bad := s.requestParams(r)
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	p = p.Paged(page, s.perPage)

	view := SearchView{
		Query:         p.Encode(),
		Form:          p.Form(),
		ActiveFilters: p.ActiveFilters(),
		Ignored:       bad,
		Page:          p.Page(),
		PerPage:       *p.Limit,
		Posts:         []search.Post{},
	}
	results, res, err := s.client.SearchPosts(r.Context(), p, fetchOptions(r))
	if err != nil {
		view.State = StateError
		view.Error = backend.UserMessage(err)
		view.Retryable = true
		writeJSON(w, http.StatusBadGateway, view)
		return
	}
	view.FromCache = res.FromCache
	view.Total = results.Total
	view.TotalPages = results.TotalPages(*p.Limit)
	if len(results.Posts) == 0 {
		view.State = StateEmpty
		view.Message = emptyGuidance
	} else {
		view.State = StateOK
		view.Posts = search.SortPosts(results.Posts, p.Sort)
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSearchForm takes a submitted filter form and redirects to the
// canonical search URL.
func (s *Server) handleSearchForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid form")
		return
	}
	p := search.FromForm(search.Form{
		Keyword:   r.PostForm.Get(search.KeyKeyword),
		Subreddit: r.PostForm.Get(search.KeySubreddit),
		Domain:    r.PostForm.Get(search.KeyDomain),
		Author:    r.PostForm.Get(search.KeyAuthor),
		StartDate: r.PostForm.Get(search.KeyStartDate),
		EndDate:   r.PostForm.Get(search.KeyEndDate),
		Sort:      r.PostForm.Get(search.KeySort),
	})
	target := "/api/search"
	if q := p.Encode(); q != "" {
		target += "?" + q
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) serveView(w http.ResponseWriter, p search.Params, res backend.Result, err error) {
	v := newView(p.Filters().Encode(), res, err)
	writeJSON(w, v.status(), v)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	p, _ := s.requestParams(r)
	res, err := s.client.Stats(r.Context(), fetchOptions(r))
	s.serveView(w, p, res, err)
}

func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	p, _ := s.requestParams(r)
	res, err := s.client.TimeSeries(r.Context(), p, r.URL.Query().Get("interval"), fetchOptions(r))
	s.serveView(w, p, res, err)
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	p, _ := s.requestParams(r)
	kind := backend.ParseNetworkType(r.URL.Query().Get("type"))
	res, err := s.client.Network(r.Context(), p, kind, fetchOptions(r))
	s.serveView(w, p, res, err)
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	p, _ := s.requestParams(r)
	res, err := s.client.Sentiment(r.Context(), p, fetchOptions(r))
	s.serveView(w, p, res, err)
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	p, _ := s.requestParams(r)
	q := r.URL.Query()
	to := backend.TopicOptions{}
	to.NumTopics, _ = strconv.Atoi(q.Get("num_topics"))
	to.NumWords, _ = strconv.Atoi(q.Get("num_words"))
	res, err := s.client.Topics(r.Context(), p, to, fetchOptions(r))
	s.serveView(w, p, res, err)
}

func (s *Server) handleAISummary(w http.ResponseWriter, r *http.Request) {
	p, _ := s.requestParams(r)
	q := r.URL.Query()
	so := backend.SummaryOptions{Type: q.Get("type"), Prompt: q.Get("prompt")}
	res, err := s.client.AISummary(r.Context(), p, so, fetchOptions(r))
	s.serveView(w, p, res, err)
}

// OverviewView holds the panels of the landing page. Each panel has its own
// state, so one failing panel does not blank the others.
type OverviewView struct {
	Query      string `json:"query"`
	Stats      View   `json:"stats"`
	TimeSeries View   `json:"timeseries"`
	Sentiment  View   `json:"sentiment"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	p, _ := s.requestParams(r)
	opts := fetchOptions(r)
	query := p.Filters().Encode()
	out := OverviewView{Query: query}

	g, ctx := errgroup.WithContext(r.Context())
	panel := func(dst *View, fetch func(context.Context) (backend.Result, error)) {
		g.Go(func() error {
			res, err := fetch(ctx)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			*dst = newView(query, res, err)
			return nil
		})
	}
	panel(&out.Stats, func(ctx context.Context) (backend.Result, error) {
		return s.client.Stats(ctx, opts)
	})
	panel(&out.TimeSeries, func(ctx context.Context) (backend.Result, error) {
		return s.client.TimeSeries(ctx, p, r.URL.Query().Get("interval"), opts)
	})
	panel(&out.Sentiment, func(ctx context.Context) (backend.Result, error) {
		return s.client.Sentiment(ctx, p, opts)
	})
	if err := g.Wait(); err != nil {
		s.log.Debug().Err(err).Msg("overview canceled")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req backend.ChatMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		errorJSON(w, http.StatusBadRequest, "message required")
		return
	}
	reply, err := s.client.SendChatMessage(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":     backend.UserMessage(err),
			"retryable": true,
		})
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	access, refresh, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrDisabled) {
			errorJSON(w, http.StatusNotFound, "login disabled")
			return
		}
		errorJSON(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	access, refresh, err := s.auth.Refresh(req.RefreshToken)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.client.Cache().Stats())
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	n := s.client.Cache().Len()
	s.client.ClearCache()
	s.log.Info().Int("entries", n).Msg("cache cleared")
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

type savedSearchView struct {
	savedsearch.SavedSearch
	URL  string      `json:"url"`
	Form search.Form `json:"form"`
}

func newSavedSearchView(s savedsearch.SavedSearch) savedSearchView {
	url := "/api/search"
	if s.Query != "" {
		url += "?" + s.Query
	}
	return savedSearchView{SavedSearch: s, URL: url, Form: s.Params().Form()}
}

func (s *Server) handleListSaved(w http.ResponseWriter, r *http.Request) {
	list, err := s.saved.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list saved searches")
		errorJSON(w, http.StatusInternalServerError, "could not list saved searches")
		return
	}
	out := make([]savedSearchView, 0, len(list))
	for _, it := range list {
		out = append(out, newSavedSearchView(it))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSaved(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	saved, err := s.saved.Create(r.Context(), req.Name, search.Parse(req.Query))
	if err != nil {
		if errors.Is(err, savedsearch.ErrInvalid) {
			errorJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("create saved search")
		errorJSON(w, http.StatusInternalServerError, "could not save search")
		return
	}
	writeJSON(w, http.StatusCreated, newSavedSearchView(saved))
}

func (s *Server) handleGetSaved(w http.ResponseWriter, r *http.Request) {
	saved, err := s.saved.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.savedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSavedSearchView(saved))
}

func (s *Server) handleDeleteSaved(w http.ResponseWriter, r *http.Request) {
	if err := s.saved.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.savedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) savedError(w http.ResponseWriter, err error) {
	if errors.Is(err, savedsearch.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "not found")
		return
	}
	s.log.Error().Err(err).Msg("saved search")
	errorJSON(w, http.StatusInternalServerError, "saved search error")
}
