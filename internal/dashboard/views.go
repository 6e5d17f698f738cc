package dashboard

import (
	"encoding/json"
	"net/http"
	"strings"

	"socialdash/internal/backend"
	"socialdash/internal/search"
)

// State is the render state of a view. Loading is the caller's state while
// a request is in flight, so it is never sent.
type State string

const (
	StateLoading State = "loading"
	StateOK      State = "ok"
	StateEmpty   State = "empty"
	StateError   State = "error"
)

const emptyGuidance = "No results match these filters. Try removing a filter or widening the date range."

// View wraps one analysis payload.
type View struct {
	State     State           `json:"state"`
	Query     string          `json:"query"`
	FromCache bool            `json:"from_cache"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Retryable bool            `json:"retryable,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// SearchView is the search page model.
type SearchView struct {
	State         State         `json:"state"`
	Query         string        `json:"query"`
	Form          search.Form   `json:"form"`
	ActiveFilters int           `json:"active_filters"`
	Ignored       []string      `json:"ignored,omitempty"`
	Page          int           `json:"page"`
	PerPage       int           `json:"per_page"`
	TotalPages    int           `json:"total_pages"`
	Total         int           `json:"total"`
	Posts         []search.Post `json:"posts"`
	FromCache     bool          `json:"from_cache"`
	Error         string        `json:"error,omitempty"`
	Retryable     bool          `json:"retryable,omitempty"`
	Message       string        `json:"message,omitempty"`
}

func newView(query string, res backend.Result, err error) View {
	v := View{Query: query}
	switch {
	case err != nil:
		v.State = StateError
		v.Error = backend.UserMessage(err)
		v.Retryable = true
	case emptyPayload(res.Payload):
		v.State = StateEmpty
		v.FromCache = res.FromCache
		v.Message = emptyGuidance
	default:
		v.State = StateOK
		v.FromCache = res.FromCache
		v.Data = res.Payload
	}
	return v
}

// status is the HTTP status a view is served with.
func (v View) status() int {
	if v.State == StateError {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

func emptyPayload(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "[]", "{}":
		return true
	}
	return false
}
