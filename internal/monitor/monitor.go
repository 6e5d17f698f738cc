// Package monitor checks the data API on an interval and, while it is up,
// keeps saved searches warm in the request cache.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"socialdash/internal/backend"
	"socialdash/internal/savedsearch"
)

// Status is the outcome of the latest health check.
type Status struct {
	Healthy   bool      `json:"healthy"`
	LatencyMS int       `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
	Warmed    int       `json:"warmed"`
}

type Config struct {
	Interval   time.Duration
	Warm       bool
	Concurrent int
	PerPage    int
}

type Monitor struct {
	client *backend.Client
	saved  *savedsearch.Service
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	status Status
}

// New returns a Monitor. saved may be nil, which turns warming off.
func New(client *backend.Client, saved *savedsearch.Service, cfg Config, log zerolog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Concurrent <= 0 {
		cfg.Concurrent = 4
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 10
	}
	return &Monitor{client: client, saved: saved, cfg: cfg, log: log, now: time.Now}
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Run checks immediately, then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		m.CheckOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) CheckOnce(ctx context.Context) Status {
	start := m.now()
	err := m.client.Health(ctx)
	st := Status{
		Healthy:   err == nil,
		LatencyMS: int(m.now().Sub(start) / time.Millisecond),
		CheckedAt: start,
	}
	if err != nil {
		st.Error = backend.UserMessage(err)
		m.log.Warn().Err(err).Msg("backend down")
	} else if m.cfg.Warm && m.saved != nil {
		st.Warmed = m.warm(ctx)
	}
	m.mu.Lock()
	m.status = st
	m.mu.Unlock()
	return st
}

// warm runs the first page of every saved search through the cache. Entries
// that are still valid are served from the cache and cost nothing.
func (m *Monitor) warm(ctx context.Context) int {
	list, err := m.saved.List(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("load saved searches")
		return 0
	}
	sem := make(chan struct{}, m.cfg.Concurrent)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		warmed int
	)
	for _, s := range list {
		wg.Add(1)
		sem <- struct{}{}
		go func(s savedsearch.SavedSearch) {
			defer wg.Done()
			defer func() { <-sem }()
			p := s.Params().Paged(1, m.cfg.PerPage)
			_, res, err := m.client.SearchPosts(ctx, p, backend.Options{})
			if err != nil {
				m.log.Error().Err(err).Str("saved_search", s.ID).Msg("warm saved search")
				return
			}
			if !res.FromCache {
				mu.Lock()
				warmed++
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	return warmed
}
