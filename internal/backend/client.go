// Package backend is the HTTP client for the social-media data API. Every GET
// goes through a request cache keyed by endpoint and parameters.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"socialdash/internal/cache"
)

const maxBodyBytes = 16 << 20

// Config holds client settings.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RPS       float64
	Burst     int
	SearchTTL time.Duration
}

// Options controls how a single fetch uses the cache.
type Options struct {
	// SkipCache bypasses the cache for both lookup and store.
	SkipCache bool
	// ForceRefresh ignores a cached entry but stores the fresh result.
	ForceRefresh bool
	// CacheExpiration overrides the cache default ttl when positive.
	CacheExpiration time.Duration
}

// Result is a fetched payload and where it came from.
type Result struct {
	Payload     json.RawMessage
	FromCache   bool
	Fingerprint string
}

// Client talks to the backend data API.
type Client struct {
	baseURL   string
	http      *http.Client
	cache     *cache.Cache
	limiter   *rate.Limiter
	searchTTL time.Duration
	log       zerolog.Logger
}

// New returns a Client. If httpClient is nil one is built from cfg.Timeout.
func New(cfg Config, c *cache.Cache, log zerolog.Logger, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if c == nil {
		c = cache.New()
	}
	searchTTL := cfg.SearchTTL
	if searchTTL <= 0 {
		searchTTL = 2 * time.Minute
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      httpClient,
		cache:     c,
		limiter:   limiter,
		searchTTL: searchTTL,
		log:       log,
	}
}

// Cache exposes the request cache.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// Fetch GETs endpoint with params, serving from the cache when allowed.
// Failures are returned as *Error and never cached. Concurrent calls for the
// same request are not coalesced: each one that misses goes to the network,
// and whichever response finishes last is the one left in the cache.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values, opts Options) (Result, error) {
	return c.fetch(ctx, endpoint, params, opts, nil)
}

// fetch is Fetch with an optional decode step. A fresh payload that decode
// rejects is a failure: it is not stored and any earlier entry is kept.
func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values, opts Options, decode func([]byte) error) (Result, error) {
	key := cache.Fingerprint(endpoint, params)
	if !opts.SkipCache && !opts.ForceRefresh {
		if payload, ok := c.cache.Get(key); ok {
			if decode == nil || decode(payload) == nil {
				c.log.Debug().Str("endpoint", endpoint).Msg("using cached data")
				return Result{Payload: payload, FromCache: true, Fingerprint: key}, nil
			}
		}
	}

	c.log.Debug().Str("endpoint", endpoint).Bool("force_refresh", opts.ForceRefresh).Msg("fetching data")
	payload, err := c.get(ctx, endpoint, params)
	if err == nil && decode != nil {
		if derr := decode(payload); derr != nil {
			err = &Error{Endpoint: endpoint, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, derr)}
		}
	}
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", endpoint).Msg("fetch failed")
		return Result{}, err
	}
	if !opts.SkipCache {
		c.cache.Set(key, payload, opts.CacheExpiration)
	}
	return Result{Payload: payload, Fingerprint: key}, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	target := c.baseURL + endpoint
	if q := params.Encode(); q != "" {
		target += "?" + q
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, endpoint)
}

func (c *Client) post(ctx context.Context, endpoint string, body interface{}) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, endpoint)
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, &Error{Endpoint: endpoint, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(endpoint, resp.StatusCode, body)
	}
	if !json.Valid(body) {
		return nil, &Error{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: ErrMalformedResponse}
	}
	return body, nil
}
