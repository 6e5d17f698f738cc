package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"socialdash/internal/cache"
	"socialdash/internal/search"
)

type fakeBackend struct {
	calls  atomic.Int64
	status atomic.Int64
	body   atomic.Value
	hold   chan struct{}
	last   atomic.Value
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{}
	fb.status.Store(http.StatusOK)
	fb.body.Store(`{"ok":true}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.calls.Add(1)
		fb.last.Store(r.URL.RequestURI())
		if fb.hold != nil {
			<-fb.hold
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(fb.status.Load()))
		_, _ = w.Write([]byte(fb.body.Load().(string)))
	}))
	t.Cleanup(srv.Close)
	return fb, srv
}

func newTestClient(srv *httptest.Server, c *cache.Cache) *Client {
	return New(Config{BaseURL: srv.URL + "/api/"}, c, zerolog.Nop(), srv.Client())
}

func TestFetchServesFromCache(t *testing.T) {
	fb, srv := newFakeBackend(t)
	client := newTestClient(srv, cache.New())
	ctx := context.Background()
	params := url.Values{"keyword": {"climate"}}

	first, err := client.Fetch(ctx, EndpointStats, params, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if first.FromCache {
		t.Fatal("first fetch cannot come from cache")
	}
	second, err := client.Fetch(ctx, EndpointStats, params, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !second.FromCache || string(second.Payload) != `{"ok":true}` {
		t.Fatalf("expected cached payload, got %+v", second)
	}
	if n := fb.calls.Load(); n != 1 {
		t.Fatalf("backend called %d times, want 1", n)
	}
	if got := fb.last.Load().(string); got != "/api/stats?keyword=climate" {
		t.Fatalf("request uri %s", got)
	}
}

func TestFetchOptions(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantCalls int64
		wantCache bool
	}{
		{"default", Options{}, 1, true},
		{"force refresh", Options{ForceRefresh: true}, 2, true},
		{"skip cache", Options{SkipCache: true}, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, srv := newFakeBackend(t)
			c := cache.New()
			client := newTestClient(srv, c)
			ctx := context.Background()

			// Prime with a normal fetch, then repeat with the options under test.
			if _, err := client.Fetch(ctx, EndpointTopics, nil, Options{}); err != nil {
				t.Fatal(err)
			}
			c.Clear()
			fb.body.Store(`{"v":2}`)
			if _, err := client.Fetch(ctx, EndpointTopics, nil, tt.opts); err != nil {
				t.Fatal(err)
			}
			res, err := client.Fetch(ctx, EndpointTopics, nil, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if got := fb.calls.Load() - 1; got != tt.wantCalls {
				t.Fatalf("network calls %d, want %d", got, tt.wantCalls)
			}
			if c.Has(cache.Fingerprint(EndpointTopics, nil)) != tt.wantCache {
				t.Fatalf("cached=%v, want %v", !tt.wantCache, tt.wantCache)
			}
			if string(res.Payload) != `{"v":2}` {
				t.Fatalf("payload %s", res.Payload)
			}
		})
	}
}

func TestForceRefreshReplacesEntry(t *testing.T) {
	fb, srv := newFakeBackend(t)
	client := newTestClient(srv, cache.New())
	ctx := context.Background()

	if _, err := client.Fetch(ctx, EndpointStats, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	fb.body.Store(`{"ok":"fresh"}`)
	if _, err := client.Fetch(ctx, EndpointStats, nil, Options{ForceRefresh: true}); err != nil {
		t.Fatal(err)
	}
	res, err := client.Fetch(ctx, EndpointStats, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache || string(res.Payload) != `{"ok":"fresh"}` {
		t.Fatalf("got %+v", res)
	}
}

func TestCacheExpirationOption(t *testing.T) {
	_, srv := newFakeBackend(t)
	c := cache.New()
	client := newTestClient(srv, c)
	res, err := client.Fetch(context.Background(), EndpointStats, nil, Options{CacheExpiration: time.Nanosecond})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if c.Has(res.Fingerprint) {
		t.Fatal("entry should have expired")
	}
}

func TestFailedFetchLeavesCacheUnchanged(t *testing.T) {
	fb, srv := newFakeBackend(t)
	c := cache.New()
	client := newTestClient(srv, c)
	ctx := context.Background()
	params := url.Values{"subreddit": {"news"}}
	key := cache.Fingerprint(EndpointSentiment, params)

	fb.status.Store(http.StatusInternalServerError)
	fb.body.Store(`{"error":"database locked"}`)
	_, err := client.Fetch(ctx, EndpointSentiment, params, Options{})
	var be *Error
	if !errors.As(err, &be) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if be.StatusCode != http.StatusInternalServerError || be.Message != "database locked" {
		t.Fatalf("unexpected error %+v", be)
	}
	if !errors.Is(err, ErrStatus) {
		t.Fatal("status failures should wrap ErrStatus")
	}
	if c.Has(key) {
		t.Fatal("failure was cached")
	}

	// A prior valid entry survives a later failed refresh.
	fb.status.Store(http.StatusOK)
	fb.body.Store(`{"score":1}`)
	if _, err := client.Fetch(ctx, EndpointSentiment, params, Options{}); err != nil {
		t.Fatal(err)
	}
	fb.status.Store(http.StatusBadGateway)
	fb.body.Store(`oops`)
	if _, err := client.Fetch(ctx, EndpointSentiment, params, Options{ForceRefresh: true}); err == nil {
		t.Fatal("expected refresh to fail")
	}
	got, ok := c.Get(key)
	if !ok || string(got) != `{"score":1}` {
		t.Fatalf("prior entry lost: %q ok=%v", got, ok)
	}
}

func TestMalformedBodyIsAnError(t *testing.T) {
	fb, srv := newFakeBackend(t)
	c := cache.New()
	client := newTestClient(srv, c)
	fb.body.Store(`<html>not json</html>`)

	_, err := client.Fetch(context.Background(), EndpointStats, nil, Options{})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("got %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("malformed body was cached")
	}
}

func TestUnavailableBackend(t *testing.T) {
	_, srv := newFakeBackend(t)
	client := newTestClient(srv, cache.New())
	srv.Close()

	_, err := client.Fetch(context.Background(), EndpointStats, nil, Options{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v", err)
	}
	if msg := UserMessage(err); msg != "no response from server" {
		t.Fatalf("user message %q", msg)
	}
}

func TestConcurrentFetchesAreNotCoalesced(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.hold = make(chan struct{})
	client := newTestClient(srv, cache.New())

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Fetch(context.Background(), EndpointStats, nil, Options{})
			errs <- err
		}()
	}
	deadline := time.After(5 * time.Second)
	for fb.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("only %d calls reached the backend", fb.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	close(fb.hold)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if n := fb.calls.Load(); n != 2 {
		t.Fatalf("calls %d, want 2", n)
	}
}

func TestSearchPosts(t *testing.T) {
	fb, srv := newFakeBackend(t)
	c := cache.New()
	client := newTestClient(srv, c)
	fb.body.Store(`{"total":12,"offset":10,"limit":10,"posts":[{"id":"p1","title":"hello","score":3}]}`)

	p := search.Params{Keyword: "climate", StartDate: search.NewDate(2024, 1, 1), Sort: search.SortScore}.WithPage(2, 10)
	results, res, err := client.SearchPosts(context.Background(), p, Options{CacheExpiration: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if results.Total != 12 || len(results.Posts) != 1 || results.Posts[0].ID != "p1" {
		t.Fatalf("unexpected results %+v", results)
	}
	if res.FromCache {
		t.Fatal("first search cannot be cached")
	}
	got := fb.last.Load().(string)
	want := "/api/posts/search?keyword=climate&limit=10&offset=10&start_date=2024-01-01"
	if got != want {
		t.Fatalf("request uri\n got  %s\n want %s", got, want)
	}
}

func TestSearchPostsUsesSearchTTL(t *testing.T) {
	_, srv := newFakeBackend(t)
	c := cache.New()
	client := New(Config{BaseURL: srv.URL, SearchTTL: time.Nanosecond}, c, zerolog.Nop(), srv.Client())

	_, res, err := client.SearchPosts(context.Background(), search.Params{Keyword: "x"}, Options{CacheExpiration: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if c.Has(res.Fingerprint) {
		t.Fatal("search ttl was not applied")
	}
}

func TestAnalysisEndpointsDropPagingAndSort(t *testing.T) {
	fb, srv := newFakeBackend(t)
	client := newTestClient(srv, cache.New())
	ctx := context.Background()
	p := search.Params{Subreddit: "news", Sort: search.SortRecent}.WithPage(3, 10)

	if _, err := client.Topics(ctx, p, TopicOptions{NumTopics: 7}, Options{}); err != nil {
		t.Fatal(err)
	}
	if got := fb.last.Load().(string); got != "/api/topics?num_topics=7&subreddit=news" {
		t.Fatalf("topics uri %s", got)
	}
	if _, err := client.Network(ctx, p, ParseNetworkType("AUTHOR"), Options{}); err != nil {
		t.Fatal(err)
	}
	if got := fb.last.Load().(string); got != "/api/network?subreddit=news&type=author" {
		t.Fatalf("network uri %s", got)
	}
	if _, err := client.AISummary(ctx, p, SummaryOptions{Prompt: "why?"}, Options{}); err != nil {
		t.Fatal(err)
	}
	if got := fb.last.Load().(string); got != "/api/ai/summary?prompt=why%3F&subreddit=news" {
		t.Fatalf("summary uri %s", got)
	}
}

func TestSendChatMessage(t *testing.T) {
	var got ChatMessage
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/chat/message" {
			http.Error(w, "bad route", http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"response": "hi", "source": "db"})
	}))
	defer srv.Close()
	c := cache.New()
	client := New(Config{BaseURL: srv.URL}, c, zerolog.Nop(), srv.Client())

	for i := 0; i < 2; i++ {
		reply, err := client.SendChatMessage(context.Background(), ChatMessage{Message: "  top subreddits? "})
		if err != nil {
			t.Fatal(err)
		}
		if reply.Response != "hi" || reply.ConversationID == "" {
			t.Fatalf("unexpected reply %+v", reply)
		}
	}
	if got.Message != "top subreddits?" || got.ConversationID == "" {
		t.Fatalf("sent %+v", got)
	}
	if calls.Load() != 2 || c.Len() != 0 {
		t.Fatal("chat must not be cached")
	}
}

func TestHealth(t *testing.T) {
	fb, srv := newFakeBackend(t)
	client := newTestClient(srv, cache.New())
	if err := client.Health(context.Background()); err != nil {
		t.Fatal(err)
	}
	fb.status.Store(http.StatusServiceUnavailable)
	if err := client.Health(context.Background()); err == nil {
		t.Fatal("expected unhealthy")
	}
	if client.Cache().Len() != 0 {
		t.Fatal("health must not be cached")
	}
}

func TestSearchWrongShapeKeepsPriorEntry(t *testing.T) {
	fb, srv := newFakeBackend(t)
	c := cache.New()
	client := newTestClient(srv, c)
	ctx := context.Background()
	p := search.Params{Keyword: "climate"}.WithPage(1, 10)

	fb.body.Store(`{"total":1,"posts":[{"id":"p1"}]}`)
	_, first, err := client.SearchPosts(ctx, p, Options{})
	if err != nil {
		t.Fatal(err)
	}

	fb.body.Store(`[1,2,3]`)
	_, _, err = client.SearchPosts(ctx, p, Options{ForceRefresh: true})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
	got, ok := c.Get(first.Fingerprint)
	if !ok || string(got) != `{"total":1,"posts":[{"id":"p1"}]}` {
		t.Fatalf("prior entry lost: ok=%v payload=%q", ok, got)
	}

	results, res, err := client.SearchPosts(ctx, p, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache || len(results.Posts) != 1 || results.Posts[0].ID != "p1" {
		t.Fatalf("unexpected cached search %+v from_cache=%v", results, res.FromCache)
	}
}

func TestSearchWrongShapeIsNeverStored(t *testing.T) {
	fb, srv := newFakeBackend(t)
	c := cache.New()
	client := newTestClient(srv, c)
	fb.body.Store(`"just a string"`)

	if _, _, err := client.SearchPosts(context.Background(), search.Params{Keyword: "x"}, Options{}); err == nil {
		t.Fatal("expected an error")
	}
	if c.Len() != 0 || c.Stats().Sets != 0 {
		t.Fatalf("wrong-shaped body reached the cache: %+v", c.Stats())
	}
}
