// Package cache holds fetched response payloads keyed by request fingerprint.
//
// Entries expire after a per-write TTL. Expired entries are dropped lazily on
// the next lookup, by Sweep/Run, and optionally by a one-shot timer armed on
// each write. Timers carry the generation of the write that armed them, so a
// timer left over from an overwritten entry never removes its successor.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = 5 * time.Minute

type entry struct {
	payload  []byte
	storedAt time.Time
	ttl      time.Duration
	gen      uint64
	timer    Timer
}

// expired reports whether the entry's ttl has fully elapsed at now.
func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.storedAt.Add(e.ttl))
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Items     int    `json:"items"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Sets      uint64 `json:"sets"`
	Evictions uint64 `json:"evictions"`
}

// Cache is a TTL cache of opaque payloads. It is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	items      map[string]*entry
	gen        uint64
	stats      Stats
	clock      Clock
	defaultTTL time.Duration
	timers     bool
	log        zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the system clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(cc *Cache) {
		if c != nil {
			cc.clock = c
		}
	}
}

// WithDefaultTTL sets the ttl used when a write does not specify one.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(cc *Cache) {
		if ttl > 0 {
			cc.defaultTTL = ttl
		}
	}
}

// WithTimers arms a one-shot eviction timer on every write.
func WithTimers() Option {
	return func(cc *Cache) { cc.timers = true }
}

// WithLogger attaches a logger for eviction events.
func WithLogger(log zerolog.Logger) Option {
	return func(cc *Cache) { cc.log = log }
}

// New builds an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		items:      make(map[string]*entry),
		clock:      SystemClock(),
		defaultTTL: DefaultTTL,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the payload stored under key. An expired entry is
// removed and reported as a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if e.expired(now) {
		c.removeLocked(key, e)
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	out := make([]byte, len(e.payload))
	copy(out, e.payload)
	return out, true
}

// Has reports whether Get would hit, with the same eviction side effect.
func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Set stores a copy of payload under key, replacing any previous entry.
func (c *Cache) Set(key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	out := make([]byte, len(payload))
	copy(out, payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.items[key]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	c.gen++
	e := &entry{
		payload:  out,
		storedAt: c.clock.Now(),
		ttl:      ttl,
		gen:      c.gen,
	}
	if c.timers {
		gen := e.gen
		e.timer = c.clock.AfterFunc(ttl, func() { c.expire(key, gen) })
	}
	c.items[key] = e
	c.stats.Sets++
}

// Delete removes key. Deleting a missing key is a no-op.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(c.items, key)
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.items {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	c.items = make(map[string]*entry)
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Items = len(c.items)
	return s
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache) Sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.items {
		if e.expired(now) {
			c.removeLocked(key, e)
			removed++
		}
	}
	return removed
}

// Run sweeps on every tick of interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.log.Debug().Int("removed", n).Msg("cache sweep")
			}
		}
	}
}

// expire is the timer callback. It only removes the entry written by the
// generation that armed the timer.
func (c *Cache) expire(key string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || e.gen != gen {
		return
	}
	c.removeLocked(key, e)
}

func (c *Cache) removeLocked(key string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(c.items, key)
	c.stats.Evictions++
}
