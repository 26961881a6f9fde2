package cache

import (
	"sync"
	"time"
)

// DefaultTTL is the lifetime of an entry stored without an explicit TTL.
const DefaultTTL = 5 * time.Minute

// TTLCache is a key→{expires, value} table with least-recently-used eviction.
type TTLCache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	maxEntries int
	defaultTTL time.Duration
	stats      Stats
	now        func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

type cacheEntry struct {
	value    any
	expires  time.Time
	accessed time.Time
	hits     int64
}

// Stats counts cache activity since creation or the last Clear.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	CleanupRuns int64 `json:"cleanup_runs"`
	Entries     int   `json:"entries"`
}

// HitRatio is hits / (hits + misses), 0 before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Option configures a TTLCache.
type Option func(*TTLCache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TTLCache) { c.now = now }
}

// WithCleanupInterval starts a background sweep of expired entries. Stop ends it.
func WithCleanupInterval(every time.Duration) Option {
	return func(c *TTLCache) {
		if every > 0 {
			go c.cleanup(every)
		}
	}
}

// NewTTLCache creates a cache holding at most maxEntries values (unbounded when <= 0).
func NewTTLCache(maxEntries int, defaultTTL time.Duration, opts ...Option) *TTLCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	c := &TTLCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key if present and not expired. Expired entries are dropped.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	now := c.now()
	if !now.Before(entry.expires) {
		delete(c.entries, key)
		c.stats.Misses++
		return nil, false
	}

	entry.accessed = now
	entry.hits++
	c.stats.Hits++
	return entry.value, true
}

// Set stores value under key for ttl (the cache default when ttl <= 0).
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLRU()
	}

	now := c.now()
	c.entries[key] = &cacheEntry{
		value:    value,
		expires:  now.Add(ttl),
		accessed: now,
	}
}

// Delete removes key.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Stats returns a snapshot of the counters.
func (c *TTLCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// Clear removes all entries and resets counters.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.stats = Stats{}
}

// Stop ends the background cleanup goroutine, if any. Safe to call more than once.
func (c *TTLCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// evictLRU removes the least recently accessed entry (caller must hold the write lock).
func (c *TTLCache) evictLRU() {
	var (
		oldestKey  string
		oldestTime time.Time
		found      bool
	)
	for key, entry := range c.entries {
		if !found || entry.accessed.Before(oldestTime) {
			oldestKey, oldestTime, found = key, entry.accessed, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}

func (c *TTLCache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.RemoveExpired()
		}
	}
}

// RemoveExpired drops every expired entry and returns how many were removed.
func (c *TTLCache) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expires) {
			delete(c.entries, key)
			removed++
		}
	}
	c.stats.CleanupRuns++
	return removed
}
