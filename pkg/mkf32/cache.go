package mkf32

import (
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a generated key stays servable from the cache.
	DefaultTTL = 5 * time.Minute
	// DefaultCacheSize bounds the number of cached entries.
	DefaultCacheSize = 4096
)

type cacheKey struct {
	uid       string
	sector    int
	algorithm Algorithm
}

type cacheEntry struct {
	result Result
	seq    uint64
}

// Cache stores generated keys by (uid, sector, algorithm). Entries older
// than the TTL are never returned. When full, the oldest entry is evicted.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	now     func() time.Time
	seq     uint64
	entries map[cacheKey]cacheEntry
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// CacheClock sets the time source entries are expired against.
func CacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache returns a cache with the given TTL and size bound.
// Non-positive values select the defaults.
func NewCache(ttl time.Duration, max int, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if max <= 0 {
		max = DefaultCacheSize
	}
	c := &Cache{
		ttl:     ttl,
		max:     max,
		now:     time.Now,
		entries: make(map[cacheKey]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func keyFor(uid []byte, sector int, alg Algorithm) cacheKey {
	return cacheKey{uid: string(uid), sector: sector, algorithm: alg}
}

// Get returns the cached result, dropping it if it has expired.
func (c *Cache) Get(uid []byte, sector int, alg Algorithm) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := keyFor(uid, sector, alg)
	e, ok := c.entries[k]
	if !ok {
		return Result{}, false
	}
	if c.now().Sub(e.result.GeneratedAt) > c.ttl {
		delete(c.entries, k)
		return Result{}, false
	}
	r := e.result
	r.Metadata = copyMetadata(r.Metadata)
	return r, true
}

// Put stores r under (uid, sector, r.Algorithm).
func (c *Cache) Put(uid []byte, sector int, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := keyFor(uid, sector, r.Algorithm)
	if _, exists := c.entries[k]; !exists && len(c.entries) >= c.max {
		c.evictLocked()
	}
	c.seq++
	r.Metadata = copyMetadata(r.Metadata)
	c.entries[k] = cacheEntry{result: r, seq: c.seq}
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// evictLocked drops expired entries, or the oldest one if none expired.
func (c *Cache) evictLocked() {
	now := c.now()
	var oldest cacheKey
	var oldestSeq uint64
	found := false
	for k, e := range c.entries {
		if now.Sub(e.result.GeneratedAt) > c.ttl {
			delete(c.entries, k)
			continue
		}
		if !found || e.seq < oldestSeq {
			oldest, oldestSeq, found = k, e.seq, true
		}
	}
	if len(c.entries) >= c.max && found {
		delete(c.entries, oldest)
	}
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
