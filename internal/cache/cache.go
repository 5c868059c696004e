// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/groupcache/lru"
)

// ErrInvalidCapacity is returned by New for a capacity below one.
var ErrInvalidCapacity = errors.New("cache capacity must be at least 1")

// KeyFunc derives the cache key for a prompt and model.
type KeyFunc func(prompt, model string) uint64

// Key hashes prompt and model with xxhash. The NUL separator keeps
// ("ab", "c") and ("a", "bc") apart.
func Key(prompt, model string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(prompt)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(model)
	return d.Sum64()
}

// =============================================================================
// RESPONSE CACHE
// =============================================================================

// ResponseCache is a fixed-capacity LRU of full response texts. Both Get
// and Put refresh recency. It is safe for concurrent use.
type ResponseCache struct {
	mu       sync.Mutex
	entries  *lru.Cache
	capacity int
	key      KeyFunc
	hits     uint64
	misses   uint64
}

// Option configures a ResponseCache.
type Option func(*ResponseCache)

// WithKeyFunc replaces the key derivation.
func WithKeyFunc(fn KeyFunc) Option {
	return func(c *ResponseCache) {
		if fn != nil {
			c.key = fn
		}
	}
}

// New creates a cache holding at most capacity responses.
func New(capacity int, opts ...Option) (*ResponseCache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	c := &ResponseCache{
		entries:  lru.New(capacity),
		capacity: capacity,
		key:      Key,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the cached response for prompt and model.
func (c *ResponseCache) Get(prompt, model string) (string, bool) {
	k := c.key(prompt, model)

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.entries.Get(k); ok {
		c.hits++
		return v.(string), true
	}
	c.misses++
	return "", false
}

// Put stores response, evicting the least recently used entry when full.
func (c *ResponseCache) Put(prompt, model, response string) {
	k := c.key(prompt, model)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(k, response)
}

// Len returns the number of cached responses.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Clear drops every entry. Counters are kept.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Clear()
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *ResponseCache) HitRate() float64 {
	return c.Stats().HitRate
}

// =============================================================================
// STATISTICS
// =============================================================================

// Stats is a snapshot of cache usage.
type Stats struct {
	Entries  int
	Capacity int
	Hits     uint64
	Misses   uint64
	HitRate  float64
}

// Stats returns current usage.
func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:  c.entries.Len(),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// String formats the stats for display.
func (s Stats) String() string {
	return fmt.Sprintf("%d/%d entries, %d hits, %d misses (%.1f%% hit rate)",
		s.Entries, s.Capacity, s.Hits, s.Misses, s.HitRate*100)
}
