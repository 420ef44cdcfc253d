// ABOUTME: In-memory cache of rendered messages keyed by record id and format.
// ABOUTME: Archived messages never change, so entries only expire by TTL and are swept on insert.
package render

import (
	"sync"
	"time"

	"github.com/2389-research/stitch/llm"
)

type cacheEntry struct {
	data      []byte
	createdAt time.Time
}

// Cache wraps a render Func with a TTL cache. It is safe for concurrent use.
type Cache struct {
	render  Func
	ttl     time.Duration
	entries map[string]*cacheEntry
	swept   time.Time
	mu      sync.RWMutex
}

// NewCache creates a Cache around render. A nil render uses Message.
func NewCache(render Func, ttl time.Duration) *Cache {
	if render == nil {
		render = Message
	}
	return &Cache{
		render:  render,
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
		swept:   time.Now(),
	}
}

// Render returns the cached rendering of the message stored under id, or
// renders msg and caches it. Errors are never cached.
func (c *Cache) Render(id string, msg *llm.Message, format string) ([]byte, error) {
	key := id + ":" + format

	c.mu.RLock()
	if entry, ok := c.entries[key]; ok && time.Since(entry.createdAt) < c.ttl {
		c.mu.RUnlock()
		return entry.data, nil
	}
	c.mu.RUnlock()

	data, err := c.render(msg, format)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	c.mu.Lock()
	if now.Sub(c.swept) >= c.ttl {
		c.sweepLocked(now)
	}
	c.entries[key] = &cacheEntry{data: data, createdAt: now}
	c.mu.Unlock()
	return data, nil
}

// sweepLocked drops expired entries. At most one sweep runs per TTL, so an
// expired entry lives no longer than twice the TTL. c.mu must be held.
func (c *Cache) sweepLocked(now time.Time) {
	for key, entry := range c.entries {
		if now.Sub(entry.createdAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
	c.swept = now
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}
