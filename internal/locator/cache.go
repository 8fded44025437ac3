package locator

import (
	"sync"
)

// Cache is the in-memory message id → Locator mapping with a coarse,
// wholesale periodic invalidation (spec.md §3, §4.1). Deliberately not a
// per-entry-TTL cache: file_reference opacity makes precise expiry
// unprofitable, so the whole map is swept together on a fixed interval
// (ported from custom_dl.py::clean_cache).
type Cache struct {
	mu      sync.RWMutex
	entries map[int64]Locator
}

// NewCache returns an empty cache. The caller (engine.Engine) is
// responsible for driving Sweep on a ticker.
func NewCache() *Cache {
	return &Cache{entries: make(map[int64]Locator)}
}

// Get returns the cached Locator for messageID, if present.
func (c *Cache) Get(messageID int64) (Locator, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.entries[messageID]
	return l, ok
}

// Set installs loc for messageID.
func (c *Cache) Set(messageID int64, loc Locator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[messageID] = loc
}

// Evict removes a single entry, used on a StaleReference error so the next
// Resolve call is forced to refetch (spec.md §9 Open Question, decided in
// DESIGN.md).
func (c *Cache) Evict(messageID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, messageID)
}

// Sweep discards every cached entry. Idempotent: sweeping an empty or
// already-swept cache leaves it empty without error (spec.md §8 property 6).
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int64]Locator)
}

// Len reports the current entry count, used by tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
