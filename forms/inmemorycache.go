package forms

import (
	"sync"
	"time"
)

type cacheEntry struct {
	form     *Form
	cachedAt time.Time
}

// InMemoryFormCache is a simple in-memory implementation of FormCache
// Thread-safe for concurrent access
type InMemoryFormCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	now     func() time.Time
	mu      sync.RWMutex
}

// NewInMemoryFormCache creates a new in-memory form cache
func NewInMemoryFormCache(config CacheConfig) *InMemoryFormCache {
	return &InMemoryFormCache{
		entries: make(map[string]cacheEntry),
		config:  config,
		now:     time.Now,
	}
}

// Get retrieves a cached form
// Returns nil if the form is not cached or expired
func (c *InMemoryFormCache) Get(id string) *Form {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil
	}

	if c.config.TTL > 0 && c.now().Sub(entry.cachedAt) > c.config.TTL {
		return nil
	}

	// Return copy to prevent external modifications
	formCopy := *entry.form
	formCopy.Questions = append([]Question(nil), entry.form.Questions...)
	return &formCopy
}

// Set stores a form in the cache
func (c *InMemoryFormCache) Set(form *Form) {
	if form == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.MaxEntries > 0 && len(c.entries) >= c.config.MaxEntries {
		if _, replacing := c.entries[form.ID]; !replacing {
			c.evictOldestLocked()
		}
	}

	// Store copy to prevent external modifications
	formCopy := *form
	formCopy.Questions = append([]Question(nil), form.Questions...)
	c.entries[form.ID] = cacheEntry{form: &formCopy, cachedAt: c.now()}
}

// Invalidate drops a form from the cache
func (c *InMemoryFormCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}

// Len returns the number of cached entries
func (c *InMemoryFormCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *InMemoryFormCache) evictOldestLocked() {
	var (
		oldestID string
		oldestAt time.Time
	)
	for id, entry := range c.entries {
		if oldestID == "" || entry.cachedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = entry.cachedAt
		}
	}
	delete(c.entries, oldestID)
}
