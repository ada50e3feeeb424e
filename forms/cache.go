package forms

import "time"

// FormCache provides an abstraction for caching form definitions by ID.
// Submissions and visibility checks read the same definition many times
// between edits, so reads go through the cache and mutations invalidate it.
type FormCache interface {
	// Get retrieves a cached form, returns nil on a miss or when expired
	Get(id string) *Form

	// Set stores a form in the cache
	Set(form *Form)

	// Invalidate drops a single form
	Invalidate(id string)

	// Len returns the number of cached forms, expired entries included
	Len() int
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration

	// MaxEntries bounds the cache size. 0 means unbounded.
	MaxEntries int
}

// DefaultCacheConfig returns sensible defaults for form caching
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        5 * time.Minute,
		MaxEntries: 1000,
	}
}
