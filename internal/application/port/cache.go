package port

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations
type Cache interface {
	// Get retrieves a value from cache. Returns ErrCacheMiss when the key is absent.
	Get(ctx context.Context, key string, dest any) error

	// Set stores a value in cache for ttl (zero means the cache default)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// DeletePattern removes all keys matching pattern
	DeletePattern(ctx context.Context, pattern string) error

	// Close closes the cache connection
	Close() error
}
