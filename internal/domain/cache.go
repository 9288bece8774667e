package domain

import (
	"context"
	"time"
)

// Cache is the byte-level result cache used in front of the
// repository for prediction lookups. It never holds model bundles
// (the model store owns those) and never holds batch statistics.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
