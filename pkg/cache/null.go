package cache

import (
	"context"
	"time"
)

// NullCache discards every write and misses every read. It stands in
// wherever metadata caching is disabled or no backend could be opened,
// so callers never branch on a nil cache.
type NullCache struct{}

// NewNullCache returns a cache that never stores anything.
func NewNullCache() Cache {
	return &NullCache{}
}

// Get reports a miss for every key.
func (c *NullCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

// Set discards the entry.
func (c *NullCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return nil
}

// Delete is a no-op.
func (c *NullCache) Delete(ctx context.Context, key string) error {
	return nil
}

// Close is a no-op.
func (c *NullCache) Close() error {
	return nil
}

var _ Cache = (*NullCache)(nil)
