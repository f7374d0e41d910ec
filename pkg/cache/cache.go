// Package cache provides the persistent byte cache used for remote
// package metadata. Entries are keyed by canonical package id and carry a
// TTL; the file backend additionally enforces a total-size cap so the
// cache directory cannot grow without bound across runs.
package cache

import (
	"context"
	"time"
)

const (
	// DefaultTTL is how long a cached entry stays valid.
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultMaxBytes caps the total on-disk cache size.
	DefaultMaxBytes = 100 << 20 // 100 MiB
)

// Cache stores opaque byte values under string keys.
type Cache interface {
	// Get retrieves a value. The second return reports whether the key
	// was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value with the given TTL. A TTL of zero means the
	// entry never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases any backend resources.
	Close() error
}
