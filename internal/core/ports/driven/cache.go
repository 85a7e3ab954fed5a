package driven

import (
	"context"
	"time"
)

// Cache is a best-effort key/value accelerator. Misses and errors are never
// authoritative; callers fall through to the Repository.
type Cache interface {
	// Get returns the cached bytes for key and whether they were present.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}
