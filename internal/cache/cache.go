// Package cache holds short-lived upstream responses keyed by request.
package cache

import (
	"context"
	"time"
)

// Cache stores JSON-serialisable values with a TTL.
type Cache interface {
	// Get decodes the value stored under key into dest. It reports false on a miss.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores value under key for ttl. A non-positive ttl stores nothing.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}
