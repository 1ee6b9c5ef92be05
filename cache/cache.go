// Package cache holds in-flight pipeline job state keyed by job ID, so a
// client can upload files, generate an outline and draft sections across
// separate requests without re-sending state.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache stores arbitrary job state with an optional per-entry TTL.
// A zero TTL means the entry does not expire.
type Cache interface {
	Set(ctx context.Context, key string, value map[string]any, ttl time.Duration) error
	Get(ctx context.Context, key string) (map[string]any, error)
	// Update merges fields into an existing entry, preserving its TTL.
	Update(ctx context.Context, key string, fields map[string]any) error
	Delete(ctx context.Context, key string) error
	Close() error
}
