// Package cache provides a unified caching interface for ESI responses
// with support for ETag revalidation and Expires-based freshness.
package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrCacheNotFound is returned when a cache entry is not found or was evicted
	ErrCacheNotFound = errors.New("cache entry not found")
)

// Entry represents a cached response with metadata
type Entry struct {
	Body       []byte      `json:"body"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header,omitempty"`
	Expires    time.Time   `json:"expires"`
	ETag       string      `json:"etag,omitempty"`
	FetchedAt  time.Time   `json:"fetched_at"`
}

// Fresh reports whether the entry's Expires timestamp is still in the future.
// An entry without an Expires timestamp is never fresh.
func (e *Entry) Fresh(now time.Time) bool {
	return !e.Expires.IsZero() && e.Expires.After(now)
}

// Clone returns a deep copy so callers can't mutate stored state
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Body = append([]byte(nil), e.Body...)
	c.Header = e.Header.Clone()
	return &c
}

// Reader defines the interface for reading cache entries
type Reader interface {
	// Get returns the entry for key, or ErrCacheNotFound on a miss
	Get(ctx context.Context, key string) (*Entry, error)
}

// Writer defines the interface for writing cache entries
type Writer interface {
	// Set stores entry under key. ttl is a retention hint; ttl <= 0 means
	// the backend keeps the entry until it evicts it on its own.
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
}

// Forgetter removes cache entries
type Forgetter interface {
	Forget(ctx context.Context, key string) error
}

// Store is the main interface that combines all cache operations
type Store interface {
	Reader
	Writer
	Forgetter
}
