package cache

import (
	"context"
	"time"
)

// NullCache never retains anything; every Get is a miss.
type NullCache struct{}

func (NullCache) Get(context.Context, string) (*Entry, error) {
	return nil, ErrCacheNotFound
}

func (NullCache) Set(context.Context, string, *Entry, time.Duration) error {
	return nil
}

func (NullCache) Forget(context.Context, string) error {
	return nil
}
