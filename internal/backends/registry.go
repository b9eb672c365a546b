// Package backends maps cache backend names to constructors
package backends

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/briangreenhill/eseye/cache"
	"github.com/briangreenhill/eseye/internal/config"
)

// Backend is an opened cache store and the function that releases it
type Backend struct {
	Name  string
	Store cache.Store
	Close func() error
}

// Opener builds a backend from configuration
type Opener func(ctx context.Context, cfg config.CacheConfig) (*Backend, error)

// Registry manages available cache backends
type Registry struct {
	openers map[string]Opener
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]Opener)}
}

// Default returns a registry with every built-in backend
func Default() *Registry {
	r := NewRegistry()
	r.Register("null", openNull)
	r.Register("memory", openMemory)
	r.Register("file", openFile)
	r.Register("redis", openRedis)
	r.Register("postgres", openPostgres)
	return r
}

// Register adds or replaces the opener for name
func (r *Registry) Register(name string, open Opener) {
	r.openers[name] = open
}

// Get retrieves an opener by name
func (r *Registry) Get(name string) (Opener, bool) {
	open, ok := r.openers[name]
	return open, ok
}

// List returns registered backend names in sorted order
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.openers))
	for name := range r.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the backend named by cfg.Backend
func (r *Registry) Open(ctx context.Context, cfg config.CacheConfig) (*Backend, error) {
	open, ok := r.Get(cfg.Backend)
	if !ok {
		return nil, fmt.Errorf("unknown cache backend %q (have %v)", cfg.Backend, r.List())
	}
	b, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Backend, err)
	}
	b.Name = cfg.Backend
	if b.Close == nil {
		b.Close = func() error { return nil }
	}
	return b, nil
}

func openNull(context.Context, config.CacheConfig) (*Backend, error) {
	return &Backend{Store: cache.NullCache{}}, nil
}

func openMemory(context.Context, config.CacheConfig) (*Backend, error) {
	return &Backend{Store: cache.NewMemoryCache()}, nil
}

func openFile(_ context.Context, cfg config.CacheConfig) (*Backend, error) {
	var (
		fc  *cache.FileCache
		err error
	)
	if cfg.Dir == "" {
		fc, err = cache.NewDefaultFileCache("")
	} else {
		fc, err = cache.NewFileCache(afero.NewOsFs(), cfg.Dir)
	}
	if err != nil {
		return nil, err
	}
	return &Backend{Store: fc}, nil
}

func openRedis(ctx context.Context, cfg config.CacheConfig) (*Backend, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	rc := cache.NewRedisCache(client, "")
	return &Backend{Store: rc, Close: rc.Close}, nil
}

func openPostgres(ctx context.Context, cfg config.CacheConfig) (*Backend, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	pc := cache.NewPostgresCache(pool)
	if err := pc.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Backend{
		Store: pc,
		Close: func() error {
			pool.Close()
			return nil
		},
	}, nil
}
