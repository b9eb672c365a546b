package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS esi_cache (
	key          TEXT PRIMARY KEY,
	entry        JSONB NOT NULL,
	delete_after TIMESTAMPTZ
)`

// Querier is the subset of *pgxpool.Pool used by PostgresCache
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCache stores entries in the esi_cache table
type PostgresCache struct {
	db  Querier
	now func() time.Time
}

// NewPostgresCache creates a cache backed by db. Call EnsureSchema once before use.
func NewPostgresCache(db Querier) *PostgresCache {
	return &PostgresCache{db: db, now: time.Now}
}

// EnsureSchema creates the cache table if it does not exist
func (pc *PostgresCache) EnsureSchema(ctx context.Context) error {
	if _, err := pc.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create esi_cache table: %w", err)
	}
	return nil
}

// Get implements Reader
func (pc *PostgresCache) Get(ctx context.Context, key string) (*Entry, error) {
	var (
		data        []byte
		deleteAfter pgtype.Timestamptz
	)
	err := pc.db.QueryRow(ctx,
		`SELECT entry, delete_after FROM esi_cache WHERE key = $1`, key,
	).Scan(&data, &deleteAfter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCacheNotFound
		}
		return nil, fmt.Errorf("select cache entry: %w", err)
	}
	if deleteAfter.Valid && pc.now().After(deleteAfter.Time) {
		return nil, ErrCacheNotFound
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &entry, nil
}

// Set implements Writer
func (pc *PostgresCache) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	deleteAfter := pgtype.Timestamptz{}
	if ttl > 0 {
		deleteAfter = pgtype.Timestamptz{Time: pc.now().Add(ttl), Valid: true}
	}

	_, err = pc.db.Exec(ctx, `INSERT INTO esi_cache (key, entry, delete_after)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET entry = EXCLUDED.entry, delete_after = EXCLUDED.delete_after`,
		key, string(data), deleteAfter,
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// Forget implements Forgetter
func (pc *PostgresCache) Forget(ctx context.Context, key string) error {
	if _, err := pc.db.Exec(ctx, `DELETE FROM esi_cache WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}
