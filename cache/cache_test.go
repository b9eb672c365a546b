package cache

import (
	"context"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry() *Entry {
	h := http.Header{}
	h.Set("ETag", `W/"abc"`)
	h.Set("Expires", "Sat, 28 Jan 4017 05:46:49 GMT")
	return &Entry{
		Body:       []byte(`{"foo":"bar"}`),
		StatusCode: http.StatusOK,
		Header:     h,
		Expires:    time.Date(4017, 1, 28, 5, 46, 49, 0, time.UTC),
		ETag:       `W/"abc"`,
		FetchedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// storeContract exercises the behaviour every backend must share
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrCacheNotFound)

	want := testEntry()
	require.NoError(t, s.Set(ctx, "k1", want, time.Hour))

	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, want.Body, got.Body)
	assert.Equal(t, want.ETag, got.ETag)
	assert.Equal(t, want.StatusCode, got.StatusCode)
	assert.True(t, want.Expires.Equal(got.Expires))
	assert.Equal(t, want.Header.Get("Expires"), got.Header.Get("Expires"))

	// overwrite
	updated := want.Clone()
	updated.ETag = `W/"def"`
	require.NoError(t, s.Set(ctx, "k1", updated, 0))
	got, err = s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, `W/"def"`, got.ETag)

	require.NoError(t, s.Forget(ctx, "k1"))
	_, err = s.Get(ctx, "k1")
	require.ErrorIs(t, err, ErrCacheNotFound)

	// forgetting an unknown key is not an error
	require.NoError(t, s.Forget(ctx, "never-set"))
}

func TestEntryFresh(t *testing.T) {
	now := time.Now()

	e := &Entry{Expires: now.Add(time.Minute)}
	assert.True(t, e.Fresh(now))

	e.Expires = now
	assert.False(t, e.Fresh(now), "expiry at request time is stale")

	e.Expires = time.Time{}
	assert.False(t, e.Fresh(now), "missing Expires is always stale")
}

func TestEntryCloneIsDeep(t *testing.T) {
	e := testEntry()
	c := e.Clone()
	c.Body[0] = 'X'
	c.Header.Set("ETag", "changed")

	assert.Equal(t, byte('{'), e.Body[0])
	assert.Equal(t, `W/"abc"`, e.Header.Get("ETag"))
	assert.Nil(t, (*Entry)(nil).Clone())
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint("get", "https://esi.evetech.net/latest/foo/?datasource=tranquility", nil)

	assert.Len(t, base, 32)
	assert.Equal(t, base, Fingerprint("GET", "https://esi.evetech.net/latest/foo/?datasource=tranquility", nil),
		"method is case-insensitive")
	assert.NotEqual(t, base, Fingerprint("post", "https://esi.evetech.net/latest/foo/?datasource=tranquility", nil))
	assert.NotEqual(t, base, Fingerprint("get", "https://esi.evetech.net/latest/bar/?datasource=tranquility", nil))
	assert.NotEqual(t, base, Fingerprint("get", "https://esi.evetech.net/latest/foo/?datasource=tranquility", []byte(`[1]`)))
}

func TestSanitizeForFilename(t *testing.T) {
	assert.Equal(t, "a_b_c_d", sanitizeForFilename("a/b:c?d"))

	long := strings.Repeat("x", 250)
	got := sanitizeForFilename(long)
	assert.True(t, strings.HasPrefix(got, "hash_"))
	assert.Len(t, got, len("hash_")+32)
}

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	var s Store = NullCache{}

	require.NoError(t, s.Set(ctx, "k", testEntry(), time.Hour))
	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrCacheNotFound)
	require.NoError(t, s.Forget(ctx, "k"))
}

func TestMemoryCache(t *testing.T) {
	storeContract(t, NewMemoryCache())
}

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	mc := NewMemoryCacheWithClock(func() time.Time { return now })

	require.NoError(t, mc.Set(ctx, "k", testEntry(), time.Minute))
	_, err := mc.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = mc.Get(ctx, "k")
	require.ErrorIs(t, err, ErrCacheNotFound)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	require.NoError(t, mc.Set(ctx, "k", testEntry(), 0))

	got, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	got.Body = []byte("mutated")

	again, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"foo":"bar"}`, string(again.Body))
}

func TestFileCache(t *testing.T) {
	fc, err := NewFileCache(afero.NewMemMapFs(), "/cache/esi")
	require.NoError(t, err)
	storeContract(t, fc)
}

func TestFileCacheTTL(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	fc, err := NewFileCache(fs, "/cache")
	require.NoError(t, err)
	now := time.Now()
	fc.now = func() time.Time { return now }

	require.NoError(t, fc.Set(ctx, "k", testEntry(), time.Minute))
	exists, err := afero.Exists(fs, fc.path("k"))
	require.NoError(t, err)
	assert.True(t, exists)

	now = now.Add(time.Hour)
	_, err = fc.Get(ctx, "k")
	require.ErrorIs(t, err, ErrCacheNotFound)

	exists, err = afero.Exists(fs, fc.path("k"))
	require.NoError(t, err)
	assert.False(t, exists, "expired file should be removed on read")
}

func TestFileCacheLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	fc, err := NewFileCache(fs, "/cache")
	require.NoError(t, err)

	require.NoError(t, fc.Set(ctx, "k", testEntry(), 0))
	require.NoError(t, fc.Set(ctx, "k", testEntry(), 0))

	files, err := afero.ReadDir(fs, "/cache")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "k.json", files[0].Name())
}

func TestFileCacheCorruptFile(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	fc, err := NewFileCache(fs, "/cache")
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, fc.path("bad"), []byte("not json"), 0o600))
	_, err = fc.Get(ctx, "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheNotFound)
}

func TestNewFileCacheRequiresDir(t *testing.T) {
	_, err := NewFileCache(afero.NewMemMapFs(), "")
	require.Error(t, err)
}

func TestPostgresCache(t *testing.T) {
	db := newFakeQuerier()
	pc := NewPostgresCache(db)
	require.NoError(t, pc.EnsureSchema(context.Background()))
	assert.True(t, db.schemaCreated)
	storeContract(t, pc)
}

func TestPostgresCacheTTL(t *testing.T) {
	ctx := context.Background()
	pc := NewPostgresCache(newFakeQuerier())
	now := time.Now()
	pc.now = func() time.Time { return now }

	require.NoError(t, pc.Set(ctx, "k", testEntry(), time.Minute))
	_, err := pc.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = pc.Get(ctx, "k")
	require.ErrorIs(t, err, ErrCacheNotFound)
}

// TestRedisCache runs against a live redis; skipped unless REDIS_ADDR is set
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis cache test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())

	rc := NewRedisCache(client, "esi:test:"+time.Now().Format("150405.000000")+":")
	defer func() { _ = rc.Close() }()
	storeContract(t, rc)
}

func TestNewRedisCacheDefaultPrefix(t *testing.T) {
	rc := NewRedisCache(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	defer func() { _ = rc.Close() }()
	assert.Equal(t, DefaultRedisPrefix, rc.prefix)
}
