package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type steppingClock struct {
	t time.Time
}

func (s *steppingClock) now() time.Time { return s.t }

func newClock() *steppingClock {
	return &steppingClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestNormalizeKey(t *testing.T) {
	require.Equal(t, "hi there", NormalizeKey("  Hi There \n"))
	require.Equal(t, "", NormalizeKey("   "))
}

func TestMemoryCacheFreshness(t *testing.T) {
	clock := newClock()
	c := NewMemoryCache(Options{Now: clock.now}, nil)
	ctx := context.Background()

	c.Put(ctx, "hi", "hello")
	clock.t = clock.t.Add(59 * time.Minute)
	got, ok := c.Get(ctx, "hi")
	require.True(t, ok)
	require.Equal(t, "hello", got)

	clock.t = clock.t.Add(time.Minute)
	_, ok = c.Get(ctx, "hi")
	require.False(t, ok, "entry expires once timeout has elapsed")
	require.Equal(t, 1, c.Len(), "expired entries are not deleted on read")

	require.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())
}

func TestMemoryCacheOverwriteRefreshesTimestamp(t *testing.T) {
	clock := newClock()
	c := NewMemoryCache(Options{Now: clock.now}, nil)
	ctx := context.Background()

	c.Put(ctx, "hi", "hello")
	clock.t = clock.t.Add(50 * time.Minute)
	c.Put(ctx, "hi", "hey")
	clock.t = clock.t.Add(50 * time.Minute)

	got, ok := c.Get(ctx, "hi")
	require.True(t, ok)
	require.Equal(t, "hey", got)
}

func TestMemoryCacheDoesNotNormalize(t *testing.T) {
	c := NewMemoryCache(Options{}, nil)
	ctx := context.Background()

	c.Put(ctx, "hi", "hello")
	_, ok := c.Get(ctx, "HI ")
	require.False(t, ok)
	_, ok = c.Get(ctx, NormalizeKey("HI "))
	require.True(t, ok)
}

func TestMemoryCacheEvictsOldestBatch(t *testing.T) {
	clock := newClock()
	c := NewMemoryCache(Options{Now: clock.now}, nil)
	ctx := context.Background()

	for i := 0; i < 1001; i++ {
		clock.t = clock.t.Add(time.Millisecond)
		c.Put(ctx, fmt.Sprintf("k%04d", i), "v")
	}

	require.Equal(t, 801, c.Len())
	for i := 0; i < 200; i++ {
		_, ok := c.Get(ctx, fmt.Sprintf("k%04d", i))
		require.False(t, ok, "k%04d should have been evicted", i)
	}
	for i := 200; i < 1001; i++ {
		_, ok := c.Get(ctx, fmt.Sprintf("k%04d", i))
		require.True(t, ok, "k%04d should remain", i)
	}
}

func TestMemoryCacheEvictionIgnoresExpiry(t *testing.T) {
	clock := newClock()
	c := NewMemoryCache(Options{Now: clock.now, MaxEntries: 3, EvictBatch: 2}, nil)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c", "d"} {
		c.Put(ctx, k, k)
	}
	// Same timestamp for all entries: insertion order breaks the tie.
	require.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "a")
	require.False(t, ok)
	_, ok = c.Get(ctx, "d")
	require.True(t, ok)
}

type lookupObserver struct {
	hits, misses int
}

func (o *lookupObserver) RecordCacheLookup(hit bool) {
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func newTestRedisCache(t *testing.T, opts Options, obs Observer) (*RedisCache, *redis.Client) {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewRedisCache(client, opts, obs, nil), client
}

func TestRedisCacheFreshness(t *testing.T) {
	clock := newClock()
	obs := &lookupObserver{}
	c, _ := newTestRedisCache(t, Options{Now: clock.now}, obs)
	ctx := context.Background()

	c.Put(ctx, "hi", "hello")
	got, ok := c.Get(ctx, "hi")
	require.True(t, ok)
	require.Equal(t, "hello", got)

	clock.t = clock.t.Add(time.Hour)
	_, ok = c.Get(ctx, "hi")
	require.False(t, ok)
	_, ok = c.Get(ctx, "missing")
	require.False(t, ok)

	require.Equal(t, 1, obs.hits)
	require.Equal(t, 2, obs.misses)
}

func TestRedisCacheEvictsOldest(t *testing.T) {
	clock := newClock()
	c, _ := newTestRedisCache(t, Options{Now: clock.now, MaxEntries: 10, EvictBatch: 4}, nil)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		clock.t = clock.t.Add(time.Second)
		c.Put(ctx, fmt.Sprintf("k%02d", i), "v")
	}

	require.Equal(t, int64(7), c.Len(ctx))
	for i := 0; i < 4; i++ {
		_, ok := c.Get(ctx, fmt.Sprintf("k%02d", i))
		require.False(t, ok)
	}
	_, ok := c.Get(ctx, "k10")
	require.True(t, ok)
}

func TestEmptyKeyIsStoredByBothBackends(t *testing.T) {
	clock := newClock()
	opts := Options{Now: clock.now}
	redisCache, _ := newTestRedisCache(t, opts, nil)
	backends := map[string]ResponseCache{
		"memory": NewMemoryCache(opts, nil),
		"redis":  redisCache,
	}
	ctx := context.Background()
	for name, c := range backends {
		_, ok := c.Get(ctx, "")
		require.False(t, ok, name)
		c.Put(ctx, "", "blank")
		got, ok := c.Get(ctx, "")
		require.True(t, ok, name)
		require.Equal(t, "blank", got, name)
	}
}

func TestRedisCacheNilClientIsMiss(t *testing.T) {
	c := NewRedisCache(nil, Options{}, nil, nil)
	c.Put(context.Background(), "hi", "hello")
	_, ok := c.Get(context.Background(), "hi")
	require.False(t, ok)
}

func TestGreetingCacheFreshnessInMemory(t *testing.T) {
	clock := newClock()
	g := NewGreetingCache(nil, time.Hour, clock.now)
	ctx := context.Background()

	_, ok := g.Fresh(ctx, "dev1")
	require.False(t, ok)

	g.Set(ctx, "dev1", "Missed me?")
	got, ok := g.Fresh(ctx, "dev1")
	require.True(t, ok)
	require.Equal(t, "Missed me?", got.Message)

	clock.t = clock.t.Add(time.Hour)
	_, ok = g.Fresh(ctx, "dev1")
	require.False(t, ok)
}

func TestGreetingCacheRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	clock := newClock()
	g := NewGreetingCache(client, time.Hour, clock.now)
	ctx := context.Background()

	g.Set(ctx, "dev1", "Hello again!")
	got, ok := g.Fresh(ctx, "dev1")
	require.True(t, ok)
	require.Equal(t, "Hello again!", got.Message)
	require.True(t, server.Exists("greeting:dev1"))

	clock.t = clock.t.Add(61 * time.Minute)
	_, ok = g.Fresh(ctx, "dev1")
	require.False(t, ok)
}
