package quota

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kruthika/companion/internal/timeutil"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
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
	return NewRedisStore(client), server
}

func TestRedisStoreAddAccumulatesPerDay(t *testing.T) {
	store, server := newTestRedisStore(t)
	ctx := context.Background()
	day := timeutil.Day{Year: 2024, Month: time.June, Dom: 1}
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	rec, err := store.Add(ctx, "u1", day, 100, now)
	require.NoError(t, err)
	require.Equal(t, int64(100), rec.TokensConsumed)
	require.Equal(t, now.UnixMilli(), rec.LastResetAt.UnixMilli())

	rec, err = store.Add(ctx, "u1", day, 50, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(150), rec.TokensConsumed)
	require.Equal(t, now.UnixMilli(), rec.LastResetAt.UnixMilli(), "reset time is set once per day")

	next, err := store.Add(ctx, "u1", day.Next(), 10, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(10), next.TokensConsumed)

	require.True(t, server.Exists("quota:2024-06-01:u1"))
	require.Greater(t, server.TTL("quota:2024-06-01:u1"), time.Duration(0))
}

func TestRedisStoreGetAndSet(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	day := timeutil.Day{Year: 2024, Month: time.June, Dom: 1}

	_, ok, err := store.Get(ctx, "u1", day)
	require.NoError(t, err)
	require.False(t, ok)

	reset := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Set(ctx, UsageRecord{UserID: "u1", Day: day, TokensConsumed: 4200, LastResetAt: reset}))

	rec, ok, err := store.Get(ctx, "u1", day)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(4200), rec.TokensConsumed)
	require.True(t, rec.LastResetAt.Equal(reset))

	removed, err := store.Sweep(ctx, day.Next())
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestLedgerWithRedisStore(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ledger, _ := newTestLedger(t, store)
	ctx := context.Background()

	require.True(t, ledger.CheckAndConsume(ctx, "u1", 3900).Allowed)
	d := ledger.CheckAndConsume(ctx, "u1", 200)
	require.True(t, d.ShouldDelay)
	d = ledger.CheckAndConsume(ctx, "u1", 1000)
	require.False(t, d.Allowed)
}
