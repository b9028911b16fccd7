package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisValuePrefix = "respcache:v:"
	redisIndexKey    = "respcache:idx"
)

type redisEntry struct {
	Value    string `json:"value"`
	StoredAt int64  `json:"stored_at"`
}

// RedisCache shares the response cache between replicas. A sorted set scored
// by store time drives the same oldest-first sweep as MemoryCache.
type RedisCache struct {
	client *redis.Client
	opts   Options
	logger *slog.Logger
	counters
}

func NewRedisCache(client *redis.Client, opts Options, observer Observer, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &RedisCache{client: client, opts: opts.withDefaults(), logger: logger}
	c.observer = observer
	return c
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	data, err := c.client.Get(ctx, c.valueKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("response cache read failed", slog.String("error", err.Error()))
		}
		c.record(false)
		return "", false
	}
	var entry redisEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.record(false)
		return "", false
	}
	if c.opts.Now().Sub(time.UnixMilli(entry.StoredAt)) >= c.opts.Timeout {
		c.record(false)
		return "", false
	}
	c.record(true)
	return entry.Value, true
}

func (c *RedisCache) Put(ctx context.Context, key, value string) {
	if c == nil || c.client == nil {
		return
	}
	now := c.opts.Now()
	payload, err := json.Marshal(redisEntry{Value: value, StoredAt: now.UnixMilli()})
	if err != nil {
		return
	}
	member := hashKey(key)

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, redisValuePrefix+member, payload, 2*c.opts.Timeout)
	pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	card := pipe.ZCard(ctx, redisIndexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("response cache write failed", slog.String("error", err.Error()))
		return
	}
	if card.Val() > int64(c.opts.MaxEntries) {
		c.evictOldest(ctx, c.opts.EvictBatch)
	}
}

func (c *RedisCache) evictOldest(ctx context.Context, n int) {
	members, err := c.client.ZRange(ctx, redisIndexKey, 0, int64(n-1)).Result()
	if err != nil || len(members) == 0 {
		return
	}
	keys := make([]string, 0, len(members))
	zmembers := make([]interface{}, 0, len(members))
	for _, m := range members {
		keys = append(keys, redisValuePrefix+m)
		zmembers = append(zmembers, m)
	}
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, redisIndexKey, zmembers...)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("response cache eviction failed", slog.String("error", err.Error()))
	}
}

// Len reports the number of indexed entries.
func (c *RedisCache) Len(ctx context.Context) int64 {
	if c == nil || c.client == nil {
		return 0
	}
	n, err := c.client.ZCard(ctx, redisIndexKey).Result()
	if err != nil {
		return 0
	}
	return n
}

// Stats returns hit/miss counts since construction.
func (c *RedisCache) Stats() Stats { return c.stats() }

func (c *RedisCache) valueKey(key string) string {
	return redisValuePrefix + hashKey(key)
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
