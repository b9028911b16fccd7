package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kruthika/companion/internal/timeutil"
)

const redisRecordTTL = 48 * time.Hour

// RedisStore keeps one hash per user per day so counters survive restarts and
// are shared between replicas. Old days expire on their own.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, userID string, day timeutil.Day) (UsageRecord, bool, error) {
	if s == nil || s.client == nil {
		return UsageRecord{}, false, nil
	}
	values, err := s.client.HGetAll(ctx, usageKey(userID, day)).Result()
	if err != nil {
		return UsageRecord{}, false, err
	}
	if len(values) == 0 {
		return UsageRecord{}, false, nil
	}
	rec, err := decodeRecord(userID, day, values)
	if err != nil {
		return UsageRecord{}, false, err
	}
	return rec, true, nil
}

func (s *RedisStore) Set(ctx context.Context, rec UsageRecord) error {
	if s == nil || s.client == nil {
		return nil
	}
	if rec.TokensConsumed < 0 {
		rec.TokensConsumed = 0
	}
	key := usageKey(rec.UserID, rec.Day)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "tokens", rec.TokensConsumed, "reset_at", rec.LastResetAt.UnixMilli())
	pipe.Expire(ctx, key, redisRecordTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Add(ctx context.Context, userID string, day timeutil.Day, tokens int64, now time.Time) (UsageRecord, error) {
	if s == nil || s.client == nil {
		return UsageRecord{}, errors.New("redis store not configured")
	}
	key := usageKey(userID, day)
	pipe := s.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, "tokens", tokens)
	pipe.HSetNX(ctx, key, "reset_at", now.UnixMilli())
	resetAt := pipe.HGet(ctx, key, "reset_at")
	pipe.Expire(ctx, key, redisRecordTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return UsageRecord{}, err
	}
	rec := UsageRecord{UserID: userID, Day: day, TokensConsumed: incr.Val(), LastResetAt: now}
	if ms, err := resetAt.Int64(); err == nil {
		rec.LastResetAt = time.UnixMilli(ms)
	}
	return rec, nil
}

// Sweep is a no-op: per-day keys carry their own expiry.
func (s *RedisStore) Sweep(context.Context, timeutil.Day) (int, error) {
	return 0, nil
}

func usageKey(userID string, day timeutil.Day) string {
	return fmt.Sprintf("quota:%s:%s", day.String(), userID)
}

func decodeRecord(userID string, day timeutil.Day, values map[string]string) (UsageRecord, error) {
	rec := UsageRecord{UserID: userID, Day: day}
	if raw, ok := values["tokens"]; ok {
		tokens, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return UsageRecord{}, fmt.Errorf("parse tokens: %w", err)
		}
		rec.TokensConsumed = tokens
	}
	if raw, ok := values["reset_at"]; ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return UsageRecord{}, fmt.Errorf("parse reset_at: %w", err)
		}
		rec.LastResetAt = time.UnixMilli(ms)
	}
	return rec, nil
}
