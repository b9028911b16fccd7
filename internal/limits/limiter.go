package limits

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLimitExceeded = errors.New("rate limit exceeded")

// LimitConfig caps requests per client. Zero disables a limit.
type LimitConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	ParallelRequests  int
}

// RateLimiter enforces fixed-window request counts and a concurrency cap per
// key. It counts in Redis when a client is set and in process memory otherwise.
type RateLimiter struct {
	client *redis.Client
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]memWindow
	active  map[string]int
	swept   int64
}

type memWindow struct {
	count   int
	expires time.Time
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{
		client:  client,
		now:     time.Now,
		windows: make(map[string]memWindow),
		active:  make(map[string]int),
	}
}

// Allow counts one request for key and fails with ErrLimitExceeded when any
// window is full. A successful Allow with ParallelRequests set must be
// paired with Release.
func (l *RateLimiter) Allow(ctx context.Context, key string, cfg LimitConfig) error {
	if l == nil {
		return nil
	}
	windows := []struct {
		prefix string
		ttl    time.Duration
		limit  int
	}{
		{"rpm", time.Minute, cfg.RequestsPerMinute},
		{"rph", time.Hour, cfg.RequestsPerHour},
		{"rpd", 24 * time.Hour, cfg.RequestsPerDay},
	}
	for _, w := range windows {
		if w.limit <= 0 {
			continue
		}
		if err := l.countCheck(ctx, fmt.Sprintf("%s:%s", w.prefix, key), w.ttl, w.limit); err != nil {
			return err
		}
	}
	if cfg.ParallelRequests > 0 {
		if err := l.semaphoreAcquire(ctx, fmt.Sprintf("sem:%s", key), cfg.ParallelRequests); err != nil {
			return err
		}
	}
	return nil
}

func (l *RateLimiter) Release(ctx context.Context, key string, cfg LimitConfig) {
	if l == nil {
		return
	}
	if cfg.ParallelRequests > 0 {
		l.semaphoreRelease(ctx, fmt.Sprintf("sem:%s", key))
	}
}

func (l *RateLimiter) countCheck(ctx context.Context, key string, ttl time.Duration, limit int) error {
	now := l.now().UTC()
	bucket := now.Unix() / int64(ttl.Seconds())
	windowKey := fmt.Sprintf("%s:%d", key, bucket)

	if l.client == nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.sweepLocked(now)
		w, ok := l.windows[windowKey]
		if !ok {
			w.expires = time.Unix((bucket+1)*int64(ttl.Seconds()), 0)
		}
		w.count++
		l.windows[windowKey] = w
		if w.count > limit {
			return ErrLimitExceeded
		}
		return nil
	}

	cnt, err := l.client.Incr(ctx, windowKey).Result()
	if err != nil {
		return err
	}
	if cnt == 1 {
		l.client.Expire(ctx, windowKey, ttl)
	}
	if int(cnt) > limit {
		return ErrLimitExceeded
	}
	return nil
}

// sweepLocked drops closed in-memory windows, at most once per minute.
func (l *RateLimiter) sweepLocked(now time.Time) {
	minute := now.Unix() / 60
	if minute == l.swept {
		return
	}
	l.swept = minute
	for k, w := range l.windows {
		if !now.Before(w.expires) {
			delete(l.windows, k)
		}
	}
}

func (l *RateLimiter) semaphoreAcquire(ctx context.Context, key string, max int) error {
	if l.client == nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.active[key] >= max {
			return ErrLimitExceeded
		}
		l.active[key]++
		return nil
	}

	ttl := 5 * time.Minute
	cnt, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if cnt == 1 {
		l.client.Expire(ctx, key, ttl)
	}
	if int(cnt) > max {
		l.client.Decr(ctx, key)
		return ErrLimitExceeded
	}
	return nil
}

func (l *RateLimiter) semaphoreRelease(ctx context.Context, key string) {
	if l.client == nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.active[key] <= 1 {
			delete(l.active, key)
			return
		}
		l.active[key]--
		return
	}
	l.client.Decr(ctx, key)
}
