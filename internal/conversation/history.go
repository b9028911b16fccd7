package conversation

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kruthika/companion/internal/chatlog"
)

const historyTTL = 7 * 24 * time.Hour

// Activity is the last message seen for a device.
type Activity struct {
	Sender chatlog.Sender
	At     time.Time
}

// History keeps the recent interaction lines and last activity per device.
type History interface {
	Append(ctx context.Context, deviceID string, sender chatlog.Sender, at time.Time, lines ...string) error
	Recent(ctx context.Context, deviceID string, n int) ([]string, error)
	Last(ctx context.Context, deviceID string) (Activity, bool, error)
}

type MemoryHistory struct {
	limit int

	mu    sync.Mutex
	lines map[string][]string
	last  map[string]Activity
}

func NewMemoryHistory(limit int) *MemoryHistory {
	if limit <= 0 {
		limit = 10
	}
	return &MemoryHistory{limit: limit, lines: make(map[string][]string), last: make(map[string]Activity)}
}

func (h *MemoryHistory) Append(_ context.Context, deviceID string, sender chatlog.Sender, at time.Time, lines ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := append(h.lines[deviceID], lines...)
	if len(all) > h.limit {
		all = append([]string(nil), all[len(all)-h.limit:]...)
	}
	h.lines[deviceID] = all
	h.last[deviceID] = Activity{Sender: sender, At: at}
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, deviceID string, n int) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return tail(h.lines[deviceID], n), nil
}

func (h *MemoryHistory) Last(_ context.Context, deviceID string) (Activity, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.last[deviceID]
	return a, ok, nil
}

// RedisHistory stores lines in a capped list and last activity in a hash.
type RedisHistory struct {
	client *redis.Client
	limit  int
}

func NewRedisHistory(client *redis.Client, limit int) *RedisHistory {
	if limit <= 0 {
		limit = 10
	}
	return &RedisHistory{client: client, limit: limit}
}

func (h *RedisHistory) Append(ctx context.Context, deviceID string, sender chatlog.Sender, at time.Time, lines ...string) error {
	listKey, lastKey := historyKey(deviceID), lastActivityKey(deviceID)
	_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(lines) > 0 {
			values := make([]any, len(lines))
			for i, l := range lines {
				values[i] = l
			}
			pipe.RPush(ctx, listKey, values...)
			pipe.LTrim(ctx, listKey, int64(-h.limit), -1)
			pipe.Expire(ctx, listKey, historyTTL)
		}
		pipe.HSet(ctx, lastKey, "sender", string(sender), "at", at.UnixMilli())
		pipe.Expire(ctx, lastKey, historyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (h *RedisHistory) Recent(ctx context.Context, deviceID string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	lines, err := h.client.LRange(ctx, historyKey(deviceID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return lines, nil
}

func (h *RedisHistory) Last(ctx context.Context, deviceID string) (Activity, bool, error) {
	vals, err := h.client.HGetAll(ctx, lastActivityKey(deviceID)).Result()
	if err != nil {
		return Activity{}, false, fmt.Errorf("load last activity: %w", err)
	}
	if len(vals) == 0 {
		return Activity{}, false, nil
	}
	ms, err := strconv.ParseInt(vals["at"], 10, 64)
	if err != nil {
		return Activity{}, false, nil
	}
	return Activity{Sender: chatlog.Sender(vals["sender"]), At: time.UnixMilli(ms)}, true, nil
}

func historyKey(deviceID string) string      { return "interactions:" + deviceID }
func lastActivityKey(deviceID string) string { return "interactions:last:" + deviceID }

func tail(lines []string, n int) []string {
	if n <= 0 || len(lines) == 0 {
		return nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return append([]string(nil), lines...)
}
