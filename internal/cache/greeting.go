package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Greeting is a stored greeting-on-return message.
type Greeting struct {
	Message  string    `json:"message"`
	StoredAt time.Time `json:"stored_at"`
}

// GreetingCache keeps the last greeting per device so a returning user within
// the freshness window sees the same message instead of a new generation.
// It uses Redis when a client is configured and process memory otherwise.
type GreetingCache struct {
	client    *redis.Client
	freshness time.Duration
	now       func() time.Time

	mu    sync.Mutex
	local map[string]Greeting
}

func NewGreetingCache(client *redis.Client, freshness time.Duration, now func() time.Time) *GreetingCache {
	if freshness <= 0 {
		freshness = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &GreetingCache{client: client, freshness: freshness, now: now, local: make(map[string]Greeting)}
}

// Fresh returns the stored greeting when it is younger than the freshness window.
func (c *GreetingCache) Fresh(ctx context.Context, deviceID string) (Greeting, bool) {
	if c == nil || deviceID == "" {
		return Greeting{}, false
	}
	g, ok := c.load(ctx, deviceID)
	if !ok || c.now().Sub(g.StoredAt) >= c.freshness {
		return Greeting{}, false
	}
	return g, true
}

// Set records message as the device's greeting as of now.
func (c *GreetingCache) Set(ctx context.Context, deviceID, message string) {
	if c == nil || deviceID == "" || message == "" {
		return
	}
	g := Greeting{Message: message, StoredAt: c.now()}
	if c.client == nil {
		c.mu.Lock()
		c.local[deviceID] = g
		c.mu.Unlock()
		return
	}
	data, err := json.Marshal(g)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.prefixed(deviceID), data, c.freshness)
}

func (c *GreetingCache) load(ctx context.Context, deviceID string) (Greeting, bool) {
	if c.client == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		g, ok := c.local[deviceID]
		return g, ok
	}
	data, err := c.client.Get(ctx, c.prefixed(deviceID)).Bytes()
	if err != nil {
		return Greeting{}, false
	}
	var g Greeting
	if err := json.Unmarshal(data, &g); err != nil {
		return Greeting{}, false
	}
	return g, true
}

func (c *GreetingCache) prefixed(deviceID string) string {
	return "greeting:" + deviceID
}
