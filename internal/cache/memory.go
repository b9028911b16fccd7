package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	value    string
	storedAt time.Time
	seq      uint64
}

// MemoryCache is a process-wide response cache with time-based expiry and a
// size-triggered sweep of the oldest entries.
type MemoryCache struct {
	opts Options

	mu      sync.Mutex
	entries map[string]memoryEntry
	seq     uint64
	counters
}

func NewMemoryCache(opts Options, observer Observer) *MemoryCache {
	c := &MemoryCache{
		opts:    opts.withDefaults(),
		entries: make(map[string]memoryEntry),
	}
	c.observer = observer
	return c
}

// Get returns the value while it is younger than the timeout. Expired
// entries read as absent and stay in place until a sweep drops them.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.opts.Now().Sub(entry.storedAt) < c.opts.Timeout {
		c.record(true)
		return entry.value, true
	}
	c.record(false)
	return "", false
}

// Put stores the value, then drops the EvictBatch oldest entries when the
// cache holds more than MaxEntries.
func (c *MemoryCache) Put(_ context.Context, key, value string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.entries[key] = memoryEntry{value: value, storedAt: c.opts.Now(), seq: c.seq}
	if len(c.entries) > c.opts.MaxEntries {
		c.evictOldestLocked(c.opts.EvictBatch)
	}
}

func (c *MemoryCache) evictOldestLocked(n int) {
	type aged struct {
		key      string
		storedAt time.Time
		seq      uint64
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, storedAt: e.storedAt, seq: e.seq})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].storedAt.Equal(all[j].storedAt) {
			return all[i].seq < all[j].seq
		}
		return all[i].storedAt.Before(all[j].storedAt)
	})
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}

// Len reports the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit/miss counts since construction.
func (c *MemoryCache) Stats() Stats { return c.stats() }
