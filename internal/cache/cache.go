// Package cache memoizes generated replies keyed by prompt text.
package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
)

const (
	DefaultTimeout    = time.Hour
	DefaultMaxEntries = 1000
	DefaultEvictBatch = 200
)

// ResponseCache maps a normalized prompt to a reply. Implementations never
// normalize keys themselves; callers pass NormalizeKey output. Every key,
// the empty string included, is stored as given.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Put(ctx context.Context, key, value string)
}

// Options shared by the cache implementations.
type Options struct {
	Timeout    time.Duration
	MaxEntries int
	EvictBatch int
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.EvictBatch <= 0 {
		o.EvictBatch = DefaultEvictBatch
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// NormalizeKey case-folds and trims a prompt for use as a cache key.
func NormalizeKey(prompt string) string {
	return strings.ToLower(strings.TrimSpace(prompt))
}

// Stats counts lookups.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Observer receives one call per lookup.
type Observer interface {
	RecordCacheLookup(hit bool)
}

type counters struct {
	hits     atomic.Uint64
	misses   atomic.Uint64
	observer Observer
}

func (c *counters) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.observer != nil {
		c.observer.RecordCacheLookup(hit)
	}
}

func (c *counters) stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
