package app

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kruthika/companion/internal/config"
	"github.com/kruthika/companion/internal/limits"
	"github.com/kruthika/companion/internal/requestctx"
	"github.com/kruthika/companion/internal/settings"
)

// RateLimitSettingsKey is the settings record holding persisted limit overrides.
const RateLimitSettingsKey = "rate_limits_v1"

// RateLimitDocument is the stored form of the limit overrides.
type RateLimitDocument struct {
	Default *LimitDocument           `json:"default,omitempty"`
	Devices map[string]LimitDocument `json:"devices,omitempty"`
}

// LimitDocument mirrors limits.LimitConfig; negative values leave the
// inherited value in place.
type LimitDocument struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	RequestsPerHour   int `json:"requests_per_hour"`
	RequestsPerDay    int `json:"requests_per_day"`
	ParallelRequests  int `json:"parallel_requests"`
}

func (d LimitDocument) apply(base limits.LimitConfig) limits.LimitConfig {
	if d.RequestsPerMinute >= 0 {
		base.RequestsPerMinute = d.RequestsPerMinute
	}
	if d.RequestsPerHour >= 0 {
		base.RequestsPerHour = d.RequestsPerHour
	}
	if d.RequestsPerDay >= 0 {
		base.RequestsPerDay = d.RequestsPerDay
	}
	if d.ParallelRequests >= 0 {
		base.ParallelRequests = d.ParallelRequests
	}
	return base
}

// LoadRateLimitDefaults applies persisted overrides (if present) to the container.
func LoadRateLimitDefaults(ctx context.Context, store settings.Store, c *Container) error {
	if store == nil || c == nil {
		return nil
	}
	var doc RateLimitDocument
	if err := settings.Load(ctx, store, RateLimitSettingsKey, &doc); err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return nil
		}
		return err
	}
	c.ApplyRateLimitDocument(doc)
	return nil
}

// ApplyRateLimitDocument replaces every override with the document's,
// layered on the configured defaults.
func (c *Container) ApplyRateLimitDocument(doc RateLimitDocument) {
	c.UpdateRateLimitConfig(c.Config.RateLimits)

	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()
	if doc.Default != nil {
		c.DefaultLimit = doc.Default.apply(c.DefaultLimit)
	}
	c.DeviceRateLimits = make(map[string]limits.LimitConfig, len(doc.Devices))
	for deviceID, override := range doc.Devices {
		if deviceID = strings.TrimSpace(deviceID); deviceID != "" {
			c.DeviceRateLimits[deviceID] = override.apply(c.DefaultLimit)
		}
	}
}

// UpdateRateLimitConfig refreshes the default limit from configuration.
func (c *Container) UpdateRateLimitConfig(cfg config.RateLimitConfig) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()
	c.DefaultLimit = limits.LimitConfig{
		RequestsPerMinute: cfg.RequestsPerMinute,
		RequestsPerHour:   cfg.RequestsPerHour,
		RequestsPerDay:    cfg.RequestsPerDay,
		ParallelRequests:  cfg.ParallelRequests,
	}
}

// UpdateDeviceRateLimit sets or, with a nil cfg, clears a device override.
func (c *Container) UpdateDeviceRateLimit(deviceID string, cfg *limits.LimitConfig) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return
	}
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()
	if c.DeviceRateLimits == nil {
		c.DeviceRateLimits = make(map[string]limits.LimitConfig)
	}
	if cfg == nil {
		delete(c.DeviceRateLimits, deviceID)
		return
	}
	c.DeviceRateLimits[deviceID] = *cfg
}

// EffectiveRateLimit returns the limit applied to a caller.
func (c *Container) EffectiveRateLimit(rc *requestctx.Context) limits.LimitConfig {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	if rc != nil {
		if override, ok := c.DeviceRateLimits[rc.DeviceID]; ok {
			return override
		}
	}
	return c.DefaultLimit
}

// AcquireRateLimits admits one request for the caller. The returned release
// must be called once the request finishes; it is safe to call twice.
func (c *Container) AcquireRateLimits(ctx context.Context, rc *requestctx.Context) (func(), error) {
	key := rc.RateKey()
	if c.RateLimiter == nil || key == "" {
		return func() {}, nil
	}
	cfg := c.EffectiveRateLimit(rc)
	if err := c.RateLimiter.Allow(ctx, key, cfg); err != nil {
		return nil, err
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			c.RateLimiter.Release(context.WithoutCancel(ctx), key, cfg)
		})
	}
	return release, nil
}

// RateLimitSnapshot returns a copy of the default limit and device overrides.
func (c *Container) RateLimitSnapshot() (limits.LimitConfig, map[string]limits.LimitConfig) {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	devices := make(map[string]limits.LimitConfig, len(c.DeviceRateLimits))
	for id, cfg := range c.DeviceRateLimits {
		devices[id] = cfg
	}
	return c.DefaultLimit, devices
}
