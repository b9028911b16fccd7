package ads

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kruthika/companion/internal/settings"
)

// SettingsProvider serves merged ad settings from the settings store and
// keeps them refreshed in the background.
type SettingsProvider struct {
	store  settings.Store
	key    string
	logger *slog.Logger

	mu      sync.RWMutex
	current *Settings

	startOnce sync.Once
}

func NewSettingsProvider(store settings.Store, key string, logger *slog.Logger) *SettingsProvider {
	if key == "" {
		key = settings.KeyAdSettings
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsProvider{store: store, key: key, logger: logger}
}

// Current returns the cached settings, loading them on first use. A store
// failure before anything was loaded yields the defaults.
func (p *SettingsProvider) Current(ctx context.Context) *Settings {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	cur := p.current
	p.mu.RUnlock()
	if cur != nil {
		return cur
	}
	if err := p.Refresh(ctx); err != nil {
		p.logger.Warn("load ad settings failed, using defaults", slog.String("error", err.Error()))
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Refresh reloads settings from the store. On error the previous settings are
// kept, or the defaults installed if none were loaded yet.
func (p *SettingsProvider) Refresh(ctx context.Context) error {
	merged, err := p.load(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		if p.current == nil {
			def := DefaultSettings()
			p.current = &def
		}
		return err
	}
	p.current = &merged
	return nil
}

func (p *SettingsProvider) load(ctx context.Context) (Settings, error) {
	if p.store == nil {
		return DefaultSettings(), nil
	}
	rec, err := p.store.Get(ctx, p.key)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}
	partial, err := ParsePartial(rec.Settings)
	if err != nil {
		return Settings{}, err
	}
	return MergeSettings(partial), nil
}

// Set installs settings directly, as after an admin update.
func (p *SettingsProvider) Set(s Settings) {
	p.mu.Lock()
	p.current = &s
	p.mu.Unlock()
}

// Key returns the settings store key.
func (p *SettingsProvider) Key() string { return p.key }

// Start refreshes settings on interval until ctx is canceled.
func (p *SettingsProvider) Start(ctx context.Context, interval time.Duration) {
	if p == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	p.startOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := p.Refresh(ctx); err != nil {
						p.logger.Warn("refresh ad settings failed", slog.String("error", err.Error()))
					}
				}
			}
		}()
	})
}
