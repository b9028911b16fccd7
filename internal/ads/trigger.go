package ads

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Trigger names recorded on directives.
const (
	TriggerMessageCount   = "message_count"
	TriggerInactivity     = "inactivity"
	TriggerUserMedia      = "user_media"
	TriggerProactiveMedia = "proactive_media"
	TriggerExplicit       = "explicit"
)

const (
	minMessagesPerAd            = 2
	defaultInterstitialDuration = 3 * time.Second
)

// SettingsSource returns the current ad settings, nil when not loaded.
type SettingsSource interface {
	Current(ctx context.Context) *Settings
}

// MessageCounter counts messages sent by a device since its last ad.
type MessageCounter interface {
	Incr(ctx context.Context, deviceID string) (int64, error)
	Reset(ctx context.Context, deviceID string) error
}

type TriggerOptions struct {
	Counter              MessageCounter
	Rand                 func() float64
	InterstitialDuration time.Duration
	Logger               *slog.Logger
}

// Trigger turns chat events into fire attempts on the Controller.
type Trigger struct {
	controller   *Controller
	settings     SettingsSource
	counter      MessageCounter
	rand         func() float64
	interstitial time.Duration
	logger       *slog.Logger
}

func NewTrigger(controller *Controller, settings SettingsSource, opts TriggerOptions) *Trigger {
	if opts.Counter == nil {
		opts.Counter = NewMemoryMessageCounter()
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.InterstitialDuration <= 0 {
		opts.InterstitialDuration = defaultInterstitialDuration
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Trigger{
		controller:   controller,
		settings:     settings,
		counter:      opts.Counter,
		rand:         opts.Rand,
		interstitial: opts.InterstitialDuration,
		logger:       opts.Logger,
	}
}

// OnMessage counts the message and fires once the device has sent enough
// messages since its last ad. The count resets only when an ad fired.
func (t *Trigger) OnMessage(ctx context.Context, ref DeviceRef) Outcome {
	s, out, ok := t.current(ctx)
	if !ok {
		return out
	}
	count, err := t.counter.Incr(ctx, ref.DeviceID)
	if err != nil {
		t.logger.Warn("ad message counter failed", slog.String("device_id", ref.DeviceID), slog.String("error", err.Error()))
		return Outcome{Reason: ReasonStoreError}
	}
	if count < int64(max(minMessagesPerAd, s.MessagesPerAdTrigger)) {
		return Outcome{Reason: ReasonNotDue}
	}
	out = t.fire(ctx, ref, s, TriggerMessageCount, "Thanks for chatting!")
	if out.Fired {
		if err := t.counter.Reset(ctx, ref.DeviceID); err != nil {
			t.logger.Warn("ad message counter reset failed", slog.String("device_id", ref.DeviceID), slog.String("error", err.Error()))
		}
	}
	return out
}

// OnInactivity fires with InactivityAdChance after the client reports idling.
func (t *Trigger) OnInactivity(ctx context.Context, ref DeviceRef) Outcome {
	s, out, ok := t.current(ctx)
	if !ok {
		return out
	}
	if t.rand() >= s.InactivityAdChance {
		return Outcome{Reason: ReasonNotDue}
	}
	return t.fire(ctx, ref, s, TriggerInactivity, "Still there? Here's something interesting!")
}

// OnUserMedia fires with UserMediaInterstitialChance when the user sent media.
func (t *Trigger) OnUserMedia(ctx context.Context, ref DeviceRef) Outcome {
	s, out, ok := t.current(ctx)
	if !ok {
		return out
	}
	if t.rand() >= s.UserMediaInterstitialChance {
		return Outcome{Reason: ReasonNotDue}
	}
	return t.fire(ctx, ref, s, TriggerUserMedia, "Just a moment...")
}

// OnProactiveMedia fires before the persona shares an image or audio clip.
func (t *Trigger) OnProactiveMedia(ctx context.Context, ref DeviceRef, personaName string) Outcome {
	s, out, ok := t.current(ctx)
	if !ok {
		return out
	}
	return t.fire(ctx, ref, s, TriggerProactiveMedia, fmt.Sprintf("Loading %s's share...", personaName))
}

// OnExplicit fires for a user-initiated ad open, without an interstitial.
func (t *Trigger) OnExplicit(ctx context.Context, ref DeviceRef) Outcome {
	s, out, ok := t.current(ctx)
	if !ok {
		return out
	}
	return t.controller.TryFireWith(ctx, ref, s, Prompt{Trigger: TriggerExplicit})
}

func (t *Trigger) current(ctx context.Context) (*Settings, Outcome, bool) {
	var s *Settings
	if t.settings != nil {
		s = t.settings.Current(ctx)
	}
	if s == nil {
		return nil, Outcome{Reason: ReasonNotLoaded}, false
	}
	if !s.AdsEnabledGlobally {
		return nil, Outcome{Reason: ReasonDisabled}, false
	}
	return s, Outcome{}, true
}

func (t *Trigger) fire(ctx context.Context, ref DeviceRef, s *Settings, trigger, message string) Outcome {
	return t.controller.TryFireWith(ctx, ref, s, Prompt{
		Trigger:    trigger,
		Message:    message,
		DurationMs: t.interstitial.Milliseconds(),
	})
}

// MemoryMessageCounter keeps per-device message counts in process memory.
type MemoryMessageCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryMessageCounter() *MemoryMessageCounter {
	return &MemoryMessageCounter{counts: make(map[string]int64)}
}

func (c *MemoryMessageCounter) Incr(_ context.Context, deviceID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[deviceID]++
	return c.counts[deviceID], nil
}

func (c *MemoryMessageCounter) Reset(_ context.Context, deviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, deviceID)
	return nil
}

// RedisMessageCounter keeps per-device message counts in Redis. Counts of
// idle devices expire after a day.
type RedisMessageCounter struct {
	client *redis.Client
}

func NewRedisMessageCounter(client *redis.Client) *RedisMessageCounter {
	return &RedisMessageCounter{client: client}
}

func (c *RedisMessageCounter) Incr(ctx context.Context, deviceID string) (int64, error) {
	key := messageCountKey(deviceID)
	cnt, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	c.client.Expire(ctx, key, 24*time.Hour)
	return cnt, nil
}

func (c *RedisMessageCounter) Reset(ctx context.Context, deviceID string) error {
	return c.client.Del(ctx, messageCountKey(deviceID)).Err()
}

func messageCountKey(deviceID string) string {
	return "ads:msgs:" + deviceID
}
