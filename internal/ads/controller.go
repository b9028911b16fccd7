package ads

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kruthika/companion/internal/timeutil"
)

// Outcome reasons, also used as metric labels.
const (
	ReasonFired       = "fired"
	ReasonNotLoaded   = "not_loaded"
	ReasonDisabled    = "disabled"
	ReasonSessionCap  = "session_cap"
	ReasonDailyCap    = "daily_cap"
	ReasonNoNetwork   = "no_network"
	ReasonLinkInvalid = "link_invalid"
	ReasonOpenFailed  = "open_failed"
	ReasonStoreError  = "store_error"
	ReasonNotDue      = "not_due"
)

// Outcome reports one fire attempt. Fired is false whenever Reason is not
// ReasonFired.
type Outcome struct {
	Fired     bool
	Network   Network
	Reason    string
	Directive *Directive
}

// Prompt carries the trigger context copied onto the directive.
type Prompt struct {
	Trigger    string
	Message    string
	DurationMs int64
}

// Observer receives one call per fire attempt.
type Observer interface {
	RecordAdOutcome(network, reason string)
}

type ControllerOptions struct {
	Clock    *timeutil.Clock
	Fallback Navigator
	Logger   *slog.Logger
	Observer Observer
}

// Controller enforces caps and rotation for direct-link ads. A slot is
// reserved in the CounterStore before opening and given back if the open
// fails, so concurrent attempts never exceed the caps.
type Controller struct {
	store    CounterStore
	primary  Navigator
	fallback Navigator
	clock    *timeutil.Clock
	logger   *slog.Logger
	observer Observer
}

func NewController(store CounterStore, primary Navigator, opts ControllerOptions) *Controller {
	if store == nil {
		store = NewMemoryCounterStore()
	}
	if primary == nil {
		primary = InlineNavigator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.NewClock(nil, nil)
	}
	return &Controller{
		store:    store,
		primary:  primary,
		fallback: opts.Fallback,
		clock:    clock,
		logger:   logger,
		observer: opts.Observer,
	}
}

// TryFire attempts to open a sponsor link for the device.
func (c *Controller) TryFire(ctx context.Context, ref DeviceRef, settings *Settings) Outcome {
	return c.TryFireWith(ctx, ref, settings, Prompt{})
}

// TryFireWith is TryFire with trigger context attached to the directive.
// A reserved slot is kept only when a navigator accepted the directive.
func (c *Controller) TryFireWith(ctx context.Context, ref DeviceRef, settings *Settings, prompt Prompt) Outcome {
	out := c.tryFire(ctx, ref, settings, prompt)
	if c.observer != nil {
		c.observer.RecordAdOutcome(string(out.Network), out.Reason)
	}
	return out
}

func (c *Controller) tryFire(ctx context.Context, ref DeviceRef, settings *Settings, prompt Prompt) Outcome {
	if c == nil || settings == nil {
		return Outcome{Reason: ReasonNotLoaded}
	}
	if !settings.AdsEnabledGlobally {
		return Outcome{Reason: ReasonDisabled}
	}

	today := c.clock.Today()
	state, capped, err := c.store.Reserve(ctx, ref, today, Caps{
		PerSession: settings.MaxDirectLinkAdsPerSession,
		PerDay:     settings.MaxDirectLinkAdsPerDay,
	})
	if err != nil {
		c.logger.Warn("reserve ad slot failed", slog.String("device_id", ref.DeviceID), slog.String("error", err.Error()))
		return Outcome{Reason: ReasonStoreError}
	}
	if capped != "" {
		return Outcome{Reason: capped}
	}

	network, link, err := pickNetwork(*settings, state.LastNetwork)
	if err != nil {
		c.release(ctx, ref, today)
		if errors.Is(err, ErrNoNetwork) {
			return Outcome{Reason: ReasonNoNetwork}
		}
		c.logger.Debug("no valid ad link",
			slog.String("adsterra_link", settings.AdsterraDirectLink),
			slog.String("monetag_link", settings.MonetagDirectLink))
		return Outcome{Reason: ReasonLinkInvalid}
	}

	directive := Directive{
		Network:    network,
		URL:        link,
		DeviceID:   ref.DeviceID,
		SessionID:  ref.SessionID,
		Trigger:    prompt.Trigger,
		Message:    prompt.Message,
		DurationMs: prompt.DurationMs,
		IssuedAt:   c.clock.Now(),
	}
	if err := c.open(ctx, directive); err != nil {
		c.release(ctx, ref, today)
		c.logger.Warn("ad open failed", slog.String("device_id", ref.DeviceID), slog.String("network", string(network)), slog.String("error", err.Error()))
		return Outcome{Network: network, Reason: ReasonOpenFailed}
	}

	if err := c.store.Commit(ctx, ref, network); err != nil {
		c.logger.Warn("persist ad network failed", slog.String("device_id", ref.DeviceID), slog.String("error", err.Error()))
	}
	return Outcome{Fired: true, Network: network, Reason: ReasonFired, Directive: &directive}
}

// release returns a reserved slot when nothing was opened.
func (c *Controller) release(ctx context.Context, ref DeviceRef, day timeutil.Day) {
	if err := c.store.Release(ctx, ref, day); err != nil {
		c.logger.Warn("release ad slot failed", slog.String("device_id", ref.DeviceID), slog.String("error", err.Error()))
	}
}

func (c *Controller) open(ctx context.Context, d Directive) error {
	err := c.primary.Open(ctx, d)
	if err == nil {
		return nil
	}
	if c.fallback == nil {
		return errors.Join(ErrOpenFailed, err)
	}
	if ferr := c.fallback.Open(ctx, d); ferr != nil {
		return errors.Join(ErrOpenFailed, err, ferr)
	}
	return nil
}

// State returns the device's persisted counters.
func (c *Controller) State(ctx context.Context, ref DeviceRef) (CounterState, error) {
	return c.store.Load(ctx, ref)
}
