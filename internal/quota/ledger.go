package quota

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	decimal "github.com/shopspring/decimal"

	"github.com/kruthika/companion/internal/timeutil"
)

var ErrQuotaExceeded = errors.New("daily token quota exceeded")

const (
	defaultDeclineMessage = "I'm feeling a bit tired today... Can we continue our chat tomorrow? I'll miss you! 💕"
	defaultDelayMessage   = "I need to think about this... Give me a moment, okay? 😊"
)

// Decision outcome labels used for metrics.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDelayed  = "delayed"
	OutcomeDenied   = "denied"
	OutcomeDegraded = "degraded"
)

// Decision is the ledger's verdict for one charge.
type Decision struct {
	Allowed        bool
	ShouldDelay    bool
	Delay          time.Duration
	Message        string
	TokensConsumed int64
	Limit          int64
	Ratio          float64
	// Degraded is set when the store failed and the ledger let the call through.
	Degraded bool
}

// Err returns ErrQuotaExceeded for denied decisions.
func (d Decision) Err() error {
	if !d.Allowed {
		return ErrQuotaExceeded
	}
	return nil
}

// Outcome returns the metrics label for the decision.
func (d Decision) Outcome() string {
	switch {
	case d.Degraded:
		return OutcomeDegraded
	case !d.Allowed:
		return OutcomeDenied
	case d.ShouldDelay:
		return OutcomeDelayed
	default:
		return OutcomeAllowed
	}
}

// Usage is a read-only snapshot of a user's consumption today.
type Usage struct {
	UserID         string
	Day            timeutil.Day
	TokensConsumed int64
	Limit          int64
	Remaining      int64
	Ratio          float64
	ResetsAt       time.Time
	EstimatedCost  decimal.Decimal
}

// Observer receives one call per decision.
type Observer interface {
	RecordQuotaDecision(outcome string, tokens int64)
}

// Options configure a Ledger.
type Options struct {
	DailyTokenLimit int64
	DelayThreshold  float64
	DelayMin        time.Duration
	DelayMax        time.Duration
	DeclineMessage  string
	DelayMessage    string
	PricePer1K      decimal.Decimal
	Clock           *timeutil.Clock
	// Rand returns a value in [0, 1); it picks the delay inside [DelayMin, DelayMax).
	Rand     func() float64
	Logger   *slog.Logger
	Observer Observer
}

// Ledger gates generation calls by a per-user daily token budget.
type Ledger struct {
	store    Store
	limit    int64
	delayAt  float64
	delayMin time.Duration
	delayMax time.Duration
	decline  string
	stall    string
	price    decimal.Decimal
	clock    *timeutil.Clock
	rand     func() float64
	logger   *slog.Logger
	observer Observer

	sweepOnce sync.Once
}

func NewLedger(store Store, opts Options) *Ledger {
	if store == nil {
		store = NewMemoryStore()
	}
	if opts.DailyTokenLimit <= 0 {
		opts.DailyTokenLimit = 5000
	}
	if opts.DelayThreshold <= 0 || opts.DelayThreshold >= 1 {
		opts.DelayThreshold = 0.8
	}
	if opts.DelayMin <= 0 {
		opts.DelayMin = 2 * time.Second
	}
	if opts.DelayMax < opts.DelayMin {
		opts.DelayMax = opts.DelayMin
	}
	if strings.TrimSpace(opts.DeclineMessage) == "" {
		opts.DeclineMessage = defaultDeclineMessage
	}
	if strings.TrimSpace(opts.DelayMessage) == "" {
		opts.DelayMessage = defaultDelayMessage
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.NewClock(nil, nil)
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Ledger{
		store:    store,
		limit:    opts.DailyTokenLimit,
		delayAt:  opts.DelayThreshold,
		delayMin: opts.DelayMin,
		delayMax: opts.DelayMax,
		decline:  opts.DeclineMessage,
		stall:    opts.DelayMessage,
		price:    opts.PricePer1K,
		clock:    opts.Clock,
		rand:     opts.Rand,
		logger:   opts.Logger,
		observer: opts.Observer,
	}
}

// CheckAndConsume charges tokens to userID for today and decides whether the
// caller may generate. The charge is applied before the limit is evaluated,
// so the call that crosses the limit overshoots it and is denied.
func (l *Ledger) CheckAndConsume(ctx context.Context, userID string, tokens int64) Decision {
	if tokens < 0 {
		tokens = 0
	}
	day := l.clock.Today()
	rec, err := l.store.Add(ctx, userID, day, tokens, l.clock.Now())
	if err != nil {
		l.logger.Warn("quota store unavailable; allowing request",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		d := Decision{Allowed: true, Limit: l.limit, Degraded: true}
		l.observe(d, tokens)
		return d
	}

	ratio := float64(rec.TokensConsumed) / float64(l.limit)
	d := Decision{
		Allowed:        true,
		TokensConsumed: rec.TokensConsumed,
		Limit:          l.limit,
		Ratio:          ratio,
	}
	switch {
	case ratio >= 1:
		d.Allowed = false
		d.Message = l.decline
	case ratio >= l.delayAt:
		d.ShouldDelay = true
		d.Delay = l.pickDelay()
		d.Message = l.stall
	}
	l.observe(d, tokens)
	return d
}

// Usage reports today's consumption without charging.
func (l *Ledger) Usage(ctx context.Context, userID string) (Usage, error) {
	day := l.clock.Today()
	rec, _, err := l.store.Get(ctx, userID, day)
	if err != nil {
		return Usage{}, err
	}
	remaining := l.limit - rec.TokensConsumed
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		UserID:         userID,
		Day:            day,
		TokensConsumed: rec.TokensConsumed,
		Limit:          l.limit,
		Remaining:      remaining,
		Ratio:          float64(rec.TokensConsumed) / float64(l.limit),
		ResetsAt:       l.clock.NextMidnight(),
		EstimatedCost:  l.estimateCost(rec.TokensConsumed),
	}, nil
}

// Reset clears a user's consumption for today.
func (l *Ledger) Reset(ctx context.Context, userID string) error {
	return l.store.Set(ctx, UsageRecord{
		UserID:      userID,
		Day:         l.clock.Today(),
		LastResetAt: l.clock.Now(),
	})
}

// Sweep removes records left over from previous days.
func (l *Ledger) Sweep(ctx context.Context) (int, error) {
	return l.store.Sweep(ctx, l.clock.Today())
}

// StartSweeper runs Sweep on interval until ctx is canceled.
func (l *Ledger) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	l.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					removed, err := l.Sweep(ctx)
					if err != nil {
						l.logger.Warn("quota sweep failed", slog.String("error", err.Error()))
						continue
					}
					if removed > 0 {
						l.logger.Debug("quota sweep", slog.Int("removed", removed))
					}
				}
			}
		}()
	})
}

// Limit returns the configured daily token limit.
func (l *Ledger) Limit() int64 { return l.limit }

func (l *Ledger) pickDelay() time.Duration {
	span := l.delayMax - l.delayMin
	if span <= 0 {
		return l.delayMin
	}
	return l.delayMin + time.Duration(l.rand()*float64(span))
}

func (l *Ledger) estimateCost(tokens int64) decimal.Decimal {
	if l.price.IsZero() || tokens <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(tokens).Div(decimal.NewFromInt(1000)).Mul(l.price).Round(6)
}

func (l *Ledger) observe(d Decision, tokens int64) {
	if l.observer == nil {
		return
	}
	l.observer.RecordQuotaDecision(d.Outcome(), tokens)
}

// Wait blocks for the decision's delay or until ctx is done.
func Wait(ctx context.Context, d Decision) error {
	if !d.ShouldDelay || d.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(d.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
