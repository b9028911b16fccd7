package ads

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kruthika/companion/internal/settings"
	"github.com/kruthika/companion/internal/timeutil"
)

const (
	linkA = "https://ads.example.net/go?id=1"
	linkB = "https://ads.example.org/go?id=2"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newFakeClock() (*fakeClock, *timeutil.Clock) {
	fc := &fakeClock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	return fc, timeutil.NewClock(time.UTC, fc.now)
}

type recordingNavigator struct {
	opened []Directive
	err    error
}

func (n *recordingNavigator) Open(_ context.Context, d Directive) error {
	if n.err != nil {
		return n.err
	}
	n.opened = append(n.opened, d)
	return nil
}

func validSettings() *Settings {
	s := DefaultSettings()
	s.AdsterraDirectLink = linkA
	s.MonetagDirectLink = linkB
	s.MonetagDirectLinkEnabled = true
	s.MaxDirectLinkAdsPerSession = 100
	return &s
}

func newTestController(t *testing.T, nav Navigator, opts ControllerOptions) (*Controller, *MemoryCounterStore, *fakeClock) {
	t.Helper()
	fc, clock := newFakeClock()
	opts.Clock = clock
	store := NewMemoryCounterStore()
	return NewController(store, nav, opts), store, fc
}

var dev = DeviceRef{DeviceID: "device-1", SessionID: "session-1"}

func TestValidLink(t *testing.T) {
	cases := map[string]bool{
		linkA:                            true,
		"http://ads.example.com":         true,
		"ftp://ads.example.com":          false,
		"":                               false,
		"ads.example.com":                false,
		DefaultAdsterraDirectLink:        false,
		DefaultMonetagDirectLink:         false,
		"https://x.com/PlaceHolder-link": false,
	}
	for link, want := range cases {
		require.Equal(t, want, ValidLink(link), link)
	}
}

func TestMergeSettings(t *testing.T) {
	require.Equal(t, DefaultSettings(), MergeSettings(PartialSettings{}))

	p, err := ParsePartial([]byte(`{
		"adsEnabledGlobally": false,
		"monetagDirectLink": "https://m.example.com",
		"monetagDirectLinkEnabled": true,
		"maxDirectLinkAdsPerDay": 3,
		"maxDirectLinkAdsPerSession": -1,
		"inactivityAdChance": 4
	}`))
	require.NoError(t, err)
	s := MergeSettings(p)
	require.False(t, s.AdsEnabledGlobally)
	require.Equal(t, "https://m.example.com", s.MonetagDirectLink)
	require.True(t, s.MonetagDirectLinkEnabled)
	require.Equal(t, 3, s.MaxDirectLinkAdsPerDay)
	require.Equal(t, 2, s.MaxDirectLinkAdsPerSession)
	require.Equal(t, 0.25, s.InactivityAdChance)
	require.Equal(t, DefaultAdsterraDirectLink, s.AdsterraDirectLink)
	require.Equal(t, 45*time.Second, s.InactivityTimeout())

	require.Equal(t, s, MergeSettings(s.Partial()))

	_, err = ParsePartial([]byte(`{`))
	require.Error(t, err)
}

func TestTryFireRequiresEnabledSettings(t *testing.T) {
	nav := &recordingNavigator{}
	c, store, _ := newTestController(t, nav, ControllerOptions{})
	ctx := context.Background()

	out := c.TryFire(ctx, dev, nil)
	require.False(t, out.Fired)
	require.Equal(t, ReasonNotLoaded, out.Reason)

	s := validSettings()
	s.AdsEnabledGlobally = false
	out = c.TryFire(ctx, dev, s)
	require.False(t, out.Fired)
	require.Equal(t, ReasonDisabled, out.Reason)

	state, err := store.Load(ctx, dev)
	require.NoError(t, err)
	require.Equal(t, CounterState{}, state, "no side effects when disabled")
	require.Empty(t, nav.opened)
}

func TestTryFireDailyCap(t *testing.T) {
	nav := &recordingNavigator{}
	c, store, _ := newTestController(t, nav, ControllerOptions{})
	ctx := context.Background()
	s := validSettings()

	for i := 0; i < 8; i++ {
		require.True(t, c.TryFire(ctx, dev, s).Fired, "fire %d", i+1)
	}
	before, err := store.Load(ctx, dev)
	require.NoError(t, err)
	require.Equal(t, 8, before.DailyCount)

	out := c.TryFire(ctx, dev, s)
	require.False(t, out.Fired)
	require.Equal(t, ReasonDailyCap, out.Reason)

	after, err := store.Load(ctx, dev)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Len(t, nav.opened, 8)
}

func TestTryFireSessionCap(t *testing.T) {
	c, store, _ := newTestController(t, &recordingNavigator{}, ControllerOptions{})
	ctx := context.Background()
	s := validSettings()
	s.MaxDirectLinkAdsPerSession = 2

	require.True(t, c.TryFire(ctx, dev, s).Fired)
	require.True(t, c.TryFire(ctx, dev, s).Fired)
	out := c.TryFire(ctx, dev, s)
	require.Equal(t, ReasonSessionCap, out.Reason)

	other := DeviceRef{DeviceID: dev.DeviceID, SessionID: "session-2"}
	require.True(t, c.TryFire(ctx, other, s).Fired, "a new session starts its own count")

	state, err := store.Load(ctx, other)
	require.NoError(t, err)
	require.Equal(t, 3, state.DailyCount)
	require.Equal(t, 1, state.SessionCount)
}

func TestTryFireRotatesNetworks(t *testing.T) {
	nav := &recordingNavigator{}
	c, _, _ := newTestController(t, nav, ControllerOptions{})
	ctx := context.Background()
	s := validSettings()

	first := c.TryFire(ctx, dev, s)
	second := c.TryFire(ctx, dev, s)
	third := c.TryFire(ctx, dev, s)
	require.True(t, first.Fired && second.Fired && third.Fired)
	require.Equal(t, NetworkAdsterra, first.Network)
	require.Equal(t, NetworkMonetag, second.Network)
	require.Equal(t, NetworkAdsterra, third.Network)
	require.Equal(t, linkB, nav.opened[1].URL)
}

func TestTryFireSingleNetwork(t *testing.T) {
	c, _, _ := newTestController(t, &recordingNavigator{}, ControllerOptions{})
	ctx := context.Background()
	s := validSettings()
	s.AdsterraDirectLinkEnabled = false

	for i := 0; i < 3; i++ {
		out := c.TryFire(ctx, dev, s)
		require.True(t, out.Fired)
		require.Equal(t, NetworkMonetag, out.Network)
	}

	s.MonetagDirectLinkEnabled = false
	out := c.TryFire(ctx, dev, s)
	require.False(t, out.Fired)
	require.Equal(t, ReasonNoNetwork, out.Reason)
}

func TestTryFireLinkFallback(t *testing.T) {
	nav := &recordingNavigator{}
	c, store, _ := newTestController(t, nav, ControllerOptions{})
	ctx := context.Background()
	s := validSettings()
	s.AdsterraDirectLink = "https://ads.example.net/placeholder"

	out := c.TryFire(ctx, dev, s)
	require.True(t, out.Fired)
	require.Equal(t, NetworkMonetag, out.Network)

	other := DeviceRef{DeviceID: "device-2"}
	s.MonetagDirectLink = DefaultMonetagDirectLink
	out = c.TryFire(ctx, other, s)
	require.False(t, out.Fired)
	require.Equal(t, ReasonLinkInvalid, out.Reason)

	state, err := store.Load(ctx, other)
	require.NoError(t, err)
	require.Zero(t, state.DailyCount)
	require.Zero(t, state.SessionCount)
	require.Empty(t, state.LastNetwork)
	require.Len(t, nav.opened, 1)
}

func TestTryFireFallbackRequiresEnabledNetwork(t *testing.T) {
	c, _, _ := newTestController(t, &recordingNavigator{}, ControllerOptions{})
	s := validSettings()
	s.AdsterraDirectLink = "not-a-url"
	s.MonetagDirectLinkEnabled = false

	out := c.TryFire(context.Background(), dev, s)
	require.False(t, out.Fired)
	require.Equal(t, ReasonLinkInvalid, out.Reason)
}

func TestTryFireDayRollover(t *testing.T) {
	c, store, fc := newTestController(t, &recordingNavigator{}, ControllerOptions{})
	ctx := context.Background()
	s := validSettings()

	yesterday := timeutil.DayOf(fc.t, time.UTC)
	require.NoError(t, store.Save(ctx, dev, CounterState{DailyCount: 8, DailyDate: yesterday, SessionCount: 2, LastNetwork: NetworkMonetag}))
	require.Equal(t, ReasonDailyCap, c.TryFire(ctx, dev, s).Reason)

	fc.t = fc.t.Add(24 * time.Hour)
	out := c.TryFire(ctx, dev, s)
	require.True(t, out.Fired)
	require.Equal(t, NetworkAdsterra, out.Network)

	state, err := store.Load(ctx, dev)
	require.NoError(t, err)
	require.Equal(t, 1, state.DailyCount)
	require.Equal(t, 1, state.SessionCount)
	require.Equal(t, yesterday.Next(), state.DailyDate)
}

func TestTryFireOpenFailure(t *testing.T) {
	ctx := context.Background()
	s := validSettings()

	fallback := &recordingNavigator{}
	c, _, _ := newTestController(t, &recordingNavigator{err: errors.New("blocked")}, ControllerOptions{Fallback: fallback})
	out := c.TryFire(ctx, dev, s)
	require.True(t, out.Fired)
	require.Len(t, fallback.opened, 1)

	c, store, _ := newTestController(t, &recordingNavigator{err: errors.New("blocked")}, ControllerOptions{
		Fallback: &recordingNavigator{err: errors.New("also blocked")},
	})
	out = c.TryFire(ctx, dev, s)
	require.False(t, out.Fired)
	require.Equal(t, ReasonOpenFailed, out.Reason)
	state, err := store.Load(ctx, dev)
	require.NoError(t, err)
	require.Zero(t, state.DailyCount)
	require.Zero(t, state.SessionCount)
}

type failingStore struct{}

func (failingStore) Load(context.Context, DeviceRef) (CounterState, error) {
	return CounterState{}, errors.New("down")
}

func (failingStore) Save(context.Context, DeviceRef, CounterState) error { return errors.New("down") }

func (failingStore) Reserve(context.Context, DeviceRef, timeutil.Day, Caps) (CounterState, string, error) {
	return CounterState{}, "", errors.New("down")
}

func (failingStore) Release(context.Context, DeviceRef, timeutil.Day) error { return errors.New("down") }

func (failingStore) Commit(context.Context, DeviceRef, Network) error { return errors.New("down") }

type outcomeObserver struct{ reasons []string }

func (o *outcomeObserver) RecordAdOutcome(_, reason string) { o.reasons = append(o.reasons, reason) }

func TestTryFireStoreErrorAndObserver(t *testing.T) {
	obs := &outcomeObserver{}
	_, clock := newFakeClock()
	c := NewController(failingStore{}, &recordingNavigator{}, ControllerOptions{Clock: clock, Observer: obs})

	out := c.TryFire(context.Background(), dev, validSettings())
	require.False(t, out.Fired)
	require.Equal(t, []string{ReasonStoreError}, obs.reasons)
}

func TestInlineNavigator(t *testing.T) {
	ctx := context.Background()
	require.ErrorIs(t, InlineNavigator{}.Open(ctx, Directive{}), ErrNoSink)

	sink := NewDirectiveSink()
	ctx = WithSink(ctx, sink)
	require.NoError(t, InlineNavigator{}.Open(ctx, Directive{URL: linkA}))
	sink.Close()
	got := sink.Wait(ctx, time.Second)
	require.Len(t, got, 1)
	require.Equal(t, linkA, got[0].URL)

	require.ErrorIs(t, InlineNavigator{}.Open(ctx, Directive{URL: linkB}), ErrSinkClosed)
	require.Len(t, sink.Directives(), 1)
}

func TestLateInlineDirectiveIsNotCounted(t *testing.T) {
	c, store, _ := newTestController(t, InlineNavigator{}, ControllerOptions{})
	sink := NewDirectiveSink()
	ctx := WithSink(context.Background(), sink)
	require.Empty(t, sink.Wait(ctx, time.Millisecond))

	out := c.TryFire(ctx, dev, validSettings())
	require.False(t, out.Fired)
	require.Equal(t, ReasonOpenFailed, out.Reason)

	state, err := store.Load(ctx, dev)
	require.NoError(t, err)
	require.Zero(t, state.DailyCount)
	require.Zero(t, state.SessionCount)
	require.Empty(t, state.LastNetwork)

	fallback := &recordingNavigator{}
	c, store, _ = newTestController(t, InlineNavigator{}, ControllerOptions{Fallback: fallback})
	out = c.TryFire(ctx, dev, validSettings())
	require.True(t, out.Fired, "a sealed sink falls through to the fallback navigator")
	require.Len(t, fallback.opened, 1)
	state, err = store.Load(ctx, dev)
	require.NoError(t, err)
	require.Equal(t, 1, state.DailyCount)
}

func TestDirectiveSinkWaitTimesOut(t *testing.T) {
	sink := NewDirectiveSink()
	start := time.Now()
	require.Empty(t, sink.Wait(context.Background(), 20*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	sink.Close()
	sink.Close()
	require.Empty(t, sink.Wait(context.Background(), time.Hour))
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestPublishNavigator(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()
	nav := NewPublishNavigator(client, "")

	err := nav.Open(ctx, Directive{DeviceID: "d1", URL: linkA})
	require.ErrorIs(t, err, ErrNoSubscriber)

	sub := client.Subscribe(ctx, nav.Channel("d1"))
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, nav.Open(ctx, Directive{DeviceID: "d1", URL: linkA, Network: NetworkAdsterra}))
	select {
	case msg := <-sub.Channel():
		var d Directive
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &d))
		require.Equal(t, linkA, d.URL)
		require.Equal(t, NetworkAdsterra, d.Network)
	case <-time.After(2 * time.Second):
		t.Fatal("directive not delivered")
	}
}

func TestRedisCounterStore(t *testing.T) {
	client, server := newTestRedis(t)
	ctx := context.Background()
	store := NewRedisCounterStore(client, time.Hour)

	state, err := store.Load(ctx, dev)
	require.NoError(t, err)
	require.Equal(t, CounterState{}, state)

	day := timeutil.Day{Year: 2024, Month: time.June, Dom: 1}
	want := CounterState{DailyCount: 3, DailyDate: day, SessionCount: 2, LastNetwork: NetworkMonetag}
	require.NoError(t, store.Save(ctx, dev, want))

	got, err := store.Load(ctx, dev)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.True(t, server.Exists("ads:device:device-1"))
	require.True(t, server.Exists("ads:session:device-1:session-1"))

	// Another session that rolled the day over makes older session counts stale.
	other := DeviceRef{DeviceID: dev.DeviceID, SessionID: "session-2"}
	require.NoError(t, store.Save(ctx, other, CounterState{DailyCount: 1, DailyDate: day.Next(), SessionCount: 1}))
	got, err = store.Load(ctx, dev)
	require.NoError(t, err)
	require.Equal(t, 0, got.SessionCount)
	require.Equal(t, 1, got.DailyCount)
}

func TestControllerWithRedisCounters(t *testing.T) {
	client, _ := newTestRedis(t)
	_, clock := newFakeClock()
	c := NewController(NewRedisCounterStore(client, time.Hour), &recordingNavigator{}, ControllerOptions{Clock: clock})
	ctx := context.Background()
	s := validSettings()
	s.MaxDirectLinkAdsPerDay = 2

	require.Equal(t, NetworkAdsterra, c.TryFire(ctx, dev, s).Network)
	require.Equal(t, NetworkMonetag, c.TryFire(ctx, dev, s).Network)
	require.Equal(t, ReasonDailyCap, c.TryFire(ctx, dev, s).Reason)
}

func TestRedisCountersHoldCapsAcrossControllers(t *testing.T) {
	client, _ := newTestRedis(t)
	_, clock := newFakeClock()
	s := validSettings()
	s.MaxDirectLinkAdsPerDay = 8

	var opened atomic.Int64
	nav := NavigatorFunc(func(context.Context, Directive) error {
		opened.Add(1)
		return nil
	})
	controllers := make([]*Controller, 4)
	for i := range controllers {
		controllers[i] = NewController(NewRedisCounterStore(client, time.Hour), nav, ControllerOptions{Clock: clock})
	}

	var (
		wg    sync.WaitGroup
		fired atomic.Int64
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			if c.TryFire(context.Background(), dev, s).Fired {
				fired.Add(1)
			}
		}(controllers[i%len(controllers)])
	}
	wg.Wait()

	require.Equal(t, int64(8), fired.Load())
	require.Equal(t, int64(8), opened.Load())
	state, err := controllers[0].State(context.Background(), dev)
	require.NoError(t, err)
	require.Equal(t, 8, state.DailyCount)
	require.Equal(t, 8, state.SessionCount)
}

func TestRedisCounterStoreReleaseAndRollover(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()
	store := NewRedisCounterStore(client, time.Hour)
	day := timeutil.Day{Year: 2024, Month: time.June, Dom: 1}
	caps := Caps{PerSession: 2, PerDay: 3}

	_, reason, err := store.Reserve(ctx, dev, day, caps)
	require.NoError(t, err)
	require.Empty(t, reason)
	require.NoError(t, store.Commit(ctx, dev, NetworkMonetag))
	state, reason, err := store.Reserve(ctx, dev, day, caps)
	require.NoError(t, err)
	require.Empty(t, reason)
	require.Equal(t, 1, state.DailyCount)
	require.Equal(t, NetworkMonetag, state.LastNetwork)

	_, reason, err = store.Reserve(ctx, dev, day, caps)
	require.NoError(t, err)
	require.Equal(t, ReasonSessionCap, reason)

	require.NoError(t, store.Release(ctx, dev, day))
	got, err := store.Load(ctx, dev)
	require.NoError(t, err)
	require.Equal(t, 1, got.DailyCount)
	require.Equal(t, 1, got.SessionCount)

	state, reason, err = store.Reserve(ctx, dev, day.Next(), caps)
	require.NoError(t, err)
	require.Empty(t, reason)
	require.Zero(t, state.DailyCount, "a new day starts from zero")
	require.Zero(t, state.SessionCount)
	require.Equal(t, NetworkMonetag, state.LastNetwork)
}

type staticSettings struct{ s *Settings }

func (f staticSettings) Current(context.Context) *Settings { return f.s }

func TestTriggerOnMessage(t *testing.T) {
	nav := &recordingNavigator{}
	c, _, _ := newTestController(t, nav, ControllerOptions{})
	s := validSettings()
	s.MaxDirectLinkAdsPerDay = 1
	trig := NewTrigger(c, staticSettings{s}, TriggerOptions{})
	ctx := context.Background()

	for i := 1; i < 7; i++ {
		require.Equal(t, ReasonNotDue, trig.OnMessage(ctx, dev).Reason, "message %d", i)
	}
	out := trig.OnMessage(ctx, dev)
	require.True(t, out.Fired)
	require.Equal(t, "Thanks for chatting!", out.Directive.Message)
	require.Equal(t, TriggerMessageCount, out.Directive.Trigger)
	require.Equal(t, int64(3000), out.Directive.DurationMs)

	// Counter was reset; the cap now blocks, so the count keeps growing.
	for i := 1; i < 7; i++ {
		require.Equal(t, ReasonNotDue, trig.OnMessage(ctx, dev).Reason)
	}
	require.Equal(t, ReasonDailyCap, trig.OnMessage(ctx, dev).Reason)
	require.Equal(t, ReasonDailyCap, trig.OnMessage(ctx, dev).Reason)
}

func TestTriggerOnMessageMinimumGap(t *testing.T) {
	c, _, _ := newTestController(t, &recordingNavigator{}, ControllerOptions{})
	s := validSettings()
	s.MessagesPerAdTrigger = 1
	trig := NewTrigger(c, staticSettings{s}, TriggerOptions{Counter: NewMemoryMessageCounter()})
	ctx := context.Background()

	require.Equal(t, ReasonNotDue, trig.OnMessage(ctx, dev).Reason)
	require.True(t, trig.OnMessage(ctx, dev).Fired)
}

func TestTriggerChances(t *testing.T) {
	c, _, _ := newTestController(t, &recordingNavigator{}, ControllerOptions{})
	roll := 0.5
	trig := NewTrigger(c, staticSettings{validSettings()}, TriggerOptions{Rand: func() float64 { return roll }})
	ctx := context.Background()

	require.Equal(t, ReasonNotDue, trig.OnInactivity(ctx, dev).Reason)
	require.Equal(t, ReasonNotDue, trig.OnUserMedia(ctx, dev).Reason)

	roll = 0.1
	out := trig.OnInactivity(ctx, dev)
	require.True(t, out.Fired)
	require.Equal(t, "Still there? Here's something interesting!", out.Directive.Message)

	out = trig.OnUserMedia(ctx, dev)
	require.True(t, out.Fired)
	require.Equal(t, "Just a moment...", out.Directive.Message)
}

func TestTriggerProactiveAndExplicit(t *testing.T) {
	c, _, _ := newTestController(t, &recordingNavigator{}, ControllerOptions{})
	trig := NewTrigger(c, staticSettings{validSettings()}, TriggerOptions{})
	ctx := context.Background()

	out := trig.OnProactiveMedia(ctx, dev, "Maya")
	require.True(t, out.Fired)
	require.Equal(t, "Loading Maya's share...", out.Directive.Message)

	out = trig.OnExplicit(ctx, dev)
	require.True(t, out.Fired)
	require.Empty(t, out.Directive.Message)
	require.Equal(t, TriggerExplicit, out.Directive.Trigger)
}

func TestTriggerWithoutSettings(t *testing.T) {
	c, _, _ := newTestController(t, &recordingNavigator{}, ControllerOptions{})
	counter := NewMemoryMessageCounter()
	trig := NewTrigger(c, staticSettings{}, TriggerOptions{Counter: counter})

	require.Equal(t, ReasonNotLoaded, trig.OnMessage(context.Background(), dev).Reason)
	n, _ := counter.Incr(context.Background(), dev.DeviceID)
	require.Equal(t, int64(1), n, "messages are not counted without settings")
}

func TestRedisMessageCounter(t *testing.T) {
	client, server := newTestRedis(t)
	ctx := context.Background()
	counter := NewRedisMessageCounter(client)

	n, err := counter.Incr(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	n, _ = counter.Incr(ctx, "d1")
	require.Equal(t, int64(2), n)
	require.Greater(t, server.TTL("ads:msgs:d1"), time.Duration(0))

	require.NoError(t, counter.Reset(ctx, "d1"))
	n, _ = counter.Incr(ctx, "d1")
	require.Equal(t, int64(1), n)
}

type erroringSettingsStore struct{ settings.Store }

func (erroringSettingsStore) Get(context.Context, string) (settings.Record, error) {
	return settings.Record{}, errors.New("db down")
}

func TestSettingsProvider(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemoryStore()
	p := NewSettingsProvider(store, "", nil)
	require.Equal(t, settings.KeyAdSettings, p.Key())

	cur := p.Current(ctx)
	require.NotNil(t, cur)
	require.Equal(t, DefaultSettings(), *cur)

	_, err := store.Put(ctx, settings.KeyAdSettings, json.RawMessage(`{"maxDirectLinkAdsPerDay": 4}`))
	require.NoError(t, err)
	require.Equal(t, 8, p.Current(ctx).MaxDirectLinkAdsPerDay, "cached until refreshed")
	require.NoError(t, p.Refresh(ctx))
	require.Equal(t, 4, p.Current(ctx).MaxDirectLinkAdsPerDay)

	failing := NewSettingsProvider(erroringSettingsStore{}, "", nil)
	require.Equal(t, DefaultSettings(), *failing.Current(ctx))
	require.Error(t, failing.Refresh(ctx))

	s := DefaultSettings()
	s.AdsEnabledGlobally = false
	failing.Set(s)
	require.False(t, failing.Current(ctx).AdsEnabledGlobally)
}
