package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kruthika/companion/internal/ads"
	"github.com/kruthika/companion/internal/cache"
	"github.com/kruthika/companion/internal/chatlog"
	"github.com/kruthika/companion/internal/generation"
	"github.com/kruthika/companion/internal/quota"
	"github.com/kruthika/companion/internal/timeutil"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type fakeGenerator struct {
	mu       sync.Mutex
	reply    generation.Reply
	err      error
	greeting string
	gErr     error
	requests []generation.Request
	greets   int
}

func (f *fakeGenerator) Generate(_ context.Context, req generation.Request) (generation.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func (f *fakeGenerator) Greeting(context.Context, generation.GreetingRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.greets++
	return f.greeting, f.gErr
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type memorySink struct {
	mu      sync.Mutex
	entries []chatlog.Entry
	err     error
}

func (m *memorySink) Append(_ context.Context, e chatlog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return m.err
}

func (m *memorySink) all() []chatlog.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chatlog.Entry(nil), m.entries...)
}

type staticSettings struct{ s *ads.Settings }

func (s staticSettings) Current(context.Context) *ads.Settings { return s.s }

type turnCounter struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *turnCounter) RecordTurn(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

type fixture struct {
	svc     *Service
	gen     *fakeGenerator
	log     *memorySink
	cache   *cache.MemoryCache
	history *MemoryHistory
	now     *time.Time
	turns   *turnCounter
}

func newFixture(t *testing.T, limit int64, trigger *ads.Trigger) *fixture {
	t.Helper()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, ist)
	clock := timeutil.NewClock(ist, func() time.Time { return now })
	f := &fixture{
		gen:     &fakeGenerator{reply: generation.Reply{Messages: []string{"Hii! 😊"}, NewMood: "happy"}},
		log:     &memorySink{},
		cache:   cache.NewMemoryCache(cache.Options{Now: clock.Now}, nil),
		history: NewMemoryHistory(10),
		now:     &now,
		turns:   &turnCounter{},
	}
	ledger := quota.NewLedger(quota.NewMemoryStore(), quota.Options{
		DailyTokenLimit: limit,
		DelayThreshold:  0.8,
		DelayMin:        time.Millisecond,
		DelayMax:        time.Millisecond,
		Clock:           clock,
	})
	svc, err := NewService(Dependencies{
		Ledger:    ledger,
		Cache:     f.cache,
		Generator: f.gen,
		History:   f.history,
		ChatLog:   f.log,
		Trigger:   trigger,
		Greetings: cache.NewGreetingCache(nil, time.Hour, clock.Now),
		Clock:     clock,
		Observer:  f.turns,
	}, Options{TokensPerMessage: 100, InlineWait: time.Second, GreetingChance: 1})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestHandleMessageRejectsEmpty(t *testing.T) {
	f := newFixture(t, 1000, nil)
	_, err := f.svc.HandleMessage(context.Background(), Turn{DeviceID: "d1", Text: "   "})
	require.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.svc.HandleMessage(context.Background(), Turn{Text: "hi"})
	require.ErrorIs(t, err, ErrMissingDevice)
	require.Zero(t, f.gen.calls())
}

func TestHandleMessageGeneratesAndCaches(t *testing.T) {
	f := newFixture(t, 10000, nil)
	ctx := context.Background()

	res, err := f.svc.HandleMessage(ctx, Turn{DeviceID: "d1", Text: "Hello there"})
	require.NoError(t, err)
	require.Equal(t, []string{"Hii! 😊"}, res.Messages)
	require.Equal(t, "happy", res.Mood)
	require.False(t, res.Cached)
	require.Equal(t, generation.Morning, f.gen.requests[0].TimeOfDay)
	require.Equal(t, "Maya", f.gen.requests[0].Persona.Name)

	res, err = f.svc.HandleMessage(ctx, Turn{DeviceID: "d2", Text: "  hello THERE "})
	require.NoError(t, err)
	require.True(t, res.Cached)
	require.Equal(t, []string{"Hii! 😊"}, res.Messages)
	require.Equal(t, 1, f.gen.calls())
	require.Equal(t, []string{OutcomeGenerated, OutcomeCached}, f.turns.outcomes)

	entries := f.log.all()
	require.Len(t, entries, 4)
	require.Equal(t, chatlog.SenderUser, entries[0].Sender)
	require.Equal(t, chatlog.SenderAI, entries[1].Sender)
	require.Equal(t, "kruthika_chat", entries[1].ChatID)
}

func TestHandleMessageSkipsCacheWithMedia(t *testing.T) {
	f := newFixture(t, 10000, nil)
	ctx := context.Background()
	f.cache.Put(ctx, cache.NormalizeKey("look"), `["cached"]`)

	res, err := f.svc.HandleMessage(ctx, Turn{DeviceID: "d1", Text: "look", HasMedia: true})
	require.NoError(t, err)
	require.False(t, res.Cached)
	require.Equal(t, 1, f.gen.calls())
	require.True(t, f.gen.requests[0].HasUserMedia)

	lines, _ := f.history.Recent(ctx, "d1", 5)
	require.Equal(t, "User: look [sent an image]", lines[0])
}

func TestHandleMessageQuotaDenied(t *testing.T) {
	f := newFixture(t, 150, nil)
	ctx := context.Background()

	res, err := f.svc.HandleMessage(ctx, Turn{DeviceID: "d1", UserID: "u1", Text: "one"})
	require.NoError(t, err)
	require.False(t, res.QuotaExceeded)

	res, err = f.svc.HandleMessage(ctx, Turn{DeviceID: "d1", UserID: "u1", Text: "two"})
	require.NoError(t, err)
	require.True(t, res.QuotaExceeded)
	require.Len(t, res.Messages, 1)
	require.Contains(t, res.Messages[0], "tired")
	require.Equal(t, 1, f.gen.calls())
	require.Equal(t, OutcomeDeclined, f.turns.outcomes[1])
}

func TestHandleMessageDelaysNearLimit(t *testing.T) {
	f := newFixture(t, 120, nil)
	res, err := f.svc.HandleMessage(context.Background(), Turn{DeviceID: "d1", Text: "hi"})
	require.NoError(t, err)
	require.True(t, res.Delayed)
	require.NotEmpty(t, res.DelayMessage)
	require.Equal(t, []string{"Hii! 😊"}, res.Messages)
}

func TestHandleMessageDelayHonorsCancellation(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, ist)
	clock := timeutil.NewClock(ist, func() time.Time { return now })
	ledger := quota.NewLedger(nil, quota.Options{DailyTokenLimit: 120, DelayMin: time.Hour, DelayMax: time.Hour, Clock: clock})
	svc, err := NewService(Dependencies{Ledger: ledger, Generator: &fakeGenerator{}, Clock: clock}, Options{TokensPerMessage: 100})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.HandleMessage(ctx, Turn{DeviceID: "d1", Text: "hi"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestHandleMessageFallbackRotates(t *testing.T) {
	f := newFixture(t, 100000, nil)
	f.gen.err = errors.New("provider down")
	ctx := context.Background()

	first, err := f.svc.HandleMessage(ctx, Turn{DeviceID: "d1", Text: "a"})
	require.NoError(t, err)
	second, err := f.svc.HandleMessage(ctx, Turn{DeviceID: "d1", Text: "a"})
	require.NoError(t, err)

	require.True(t, first.Fallback)
	require.True(t, second.Fallback)
	require.NotEqual(t, first.Messages[0], second.Messages[0])
	require.False(t, second.Cached)
	require.Equal(t, 0, f.cache.Len())
}

func TestHandleMessageInvalidReplyFallsBack(t *testing.T) {
	f := newFixture(t, 100000, nil)
	f.gen.reply = generation.Reply{ProactiveImageURL: "https://x/a.png"}
	res, err := f.svc.HandleMessage(context.Background(), Turn{DeviceID: "d1", Text: "a"})
	require.NoError(t, err)
	require.True(t, res.Fallback)
}

func TestHandleMessageMediaReplyNotCached(t *testing.T) {
	f := newFixture(t, 100000, nil)
	f.gen.reply = generation.Reply{ProactiveImageURL: "https://x/a.png", MediaCaption: "Check this out!"}
	res, err := f.svc.HandleMessage(context.Background(), Turn{DeviceID: "d1", Text: "send pic"})
	require.NoError(t, err)
	require.NotNil(t, res.Media)
	require.Equal(t, "https://x/a.png", res.Media.URL)
	require.Empty(t, res.Messages)
	require.Equal(t, 0, f.cache.Len())

	lines, _ := f.history.Recent(context.Background(), "d1", 5)
	require.Equal(t, "AI: Check this out![Sent a image] https://x/a.png", lines[len(lines)-1])
}

func TestHandleMessageChatLogFailureDoesNotSurface(t *testing.T) {
	f := newFixture(t, 100000, nil)
	f.log.err = errors.New("db down")
	res, err := f.svc.HandleMessage(context.Background(), Turn{DeviceID: "d1", Text: "a"})
	require.NoError(t, err)
	require.Equal(t, []string{"Hii! 😊"}, res.Messages)
}

func TestHandleMessageAttachesInlineAdDirective(t *testing.T) {
	s := ads.DefaultSettings()
	s.AdsterraDirectLink = "https://ads.example/a"
	s.MonetagDirectLinkEnabled = false
	s.MessagesPerAdTrigger = 2
	controller := ads.NewController(ads.NewMemoryCounterStore(), nil, ads.ControllerOptions{})
	trigger := ads.NewTrigger(controller, staticSettings{s: &s}, ads.TriggerOptions{})

	f := newFixture(t, 100000, trigger)
	ctx := context.Background()

	res, err := f.svc.HandleMessage(ctx, Turn{DeviceID: "d1", SessionID: "s1", Text: "one"})
	require.NoError(t, err)
	require.Empty(t, res.Ads)

	res, err = f.svc.HandleMessage(ctx, Turn{DeviceID: "d1", SessionID: "s1", Text: "two"})
	require.NoError(t, err)
	require.Len(t, res.Ads, 1)
	require.Equal(t, "https://ads.example/a", res.Ads[0].URL)
	require.Equal(t, "Thanks for chatting!", res.Ads[0].Message)
}

type reasonRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (r *reasonRecorder) RecordAdOutcome(_, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *reasonRecorder) has(reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.reasons {
		if got == reason {
			return true
		}
	}
	return false
}

func TestMediaTurnCountsOnlyDeliveredAds(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	s := ads.DefaultSettings()
	s.AdsterraDirectLink = "https://ads.example/a"
	s.MonetagDirectLinkEnabled = false
	s.MessagesPerAdTrigger = 2
	s.UserMediaInterstitialChance = 1
	s.MaxDirectLinkAdsPerDay = 100
	s.MaxDirectLinkAdsPerSession = 100
	controller := ads.NewController(ads.NewRedisCounterStore(client, time.Hour), nil, ads.ControllerOptions{})
	trigger := ads.NewTrigger(controller, staticSettings{s: &s}, ads.TriggerOptions{
		Counter: ads.NewRedisMessageCounter(client),
		Rand:    func() float64 { return 0 },
	})

	f := newFixture(t, 100000, trigger)
	ctx := context.Background()
	ref := ads.DeviceRef{DeviceID: "d1", SessionID: "s1"}

	delivered := 0
	for i := 0; i < 20; i++ {
		res, err := f.svc.HandleMessage(ctx, Turn{DeviceID: "d1", SessionID: "s1", HasMedia: true})
		require.NoError(t, err)
		require.LessOrEqual(t, len(res.Ads), 1, "turn %d", i)
		delivered += len(res.Ads)
	}

	state, err := controller.State(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, 20, delivered)
	require.Equal(t, delivered, state.DailyCount)
	require.Equal(t, delivered, state.SessionCount)
}

type slowSettings struct {
	s     *ads.Settings
	delay time.Duration
}

func (s slowSettings) Current(context.Context) *ads.Settings {
	time.Sleep(s.delay)
	return s.s
}

func TestLateAdIsNotCounted(t *testing.T) {
	s := ads.DefaultSettings()
	s.AdsterraDirectLink = "https://ads.example/a"
	s.MonetagDirectLinkEnabled = false
	s.MessagesPerAdTrigger = 2
	obs := &reasonRecorder{}
	store := ads.NewMemoryCounterStore()
	controller := ads.NewController(store, nil, ads.ControllerOptions{Observer: obs})
	trigger := ads.NewTrigger(controller, slowSettings{s: &s, delay: 50 * time.Millisecond}, ads.TriggerOptions{})

	f := newFixture(t, 100000, trigger)
	f.svc.opts.InlineWait = time.Millisecond
	ctx := context.Background()

	for _, text := range []string{"one", "two"} {
		res, err := f.svc.HandleMessage(ctx, Turn{DeviceID: "d1", SessionID: "s1", Text: text})
		require.NoError(t, err)
		require.Empty(t, res.Ads)
	}

	require.Eventually(t, func() bool { return obs.has(ads.ReasonOpenFailed) }, 2*time.Second, 10*time.Millisecond)
	state, err := store.Load(ctx, ads.DeviceRef{DeviceID: "d1", SessionID: "s1"})
	require.NoError(t, err)
	require.Zero(t, state.DailyCount)
	require.Zero(t, state.SessionCount)
}

func TestReturnGreetingRules(t *testing.T) {
	f := newFixture(t, 100000, nil)
	f.gen.greeting = "Welcome back! 🤗"
	ctx := context.Background()

	g, err := f.svc.ReturnGreeting(ctx, "d1")
	require.NoError(t, err)
	require.False(t, g.Sent, "no history means no greeting")

	require.NoError(t, f.history.Append(ctx, "d1", chatlog.SenderUser, f.now.Add(-time.Hour), "User: hi"))
	g, err = f.svc.ReturnGreeting(ctx, "d1")
	require.NoError(t, err)
	require.False(t, g.Sent, "away for less than the threshold")

	require.NoError(t, f.history.Append(ctx, "d1", chatlog.SenderUser, f.now.Add(-3*time.Hour), "User: hi"))
	g, err = f.svc.ReturnGreeting(ctx, "d1")
	require.NoError(t, err)
	require.True(t, g.Sent)
	require.False(t, g.Cached)
	require.Equal(t, "Welcome back! 🤗", g.Message)

	g, err = f.svc.ReturnGreeting(ctx, "d1")
	require.NoError(t, err)
	require.True(t, g.Cached)
	require.Equal(t, 1, f.gen.greets)

	entries := f.log.all()
	require.Equal(t, "kruthika_chat_offline_ping", entries[len(entries)-1].ChatID)
}

func TestReturnGreetingOnlyInTheMorning(t *testing.T) {
	f := newFixture(t, 100000, nil)
	*f.now = time.Date(2024, 6, 1, 14, 0, 0, 0, ist)
	ctx := context.Background()
	require.NoError(t, f.history.Append(ctx, "d1", chatlog.SenderUser, f.now.Add(-3*time.Hour), "User: hi"))

	g, err := f.svc.ReturnGreeting(ctx, "d1")
	require.NoError(t, err)
	require.False(t, g.Sent)
}

func TestReturnGreetingFallback(t *testing.T) {
	f := newFixture(t, 100000, nil)
	f.gen.gErr = errors.New("down")
	ctx := context.Background()
	require.NoError(t, f.history.Append(ctx, "d1", chatlog.SenderUser, f.now.Add(-3*time.Hour), "User: hi"))

	g, err := f.svc.ReturnGreeting(ctx, "d1")
	require.NoError(t, err)
	require.True(t, g.Sent)
	require.Equal(t, greetingFallback, g.Message)
}

func TestMemoryHistoryCapsLines(t *testing.T) {
	h := NewMemoryHistory(3)
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, h.Append(ctx, "d", chatlog.SenderUser, at, "1", "2"))
	require.NoError(t, h.Append(ctx, "d", chatlog.SenderAI, at.Add(time.Minute), "3", "4"))

	lines, err := h.Recent(ctx, "d", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"2", "3", "4"}, lines)

	lines, _ = h.Recent(ctx, "d", 2)
	require.Equal(t, []string{"3", "4"}, lines)

	last, ok, err := h.Last(ctx, "d")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, chatlog.SenderAI, last.Sender)
}

func TestRedisHistory(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	h := NewRedisHistory(client, 3)
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, h.Append(ctx, "d", chatlog.SenderUser, at, "1", "2", "3", "4"))

	lines, err := h.Recent(ctx, "d", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"2", "3", "4"}, lines)
	require.Equal(t, historyTTL, server.TTL(historyKey("d")))

	last, ok, err := h.Last(ctx, "d")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, chatlog.SenderUser, last.Sender)
	require.True(t, at.Equal(last.At))

	_, ok, err = h.Last(ctx, "unknown")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(Dependencies{Generator: &fakeGenerator{}}, Options{})
	require.Error(t, err)
	_, err = NewService(Dependencies{Ledger: quota.NewLedger(nil, quota.Options{})}, Options{})
	require.Error(t, err)
}
