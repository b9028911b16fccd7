// Package conversation runs one chat turn end to end: quota, cache,
// generation, logging and ad triggers.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kruthika/companion/internal/ads"
	"github.com/kruthika/companion/internal/cache"
	"github.com/kruthika/companion/internal/chatlog"
	"github.com/kruthika/companion/internal/generation"
	"github.com/kruthika/companion/internal/quota"
	"github.com/kruthika/companion/internal/settings"
	"github.com/kruthika/companion/internal/timeutil"
)

var (
	ErrEmptyMessage  = errors.New("message text or media required")
	ErrMissingDevice = errors.New("device id required")
)

// Turn outcome labels used for metrics.
const (
	OutcomeGenerated = "generated"
	OutcomeCached    = "cached"
	OutcomeFallback  = "fallback"
	OutcomeDeclined  = "declined"
)

// Turn is one inbound user message.
type Turn struct {
	UserID    string
	DeviceID  string
	SessionID string
	MessageID string
	Text      string
	HasMedia  bool
	Mood      string
}

// Media is a proactive share attached to a reply.
type Media struct {
	Type    settings.MediaType `json:"type"`
	URL     string             `json:"url"`
	Caption string             `json:"caption"`
}

// Result is what the chat surface renders for a turn.
type Result struct {
	Messages      []string         `json:"messages,omitempty"`
	Media         *Media           `json:"media,omitempty"`
	Mood          string           `json:"mood,omitempty"`
	Cached        bool             `json:"cached"`
	Fallback      bool             `json:"fallback"`
	QuotaExceeded bool             `json:"quota_exceeded"`
	Delayed       bool             `json:"delayed"`
	DelayMessage  string           `json:"delay_message,omitempty"`
	Quota         quota.Decision   `json:"-"`
	Ads           []ads.Directive  `json:"ads,omitempty"`
	Usage         generation.Usage `json:"-"`
}

// Observer receives one call per completed turn.
type Observer interface {
	RecordTurn(outcome string)
}

// Dependencies are the collaborators a Service drives. Ledger and Generator
// are required; the rest degrade to no-ops when nil.
type Dependencies struct {
	Ledger    *quota.Ledger
	Cache     cache.ResponseCache
	Generator generation.Generator
	History   History
	ChatLog   chatlog.Sink
	Trigger   *ads.Trigger
	Settings  settings.Store
	Greetings *cache.GreetingCache
	Clock     *timeutil.Clock
	Logger    *slog.Logger
	Observer  Observer
}

type Options struct {
	ChatID           string
	TokensPerMessage int64
	PromptHistory    int
	ProfileKey       string
	MediaAssetsKey   string
	// InlineWait bounds how long a turn waits for an ad directive.
	InlineWait     time.Duration
	GreetingAway   time.Duration
	GreetingChance float64
	Rand           func() float64
}

type Service struct {
	deps      Dependencies
	opts      Options
	fallbacks fallbackRotation
}

func NewService(deps Dependencies, opts Options) (*Service, error) {
	if deps.Ledger == nil {
		return nil, errors.New("conversation: quota ledger required")
	}
	if deps.Generator == nil {
		return nil, errors.New("conversation: generator required")
	}
	if deps.History == nil {
		deps.History = NewMemoryHistory(10)
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.NewClock(nil, nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Greetings == nil {
		deps.Greetings = cache.NewGreetingCache(nil, time.Hour, deps.Clock.Now)
	}
	if opts.ChatID == "" {
		opts.ChatID = "kruthika_chat"
	}
	if opts.PromptHistory <= 0 {
		opts.PromptHistory = generation.MaxRecentInteractions
	}
	if opts.InlineWait <= 0 {
		opts.InlineWait = 250 * time.Millisecond
	}
	if opts.GreetingAway <= 0 {
		opts.GreetingAway = 2 * time.Hour
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &Service{deps: deps, opts: opts}, nil
}

// HandleMessage runs one turn. Only invalid input and request cancellation
// are returned as errors; every other failure degrades into the Result.
func (s *Service) HandleMessage(ctx context.Context, turn Turn) (Result, error) {
	turn.Text = strings.TrimSpace(turn.Text)
	if turn.Text == "" && !turn.HasMedia {
		return Result{}, ErrEmptyMessage
	}
	if strings.TrimSpace(turn.DeviceID) == "" {
		return Result{}, ErrMissingDevice
	}
	if turn.UserID == "" {
		turn.UserID = turn.DeviceID
	}
	if turn.MessageID == "" {
		turn.MessageID = uuid.NewString()
	}
	now := s.deps.Clock.Now()
	s.recordUser(ctx, turn, now)

	decision := s.deps.Ledger.CheckAndConsume(ctx, turn.UserID, s.opts.TokensPerMessage)
	if !decision.Allowed {
		res := Result{Messages: []string{decision.Message}, QuotaExceeded: true, Quota: decision}
		s.recordAI(ctx, turn, res, s.opts.ChatID)
		s.observe(OutcomeDeclined)
		return res, nil
	}
	if err := quota.Wait(ctx, decision); err != nil {
		return Result{}, fmt.Errorf("quota delay: %w", err)
	}

	var key string
	if !turn.HasMedia {
		key = cache.NormalizeKey(turn.Text)
		if res, ok := s.cached(ctx, key); ok {
			res.Quota = decision
			s.finish(ctx, turn, &res, decision)
			s.observe(OutcomeCached)
			return res, nil
		}
	}

	res := s.generate(ctx, turn, now)
	res.Quota = decision
	if !res.Fallback && res.Media == nil && key != "" && s.deps.Cache != nil {
		if raw, err := json.Marshal(res.Messages); err == nil {
			s.deps.Cache.Put(ctx, key, string(raw))
		}
	}
	s.finish(ctx, turn, &res, decision)
	if res.Fallback {
		s.observe(OutcomeFallback)
	} else {
		s.observe(OutcomeGenerated)
	}
	return res, nil
}

func (s *Service) cached(ctx context.Context, key string) (Result, bool) {
	if s.deps.Cache == nil || key == "" {
		return Result{}, false
	}
	raw, ok := s.deps.Cache.Get(ctx, key)
	if !ok {
		return Result{}, false
	}
	var messages []string
	if err := json.Unmarshal([]byte(raw), &messages); err != nil || len(messages) == 0 {
		messages = []string{raw}
	}
	return Result{Messages: messages, Cached: true}, true
}

func (s *Service) generate(ctx context.Context, turn Turn, now time.Time) Result {
	logger := s.deps.Logger.With(slog.String("device_id", turn.DeviceID))

	profile, err := settings.LoadProfile(ctx, s.deps.Settings, s.opts.ProfileKey)
	if err != nil {
		logger.Warn("load ai profile", slog.String("error", err.Error()))
	}
	assets, err := settings.LoadMediaAssets(ctx, s.deps.Settings, s.opts.MediaAssetsKey)
	if err != nil {
		logger.Warn("load media assets", slog.String("error", err.Error()))
	}
	recent, err := s.deps.History.Recent(ctx, turn.DeviceID, s.opts.PromptHistory)
	if err != nil {
		logger.Warn("load history", slog.String("error", err.Error()))
	}

	req := generation.Request{
		UserMessage:        turn.Text,
		HasUserMedia:       turn.HasMedia,
		TimeOfDay:          generation.TimeOfDayAt(now, s.deps.Clock.Location()),
		Mood:               turn.Mood,
		RecentInteractions: recent,
		AvailableImages:    assets.URLs(settings.MediaImage),
		AvailableAudio:     assets.URLs(settings.MediaAudio),
		Persona:            profile,
	}
	reply, err := s.deps.Generator.Generate(ctx, req)
	if err == nil {
		err = reply.Validate()
	}
	if err != nil {
		logger.Error("generate reply", slog.String("error", err.Error()))
		return Result{Messages: []string{s.fallbacks.message()}, Mood: turn.Mood, Fallback: true}
	}

	res := Result{Mood: reply.NewMood, Usage: reply.Usage}
	switch {
	case reply.ProactiveImageURL != "":
		res.Media = &Media{Type: settings.MediaImage, URL: reply.ProactiveImageURL, Caption: reply.MediaCaption}
	case reply.ProactiveAudioURL != "":
		res.Media = &Media{Type: settings.MediaAudio, URL: reply.ProactiveAudioURL, Caption: reply.MediaCaption}
	default:
		res.Messages = reply.Messages
	}
	return res
}

// finish logs the reply, records history and collects inline ad directives.
func (s *Service) finish(ctx context.Context, turn Turn, res *Result, decision quota.Decision) {
	if decision.ShouldDelay {
		res.Delayed = true
		res.DelayMessage = decision.Message
	}
	s.recordAI(ctx, turn, *res, s.opts.ChatID)
	res.Ads = s.fireAds(ctx, turn, res.Media != nil)
}

func (s *Service) fireAds(ctx context.Context, turn Turn, proactiveMedia bool) []ads.Directive {
	if s.deps.Trigger == nil {
		return nil
	}
	ref := ads.DeviceRef{DeviceID: turn.DeviceID, SessionID: turn.SessionID}
	sink := ads.NewDirectiveSink()
	actx := ads.WithSink(context.WithoutCancel(ctx), sink)

	personaName := settings.DefaultProfile().Name
	if proactiveMedia {
		if p, err := settings.LoadProfile(ctx, s.deps.Settings, s.opts.ProfileKey); err == nil {
			personaName = p.Name
		}
	}

	go func() {
		defer sink.Close()
		actx, cancel := context.WithTimeout(actx, 5*time.Second)
		defer cancel()
		// At most one ad per turn; the first trigger that fires wins.
		if s.deps.Trigger.OnMessage(actx, ref).Fired {
			return
		}
		if turn.HasMedia && s.deps.Trigger.OnUserMedia(actx, ref).Fired {
			return
		}
		if proactiveMedia {
			s.deps.Trigger.OnProactiveMedia(actx, ref, personaName)
		}
	}()
	return sink.Wait(ctx, s.opts.InlineWait)
}

func (s *Service) recordUser(ctx context.Context, turn Turn, at time.Time) {
	line := "User: " + turn.Text
	switch {
	case turn.HasMedia && turn.Text != "":
		line += " [sent an image]"
	case turn.HasMedia:
		line = "User: [sent an image]"
	}
	if err := s.deps.History.Append(ctx, turn.DeviceID, chatlog.SenderUser, at, line); err != nil {
		s.deps.Logger.Warn("append history", slog.String("error", err.Error()))
	}
	s.appendLog(ctx, chatlog.Entry{
		MessageID: turn.MessageID,
		UserID:    turn.UserID,
		Sender:    chatlog.SenderUser,
		ChatID:    s.opts.ChatID,
		Text:      turn.Text,
		HasImage:  turn.HasMedia,
		CreatedAt: at,
	})
}

func (s *Service) recordAI(ctx context.Context, turn Turn, res Result, chatID string) {
	at := s.deps.Clock.Now()
	var lines []string
	text := strings.Join(res.Messages, "\n")
	if res.Media != nil {
		lines = []string{fmt.Sprintf("AI: %s[Sent a %s] %s", res.Media.Caption, res.Media.Type, res.Media.URL)}
		text = res.Media.Caption
	} else {
		for _, m := range res.Messages {
			lines = append(lines, "AI: "+m)
		}
	}
	if err := s.deps.History.Append(ctx, turn.DeviceID, chatlog.SenderAI, at, lines...); err != nil {
		s.deps.Logger.Warn("append history", slog.String("error", err.Error()))
	}
	s.appendLog(ctx, chatlog.Entry{
		MessageID: uuid.NewString(),
		UserID:    turn.UserID,
		Sender:    chatlog.SenderAI,
		ChatID:    chatID,
		Text:      text,
		HasImage:  res.Media != nil && res.Media.Type == settings.MediaImage,
		CreatedAt: at,
	})
}

func (s *Service) appendLog(ctx context.Context, entry chatlog.Entry) {
	if s.deps.ChatLog == nil {
		return
	}
	if err := s.deps.ChatLog.Append(ctx, entry); err != nil {
		s.deps.Logger.Warn("append chat log",
			slog.String("message_id", entry.MessageID),
			slog.String("sender", string(entry.Sender)),
			slog.String("error", err.Error()))
	}
}

func (s *Service) observe(outcome string) {
	if s.deps.Observer != nil {
		s.deps.Observer.RecordTurn(outcome)
	}
}
