package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kruthika/companion/internal/ads"
	"github.com/kruthika/companion/internal/chatlog"
	"github.com/kruthika/companion/internal/generation"
	"github.com/kruthika/companion/internal/settings"
)

const greetingContext = "User has returned after being away for a while, or hasn't messaged recently."

// Greeting is the answer to a returning device.
type Greeting struct {
	Message string `json:"message,omitempty"`
	Cached  bool   `json:"cached"`
	// Sent is false when no greeting is due.
	Sent bool `json:"sent"`
}

// ReturnGreeting reuses a greeting generated within the freshness window.
// Otherwise it greets only a device whose last message came from the user,
// that has been away longer than the away threshold, during the morning and
// when the greeting chance passes.
func (s *Service) ReturnGreeting(ctx context.Context, deviceID string) (Greeting, error) {
	if strings.TrimSpace(deviceID) == "" {
		return Greeting{}, ErrMissingDevice
	}
	if g, ok := s.deps.Greetings.Fresh(ctx, deviceID); ok {
		return Greeting{Message: g.Message, Cached: true, Sent: true}, nil
	}

	last, ok, err := s.deps.History.Last(ctx, deviceID)
	if err != nil {
		s.deps.Logger.Warn("load last activity", slog.String("device_id", deviceID), slog.String("error", err.Error()))
		return Greeting{}, nil
	}
	now := s.deps.Clock.Now()
	if !ok || last.Sender != chatlog.SenderUser || now.Sub(last.At) <= s.opts.GreetingAway {
		return Greeting{}, nil
	}
	if s.opts.Rand() >= s.opts.GreetingChance {
		return Greeting{}, nil
	}
	if generation.TimeOfDayAt(now, s.deps.Clock.Location()) != generation.Morning {
		return Greeting{}, nil
	}

	history, err := s.deps.History.Recent(ctx, deviceID, s.opts.PromptHistory)
	if err != nil {
		s.deps.Logger.Warn("load history", slog.String("device_id", deviceID), slog.String("error", err.Error()))
	}
	profile, _ := settings.LoadProfile(ctx, s.deps.Settings, s.opts.ProfileKey)

	msg, err := s.deps.Generator.Greeting(ctx, generation.GreetingRequest{
		Context:     greetingContext,
		History:     history,
		PersonaName: profile.Name,
	})
	if err != nil || strings.TrimSpace(msg) == "" {
		if err != nil {
			s.deps.Logger.Error("generate greeting", slog.String("device_id", deviceID), slog.String("error", err.Error()))
		}
		msg = greetingFallback
	}

	s.deps.Greetings.Set(ctx, deviceID, msg)
	turn := Turn{UserID: deviceID, DeviceID: deviceID}
	s.recordAI(ctx, turn, Result{Messages: []string{msg}}, s.opts.ChatID+"_offline_ping")
	if s.deps.Trigger != nil {
		go func() {
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			s.deps.Trigger.OnMessage(actx, ads.DeviceRef{DeviceID: deviceID})
		}()
	}
	return Greeting{Message: msg, Sent: true}, nil
}
