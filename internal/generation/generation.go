// Package generation produces persona replies and welcome-back greetings.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kruthika/companion/internal/settings"
)

var (
	ErrEmptyReply   = errors.New("generator returned an empty reply")
	ErrInvalidReply = errors.New("generator reply violates the reply contract")
	ErrOverloaded   = errors.New("generator overloaded")
)

// MaxRecentInteractions bounds the history lines sent with a request.
const MaxRecentInteractions = 5

type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	Night     TimeOfDay = "night"
)

// TimeOfDayAt buckets t by wall-clock hour in loc.
func TimeOfDayAt(t time.Time, loc *time.Location) TimeOfDay {
	if loc != nil {
		t = t.In(loc)
	}
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 17:
		return Afternoon
	case h >= 17 && h < 21:
		return Evening
	default:
		return Night
	}
}

// Request is everything a generator sees for one turn.
type Request struct {
	UserMessage        string
	HasUserMedia       bool
	TimeOfDay          TimeOfDay
	Mood               string
	RecentInteractions []string
	AvailableImages    []string
	AvailableAudio     []string
	Persona            settings.Profile
}

func (r Request) HasAvailableImages() bool { return len(r.AvailableImages) > 0 }
func (r Request) HasAvailableAudio() bool  { return len(r.AvailableAudio) > 0 }

// Recent returns at most MaxRecentInteractions of the latest history lines.
func (r Request) Recent() []string {
	if len(r.RecentInteractions) <= MaxRecentInteractions {
		return r.RecentInteractions
	}
	return r.RecentInteractions[len(r.RecentInteractions)-MaxRecentInteractions:]
}

// Usage reports tokens spent by a provider call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// Reply holds either text messages or one media share with its caption.
type Reply struct {
	Messages          []string `json:"response,omitempty"`
	MediaCaption      string   `json:"mediaCaption,omitempty"`
	ProactiveImageURL string   `json:"proactiveImageUrl,omitempty"`
	ProactiveAudioURL string   `json:"proactiveAudioUrl,omitempty"`
	NewMood           string   `json:"newMood,omitempty"`
	Usage             Usage    `json:"-"`
}

func (r Reply) HasMedia() bool {
	return r.ProactiveImageURL != "" || r.ProactiveAudioURL != ""
}

func (r Reply) HasText() bool {
	for _, m := range r.Messages {
		if strings.TrimSpace(m) != "" {
			return true
		}
	}
	return false
}

// Text joins the messages into one string.
func (r Reply) Text() string {
	return strings.Join(r.Messages, "\n")
}

// Validate checks that exactly one of text or media is present, that media
// carries a caption and that at most one media URL is set.
func (r Reply) Validate() error {
	switch {
	case r.ProactiveImageURL != "" && r.ProactiveAudioURL != "":
		return fmt.Errorf("%w: both image and audio set", ErrInvalidReply)
	case r.HasMedia() && r.HasText():
		return fmt.Errorf("%w: media with text response", ErrInvalidReply)
	case r.HasMedia() && strings.TrimSpace(r.MediaCaption) == "":
		return fmt.Errorf("%w: media without caption", ErrInvalidReply)
	case !r.HasMedia() && !r.HasText():
		return ErrEmptyReply
	}
	return nil
}

// UnmarshalJSON accepts "response" as a string or a list of strings.
func (r *Reply) UnmarshalJSON(data []byte) error {
	var wire struct {
		Response          json.RawMessage `json:"response"`
		MediaCaption      string          `json:"mediaCaption"`
		ProactiveImageURL string          `json:"proactiveImageUrl"`
		ProactiveAudioURL string          `json:"proactiveAudioUrl"`
		NewMood           string          `json:"newMood"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = Reply{
		MediaCaption:      wire.MediaCaption,
		ProactiveImageURL: wire.ProactiveImageURL,
		ProactiveAudioURL: wire.ProactiveAudioURL,
		NewMood:           wire.NewMood,
	}
	raw := bytes.TrimSpace(wire.Response)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '[' {
		return json.Unmarshal(raw, &r.Messages)
	}
	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return err
	}
	r.Messages = []string{single}
	return nil
}

// GreetingRequest asks for a welcome-back message.
type GreetingRequest struct {
	Context     string
	History     []string
	PersonaName string
}

// Generator is a model backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (Reply, error)
	Greeting(ctx context.Context, req GreetingRequest) (string, error)
}
