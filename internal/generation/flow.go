package generation

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	proactiveMediaChance = 0.05
	preferImageChance    = 0.7
)

var imageRequestKeywords = []string{"send pic", "show photo", "send image", "send me a picture", "picture please"}

// Observer receives one call per backend generation.
type Observer interface {
	RecordGeneration(backend, outcome string, usage Usage, seconds float64)
}

type FlowOptions struct {
	// Name labels backend calls for the observer.
	Name     string
	Observer Observer
	Rand     func() float64
	// Pick returns an index in [0, n).
	Pick func(n int) int
}

// Flow wraps a backend with the reply rules that do not need a model: media
// sent by the user, requests for photos and occasional proactive shares. It
// also repairs backend replies that break the reply contract.
type Flow struct {
	backend  Generator
	name     string
	observer Observer
	rand     func() float64
	pick     func(n int) int
}

func NewFlow(backend Generator, opts FlowOptions) *Flow {
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	return &Flow{backend: backend, name: opts.Name, observer: opts.Observer, rand: opts.Rand, pick: opts.Pick}
}

func (f *Flow) Generate(ctx context.Context, req Request) (Reply, error) {
	if req.HasUserMedia {
		return Reply{Messages: []string{"Nice pic! ✨"}, NewMood: moodOr(req.Mood, "happy")}, nil
	}
	if reply, ok := f.mediaShare(req); ok {
		return reply, nil
	}

	start := time.Now()
	reply, err := f.backend.Generate(ctx, req)
	f.record(err, reply.Usage, time.Since(start))
	if err != nil {
		if errors.Is(err, ErrOverloaded) {
			return Reply{
				Messages: []string{
					"Oopsie! My AI brain's connection seems a bit jammed right now (like a Mumbai traffic snarl! 😅).",
					"Maybe try again in a moment? The servers might be taking a quick chai break!",
				},
				NewMood: moodOr(req.Mood, "a bit frazzled"),
			}, nil
		}
		return Reply{}, err
	}
	return Repair(reply, req.Mood), nil
}

func (f *Flow) Greeting(ctx context.Context, req GreetingRequest) (string, error) {
	start := time.Now()
	msg, err := f.backend.Greeting(ctx, req)
	f.record(err, Usage{}, time.Since(start))
	return msg, err
}

func (f *Flow) record(err error, usage Usage, elapsed time.Duration) {
	if f.observer == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, ErrOverloaded):
		outcome = "overloaded"
	case err != nil:
		outcome = "error"
	}
	f.observer.RecordGeneration(f.name, outcome, usage, elapsed.Seconds())
}

func (f *Flow) mediaShare(req Request) (Reply, bool) {
	lower := strings.ToLower(req.UserMessage)
	requested := false
	for _, kw := range imageRequestKeywords {
		if strings.Contains(lower, kw) {
			requested = true
			break
		}
	}
	if requested && req.HasAvailableImages() {
		return f.imageShare(req), true
	}

	if f.rand() >= proactiveMediaChance {
		return Reply{}, false
	}
	switch {
	case req.HasAvailableImages() && (!req.HasAvailableAudio() || f.rand() < preferImageChance):
		return f.imageShare(req), true
	case req.HasAvailableAudio():
		return Reply{
			ProactiveAudioURL: req.AvailableAudio[f.pick(len(req.AvailableAudio))],
			MediaCaption:      "Listen to this!",
			NewMood:           moodOr(req.Mood, "playful"),
		}, true
	}
	return Reply{}, false
}

func (f *Flow) imageShare(req Request) Reply {
	return Reply{
		ProactiveImageURL: req.AvailableImages[f.pick(len(req.AvailableImages))],
		MediaCaption:      "Check this out!",
		NewMood:           moodOr(req.Mood, "playful"),
	}
}

// Repair coerces a backend reply into the reply contract. Usage is kept.
func Repair(r Reply, mood string) Reply {
	if r.ProactiveImageURL != "" && r.ProactiveAudioURL != "" {
		r.ProactiveAudioURL = ""
	}
	if r.HasMedia() {
		if strings.TrimSpace(r.MediaCaption) == "" {
			r.MediaCaption = "Check this out!"
		}
		r.Messages = nil
		return r
	}
	if !r.HasText() && strings.TrimSpace(r.MediaCaption) != "" {
		r.Messages = []string{r.MediaCaption}
	}
	r.MediaCaption = ""

	if r.Messages == nil {
		r.Messages = []string{"I'm a bit speechless right now!", "What do you think?"}
		r.NewMood = moodOr(r.NewMood, moodOr(mood, "thinking"))
		return r
	}
	filtered := r.Messages[:0]
	for _, m := range r.Messages {
		if strings.TrimSpace(m) != "" {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 0 {
		if len(r.Messages) == 1 {
			r.Messages = []string{"Hmm?", "Yaar, say something!"}
			r.NewMood = moodOr(r.NewMood, moodOr(mood, "confused"))
			return r
		}
		r.Messages = []string{"...", "You there?"}
		r.NewMood = moodOr(r.NewMood, moodOr(mood, "waiting"))
		return r
	}
	r.Messages = filtered
	return r
}

func moodOr(mood, fallback string) string {
	if strings.TrimSpace(mood) != "" {
		return mood
	}
	return fallback
}
