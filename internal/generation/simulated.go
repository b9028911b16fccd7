package generation

import (
	"context"
	"math/rand/v2"
)

var simulatedResponses = []string{
	"That's really interesting! Tell me more about that.",
	"I understand what you're saying. How does that make you feel?",
	"That's a great point! I'd love to explore that further with you.",
	"I appreciate you sharing that with me. What would you like to know?",
	"Thanks for that insight! Is there anything specific you'd like help with?",
}

// OfflineGreetings are used when no greeting can be generated.
var OfflineGreetings = []string{
	"Hey! Miss me? 😄 I was just thinking about our last conversation!",
	"Arrey! Where did you disappear? I was waiting for you to come back!",
	"Psst... I'm back! Did you miss chatting with me? 🤗",
	"Hello again! I hope you had a good break. Ready to chat?",
	"I'm here! Thoda busy tha, but now I'm all yours for chatting! 💬",
}

// SimulatedGenerator picks canned replies. It backs the service when no
// model provider is configured.
type SimulatedGenerator struct {
	pick func(n int) int
}

func NewSimulatedGenerator(pick func(n int) int) *SimulatedGenerator {
	if pick == nil {
		pick = rand.IntN
	}
	return &SimulatedGenerator{pick: pick}
}

func (g *SimulatedGenerator) Generate(ctx context.Context, req Request) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	return Reply{
		Messages: []string{simulatedResponses[g.pick(len(simulatedResponses))]},
		NewMood:  moodOr(req.Mood, "happy"),
	}, nil
}

func (g *SimulatedGenerator) Greeting(ctx context.Context, _ GreetingRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return OfflineGreetings[g.pick(len(OfflineGreetings))], nil
}
