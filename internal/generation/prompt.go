package generation

import (
	"fmt"
	"strings"
)

const replyFormat = `Reply with a single JSON object and nothing else:
{"response": ["short message", "optional second message"], "newMood": "one word mood"}
Keep every message to one or two lines. Never include media URLs.`

func systemPrompt(req Request) string {
	p := req.Persona
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. %s\n", p.Name, p.Description)
	fmt.Fprintf(&b, "Personality: %s\n", p.Personality)
	if len(p.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(p.Interests, ", "))
	}
	fmt.Fprintf(&b, "Style: %s\n", p.ResponseStyle)
	fmt.Fprintf(&b, "Language: %s\n", p.Language)
	if p.CustomInstructions != "" {
		b.WriteString(p.CustomInstructions)
		b.WriteString("\n")
	}
	b.WriteString(replyFormat)
	return b.String()
}

func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Time of day: %s\n", req.TimeOfDay)
	if req.Mood != "" {
		fmt.Fprintf(&b, "Your current mood: %s\n", req.Mood)
	}
	if recent := req.Recent(); len(recent) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, line := range recent {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "User says: %s", req.UserMessage)
	return b.String()
}

func greetingPrompt(req GreetingRequest) string {
	name := req.PersonaName
	if name == "" {
		name = "Maya"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. The user is coming back after some time away. ", name)
	b.WriteString("Write one short, warm welcome-back message (max two lines) with an emoji. Reply with the message text only.\n")
	if req.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", req.Context)
	}
	if len(req.History) > 0 {
		b.WriteString("Last messages:\n")
		for _, line := range req.History {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// extractJSON strips code fences and any prose around the outermost object.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
