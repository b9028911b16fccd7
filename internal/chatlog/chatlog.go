// Package chatlog records chat messages and daily activity for reporting.
package chatlog

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

var ErrInvalidEntry = errors.New("chatlog: invalid entry")

// Entry is one logged message.
type Entry struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Sender    Sender    `json:"sender_type"`
	ChatID    string    `json:"chat_id"`
	Text      string    `json:"text_content,omitempty"`
	HasImage  bool      `json:"has_image"`
	CreatedAt time.Time `json:"created_at"`
}

func (e Entry) validate() error {
	if e.MessageID == "" || e.UserID == "" || e.ChatID == "" {
		return ErrInvalidEntry
	}
	if e.Sender != SenderUser && e.Sender != SenderAI {
		return ErrInvalidEntry
	}
	return nil
}

// Sink accepts log entries.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// Truncate shortens text to at most limit runes.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}

// CompositeSink fans entries out to multiple sinks.
type CompositeSink struct {
	sinks []Sink
}

// NewCompositeSink drops nil sinks and returns nil when none remain.
func NewCompositeSink(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		filtered = append(filtered, sink)
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeSink{sinks: filtered}
}

func (c *CompositeSink) Append(ctx context.Context, entry Entry) error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, sink := range c.sinks {
		if err := sink.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
