package chatlog

import (
	"context"
	"log/slog"
)

// LogSink writes entries to a structured logger. It backs the chat log when
// no database is configured.
type LogSink struct {
	logger    *slog.Logger
	textLimit int
}

func NewLogSink(logger *slog.Logger, textLimit int) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, textLimit: textLimit}
}

func (s *LogSink) Append(ctx context.Context, entry Entry) error {
	if err := entry.validate(); err != nil {
		return err
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "chat message",
		slog.String("message_id", entry.MessageID),
		slog.String("user_id", entry.UserID),
		slog.String("sender", string(entry.Sender)),
		slog.String("chat_id", entry.ChatID),
		slog.Bool("has_image", entry.HasImage),
		slog.Int("text_len", len(Truncate(entry.Text, s.textLimit))),
	)
	return nil
}
