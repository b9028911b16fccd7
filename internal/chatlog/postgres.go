package chatlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kruthika/companion/internal/db"
	"github.com/kruthika/companion/internal/timeutil"
)

const uniqueViolation = "23505"

// PostgresSink writes messages_log rows and marks the sender active for the
// day in daily_activity_log.
type PostgresSink struct {
	queries   *db.Queries
	textLimit int
	loc       *time.Location
}

func NewPostgresSink(queries *db.Queries, textLimit int, loc *time.Location) *PostgresSink {
	return &PostgresSink{queries: queries, textLimit: textLimit, loc: timeutil.EnsureLocation(loc)}
}

func (s *PostgresSink) Append(ctx context.Context, entry Entry) error {
	if err := entry.validate(); err != nil {
		return err
	}
	ts := entry.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	err := s.queries.InsertMessageLog(ctx, db.InsertMessageLogParams{
		ID:          toPgUUID(uuid.New()),
		MessageID:   entry.MessageID,
		UserID:      entry.UserID,
		SenderType:  string(entry.Sender),
		ChatID:      entry.ChatID,
		TextContent: toPgText(Truncate(entry.Text, s.textLimit)),
		HasImage:    entry.HasImage,
		CreatedAt:   pgtype.Timestamptz{Time: ts, Valid: true},
	})
	if err != nil {
		return fmt.Errorf("insert message log: %w", err)
	}

	if entry.Sender != SenderUser {
		return nil
	}
	day := timeutil.DayOf(ts, s.loc)
	err = s.queries.InsertDailyActivity(ctx, db.InsertDailyActivityParams{
		ID:           toPgUUID(uuid.New()),
		UserPseudoID: entry.UserID,
		ActivityDate: toPgDate(day),
		ChatID:       entry.ChatID,
	})
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("insert daily activity: %w", err)
	}
	return nil
}

// DailyActiveUsers counts distinct users active on day in chatID.
func (s *PostgresSink) DailyActiveUsers(ctx context.Context, day timeutil.Day, chatID string) (int64, error) {
	return s.queries.CountDailyActiveUsers(ctx, db.CountDailyActiveUsersParams{
		ActivityDate: toPgDate(day),
		ChatID:       chatID,
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func toPgText(value string) pgtype.Text {
	if strings.TrimSpace(value) == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}

func toPgDate(day timeutil.Day) pgtype.Date {
	if day.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: day.Start(time.UTC), Valid: true}
}
