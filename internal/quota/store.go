package quota

import (
	"context"
	"sync"
	"time"

	"github.com/kruthika/companion/internal/timeutil"
)

// UsageRecord is one user's token consumption for a calendar day.
type UsageRecord struct {
	UserID         string
	Day            timeutil.Day
	TokensConsumed int64
	LastResetAt    time.Time
}

// Store persists usage records. Add must be atomic per user: when the stored
// day differs from day the counter restarts at zero before tokens are added.
type Store interface {
	Get(ctx context.Context, userID string, day timeutil.Day) (UsageRecord, bool, error)
	Set(ctx context.Context, rec UsageRecord) error
	Add(ctx context.Context, userID string, day timeutil.Day, tokens int64, now time.Time) (UsageRecord, error)
	Sweep(ctx context.Context, before timeutil.Day) (int, error)
}

// MemoryStore keeps one record per user in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]UsageRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]UsageRecord)}
}

func (s *MemoryStore) Get(_ context.Context, userID string, day timeutil.Day) (UsageRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok || rec.Day != day {
		return UsageRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *MemoryStore) Set(_ context.Context, rec UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.TokensConsumed < 0 {
		rec.TokensConsumed = 0
	}
	s.records[rec.UserID] = rec
	return nil
}

func (s *MemoryStore) Add(_ context.Context, userID string, day timeutil.Day, tokens int64, now time.Time) (UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok || rec.Day != day {
		rec = UsageRecord{UserID: userID, Day: day, LastResetAt: now}
	}
	if tokens > 0 {
		rec.TokensConsumed += tokens
	}
	s.records[userID] = rec
	return rec, nil
}

// Sweep drops records for days strictly before the given day.
func (s *MemoryStore) Sweep(_ context.Context, before timeutil.Day) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for user, rec := range s.records {
		if rec.Day.Before(before) {
			delete(s.records, user)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of tracked users.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
