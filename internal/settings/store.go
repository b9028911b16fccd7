// Package settings stores JSON configuration blobs keyed by a fixed
// identifier, backed by the app_configurations table.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kruthika/companion/internal/db"
)

var (
	ErrNotFound   = errors.New("setting not found")
	ErrInvalidKey = errors.New("setting key required")
	ErrInvalidDoc = errors.New("setting must be a JSON object")
)

// Record is one stored configuration blob.
type Record struct {
	ID        string          `json:"id"`
	Settings  json.RawMessage `json:"settings"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store reads and writes configuration blobs.
type Store interface {
	Get(ctx context.Context, id string) (Record, error)
	Put(ctx context.Context, id string, doc json.RawMessage) (Record, error)
	List(ctx context.Context) ([]Record, error)
}

// PostgresStore persists blobs in app_configurations.
type PostgresStore struct {
	queries *db.Queries
}

func NewPostgresStore(queries *db.Queries) *PostgresStore {
	return &PostgresStore{queries: queries}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	id, err := normalizeKey(id)
	if err != nil {
		return Record{}, err
	}
	row, err := s.queries.GetAppConfiguration(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get setting %s: %w", id, err)
	}
	return fromRow(row), nil
}

func (s *PostgresStore) Put(ctx context.Context, id string, doc json.RawMessage) (Record, error) {
	id, err := normalizeKey(id)
	if err != nil {
		return Record{}, err
	}
	if err := validateDoc(doc); err != nil {
		return Record{}, err
	}
	row, err := s.queries.UpsertAppConfiguration(ctx, db.UpsertAppConfigurationParams{ID: id, Settings: doc})
	if err != nil {
		return Record{}, fmt.Errorf("put setting %s: %w", id, err)
	}
	return fromRow(row), nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.queries.ListAppConfigurations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func fromRow(row db.AppConfiguration) Record {
	rec := Record{ID: row.ID, Settings: json.RawMessage(row.Settings)}
	if row.UpdatedAt.Valid {
		rec.UpdatedAt = row.UpdatedAt.Time
	}
	return rec
}

// MemoryStore keeps blobs in process memory. It backs deployments without a
// database and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	id, err := normalizeKey(id)
	if err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Put(_ context.Context, id string, doc json.RawMessage) (Record, error) {
	id, err := normalizeKey(id)
	if err != nil {
		return Record{}, err
	}
	if err := validateDoc(doc); err != nil {
		return Record{}, err
	}
	rec := Record{ID: id, Settings: append(json.RawMessage(nil), doc...), UpdatedAt: s.now().UTC()}
	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()
	return rec, nil
}

func (s *MemoryStore) List(context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func normalizeKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidKey
	}
	return id, nil
}

func validateDoc(doc json.RawMessage) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(doc, &obj); err != nil || obj == nil {
		return ErrInvalidDoc
	}
	return nil
}

// Load decodes the blob stored under id into dst. It returns ErrNotFound when
// nothing is stored.
func Load(ctx context.Context, store Store, id string, dst any) error {
	rec, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(rec.Settings, dst); err != nil {
		return fmt.Errorf("decode setting %s: %w", id, err)
	}
	return nil
}

// Save encodes v and stores it under id.
func Save(ctx context.Context, store Store, id string, v any) (Record, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("encode setting %s: %w", id, err)
	}
	return store.Put(ctx, id, doc)
}
