package ads

import (
	"context"
	"sync"

	"github.com/kruthika/companion/internal/timeutil"
)

// DeviceRef identifies whose counters are read. SessionID scopes the session
// counter; an empty SessionID shares one session per device.
type DeviceRef struct {
	DeviceID  string
	SessionID string
}

// CounterState is the persisted throttle state for one device.
type CounterState struct {
	DailyCount   int
	DailyDate    timeutil.Day
	SessionCount int
	LastNetwork  Network
}

// Caps bounds the ads one device may be shown.
type Caps struct {
	PerSession int
	PerDay     int
}

// CounterStore persists CounterState per device and session. Reserve,
// Release and Commit are atomic for every process sharing the store.
type CounterStore interface {
	Load(ctx context.Context, ref DeviceRef) (CounterState, error)
	Save(ctx context.Context, ref DeviceRef, state CounterState) error
	// Reserve rolls the counters over to day and takes one slot from both
	// caps. It returns the state before the slot was taken. When a cap is
	// reached nothing is taken and the matching reason is returned.
	Reserve(ctx context.Context, ref DeviceRef, day timeutil.Day, caps Caps) (CounterState, string, error)
	// Release gives back a slot taken by Reserve on the same day.
	Release(ctx context.Context, ref DeviceRef, day timeutil.Day) error
	// Commit records the network of a delivered directive.
	Commit(ctx context.Context, ref DeviceRef, network Network) error
}

type memoryDevice struct {
	dailyCount  int
	dailyDate   timeutil.Day
	lastNetwork Network
	sessions    map[string]int
}

// MemoryCounterStore keeps counters in process memory.
type MemoryCounterStore struct {
	mu      sync.Mutex
	devices map[string]*memoryDevice
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{devices: make(map[string]*memoryDevice)}
}

func (s *MemoryCounterStore) Load(_ context.Context, ref DeviceRef) (CounterState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[ref.DeviceID]
	if !ok {
		return CounterState{}, nil
	}
	return CounterState{
		DailyCount:   d.dailyCount,
		DailyDate:    d.dailyDate,
		SessionCount: d.sessions[ref.SessionID],
		LastNetwork:  d.lastNetwork,
	}, nil
}

func (s *MemoryCounterStore) device(deviceID string) *memoryDevice {
	d, ok := s.devices[deviceID]
	if !ok {
		d = &memoryDevice{sessions: make(map[string]int)}
		s.devices[deviceID] = d
	}
	return d
}

func (s *MemoryCounterStore) Reserve(_ context.Context, ref DeviceRef, day timeutil.Day, caps Caps) (CounterState, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.device(ref.DeviceID)
	if d.dailyDate != day {
		d.dailyCount = 0
		d.dailyDate = day
		d.sessions = make(map[string]int)
	}
	state := CounterState{
		DailyCount:   d.dailyCount,
		DailyDate:    day,
		SessionCount: d.sessions[ref.SessionID],
		LastNetwork:  d.lastNetwork,
	}
	if state.SessionCount >= caps.PerSession {
		return state, ReasonSessionCap, nil
	}
	if state.DailyCount >= caps.PerDay {
		return state, ReasonDailyCap, nil
	}
	d.dailyCount++
	d.sessions[ref.SessionID]++
	return state, "", nil
}

func (s *MemoryCounterStore) Release(_ context.Context, ref DeviceRef, day timeutil.Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[ref.DeviceID]
	if !ok || d.dailyDate != day {
		return nil
	}
	if d.dailyCount > 0 {
		d.dailyCount--
	}
	if d.sessions[ref.SessionID] > 0 {
		d.sessions[ref.SessionID]--
	}
	return nil
}

func (s *MemoryCounterStore) Commit(_ context.Context, ref DeviceRef, network Network) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device(ref.DeviceID).lastNetwork = network
	return nil
}

func (s *MemoryCounterStore) Save(_ context.Context, ref DeviceRef, state CounterState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.device(ref.DeviceID)
	if !d.dailyDate.IsZero() && d.dailyDate != state.DailyDate {
		// A new day starts every session of the device from zero.
		d.sessions = make(map[string]int)
	}
	d.dailyCount = state.DailyCount
	d.dailyDate = state.DailyDate
	d.lastNetwork = state.LastNetwork
	d.sessions[ref.SessionID] = state.SessionCount
	return nil
}
