package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Result is the outcome of the latest probe of one dependency.
type Result struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Critical  bool      `json:"critical"`
	CheckedAt time.Time `json:"checked_at"`
}

type registration struct {
	check    Check
	critical bool
}

// Monitor periodically probes registered dependencies and keeps the latest
// result for each. A failing critical check marks the service down; any
// other failure only degrades it.
type Monitor struct {
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	checks  map[string]registration
	results map[string]Result

	startOnce sync.Once
}

// NewMonitor constructs a monitor. Zero durations select a one minute
// interval and a five second probe timeout.
func NewMonitor(interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 || timeout > interval {
		timeout = 5 * time.Second
	}
	return &Monitor{
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
		checks:   make(map[string]registration),
		results:  make(map[string]Result),
	}
}

// Register adds a named check. Registering a name twice replaces it.
func (m *Monitor) Register(name string, critical bool, check Check) {
	if m == nil || check == nil {
		return
	}
	m.mu.Lock()
	m.checks[name] = registration{check: check, critical: critical}
	m.mu.Unlock()
}

// Start begins the monitoring loop until ctx is canceled.
func (m *Monitor) Start(ctx context.Context) {
	if m == nil {
		return
	}
	m.startOnce.Do(func() {
		go m.run(ctx)
	})
}

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce probes every registered dependency concurrently.
func (m *Monitor) RunOnce(ctx context.Context) {
	if m == nil {
		return
	}
	m.mu.RLock()
	checks := make(map[string]registration, len(m.checks))
	for name, reg := range m.checks {
		checks[name] = reg
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for name, reg := range checks {
		wg.Add(1)
		go func(name string, reg registration) {
			defer wg.Done()
			timeoutCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			start := m.now()
			err := reg.check(timeoutCtx)
			res := Result{
				Name:      name,
				Status:    StatusOK,
				LatencyMS: m.now().Sub(start).Milliseconds(),
				Critical:  reg.critical,
				CheckedAt: m.now(),
			}
			if err != nil {
				res.Status = StatusDown
				res.Error = err.Error()
			}
			m.mu.Lock()
			m.results[name] = res
			m.mu.Unlock()
		}(name, reg)
	}
	wg.Wait()
}

// Snapshot returns the overall status and the latest result per dependency,
// sorted by name. Dependencies not yet probed are omitted.
func (m *Monitor) Snapshot() (string, []Result) {
	if m == nil {
		return StatusOK, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	overall := StatusOK
	results := make([]Result, 0, len(m.results))
	for _, res := range m.results {
		results = append(results, res)
		if res.Status == StatusOK {
			continue
		}
		if res.Critical {
			overall = StatusDown
		} else if overall == StatusOK {
			overall = StatusDegraded
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return overall, results
}
