package ads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOpenFailed   = errors.New("ad open failed")
	ErrNoSubscriber = errors.New("no subscriber for ad directive")
	ErrNoSink       = errors.New("no directive sink in context")
	ErrSinkClosed   = errors.New("directive sink closed")
	ErrNoNetwork    = errors.New("no ad network enabled")
)

// Directive tells a client to open a sponsor link, optionally behind an
// interstitial message shown for DurationMs.
type Directive struct {
	Network    Network   `json:"network"`
	URL        string    `json:"url"`
	DeviceID   string    `json:"device_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Trigger    string    `json:"trigger,omitempty"`
	Message    string    `json:"message,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Navigator delivers a directive to the device. A nil error means the open
// attempt was handed off.
type Navigator interface {
	Open(ctx context.Context, d Directive) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, d Directive) error

func (f NavigatorFunc) Open(ctx context.Context, d Directive) error { return f(ctx, d) }

// PublishNavigator pushes directives over Redis pub/sub to
// "<channel>:<device_id>", where a connected client session listens.
type PublishNavigator struct {
	client  *redis.Client
	channel string
}

func NewPublishNavigator(client *redis.Client, channel string) *PublishNavigator {
	if channel == "" {
		channel = "ads:open"
	}
	return &PublishNavigator{client: client, channel: channel}
}

func (n *PublishNavigator) Open(ctx context.Context, d Directive) error {
	if n == nil || n.client == nil {
		return ErrNoSubscriber
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode directive: %w", err)
	}
	receivers, err := n.client.Publish(ctx, n.Channel(d.DeviceID), payload).Result()
	if err != nil {
		return fmt.Errorf("publish directive: %w", err)
	}
	if receivers == 0 {
		return ErrNoSubscriber
	}
	return nil
}

// Channel returns the pub/sub channel for a device.
func (n *PublishNavigator) Channel(deviceID string) string {
	return n.channel + ":" + deviceID
}

// DirectiveSink collects directives destined for the in-flight response.
// Once Wait returns the sink is sealed and further adds are refused, so a
// late directive is never reported as delivered.
type DirectiveSink struct {
	mu         sync.Mutex
	directives []Directive
	sealed     bool
	done       chan struct{}
	once       sync.Once
}

func NewDirectiveSink() *DirectiveSink {
	return &DirectiveSink{done: make(chan struct{})}
}

// Add records a directive. It fails with ErrSinkClosed after Wait returned.
func (s *DirectiveSink) Add(d Directive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return ErrSinkClosed
	}
	s.directives = append(s.directives, d)
	return nil
}

// Close tells waiters that no more directives will be added.
func (s *DirectiveSink) Close() {
	s.once.Do(func() { close(s.done) })
}

// Wait blocks until the sink is closed, the timeout passes or ctx ends,
// then seals the sink and returns what was collected.
func (s *DirectiveSink) Wait(ctx context.Context, timeout time.Duration) []Directive {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
	case <-ctx.Done():
	}
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
	return s.Directives()
}

func (s *DirectiveSink) Directives() []Directive {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Directive, len(s.directives))
	copy(out, s.directives)
	return out
}

type sinkKey struct{}

// WithSink attaches the sink to ctx for InlineNavigator.
func WithSink(ctx context.Context, sink *DirectiveSink) context.Context {
	return context.WithValue(ctx, sinkKey{}, sink)
}

// SinkFrom returns the sink attached to ctx, if any.
func SinkFrom(ctx context.Context) *DirectiveSink {
	sink, _ := ctx.Value(sinkKey{}).(*DirectiveSink)
	return sink
}

// InlineNavigator attaches the directive to the current response.
type InlineNavigator struct{}

func (InlineNavigator) Open(ctx context.Context, d Directive) error {
	sink := SinkFrom(ctx)
	if sink == nil {
		return ErrNoSink
	}
	return sink.Add(d)
}
