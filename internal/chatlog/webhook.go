package chatlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kruthika/companion/internal/config"
)

// WebhookSink posts each entry as JSON to the configured endpoints.
type WebhookSink struct {
	client     *http.Client
	urls       []string
	maxRetries int
	textLimit  int
	logger     *slog.Logger
}

// NewWebhookSink returns nil when no endpoint is configured.
func NewWebhookSink(urls []string, cfg config.WebhookConfig, textLimit int, logger *slog.Logger) *WebhookSink {
	targets := make([]string, 0, len(urls))
	for _, u := range urls {
		if strings.TrimSpace(u) != "" {
			targets = append(targets, strings.TrimSpace(u))
		}
	}
	if len(targets) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &WebhookSink{
		client:     &http.Client{Timeout: cfg.Timeout},
		urls:       targets,
		maxRetries: cfg.MaxRetries,
		textLimit:  textLimit,
		logger:     logger,
	}
}

func (s *WebhookSink) Append(ctx context.Context, entry Entry) error {
	if s == nil {
		return nil
	}
	if err := entry.validate(); err != nil {
		return err
	}
	entry.Text = Truncate(entry.Text, s.textLimit)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	var errs []error
	for _, target := range s.urls {
		if err := s.postWithRetries(ctx, target, body); err != nil {
			s.logger.Warn("chat log webhook failed", slog.String("url", target), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
		}
	}
	return errors.Join(errs...)
}

func (s *WebhookSink) postWithRetries(ctx context.Context, url string, body []byte) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := s.post(ctx, url, body); err != nil {
			lastErr = err
			if attempt == s.maxRetries {
				break
			}
			delay := time.Duration(attempt) * 250 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		return nil
	}
	return lastErr
}

func (s *WebhookSink) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
