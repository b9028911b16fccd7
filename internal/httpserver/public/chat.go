package public

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kruthika/companion/internal/ads"
	"github.com/kruthika/companion/internal/app"
	"github.com/kruthika/companion/internal/conversation"
	"github.com/kruthika/companion/internal/httpserver/httputil"
)

type chatHandler struct {
	container *app.Container
}

type chatRequest struct {
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
	HasMedia  bool   `json:"has_media"`
	Mood      string `json:"mood"`
}

type quotaSnapshot struct {
	TokensConsumed int64   `json:"tokens_consumed"`
	Limit          int64   `json:"limit"`
	Ratio          float64 `json:"ratio"`
	Degraded       bool    `json:"degraded,omitempty"`
}

type chatResponse struct {
	Messages      []string            `json:"messages"`
	Media         *conversation.Media `json:"media,omitempty"`
	Mood          string              `json:"mood,omitempty"`
	Cached        bool                `json:"cached"`
	Fallback      bool                `json:"fallback"`
	QuotaExceeded bool                `json:"quota_exceeded"`
	Delayed       bool                `json:"delayed"`
	DelayMessage  string              `json:"delay_message,omitempty"`
	Quota         quotaSnapshot       `json:"quota"`
	Ad            *ads.Directive      `json:"ad,omitempty"`
}

func (h *chatHandler) send(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	rc := identity(c)

	res, err := h.container.Conversation.HandleMessage(userContext(c), conversation.Turn{
		UserID:    rc.UserID,
		DeviceID:  rc.DeviceID,
		SessionID: rc.SessionID,
		MessageID: strings.TrimSpace(req.MessageID),
		Text:      req.Message,
		HasMedia:  req.HasMedia,
		Mood:      strings.TrimSpace(req.Mood),
	})
	if err != nil {
		return writeConversationError(c, err)
	}

	resp := chatResponse{
		Messages:      res.Messages,
		Media:         res.Media,
		Mood:          res.Mood,
		Cached:        res.Cached,
		Fallback:      res.Fallback,
		QuotaExceeded: res.QuotaExceeded,
		Delayed:       res.Delayed,
		DelayMessage:  res.DelayMessage,
		Quota: quotaSnapshot{
			TokensConsumed: res.Quota.TokensConsumed,
			Limit:          res.Quota.Limit,
			Ratio:          res.Quota.Ratio,
			Degraded:       res.Quota.Degraded,
		},
	}
	if resp.Messages == nil {
		resp.Messages = []string{}
	}
	if len(res.Ads) > 0 {
		resp.Ad = &res.Ads[0]
	}
	return c.JSON(resp)
}

func (h *chatHandler) greeting(c *fiber.Ctx) error {
	rc := identity(c)
	g, err := h.container.Conversation.ReturnGreeting(userContext(c), rc.DeviceID)
	if err != nil {
		return writeConversationError(c, err)
	}
	return c.JSON(g)
}

type usageResponse struct {
	UserID         string    `json:"user_id"`
	Day            string    `json:"day"`
	TokensConsumed int64     `json:"tokens_consumed"`
	Limit          int64     `json:"limit"`
	Remaining      int64     `json:"remaining"`
	Ratio          float64   `json:"ratio"`
	ResetsAt       time.Time `json:"resets_at"`
	EstimatedCost  string    `json:"estimated_cost_usd"`
}

// quota reports the caller's own usage. A user id in the path must match
// the caller; other users are only visible through the admin API.
func (h *chatHandler) quota(c *fiber.Ctx) error {
	userID := identity(c).UserID
	if userID == "" {
		return httputil.WriteError(c, fiber.StatusBadRequest, "user_id required")
	}
	if requested := strings.TrimSpace(c.Params("user_id")); requested != "" && requested != userID {
		return httputil.WriteError(c, fiber.StatusForbidden, "quota of another user")
	}
	usage, err := h.container.Ledger.Usage(userContext(c), userID)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusServiceUnavailable, "quota store unavailable")
	}
	return c.JSON(usageResponse{
		UserID:         usage.UserID,
		Day:            usage.Day.String(),
		TokensConsumed: usage.TokensConsumed,
		Limit:          usage.Limit,
		Remaining:      usage.Remaining,
		Ratio:          usage.Ratio,
		ResetsAt:       usage.ResetsAt,
		EstimatedCost:  usage.EstimatedCost.StringFixed(6),
	})
}

func writeConversationError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return httputil.WriteError(c, fiber.StatusBadRequest, "message required")
	case errors.Is(err, conversation.ErrMissingDevice):
		return httputil.WriteError(c, fiber.StatusBadRequest, "device_id required")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return httputil.WriteError(c, fiber.StatusRequestTimeout, "request canceled")
	default:
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}
}
