package public

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kruthika/companion/internal/app"
	"github.com/kruthika/companion/internal/httpserver/httputil"
	"github.com/kruthika/companion/internal/limits"
	"github.com/kruthika/companion/internal/requestctx"
)

const (
	headerDeviceID  = "X-Device-ID"
	headerUserID    = "X-User-ID"
	headerSessionID = "X-Session-ID"
)

type identityPayload struct {
	DeviceID  string `json:"device_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// clientIdentity resolves the caller from headers, the query string or a
// JSON body, in that order, and injects it into the request context.
func clientIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := identityPayload{
			DeviceID:  c.Get(headerDeviceID),
			UserID:    c.Get(headerUserID),
			SessionID: c.Get(headerSessionID),
		}
		if id.DeviceID == "" {
			id.DeviceID = c.Query("device_id")
		}
		if id.UserID == "" {
			id.UserID = c.Query("user_id")
		}
		if id.SessionID == "" {
			id.SessionID = c.Query("session_id")
		}
		if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationJSON) && len(c.Body()) > 0 {
			var body identityPayload
			if err := json.Unmarshal(c.Body(), &body); err == nil {
				if id.DeviceID == "" {
					id.DeviceID = body.DeviceID
				}
				if id.UserID == "" {
					id.UserID = body.UserID
				}
				if id.SessionID == "" {
					id.SessionID = body.SessionID
				}
			}
		}

		rc := requestctx.New(id.DeviceID, id.UserID, id.SessionID, c.IP())
		c.Locals(requestctx.FiberLocalsKey(), rc)
		c.SetUserContext(requestctx.WithContext(userContext(c), rc))
		return c.Next()
	}
}

// rateLimit admits the request against the caller's limits and releases the
// parallel slot when the handler returns.
func rateLimit(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc, _ := requestctx.FromContext(userContext(c))
		release, err := container.AcquireRateLimits(userContext(c), rc)
		if err != nil {
			if errors.Is(err, limits.ErrLimitExceeded) {
				return httputil.WriteError(c, fiber.StatusTooManyRequests, "rate limit exceeded")
			}
			return httputil.WriteError(c, fiber.StatusInternalServerError, "rate limit check failed")
		}
		defer release()
		return c.Next()
	}
}

func identity(c *fiber.Ctx) *requestctx.Context {
	if rc, ok := c.Locals(requestctx.FiberLocalsKey()).(*requestctx.Context); ok && rc != nil {
		return rc
	}
	return requestctx.New("", "", "", c.IP())
}

func userContext(c *fiber.Ctx) context.Context {
	if c == nil {
		return context.Background()
	}
	if uc := c.UserContext(); uc != nil {
		return uc
	}
	return context.Background()
}
