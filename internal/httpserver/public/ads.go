package public

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/kruthika/companion/internal/ads"
	"github.com/kruthika/companion/internal/app"
	"github.com/kruthika/companion/internal/httpserver/httputil"
)

type adsHandler struct {
	container *app.Container
}

type adOutcomeResponse struct {
	Fired     bool           `json:"fired"`
	Network   string         `json:"network,omitempty"`
	Reason    string         `json:"reason"`
	Directive *ads.Directive `json:"directive,omitempty"`
}

// settings returns the merged ad settings the client needs to render
// banners and schedule the inactivity timer.
func (h *adsHandler) settings(c *fiber.Ctx) error {
	current := h.container.AdSettings.Current(userContext(c))
	if current == nil {
		def := ads.DefaultSettings()
		current = &def
	}
	return c.JSON(current)
}

func (h *adsHandler) inactivity(c *fiber.Ctx) error {
	return h.fire(c, h.container.AdTrigger.OnInactivity)
}

func (h *adsHandler) click(c *fiber.Ctx) error {
	return h.fire(c, h.container.AdTrigger.OnExplicit)
}

func (h *adsHandler) fire(c *fiber.Ctx, attempt func(ctx context.Context, ref ads.DeviceRef) ads.Outcome) error {
	rc := identity(c)
	if rc.DeviceID == "" {
		return httputil.WriteError(c, fiber.StatusBadRequest, "device_id required")
	}
	sink := ads.NewDirectiveSink()
	ctx := ads.WithSink(userContext(c), sink)
	out := attempt(ctx, ads.DeviceRef{DeviceID: rc.DeviceID, SessionID: rc.SessionID})
	return c.JSON(adOutcomeResponse{
		Fired:     out.Fired,
		Network:   string(out.Network),
		Reason:    out.Reason,
		Directive: out.Directive,
	})
}
