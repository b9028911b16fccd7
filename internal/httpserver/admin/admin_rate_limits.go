package admin

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kruthika/companion/internal/app"
	"github.com/kruthika/companion/internal/httpserver/httputil"
	"github.com/kruthika/companion/internal/limits"
	"github.com/kruthika/companion/internal/settings"
)

type rateLimitHandler struct {
	container *app.Container
}

func registerAdminRateLimitRoutes(router fiber.Router, container *app.Container) {
	handler := &rateLimitHandler{container: container}
	group := router.Group("/rate-limits")
	group.Get("/", handler.getEffective)
	group.Put("/", handler.replace)
}

type limitPayload struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	RequestsPerHour   int `json:"requests_per_hour"`
	RequestsPerDay    int `json:"requests_per_day"`
	ParallelRequests  int `json:"parallel_requests"`
}

func toLimitPayload(cfg limits.LimitConfig) limitPayload {
	return limitPayload{
		RequestsPerMinute: cfg.RequestsPerMinute,
		RequestsPerHour:   cfg.RequestsPerHour,
		RequestsPerDay:    cfg.RequestsPerDay,
		ParallelRequests:  cfg.ParallelRequests,
	}
}

func (h *rateLimitHandler) getEffective(c *fiber.Ctx) error {
	def, devices := h.container.RateLimitSnapshot()
	out := make(map[string]limitPayload, len(devices))
	for id, cfg := range devices {
		out[id] = toLimitPayload(cfg)
	}
	return c.JSON(fiber.Map{
		"default": toLimitPayload(def),
		"devices": out,
	})
}

// replace persists the override document and applies it immediately.
func (h *rateLimitHandler) replace(c *fiber.Ctx) error {
	var doc app.RateLimitDocument
	if err := c.BodyParser(&doc); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if _, err := settings.Save(userContext(c), h.container.Settings, app.RateLimitSettingsKey, doc); err != nil {
		return writeSettingsError(c, err)
	}
	h.container.ApplyRateLimitDocument(doc)
	return h.getEffective(c)
}
