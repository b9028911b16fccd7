package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kruthika/companion/internal/ads"
	"github.com/kruthika/companion/internal/app"
	"github.com/kruthika/companion/internal/httpserver/httputil"
	"github.com/kruthika/companion/internal/settings"
)

func registerAdminSettingsRoutes(router fiber.Router, container *app.Container) {
	handler := &settingsHandler{container: container}
	group := router.Group("/settings")
	group.Get("/", handler.list)
	group.Get("/:key", handler.get)
	group.Put("/:key", handler.update)
}

type settingsHandler struct {
	container *app.Container
}

func (h *settingsHandler) list(c *fiber.Ctx) error {
	records, err := h.container.Settings.List(userContext(c))
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}
	if records == nil {
		records = []settings.Record{}
	}
	return c.JSON(fiber.Map{"settings": records})
}

func (h *settingsHandler) get(c *fiber.Ctx) error {
	rec, err := h.container.Settings.Get(userContext(c), strings.TrimSpace(c.Params("key")))
	if err != nil {
		return writeSettingsError(c, err)
	}
	return c.JSON(rec)
}

// update stores the blob and applies it to the live services that cache it.
// Ad settings are validated and stored merged so every field is present.
func (h *settingsHandler) update(c *fiber.Ctx) error {
	key := strings.TrimSpace(c.Params("key"))
	doc := json.RawMessage(c.Body())

	var apply func()
	switch key {
	case h.container.AdSettings.Key():
		partial, err := ads.ParsePartial(doc)
		if err != nil {
			return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
		}
		merged := ads.MergeSettings(partial)
		raw, err := json.Marshal(merged)
		if err != nil {
			return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
		}
		doc = raw
		apply = func() { h.container.AdSettings.Set(merged) }
	case app.RateLimitSettingsKey:
		var parsed app.RateLimitDocument
		if err := json.Unmarshal(doc, &parsed); err != nil {
			return httputil.WriteError(c, fiber.StatusBadRequest, "invalid rate limit document")
		}
		apply = func() { h.container.ApplyRateLimitDocument(parsed) }
	}

	rec, err := h.container.Settings.Put(userContext(c), key, doc)
	if err != nil {
		return writeSettingsError(c, err)
	}
	if apply != nil {
		apply()
	}

	email, _ := adminEmailFromContext(userContext(c))
	h.container.Logger.Info("settings updated", slog.String("key", key), slog.String("admin", email))
	return c.JSON(rec)
}

func writeSettingsError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, settings.ErrNotFound):
		return httputil.WriteError(c, fiber.StatusNotFound, "setting not found")
	case errors.Is(err, settings.ErrInvalidKey), errors.Is(err, settings.ErrInvalidDoc):
		return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
	default:
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}
}
