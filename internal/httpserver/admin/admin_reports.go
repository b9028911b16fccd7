package admin

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kruthika/companion/internal/ads"
	"github.com/kruthika/companion/internal/app"
	"github.com/kruthika/companion/internal/httpserver/httputil"
	"github.com/kruthika/companion/internal/timeutil"
)

func registerAdminReportRoutes(router fiber.Router, container *app.Container) {
	handler := &reportHandler{container: container}
	router.Get("/reports/daily-active", handler.dailyActive)
	router.Get("/quota/:user_id", handler.quotaUsage)
	router.Delete("/quota/:user_id", handler.resetQuota)
	router.Get("/ads/devices/:device_id", handler.adState)
}

type reportHandler struct {
	container *app.Container
}

// dailyActive counts distinct users for a day (default today) and chat.
func (h *reportHandler) dailyActive(c *fiber.Ctx) error {
	if h.container.Activity == nil {
		return httputil.WriteError(c, fiber.StatusNotImplemented, "activity log requires a database")
	}
	day := h.container.Clock.Today()
	if raw := strings.TrimSpace(c.Query("day")); raw != "" {
		parsed, err := timeutil.ParseDay(raw)
		if err != nil {
			return httputil.WriteError(c, fiber.StatusBadRequest, "day must be YYYY-MM-DD")
		}
		day = parsed
	}
	chatID := strings.TrimSpace(c.Query("chat_id"))
	if chatID == "" {
		chatID = h.container.Config.Conversation.ChatID
	}
	count, err := h.container.Activity.DailyActiveUsers(userContext(c), day, chatID)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"day":          day.String(),
		"chat_id":      chatID,
		"active_users": count,
	})
}

func (h *reportHandler) quotaUsage(c *fiber.Ctx) error {
	usage, err := h.container.Ledger.Usage(userContext(c), c.Params("user_id"))
	if err != nil {
		return httputil.WriteError(c, fiber.StatusServiceUnavailable, "quota store unavailable")
	}
	return c.JSON(fiber.Map{
		"user_id":            usage.UserID,
		"day":                usage.Day.String(),
		"tokens_consumed":    usage.TokensConsumed,
		"limit":              usage.Limit,
		"remaining":          usage.Remaining,
		"estimated_cost_usd": usage.EstimatedCost.StringFixed(6),
	})
}

func (h *reportHandler) resetQuota(c *fiber.Ctx) error {
	if err := h.container.Ledger.Reset(userContext(c), c.Params("user_id")); err != nil {
		return httputil.WriteError(c, fiber.StatusServiceUnavailable, "quota store unavailable")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *reportHandler) adState(c *fiber.Ctx) error {
	ref := ads.DeviceRef{DeviceID: c.Params("device_id"), SessionID: c.Query("session_id")}
	state, err := h.container.AdController.State(userContext(c), ref)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusServiceUnavailable, "ad counter store unavailable")
	}
	return c.JSON(fiber.Map{
		"device_id":     ref.DeviceID,
		"daily_count":   state.DailyCount,
		"daily_date":    state.DailyDate.String(),
		"session_count": state.SessionCount,
		"last_network":  string(state.LastNetwork),
	})
}
