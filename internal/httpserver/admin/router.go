package admin

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kruthika/companion/internal/app"
)

// Register wires up all /admin routes (auth + protected APIs).
func Register(app *fiber.App, container *app.Container) {
	registerAdminAuthRoutes(app.Group("/admin"), container)

	protected := app.Group("/admin", adminAuthMiddleware(container))
	registerAdminSettingsRoutes(protected, container)
	registerAdminRateLimitRoutes(protected, container)
	registerAdminReportRoutes(protected, container)
}
