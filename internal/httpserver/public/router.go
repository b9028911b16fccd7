package public

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kruthika/companion/internal/app"
)

// Register wires up the chat client API.
func Register(app *fiber.App, container *app.Container) {
	group := app.Group("/v1", clientIdentity(), rateLimit(container))

	chat := &chatHandler{container: container}
	group.Post("/chat", chat.send)
	group.Get("/greeting", chat.greeting)
	group.Get("/quota", chat.quota)
	group.Get("/quota/:user_id", chat.quota)

	adsHandler := &adsHandler{container: container}
	group.Get("/ads/settings", adsHandler.settings)
	group.Post("/ads/inactivity", adsHandler.inactivity)
	group.Post("/ads/click", adsHandler.click)
}
