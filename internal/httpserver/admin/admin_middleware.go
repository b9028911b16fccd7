package admin

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kruthika/companion/internal/app"
	"github.com/kruthika/companion/internal/httpserver/httputil"
)

type adminContextKey string

const (
	adminAuthHeaderPrefix = "bearer "
	adminContextEmailKey  = adminContextKey("companion/admin-email")
)

func adminAuthMiddleware(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !container.AdminAuth.Enabled() {
			return httputil.WriteError(c, fiber.StatusNotFound, "admin api disabled")
		}
		raw := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		token := ""
		if raw != "" && strings.HasPrefix(strings.ToLower(raw), adminAuthHeaderPrefix) {
			token = strings.TrimSpace(raw[len(adminAuthHeaderPrefix):])
		}
		if token == "" {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "admin authorization required")
		}

		email, err := container.AdminAuth.ValidateAccessToken(token)
		if err != nil {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.SetUserContext(context.WithValue(userContext(c), adminContextEmailKey, email))
		c.Locals("adminEmail", email)
		return c.Next()
	}
}

func adminEmailFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	email, ok := ctx.Value(adminContextEmailKey).(string)
	return email, ok && email != ""
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
