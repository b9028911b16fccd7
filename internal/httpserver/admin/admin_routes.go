package admin

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kruthika/companion/internal/app"
	"github.com/kruthika/companion/internal/auth"
	"github.com/kruthika/companion/internal/httpserver/httputil"
)

func registerAdminAuthRoutes(router fiber.Router, container *app.Container) {
	handler := &adminAuthHandler{authService: container.AdminAuth}
	router.Post("/login", handler.loginLocal)
	router.Post("/refresh", handler.refresh)
}

type adminAuthHandler struct {
	authService *auth.AdminAuthService
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func (h *adminAuthHandler) loginLocal(c *fiber.Ctx) error {
	if !h.authService.Enabled() {
		return httputil.WriteError(c, fiber.StatusNotFound, "admin authentication disabled")
	}

	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return httputil.WriteError(c, fiber.StatusBadRequest, "email and password required")
	}

	pair, err := h.authService.AuthenticateLocal(userContext(c), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "invalid credentials")
		}
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(buildTokenResponse(pair))
}

func (h *adminAuthHandler) refresh(c *fiber.Ctx) error {
	if !h.authService.Enabled() {
		return httputil.WriteError(c, fiber.StatusNotFound, "admin authentication disabled")
	}

	var req refreshRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		return httputil.WriteError(c, fiber.StatusBadRequest, "refresh token required")
	}

	pair, err := h.authService.Refresh(token)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusUnauthorized, "invalid refresh token")
	}
	return c.JSON(buildTokenResponse(pair))
}

func buildTokenResponse(pair *auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}
