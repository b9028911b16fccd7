// Package httputil holds response helpers shared by the public and admin
// routers.
package httputil

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError replies with status and an ErrorResponse. An empty msg falls
// back to the status text; the request id set by the requestid middleware
// is echoed so clients can quote it.
func WriteError(c *fiber.Ctx, status int, msg string) error {
	if msg == "" {
		msg = utils.StatusMessage(status)
	}
	if msg == "" {
		msg = "unknown error"
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:     msg,
		RequestID: c.GetRespHeader(fiber.HeaderXRequestID),
	})
}
