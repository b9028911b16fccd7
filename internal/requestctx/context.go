package requestctx

import (
	"context"
	"strings"
)

type contextKey string

const fiberLocalsKey = "requestctx"

// Key is the typed context key used for storing the client identity.
var Key contextKey = "companion/requestctx"

// Context identifies the client behind a request. DeviceID is the stable
// browser identifier; UserID falls back to it when the client sends none.
type Context struct {
	DeviceID  string
	UserID    string
	SessionID string
	ClientIP  string
}

// New trims the identifiers and applies the user fallback.
func New(deviceID, userID, sessionID, clientIP string) *Context {
	rc := &Context{
		DeviceID:  strings.TrimSpace(deviceID),
		UserID:    strings.TrimSpace(userID),
		SessionID: strings.TrimSpace(sessionID),
		ClientIP:  strings.TrimSpace(clientIP),
	}
	if rc.UserID == "" {
		rc.UserID = rc.DeviceID
	}
	return rc
}

// RateKey is the limiter key for the caller: the device when known,
// otherwise the client address.
func (c *Context) RateKey() string {
	if c == nil {
		return ""
	}
	if c.DeviceID != "" {
		return "device:" + c.DeviceID
	}
	if c.ClientIP != "" {
		return "ip:" + c.ClientIP
	}
	return ""
}

// WithContext embeds the request context into the parent context.
func WithContext(parent context.Context, rc *Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, Key, rc)
}

// FromContext retrieves the request context if present.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(Key).(*Context)
	return rc, ok && rc != nil
}

// FiberLocalsKey returns the key used in fiber.Locals for request context storage.
func FiberLocalsKey() string {
	return fiberLocalsKey
}
