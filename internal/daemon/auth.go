package daemon

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"dubsync/internal/api"
)

// authMiddleware returns a middleware that validates bearer tokens.
// If token is empty, no authentication is required and all requests pass through.
// Otherwise, requests must include "Authorization: Bearer <token>" header.
// WebSocket upgrades may pass the token as the "token" query parameter instead.
func authMiddleware(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}
		if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
			if tokenMatches(strings.TrimPrefix(auth, "Bearer "), token) {
				return c.Next()
			}
		} else if websocket.IsWebSocketUpgrade(c) && tokenMatches(c.Query("token"), token) {
			return c.Next()
		}
		return c.Status(fiber.StatusUnauthorized).JSON(api.ErrorResponse{Error: "unauthorized"})
	}
}

func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
