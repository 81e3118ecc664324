// Package middleware provides authentication, logging, rate limiting and tracing middleware for the application.
package middleware

import (
	"strings"

	"socialfeed/internal/auth"
	"socialfeed/internal/models"

	"github.com/gofiber/fiber/v2"
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func AuthRequired(tv TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return models.RespondWithError(c, models.NewUnauthenticatedError(""))
		}
		return authenticate(c, tv, token)
	}
}

// WebSocketAuthRequired validates a token from the "token" query parameter,
// falling back to the Authorization header.
func WebSocketAuthRequired(tv TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			var ok bool
			token, ok = bearerToken(c.Get(fiber.HeaderAuthorization))
			if !ok {
				return models.RespondWithError(c, models.NewUnauthenticatedError(""))
			}
		}
		return authenticate(c, tv, token)
	}
}

func authenticate(c *fiber.Ctx, tv TokenVerifier, token string) error {
	claims, err := tv.Verify(token)
	if err != nil {
		Logger.DebugContext(c.UserContext(), "token rejected", "error", err)
		return models.RespondWithError(c, models.NewUnauthenticatedError(""))
	}

	userID := claims.UserID()
	c.Locals("userID", userID)
	c.SetUserContext(WithUserID(c.UserContext(), userID))

	return c.Next()
}

// bearerToken extracts the token from "Bearer <token>".
func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// CallerID returns the user id stored by AuthRequired.
func CallerID(c *fiber.Ctx) (string, bool) {
	uid, ok := c.Locals("userID").(string)
	return uid, ok && uid != ""
}
