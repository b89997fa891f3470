package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/medtrack/medtrack/internal/session"
)

const credsKey = "creds"

// sessionMiddleware lifts the Authorization header into request-scoped
// credentials. No token means an anonymous session, not a rejection;
// routes that need one opt in via requireSession.
func (s *Server) sessionMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			c.Locals(credsKey, session.Bearer(strings.TrimPrefix(auth, "Bearer ")))
		} else {
			c.Locals(credsKey, session.Anonymous())
		}
		return c.Next()
	}
}

func (s *Server) requireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !credentials(c).Present() {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization header"})
		}
		return c.Next()
	}
}

func credentials(c *fiber.Ctx) session.Credentials {
	if creds, ok := c.Locals(credsKey).(session.Credentials); ok {
		return creds
	}
	return session.Anonymous()
}
