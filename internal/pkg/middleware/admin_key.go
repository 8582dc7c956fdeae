package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/connorward/mycoshop/internal/pkg/env"
)

// AdminKeyMiddleware guards operator endpoints. Only the bcrypt hash of the
// admin key is configured; the plaintext never leaves the operator's shell.
func AdminKeyMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		hash := strings.TrimSpace(env.GetEnv("ADMIN_API_KEY_HASH", ""))
		if hash == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Admin access is not configured"})
		}

		key := extractAdminKey(c)
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
		}
		return c.Next()
	}
}

func extractAdminKey(c *fiber.Ctx) string {
	if key := strings.TrimSpace(c.Query("api_key")); key != "" {
		return key
	}
	if key := strings.TrimSpace(c.Get("X-API-Key")); key != "" {
		return key
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
