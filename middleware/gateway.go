// middleware/gateway.go
package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware accepts only requests carrying the gateway's service
// token, as "Bearer <token>" or the raw value.
func GatewayAuthMiddleware(expectedToken string, logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			logger.Warn("[GATEWAY_AUTH] missing Authorization header", "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway_token_missing",
			})
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if expectedToken == "" || token != expectedToken {
			logger.Warn("[GATEWAY_AUTH] invalid token", "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway_token_invalid",
			})
		}

		return c.Next()
	}
}
