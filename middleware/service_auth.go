package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"tasker/utils"
)

// ServiceAuth requires a bearer token signed with secret. With an empty
// secret the API stays open, which is how local setups run.
func ServiceAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required")
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid authorization format")
		}

		claims, err := utils.ParseServiceToken(secret, tokenParts[1])
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired token")
		}

		c.Locals("service", claims.Service)
		return c.Next()
	}
}
