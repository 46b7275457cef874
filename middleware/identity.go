package middleware

import (
	"github.com/gofiber/fiber/v2"

	"tasker/utils"
)

const telegramIDKey = "telegramID"

type identityQuery struct {
	TelegramID int64 `query:"telegram_id" validate:"required,gt=0"`
}

// Identity reads the caller's telegram_id query parameter. Handlers get it
// back through TelegramID.
func Identity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q identityQuery
		if err := c.QueryParser(&q); err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "telegram_id must be an integer")
		}
		if err := utils.ValidateStruct(q); err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, err.Error())
		}

		c.Locals(telegramIDKey, q.TelegramID)
		return c.Next()
	}
}

// TelegramID returns the identity stored by Identity, or 0 outside it.
func TelegramID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(telegramIDKey).(int64)
	return id
}
