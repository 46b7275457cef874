package utils

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse writes the standard error body: {"detail": "..."}.
func ErrorResponse(c *fiber.Ctx, status int, detail string) error {
	return c.Status(status).JSON(fiber.Map{
		"detail": detail,
	})
}

// ErrorHandler renders errors that reach fiber in the same shape, so
// unknown routes and rejected input look like handler errors.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	detail := "Internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		detail = fe.Message
	} else {
		LogError("unhandled_error", err, map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		})
	}

	return ErrorResponse(c, code, detail)
}

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}

// OptionalString trims s and returns nil when nothing is left.
func OptionalString(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// ParseUint safely parses a string to uint, returning false on garbage or zero.
func ParseUint(s string) (uint, bool) {
	i, err := strconv.ParseUint(s, 10, 32)
	if err != nil || i == 0 {
		return 0, false
	}
	return uint(i), true
}
