package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"tasker/repository"
	"tasker/utils"
)

var errorMap = []struct {
	err    error
	status int
	detail string
}{
	{repository.ErrUserNotFound, fiber.StatusNotFound, "User not found. Call /users/upsert first."},
	{repository.ErrTeamNotFound, fiber.StatusNotFound, "Team not found"},
	{repository.ErrTaskNotFound, fiber.StatusNotFound, "Task not found"},
	{repository.ErrNoActiveTeam, fiber.StatusNotFound, "No active team"},
	{repository.ErrNotTeamMember, fiber.StatusForbidden, "Not a team member"},
	{repository.ErrNicknameTaken, fiber.StatusConflict, "Nickname already taken in this team"},
	{utils.ErrInvalidTimeFormat, fiber.StatusUnprocessableEntity, "Invalid time format. Use HH:MM, H:MM, HHMM, HMM or HH"},
	{utils.ErrInvalidTimeValue, fiber.StatusUnprocessableEntity, "Invalid time value. Hours must be 0-23 and minutes 0-59"},
}

// handleError writes the response for err. Known domain errors map to their
// status, anything else is reported and hidden behind a 500.
func handleError(c *fiber.Ctx, op string, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}

	for _, m := range errorMap {
		if errors.Is(err, m.err) {
			return utils.ErrorResponse(c, m.status, m.detail)
		}
	}

	utils.LogError(op, err, map[string]interface{}{
		"method": c.Method(),
		"path":   c.Path(),
	})

	if errors.Is(err, repository.ErrJoinCodeExhausted) {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate unique join code")
	}
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Internal server error")
}

// trimmer is implemented by requests whose text fields are length checked
// without surrounding whitespace.
type trimmer interface {
	trim()
}

// parseBody decodes and validates a JSON body into req. The returned
// *fiber.Error is rendered by the app error handler.
func parseBody(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if t, ok := req.(trimmer); ok {
		t.trim()
	}
	if err := utils.ValidateStruct(req); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	return nil
}

// pathID reads a positive numeric path parameter.
func pathID(c *fiber.Ctx, name, notFound string) (uint, error) {
	id, ok := utils.ParseUint(c.Params(name))
	if !ok {
		return 0, fiber.NewError(fiber.StatusNotFound, notFound)
	}
	return id, nil
}
