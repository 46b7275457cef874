package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tasker/metrics"
	"tasker/middleware"
	"tasker/repository"
	"tasker/utils"
)

type UpsertUserRequest struct {
	TelegramID int64   `json:"telegram_id" validate:"required,gt=0"`
	Username   *string `json:"username" validate:"omitempty,max=64"`
	FirstName  *string `json:"first_name" validate:"omitempty,max=64"`
}

type UserController struct {
	Users  *repository.UserRepo
	Logger *logrus.Entry
}

func NewUserController(db *gorm.DB) *UserController {
	return &UserController{
		Users:  repository.NewUserRepo(db),
		Logger: logrus.WithField("controller", "users"),
	}
}

// Upsert registers a Telegram user or refreshes their profile.
func (uc *UserController) Upsert(c *fiber.Ctx) error {
	var req UpsertUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	start := time.Now()
	user, err := uc.Users.Upsert(c.UserContext(), repository.Profile{
		TelegramID: req.TelegramID,
		Username:   utils.OptionalString(req.Username),
		FirstName:  utils.OptionalString(req.FirstName),
	})
	metrics.ObserveOp("user_upsert", start, err)
	if err != nil {
		return handleError(c, "user_upsert", err)
	}

	return c.JSON(user)
}

func (uc *UserController) Me(c *fiber.Ctx) error {
	user, err := uc.Users.GetByTelegramID(c.UserContext(), middleware.TelegramID(c))
	if err != nil {
		return handleError(c, "user_me", err)
	}
	return c.JSON(user)
}
