package repository

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tasker/models"
)

type UserRepo struct {
	db     *gorm.DB
	logger *logrus.Entry
}

func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{
		db:     db,
		logger: logrus.WithField("component", "user_repo"),
	}
}

// Profile is what Telegram tells us about a user on each contact.
type Profile struct {
	TelegramID int64
	Username   *string
	FirstName  *string
}

func (r *UserRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return getUserByTelegramID(r.db.WithContext(ctx), telegramID)
}

// Upsert creates the user on first contact and refreshes the profile fields
// afterwards. Concurrent first contacts converge on one row.
func (r *UserRepo) Upsert(ctx context.Context, p Profile) (*models.User, error) {
	r.logger.WithField("telegram_id", p.TelegramID).Debug("Upsert()")

	var user *models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = upsertUser(tx, p)
		return err
	})
	if err != nil {
		r.logger.WithError(err).WithField("telegram_id", p.TelegramID).Error("failed to upsert user")
		return nil, err
	}
	return user, nil
}

func getUserByTelegramID(db *gorm.DB, telegramID int64) (*models.User, error) {
	var user models.User
	if err := db.Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func upsertUser(tx *gorm.DB, p Profile) (*models.User, error) {
	user := models.User{
		TelegramID: p.TelegramID,
		Username:   p.Username,
		FirstName:  p.FirstName,
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "updated_at"}),
	}).Create(&user).Error; err != nil {
		return nil, err
	}

	// the insert path does not know active_team_id of an existing row
	return getUserByTelegramID(tx, p.TelegramID)
}
