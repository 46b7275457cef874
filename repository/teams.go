package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tasker/metrics"
	"tasker/models"
	"tasker/utils"
)

// JoinCodeAttempts bounds how many fresh codes CreateWithCreator tries
// before giving up.
const JoinCodeAttempts = 5

// CodeGenerator produces candidate join codes.
type CodeGenerator func() (string, error)

type TeamRepo struct {
	db          *gorm.DB
	codeGen     CodeGenerator
	maxAttempts int
	logger      *logrus.Entry
}

func NewTeamRepo(db *gorm.DB) *TeamRepo {
	return &TeamRepo{
		db:          db,
		codeGen:     utils.NewJoinCode,
		maxAttempts: JoinCodeAttempts,
		logger:      logrus.WithField("component", "team_repo"),
	}
}

// WithCodeGenerator returns a copy of the repository drawing codes from gen.
func (r *TeamRepo) WithCodeGenerator(gen CodeGenerator) *TeamRepo {
	clone := *r
	clone.codeGen = gen
	return &clone
}

// CreateWithCreator inserts a team and the creator's membership in one
// transaction. Join code uniqueness is left to the unique index: a collision
// rolls the attempt back and the next attempt draws a fresh code.
func (r *TeamRepo) CreateWithCreator(ctx context.Context, name string, userID uint, nickname string) (*models.Team, error) {
	log := r.logger.WithFields(logrus.Fields{"user_id": userID, "name": name})

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		code, err := r.codeGen()
		if err != nil {
			return nil, fmt.Errorf("generate join code: %w", err)
		}

		team := models.Team{
			Name:      name,
			JoinCode:  code,
			CreatedBy: userID,
		}

		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&team).Error; err != nil {
				return err
			}
			member := models.TeamMember{
				TeamID:   team.ID,
				UserID:   userID,
				Nickname: nickname,
			}
			return tx.Create(&member).Error
		})
		if err == nil {
			log.WithFields(logrus.Fields{"team_id": team.ID, "attempt": attempt}).Info("team created")
			return &team, nil
		}
		if !IsUniqueViolation(err) {
			return nil, err
		}

		log.WithField("attempt", attempt).Warn("join code collision, retrying")
		metrics.AddJoinCodeCollision()
		lastErr = err
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrJoinCodeExhausted, r.maxAttempts, lastErr)
}

func (r *TeamRepo) GetByID(ctx context.Context, teamID uint) (*models.Team, error) {
	var team models.Team
	if err := r.db.WithContext(ctx).First(&team, teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return &team, nil
}

func (r *TeamRepo) GetByJoinCode(ctx context.Context, code string) (*models.Team, error) {
	var team models.Team
	if err := r.db.WithContext(ctx).Where("join_code = ?", code).First(&team).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return &team, nil
}

// GetMember returns ErrNotTeamMember when the user has no membership in the team.
func (r *TeamRepo) GetMember(ctx context.Context, teamID, userID uint) (*models.TeamMember, error) {
	return getMember(r.db.WithContext(ctx), teamID, userID)
}

// Join adds the user to the team. An existing membership is returned as is,
// including when a concurrent request inserted it first.
func (r *TeamRepo) Join(ctx context.Context, teamID, userID uint, nickname string) (*models.TeamMember, error) {
	db := r.db.WithContext(ctx)

	existing, err := getMember(db, teamID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotTeamMember) {
		return nil, err
	}

	member := models.TeamMember{
		TeamID:   teamID,
		UserID:   userID,
		Nickname: nickname,
	}
	if err := db.Create(&member).Error; err != nil {
		if !IsUniqueViolation(err) {
			return nil, err
		}
		existing, getErr := getMember(db, teamID, userID)
		if getErr == nil {
			return existing, nil
		}
		if errors.Is(getErr, ErrNotTeamMember) {
			return nil, ErrNicknameTaken
		}
		return nil, getErr
	}

	r.logger.WithFields(logrus.Fields{"team_id": teamID, "user_id": userID}).Info("member joined")
	return &member, nil
}

// ListByUser returns the teams the user belongs to, oldest membership first.
func (r *TeamRepo) ListByUser(ctx context.Context, userID uint) ([]models.Team, error) {
	var teams []models.Team
	err := r.db.WithContext(ctx).
		Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("team_members.user_id = ?", userID).
		Order("team_members.joined_at ASC, teams.id ASC").
		Find(&teams).Error
	if err != nil {
		return nil, err
	}
	return teams, nil
}

// Activate makes teamID the user's working scope. Only members may do so.
func (r *TeamRepo) Activate(ctx context.Context, user *models.User, teamID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getMember(tx, teamID, user.ID); err != nil {
			return err
		}
		if err := tx.Model(user).Update("active_team_id", teamID).Error; err != nil {
			return err
		}
		user.ActiveTeamID = &teamID
		return nil
	})
}

// Deactivate returns the user to personal scope.
func (r *TeamRepo) Deactivate(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Model(user).Update("active_team_id", nil).Error; err != nil {
		return err
	}
	user.ActiveTeamID = nil
	return nil
}

func getMember(db *gorm.DB, teamID, userID uint) (*models.TeamMember, error) {
	var member models.TeamMember
	err := db.Where("team_id = ? AND user_id = ?", teamID, userID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotTeamMember
		}
		return nil, err
	}
	return &member, nil
}
