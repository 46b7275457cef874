package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrTeamNotFound  = errors.New("team not found")
	ErrTaskNotFound  = errors.New("task not found")
	ErrNotTeamMember = errors.New("not a team member")
	ErrNoActiveTeam  = errors.New("no active team")

	ErrNicknameTaken     = errors.New("nickname already taken in this team")
	ErrJoinCodeExhausted = errors.New("failed to generate unique join code")
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err comes from a unique index or
// constraint. gorm only translates errors when TranslateError is on, and not
// always inside transactions, so the raw postgres code is checked too.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
