package models

import "time"

// User is a Telegram account known to the tracker. Rows are created on first
// contact and never deleted.
type User struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	TelegramID int64   `gorm:"uniqueIndex;not null" json:"telegram_id"`
	Username   *string `gorm:"size:64" json:"username"`
	FirstName  *string `gorm:"size:64" json:"first_name"`

	// nil means the user works in personal scope
	ActiveTeamID *uint `gorm:"index" json:"active_team_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName picks the best human label available for the user.
func (u *User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	if u.FirstName != nil && *u.FirstName != "" {
		return *u.FirstName
	}
	return ""
}
