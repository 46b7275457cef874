package models

import "time"

// Team groups users around a shared task list. JoinCode is the invite token
// handed out to new members.
type Team struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:120;not null" json:"name"`
	JoinCode  string    `gorm:"size:16;uniqueIndex;not null" json:"join_code"`
	CreatedBy uint      `gorm:"not null;index" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamMember links a user to a team under a per-team nickname.
type TeamMember struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	TeamID   uint      `gorm:"not null;uniqueIndex:uq_team_members_team_user,priority:1;uniqueIndex:uq_team_members_team_nickname,priority:1" json:"team_id"`
	UserID   uint      `gorm:"not null;index;uniqueIndex:uq_team_members_team_user,priority:2" json:"user_id"`
	Nickname string    `gorm:"size:64;not null;uniqueIndex:uq_team_members_team_nickname,priority:2" json:"nickname"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}
