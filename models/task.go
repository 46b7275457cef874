package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	TaskStatusTodo = "todo"
	TaskStatusDone = "done"
)

// Task is either personal (TeamID nil, visible to its owner only) or scoped
// to a team (visible to that team's members).
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:120;not null" json:"title"`
	Description *string    `gorm:"type:text" json:"description"`
	DueAt       *time.Time `gorm:"index" json:"due_at"`
	Status      string     `gorm:"size:16;not null;default:'todo'" json:"status"`

	OwnerUserID uint  `gorm:"not null;index" json:"owner_user_id"`
	CreatedBy   uint  `gorm:"not null" json:"created_by"`
	TeamID      *uint `gorm:"index" json:"team_id"`

	DoneByMemberID *uint       `gorm:"index" json:"done_by_member_id"`
	DoneByMember   *TeamMember `gorm:"foreignKey:DoneByMemberID;constraint:OnDelete:SET NULL" json:"-"`
	DoneByNickname *string     `gorm:"-" json:"done_by_nickname"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Task) AfterFind(tx *gorm.DB) error {
	if t.DoneByMember != nil {
		nickname := t.DoneByMember.Nickname
		t.DoneByNickname = &nickname
	}
	return nil
}

func (t *Task) IsDone() bool {
	return t.Status == TaskStatusDone
}
