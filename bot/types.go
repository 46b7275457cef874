package bot

import "time"

const (
	ModePersonal = "personal"
	ModeTeam     = "team"
)

// Profile is the Telegram identity sent along with writes.
type Profile struct {
	TelegramID int64   `json:"telegram_id"`
	Username   *string `json:"username"`
	FirstName  *string `json:"first_name"`
}

type Task struct {
	ID             uint       `json:"id"`
	Title          string     `json:"title"`
	Description    *string    `json:"description"`
	DueAt          *time.Time `json:"due_at"`
	Status         string     `json:"status"`
	TeamID         *uint      `json:"team_id"`
	DoneByNickname *string    `json:"done_by_nickname"`
}

type TodayTasks struct {
	Open []Task `json:"open"`
	Done []Task `json:"done"`
}

type NewTask struct {
	Profile
	Title       string  `json:"title"`
	Description *string `json:"description"`
	RemindAt    string  `json:"remind_at"`
}

type Team struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	JoinCode string `json:"join_code"`
}

type MyTeams struct {
	Teams        []Team `json:"teams"`
	ActiveTeamID *uint  `json:"active_team_id"`
}

type JoinResult struct {
	TeamID uint   `json:"team_id"`
	Name   string `json:"name"`
}
