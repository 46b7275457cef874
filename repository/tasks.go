package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tasker/models"
	"tasker/utils"
)

// Scope selects which tasks a caller is working with.
type Scope string

const (
	ScopePersonal Scope = "personal"
	ScopeTeam     Scope = "team"
)

// ParseScope accepts the scope names used in URLs.
func ParseScope(s string) (Scope, bool) {
	switch Scope(s) {
	case ScopePersonal, ScopeTeam:
		return Scope(s), true
	}
	return "", false
}

// ResolvedScope is a scope bound to a concrete user, and for team scope to
// the team and the caller's membership in it.
type ResolvedScope struct {
	Kind     Scope
	UserID   uint
	TeamID   *uint
	MemberID *uint
}

// NewTask carries the fields a caller may set on a personal task.
type NewTask struct {
	Title       string
	Description *string
	DueAt       *time.Time
}

// BotTask is a task submitted by the chat bot: identity plus a clock time.
type BotTask struct {
	Profile
	Title       string
	Description *string
	RemindAt    string
}

type TaskRepo struct {
	db     *gorm.DB
	logger *logrus.Entry
}

func NewTaskRepo(db *gorm.DB) *TaskRepo {
	return &TaskRepo{
		db:     db,
		logger: logrus.WithField("component", "task_repo"),
	}
}

// ResolveScope binds scope to user. Team scope means the user's active team,
// and requires a current membership in it.
func (r *TaskRepo) ResolveScope(ctx context.Context, user *models.User, scope Scope) (ResolvedScope, error) {
	rs := ResolvedScope{Kind: scope, UserID: user.ID}
	if scope == ScopePersonal {
		return rs, nil
	}

	if user.ActiveTeamID == nil {
		return rs, ErrNoActiveTeam
	}
	member, err := getMember(r.db.WithContext(ctx), *user.ActiveTeamID, user.ID)
	if err != nil {
		return rs, err
	}

	teamID := member.TeamID
	rs.TeamID = &teamID
	rs.MemberID = &member.ID
	return rs, nil
}

// ContextScope picks the scope the user is currently working in.
func (r *TaskRepo) ContextScope(ctx context.Context, user *models.User) (ResolvedScope, error) {
	if user.ActiveTeamID != nil {
		return r.ResolveScope(ctx, user, ScopeTeam)
	}
	return r.ResolveScope(ctx, user, ScopePersonal)
}

func (r *TaskRepo) CreatePersonal(ctx context.Context, user *models.User, in NewTask) (*models.Task, error) {
	task := models.Task{
		Title:       in.Title,
		Description: in.Description,
		DueAt:       toUTC(in.DueAt),
		Status:      models.TaskStatusTodo,
		OwnerUserID: user.ID,
		CreatedBy:   user.ID,
	}
	if err := r.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateFromBot registers the sender if needed and files the task under the
// sender's active team, or as personal when no team is active. RemindAt is
// resolved to its next occurrence after now in loc.
func (r *TaskRepo) CreateFromBot(ctx context.Context, in BotTask, now time.Time, loc *time.Location) (*models.Task, error) {
	due, err := utils.NextDue(in.RemindAt, now, loc)
	if err != nil {
		return nil, err
	}
	due = due.UTC()

	var task models.Task
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := upsertUser(tx, in.Profile)
		if err != nil {
			return err
		}

		task = models.Task{
			Title:       in.Title,
			Description: in.Description,
			DueAt:       &due,
			Status:      models.TaskStatusTodo,
			OwnerUserID: user.ID,
			CreatedBy:   user.ID,
			TeamID:      user.ActiveTeamID,
		}
		return tx.Create(&task).Error
	})
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"telegram_id": in.TelegramID,
		"team_id":     task.TeamID,
	}).Debug("task created from bot")
	return &task, nil
}

// ListPersonal returns the user's personal tasks, newest first.
func (r *TaskRepo) ListPersonal(ctx context.Context, userID uint) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).
		Scopes(inScope(ResolvedScope{Kind: ScopePersonal, UserID: userID})).
		Order("id DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepo) CountPersonal(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Scopes(inScope(ResolvedScope{Kind: ScopePersonal, UserID: userID})).
		Count(&count).Error
	return count, err
}

// Today splits the scope's tasks due in [start, end) into open and done,
// each ordered by due time.
func (r *TaskRepo) Today(ctx context.Context, rs ResolvedScope, start, end time.Time) (open, done []models.Task, err error) {
	open, err = r.listDue(ctx, rs, models.TaskStatusTodo, start, end)
	if err != nil {
		return nil, nil, err
	}
	done, err = r.listDue(ctx, rs, models.TaskStatusDone, start, end)
	if err != nil {
		return nil, nil, err
	}
	return open, done, nil
}

// Get returns ErrTaskNotFound both for missing tasks and for tasks outside rs.
func (r *TaskRepo) Get(ctx context.Context, rs ResolvedScope, taskID uint) (*models.Task, error) {
	return getInScope(r.db.WithContext(ctx), rs, taskID)
}

// MarkDone closes the task. In team scope the caller's membership is
// recorded as the one who did it.
func (r *TaskRepo) MarkDone(ctx context.Context, rs ResolvedScope, taskID uint) (*models.Task, error) {
	updates := map[string]interface{}{"status": models.TaskStatusDone}
	if rs.Kind == ScopeTeam {
		updates["done_by_member_id"] = rs.MemberID
	}
	return r.update(ctx, rs, taskID, func(*models.Task) map[string]interface{} {
		return updates
	})
}

// Snooze moves the due time one day forward. A task with no due time is
// scheduled a day after now.
func (r *TaskRepo) Snooze(ctx context.Context, rs ResolvedScope, taskID uint, now time.Time) (*models.Task, error) {
	return r.update(ctx, rs, taskID, func(task *models.Task) map[string]interface{} {
		base := now
		if task.DueAt != nil {
			base = *task.DueAt
		}
		return map[string]interface{}{"due_at": base.Add(24 * time.Hour).UTC()}
	})
}

func (r *TaskRepo) update(ctx context.Context, rs ResolvedScope, taskID uint, changes func(*models.Task) map[string]interface{}) (*models.Task, error) {
	var task *models.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := getInScope(tx, rs, taskID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Task{ID: current.ID}).Updates(changes(current)).Error; err != nil {
			return err
		}
		task, err = getInScope(tx, rs, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (r *TaskRepo) listDue(ctx context.Context, rs ResolvedScope, status string, start, end time.Time) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).
		Preload("DoneByMember").
		Scopes(inScope(rs)).
		Where("status = ?", status).
		Where("due_at >= ? AND due_at < ?", start.UTC(), end.UTC()).
		Order("due_at ASC, id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func getInScope(db *gorm.DB, rs ResolvedScope, taskID uint) (*models.Task, error) {
	var task models.Task
	err := db.Preload("DoneByMember").
		Scopes(inScope(rs)).
		Where("id = ?", taskID).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

func inScope(rs ResolvedScope) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if rs.Kind == ScopeTeam {
			if rs.TeamID == nil {
				return db.Where("1 = 0")
			}
			return db.Where("team_id = ?", *rs.TeamID)
		}
		return db.Where("owner_user_id = ? AND team_id IS NULL", rs.UserID)
	}
}

func toUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
