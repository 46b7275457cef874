package controller

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tasker/metrics"
	"tasker/middleware"
	"tasker/models"
	"tasker/repository"
	"tasker/utils"
)

type CreateTaskRequest struct {
	Title       string     `json:"title" validate:"required,min=1,max=120"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	DueAt       *time.Time `json:"due_at"`
}

// CreateBotTaskRequest is what the chat bot submits once a conversation
// has collected every field.
type CreateBotTaskRequest struct {
	TelegramID  int64   `json:"telegram_id" validate:"required,gt=0"`
	Title       string  `json:"title" validate:"required,min=1,max=120"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	RemindAt    string  `json:"remind_at" validate:"required"`
	Username    *string `json:"username" validate:"omitempty,max=64"`
	FirstName   *string `json:"first_name" validate:"omitempty,max=64"`
}

func (r *CreateTaskRequest) trim() {
	r.Title = strings.TrimSpace(r.Title)
}

func (r *CreateBotTaskRequest) trim() {
	r.Title = strings.TrimSpace(r.Title)
	r.RemindAt = strings.TrimSpace(r.RemindAt)
}

type TodayResponse struct {
	Open []models.Task `json:"open"`
	Done []models.Task `json:"done"`
}

type TaskController struct {
	Users    *repository.UserRepo
	Tasks    *repository.TaskRepo
	Logger   *logrus.Entry
	Location *time.Location
	Now      func() time.Time
}

func NewTaskController(db *gorm.DB, loc *time.Location) *TaskController {
	return &TaskController{
		Users:    repository.NewUserRepo(db),
		Tasks:    repository.NewTaskRepo(db),
		Logger:   logrus.WithField("controller", "tasks"),
		Location: loc,
		Now:      time.Now,
	}
}

func (tc *TaskController) CreatePersonal(c *fiber.Ctx) error {
	var req CreateTaskRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	title, err := cleanTitle(req.Title)
	if err != nil {
		return err
	}

	user, err := tc.Users.GetByTelegramID(c.UserContext(), middleware.TelegramID(c))
	if err != nil {
		return handleError(c, "task_create_personal", err)
	}

	start := time.Now()
	task, err := tc.Tasks.CreatePersonal(c.UserContext(), user, repository.NewTask{
		Title:       title,
		Description: utils.OptionalString(req.Description),
		DueAt:       req.DueAt,
	})
	metrics.ObserveOp("task_create_personal", start, err)
	if err != nil {
		return handleError(c, "task_create_personal", err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

// CreateFromBot files a task for the sender, registering them on the way.
func (tc *TaskController) CreateFromBot(c *fiber.Ctx) error {
	var req CreateBotTaskRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	title, err := cleanTitle(req.Title)
	if err != nil {
		return err
	}

	start := time.Now()
	task, err := tc.Tasks.CreateFromBot(c.UserContext(), repository.BotTask{
		Profile: repository.Profile{
			TelegramID: req.TelegramID,
			Username:   utils.OptionalString(req.Username),
			FirstName:  utils.OptionalString(req.FirstName),
		},
		Title:       title,
		Description: utils.OptionalString(req.Description),
		RemindAt:    req.RemindAt,
	}, tc.Now(), tc.Location)
	metrics.ObserveOp("task_create_bot", start, err)
	if err != nil {
		return handleError(c, "task_create_bot", err)
	}

	tc.Logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"telegram_id": req.TelegramID,
	}).Info("task created")
	return c.Status(fiber.StatusCreated).JSON(task)
}

// ListPersonal returns an empty list for users we have never seen.
func (tc *TaskController) ListPersonal(c *fiber.Ctx) error {
	user, err := tc.Users.GetByTelegramID(c.UserContext(), middleware.TelegramID(c))
	if errors.Is(err, repository.ErrUserNotFound) {
		return c.JSON([]models.Task{})
	}
	if err != nil {
		return handleError(c, "task_list_personal", err)
	}

	tasks, err := tc.Tasks.ListPersonal(c.UserContext(), user.ID)
	if err != nil {
		return handleError(c, "task_list_personal", err)
	}
	return c.JSON(nonNil(tasks))
}

func (tc *TaskController) CountPersonal(c *fiber.Ctx) error {
	user, err := tc.Users.GetByTelegramID(c.UserContext(), middleware.TelegramID(c))
	if errors.Is(err, repository.ErrUserNotFound) {
		return c.JSON(fiber.Map{"count": 0})
	}
	if err != nil {
		return handleError(c, "task_count_personal", err)
	}

	count, err := tc.Tasks.CountPersonal(c.UserContext(), user.ID)
	if err != nil {
		return handleError(c, "task_count_personal", err)
	}
	return c.JSON(fiber.Map{"count": count})
}

// TodayPersonal and TodayContext answer with empty buckets for unknown
// users; team scope needs a registered user with an active team.
func (tc *TaskController) TodayPersonal(c *fiber.Ctx) error {
	return tc.today(c, func(user *models.User) (repository.ResolvedScope, error) {
		return tc.Tasks.ResolveScope(c.UserContext(), user, repository.ScopePersonal)
	}, true)
}

func (tc *TaskController) TodayTeam(c *fiber.Ctx) error {
	return tc.today(c, func(user *models.User) (repository.ResolvedScope, error) {
		return tc.Tasks.ResolveScope(c.UserContext(), user, repository.ScopeTeam)
	}, false)
}

func (tc *TaskController) TodayContext(c *fiber.Ctx) error {
	return tc.today(c, func(user *models.User) (repository.ResolvedScope, error) {
		return tc.Tasks.ContextScope(c.UserContext(), user)
	}, true)
}

func (tc *TaskController) Get(c *fiber.Ctx) error {
	rs, taskID, err := tc.scopedTask(c)
	if err != nil {
		return handleError(c, "task_get", err)
	}

	task, err := tc.Tasks.Get(c.UserContext(), rs, taskID)
	if err != nil {
		return handleError(c, "task_get", err)
	}
	return c.JSON(task)
}

func (tc *TaskController) MarkDone(c *fiber.Ctx) error {
	rs, taskID, err := tc.scopedTask(c)
	if err != nil {
		return handleError(c, "task_done", err)
	}

	start := time.Now()
	task, err := tc.Tasks.MarkDone(c.UserContext(), rs, taskID)
	metrics.ObserveOp("task_done", start, err)
	if err != nil {
		return handleError(c, "task_done", err)
	}
	return c.JSON(task)
}

// Snooze pushes the task to the same time tomorrow.
func (tc *TaskController) Snooze(c *fiber.Ctx) error {
	rs, taskID, err := tc.scopedTask(c)
	if err != nil {
		return handleError(c, "task_snooze", err)
	}

	start := time.Now()
	task, err := tc.Tasks.Snooze(c.UserContext(), rs, taskID, tc.Now())
	metrics.ObserveOp("task_snooze", start, err)
	if err != nil {
		return handleError(c, "task_snooze", err)
	}
	return c.JSON(task)
}

func (tc *TaskController) today(c *fiber.Ctx, resolve func(*models.User) (repository.ResolvedScope, error), emptyForUnknown bool) error {
	empty := TodayResponse{Open: []models.Task{}, Done: []models.Task{}}

	user, err := tc.Users.GetByTelegramID(c.UserContext(), middleware.TelegramID(c))
	if err != nil {
		if emptyForUnknown && errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(empty)
		}
		return handleError(c, "task_today", err)
	}

	rs, err := resolve(user)
	if err != nil {
		return handleError(c, "task_today", err)
	}

	dayStart, dayEnd := utils.DayWindow(tc.Now(), tc.Location)
	open, done, err := tc.Tasks.Today(c.UserContext(), rs, dayStart, dayEnd)
	if err != nil {
		return handleError(c, "task_today", err)
	}

	return c.JSON(TodayResponse{Open: nonNil(open), Done: nonNil(done)})
}

// scopedTask resolves the {scope} and {id} path parameters for the caller.
// Unknown scopes and ids read as a missing task.
func (tc *TaskController) scopedTask(c *fiber.Ctx) (repository.ResolvedScope, uint, error) {
	scope, ok := repository.ParseScope(c.Params("scope"))
	if !ok {
		return repository.ResolvedScope{}, 0, fiber.NewError(fiber.StatusNotFound, "Not Found")
	}
	taskID, err := pathID(c, "id", "Task not found")
	if err != nil {
		return repository.ResolvedScope{}, 0, err
	}

	user, err := tc.Users.GetByTelegramID(c.UserContext(), middleware.TelegramID(c))
	if err != nil {
		return repository.ResolvedScope{}, 0, err
	}
	rs, err := tc.Tasks.ResolveScope(c.UserContext(), user, scope)
	if err != nil {
		return repository.ResolvedScope{}, 0, err
	}
	return rs, taskID, nil
}

func cleanTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fiber.NewError(fiber.StatusUnprocessableEntity, "title is required")
	}
	return title, nil
}

func nonNil(tasks []models.Task) []models.Task {
	if tasks == nil {
		return []models.Task{}
	}
	return tasks
}
