package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"tasker/utils"
)

const (
	maxTitleLen       = 120
	maxDescriptionLen = 5000
	minTeamNameLen    = 4
	maxTeamNameLen    = 64
	minNicknameLen    = 4
	maxNicknameLen    = 32

	skipDescription = "-"
)

const (
	textChooseMode   = "Choose a mode:"
	textUnavailable  = "Service unavailable 😕 Try again later."
	textUnexpected   = "Something went wrong 😕 Try again later."
	textInvalidTime  = "Invalid time. Send 18, 18:30 or 1830."
	textNoActiveTeam = "No active team. Join a team or pick one first."
	textTaskNotFound = "Task not found or not available."
)

// Handler turns Telegram updates into backend calls and replies.
type Handler struct {
	backend   Backend
	messenger Messenger
	sessions  SessionStore
	loc       *time.Location
	logger    *logrus.Entry
}

func NewHandler(backend Backend, messenger Messenger, sessions SessionStore, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		backend:   backend,
		messenger: messenger,
		sessions:  sessions,
		loc:       loc,
		logger:    logrus.WithField("component", "bot"),
	}
}

// target is the chat message a callback button belongs to.
type target struct {
	chatID    int64
	messageID int
}

type answer struct {
	text  string
	alert bool
}

// HandleUpdate processes one update. Failures are logged and never stop the
// update loop.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	var err error
	switch {
	case update.CallbackQuery != nil:
		err = h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		err = h.handleMessage(ctx, update.Message)
	default:
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("update_id", update.UpdateID).Warn("update handling failed")
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil {
		return nil
	}
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			return h.start(ctx, chatID, msg.From)
		case "cancel":
			if err := h.sessions.Delete(ctx, userID); err != nil {
				return err
			}
			return h.messenger.Send(chatID, "Cancelled. "+textChooseMode, modeChooseKeyboard())
		default:
			return h.messenger.Send(chatID, "Unknown command. Send /start to begin.", nil)
		}
	}

	session, err := h.sessions.Get(ctx, userID)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(msg.Text)

	switch session.Step {
	case StepTaskTitle:
		return h.onTaskTitle(ctx, chatID, userID, session, text)
	case StepTaskDescription:
		return h.onTaskDescription(ctx, chatID, userID, session, text)
	case StepTaskRemindAt:
		return h.onTaskRemindAt(ctx, chatID, msg.From, session, text)
	case StepJoinCode:
		return h.onJoinCode(ctx, chatID, userID, text)
	case StepTeamName:
		return h.onTeamName(ctx, chatID, userID, session, text)
	case StepTeamNickname:
		return h.onTeamNickname(ctx, chatID, userID, session, text)
	default:
		return h.messenger.Send(chatID, textChooseMode, modeChooseKeyboard())
	}
}

func (h *Handler) start(ctx context.Context, chatID int64, from *tgbotapi.User) error {
	if err := h.sessions.Delete(ctx, from.ID); err != nil {
		return err
	}
	if err := h.backend.UpsertUser(ctx, profileOf(from)); err != nil {
		return h.reportError(chatID, err)
	}
	return h.messenger.Send(chatID, textChooseMode, modeChooseKeyboard())
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.From == nil {
		return nil
	}
	userID := cb.From.ID
	t := target{chatID: userID}
	if cb.Message != nil && cb.Message.Chat != nil {
		t = target{chatID: cb.Message.Chat.ID, messageID: cb.Message.MessageID}
	}

	var (
		ans answer
		err error
	)
	data := cb.Data

	switch {
	case data == cbNoop:
	case data == cbModePersonal:
		err = h.onModePersonal(ctx, t, userID)
	case data == cbModeTeam:
		err = h.messenger.Send(t.chatID, "Team mode: pick an action 👇", teamEntryKeyboard())
	case data == cbModeChoose:
		err = h.messenger.Send(t.chatID, textChooseMode, modeChooseKeyboard())
	case data == cbTeamMy:
		err = h.onMyTeams(ctx, t, userID)
	case data == cbTeamJoin:
		err = h.beginStep(ctx, t.chatID, userID, Session{Step: StepJoinCode}, "Send the team join code.")
	case data == cbTeamCreate:
		err = h.beginStep(ctx, t.chatID, userID, Session{Step: StepTeamName},
			fmt.Sprintf("Send a name for the new team (%d to %d characters).", minTeamNameLen, maxTeamNameLen))
	case data == cbTeamInvite:
		err = h.onInvite(ctx, t, userID)
	case strings.HasPrefix(data, cbTeamSwitchPrefix):
		ans, err = h.onTeamSwitch(ctx, t, userID, strings.TrimPrefix(data, cbTeamSwitchPrefix))
	case strings.HasPrefix(data, cbTaskAddPrefix):
		ans, err = h.onTaskAdd(ctx, t, userID, strings.TrimPrefix(data, cbTaskAddPrefix))
	case strings.HasPrefix(data, cbTaskTodayPrefix):
		mode := strings.TrimPrefix(data, cbTaskTodayPrefix)
		if !validMode(mode) {
			ans = answer{text: "Unknown mode", alert: true}
			break
		}
		err = h.renderToday(ctx, t, userID, mode)
	case strings.HasPrefix(data, cbTodayTaskPrefix):
		ans, err = h.onTaskDetail(ctx, t, userID, data, false)
	case strings.HasPrefix(data, cbDoneTaskPrefix):
		ans, err = h.onTaskDetail(ctx, t, userID, data, true)
	case strings.HasPrefix(data, cbTaskDonePrefix):
		ans, err = h.onTaskAction(ctx, t, userID, data, h.backend.MarkDone, "Done ✅")
	case strings.HasPrefix(data, cbTaskTomorrowPrefix):
		ans, err = h.onTaskAction(ctx, t, userID, data, h.backend.Snooze, "Moved to tomorrow ⏭")
	case strings.HasPrefix(data, cbMenuPrefix):
		mode := strings.TrimPrefix(data, cbMenuPrefix)
		if !validMode(mode) {
			break
		}
		err = h.messenger.Edit(t.chatID, t.messageID, fmt.Sprintf("Menu (%s):", modeLabel(mode)), modeMenuKeyboard(mode))
	default:
		h.logger.WithField("data", data).Debug("unknown callback")
	}

	if answerErr := h.messenger.AnswerCallback(cb.ID, ans.text, ans.alert); answerErr != nil && err == nil {
		err = answerErr
	}
	return err
}

func (h *Handler) onModePersonal(ctx context.Context, t target, userID int64) error {
	if err := h.backend.DeactivateTeam(ctx, userID); err != nil {
		return h.reportError(t.chatID, err)
	}
	return h.messenger.Send(t.chatID, "Mode: Personal ✅", modeMenuKeyboard(ModePersonal))
}

func (h *Handler) onMyTeams(ctx context.Context, t target, userID int64) error {
	mine, err := h.backend.MyTeams(ctx, userID)
	if err != nil {
		return h.reportError(t.chatID, err)
	}
	if len(mine.Teams) == 0 {
		return h.messenger.Send(t.chatID, "You are not in any team yet.", teamEntryKeyboard())
	}
	return h.messenger.Send(t.chatID, "Pick a team:", teamListKeyboard(mine.Teams, mine.ActiveTeamID))
}

func (h *Handler) onTeamSwitch(ctx context.Context, t target, userID int64, rawID string) (answer, error) {
	teamID, ok := utils.ParseUint(rawID)
	if !ok {
		return answer{text: "Invalid id", alert: true}, nil
	}

	err := h.backend.ActivateTeam(ctx, userID, teamID)
	switch {
	case IsStatus(err, http.StatusForbidden) || IsStatus(err, http.StatusNotFound):
		return answer{text: "You are not a member of this team.", alert: true}, nil
	case err != nil:
		return answer{}, h.reportError(t.chatID, err)
	}
	return answer{}, h.messenger.Send(t.chatID, "Active team changed ✅", modeMenuKeyboard(ModeTeam))
}

func (h *Handler) onInvite(ctx context.Context, t target, userID int64) error {
	code, err := h.backend.ActiveJoinCode(ctx, userID)
	switch {
	case IsStatus(err, http.StatusNotFound):
		return h.messenger.Send(t.chatID, textNoActiveTeam, teamEntryKeyboard())
	case err != nil:
		return h.reportError(t.chatID, err)
	case code == "":
		return h.messenger.Send(t.chatID, "The server did not return a join code 😕", nil)
	}
	return h.messenger.Send(t.chatID, "Invite code: "+code, nil)
}

func (h *Handler) onTaskAdd(ctx context.Context, t target, userID int64, mode string) (answer, error) {
	if !validMode(mode) {
		return answer{text: "Unknown mode", alert: true}, nil
	}
	// Bot tasks land in the active team, so a personal add must not have one.
	if mode == ModePersonal {
		if err := h.backend.DeactivateTeam(ctx, userID); err != nil {
			return answer{}, h.reportError(t.chatID, err)
		}
	}
	prompt := fmt.Sprintf("OK ✅ New %s task. Send the title.", strings.ToLower(modeLabel(mode)))
	return answer{}, h.beginStep(ctx, t.chatID, userID, Session{Step: StepTaskTitle, Mode: mode}, prompt)
}

func (h *Handler) renderToday(ctx context.Context, t target, userID int64, mode string) error {
	today, err := h.backend.Today(ctx, userID, mode)
	switch {
	case mode == ModeTeam && IsStatus(err, http.StatusNotFound):
		return h.messenger.Send(t.chatID, textNoActiveTeam, teamEntryKeyboard())
	case err != nil:
		return h.reportError(t.chatID, err)
	}

	if len(today.Open) == 0 && len(today.Done) == 0 {
		return h.messenger.Send(t.chatID, "No tasks for today ✅", modeMenuKeyboard(mode))
	}
	return h.messenger.Edit(t.chatID, t.messageID, "Today's tasks:", todayKeyboard(mode, today, h.formatDue))
}

func (h *Handler) onTaskDetail(ctx context.Context, t target, userID int64, data string, done bool) (answer, error) {
	mode, taskID, ok := parseTaskData(data)
	if !ok {
		return answer{}, nil
	}

	task, err := h.backend.GetTask(ctx, userID, mode, taskID)
	switch {
	case IsStatus(err, http.StatusNotFound):
		return answer{}, h.messenger.Send(t.chatID, textTaskNotFound, nil)
	case err != nil:
		return answer{}, h.reportError(t.chatID, err)
	}

	description := "(no description)"
	if task.Description != nil && strings.TrimSpace(*task.Description) != "" {
		description = strings.TrimSpace(*task.Description)
	}

	if done {
		text := fmt.Sprintf("#%d ✅ Done\n%s\n\n%s\nTime: %s", task.ID, displayTitle(task), description, h.formatDue(task))
		if task.DoneByNickname != nil {
			text += "\nDone by: " + *task.DoneByNickname
		}
		return answer{}, h.messenger.Edit(t.chatID, t.messageID, text, backToListKeyboard(mode))
	}

	text := fmt.Sprintf("#%d\n\n%s\n\n%s\n\nTime: %s", task.ID, displayTitle(task), description, h.formatDue(task))
	return answer{}, h.messenger.Edit(t.chatID, t.messageID, text, taskDetailKeyboard(mode, task.ID))
}

type taskAction func(ctx context.Context, telegramID int64, mode string, taskID uint) error

func (h *Handler) onTaskAction(ctx context.Context, t target, userID int64, data string, action taskAction, okText string) (answer, error) {
	mode, taskID, ok := parseTaskData(data)
	if !ok {
		return answer{text: "Invalid id", alert: true}, nil
	}

	if err := action(ctx, userID, mode, taskID); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return answer{text: textTaskNotFound, alert: true}, nil
		}
		return answer{text: h.errorText(err), alert: true}, nil
	}

	if err := h.renderToday(ctx, t, userID, mode); err != nil {
		return answer{}, err
	}
	return answer{text: okText}, nil
}

func (h *Handler) onTaskTitle(ctx context.Context, chatID, userID int64, s Session, text string) error {
	switch {
	case text == "":
		return h.messenger.Send(chatID, "Title is empty. Send the title as text.", nil)
	case utf8.RuneCountInString(text) > maxTitleLen:
		return h.messenger.Send(chatID, fmt.Sprintf("Title is too long, keep it under %d characters.", maxTitleLen), nil)
	}

	s.Title = text
	s.Step = StepTaskDescription
	return h.beginStep(ctx, chatID, userID, s, fmt.Sprintf("Now send a description (or %q to skip).", skipDescription))
}

func (h *Handler) onTaskDescription(ctx context.Context, chatID, userID int64, s Session, text string) error {
	if utf8.RuneCountInString(text) > maxDescriptionLen {
		return h.messenger.Send(chatID, fmt.Sprintf("Description is too long, keep it under %d characters.", maxDescriptionLen), nil)
	}

	s.Description = nil
	if text != "" && text != skipDescription {
		s.Description = &text
	}
	s.Step = StepTaskRemindAt
	return h.beginStep(ctx, chatID, userID, s, "Now send the time, for example 18, 18:30 or 1830.")
}

func (h *Handler) onTaskRemindAt(ctx context.Context, chatID int64, from *tgbotapi.User, s Session, text string) error {
	if text == "" {
		return h.messenger.Send(chatID, "Time is empty. Send 18 or 18:30.", nil)
	}

	task, err := h.backend.CreateTask(ctx, NewTask{
		Profile:     profileOf(from),
		Title:       s.Title,
		Description: s.Description,
		RemindAt:    text,
	})
	if IsStatus(err, http.StatusUnprocessableEntity) {
		return h.messenger.Send(chatID, textInvalidTime, nil)
	}
	if clearErr := h.sessions.Delete(ctx, from.ID); clearErr != nil {
		h.logger.WithError(clearErr).Warn("failed to clear session")
	}
	if err != nil {
		return h.reportError(chatID, err)
	}

	mode := s.Mode
	if !validMode(mode) {
		mode = ModePersonal
	}
	if err := h.messenger.Send(chatID, fmt.Sprintf("Task created ✅ (#%d)", task.ID), nil); err != nil {
		return err
	}
	return h.messenger.Send(chatID, fmt.Sprintf("Mode: %s ✅", modeLabel(mode)), modeMenuKeyboard(mode))
}

func (h *Handler) onJoinCode(ctx context.Context, chatID, userID int64, text string) error {
	code := strings.TrimSpace(strings.Trim(text, `"'`))
	if code == "" {
		return h.messenger.Send(chatID, "The code is empty. Send the join code as text.", nil)
	}

	joined, err := h.backend.JoinTeam(ctx, userID, code)
	switch {
	case IsStatus(err, http.StatusNotFound) || IsStatus(err, http.StatusUnprocessableEntity):
		return h.messenger.Send(chatID, "No team with this code. Check it and send again, or /cancel.", nil)
	case err != nil:
		h.clearSession(ctx, userID)
		return h.reportError(chatID, err)
	}
	h.clearSession(ctx, userID)

	if err := h.backend.ActivateTeam(ctx, userID, joined.TeamID); err != nil {
		return h.messenger.Send(chatID, "Joined the team, but could not activate it 😕", nil)
	}
	return h.messenger.Send(chatID, fmt.Sprintf("Team: %s ✅", joined.Name), modeMenuKeyboard(ModeTeam))
}

func (h *Handler) onTeamName(ctx context.Context, chatID, userID int64, s Session, text string) error {
	if n := utf8.RuneCountInString(text); n < minTeamNameLen || n > maxTeamNameLen {
		return h.messenger.Send(chatID,
			fmt.Sprintf("Team name must be %d to %d characters.", minTeamNameLen, maxTeamNameLen), nil)
	}

	s.TeamName = text
	s.Step = StepTeamNickname
	return h.beginStep(ctx, chatID, userID, s,
		fmt.Sprintf("Now send your nickname in this team (%d to %d characters).", minNicknameLen, maxNicknameLen))
}

func (h *Handler) onTeamNickname(ctx context.Context, chatID, userID int64, s Session, text string) error {
	if n := utf8.RuneCountInString(text); n < minNicknameLen || n > maxNicknameLen {
		return h.messenger.Send(chatID,
			fmt.Sprintf("Nickname must be %d to %d characters.", minNicknameLen, maxNicknameLen), nil)
	}

	team, err := h.backend.CreateTeam(ctx, userID, s.TeamName, text)
	h.clearSession(ctx, userID)
	if err != nil {
		return h.reportError(chatID, err)
	}

	if err := h.backend.ActivateTeam(ctx, userID, team.ID); err != nil {
		return h.reportError(chatID, err)
	}
	msg := fmt.Sprintf("Team %q created ✅\nInvite code: %s", team.Name, team.JoinCode)
	return h.messenger.Send(chatID, msg, modeMenuKeyboard(ModeTeam))
}

func (h *Handler) beginStep(ctx context.Context, chatID, userID int64, s Session, prompt string) error {
	if err := h.sessions.Save(ctx, userID, s); err != nil {
		return err
	}
	return h.messenger.Send(chatID, prompt, nil)
}

func (h *Handler) clearSession(ctx context.Context, userID int64) {
	if err := h.sessions.Delete(ctx, userID); err != nil {
		h.logger.WithError(err).WithField("telegram_id", userID).Warn("failed to clear session")
	}
}

func (h *Handler) reportError(chatID int64, err error) error {
	return h.messenger.Send(chatID, h.errorText(err), nil)
}

func (h *Handler) errorText(err error) string {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return fmt.Sprintf("Backend error: %d", se.Code)
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return textUnavailable
	default:
		h.logger.WithError(err).Error("unexpected backend error")
		return textUnexpected
	}
}

func (h *Handler) formatDue(task *Task) string {
	if task.DueAt == nil {
		return "--:--"
	}
	return task.DueAt.In(h.loc).Format("15:04")
}

func profileOf(u *tgbotapi.User) Profile {
	return Profile{
		TelegramID: u.ID,
		Username:   utils.OptionalString(&u.UserName),
		FirstName:  utils.OptionalString(&u.FirstName),
	}
}

func parseTaskData(data string) (string, uint, bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || !validMode(parts[1]) {
		return "", 0, false
	}
	id, ok := utils.ParseUint(parts[2])
	if !ok {
		return "", 0, false
	}
	return parts[1], id, true
}

func validMode(mode string) bool {
	return mode == ModePersonal || mode == ModeTeam
}

func modeLabel(mode string) string {
	if mode == ModeTeam {
		return "Team"
	}
	return "Personal"
}

func displayTitle(task *Task) string {
	if title := strings.TrimSpace(task.Title); title != "" {
		return title
	}
	return "(untitled)"
}
