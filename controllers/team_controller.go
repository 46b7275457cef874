package controller

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tasker/metrics"
	"tasker/middleware"
	"tasker/models"
	"tasker/repository"
)

const (
	nicknameMinLen = 4
	nicknameMaxLen = 32
)

type CreateTeamRequest struct {
	Name     string `json:"name" validate:"required,min=4,max=64"`
	Nickname string `json:"nickname" validate:"required,min=4,max=32"`
}

type JoinTeamRequest struct {
	Nickname string `json:"nickname" validate:"required,min=4,max=32"`
}

type JoinByCodeRequest struct {
	JoinCode string `json:"join_code" validate:"required,joincode"`
	Nickname string `json:"nickname" validate:"required,min=4,max=32"`
}

// BotJoinRequest lets the nickname default to the user's Telegram name.
type BotJoinRequest struct {
	JoinCode string  `json:"join_code" validate:"required,joincode"`
	Nickname *string `json:"nickname" validate:"omitempty,min=4,max=32"`
}

func (r *CreateTeamRequest) trim() {
	r.Name = strings.TrimSpace(r.Name)
	r.Nickname = strings.TrimSpace(r.Nickname)
}

func (r *JoinTeamRequest) trim() {
	r.Nickname = strings.TrimSpace(r.Nickname)
}

func (r *JoinByCodeRequest) trim() {
	r.JoinCode = strings.TrimSpace(r.JoinCode)
	r.Nickname = strings.TrimSpace(r.Nickname)
}

func (r *BotJoinRequest) trim() {
	r.JoinCode = strings.TrimSpace(r.JoinCode)
	if r.Nickname != nil {
		nickname := strings.TrimSpace(*r.Nickname)
		r.Nickname = &nickname
	}
}

type TeamResponse struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	JoinCode string `json:"join_code"`
}

type TeamSummary struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type MyTeamsResponse struct {
	Teams        []TeamSummary `json:"teams"`
	ActiveTeamID *uint         `json:"active_team_id"`
}

type TeamController struct {
	Users  *repository.UserRepo
	Teams  *repository.TeamRepo
	Logger *logrus.Entry
}

func NewTeamController(db *gorm.DB) *TeamController {
	return &TeamController{
		Users:  repository.NewUserRepo(db),
		Teams:  repository.NewTeamRepo(db),
		Logger: logrus.WithField("controller", "teams"),
	}
}

// Create makes a team with the caller as its first member.
func (tc *TeamController) Create(c *fiber.Ctx) error {
	var req CreateTeamRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, err := tc.currentUser(c)
	if err != nil {
		return handleError(c, "team_create", err)
	}

	start := time.Now()
	team, err := tc.Teams.CreateWithCreator(c.UserContext(), strings.TrimSpace(req.Name), user.ID, strings.TrimSpace(req.Nickname))
	metrics.ObserveOp("team_create", start, err)
	if err != nil {
		return handleError(c, "team_create", err)
	}

	return c.JSON(TeamResponse{ID: team.ID, Name: team.Name, JoinCode: team.JoinCode})
}

func (tc *TeamController) Join(c *fiber.Ctx) error {
	teamID, err := pathID(c, "id", "Team not found")
	if err != nil {
		return err
	}
	var req JoinTeamRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, err := tc.currentUser(c)
	if err != nil {
		return handleError(c, "team_join", err)
	}
	if _, err := tc.Teams.GetByID(c.UserContext(), teamID); err != nil {
		return handleError(c, "team_join", err)
	}

	member, err := tc.join(c, teamID, user.ID, req.Nickname)
	if err != nil {
		return handleError(c, "team_join", err)
	}
	return c.JSON(member)
}

func (tc *TeamController) JoinByCode(c *fiber.Ctx) error {
	var req JoinByCodeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, err := tc.currentUser(c)
	if err != nil {
		return handleError(c, "team_join", err)
	}
	team, err := tc.Teams.GetByJoinCode(c.UserContext(), req.JoinCode)
	if errors.Is(err, repository.ErrTeamNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Invalid join_code")
	}
	if err != nil {
		return handleError(c, "team_join", err)
	}

	member, err := tc.join(c, team.ID, user.ID, req.Nickname)
	if err != nil {
		return handleError(c, "team_join", err)
	}
	return c.JSON(member)
}

// JoinBot is the chat flow variant: the nickname is optional and the
// answer names the team so the bot can greet the user.
func (tc *TeamController) JoinBot(c *fiber.Ctx) error {
	var req BotJoinRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, err := tc.currentUser(c)
	if err != nil {
		return handleError(c, "team_join", err)
	}
	team, err := tc.Teams.GetByJoinCode(c.UserContext(), req.JoinCode)
	if err != nil {
		return handleError(c, "team_join", err)
	}

	nickname := defaultNickname(user)
	if req.Nickname != nil {
		nickname = *req.Nickname
	}

	_, err = tc.join(c, team.ID, user.ID, nickname)
	if errors.Is(err, repository.ErrNicknameTaken) && req.Nickname == nil {
		// someone already uses the Telegram name in this team
		_, err = tc.join(c, team.ID, user.ID, fallbackNickname(nickname, user.TelegramID))
	}
	if err != nil {
		return handleError(c, "team_join", err)
	}

	return c.JSON(fiber.Map{"team_id": team.ID, "name": team.Name})
}

func (tc *TeamController) Membership(c *fiber.Ctx) error {
	teamID, err := pathID(c, "id", "Not a team member")
	if err != nil {
		return err
	}

	user, err := tc.currentUser(c)
	if err != nil {
		return handleError(c, "team_membership", err)
	}

	member, err := tc.Teams.GetMember(c.UserContext(), teamID, user.ID)
	if errors.Is(err, repository.ErrNotTeamMember) {
		return fiber.NewError(fiber.StatusNotFound, "Not a team member")
	}
	if err != nil {
		return handleError(c, "team_membership", err)
	}
	return c.JSON(member)
}

// Activate switches the caller into the team's scope. Non-members get 403.
func (tc *TeamController) Activate(c *fiber.Ctx) error {
	teamID, err := pathID(c, "id", "Team not found")
	if err != nil {
		return err
	}

	user, err := tc.currentUser(c)
	if err != nil {
		return handleError(c, "team_activate", err)
	}

	if err := tc.Teams.Activate(c.UserContext(), user, teamID); err != nil {
		return handleError(c, "team_activate", err)
	}
	return c.JSON(fiber.Map{"active_team_id": user.ActiveTeamID})
}

func (tc *TeamController) Deactivate(c *fiber.Ctx) error {
	user, err := tc.currentUser(c)
	if err != nil {
		return handleError(c, "team_deactivate", err)
	}

	if err := tc.Teams.Deactivate(c.UserContext(), user); err != nil {
		return handleError(c, "team_deactivate", err)
	}
	return c.JSON(fiber.Map{"active_team_id": nil})
}

func (tc *TeamController) MyTeams(c *fiber.Ctx) error {
	user, err := tc.currentUser(c)
	if err != nil {
		return handleError(c, "team_list", err)
	}

	teams, err := tc.Teams.ListByUser(c.UserContext(), user.ID)
	if err != nil {
		return handleError(c, "team_list", err)
	}

	resp := MyTeamsResponse{
		Teams:        make([]TeamSummary, 0, len(teams)),
		ActiveTeamID: user.ActiveTeamID,
	}
	for _, team := range teams {
		resp.Teams = append(resp.Teams, TeamSummary{ID: team.ID, Name: team.Name})
	}
	return c.JSON(resp)
}

// ActiveJoinCode hands out the invite code of the caller's active team.
func (tc *TeamController) ActiveJoinCode(c *fiber.Ctx) error {
	user, err := tc.currentUser(c)
	if err != nil {
		return handleError(c, "team_join_code", err)
	}
	if user.ActiveTeamID == nil {
		return handleError(c, "team_join_code", repository.ErrNoActiveTeam)
	}

	if _, err := tc.Teams.GetMember(c.UserContext(), *user.ActiveTeamID, user.ID); err != nil {
		return handleError(c, "team_join_code", err)
	}
	team, err := tc.Teams.GetByID(c.UserContext(), *user.ActiveTeamID)
	if err != nil {
		return handleError(c, "team_join_code", err)
	}

	return c.JSON(fiber.Map{"team_id": team.ID, "join_code": team.JoinCode})
}

func (tc *TeamController) currentUser(c *fiber.Ctx) (*models.User, error) {
	return tc.Users.GetByTelegramID(c.UserContext(), middleware.TelegramID(c))
}

func (tc *TeamController) join(c *fiber.Ctx, teamID, userID uint, nickname string) (*models.TeamMember, error) {
	start := time.Now()
	member, err := tc.Teams.Join(c.UserContext(), teamID, userID, strings.TrimSpace(nickname))
	metrics.ObserveOp("team_join", start, err)
	return member, err
}

// defaultNickname derives a team nickname from the Telegram profile, padded
// to the minimum length and cut to the maximum.
func defaultNickname(user *models.User) string {
	name := user.DisplayName()
	if name == "" {
		name = fmt.Sprintf("user%d", user.TelegramID)
	}
	return fitNickname(name)
}

func fallbackNickname(name string, telegramID int64) string {
	suffix := fmt.Sprintf("_%d", telegramID)
	runes := []rune(name)
	if keep := nicknameMaxLen - len(suffix); len(runes) > keep {
		runes = runes[:keep]
	}
	return fitNickname(string(runes) + suffix)
}

func fitNickname(name string) string {
	for utf8.RuneCountInString(name) < nicknameMinLen {
		name += "_"
	}
	if runes := []rune(name); len(runes) > nicknameMaxLen {
		name = string(runes[:nicknameMaxLen])
	}
	return name
}
