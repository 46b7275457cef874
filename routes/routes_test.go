package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tasker/config"
	"tasker/utils"
)

var fixedNow = time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

type testAPI struct {
	t   *testing.T
	app *fiber.App
	db  *gorm.DB
}

func newTestAPI(t *testing.T, opts Options) *testAPI {
	t.Helper()

	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	app := NewApp(opts)
	SetupRoutes(app, db, opts)

	return &testAPI{t: t, app: app, db: db}
}

// do sends a JSON request and decodes the JSON answer into out when given.
func (a *testAPI) do(method, path string, body interface{}, out interface{}, headers ...string) int {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		require.NoError(a.t, err)
		require.NoError(a.t, json.Unmarshal(raw, out), "body: %s", raw)
	}
	return resp.StatusCode
}

func (a *testAPI) upsert(telegramID int64, username string) {
	a.t.Helper()
	status := a.do(http.MethodPost, "/users/upsert", fiber.Map{
		"telegram_id": telegramID,
		"username":    username,
	}, nil)
	require.Equal(a.t, http.StatusOK, status)
}

type taskBody struct {
	ID             uint       `json:"id"`
	Title          string     `json:"title"`
	Description    *string    `json:"description"`
	DueAt          *time.Time `json:"due_at"`
	Status         string     `json:"status"`
	TeamID         *uint      `json:"team_id"`
	DoneByNickname *string    `json:"done_by_nickname"`
}

type todayBody struct {
	Open []taskBody `json:"open"`
	Done []taskBody `json:"done"`
}

type detailBody struct {
	Detail string `json:"detail"`
}

func taskTitles(tasks []taskBody) []string {
	out := []string{}
	for _, task := range tasks {
		out = append(out, task.Title)
	}
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, Options{})

	var body map[string]string
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])

	var missing detailBody
	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/nope", nil, &missing))
	assert.Equal(t, "Not Found", missing.Detail)
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, Options{})
	api.upsert(42, "metric")

	// later requests reuse the buffers of the upsert
	var missing detailBody
	for _, path := range []string{"/nope-a", "/nope-bb", "/users/nope-ccc"} {
		require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, path, nil, &missing))
	}

	resp, err := api.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `http_requests_total{code="200",method="POST",path="/users/upsert"}`)
	assert.Contains(t, string(raw), `tasker_operations_total{op="user_upsert",result="success"}`)
	assert.Contains(t, string(raw), `http_requests_total{code="404",method="GET",path="unmatched"}`)
	assert.NotContains(t, string(raw), "nope")
}

func TestUsers(t *testing.T) {
	api := newTestAPI(t, Options{})

	var user struct {
		ID         uint    `json:"id"`
		TelegramID int64   `json:"telegram_id"`
		Username   *string `json:"username"`
		FirstName  *string `json:"first_name"`
	}
	status := api.do(http.MethodPost, "/users/upsert", fiber.Map{
		"telegram_id": 100,
		"username":    "alice",
		"first_name":  "  ",
	}, &user)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 100, user.TelegramID)
	assert.Equal(t, "alice", *user.Username)
	assert.Nil(t, user.FirstName, "blank names are stored as null")

	var invalid detailBody
	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/users/upsert", fiber.Map{"telegram_id": 0}, &invalid))
	assert.Contains(t, invalid.Detail, "telegram_id")

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/users/me?telegram_id=100", nil, &user))
	assert.EqualValues(t, 100, user.TelegramID)

	var notFound detailBody
	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/users/me?telegram_id=5", nil, &notFound))
	assert.Equal(t, "User not found. Call /users/upsert first.", notFound.Detail)

	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodGet, "/users/me", nil, nil))
	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodGet, "/users/me?telegram_id=abc", nil, nil))
	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodGet, "/users/me?telegram_id=-3", nil, nil))
}

func TestPersonalTasks(t *testing.T) {
	api := newTestAPI(t, Options{})

	var detail detailBody
	require.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/tasks/personal?telegram_id=1", fiber.Map{"title": "x"}, &detail))
	assert.Equal(t, "User not found. Call /users/upsert first.", detail.Detail)

	var list []taskBody
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tasks/personal?telegram_id=1", nil, &list))
	assert.Empty(t, list)

	var count map[string]int
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tasks/personal/count?telegram_id=1", nil, &count))
	assert.Equal(t, 0, count["count"])

	api.upsert(1, "alice")

	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/tasks/personal?telegram_id=1", fiber.Map{"title": ""}, nil))
	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/tasks/personal?telegram_id=1", fiber.Map{"title": "   "}, nil))

	var created taskBody
	due := fixedNow.Add(2 * time.Hour)
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/tasks/personal?telegram_id=1", fiber.Map{
		"title":       "write report",
		"description": "",
		"due_at":      due,
	}, &created))
	assert.Equal(t, "write report", created.Title)
	assert.Nil(t, created.Description)
	assert.Equal(t, "todo", created.Status)
	require.NotNil(t, created.DueAt)
	assert.True(t, due.Equal(*created.DueAt))

	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/tasks/personal?telegram_id=1", fiber.Map{"title": "later"}, nil))

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tasks/personal?telegram_id=1", nil, &list))
	assert.Equal(t, []string{"later", "write report"}, taskTitles(list))

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tasks/personal/count?telegram_id=1", nil, &count))
	assert.Equal(t, 2, count["count"])

	var fetched taskBody
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("/tasks/personal/%d?telegram_id=1", created.ID), nil, &fetched))
	assert.Equal(t, created.ID, fetched.ID)

	// someone else's task reads as missing
	api.upsert(2, "bob")
	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, fmt.Sprintf("/tasks/personal/%d?telegram_id=2", created.ID), nil, &detail))
	assert.Equal(t, "Task not found", detail.Detail)

	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, fmt.Sprintf("/tasks/archive/%d?telegram_id=1", created.ID), nil, nil))
	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/tasks/personal/abc?telegram_id=1", nil, nil))
}

func TestBotTaskTimes(t *testing.T) {
	api := newTestAPI(t, Options{})

	tests := []struct {
		remindAt   string
		wantStatus int
		wantDue    time.Time
		wantDetail string
	}{
		{remindAt: "18:30", wantStatus: http.StatusCreated, wantDue: time.Date(2026, time.March, 10, 18, 30, 0, 0, time.UTC)},
		{remindAt: "730", wantStatus: http.StatusCreated, wantDue: time.Date(2026, time.March, 11, 7, 30, 0, 0, time.UTC)},
		{remindAt: "25", wantStatus: http.StatusUnprocessableEntity, wantDetail: "Invalid time value"},
		{remindAt: "9:75", wantStatus: http.StatusUnprocessableEntity, wantDetail: "Invalid time value"},
		{remindAt: "abc", wantStatus: http.StatusUnprocessableEntity, wantDetail: "Invalid time format"},
	}

	for _, tt := range tests {
		t.Run(tt.remindAt, func(t *testing.T) {
			var raw json.RawMessage
			status := api.do(http.MethodPost, "/tasks", fiber.Map{
				"telegram_id": 55,
				"title":       "stretch",
				"remind_at":   tt.remindAt,
				"first_name":  "Dana",
			}, &raw)
			require.Equal(t, tt.wantStatus, status, string(raw))

			if tt.wantDetail != "" {
				var detail detailBody
				require.NoError(t, json.Unmarshal(raw, &detail))
				assert.Contains(t, detail.Detail, tt.wantDetail)
				return
			}

			var task taskBody
			require.NoError(t, json.Unmarshal(raw, &task))
			require.NotNil(t, task.DueAt)
			assert.True(t, tt.wantDue.Equal(*task.DueAt), "got %s", task.DueAt)
			assert.Nil(t, task.TeamID)
		})
	}

	var missing detailBody
	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/tasks", fiber.Map{"telegram_id": 55, "title": "x"}, &missing))
	assert.Contains(t, missing.Detail, "remind_at is required")
}

func TestTodayDoneAndTomorrow(t *testing.T) {
	api := newTestAPI(t, Options{})

	create := func(title, remindAt string) taskBody {
		var task taskBody
		require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/tasks", fiber.Map{
			"telegram_id": 7,
			"title":       title,
			"remind_at":   remindAt,
		}, &task))
		return task
	}

	evening := create("evening", "21")
	create("morning", "0930")
	lunch := create("lunch", "13:00")
	create("tomorrow", "6")

	var today todayBody
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tasks/personal/today?telegram_id=7", nil, &today))
	assert.Equal(t, []string{"morning", "lunch", "evening"}, taskTitles(today.Open))
	assert.Empty(t, today.Done)

	var done taskBody
	require.Equal(t, http.StatusOK, api.do(http.MethodPatch, fmt.Sprintf("/tasks/personal/%d/done?telegram_id=7", lunch.ID), nil, &done))
	assert.Equal(t, "done", done.Status)

	var snoozed taskBody
	require.Equal(t, http.StatusOK, api.do(http.MethodPatch, fmt.Sprintf("/tasks/personal/%d/tomorrow?telegram_id=7", evening.ID), nil, &snoozed))
	assert.True(t, evening.DueAt.Add(24*time.Hour).Equal(*snoozed.DueAt))

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tasks/today?telegram_id=7", nil, &today))
	assert.Equal(t, []string{"morning"}, taskTitles(today.Open))
	assert.Equal(t, []string{"lunch"}, taskTitles(today.Done))

	// unknown users see empty buckets, not errors
	var empty map[string][]taskBody
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tasks/today?telegram_id=999", nil, &empty))
	assert.NotNil(t, empty["open"])
	assert.NotNil(t, empty["done"])

	var detail detailBody
	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/tasks/team/today?telegram_id=7", nil, &detail))
	assert.Equal(t, "No active team", detail.Detail)
}

func TestTeamsFlow(t *testing.T) {
	api := newTestAPI(t, Options{})

	var detail detailBody
	require.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/teams?telegram_id=1", fiber.Map{"name": "Alpha", "nickname": "captain"}, &detail))

	api.upsert(1, "alice")
	api.upsert(2, "bo")

	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/teams?telegram_id=1", fiber.Map{"name": "Al", "nickname": "captain"}, nil))

	var team struct {
		ID       uint   `json:"id"`
		Name     string `json:"name"`
		JoinCode string `json:"join_code"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/teams?telegram_id=1", fiber.Map{"name": "Alpha", "nickname": "captain"}, &team))
	assert.Equal(t, "Alpha", team.Name)
	assert.True(t, utils.IsJoinCode(team.JoinCode))

	// outsiders may not switch into the team
	require.Equal(t, http.StatusForbidden, api.do(http.MethodPost, fmt.Sprintf("/teams/%d/activate?telegram_id=2", team.ID), nil, &detail))
	assert.Equal(t, "Not a team member", detail.Detail)
	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, fmt.Sprintf("/teams/%d/me?telegram_id=2", team.ID), nil, &detail))
	assert.Equal(t, "Not a team member", detail.Detail)

	require.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/teams/join?telegram_id=2", fiber.Map{"join_code": "ZZZZZZZZZZZZZZZZ"}, &detail))
	assert.Equal(t, "Team not found", detail.Detail)
	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/teams/join?telegram_id=2", fiber.Map{"join_code": "short"}, nil))

	var joined map[string]interface{}
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/teams/join?telegram_id=2", fiber.Map{"join_code": team.JoinCode}, &joined))
	assert.EqualValues(t, team.ID, joined["team_id"])
	assert.Equal(t, "Alpha", joined["name"])

	var member struct {
		TeamID   uint   `json:"team_id"`
		UserID   uint   `json:"user_id"`
		Nickname string `json:"nickname"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("/teams/%d/me?telegram_id=2", team.ID), nil, &member))
	assert.Equal(t, "bo__", member.Nickname, "short names are padded")

	// joining again keeps the first membership
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, fmt.Sprintf("/teams/%d/join?telegram_id=2", team.ID), fiber.Map{"nickname": "renamed"}, &member))
	assert.Equal(t, "bo__", member.Nickname)

	api.upsert(3, "carol")
	require.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/teams/join-by-code?telegram_id=3", fiber.Map{
		"join_code": team.JoinCode,
		"nickname":  "captain",
	}, &detail))
	assert.Equal(t, "Nickname already taken in this team", detail.Detail)
	require.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/teams/join-by-code?telegram_id=3", fiber.Map{
		"join_code": "ZZZZZZZZZZZZZZZZ",
		"nickname":  "carol",
	}, &detail))
	assert.Equal(t, "Invalid join_code", detail.Detail)

	var active map[string]interface{}
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, fmt.Sprintf("/teams/%d/activate?telegram_id=2", team.ID), nil, &active))
	assert.EqualValues(t, team.ID, active["active_team_id"])

	var my struct {
		Teams []struct {
			ID   uint   `json:"id"`
			Name string `json:"name"`
		} `json:"teams"`
		ActiveTeamID *uint `json:"active_team_id"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/teams/my?telegram_id=2", nil, &my))
	require.Len(t, my.Teams, 1)
	assert.Equal(t, "Alpha", my.Teams[0].Name)
	require.NotNil(t, my.ActiveTeamID)
	assert.Equal(t, team.ID, *my.ActiveTeamID)

	var code map[string]interface{}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/teams/active/join_code?telegram_id=2", nil, &code))
	assert.Equal(t, team.JoinCode, code["join_code"])

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/teams/deactivate?telegram_id=2", nil, &active))
	assert.Nil(t, active["active_team_id"])
	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/teams/active/join_code?telegram_id=2", nil, &detail))
	assert.Equal(t, "No active team", detail.Detail)
}

func TestTeamFieldsAreTrimmed(t *testing.T) {
	api := newTestAPI(t, Options{})
	api.upsert(1, "alice")
	api.upsert(2, "bob")

	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/teams?telegram_id=1", fiber.Map{"name": "     x", "nickname": "captain"}, nil))
	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/teams?telegram_id=1", fiber.Map{"name": "Night Shift", "nickname": "     y"}, nil))

	var team struct {
		ID       uint   `json:"id"`
		Name     string `json:"name"`
		JoinCode string `json:"join_code"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/teams?telegram_id=1", fiber.Map{"name": "  Night Shift  ", "nickname": "  capt  "}, &team))
	assert.Equal(t, "Night Shift", team.Name)

	var member struct {
		Nickname string `json:"nickname"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("/teams/%d/me?telegram_id=1", team.ID), nil, &member))
	assert.Equal(t, "capt", member.Nickname)

	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, fmt.Sprintf("/teams/%d/join?telegram_id=2", team.ID), fiber.Map{"nickname": "   z"}, nil))
	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/teams/join-by-code?telegram_id=2", fiber.Map{
		"join_code": team.JoinCode,
		"nickname":  "     z",
	}, nil))

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/teams/join-by-code?telegram_id=2", fiber.Map{
		"join_code": " " + team.JoinCode + " ",
		"nickname":  "  bobby  ",
	}, &member))
	assert.Equal(t, "bobby", member.Nickname)
}

func TestTeamTasks(t *testing.T) {
	api := newTestAPI(t, Options{})
	api.upsert(1, "alice")
	api.upsert(2, "bob")

	var team struct {
		ID       uint   `json:"id"`
		JoinCode string `json:"join_code"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/teams?telegram_id=1", fiber.Map{"name": "Alpha", "nickname": "captain"}, &team))
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/teams/join-by-code?telegram_id=2", fiber.Map{"join_code": team.JoinCode, "nickname": "sailor"}, nil))
	for _, id := range []int{1, 2} {
		require.Equal(t, http.StatusOK, api.do(http.MethodPost, fmt.Sprintf("/teams/%d/activate?telegram_id=%d", team.ID, id), nil, nil))
	}

	var task taskBody
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/tasks", fiber.Map{
		"telegram_id": 1,
		"title":       "standup",
		"remind_at":   "10",
	}, &task))
	require.NotNil(t, task.TeamID)
	assert.Equal(t, team.ID, *task.TeamID)

	// team work stays out of the creator's personal lists
	var today todayBody
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tasks/personal/today?telegram_id=1", nil, &today))
	assert.Empty(t, today.Open)
	var list []taskBody
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tasks/personal?telegram_id=1", nil, &list))
	assert.Empty(t, list)

	require.Equal(t, http.StatusNotFound, api.do(http.MethodPatch, fmt.Sprintf("/tasks/personal/%d/done?telegram_id=1", task.ID), nil, nil))

	var done taskBody
	require.Equal(t, http.StatusOK, api.do(http.MethodPatch, fmt.Sprintf("/tasks/team/%d/done?telegram_id=2", task.ID), nil, &done))
	require.NotNil(t, done.DoneByNickname)
	assert.Equal(t, "sailor", *done.DoneByNickname)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tasks/today?telegram_id=1", nil, &today))
	assert.Empty(t, today.Open)
	require.Len(t, today.Done, 1)
	assert.Equal(t, "sailor", *today.Done[0].DoneByNickname)
}

func TestServiceAuth(t *testing.T) {
	api := newTestAPI(t, Options{APISecret: "s3cret"})

	var detail detailBody
	require.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/tasks/personal/count?telegram_id=1", nil, &detail))
	assert.Equal(t, "Authorization required", detail.Detail)

	require.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/tasks/personal/count?telegram_id=1", nil, nil,
		"Authorization", "Token abc"))

	bad, err := utils.GenerateServiceToken("other", "bot", time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/tasks/personal/count?telegram_id=1", nil, nil,
		"Authorization", "Bearer "+bad))

	token, err := utils.GenerateServiceToken("s3cret", "bot", time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tasks/personal/count?telegram_id=1", nil, nil,
		"Authorization", "Bearer "+token))

	// probes stay open
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/health", nil, nil))
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tasks/personal/count?telegram_id=9", nil, nil))
	}
	var detail detailBody
	require.Equal(t, http.StatusTooManyRequests, api.do(http.MethodGet, "/tasks/personal/count?telegram_id=9", nil, &detail))
	assert.NotEmpty(t, detail.Detail)

	// other callers have their own budget
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tasks/personal/count?telegram_id=10", nil, nil))
}
