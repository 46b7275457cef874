package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"tasker/utils"
)

// ErrUnavailable wraps transport failures: the API could not be reached or
// did not answer in time.
var ErrUnavailable = errors.New("backend unavailable")

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.Code)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Detail)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Backend is the part of the API the conversation handler talks to.
type Backend interface {
	UpsertUser(ctx context.Context, p Profile) error
	DeactivateTeam(ctx context.Context, telegramID int64) error
	ActivateTeam(ctx context.Context, telegramID int64, teamID uint) error
	MyTeams(ctx context.Context, telegramID int64) (*MyTeams, error)
	ActiveJoinCode(ctx context.Context, telegramID int64) (string, error)
	CreateTeam(ctx context.Context, telegramID int64, name, nickname string) (*Team, error)
	JoinTeam(ctx context.Context, telegramID int64, joinCode string) (*JoinResult, error)
	Today(ctx context.Context, telegramID int64, mode string) (*TodayTasks, error)
	GetTask(ctx context.Context, telegramID int64, mode string, taskID uint) (*Task, error)
	MarkDone(ctx context.Context, telegramID int64, mode string, taskID uint) error
	Snooze(ctx context.Context, telegramID int64, mode string, taskID uint) error
	CreateTask(ctx context.Context, in NewTask) (*Task, error)
}

// Client calls the tasker HTTP API over fasthttp.
type Client struct {
	baseURL string
	secret  string
	timeout time.Duration
	http    *fasthttp.Client
}

func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                "tasker-bot",
			MaxConnsPerHost:     64,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

func (c *Client) UpsertUser(ctx context.Context, p Profile) error {
	return c.do(ctx, fasthttp.MethodPost, "/users/upsert", nil, p, nil)
}

func (c *Client) DeactivateTeam(ctx context.Context, telegramID int64) error {
	return c.do(ctx, fasthttp.MethodPost, "/teams/deactivate", identity(telegramID), nil, nil)
}

func (c *Client) ActivateTeam(ctx context.Context, telegramID int64, teamID uint) error {
	path := fmt.Sprintf("/teams/%d/activate", teamID)
	return c.do(ctx, fasthttp.MethodPost, path, identity(telegramID), nil, nil)
}

func (c *Client) MyTeams(ctx context.Context, telegramID int64) (*MyTeams, error) {
	var out MyTeams
	if err := c.do(ctx, fasthttp.MethodGet, "/teams/my", identity(telegramID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ActiveJoinCode(ctx context.Context, telegramID int64) (string, error) {
	var out struct {
		JoinCode string `json:"join_code"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/teams/active/join_code", identity(telegramID), nil, &out); err != nil {
		return "", err
	}
	return out.JoinCode, nil
}

func (c *Client) CreateTeam(ctx context.Context, telegramID int64, name, nickname string) (*Team, error) {
	body := map[string]string{"name": name, "nickname": nickname}
	var out Team
	if err := c.do(ctx, fasthttp.MethodPost, "/teams", identity(telegramID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinTeam(ctx context.Context, telegramID int64, joinCode string) (*JoinResult, error) {
	body := map[string]string{"join_code": joinCode}
	var out JoinResult
	if err := c.do(ctx, fasthttp.MethodPost, "/teams/join", identity(telegramID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Today(ctx context.Context, telegramID int64, mode string) (*TodayTasks, error) {
	var out TodayTasks
	path := "/tasks/" + mode + "/today"
	if err := c.do(ctx, fasthttp.MethodGet, path, identity(telegramID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTask(ctx context.Context, telegramID int64, mode string, taskID uint) (*Task, error) {
	var out Task
	path := fmt.Sprintf("/tasks/%s/%d", mode, taskID)
	if err := c.do(ctx, fasthttp.MethodGet, path, identity(telegramID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MarkDone(ctx context.Context, telegramID int64, mode string, taskID uint) error {
	path := fmt.Sprintf("/tasks/%s/%d/done", mode, taskID)
	return c.do(ctx, fasthttp.MethodPatch, path, identity(telegramID), nil, nil)
}

func (c *Client) Snooze(ctx context.Context, telegramID int64, mode string, taskID uint) error {
	path := fmt.Sprintf("/tasks/%s/%d/tomorrow", mode, taskID)
	return c.do(ctx, fasthttp.MethodPatch, path, identity(telegramID), nil, nil)
}

func (c *Client) CreateTask(ctx context.Context, in NewTask) (*Task, error) {
	var out Task
	if err := c.do(ctx, fasthttp.MethodPost, "/tasks", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(raw)
	}

	if c.secret != "" {
		token, err := utils.GenerateServiceToken(c.secret, "bot", time.Minute)
		if err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		var payload struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(resp.Body(), &payload)
		return &StatusError{Code: status, Detail: payload.Detail}
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response of %s %s: %w", method, path, err)
	}
	return nil
}

func identity(telegramID int64) url.Values {
	return url.Values{"telegram_id": []string{strconv.FormatInt(telegramID, 10)}}
}
