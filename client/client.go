// Package client talks to the tasks server over its JSON API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/carlmjohnson/requests"

	"github.com/ViniZap4/tasks-server/domain"
)

var (
	ErrNotFound     = errors.New("task not found")
	ErrUnauthorized = errors.New("not logged in or session expired")
)

type envelope struct {
	OK      bool          `json:"ok"`
	Task    *domain.Task  `json:"task"`
	Tasks   []domain.Task `json:"tasks"`
	Message string        `json:"message"`
	Token   string        `json:"token"`
	Expires string        `json:"expiresAt"`
}

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{BaseURL: baseURL, Token: token}
}

func (c *Client) request(path string) *requests.Builder {
	rb := requests.URL(c.BaseURL).Path(path)
	if c.HTTPClient != nil {
		rb = rb.Client(c.HTTPClient)
	}
	if c.Token != "" {
		rb = rb.Bearer(c.Token)
	}
	return rb
}

// do sends rb and decodes the envelope for both success and error replies.
func (c *Client) do(ctx context.Context, rb *requests.Builder) (envelope, error) {
	var env envelope
	err := rb.
		AddValidator(requests.ValidatorHandler(requests.DefaultValidator, requests.ToJSON(&env))).
		ToJSON(&env).
		Fetch(ctx)
	if err == nil {
		return env, nil
	}
	switch {
	case requests.HasStatusErr(err, http.StatusNotFound):
		return env, fmt.Errorf("%w: %s", ErrNotFound, env.Message)
	case requests.HasStatusErr(err, http.StatusUnauthorized):
		return env, ErrUnauthorized
	case env.Message != "":
		return env, fmt.Errorf("server: %s", env.Message)
	}
	return env, err
}

// Login exchanges credentials for a session token. The token is also kept on c.
func (c *Client) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	body := map[string]string{"username": username, "password": password}
	env, err := c.do(ctx, c.request("/api/login").BodyJSON(body))
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return "", time.Time{}, errors.New("invalid username or password")
		}
		return "", time.Time{}, err
	}
	var expires time.Time
	if env.Expires != "" {
		expires, err = time.Parse(domain.TimeLayout, env.Expires)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("parse expiresAt: %w", err)
		}
	}
	c.Token = env.Token
	return env.Token, expires, nil
}

func (c *Client) List(ctx context.Context) ([]domain.Task, error) {
	env, err := c.do(ctx, c.request("/api/todos"))
	if err != nil {
		return nil, err
	}
	if env.Tasks == nil {
		env.Tasks = []domain.Task{}
	}
	return env.Tasks, nil
}

func (c *Client) Create(ctx context.Context, title string) (domain.Task, error) {
	env, err := c.do(ctx, c.request("/api/todos").
		BodyJSON(map[string]string{"title": title}))
	if err != nil {
		return domain.Task{}, err
	}
	return taskOf(env)
}

// Update sends only the fields set in patch.
func (c *Client) Update(ctx context.Context, id int, patch domain.TaskPatch) (domain.Task, error) {
	body := map[string]any{}
	if patch.Title != nil {
		body["title"] = *patch.Title
	}
	if patch.Completed != nil {
		body["completed"] = *patch.Completed
	}
	env, err := c.do(ctx, c.request("/api/todos/"+strconv.Itoa(id)).
		Patch().
		BodyJSON(body))
	if err != nil {
		return domain.Task{}, err
	}
	return taskOf(env)
}

func (c *Client) Delete(ctx context.Context, id int) error {
	_, err := c.do(ctx, c.request("/api/todos/"+strconv.Itoa(id)).Delete())
	return err
}

// CompleteAll marks every task completed and returns the ones that changed.
func (c *Client) CompleteAll(ctx context.Context) ([]domain.Task, error) {
	env, err := c.do(ctx, c.request("/api/todos/complete-all").Post())
	return env.Tasks, err
}

// UncheckCompleted clears the completed flag and returns the ones that changed.
func (c *Client) UncheckCompleted(ctx context.Context) ([]domain.Task, error) {
	env, err := c.do(ctx, c.request("/api/todos/uncheck-completed").Post())
	return env.Tasks, err
}

func taskOf(env envelope) (domain.Task, error) {
	if env.Task == nil {
		return domain.Task{}, errors.New("server returned no task")
	}
	return *env.Task, nil
}
