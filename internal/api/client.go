// Package api provides the client surface for the Flow remote API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/flowapp/flowsync/internal/errors"
	"github.com/flowapp/flowsync/internal/models"
)

// idempotencyHeader carries the action ID so the server can drop
// duplicate deliveries of the same mutation.
const idempotencyHeader = "X-Idempotency-Key"

// Client is the HTTP implementation of RemoteStore against the Flow
// REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// doJSON issues a request with an optional JSON body and decodes the
// response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, key models.ActionID, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(idempotencyHeader, key.String())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteUnavailable, fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return apperrors.New(apperrors.ErrRemoteUnavailable, fmt.Sprintf("%s %s: server error %d", method, path, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		// Permanent rejections are not retried any differently from
		// transient failures; the caller requeues both. The distinct
		// code at least makes the condition visible in logs.
		return apperrors.New(apperrors.ErrRemoteRejected, fmt.Sprintf("%s %s: rejected with %d", method, path, resp.StatusCode))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "failed to decode response", err)
		}
	}
	return nil
}

// CreateTask creates a task and returns it with its server-assigned ID.
func (c *Client) CreateTask(ctx context.Context, key models.ActionID, task *models.Task) (*models.Task, error) {
	body := task.Clone()
	body.ID = 0 // server assigns identity
	var created models.Task
	if err := c.doJSON(ctx, http.MethodPost, "/api/tasks", key, body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTask applies a partial field update to a task.
func (c *Client) UpdateTask(ctx context.Context, key models.ActionID, id int64, fields map[string]interface{}) error {
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/api/tasks/%d", id), key, fields, nil)
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, key models.ActionID, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", id), key, nil, nil)
}

// CreateHabit creates a habit and returns it with its server-assigned ID.
func (c *Client) CreateHabit(ctx context.Context, key models.ActionID, habit *models.Habit) (*models.Habit, error) {
	body := habit.Clone()
	body.ID = 0
	var created models.Habit
	if err := c.doJSON(ctx, http.MethodPost, "/api/habits", key, body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateHabit applies a partial field update to a habit.
func (c *Client) UpdateHabit(ctx context.Context, key models.ActionID, id int64, fields map[string]interface{}) error {
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/api/habits/%d", id), key, fields, nil)
}

// DeleteHabit deletes a habit.
func (c *Client) DeleteHabit(ctx context.Context, key models.ActionID, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/habits/%d", id), key, nil, nil)
}

// CompleteHabit marks a habit completed for a date.
func (c *Client) CompleteHabit(ctx context.Context, key models.ActionID, id int64, date string) error {
	body := models.CompleteHabitPayload{Date: date}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/habits/%d/complete", id), key, body, nil)
}

// UncompleteHabit clears a habit completion for a date.
func (c *Client) UncompleteHabit(ctx context.Context, key models.ActionID, id int64, date string) error {
	body := models.CompleteHabitPayload{Date: date}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/habits/%d/uncomplete", id), key, body, nil)
}

// FetchTasks loads the full task collection.
func (c *Client) FetchTasks(ctx context.Context) ([]*models.Task, error) {
	var tasks []*models.Task
	if err := c.doJSON(ctx, http.MethodGet, "/api/tasks", "", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// FetchHabits loads the full habit collection.
func (c *Client) FetchHabits(ctx context.Context) ([]*models.Habit, error) {
	var habits []*models.Habit
	if err := c.doJSON(ctx, http.MethodGet, "/api/habits", "", nil, &habits); err != nil {
		return nil, err
	}
	return habits, nil
}

// Health probes whether the remote is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/api/health", "", nil, nil)
}
