package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/benvon/onetask/internal/backend"
	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
)

const (
	tasksTable         = "/tasks"
	focusSessionsTable = "/focus_sessions"

	returnRepresentation = "return=representation"
)

func matchQuery(m backend.Match) url.Values {
	q := url.Values{
		"id":      {eq(m.ID.String())},
		"user_id": {eq(m.UserID.String())},
	}
	if m.UpdatedAt != nil {
		q.Set("updated_at", eq(m.UpdatedAt.UTC().Format(time.RFC3339Nano)))
	}
	return q
}

// ListTasks returns the user's tasks, newest first.
func (c *Client) ListTasks(ctx context.Context, userID uuid.UUID) ([]models.Task, error) {
	var rows []models.Task
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   restPath + tasksTable,
		query: url.Values{
			"select":  {"*"},
			"user_id": {eq(userID.String())},
			"order":   {"created_at.desc"},
		},
		useData: true,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return rows, nil
}

// InsertTask inserts one row and returns it, or nil when nothing came back.
func (c *Client) InsertTask(ctx context.Context, task backend.NewTask) (*models.Task, error) {
	var rows []models.Task
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    restPath + tasksTable,
		body:    task,
		prefer:  returnRepresentation,
		useData: true,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpdateTask patches the matched row and returns it.
func (c *Client) UpdateTask(ctx context.Context, m backend.Match, changes backend.TaskChanges) (*models.Task, error) {
	var rows []models.Task
	err := c.do(ctx, request{
		method:  http.MethodPatch,
		path:    restPath + tasksTable,
		query:   matchQuery(m),
		body:    changes.Columns(),
		prefer:  returnRepresentation,
		useData: true,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if len(rows) == 0 {
		return nil, backend.ErrNoRows
	}
	return &rows[0], nil
}

// DeleteTask deletes the matched row and reports how many rows went.
func (c *Client) DeleteTask(ctx context.Context, m backend.Match) (int, error) {
	var rows []struct {
		ID uuid.UUID `json:"id"`
	}
	q := matchQuery(m)
	q.Set("select", "id")
	err := c.do(ctx, request{
		method:  http.MethodDelete,
		path:    restPath + tasksTable,
		query:   q,
		prefer:  returnRepresentation,
		useData: true,
	}, &rows)
	if err != nil {
		return 0, fmt.Errorf("failed to delete task: %w", err)
	}
	return len(rows), nil
}

// InsertFocusSession records the start of a focus session.
func (c *Client) InsertFocusSession(ctx context.Context, s backend.NewFocusSession) (*models.FocusSession, error) {
	var rows []models.FocusSession
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    restPath + focusSessionsTable,
		body:    s,
		prefer:  returnRepresentation,
		useData: true,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to insert focus session: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpdateFocusSession patches the matched session.
func (c *Client) UpdateFocusSession(ctx context.Context, m backend.Match, in models.UpdateFocusSessionInput) (*models.FocusSession, error) {
	var rows []models.FocusSession
	err := c.do(ctx, request{
		method:  http.MethodPatch,
		path:    restPath + focusSessionsTable,
		query:   matchQuery(backend.Match{ID: m.ID, UserID: m.UserID}),
		body:    backend.FocusSessionColumns(in),
		prefer:  returnRepresentation,
		useData: true,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to update focus session: %w", err)
	}
	if len(rows) == 0 {
		return nil, backend.ErrNoRows
	}
	return &rows[0], nil
}

// ListFocusSessions returns a task's sessions, most recent start first.
func (c *Client) ListFocusSessions(ctx context.Context, userID, taskID uuid.UUID) ([]models.FocusSession, error) {
	var rows []models.FocusSession
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   restPath + focusSessionsTable,
		query: url.Values{
			"select":  {"*"},
			"task_id": {eq(taskID.String())},
			"user_id": {eq(userID.String())},
			"order":   {"start_time.desc"},
		},
		useData: true,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list focus sessions: %w", err)
	}
	return rows, nil
}

var _ backend.Backend = (*Client)(nil)
