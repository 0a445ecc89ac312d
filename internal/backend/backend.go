// Package backend defines the contract between the client core and the
// hosted authentication and data service.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
)

// ErrNoRows is returned when a scoped update matched nothing.
var ErrNoRows = errors.New("no rows matched")

// ErrInvalidCredentials is returned by sign-in for an unknown email or bad password.
var ErrInvalidCredentials = errors.New("invalid login credentials")

// Match scopes a mutation to a single row owned by a user. When UpdatedAt is
// set the row must also still carry that timestamp.
type Match struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	UpdatedAt *time.Time
}

// NewTask is the row written by an insert.
type NewTask struct {
	UserID          uuid.UUID         `json:"user_id"`
	Title           string            `json:"title"`
	Description     *string           `json:"description"`
	Priority        int               `json:"priority"`
	Status          models.TaskStatus `json:"status"`
	DueDate         *string           `json:"due_date"`
	Tags            []string          `json:"tags"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	AIPriorityScore *float64          `json:"ai_priority_score"`
}

// TaskChanges is the column set written by an update.
type TaskChanges struct {
	models.TaskPatch
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFocusSession is the row written when a focus session starts.
type NewFocusSession struct {
	TaskID    uuid.UUID `json:"task_id"`
	UserID    uuid.UUID `json:"user_id"`
	Duration  int       `json:"duration"`
	StartTime time.Time `json:"start_time"`
	Completed bool      `json:"completed"`
	Notes     *string   `json:"notes"`
}

// Auth is the account side of the backend.
type Auth interface {
	SignUp(ctx context.Context, email, password string) (*models.Session, error)
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*models.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Tasks is the task table.
type Tasks interface {
	// ListTasks returns every task owned by userID, newest first.
	ListTasks(ctx context.Context, userID uuid.UUID) ([]models.Task, error)
	// InsertTask persists one row and returns it. A nil row with a nil
	// error means the backend reported success without data.
	InsertTask(ctx context.Context, task NewTask) (*models.Task, error)
	// UpdateTask applies changes to the row identified by m and returns the
	// stored row, or ErrNoRows.
	UpdateTask(ctx context.Context, m Match, changes TaskChanges) (*models.Task, error)
	// DeleteTask removes the row identified by m and reports how many rows went.
	DeleteTask(ctx context.Context, m Match) (int, error)
}

// FocusSessions is the focus_sessions table.
type FocusSessions interface {
	InsertFocusSession(ctx context.Context, s NewFocusSession) (*models.FocusSession, error)
	UpdateFocusSession(ctx context.Context, m Match, in models.UpdateFocusSessionInput) (*models.FocusSession, error)
	// ListFocusSessions returns sessions for one task, most recent start first.
	ListFocusSessions(ctx context.Context, userID, taskID uuid.UUID) ([]models.FocusSession, error)
}

// Backend is the full service.
type Backend interface {
	Auth
	Tasks
	FocusSessions
}

// ErrNotAuthenticated is returned when an operation needs a signed-in user.
var ErrNotAuthenticated = errors.New("not authenticated")

// Columns returns the column values an update writes.
func (c TaskChanges) Columns() map[string]any {
	cols := map[string]any{"updated_at": c.UpdatedAt}
	if c.Title != nil {
		cols["title"] = *c.Title
	}
	if c.Description != nil {
		cols["description"] = *c.Description
	}
	if c.Priority != nil {
		cols["priority"] = *c.Priority
	}
	if c.Status != nil {
		cols["status"] = string(*c.Status)
	}
	if c.DueDate != nil {
		cols["due_date"] = *c.DueDate
	}
	if c.Tags != nil {
		cols["tags"] = c.Tags
	}
	return cols
}

// FocusSessionColumns returns the column values a focus session update writes.
func FocusSessionColumns(in models.UpdateFocusSessionInput) map[string]any {
	cols := map[string]any{}
	if in.Duration != nil {
		cols["duration"] = *in.Duration
	}
	if in.EndTime != nil {
		cols["end_time"] = *in.EndTime
	}
	if in.Completed != nil {
		cols["completed"] = *in.Completed
	}
	if in.Notes != nil {
		cols["notes"] = *in.Notes
	}
	return cols
}
