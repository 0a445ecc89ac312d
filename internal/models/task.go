package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// DefaultPriority is applied when a task is created without a priority.
const DefaultPriority = 1

// Task represents a user-owned unit of work
type Task struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	UserID          uuid.UUID  `json:"user_id" db:"user_id"`
	Title           string     `json:"title" db:"title"`
	Description     *string    `json:"description" db:"description"`
	Priority        int        `json:"priority" db:"priority"`
	Status          TaskStatus `json:"status" db:"status"`
	DueDate         *string    `json:"due_date" db:"due_date"`
	Tags            []string   `json:"tags" db:"tags"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	AIPriorityScore *float64   `json:"ai_priority_score" db:"ai_priority_score"`
}

// IsCompleted reports whether the task has been marked done.
func (t *Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted
}

// CreateTaskInput is the caller-supplied part of a new task. Everything else
// (id, owner, status, timestamps, score) is decided by the store.
type CreateTaskInput struct {
	Title       string   `json:"title" validate:"required,max=500"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=5000"`
	Priority    int      `json:"priority,omitempty"`
	DueDate     *string  `json:"due_date,omitempty"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,max=50,dive,max=100"`
}

// TaskPatch carries the fields an update may change. A nil field is left
// untouched. id and user_id cannot be patched.
type TaskPatch struct {
	Title       *string     `json:"title,omitempty" validate:"omitempty,min=1,max=500"`
	Description *string     `json:"description,omitempty" validate:"omitempty,max=5000"`
	Priority    *int        `json:"priority,omitempty"`
	Status      *TaskStatus `json:"status,omitempty" validate:"omitempty,task_status"`
	DueDate     *string     `json:"due_date,omitempty"`
	Tags        []string    `json:"tags,omitempty" validate:"omitempty,max=50,dive,max=100"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.Status == nil && p.DueDate == nil && p.Tags == nil
}

// Apply returns a copy of t with the patch applied. Used by backends that
// build the updated row locally before persisting it.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.DueDate != nil {
		t.DueDate = p.DueDate
	}
	if p.Tags != nil {
		t.Tags = append([]string{}, p.Tags...)
	}
	return t
}
