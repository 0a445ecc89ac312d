package models

import (
	"time"

	"github.com/google/uuid"
)

// FocusSession is a recorded, timed concentration interval on one task
type FocusSession struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	TaskID    uuid.UUID  `json:"task_id" db:"task_id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	Duration  int        `json:"duration" db:"duration"`
	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time" db:"end_time"`
	Completed bool       `json:"completed" db:"completed"`
	Notes     *string    `json:"notes" db:"notes"`
}

// UpdateFocusSessionInput carries the mutable fields of a focus session
type UpdateFocusSessionInput struct {
	Duration  *int       `json:"duration,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Completed *bool      `json:"completed,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
}

// Apply returns a copy of s with the update applied.
func (in UpdateFocusSessionInput) Apply(s FocusSession) FocusSession {
	if in.Duration != nil {
		s.Duration = *in.Duration
	}
	if in.EndTime != nil {
		end := *in.EndTime
		s.EndTime = &end
	}
	if in.Completed != nil {
		s.Completed = *in.Completed
	}
	if in.Notes != nil {
		s.Notes = in.Notes
	}
	return s
}
