package focus

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/onetask/internal/backend"
	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserSource reports the signed-in user.
type UserSource interface {
	CurrentUserID() (uuid.UUID, error)
}

// History records focus sessions in the backend for the current user.
type History struct {
	sessions backend.FocusSessions
	users    UserSource
	now      func() time.Time
	logger   *zap.Logger
}

// NewHistory creates a History.
func NewHistory(sessions backend.FocusSessions, users UserSource, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{
		sessions: sessions,
		users:    users,
		now:      time.Now,
		logger:   logger,
	}
}

// Start inserts a new, not yet completed session for taskID.
func (h *History) Start(ctx context.Context, taskID uuid.UUID, minutes int) (*models.FocusSession, error) {
	userID, err := h.users.CurrentUserID()
	if err != nil {
		return nil, err
	}

	s, err := h.sessions.InsertFocusSession(ctx, backend.NewFocusSession{
		TaskID:    taskID,
		UserID:    userID,
		Duration:  minutes,
		StartTime: h.now(),
		Completed: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start focus session: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("failed to start focus session: no data returned")
	}

	h.logger.Info("focus_session_recorded", zap.String("session_id", s.ID.String()), zap.String("task_id", taskID.String()))
	return s, nil
}

// Update changes fields of one of the current user's sessions.
func (h *History) Update(ctx context.Context, sessionID uuid.UUID, in models.UpdateFocusSessionInput) (*models.FocusSession, error) {
	userID, err := h.users.CurrentUserID()
	if err != nil {
		return nil, err
	}

	s, err := h.sessions.UpdateFocusSession(ctx, backend.Match{ID: sessionID, UserID: userID}, in)
	if err != nil {
		return nil, fmt.Errorf("failed to update focus session: %w", err)
	}
	return s, nil
}

// Complete marks a session completed, stamping its end time and notes.
func (h *History) Complete(ctx context.Context, sessionID uuid.UUID, notes *string) (*models.FocusSession, error) {
	done := true
	end := h.now()
	return h.Update(ctx, sessionID, models.UpdateFocusSessionInput{
		Completed: &done,
		EndTime:   &end,
		Notes:     notes,
	})
}

// End stamps the end time of a session that did not complete.
func (h *History) End(ctx context.Context, sessionID uuid.UUID) (*models.FocusSession, error) {
	end := h.now()
	return h.Update(ctx, sessionID, models.UpdateFocusSessionInput{EndTime: &end})
}

// ByTask lists the current user's sessions for taskID, most recent first.
func (h *History) ByTask(ctx context.Context, taskID uuid.UUID) ([]models.FocusSession, error) {
	userID, err := h.users.CurrentUserID()
	if err != nil {
		return nil, err
	}

	sessions, err := h.sessions.ListFocusSessions(ctx, userID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list focus sessions: %w", err)
	}
	if sessions == nil {
		sessions = []models.FocusSession{}
	}
	return sessions, nil
}
