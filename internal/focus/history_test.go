package focus

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/benvon/onetask/internal/backend"
	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
)

type fakeSessions struct {
	rows []models.FocusSession
}

func (f *fakeSessions) InsertFocusSession(_ context.Context, s backend.NewFocusSession) (*models.FocusSession, error) {
	row := models.FocusSession{
		ID:        uuid.New(),
		TaskID:    s.TaskID,
		UserID:    s.UserID,
		Duration:  s.Duration,
		StartTime: s.StartTime,
		Completed: s.Completed,
		Notes:     s.Notes,
	}
	f.rows = append(f.rows, row)
	return &row, nil
}

func (f *fakeSessions) UpdateFocusSession(_ context.Context, m backend.Match, in models.UpdateFocusSessionInput) (*models.FocusSession, error) {
	for i, row := range f.rows {
		if row.ID == m.ID && row.UserID == m.UserID {
			f.rows[i] = in.Apply(row)
			return &f.rows[i], nil
		}
	}
	return nil, backend.ErrNoRows
}

func (f *fakeSessions) ListFocusSessions(_ context.Context, userID, taskID uuid.UUID) ([]models.FocusSession, error) {
	var out []models.FocusSession
	for _, row := range f.rows {
		if row.UserID == userID && row.TaskID == taskID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

type staticUser uuid.UUID

func (u staticUser) CurrentUserID() (uuid.UUID, error) { return uuid.UUID(u), nil }

func TestHistory_Lifecycle(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	task := uuid.New()
	store := &fakeSessions{}
	h := NewHistory(store, staticUser(user), nil)
	now := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	ctx := context.Background()

	started, err := h.Start(ctx, task, 25)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if started.Completed || started.UserID != user || started.Duration != 25 || !started.StartTime.Equal(now) {
		t.Errorf("Expected open session for %s, got %+v", user, started)
	}

	now = now.Add(25 * time.Minute)
	notes := "wrote intro"
	done, err := h.Complete(ctx, started.ID, &notes)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !done.Completed || done.EndTime == nil || !done.EndTime.Equal(now) || *done.Notes != notes {
		t.Errorf("Expected completed session with notes and end time, got %+v", done)
	}

	now = now.Add(time.Hour)
	second, _ := h.Start(ctx, task, 10)
	ended, err := h.End(ctx, second.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ended.Completed || ended.EndTime == nil {
		t.Errorf("Expected ended, not completed session, got %+v", ended)
	}

	list, err := h.ByTask(ctx, task)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Errorf("Expected most recent session first, got %+v", list)
	}
}

func TestHistory_ScopedToCurrentUser(t *testing.T) {
	t.Parallel()

	store := &fakeSessions{}
	owner := NewHistory(store, staticUser(uuid.New()), nil)
	other := NewHistory(store, staticUser(uuid.New()), nil)
	ctx := context.Background()
	task := uuid.New()

	s, err := owner.Start(ctx, task, 25)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := other.Complete(ctx, s.ID, nil); !errors.Is(err, backend.ErrNoRows) {
		t.Errorf("Expected ErrNoRows for another user's session, got %v", err)
	}
	list, err := other.ByTask(ctx, task)
	if err != nil || len(list) != 0 {
		t.Errorf("Expected no sessions for another user, got %v, %v", list, err)
	}
}
