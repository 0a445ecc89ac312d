package taskstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benvon/onetask/internal/backend"
	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
)

// fakeTasks is an in-memory backend.Tasks with failure injection
type fakeTasks struct {
	mu        sync.Mutex
	rows      []models.Task
	listCalls int
	lastMatch backend.Match

	listErr   error
	insertErr error
	updateErr error
	deleteErr error
	noData    bool

	// block, when set, is waited on inside ListTasks
	block chan struct{}
}

func (f *fakeTasks) ListTasks(_ context.Context, userID uuid.UUID) ([]models.Task, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Task
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].UserID == userID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

func (f *fakeTasks) InsertTask(_ context.Context, nt backend.NewTask) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	if f.noData {
		return nil, nil
	}
	t := models.Task{
		ID:              uuid.New(),
		UserID:          nt.UserID,
		Title:           nt.Title,
		Description:     nt.Description,
		Priority:        nt.Priority,
		Status:          nt.Status,
		DueDate:         nt.DueDate,
		Tags:            nt.Tags,
		CreatedAt:       nt.CreatedAt,
		UpdatedAt:       nt.UpdatedAt,
		AIPriorityScore: nt.AIPriorityScore,
	}
	f.rows = append(f.rows, t)
	return &t, nil
}

func (f *fakeTasks) UpdateTask(_ context.Context, m backend.Match, ch backend.TaskChanges) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMatch = m
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for i, t := range f.rows {
		if t.ID != m.ID || t.UserID != m.UserID {
			continue
		}
		if m.UpdatedAt != nil && !t.UpdatedAt.Equal(*m.UpdatedAt) {
			continue
		}
		updated := ch.TaskPatch.Apply(t)
		updated.UpdatedAt = ch.UpdatedAt
		f.rows[i] = updated
		return &updated, nil
	}
	return nil, backend.ErrNoRows
}

func (f *fakeTasks) DeleteTask(_ context.Context, m backend.Match) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMatch = m
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	for i, t := range f.rows {
		if t.ID != m.ID || t.UserID != m.UserID {
			continue
		}
		if m.UpdatedAt != nil && !t.UpdatedAt.Equal(*m.UpdatedAt) {
			continue
		}
		f.rows = append(f.rows[:i], f.rows[i+1:]...)
		return 1, nil
	}
	return 0, nil
}

func (f *fakeTasks) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeTasks, *fakeClock, uuid.UUID) {
	t.Helper()
	fb := &fakeTasks{}
	clock := newFakeClock()
	user := uuid.New()
	users := UserSourceFunc(func() (uuid.UUID, error) { return user, nil })
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(fb, users, opts...), fb, clock, user
}

func TestStore_CreateDefaults(t *testing.T) {
	t.Parallel()

	s, _, clock, user := newTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, models.CreateTaskInput{Title: "  Write tests  "})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if task.Status != models.TaskStatusPending {
		t.Errorf("Expected status pending, got %s", task.Status)
	}
	if task.AIPriorityScore != nil {
		t.Errorf("Expected nil ai_priority_score, got %v", *task.AIPriorityScore)
	}
	if task.Tags == nil || len(task.Tags) != 0 {
		t.Errorf("Expected empty non-nil tags, got %#v", task.Tags)
	}
	if task.Priority != models.DefaultPriority {
		t.Errorf("Expected default priority %d, got %d", models.DefaultPriority, task.Priority)
	}
	if !task.CreatedAt.Equal(task.UpdatedAt) || !task.CreatedAt.Equal(clock.Now()) {
		t.Errorf("Expected created_at == updated_at == now, got %s / %s", task.CreatedAt, task.UpdatedAt)
	}
	if task.UserID != user {
		t.Errorf("Expected owner %s, got %s", user, task.UserID)
	}
	if task.Title != "Write tests" {
		t.Errorf("Expected trimmed title, got %q", task.Title)
	}
	if got := s.Tasks(); len(got) != 1 || got[0].ID != task.ID {
		t.Errorf("Expected created task in collection, got %v", got)
	}
}

func TestStore_CreatePrependsNewest(t *testing.T) {
	t.Parallel()

	s, _, clock, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, models.CreateTaskInput{Title: "first", Priority: 4, Tags: []string{"b", "a"}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	clock.Advance(time.Second)
	second, err := s.Create(ctx, models.CreateTaskInput{Title: "second"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got := s.Tasks()
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("Expected [second first], got %v", got)
	}
	if got[1].Priority != 4 {
		t.Errorf("Expected explicit priority to be kept, got %d", got[1].Priority)
	}
	if got[1].Tags[0] != "b" || got[1].Tags[1] != "a" {
		t.Errorf("Expected tag order preserved, got %v", got[1].Tags)
	}
}

func TestStore_PriorityNotRangeChecked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		priority int
		want     int
	}{
		{name: "negative", priority: -1, want: -1},
		{name: "zero defaults", priority: 0, want: models.DefaultPriority},
		{name: "above form range", priority: 7, want: 7},
		{name: "large", priority: 99, want: 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, _, _, _ := newTestStore(t)
			task, err := s.Create(context.Background(), models.CreateTaskInput{Title: "x", Priority: tt.priority})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if task.Priority != tt.want {
				t.Errorf("Expected priority %d, got %d", tt.want, task.Priority)
			}
			if got, _ := s.Find(task.ID); got.Priority != tt.want {
				t.Errorf("Expected stored priority %d, got %d", tt.want, got.Priority)
			}
		})
	}

	s, _, _, _ := newTestStore(t)
	ctx := context.Background()
	created, err := s.Create(ctx, models.CreateTaskInput{Title: "x"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	priority := -3
	updated, err := s.Update(ctx, created.ID, models.TaskPatch{Priority: &priority})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if updated.Priority != -3 {
		t.Errorf("Expected patched priority -3, got %d", updated.Priority)
	}
}

func TestStore_CreateFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input models.CreateTaskInput
		setup func(*fakeTasks)
	}{
		{
			name:  "blank title",
			input: models.CreateTaskInput{Title: "   "},
		},
		{
			name:  "backend error",
			input: models.CreateTaskInput{Title: "x"},
			setup: func(f *fakeTasks) { f.insertErr = errors.New("permission denied") },
		},
		{
			name:  "no data returned",
			input: models.CreateTaskInput{Title: "x"},
			setup: func(f *fakeTasks) { f.noData = true },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, fb, _, _ := newTestStore(t)
			if tt.setup != nil {
				tt.setup(fb)
			}

			task, err := s.Create(context.Background(), tt.input)
			if task != nil {
				t.Errorf("Expected nil task, got %v", task)
			}
			if !IsCode(err, CodeCreate) {
				t.Errorf("Expected CREATE_ERROR, got %v", err)
			}
			if !IsCode(s.Err(), CodeCreate) {
				t.Errorf("Expected recorded CREATE_ERROR, got %v", s.Err())
			}
			if len(s.Tasks()) != 0 {
				t.Errorf("Expected collection unchanged, got %v", s.Tasks())
			}
		})
	}
}

func TestStore_FetchUsesCacheWithinTTL(t *testing.T) {
	t.Parallel()

	s, fb, clock, user := newTestStore(t)
	ctx := context.Background()
	fb.rows = []models.Task{
		{ID: uuid.New(), UserID: user, Title: "a", Status: models.TaskStatusPending, Tags: []string{}},
		{ID: uuid.New(), UserID: user, Title: "b", Status: models.TaskStatusPending, Tags: []string{}},
	}

	first := s.Fetch(ctx, false)
	clock.Advance(4 * time.Minute)
	second := s.Fetch(ctx, false)

	if fb.calls() != 1 {
		t.Fatalf("Expected 1 backend read, got %d", fb.calls())
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("Expected 2 tasks from both reads, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Title != second[i].Title {
			t.Errorf("Expected identical collections, got %v and %v", first, second)
		}
	}
	if first[0].Title != "b" {
		t.Errorf("Expected newest first, got %q", first[0].Title)
	}
}

func TestStore_FetchRefreshes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		action func(*testing.T, *Store, *fakeClock)
		force  bool
	}{
		{
			name: "after ttl",
			action: func(_ *testing.T, _ *Store, c *fakeClock) {
				c.Advance(DefaultTTL)
			},
		},
		{
			name:  "forced",
			force: true,
		},
		{
			name: "after create",
			action: func(t *testing.T, s *Store, _ *fakeClock) {
				if _, err := s.Create(context.Background(), models.CreateTaskInput{Title: "new"}); err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
			},
		},
		{
			name: "after update",
			action: func(t *testing.T, s *Store, _ *fakeClock) {
				title := "renamed"
				if _, err := s.Update(context.Background(), s.Tasks()[0].ID, models.TaskPatch{Title: &title}); err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
			},
		},
		{
			name: "after delete",
			action: func(t *testing.T, s *Store, _ *fakeClock) {
				if err := s.Delete(context.Background(), s.Tasks()[0].ID); err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, fb, clock, user := newTestStore(t)
			ctx := context.Background()
			fb.rows = []models.Task{{ID: uuid.New(), UserID: user, Title: "seed", Status: models.TaskStatusPending}}

			s.Fetch(ctx, false)
			if tt.action != nil {
				tt.action(t, s, clock)
			}
			s.Fetch(ctx, tt.force)

			if fb.calls() != 2 {
				t.Errorf("Expected a second backend read, got %d reads", fb.calls())
			}
		})
	}
}

func TestStore_FetchFailureKeepsCollection(t *testing.T) {
	t.Parallel()

	s, fb, _, user := newTestStore(t)
	ctx := context.Background()
	fb.rows = []models.Task{{ID: uuid.New(), UserID: user, Title: "kept"}}

	s.Fetch(ctx, false)
	fb.listErr = errors.New("network unreachable")

	got := s.Fetch(ctx, true)
	if len(got) != 1 || got[0].Title != "kept" {
		t.Errorf("Expected stale collection to be kept, got %v", got)
	}
	if !IsCode(s.Err(), CodeFetch) {
		t.Errorf("Expected FETCH_ERROR, got %v", s.Err())
	}
	var serr *Error
	if !errors.As(s.Err(), &serr) || serr.Message != "network unreachable" {
		t.Errorf("Expected backend message to be recorded, got %v", s.Err())
	}
}

func TestStore_FetchNotAuthenticated(t *testing.T) {
	t.Parallel()

	fb := &fakeTasks{}
	s := New(fb, UserSourceFunc(func() (uuid.UUID, error) { return uuid.Nil, backend.ErrNotAuthenticated }))

	got := s.Fetch(context.Background(), false)
	if len(got) != 0 {
		t.Errorf("Expected empty collection, got %v", got)
	}
	if !errors.Is(s.Err(), backend.ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", s.Err())
	}
	if fb.calls() != 0 {
		t.Errorf("Expected no backend read, got %d", fb.calls())
	}
}

func TestStore_UpdateReplacesWithBackendRow(t *testing.T) {
	t.Parallel()

	s, fb, clock, user := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, models.CreateTaskInput{Title: "draft"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	clock.Advance(time.Minute)

	status := models.TaskStatusCompleted
	updated, err := s.Update(ctx, created.ID, models.TaskPatch{Status: &status})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if updated.ID != created.ID || updated.UserID != user {
		t.Errorf("Expected identity unchanged, got id=%s user=%s", updated.ID, updated.UserID)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Errorf("Expected updated_at to advance, got %s (was %s)", updated.UpdatedAt, created.UpdatedAt)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("Expected created_at unchanged, got %s", updated.CreatedAt)
	}
	if fb.lastMatch.ID != created.ID || fb.lastMatch.UserID != user {
		t.Errorf("Expected mutation scoped to id and owner, got %+v", fb.lastMatch)
	}
	if fb.lastMatch.UpdatedAt != nil {
		t.Errorf("Expected no version check without conflict detection")
	}
	got, _ := s.Find(created.ID)
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("Expected collection entry replaced, got %s", got.Status)
	}
}

func TestStore_UpdateNeverMovesUpdatedAtBackwards(t *testing.T) {
	t.Parallel()

	s, _, clock, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, models.CreateTaskInput{Title: "draft"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	clock.Advance(-time.Hour)

	title := "final"
	updated, err := s.Update(ctx, created.ID, models.TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if updated.UpdatedAt.Before(created.UpdatedAt) {
		t.Errorf("Expected updated_at >= %s, got %s", created.UpdatedAt, updated.UpdatedAt)
	}
}

func TestStore_UpdateFailure(t *testing.T) {
	t.Parallel()

	s, fb, _, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, models.CreateTaskInput{Title: "draft"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	fb.updateErr = errors.New("row level security")

	title := "nope"
	if _, err := s.Update(ctx, created.ID, models.TaskPatch{Title: &title}); !IsCode(err, CodeUpdate) {
		t.Fatalf("Expected UPDATE_ERROR, got %v", err)
	}
	got, _ := s.Find(created.ID)
	if got.Title != "draft" {
		t.Errorf("Expected collection unchanged, got %q", got.Title)
	}
}

func TestStore_DeleteRemovesExactlyOne(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Create(ctx, models.CreateTaskInput{Title: "a"})
	b, _ := s.Create(ctx, models.CreateTaskInput{Title: "b"})
	c, _ := s.Create(ctx, models.CreateTaskInput{Title: "c"})

	if err := s.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got := s.Tasks()
	if len(got) != 2 || got[0].ID != c.ID || got[1].ID != a.ID {
		t.Errorf("Expected [c a], got %v", got)
	}
}

func TestStore_DeleteFailureThenRetryClearsError(t *testing.T) {
	t.Parallel()

	s, fb, _, _ := newTestStore(t)
	ctx := context.Background()

	task, _ := s.Create(ctx, models.CreateTaskInput{Title: "a"})
	fb.deleteErr = errors.New("timeout")

	if err := s.Delete(ctx, task.ID); !IsCode(err, CodeDelete) {
		t.Fatalf("Expected DELETE_ERROR, got %v", err)
	}
	if len(s.Tasks()) != 1 {
		t.Errorf("Expected collection unchanged after failure")
	}
	if !IsCode(s.Err(), CodeDelete) {
		t.Errorf("Expected error to persist until next attempt, got %v", s.Err())
	}

	fb.deleteErr = nil
	if err := s.Delete(ctx, task.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s.Err() != nil {
		t.Errorf("Expected error cleared by next attempt, got %v", s.Err())
	}
	if len(s.Tasks()) != 0 {
		t.Errorf("Expected task removed, got %v", s.Tasks())
	}
}

func TestStore_ConflictDetection(t *testing.T) {
	t.Parallel()

	s, fb, clock, _ := newTestStore(t, WithConflictDetection())
	ctx := context.Background()

	task, err := s.Create(ctx, models.CreateTaskInput{Title: "shared"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Another device moves the row on.
	fb.mu.Lock()
	fb.rows[0].UpdatedAt = clock.Now().Add(time.Minute)
	fb.mu.Unlock()

	title := "mine"
	if _, err := s.Update(ctx, task.ID, models.TaskPatch{Title: &title}); !IsCode(err, CodeConflict) {
		t.Errorf("Expected CONFLICT on update, got %v", err)
	}
	if err := s.Delete(ctx, task.ID); !IsCode(err, CodeConflict) {
		t.Errorf("Expected CONFLICT on delete, got %v", err)
	}
	if len(s.Tasks()) != 1 {
		t.Errorf("Expected collection unchanged after conflict")
	}

	s.Fetch(ctx, true)
	if _, err := s.Update(ctx, task.ID, models.TaskPatch{Title: &title}); err != nil {
		t.Errorf("Expected update after refresh to succeed, got %v", err)
	}
}

func TestStore_LoadingWhileBackendOutstanding(t *testing.T) {
	t.Parallel()

	s, fb, _, _ := newTestStore(t)
	fb.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		s.Fetch(context.Background(), true)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for !s.Loading() {
		select {
		case <-deadline:
			t.Fatal("Expected Loading to become true")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	close(fb.block)
	<-done
	if s.Loading() {
		t.Error("Expected Loading to be false after fetch returned")
	}
}
