// Package dashboard is the controller behind the task list: it owns the
// task store, filters what is shown and starts focus sessions.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benvon/onetask/internal/focus"
	"github.com/benvon/onetask/internal/models"
	"github.com/benvon/onetask/internal/queue"
	"github.com/benvon/onetask/internal/taskstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Filter selects which tasks the view shows.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterPending   Filter = "pending"
	FilterCompleted Filter = "completed"
)

// ParseFilter accepts all, pending or completed. Empty means all.
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterPending, FilterCompleted:
		return Filter(s), nil
	}
	return "", fmt.Errorf("invalid filter %q (want all, pending or completed)", s)
}

var (
	// ErrTaskNotFound is returned for an id that is not in the collection.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskCompleted is returned when focusing on a finished task.
	ErrTaskCompleted = errors.New("task is already completed")
)

const publishTimeout = 5 * time.Second

// Controller coordinates the task store with focus sessions.
type Controller struct {
	store      *taskstore.Store
	suppressor *focus.Suppressor
	recorder   focus.Recorder
	publisher  queue.Publisher
	users      taskstore.UserSource
	minutes    int
	logger     *zap.Logger
	onFinish   func(focus.Result)

	mu     sync.Mutex
	active *focus.Session
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder persists focus sessions.
func WithRecorder(r focus.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithPublisher publishes session events for the user reported by users.
func WithPublisher(p queue.Publisher, users taskstore.UserSource) Option {
	return func(c *Controller) {
		c.publisher = p
		c.users = users
	}
}

// WithFocusMinutes sets the session length.
func WithFocusMinutes(minutes int) Option {
	return func(c *Controller) { c.minutes = minutes }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithFinishHook is called after every session ends.
func WithFinishHook(fn func(focus.Result)) Option {
	return func(c *Controller) { c.onFinish = fn }
}

// New creates a controller over store. Sessions acquire suppressor.
func New(store *taskstore.Store, suppressor *focus.Suppressor, opts ...Option) *Controller {
	c := &Controller{
		store:      store,
		suppressor: suppressor,
		publisher:  queue.NopPublisher{},
		minutes:    focus.DefaultMinutes,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying task store.
func (c *Controller) Store() *taskstore.Store {
	return c.store
}

// Refresh loads tasks, from cache unless force is set. Failures are
// available from Store().Err().
func (c *Controller) Refresh(ctx context.Context, force bool) []models.Task {
	return c.store.Fetch(ctx, force)
}

// View returns the tasks matching filter, newest first.
func (c *Controller) View(filter Filter) []models.Task {
	tasks := c.store.Tasks()
	if filter == FilterAll || filter == "" {
		return tasks
	}
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if string(t.Status) == string(filter) {
			out = append(out, t)
		}
	}
	return out
}

// Counts returns how many tasks are pending and completed.
func (c *Controller) Counts() (pending, completed int) {
	for _, t := range c.store.Tasks() {
		if t.IsCompleted() {
			completed++
		} else {
			pending++
		}
	}
	return pending, completed
}

// AddTask creates a task.
func (c *Controller) AddTask(ctx context.Context, in models.CreateTaskInput) (*models.Task, error) {
	return c.store.Create(ctx, in)
}

// UpdateTask applies patch to a task.
func (c *Controller) UpdateTask(ctx context.Context, id uuid.UUID, patch models.TaskPatch) (*models.Task, error) {
	return c.store.Update(ctx, id, patch)
}

// ToggleStatus flips a task between pending and completed.
func (c *Controller) ToggleStatus(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	t, ok := c.store.Find(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	next := models.TaskStatusCompleted
	if t.IsCompleted() {
		next = models.TaskStatusPending
	}
	return c.store.Update(ctx, id, models.TaskPatch{Status: &next})
}

// Delete removes a task.
func (c *Controller) Delete(ctx context.Context, id uuid.UUID) error {
	return c.store.Delete(ctx, id)
}

// ActiveSession returns the running focus session, or nil.
func (c *Controller) ActiveSession() *focus.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// StartFocus opens a focus session for a pending task.
func (c *Controller) StartFocus(ctx context.Context, id uuid.UUID) (*focus.Session, error) {
	t, ok := c.store.Find(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	if t.IsCompleted() {
		return nil, ErrTaskCompleted
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, focus.ErrSessionActive
	}

	session, err := focus.StartSession(ctx, focus.Config{
		Task:       t,
		Minutes:    c.minutes,
		Suppressor: c.suppressor,
		Recorder:   c.recorder,
		Logger:     c.logger,
		OnFinish:   func(r focus.Result) { c.finished(r) },
	})
	if err != nil {
		return nil, err
	}
	c.active = session

	c.publish(queue.EventFocusStarted, t.ID, map[string]any{"minutes": session.Timer().Minutes()})
	return session, nil
}

func (c *Controller) finished(r focus.Result) {
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()

	eventType := queue.EventFocusCancelled
	if r.Outcome == focus.OutcomeCompleted || r.Outcome == focus.OutcomeEndedEarly {
		eventType = queue.EventFocusCompleted
	}
	payload := map[string]any{
		"outcome":           string(r.Outcome),
		"minutes":           r.Minutes,
		"remaining_seconds": r.Remaining,
	}
	if r.Notes != nil {
		payload["notes"] = *r.Notes
	}
	c.publish(eventType, r.Task.ID, payload)

	c.logger.Info("focus_session_finished",
		zap.String("task_id", r.Task.ID.String()),
		zap.String("outcome", string(r.Outcome)),
	)
	if c.onFinish != nil {
		c.onFinish(r)
	}
}

func (c *Controller) publish(eventType queue.EventType, taskID uuid.UUID, payload map[string]any) {
	if c.users == nil {
		return
	}
	userID, err := c.users.CurrentUserID()
	if err != nil {
		c.logger.Debug("event_not_published", zap.String("event_type", string(eventType)), zap.Error(err))
		return
	}

	event := queue.NewEvent(eventType, userID, &taskID)
	for k, v := range payload {
		event.With(k, v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("failed_to_publish_event",
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
	}
}
