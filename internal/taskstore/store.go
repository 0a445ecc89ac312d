// Package taskstore keeps the signed-in user's task collection in sync with
// the backend and serves repeated reads from a short-lived cache.
package taskstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benvon/onetask/internal/backend"
	"github.com/benvon/onetask/internal/models"
	"github.com/benvon/onetask/internal/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/benvon/onetask/internal/taskstore"

// UserSource reports who the store is acting for.
type UserSource interface {
	CurrentUserID() (uuid.UUID, error)
}

// UserSourceFunc adapts a function to UserSource.
type UserSourceFunc func() (uuid.UUID, error)

func (f UserSourceFunc) CurrentUserID() (uuid.UUID, error) { return f() }

// Option configures a Store.
type Option func(*Store)

// WithCache replaces the default in-memory cache.
func WithCache(c Cache) Option {
	return func(s *Store) { s.cache = c }
}

// WithTTL sets the cache validity window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock sets the time source used for timestamps and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) { s.tracer = tracer }
}

// WithConflictDetection makes update and delete require that the row still
// carries the updated_at of the last known snapshot.
func WithConflictDetection() Option {
	return func(s *Store) { s.detectConflicts = true }
}

// Store is the client-side source of truth for one user's tasks
type Store struct {
	tasks           backend.Tasks
	users           UserSource
	cache           Cache
	ttl             time.Duration
	now             func() time.Time
	logger          *zap.Logger
	tracer          trace.Tracer
	detectConflicts bool

	mu       sync.Mutex
	items    []models.Task
	inflight int
	lastErr  *Error
}

// New creates a Store over the given backend table.
func New(tasks backend.Tasks, users UserSource, opts ...Option) *Store {
	s := &Store{
		tasks:  tasks,
		users:  users,
		cache:  NewMemoryCache(),
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
		items:  []models.Task{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tasks returns a copy of the current collection.
func (s *Store) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTasks(s.items)
}

// Loading reports whether a backend call is outstanding.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Err returns the most recent failure, or nil.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == nil {
		return nil
	}
	return s.lastErr
}

// Find returns the task with id from the current collection.
func (s *Store) Find(id uuid.UUID) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.items {
		if t.ID == id {
			return t, true
		}
	}
	return models.Task{}, false
}

func (s *Store) begin() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

func (s *Store) startCall() func() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}
}

func (s *Store) fail(span trace.Span, code Code, err error) *Error {
	serr := newError(code, err)
	s.mu.Lock()
	s.lastErr = serr
	s.mu.Unlock()

	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))
	s.logger.Warn("task_store_operation_failed",
		zap.String("code", string(code)),
		zap.Error(err),
	)
	return serr
}

func (s *Store) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("failed_to_invalidate_task_cache",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

// Fetch loads the current user's tasks. A valid cache entry is served
// without a backend read unless force is set. Failures are recorded in Err
// and leave the collection unchanged; the returned slice is always the
// collection after the call.
func (s *Store) Fetch(ctx context.Context, force bool) []models.Task {
	ctx, span := s.tracer.Start(ctx, "taskstore.Fetch", trace.WithAttributes(attribute.Bool("force", force)))
	defer span.End()

	s.begin()

	userID, err := s.users.CurrentUserID()
	if err != nil {
		s.fail(span, CodeFetch, err)
		return s.Tasks()
	}

	if !force {
		entry, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("failed_to_read_task_cache", zap.String("user_id", userID.String()), zap.Error(err))
		}
		if entry.Valid(s.now(), s.ttl) {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			s.mu.Lock()
			s.items = cloneTasks(entry.Tasks)
			s.mu.Unlock()
			return cloneTasks(entry.Tasks)
		}
	}

	done := s.startCall()
	rows, err := s.tasks.ListTasks(ctx, userID)
	done()
	if err != nil {
		s.fail(span, CodeFetch, err)
		return s.Tasks()
	}
	if rows == nil {
		rows = []models.Task{}
	}

	s.mu.Lock()
	s.items = cloneTasks(rows)
	s.mu.Unlock()

	if err := s.cache.Put(ctx, userID, Entry{Tasks: rows, CapturedAt: s.now()}); err != nil {
		s.logger.Warn("failed_to_write_task_cache", zap.String("user_id", userID.String()), zap.Error(err))
	}
	span.SetAttributes(attribute.Int("task_count", len(rows)))
	s.logger.Debug("tasks_fetched", zap.String("user_id", userID.String()), zap.Int("count", len(rows)))

	return cloneTasks(rows)
}

// Create persists a new pending task and prepends it to the collection.
func (s *Store) Create(ctx context.Context, in models.CreateTaskInput) (*models.Task, error) {
	ctx, span := s.tracer.Start(ctx, "taskstore.Create")
	defer span.End()

	s.begin()

	userID, err := s.users.CurrentUserID()
	if err != nil {
		return nil, s.fail(span, CodeCreate, err)
	}
	if err := validation.PrepareCreateInput(&in); err != nil {
		return nil, s.fail(span, CodeCreate, err)
	}

	priority := in.Priority
	if priority == 0 {
		priority = models.DefaultPriority
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	now := s.now()

	done := s.startCall()
	task, err := s.tasks.InsertTask(ctx, backend.NewTask{
		UserID:          userID,
		Title:           in.Title,
		Description:     in.Description,
		Priority:        priority,
		Status:          models.TaskStatusPending,
		DueDate:         in.DueDate,
		Tags:            tags,
		CreatedAt:       now,
		UpdatedAt:       now,
		AIPriorityScore: nil,
	})
	done()
	if err != nil {
		return nil, s.fail(span, CodeCreate, err)
	}
	if task == nil {
		return nil, s.fail(span, CodeCreate, errNoData)
	}

	s.mu.Lock()
	s.items = append([]models.Task{*task}, s.items...)
	s.mu.Unlock()
	s.invalidate(ctx, userID)

	s.logger.Info("task_created", zap.String("task_id", task.ID.String()), zap.String("user_id", userID.String()))
	out := *task
	return &out, nil
}

// Update applies patch to the current user's task and replaces the
// collection entry with the row the backend returns.
func (s *Store) Update(ctx context.Context, taskID uuid.UUID, patch models.TaskPatch) (*models.Task, error) {
	ctx, span := s.tracer.Start(ctx, "taskstore.Update", trace.WithAttributes(attribute.String("task_id", taskID.String())))
	defer span.End()

	s.begin()

	userID, err := s.users.CurrentUserID()
	if err != nil {
		return nil, s.fail(span, CodeUpdate, err)
	}
	if err := validation.PreparePatch(&patch); err != nil {
		return nil, s.fail(span, CodeUpdate, err)
	}

	now := s.now()
	m := backend.Match{ID: taskID, UserID: userID}
	if prev, ok := s.Find(taskID); ok {
		// updated_at must never move backwards, even with a skewed clock.
		if prev.UpdatedAt.After(now) {
			now = prev.UpdatedAt
		}
		if s.detectConflicts {
			at := prev.UpdatedAt
			m.UpdatedAt = &at
		}
	}

	done := s.startCall()
	task, err := s.tasks.UpdateTask(ctx, m, backend.TaskChanges{TaskPatch: patch, UpdatedAt: now})
	done()
	if err != nil {
		if errors.Is(err, backend.ErrNoRows) && m.UpdatedAt != nil {
			return nil, s.fail(span, CodeConflict, fmt.Errorf("task %s changed since it was last loaded: %w", taskID, err))
		}
		return nil, s.fail(span, CodeUpdate, err)
	}
	if task == nil {
		return nil, s.fail(span, CodeUpdate, errNoData)
	}
	if task.ID != taskID || task.UserID != userID {
		return nil, s.fail(span, CodeUpdate, fmt.Errorf("backend returned task %s owned by %s", task.ID, task.UserID))
	}

	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == taskID {
			s.items[i] = *task
			break
		}
	}
	s.mu.Unlock()
	s.invalidate(ctx, userID)

	s.logger.Info("task_updated", zap.String("task_id", taskID.String()), zap.String("user_id", userID.String()))
	out := *task
	return &out, nil
}

// Delete removes the current user's task.
func (s *Store) Delete(ctx context.Context, taskID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "taskstore.Delete", trace.WithAttributes(attribute.String("task_id", taskID.String())))
	defer span.End()

	s.begin()

	userID, err := s.users.CurrentUserID()
	if err != nil {
		return s.fail(span, CodeDelete, err)
	}

	m := backend.Match{ID: taskID, UserID: userID}
	if prev, ok := s.Find(taskID); ok && s.detectConflicts {
		at := prev.UpdatedAt
		m.UpdatedAt = &at
	}

	done := s.startCall()
	n, err := s.tasks.DeleteTask(ctx, m)
	done()
	if err != nil {
		return s.fail(span, CodeDelete, err)
	}
	if n == 0 && m.UpdatedAt != nil {
		return s.fail(span, CodeConflict, fmt.Errorf("task %s changed since it was last loaded: %w", taskID, backend.ErrNoRows))
	}

	s.mu.Lock()
	kept := make([]models.Task, 0, len(s.items))
	for _, t := range s.items {
		if t.ID != taskID {
			kept = append(kept, t)
		}
	}
	s.items = kept
	s.mu.Unlock()
	s.invalidate(ctx, userID)

	s.logger.Info("task_deleted", zap.String("task_id", taskID.String()), zap.String("user_id", userID.String()))
	return nil
}
