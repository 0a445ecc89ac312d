package focus

import (
	"context"
	"sync"

	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is how a session ended
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeEndedEarly Outcome = "ended_early"
	OutcomeCancelled  Outcome = "cancelled"
	OutcomeAbandoned  Outcome = "abandoned"
)

// AppState is a host lifecycle transition
type AppState string

const (
	AppForeground AppState = "foreground"
	AppBackground AppState = "background"
)

// Recorder persists session records. History implements it.
type Recorder interface {
	Start(ctx context.Context, taskID uuid.UUID, minutes int) (*models.FocusSession, error)
	Complete(ctx context.Context, sessionID uuid.UUID, notes *string) (*models.FocusSession, error)
	End(ctx context.Context, sessionID uuid.UUID) (*models.FocusSession, error)
}

// Result describes a finished session
type Result struct {
	Task      models.Task
	Minutes   int
	Remaining int
	Outcome   Outcome
	Notes     *string
	Record    *models.FocusSession
}

// Config holds what StartSession needs.
type Config struct {
	Task       models.Task
	Minutes    int
	Suppressor *Suppressor
	// Recorder is optional.
	Recorder Recorder
	Logger   *zap.Logger
	// OnFinish is called once with the result, after delivery is restored.
	OnFinish func(Result)
}

// Session ties a Timer to a notification Guard and an optional record.
// Every exit path releases the guard exactly once.
type Session struct {
	task     models.Task
	timer    *Timer
	guard    *Guard
	recorder Recorder
	logger   *zap.Logger
	onFinish func(Result)
	ctx      context.Context

	mu     sync.Mutex
	exit   Outcome
	notes  *string
	record *models.FocusSession
	once   sync.Once
	result Result
	done   chan struct{}
}

// StartSession acquires the suppressor, records the start and returns a
// running session. It fails only if another session holds the suppressor.
func StartSession(ctx context.Context, cfg Config) (*Session, error) {
	guard, err := cfg.Suppressor.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		task:     cfg.Task,
		guard:    guard,
		recorder: cfg.Recorder,
		logger:   logger,
		onFinish: cfg.OnFinish,
		ctx:      context.WithoutCancel(ctx),
		exit:     OutcomeCancelled,
		done:     make(chan struct{}),
	}
	s.timer = NewTimer(cfg.Minutes, TimerCallbacks{
		OnComplete: func(int) { s.finish(OutcomeCompleted, nil) },
		OnCancel: func() {
			s.mu.Lock()
			outcome, notes := s.exit, s.notes
			s.mu.Unlock()
			s.finish(outcome, notes)
		},
	})

	if s.recorder != nil {
		record, err := s.recorder.Start(ctx, cfg.Task.ID, s.timer.Minutes())
		if err != nil {
			logger.Warn("failed_to_record_focus_session_start", zap.String("task_id", cfg.Task.ID.String()), zap.Error(err))
		} else {
			s.record = record
		}
	}

	logger.Info("focus_session_started",
		zap.String("task_id", cfg.Task.ID.String()),
		zap.Int("minutes", s.timer.Minutes()),
		zap.Bool("suppressing", guard.Suppressing()),
	)
	return s, nil
}

// Task returns the task the session is for.
func (s *Session) Task() models.Task { return s.task }

// Timer returns the underlying countdown.
func (s *Session) Timer() *Timer { return s.timer }

// Guard returns the notification guard.
func (s *Session) Guard() *Guard { return s.guard }

// Record returns the persisted session record, if any.
func (s *Session) Record() *models.FocusSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// Done is closed once the session has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the outcome. Only meaningful after Done is closed.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// TogglePause pauses or resumes the countdown.
func (s *Session) TogglePause() State {
	return s.timer.TogglePause()
}

// Cancel stops the session without completing it.
func (s *Session) Cancel() bool {
	return s.stopWith(OutcomeCancelled, nil)
}

// EndEarly stops the countdown and marks the session completed with notes.
func (s *Session) EndEarly(notes string) bool {
	var n *string
	if notes != "" {
		n = &notes
	}
	return s.stopWith(OutcomeEndedEarly, n)
}

// Close tears the session down. Safe to call on any path, including after
// the session already finished.
func (s *Session) Close() {
	s.stopWith(OutcomeAbandoned, nil)
	s.guard.Release(s.ctx)
}

// HandleAppState re-asserts suppression on host lifecycle transitions.
func (s *Session) HandleAppState(ctx context.Context, state AppState) {
	if err := s.guard.Reassert(ctx); err != nil {
		s.logger.Warn("failed_to_reassert_suppression", zap.String("app_state", string(state)), zap.Error(err))
	}
}

// Run drives the countdown until the session ends or ctx is done. A done
// ctx tears the session down.
func (s *Session) Run(ctx context.Context, clock Clock) Result {
	if !s.timer.Run(ctx, clock).Terminal() {
		s.Close()
	}
	<-s.done
	return s.Result()
}

func (s *Session) stopWith(outcome Outcome, notes *string) bool {
	s.mu.Lock()
	if s.timer.State().Terminal() {
		s.mu.Unlock()
		return false
	}
	s.exit = outcome
	s.notes = notes
	s.mu.Unlock()
	return s.timer.Stop()
}

func (s *Session) finish(outcome Outcome, notes *string) {
	s.once.Do(func() {
		s.guard.Release(s.ctx)

		s.mu.Lock()
		record := s.record
		s.mu.Unlock()

		if record != nil && s.recorder != nil {
			var (
				updated *models.FocusSession
				err     error
			)
			switch outcome {
			case OutcomeCompleted, OutcomeEndedEarly:
				updated, err = s.recorder.Complete(s.ctx, record.ID, notes)
			default:
				updated, err = s.recorder.End(s.ctx, record.ID)
			}
			if err != nil {
				s.logger.Warn("failed_to_record_focus_session_end", zap.String("session_id", record.ID.String()), zap.Error(err))
			} else if updated != nil {
				record = updated
			}
		}

		result := Result{
			Task:      s.task,
			Minutes:   s.timer.Minutes(),
			Remaining: s.timer.Remaining(),
			Outcome:   outcome,
			Notes:     notes,
			Record:    record,
		}

		s.mu.Lock()
		s.record = record
		s.result = result
		s.mu.Unlock()

		s.logger.Info("focus_session_finished",
			zap.String("task_id", s.task.ID.String()),
			zap.String("outcome", string(outcome)),
			zap.Int("remaining_seconds", result.Remaining),
		)
		if s.onFinish != nil {
			s.onFinish(result)
		}
		close(s.done)
	})
}
