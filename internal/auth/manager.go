// Package auth holds the signed-in session and keeps its access token fresh.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benvon/onetask/internal/backend"
	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// EventType names a session change.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event is delivered to subscribers after the session changes. Session is nil
// for EventSignedOut.
type Event struct {
	Type    EventType
	Session *models.Session
}

// refreshSkew refreshes tokens slightly before they expire.
const refreshSkew = 30 * time.Second

// Manager owns the current session.
type Manager struct {
	backend backend.Auth
	store   TokenStore
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.RWMutex
	session *models.Session

	refreshMu sync.Mutex

	subMu     sync.Mutex
	listeners map[int]func(Event)
	nextID    int
}

// Option configures a Manager.
type Option func(*Manager)

// WithTokenStore persists sessions across runs.
func WithTokenStore(store TokenStore) Option {
	return func(m *Manager) { m.store = store }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a signed-out manager.
func NewManager(b backend.Auth, opts ...Option) *Manager {
	m := &Manager{
		backend:   b,
		logger:    zap.NewNop(),
		now:       time.Now,
		listeners: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore loads a stored session, if any. Subscribers are not notified.
func (m *Manager) Restore() error {
	if m.store == nil {
		return nil
	}
	tokens, err := m.store.Load()
	if err != nil {
		return err
	}
	if tokens == nil {
		return nil
	}

	s, err := sessionFromTokens(*tokens)
	if err != nil {
		m.logger.Warn("stored_session_discarded", zap.Error(err))
		return m.store.Clear()
	}

	m.mu.Lock()
	m.session = s
	m.mu.Unlock()

	m.logger.Debug("session_restored", zap.String("user_id", s.User.ID.String()))
	return nil
}

// SignUp creates an account. A nil session with a nil error means the
// account awaits email confirmation and nobody is signed in yet.
func (m *Manager) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	s, err := m.backend.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if s == nil {
		m.logger.Info("signup_pending_confirmation")
		return nil, nil
	}
	m.setSession(s, EventSignedIn)
	return cloneSession(s), nil
}

// SignIn authenticates with email and password.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	s, err := m.backend.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	m.setSession(s, EventSignedIn)
	m.logger.Info("user_signed_in", zap.String("user_id", s.User.ID.String()))
	return cloneSession(s), nil
}

// SignOut ends the session. The local session is always cleared; a failure
// to revoke it remotely is returned after that. Signing out while signed
// out is a no-op.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s == nil {
		return nil
	}

	if m.store != nil {
		if err := m.store.Clear(); err != nil {
			m.logger.Warn("session_clear_failed", zap.Error(err))
		}
	}
	m.emit(Event{Type: EventSignedOut})
	m.logger.Info("user_signed_out", zap.String("user_id", s.User.ID.String()))

	if err := m.backend.SignOut(ctx, s.AccessToken); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// Session returns a copy of the current session, or nil.
func (m *Manager) Session() *models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSession(m.session)
}

// User returns the signed-in user, or nil.
func (m *Manager) User() *models.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	u := m.session.User
	return &u
}

// CurrentUserID returns the signed-in user's id or backend.ErrNotAuthenticated.
func (m *Manager) CurrentUserID() (uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return uuid.Nil, backend.ErrNotAuthenticated
	}
	return m.session.User.ID, nil
}

// Subscribe registers fn for session changes and returns a function that
// removes it.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.listeners, id)
			m.subMu.Unlock()
		})
	}
}

// AccessToken returns a valid access token, refreshing it first when it is
// about to expire.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	s, err := m.validSession(ctx)
	if err != nil {
		return "", err
	}
	return s.AccessToken, nil
}

// TokenSource adapts the manager for oauth2 HTTP clients. Each call reads the
// current session, so signing out takes effect immediately.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return tokenSource{m: m}
}

type tokenSource struct {
	m *Manager
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	s, err := ts.m.validSession(context.Background())
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.ExpiresAt,
	}, nil
}

func (m *Manager) validSession(ctx context.Context) (*models.Session, error) {
	s := m.Session()
	if s == nil {
		return nil, backend.ErrNotAuthenticated
	}
	if !s.Expired(m.now().Add(refreshSkew)) {
		return s, nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	current := m.Session()
	if current == nil {
		return nil, backend.ErrNotAuthenticated
	}
	if current.AccessToken != s.AccessToken {
		return current, nil
	}

	next, err := m.backend.Refresh(ctx, current.RefreshToken)
	if err != nil {
		m.logger.Warn("token_refresh_failed", zap.Error(err))
		return nil, fmt.Errorf("%w: token refresh failed: %v", backend.ErrNotAuthenticated, err)
	}
	m.setSession(next, EventTokenRefreshed)
	m.logger.Debug("token_refreshed", zap.String("user_id", next.User.ID.String()))
	return cloneSession(next), nil
}

func (m *Manager) setSession(s *models.Session, event EventType) {
	m.mu.Lock()
	m.session = cloneSession(s)
	m.mu.Unlock()

	if m.store != nil {
		err := m.store.Save(StoredTokens{
			AccessToken:  s.AccessToken,
			RefreshToken: s.RefreshToken,
			TokenType:    s.TokenType,
		})
		if err != nil {
			m.logger.Warn("session_persist_failed", zap.Error(err))
		}
	}
	m.emit(Event{Type: event, Session: cloneSession(s)})
}

func (m *Manager) emit(e Event) {
	m.subMu.Lock()
	fns := make([]func(Event), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
