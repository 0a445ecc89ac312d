package focus

import (
	"context"
	"errors"
	"sync"

	"github.com/benvon/onetask/internal/notify"
	"go.uber.org/zap"
)

// ErrSessionActive is returned when a second session tries to take the
// notification capability while one is held.
var ErrSessionActive = errors.New("a focus session is already active")

// Suppressor hands out exclusive control of the notification capability.
type Suppressor struct {
	notifier notify.Notifier
	logger   *zap.Logger

	mu   sync.Mutex
	held bool
}

// NewSuppressor creates a Suppressor over n.
func NewSuppressor(n notify.Notifier, logger *zap.Logger) *Suppressor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suppressor{notifier: n, logger: logger}
}

// Held reports whether a guard is currently outstanding.
func (s *Suppressor) Held() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

// Acquire takes the capability for one session. Permission is requested if
// it has not been granted; without it the guard is inert but still has to
// be released.
func (s *Suppressor) Acquire(ctx context.Context) (*Guard, error) {
	s.mu.Lock()
	if s.held {
		s.mu.Unlock()
		return nil, ErrSessionActive
	}
	s.held = true
	s.mu.Unlock()

	g := &Guard{owner: s}

	status, err := s.notifier.PermissionStatus(ctx)
	if err != nil {
		s.logger.Warn("failed_to_read_notification_permission", zap.Error(err))
	}
	if status != notify.PermissionGranted {
		status, err = s.notifier.RequestPermission(ctx)
		if err != nil {
			s.logger.Warn("failed_to_request_notification_permission", zap.Error(err))
		}
	}
	if status != notify.PermissionGranted {
		s.logger.Info("notification_suppression_skipped", zap.String("permission", string(status)))
		return g, nil
	}

	if err := s.notifier.SetDeliveryBehavior(ctx, notify.Suppressed); err != nil {
		s.logger.Warn("failed_to_suppress_notifications", zap.Error(err))
		return g, nil
	}
	g.suppressing = true
	return g, nil
}

// Guard is one session's hold on the notification capability.
type Guard struct {
	owner       *Suppressor
	suppressing bool

	mu       sync.Mutex
	released bool
	once     sync.Once
}

// Suppressing reports whether notifications are being held back.
func (g *Guard) Suppressing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressing && !g.released
}

// Reassert re-applies suppression. Call on every foreground/background
// transition of the host; some hosts restore default delivery on their own.
func (g *Guard) Reassert(ctx context.Context) error {
	if !g.Suppressing() {
		return nil
	}
	return g.owner.notifier.SetDeliveryBehavior(ctx, notify.Suppressed)
}

// Release restores delivery and frees the capability. Only the first call
// has an effect.
func (g *Guard) Release(ctx context.Context) {
	g.once.Do(func() {
		g.mu.Lock()
		g.released = true
		restore := g.suppressing
		g.mu.Unlock()

		if restore {
			if err := g.owner.notifier.SetDeliveryBehavior(context.WithoutCancel(ctx), notify.Delivering); err != nil {
				g.owner.logger.Error("failed_to_restore_notifications", zap.Error(err))
			}
		}

		g.owner.mu.Lock()
		g.owner.held = false
		g.owner.mu.Unlock()
	})
}
