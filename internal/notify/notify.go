// Package notify models the process-wide notification capability that a
// focus session suppresses.
package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Permission is the user's decision about notifications
type Permission string

const (
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
	PermissionUndetermined Permission = "undetermined"
)

// ParsePermission maps a configured policy string to a Permission.
func ParsePermission(value string) (Permission, error) {
	switch Permission(value) {
	case PermissionGranted, PermissionDenied, PermissionUndetermined:
		return Permission(value), nil
	default:
		return "", fmt.Errorf("invalid notification permission: %s (must be 'granted', 'denied', or 'undetermined')", value)
	}
}

// Behavior controls how incoming notifications are surfaced
type Behavior struct {
	ShowAlert bool `json:"show_alert"`
	PlaySound bool `json:"play_sound"`
	SetBadge  bool `json:"set_badge"`
}

var (
	// Delivering surfaces notifications normally.
	Delivering = Behavior{ShowAlert: true, PlaySound: true, SetBadge: true}
	// Suppressed hides notifications.
	Suppressed = Behavior{}
)

// IsSuppressed reports whether nothing is surfaced.
func (b Behavior) IsSuppressed() bool {
	return !b.ShowAlert && !b.PlaySound && !b.SetBadge
}

func (b Behavior) String() string {
	if b.IsSuppressed() {
		return "suppressed"
	}
	return "delivering"
}

// Notifier is the notification capability
type Notifier interface {
	PermissionStatus(ctx context.Context) (Permission, error)
	RequestPermission(ctx context.Context) (Permission, error)
	SetDeliveryBehavior(ctx context.Context, b Behavior) error
}

// Local is an in-process Notifier. RequestPermission resolves an
// undetermined status to the configured answer.
type Local struct {
	mu       sync.Mutex
	status   Permission
	answer   Permission
	behavior Behavior
	logger   *zap.Logger
}

// NewLocal creates a Local notifier with the given starting status. A
// permission request while undetermined is answered with answer.
func NewLocal(status, answer Permission, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		status:   status,
		answer:   answer,
		behavior: Delivering,
		logger:   logger,
	}
}

func (l *Local) PermissionStatus(context.Context) (Permission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status, nil
}

func (l *Local) RequestPermission(context.Context) (Permission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == PermissionUndetermined {
		l.status = l.answer
		l.logger.Info("notification_permission_resolved", zap.String("permission", string(l.status)))
	}
	return l.status, nil
}

func (l *Local) SetDeliveryBehavior(_ context.Context, b Behavior) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.behavior = b
	l.logger.Debug("notification_delivery_changed", zap.String("behavior", b.String()))
	return nil
}

// Behavior returns the current delivery behavior.
func (l *Local) Behavior() Behavior {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.behavior
}
