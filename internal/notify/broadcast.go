package notify

import (
	"context"

	"github.com/benvon/onetask/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcast decorates a Notifier so that every delivery change is also
// published as an event for the user's other devices.
type Broadcast struct {
	Notifier
	publisher queue.Publisher
	userID    func() (uuid.UUID, error)
	logger    *zap.Logger
}

// NewBroadcast wraps inner. userID resolves the signed-in user at publish time.
func NewBroadcast(inner Notifier, publisher queue.Publisher, userID func() (uuid.UUID, error), logger *zap.Logger) *Broadcast {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcast{
		Notifier:  inner,
		publisher: publisher,
		userID:    userID,
		logger:    logger,
	}
}

// SetDeliveryBehavior applies b locally, then publishes it. Publishing
// failures are logged and do not fail the change.
func (b *Broadcast) SetDeliveryBehavior(ctx context.Context, behavior Behavior) error {
	if err := b.Notifier.SetDeliveryBehavior(ctx, behavior); err != nil {
		return err
	}

	userID, err := b.userID()
	if err != nil {
		b.logger.Debug("skipping_delivery_broadcast", zap.Error(err))
		return nil
	}

	event := queue.NewEvent(queue.EventDeliveryChanged, userID, nil).
		With("show_alert", behavior.ShowAlert).
		With("play_sound", behavior.PlaySound).
		With("set_badge", behavior.SetBadge)
	if err := b.publisher.Publish(ctx, event); err != nil {
		b.logger.Warn("failed_to_publish_delivery_change",
			zap.String("behavior", behavior.String()),
			zap.Error(err),
		)
	}
	return nil
}
