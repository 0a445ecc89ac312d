package queue

import (
	"context"
)

// Publisher sends events to the event exchange
type Publisher interface {
	// Publish sends an event, routed by its type
	Publish(ctx context.Context, event *Event) error

	// Close closes the publisher connection
	Close() error
}

// Subscriber receives events for one user
type Subscriber interface {
	// Subscribe returns a channel of events for userID.
	// The channels are closed when the context is cancelled or the connection drops.
	Subscribe(ctx context.Context, userID string) (<-chan *Message, <-chan error, error)
}

// NopPublisher discards every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }

func (NopPublisher) Close() error { return nil }
