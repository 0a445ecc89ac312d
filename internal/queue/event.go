package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the kind of event, used as the routing key
type EventType string

const (
	// EventDeliveryChanged is published whenever notification delivery is suppressed or restored
	EventDeliveryChanged EventType = "notification.delivery_changed"
	// EventFocusStarted is published when a focus session begins
	EventFocusStarted EventType = "focus.session_started"
	// EventFocusCompleted is published when a focus session finishes or is ended early with notes
	EventFocusCompleted EventType = "focus.session_completed"
	// EventFocusCancelled is published when a focus session is stopped or torn down
	EventFocusCancelled EventType = "focus.session_cancelled"
)

// Event represents a message on the event exchange
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Type      EventType      `json:"type"`
	UserID    uuid.UUID      `json:"user_id"`
	TaskID    *uuid.UUID     `json:"task_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEvent creates a new event
func NewEvent(eventType EventType, userID uuid.UUID, taskID *uuid.UUID) *Event {
	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		UserID:    userID,
		TaskID:    taskID,
		Payload:   make(map[string]any),
		CreatedAt: time.Now().UTC(),
	}
}

// With sets a payload field and returns the event for chaining.
func (e *Event) With(key string, value any) *Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// RoutingKey returns the topic routing key for the event: user.<user_id>.<type>
func (e *Event) RoutingKey() string {
	return UserBindingPrefix(e.UserID.String()) + string(e.Type)
}

// UserBindingPrefix is the routing key prefix shared by all events of one user.
func UserBindingPrefix(userID string) string {
	return "user." + userID + "."
}

// Encode marshals the event to JSON.
func (e *Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// DecodeEvent unmarshals an event from JSON.
func DecodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("event has no type")
	}
	return &e, nil
}
