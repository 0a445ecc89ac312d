package queue

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is a decoded event still owned by the broker until it is
// acknowledged.
type Message struct {
	Event       *Event
	Redelivered bool

	delivery amqp.Delivery
}

func newMessage(delivery amqp.Delivery, event *Event) *Message {
	return &Message{
		Event:       event,
		Redelivered: delivery.Redelivered,
		delivery:    delivery,
	}
}

// Ack removes the event from the subscriber queue.
func (m *Message) Ack() error {
	return m.delivery.Ack(false)
}

// Nack rejects the event, putting it back on the queue when requeue is set.
func (m *Message) Nack(requeue bool) error {
	return m.delivery.Nack(false, requeue)
}
