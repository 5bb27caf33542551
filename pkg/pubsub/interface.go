package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrClosed is reported by a subscription whose PubSub was closed.
	ErrClosed = errors.New("pubsub closed")
	// ErrDisconnected is reported when the transport dropped the subscription.
	ErrDisconnected = errors.New("pubsub subscription disconnected")
)

// Event represents a message published to the event bus.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType, topic string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Topic:     topic,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// UnmarshalPayload unmarshals the event payload into the given struct.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Publisher publishes events to the event bus.
type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

// Subscription is one open registration on a channel. It is owned by the
// caller of Subscribe, who must Close it.
type Subscription interface {
	Channel() string
	// Events is closed when the subscription ends, either through Close
	// or because the transport dropped it.
	Events() <-chan *Event
	// Err reports why Events was closed. It is nil while the subscription
	// is open and after an explicit Close.
	Err() error
	Close() error
}

// Subscriber subscribes to events from the event bus. Subscribe returns
// only after the transport confirmed the registration.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// PubSub combines Publisher and Subscriber interfaces.
type PubSub interface {
	Publisher
	Subscriber
	Close() error
}
