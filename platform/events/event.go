// Package events provides the in-process event bus the lead, sequence and
// chat modules use to announce state changes without importing each other.
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"time"
)

// Event is the envelope every cross-module announcement implements.
type Event interface {
	// EventName returns the stable identifier subscribers key on,
	// e.g. "lead.scored" or "chat.room_escalated".
	EventName() string
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
}

// BaseEvent carries the timestamp shared by all events; domain events embed
// it and add their own payload fields.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent creates a base event stamped with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler processes events of a specific type. Modules with several
// subscriptions implement it once and switch on the concrete event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes domain events to their subscribers.
type Bus interface {
	// Publish delivers the event to every handler registered for its
	// name. Handlers run asynchronously; failures never reach the
	// publisher.
	Publish(ctx context.Context, event Event)

	// PublishSync delivers the event and waits for all handlers,
	// returning the first error.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for the event name returned by
	// Event.EventName().
	Subscribe(eventName string, handler Handler)
}
