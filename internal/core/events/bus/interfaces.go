package bus

import "time"

// EventBus is the in-process notification surface the engine publishes its
// lifecycle events on.
//
// Delivery is sequential: Publish invokes every handler in the caller's
// goroutine, one after another, and joins any handler errors. That matches
// the engine's cooperative execution model: a notification completes
// before the operation that raised it continues. PublishAsync exists for
// host applications that want delivery off the engine's critical path; the
// engine itself never uses it.
type EventBus interface {
	// Publish delivers the event synchronously to all active subscribers
	// of event.Type, awaiting each handler before the next. Handler
	// errors are joined and returned.
	Publish(event Event) error
	// Subscribe registers a handler for an event type and returns a
	// Subscription handle for later cancellation.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the given Subscription. Safe to call with nil.
	Unsubscribe(sub Subscription) error

	// PublishAsync delivers on a separate goroutine and returns a channel
	// that receives the joined error (or nil) once delivery completes.
	PublishAsync(event Event) <-chan error

	// Clear drops every subscription. Used by world teardown.
	Clear()
}

// Event is an immutable notification: a routing type, the publisher's
// source tag (the world instance id), and the positional argument payload
// defined per event type.
type Event struct {
	Type      string
	Source    string
	Timestamp time.Time
	Args      []any
}

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType, source string, args ...any) Event {
	return Event{Type: eventType, Source: source, Timestamp: time.Now(), Args: args}
}

// EventHandler consumes one event. A returned error does not stop
// delivery to later handlers; errors are joined.
type EventHandler func(Event) error

// Subscription identifies one registered handler.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	Cancel() error
}
