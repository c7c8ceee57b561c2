package shared

import "context"

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes a domain event
	Handle(ctx context.Context, event DomainEvent) error
}

// EventHandlerFunc adapts an ordinary function to the EventHandler interface
type EventHandlerFunc func(ctx context.Context, event DomainEvent) error

// Handle calls f(ctx, event)
func (f EventHandlerFunc) Handle(ctx context.Context, event DomainEvent) error {
	return f(ctx, event)
}

// Subscription is returned by Subscribe and detaches the handler when
// Unsubscribe is called. Calling Unsubscribe more than once is a no-op.
type Subscription interface {
	Unsubscribe()
}

// EventPublisher publishes domain events
type EventPublisher interface {
	// Publish delivers events to the current subscribers synchronously and
	// in registration order before returning.
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber subscribes to domain events
type EventSubscriber interface {
	// Subscribe registers a handler for specific event types
	// If no event types are provided, the handler receives all events
	Subscribe(handler EventHandler, eventTypes ...string) Subscription
}

// EventBus combines publisher and subscriber capabilities
type EventBus interface {
	EventPublisher
	EventSubscriber
}
