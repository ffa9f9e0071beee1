package events

import (
	"context"

	"github.com/google/uuid"
)

// SubscriptionID identifies one handler registration on an EventBus so it
// can be torn down individually.
type SubscriptionID uuid.UUID

// String returns the canonical string form of the subscription id.
func (id SubscriptionID) String() string { return uuid.UUID(id).String() }

// HandlerFunc processes a domain event delivered to a subscription.
type HandlerFunc func(ctx context.Context, evt DomainEvent) error

// EventBus enables publishing and subscribing to run lifecycle events across
// system boundaries. It abstracts messaging infrastructure details (like
// Kafka or an in-process broker) to keep domain logic focused on business
// concerns rather than transport mechanisms.
//
// The bus is one of two delivery channels for the same logical events; it
// may silently drop or duplicate notifications, so consumers must reconcile
// against the pull channel.
type EventBus interface {
	// Publish broadcasts a domain event to all interested subscribers.
	// Optional PublishOptions configure delivery behavior. Returns an error
	// if publishing fails.
	Publish(ctx context.Context, event DomainEvent, opts ...PublishOption) error

	// Subscribe registers a handler for the given event types, scoped to a
	// single resource id. Events for other resources are not delivered.
	// Returns an id that must be passed to Unsubscribe during teardown.
	Subscribe(eventTypes []EventType, resourceID uuid.UUID, handler HandlerFunc) (SubscriptionID, error)

	// Unsubscribe removes a previously registered handler. After it returns
	// the handler will not be invoked again.
	Unsubscribe(id SubscriptionID) error

	// Connected reports whether the push channel is currently believed to be
	// delivering events. A disconnected bus shifts the burden of progress to
	// the poll channel.
	Connected() bool

	// Close gracefully shuts down the event bus and releases associated
	// resources.
	Close() error
}
