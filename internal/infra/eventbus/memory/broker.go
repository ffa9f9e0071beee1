// Package memory provides an in-memory implementation of the event bus. It
// offers a lightweight, non-persistent broker suitable for testing and
// development environments where durability is not required.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/opensoc/runwatch/internal/domain/events"
)

var _ events.EventBus = (*Broker)(nil)

// Broker is an in-process events.EventBus. Delivery is synchronous: Publish
// invokes every matching handler before returning, which makes test
// orderings deterministic.
type Broker struct {
	mu     sync.RWMutex
	subs   map[events.SubscriptionID]*subscription
	closed bool
}

type subscription struct {
	eventTypes map[events.EventType]struct{}
	resourceID uuid.UUID
	handler    events.HandlerFunc
}

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[events.SubscriptionID]*subscription)}
}

// Publish delivers the event synchronously to every subscription matching
// its type and resource, stopping at the first handler error.
func (b *Broker) Publish(ctx context.Context, event events.DomainEvent, _ ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.New("broker is closed")
	}
	// Copy matching handlers so they run without the lock held; a handler
	// may itself subscribe or unsubscribe.
	var handlers []events.HandlerFunc
	for _, sub := range b.subs {
		if _, ok := sub.eventTypes[event.EventType()]; !ok {
			continue
		}
		if sub.resourceID != uuid.Nil && sub.resourceID != event.ResourceID() {
			continue
		}
		handlers = append(handlers, sub.handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for the given event types scoped to one
// resource. uuid.Nil subscribes to all resources.
func (b *Broker) Subscribe(
	eventTypes []events.EventType,
	resourceID uuid.UUID,
	handler events.HandlerFunc,
) (events.SubscriptionID, error) {
	if handler == nil {
		return events.SubscriptionID{}, errors.New("handler cannot be nil")
	}

	typeSet := make(map[events.EventType]struct{}, len(eventTypes))
	for _, et := range eventTypes {
		typeSet[et] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return events.SubscriptionID{}, errors.New("broker is closed")
	}

	id := events.SubscriptionID(uuid.New())
	b.subs[id] = &subscription{
		eventTypes: typeSet,
		resourceID: resourceID,
		handler:    handler,
	}
	return id, nil
}

// Unsubscribe removes a registration. Unknown ids are a no-op.
func (b *Broker) Unsubscribe(id events.SubscriptionID) error {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
	return nil
}

// Connected always reports true; an in-process broker cannot lose its
// transport.
func (b *Broker) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Close drops all subscriptions and rejects further publishes.
func (b *Broker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.subs = make(map[events.SubscriptionID]*subscription)
	b.mu.Unlock()
	return nil
}
