// Package events provides domain event handling capabilities for
// communicating run state changes across system boundaries in a decoupled
// way.
package events

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is implemented by every run lifecycle notification flowing
// through the system. Events are scoped to the resource whose run they
// describe so subscribers can ignore notifications for resources they do
// not monitor.
type DomainEvent interface {
	// EventType identifies the category of this event for routing.
	EventType() EventType

	// OccurredAt records when this event was created.
	OccurredAt() time.Time

	// ResourceID identifies the monitored resource this event is scoped to.
	ResourceID() uuid.UUID
}
