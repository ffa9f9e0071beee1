// Package serialization translates run lifecycle events to and from their
// wire form. Every message is a JSON envelope carrying the event type, the
// resource scope, and a type-specific payload, so consumers can route before
// decoding the payload.
package serialization

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensoc/runwatch/internal/domain/analysis"
	"github.com/opensoc/runwatch/internal/domain/events"
)

// Envelope is the wire frame shared by all run lifecycle events.
type Envelope struct {
	EventType  events.EventType `json:"event_type"`
	ResourceID uuid.UUID        `json:"resource_id"`
	OccurredAt time.Time        `json:"occurred_at"`
	Payload    json.RawMessage  `json:"payload"`
}

// UnknownEventTypeError indicates a message carried an event type no codec
// is registered for.
type UnknownEventTypeError struct{ EventType events.EventType }

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("unknown event type %q", e.EventType)
}

type decodeFunc func(payload json.RawMessage, occurredAt time.Time) (events.DomainEvent, error)

// decoders maps each event type to its payload codec. Registration is
// static; the set of lifecycle events is closed.
var decoders = map[events.EventType]decodeFunc{
	analysis.EventTypeRunStarted:     decodeRunStarted,
	analysis.EventTypeBatchStarted:   decodeBatchStarted,
	analysis.EventTypeBatchCompleted: decodeBatchCompleted,
	analysis.EventTypeRunProgress:    decodeRunProgress,
	analysis.EventTypeRunCompleted:   decodeRunCompleted,
	analysis.EventTypeRunCancelled:   decodeRunCancelled,
	analysis.EventTypeRunPaused:      decodeRunPaused,
}

// MarshalDomainEvent encodes a domain event into its wire envelope.
func MarshalDomainEvent(evt events.DomainEvent) ([]byte, error) {
	payload, err := marshalPayload(evt)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload for %s: %w", evt.EventType(), err)
	}

	env := Envelope{
		EventType:  evt.EventType(),
		ResourceID: evt.ResourceID(),
		OccurredAt: evt.OccurredAt(),
		Payload:    payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshaling envelope for %s: %w", evt.EventType(), err)
	}
	return data, nil
}

// UnmarshalDomainEvent decodes a wire envelope back into a domain event.
func UnmarshalDomainEvent(data []byte) (events.DomainEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope: %w", err)
	}

	decode, ok := decoders[env.EventType]
	if !ok {
		return nil, &UnknownEventTypeError{EventType: env.EventType}
	}

	evt, err := decode(env.Payload, env.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("decoding payload for %s: %w", env.EventType, err)
	}
	return evt, nil
}

func marshalPayload(evt events.DomainEvent) (json.RawMessage, error) {
	switch e := evt.(type) {
	case analysis.RunStartedEvent:
		return json.Marshal(runStartedPayload{Run: e.Run})
	case analysis.BatchStartedEvent:
		return json.Marshal(batchStartedPayload{
			ResourceID:   e.Resource,
			RunID:        e.RunID,
			BatchNumber:  e.BatchNumber,
			TotalBatches: e.TotalBatches,
		})
	case analysis.BatchCompletedEvent:
		return json.Marshal(batchCompletedPayload{
			ResourceID:     e.Resource,
			RunID:          e.RunID,
			BatchNumber:    e.BatchNumber,
			TotalBatches:   e.TotalBatches,
			LinesProcessed: e.LinesProcessed,
			IssuesFound:    e.IssuesFound,
			AlertsCreated:  e.AlertsCreated,
			ProcessingTime: e.ProcessingTime,
		})
	case analysis.RunProgressEvent:
		return json.Marshal(runProgressPayload{
			ResourceID:     e.Resource,
			RunID:          e.RunID,
			CurrentBatch:   e.CurrentBatch,
			TotalBatches:   e.TotalBatches,
			LinesProcessed: e.LinesProcessed,
			TotalLines:     e.TotalLines,
			IssuesFound:    e.IssuesFound,
			AlertsCreated:  e.AlertsCreated,
		})
	case analysis.RunCompletedEvent:
		return json.Marshal(runCompletedPayload{
			ResourceID:     e.Resource,
			RunID:          e.RunID,
			LinesProcessed: e.LinesProcessed,
			IssuesFound:    e.IssuesFound,
			AlertsCreated:  e.AlertsCreated,
			CompletedAt:    e.CompletedAt,
		})
	case analysis.RunCancelledEvent:
		return json.Marshal(runCancelledPayload{
			ResourceID:  e.Resource,
			RunID:       e.RunID,
			CancelledAt: e.CancelledAt,
			Reason:      e.Reason,
		})
	case analysis.RunPausedEvent:
		return json.Marshal(runPausedPayload{
			ResourceID: e.Resource,
			RunID:      e.RunID,
			PausedAt:   e.PausedAt,
		})
	default:
		return nil, &UnknownEventTypeError{EventType: evt.EventType()}
	}
}
