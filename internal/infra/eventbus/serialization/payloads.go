package serialization

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/opensoc/runwatch/internal/domain/analysis"
	"github.com/opensoc/runwatch/internal/domain/events"
)

// Wire payloads mirror the exported fields of their domain events. They are
// kept separate so wire compatibility does not constrain the domain types.

type runStartedPayload struct {
	Run analysis.RunSnapshot `json:"run"`
}

type batchStartedPayload struct {
	ResourceID   uuid.UUID `json:"resource_id"`
	RunID        uuid.UUID `json:"run_id"`
	BatchNumber  int       `json:"batch_number"`
	TotalBatches int       `json:"total_batches"`
}

type batchCompletedPayload struct {
	ResourceID     uuid.UUID     `json:"resource_id"`
	RunID          uuid.UUID     `json:"run_id"`
	BatchNumber    int           `json:"batch_number"`
	TotalBatches   int           `json:"total_batches"`
	LinesProcessed int64         `json:"lines_processed"`
	IssuesFound    int           `json:"issues_found"`
	AlertsCreated  int           `json:"alerts_created"`
	ProcessingTime time.Duration `json:"processing_time_ns"`
}

type runProgressPayload struct {
	ResourceID     uuid.UUID `json:"resource_id"`
	RunID          uuid.UUID `json:"run_id"`
	CurrentBatch   int       `json:"current_batch"`
	TotalBatches   int       `json:"total_batches"`
	LinesProcessed int64     `json:"lines_processed"`
	TotalLines     int64     `json:"total_lines"`
	IssuesFound    int       `json:"issues_found"`
	AlertsCreated  int       `json:"alerts_created"`
}

type runCompletedPayload struct {
	ResourceID     uuid.UUID `json:"resource_id"`
	RunID          uuid.UUID `json:"run_id"`
	LinesProcessed int64     `json:"lines_processed"`
	IssuesFound    int       `json:"issues_found"`
	AlertsCreated  int       `json:"alerts_created"`
	CompletedAt    time.Time `json:"completed_at"`
}

type runCancelledPayload struct {
	ResourceID  uuid.UUID `json:"resource_id"`
	RunID       uuid.UUID `json:"run_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason"`
}

type runPausedPayload struct {
	ResourceID uuid.UUID `json:"resource_id"`
	RunID      uuid.UUID `json:"run_id"`
	PausedAt   time.Time `json:"paused_at"`
}

// Decoders rebuild events through their reconstructors so the envelope's
// occurred_at survives the round-trip instead of being replaced by consumer
// receipt time.

func decodeRunStarted(payload json.RawMessage, occurredAt time.Time) (events.DomainEvent, error) {
	var p runStartedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return analysis.ReconstructRunStartedEvent(p.Run, occurredAt), nil
}

func decodeBatchStarted(payload json.RawMessage, occurredAt time.Time) (events.DomainEvent, error) {
	var p batchStartedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return analysis.ReconstructBatchStartedEvent(p.ResourceID, p.RunID, p.BatchNumber, p.TotalBatches, occurredAt), nil
}

func decodeBatchCompleted(payload json.RawMessage, occurredAt time.Time) (events.DomainEvent, error) {
	var p batchCompletedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return analysis.ReconstructBatchCompletedEvent(
		p.ResourceID, p.RunID,
		p.BatchNumber, p.TotalBatches,
		p.LinesProcessed,
		p.IssuesFound, p.AlertsCreated,
		p.ProcessingTime,
		occurredAt,
	), nil
}

func decodeRunProgress(payload json.RawMessage, occurredAt time.Time) (events.DomainEvent, error) {
	var p runProgressPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return analysis.ReconstructRunProgressEvent(
		p.ResourceID, p.RunID,
		p.CurrentBatch, p.TotalBatches,
		p.LinesProcessed, p.TotalLines,
		p.IssuesFound, p.AlertsCreated,
		occurredAt,
	), nil
}

func decodeRunCompleted(payload json.RawMessage, occurredAt time.Time) (events.DomainEvent, error) {
	var p runCompletedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	evt := analysis.ReconstructRunCompletedEvent(
		p.ResourceID, p.RunID, p.LinesProcessed, p.IssuesFound, p.AlertsCreated, occurredAt)
	if !p.CompletedAt.IsZero() {
		evt.CompletedAt = p.CompletedAt
	}
	return evt, nil
}

func decodeRunCancelled(payload json.RawMessage, occurredAt time.Time) (events.DomainEvent, error) {
	var p runCancelledPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	evt := analysis.ReconstructRunCancelledEvent(p.ResourceID, p.RunID, p.Reason, occurredAt)
	if !p.CancelledAt.IsZero() {
		evt.CancelledAt = p.CancelledAt
	}
	return evt, nil
}

func decodeRunPaused(payload json.RawMessage, occurredAt time.Time) (events.DomainEvent, error) {
	var p runPausedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	evt := analysis.ReconstructRunPausedEvent(p.ResourceID, p.RunID, occurredAt)
	if !p.PausedAt.IsZero() {
		evt.PausedAt = p.PausedAt
	}
	return evt, nil
}
