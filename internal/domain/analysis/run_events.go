package analysis

import (
	"time"

	"github.com/google/uuid"

	"github.com/opensoc/runwatch/internal/domain/events"
)

// Event types relevant to analysis runs:
const (
	EventTypeRunStarted     events.EventType = "RunStarted"
	EventTypeBatchStarted   events.EventType = "BatchStarted"
	EventTypeBatchCompleted events.EventType = "BatchCompleted"
	EventTypeRunProgress    events.EventType = "RunProgress"
	EventTypeRunCompleted   events.EventType = "RunCompleted"
	EventTypeRunCancelled   events.EventType = "RunCancelled"
	EventTypeRunPaused      events.EventType = "RunPaused"
)

// LifecycleEventTypes lists every run lifecycle event kind a monitor
// subscribes to for one resource.
func LifecycleEventTypes() []events.EventType {
	return []events.EventType{
		EventTypeRunStarted,
		EventTypeBatchStarted,
		EventTypeBatchCompleted,
		EventTypeRunProgress,
		EventTypeRunCompleted,
		EventTypeRunCancelled,
		EventTypeRunPaused,
	}
}

// RunStartedEvent signals that the executor accepted a run and began
// processing. It carries a full snapshot so a monitor that has never polled
// can seed its state from the event alone.
type RunStartedEvent struct {
	occurredAt time.Time
	Run        RunSnapshot
}

// NewRunStartedEvent creates a new run started event.
func NewRunStartedEvent(run RunSnapshot) RunStartedEvent {
	return RunStartedEvent{occurredAt: time.Now(), Run: run}
}

// ReconstructRunStartedEvent rebuilds an event decoded from the wire with
// its original creation time. A zero occurredAt falls back to receipt time.
func ReconstructRunStartedEvent(run RunSnapshot, occurredAt time.Time) RunStartedEvent {
	evt := NewRunStartedEvent(run)
	if !occurredAt.IsZero() {
		evt.occurredAt = occurredAt
	}
	return evt
}

func (e RunStartedEvent) EventType() events.EventType { return EventTypeRunStarted }
func (e RunStartedEvent) OccurredAt() time.Time       { return e.occurredAt }
func (e RunStartedEvent) ResourceID() uuid.UUID       { return e.Run.ResourceID }

// BatchStartedEvent signals that the executor picked up the next batch.
type BatchStartedEvent struct {
	occurredAt   time.Time
	Resource     uuid.UUID
	RunID        uuid.UUID
	BatchNumber  int
	TotalBatches int
}

// NewBatchStartedEvent creates a new batch started event.
func NewBatchStartedEvent(resourceID, runID uuid.UUID, batchNumber, totalBatches int) BatchStartedEvent {
	return BatchStartedEvent{
		occurredAt:   time.Now(),
		Resource:     resourceID,
		RunID:        runID,
		BatchNumber:  batchNumber,
		TotalBatches: totalBatches,
	}
}

// ReconstructBatchStartedEvent rebuilds a decoded event with its original
// creation time.
func ReconstructBatchStartedEvent(
	resourceID, runID uuid.UUID,
	batchNumber, totalBatches int,
	occurredAt time.Time,
) BatchStartedEvent {
	evt := NewBatchStartedEvent(resourceID, runID, batchNumber, totalBatches)
	if !occurredAt.IsZero() {
		evt.occurredAt = occurredAt
	}
	return evt
}

func (e BatchStartedEvent) EventType() events.EventType { return EventTypeBatchStarted }
func (e BatchStartedEvent) OccurredAt() time.Time       { return e.occurredAt }
func (e BatchStartedEvent) ResourceID() uuid.UUID       { return e.Resource }

// BatchCompletedEvent signals that one batch finished. Counters are
// cumulative for the run, not per-batch deltas.
type BatchCompletedEvent struct {
	occurredAt     time.Time
	Resource       uuid.UUID
	RunID          uuid.UUID
	BatchNumber    int
	TotalBatches   int
	LinesProcessed int64
	IssuesFound    int
	AlertsCreated  int
	ProcessingTime time.Duration
}

// NewBatchCompletedEvent creates a new batch completed event.
func NewBatchCompletedEvent(
	resourceID, runID uuid.UUID,
	batchNumber, totalBatches int,
	linesProcessed int64,
	issuesFound, alertsCreated int,
	processingTime time.Duration,
) BatchCompletedEvent {
	return BatchCompletedEvent{
		occurredAt:     time.Now(),
		Resource:       resourceID,
		RunID:          runID,
		BatchNumber:    batchNumber,
		TotalBatches:   totalBatches,
		LinesProcessed: linesProcessed,
		IssuesFound:    issuesFound,
		AlertsCreated:  alertsCreated,
		ProcessingTime: processingTime,
	}
}

// ReconstructBatchCompletedEvent rebuilds a decoded event with its original
// creation time, keeping ledger timestamps at producer time rather than
// receipt time.
func ReconstructBatchCompletedEvent(
	resourceID, runID uuid.UUID,
	batchNumber, totalBatches int,
	linesProcessed int64,
	issuesFound, alertsCreated int,
	processingTime time.Duration,
	occurredAt time.Time,
) BatchCompletedEvent {
	evt := NewBatchCompletedEvent(
		resourceID, runID, batchNumber, totalBatches,
		linesProcessed, issuesFound, alertsCreated, processingTime)
	if !occurredAt.IsZero() {
		evt.occurredAt = occurredAt
	}
	return evt
}

func (e BatchCompletedEvent) EventType() events.EventType { return EventTypeBatchCompleted }
func (e BatchCompletedEvent) OccurredAt() time.Time       { return e.occurredAt }
func (e BatchCompletedEvent) ResourceID() uuid.UUID       { return e.Resource }

// RunProgressEvent carries an intra-batch progress update.
type RunProgressEvent struct {
	occurredAt     time.Time
	Resource       uuid.UUID
	RunID          uuid.UUID
	CurrentBatch   int
	TotalBatches   int
	LinesProcessed int64
	TotalLines     int64
	IssuesFound    int
	AlertsCreated  int
}

// NewRunProgressEvent creates a new run progress event.
func NewRunProgressEvent(
	resourceID, runID uuid.UUID,
	currentBatch, totalBatches int,
	linesProcessed, totalLines int64,
	issuesFound, alertsCreated int,
) RunProgressEvent {
	return RunProgressEvent{
		occurredAt:     time.Now(),
		Resource:       resourceID,
		RunID:          runID,
		CurrentBatch:   currentBatch,
		TotalBatches:   totalBatches,
		LinesProcessed: linesProcessed,
		TotalLines:     totalLines,
		IssuesFound:    issuesFound,
		AlertsCreated:  alertsCreated,
	}
}

// ReconstructRunProgressEvent rebuilds a decoded event with its original
// creation time.
func ReconstructRunProgressEvent(
	resourceID, runID uuid.UUID,
	currentBatch, totalBatches int,
	linesProcessed, totalLines int64,
	issuesFound, alertsCreated int,
	occurredAt time.Time,
) RunProgressEvent {
	evt := NewRunProgressEvent(
		resourceID, runID, currentBatch, totalBatches,
		linesProcessed, totalLines, issuesFound, alertsCreated)
	if !occurredAt.IsZero() {
		evt.occurredAt = occurredAt
	}
	return evt
}

func (e RunProgressEvent) EventType() events.EventType { return EventTypeRunProgress }
func (e RunProgressEvent) OccurredAt() time.Time       { return e.occurredAt }
func (e RunProgressEvent) ResourceID() uuid.UUID       { return e.Resource }

// RunCompletedEvent means the run finished all of its batches.
type RunCompletedEvent struct {
	occurredAt     time.Time
	Resource       uuid.UUID
	RunID          uuid.UUID
	LinesProcessed int64
	IssuesFound    int
	AlertsCreated  int
	CompletedAt    time.Time
}

// NewRunCompletedEvent creates a new run completed event.
func NewRunCompletedEvent(resourceID, runID uuid.UUID, linesProcessed int64, issuesFound, alertsCreated int) RunCompletedEvent {
	now := time.Now()
	return RunCompletedEvent{
		occurredAt:     now,
		Resource:       resourceID,
		RunID:          runID,
		LinesProcessed: linesProcessed,
		IssuesFound:    issuesFound,
		AlertsCreated:  alertsCreated,
		CompletedAt:    now,
	}
}

// ReconstructRunCompletedEvent rebuilds a decoded event with its original
// creation time.
func ReconstructRunCompletedEvent(
	resourceID, runID uuid.UUID,
	linesProcessed int64,
	issuesFound, alertsCreated int,
	occurredAt time.Time,
) RunCompletedEvent {
	evt := NewRunCompletedEvent(resourceID, runID, linesProcessed, issuesFound, alertsCreated)
	if !occurredAt.IsZero() {
		evt.occurredAt = occurredAt
	}
	return evt
}

func (e RunCompletedEvent) EventType() events.EventType { return EventTypeRunCompleted }
func (e RunCompletedEvent) OccurredAt() time.Time       { return e.occurredAt }
func (e RunCompletedEvent) ResourceID() uuid.UUID       { return e.Resource }

// RunCancelledEvent signals that a run was cancelled before finishing.
type RunCancelledEvent struct {
	occurredAt  time.Time
	Resource    uuid.UUID
	RunID       uuid.UUID
	CancelledAt time.Time
	Reason      string
}

// NewRunCancelledEvent creates a new run cancelled event.
func NewRunCancelledEvent(resourceID, runID uuid.UUID, reason string) RunCancelledEvent {
	now := time.Now()
	return RunCancelledEvent{
		occurredAt:  now,
		Resource:    resourceID,
		RunID:       runID,
		CancelledAt: now,
		Reason:      reason,
	}
}

// ReconstructRunCancelledEvent rebuilds a decoded event with its original
// creation time.
func ReconstructRunCancelledEvent(resourceID, runID uuid.UUID, reason string, occurredAt time.Time) RunCancelledEvent {
	evt := NewRunCancelledEvent(resourceID, runID, reason)
	if !occurredAt.IsZero() {
		evt.occurredAt = occurredAt
	}
	return evt
}

func (e RunCancelledEvent) EventType() events.EventType { return EventTypeRunCancelled }
func (e RunCancelledEvent) OccurredAt() time.Time       { return e.occurredAt }
func (e RunCancelledEvent) ResourceID() uuid.UUID       { return e.Resource }

// RunPausedEvent signals that the executor confirmed a pause.
type RunPausedEvent struct {
	occurredAt time.Time
	Resource   uuid.UUID
	RunID      uuid.UUID
	PausedAt   time.Time
}

// NewRunPausedEvent creates a new run paused event.
func NewRunPausedEvent(resourceID, runID uuid.UUID) RunPausedEvent {
	now := time.Now()
	return RunPausedEvent{
		occurredAt: now,
		Resource:   resourceID,
		RunID:      runID,
		PausedAt:   now,
	}
}

// ReconstructRunPausedEvent rebuilds a decoded event with its original
// creation time.
func ReconstructRunPausedEvent(resourceID, runID uuid.UUID, occurredAt time.Time) RunPausedEvent {
	evt := NewRunPausedEvent(resourceID, runID)
	if !occurredAt.IsZero() {
		evt.occurredAt = occurredAt
	}
	return evt
}

func (e RunPausedEvent) EventType() events.EventType { return EventTypeRunPaused }
func (e RunPausedEvent) OccurredAt() time.Time       { return e.occurredAt }
func (e RunPausedEvent) ResourceID() uuid.UUID       { return e.Resource }
