package monitor

import (
	"context"
	"fmt"

	"github.com/opensoc/runwatch/internal/domain/analysis"
	"github.com/opensoc/runwatch/internal/domain/events"
)

// handleEvent is the push-channel entry point. Each lifecycle event kind
// maps to a partial snapshot that flows through the same merge path as poll
// results; an event arriving before any poll therefore seeds the snapshot
// from its payload.
func (m *RunMonitor) handleEvent(ctx context.Context, evt events.DomainEvent) error {
	if evt.ResourceID() != m.resourceID {
		// The bus already filters by resource; this guards against a
		// misrouted delivery mutating state for a resource we don't watch.
		return nil
	}

	m.metrics.IncEventsIngested(ctx, evt.EventType())

	switch e := evt.(type) {
	case analysis.RunStartedEvent:
		m.applySnapshot(ctx, e.Run.Clone(), "event:run-started")

	case analysis.BatchStartedEvent:
		m.applySnapshot(ctx, &analysis.RunSnapshot{
			RunID:        e.RunID,
			ResourceID:   e.Resource,
			Status:       analysis.RunStatusRunning,
			TotalBatches: e.TotalBatches,
			UpdatedAt:    e.OccurredAt(),
		}, "event:batch-started")

	case analysis.BatchCompletedEvent:
		m.recordBatch(e)
		m.applySnapshot(ctx, &analysis.RunSnapshot{
			RunID:          e.RunID,
			ResourceID:     e.Resource,
			Status:         analysis.RunStatusRunning,
			CurrentBatch:   e.BatchNumber,
			TotalBatches:   e.TotalBatches,
			LinesProcessed: e.LinesProcessed,
			IssuesFound:    e.IssuesFound,
			AlertsCreated:  e.AlertsCreated,
			UpdatedAt:      e.OccurredAt(),
		}, "event:batch-completed")
		m.notifyStats(e.LinesProcessed)

	case analysis.RunProgressEvent:
		m.applySnapshot(ctx, &analysis.RunSnapshot{
			RunID:          e.RunID,
			ResourceID:     e.Resource,
			CurrentBatch:   e.CurrentBatch,
			TotalBatches:   e.TotalBatches,
			LinesProcessed: e.LinesProcessed,
			TotalLines:     e.TotalLines,
			IssuesFound:    e.IssuesFound,
			AlertsCreated:  e.AlertsCreated,
			UpdatedAt:      e.OccurredAt(),
		}, "event:progress")
		m.notifyStats(e.LinesProcessed)

	case analysis.RunCompletedEvent:
		m.applySnapshot(ctx, &analysis.RunSnapshot{
			RunID:          e.RunID,
			ResourceID:     e.Resource,
			Status:         analysis.RunStatusCompleted,
			LinesProcessed: e.LinesProcessed,
			IssuesFound:    e.IssuesFound,
			AlertsCreated:  e.AlertsCreated,
			EndTime:        e.CompletedAt,
			UpdatedAt:      e.OccurredAt(),
		}, "event:run-completed")

	case analysis.RunCancelledEvent:
		m.applySnapshot(ctx, &analysis.RunSnapshot{
			RunID:      e.RunID,
			ResourceID: e.Resource,
			Status:     analysis.RunStatusCancelled,
			EndTime:    e.CancelledAt,
			UpdatedAt:  e.OccurredAt(),
		}, "event:run-cancelled")

	case analysis.RunPausedEvent:
		m.applySnapshot(ctx, &analysis.RunSnapshot{
			RunID:      e.RunID,
			ResourceID: e.Resource,
			Status:     analysis.RunStatusPaused,
			UpdatedAt:  e.OccurredAt(),
		}, "event:run-paused")

	default:
		return fmt.Errorf("unhandled event type %s", evt.EventType())
	}

	return nil
}

// recordBatch appends a completed batch to the bounded ledger. Ledger data
// feeds rate/ETA display only, so a duplicate delivery at worst skews the
// recent average.
func (m *RunMonitor) recordBatch(e analysis.BatchCompletedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.Append(analysis.BatchRecord{
		BatchNumber:    e.BatchNumber,
		CompletedAt:    e.OccurredAt(),
		ProcessingTime: e.ProcessingTime,
	})
}

// notifyStats forwards a lines-processed reading to the statistics rollup.
// One-way: failures and backpressure are the notifier's problem.
func (m *RunMonitor) notifyStats(linesProcessed int64) {
	if m.stats == nil || linesProcessed <= 0 {
		return
	}
	m.stats.RecordLinesProcessed(m.resourceID, linesProcessed)
}
