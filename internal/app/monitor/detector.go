package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensoc/runwatch/internal/domain/analysis"
)

// handleRunMissing implements the "job vanished while active" inference:
// the active-run query came back empty. If a run was previously active and
// no terminal snapshot has been shown, the server is assumed to have
// finalized and archived it between polls, so a completed snapshot is
// synthesized from the last known state. With no last-known run this is
// steady-state idle and nothing happens.
//
// Returns whether the empty result produced new information.
func (m *RunMonitor) handleRunMissing(ctx context.Context) bool {
	now := m.timeProvider.Now()

	m.mu.Lock()
	if m.lastKnown == nil || m.showCompleted {
		m.mu.Unlock()
		return false
	}
	basis := m.lastKnown
	m.openDetectionLocked(basis.RunID, now)
	m.mu.Unlock()

	m.logger.Info(ctx, "Active run vanished, synthesizing completion",
		"run_id", basis.RunID.String(),
		"last_batch", basis.CurrentBatch,
	)

	return m.synthesizeCompletion(ctx, basis, "detector:vanished")
}

// noteFinalBatchStagnation fires the second detection trigger: the server
// still reports the run as active but it has sat at its final batch beyond
// the stagnation timeout, meaning the executor finished and its terminal
// notification was lost. Returns whether a completion was synthesized.
func (m *RunMonitor) noteFinalBatchStagnation(ctx context.Context, snap *analysis.RunSnapshot) bool {
	now := m.timeProvider.Now()

	m.mu.Lock()
	if m.showCompleted {
		m.mu.Unlock()
		return false
	}
	if m.finalBatchSince.IsZero() {
		m.finalBatchSince = now
		m.mu.Unlock()
		return false
	}
	if now.Sub(m.finalBatchSince) < m.cfg.StagnationTimeout {
		m.mu.Unlock()
		return false
	}
	m.openDetectionLocked(snap.RunID, now)
	m.mu.Unlock()

	m.logger.Info(ctx, "Run stuck at final batch beyond stagnation timeout, synthesizing completion",
		"run_id", snap.RunID.String(),
		"current_batch", snap.CurrentBatch,
		"total_batches", snap.EffectiveTotalBatches(),
	)

	return m.synthesizeCompletion(ctx, snap, "detector:stagnation")
}

// openDetectionLocked opens (or extends nothing on) the single detection
// window for the run. Both triggers share this window so they cannot race
// two separate timers for the same run. Callers must hold m.mu.
func (m *RunMonitor) openDetectionLocked(runID uuid.UUID, now time.Time) {
	if m.detectingRun == runID {
		return
	}
	m.detectingRun = runID
	m.detectionDeadline = now.Add(m.cfg.DetectionWindow)
}

// synthesizeCompletion builds a terminal snapshot from indirect evidence and
// commits it through the regular merge path. The merge's terminal-once
// guarantee makes a duplicate synthesis (or a racing real terminal event) a
// no-op, so at most one terminal snapshot is ever produced per run.
func (m *RunMonitor) synthesizeCompletion(ctx context.Context, basis *analysis.RunSnapshot, source string) bool {
	ctx, span := m.tracer.Start(ctx, "run_monitor.synthesize_completion",
		trace.WithAttributes(
			attribute.String("run_id", basis.RunID.String()),
			attribute.String("trigger", source),
		))
	defer span.End()

	now := m.timeProvider.Now()

	synth := basis.Clone()
	synth.Status = analysis.RunStatusCompleted
	if total := basis.EffectiveTotalBatches(); total > 0 {
		// The last known batch count may be stale; a completed run by
		// definition finished every batch.
		synth.CurrentBatch = total
	}
	if synth.LinesProcessed == 0 && synth.CurrentBatch > 0 && synth.BatchSize > 0 {
		synth.LinesProcessed = int64(synth.CurrentBatch) * int64(synth.BatchSize)
	}
	synth.EndTime = now
	synth.UpdatedAt = now

	applied := m.applySnapshot(ctx, synth, source)
	if applied {
		m.metrics.IncCompletionsSynthesized(ctx)
		span.AddEvent("completion_synthesized")
	}
	return applied
}
