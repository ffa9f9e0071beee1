package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensoc/runwatch/internal/domain/analysis"
)

// ErrNoRunToControl indicates a command was issued while no run is being
// monitored.
var ErrNoRunToControl = errors.New("no active run to control")

// Pause asks the executor to pause the current run and immediately shows the
// pausing status. The optimistic overlay is rolled back if the command is
// rejected.
func (m *RunMonitor) Pause(ctx context.Context) error {
	return m.issueCommand(ctx, "pause", analysis.RunStatusPausing,
		func(s analysis.RunStatus) bool { return s == analysis.RunStatusRunning },
		m.commands.Pause,
	)
}

// Resume asks the executor to resume a paused run, showing running
// optimistically until the server confirms.
func (m *RunMonitor) Resume(ctx context.Context) error {
	return m.issueCommand(ctx, "resume", analysis.RunStatusRunning,
		func(s analysis.RunStatus) bool { return s == analysis.RunStatusPaused },
		m.commands.Resume,
	)
}

// Cancel asks the executor to cancel the run from any non-terminal state.
func (m *RunMonitor) Cancel(ctx context.Context) error {
	return m.issueCommand(ctx, "cancel", analysis.RunStatusCancelling,
		func(s analysis.RunStatus) bool { return !s.IsTerminal() },
		m.commands.Cancel,
	)
}

// issueCommand is the shared optimistic command path: validate the
// precondition against the displayed status, apply the overlay, forward the
// command through the rate limiter, and roll the overlay back on rejection.
func (m *RunMonitor) issueCommand(
	ctx context.Context,
	name string,
	overlay analysis.RunStatus,
	allowed func(analysis.RunStatus) bool,
	send func(context.Context, uuid.UUID) error,
) error {
	ctx, span := m.tracer.Start(ctx, "run_monitor.command",
		trace.WithAttributes(
			attribute.String("command", name),
			attribute.String("resource_id", m.resourceID.String()),
		))
	defer span.End()

	m.mu.Lock()
	displayed := m.displayedSnapshotLocked()
	if displayed == nil {
		m.mu.Unlock()
		return ErrNoRunToControl
	}
	if !allowed(displayed.Status) {
		m.mu.Unlock()
		return fmt.Errorf("cannot %s run in status %s", name, displayed.Status)
	}

	runID := displayed.RunID
	prevOverlay := m.overlay
	prevOverlaySetAt := m.overlaySetAt
	m.overlay = overlay
	m.overlaySetAt = m.timeProvider.Now()
	m.mu.Unlock()

	m.metrics.IncCommandsIssued(ctx, name)

	if err := m.limiter.Wait(ctx); err != nil {
		m.rollbackOverlay(prevOverlay, prevOverlaySetAt)
		span.RecordError(err)
		return fmt.Errorf("%s command rate limited: %w", name, err)
	}

	if err := send(ctx, runID); err != nil {
		m.rollbackOverlay(prevOverlay, prevOverlaySetAt)
		m.metrics.IncCommandFailures(ctx, name)
		span.RecordError(err)
		m.logger.Error(ctx, "Run command rejected",
			"command", name, "run_id", runID.String(), "err", err)
		return fmt.Errorf("%s command failed: %w", name, err)
	}

	m.logger.Info(ctx, "Run command accepted",
		"command", name, "run_id", runID.String())
	return nil
}

func (m *RunMonitor) rollbackOverlay(prev analysis.RunStatus, prevSetAt time.Time) {
	m.mu.Lock()
	m.overlay = prev
	m.overlaySetAt = prevSetAt
	m.mu.Unlock()
}

// UpdateBatchSize forwards a batch-size change and shows the requested size
// optimistically until a subsequent snapshot confirms it. A short fast
// refresh is scheduled so revalidation does not wait a full poll period.
func (m *RunMonitor) UpdateBatchSize(ctx context.Context, size int) error {
	ctx, span := m.tracer.Start(ctx, "run_monitor.update_batch_size",
		trace.WithAttributes(
			attribute.String("resource_id", m.resourceID.String()),
			attribute.Int("batch_size", size),
		))
	defer span.End()

	if size <= 0 {
		return fmt.Errorf("invalid batch size %d", size)
	}

	m.mu.Lock()
	displayed := m.displayedSnapshotLocked()
	if displayed == nil {
		m.mu.Unlock()
		return ErrNoRunToControl
	}
	if displayed.Status.IsTerminal() {
		m.mu.Unlock()
		return fmt.Errorf("cannot resize run in status %s", displayed.Status)
	}
	runID := displayed.RunID
	prevPending := m.pendingBatchSize
	m.pendingBatchSize = size
	m.mu.Unlock()

	m.metrics.IncCommandsIssued(ctx, "update_batch_size")

	if err := m.limiter.Wait(ctx); err != nil {
		m.rollbackPendingBatchSize(prevPending)
		span.RecordError(err)
		return fmt.Errorf("batch size command rate limited: %w", err)
	}

	if err := m.commands.UpdateBatchSize(ctx, runID, size); err != nil {
		m.rollbackPendingBatchSize(prevPending)
		m.metrics.IncCommandFailures(ctx, "update_batch_size")
		span.RecordError(err)
		m.logger.Error(ctx, "Batch size change rejected",
			"run_id", runID.String(), "batch_size", size, "err", err)
		return fmt.Errorf("batch size command failed: %w", err)
	}

	m.scheduleFastRefresh()

	m.logger.Info(ctx, "Batch size change accepted",
		"run_id", runID.String(), "batch_size", size)
	return nil
}

func (m *RunMonitor) rollbackPendingBatchSize(prev int) {
	m.mu.Lock()
	m.pendingBatchSize = prev
	m.mu.Unlock()
}

// scheduleFastRefresh arms a one-shot out-of-cadence poll shortly after a
// batch-size command so the server's accepted value is observed quickly.
// A second command before the timer fires resets it.
func (m *RunMonitor) scheduleFastRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
	}
	m.refreshTimer = time.AfterFunc(m.cfg.FastRefreshDelay, func() {
		m.mu.Lock()
		stopped := !m.started
		m.mu.Unlock()
		// Stop stops the timer, but a callback already dispatched can still
		// land here; a stopped monitor must not poll.
		if stopped {
			return
		}
		m.pollOnce(context.Background())
	})
}
