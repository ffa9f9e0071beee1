package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensoc/runwatch/internal/domain/analysis"
)

// startPoller launches the poll scheduler goroutine if it is not already
// running. The scheduler is the fallback that guarantees forward progress
// when every push event is lost.
func (m *RunMonitor) startPoller() {
	m.mu.Lock()
	for m.pollCancel == nil && m.pollDone != nil {
		// A loop that requested its own stop mid-tick may still be
		// unwinding; let it exit before starting a replacement.
		prev := m.pollDone
		m.mu.Unlock()
		<-prev
		m.mu.Lock()
	}
	if m.pollCancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.pollCancel = cancel
	done := make(chan struct{})
	m.pollDone = done
	m.mu.Unlock()

	go m.pollLoop(ctx, done)
}

// stopPoller synchronously halts the poll scheduler. A stopped scheduler
// never fires again until startPoller is called. Must not be called from the
// loop goroutine itself; in-loop stops go through requestPollStop.
func (m *RunMonitor) stopPoller() {
	m.mu.Lock()
	cancel := m.pollCancel
	done := m.pollDone
	m.pollCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// requestPollStop cancels the scheduler without waiting for the loop
// goroutine to exit, so a tick that observed a terminal snapshot (or hit the
// poll cap) can stop its own loop without deadlocking against it. The loop
// unwinds past the tick in flight; stopPoller and startPoller still join it
// through pollDone.
func (m *RunMonitor) requestPollStop() {
	m.mu.Lock()
	cancel := m.pollCancel
	m.pollCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (m *RunMonitor) pollLoop(ctx context.Context, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		if m.pollDone == done {
			m.pollDone = nil
		}
		m.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.pollTick(ctx)

		case <-ctx.Done():
			return
		}
	}
}

// pollTick runs once per scheduler period. It expires stale overlay and
// detection windows, decides whether a poll should be issued, and enforces
// the consecutive-uninformative-polls cap.
func (m *RunMonitor) pollTick(ctx context.Context) {
	now := m.timeProvider.Now()

	m.mu.Lock()
	// A long-unconfirmed optimistic overlay falls back to the confirmed
	// snapshot rather than displaying a transitional status forever.
	if m.overlay != "" && now.Sub(m.overlaySetAt) > m.cfg.OverlaySettle {
		m.overlay = ""
		m.overlaySetAt = time.Time{}
	}
	// An exhausted detection window is a soft failure: clear the flags and
	// keep polling.
	abandoned := false
	if m.detectingRun != uuid.Nil && now.After(m.detectionDeadline) {
		m.clearDetectionLocked()
		abandoned = true
	}

	shouldPoll := !m.bus.Connected() ||
		(m.snapshot != nil && !m.snapshot.IsTerminal() && !m.showCompleted) ||
		m.detectingRun != uuid.Nil
	m.mu.Unlock()

	if abandoned {
		m.metrics.IncDetectionsAbandoned(ctx)
		m.logger.Warn(ctx, "Completion detection abandoned, resuming normal polling")
	}

	// The cap counts consecutive issued polls that produced nothing new.
	// Quiet ticks where no poll is warranted leave the counter alone, so a
	// connected idle scheduler keeps ticking as the push channel's fallback.
	if !shouldPoll {
		return
	}

	informative := m.pollOnce(ctx)

	m.mu.Lock()
	if informative {
		m.uninformative = 0
	} else {
		m.uninformative++
	}
	capped := m.uninformative >= m.cfg.MaxUninformativePolls
	if capped {
		m.uninformative = 0
		m.clearDetectionLocked()
	}
	m.mu.Unlock()

	if capped {
		m.logger.Warn(ctx, "Poll cap reached with no new information, stopping scheduler",
			"max_polls", m.cfg.MaxUninformativePolls)
		m.requestPollStop()
	}
}

// pollOnce issues one active-run query and feeds the result through the
// shared merge path. It returns whether the poll produced new information.
// A failed poll is logged and ignored; it neither stops nor resets the
// scheduler.
func (m *RunMonitor) pollOnce(ctx context.Context) bool {
	ctx, span := m.tracer.Start(ctx, "run_monitor.poll",
		trace.WithAttributes(attribute.String("resource_id", m.resourceID.String())))
	defer span.End()

	m.metrics.IncPollsIssued(ctx)

	snap, err := m.queries.ActiveRun(ctx, m.resourceID)
	switch {
	case errors.Is(err, analysis.ErrNoActiveRun):
		span.AddEvent("no_active_run")
		return m.handleRunMissing(ctx)

	case err != nil:
		m.metrics.IncPollFailures(ctx)
		m.logger.Warn(ctx, "Active run query failed, keeping last known state", "err", err)
		span.RecordError(err)
		return false
	}

	// A still-active run parked at its final batch is the stagnation
	// trigger: the executor finished but its terminal notification never
	// arrived.
	if snap.AtFinalBatch() && !snap.Status.IsTerminal() {
		if m.noteFinalBatchStagnation(ctx, snap) {
			return true
		}
	} else {
		m.mu.Lock()
		m.finalBatchSince = time.Time{}
		m.mu.Unlock()
	}

	// Polling is the second delivery path for the same logical lifecycle
	// events: the merge is idempotent on (run id, status), so a transition
	// already reported by the event channel no-ops here.
	return m.applySnapshot(ctx, snap, "poll")
}
