// Package monitor implements the synchronization engine that tracks one
// analysis run per monitored resource. It reconciles two unreliable,
// independent channels (a push event stream and a periodic status poll) into
// a single authoritative run snapshot, infers completion when the
// authoritative terminal event is lost, and applies user commands
// optimistically.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensoc/runwatch/internal/domain/analysis"
	"github.com/opensoc/runwatch/internal/domain/events"
	"github.com/opensoc/runwatch/pkg/common"
	"github.com/opensoc/runwatch/pkg/common/logger"
)

type timeProvider interface {
	Now() time.Time
}

// realTimeProvider is a real implementation of the timeProvider interface.
type realTimeProvider struct{}

// Now returns the current time.
func (realTimeProvider) Now() time.Time { return time.Now().UTC() }

// Config carries the timing knobs of the monitor. The zero value is not
// usable; call DefaultConfig.
type Config struct {
	// PollInterval is the fixed period of the poll scheduler.
	PollInterval time.Duration

	// StagnationTimeout is how long a run may sit at its final batch with a
	// non-terminal status before completion is synthesized.
	StagnationTimeout time.Duration

	// DetectionWindow bounds a completion-detection attempt. If no terminal
	// snapshot has been committed when it elapses, detection state is
	// cleared and normal polling resumes.
	DetectionWindow time.Duration

	// MaxUninformativePolls caps consecutive polls that produce no new
	// information before the scheduler stops itself.
	MaxUninformativePolls int

	// OverlaySettle bounds how long an optimistic status overlay may be
	// displayed without server confirmation.
	OverlaySettle time.Duration

	// FastRefreshDelay is how long after a batch-size command the monitor
	// issues an out-of-cadence status refresh.
	FastRefreshDelay time.Duration

	// CommandRPS and CommandBurst bound how quickly user commands are
	// forwarded to the executor.
	CommandRPS   float64
	CommandBurst int
}

// DefaultConfig returns the production timing budget.
func DefaultConfig() Config {
	return Config{
		PollInterval:          5 * time.Second,
		StagnationTimeout:     15 * time.Second,
		DetectionWindow:       30 * time.Second,
		MaxUninformativePolls: 50,
		OverlaySettle:         10 * time.Second,
		FastRefreshDelay:      500 * time.Millisecond,
		CommandRPS:            2,
		CommandBurst:          4,
	}
}

// RunMonitor owns the full monitoring lifecycle for one resource: the event
// subscription, the poll scheduler, completion detection, the optimistic
// command overlay, and the recovery store round-trip. All snapshot mutation
// funnels through a single read-merge-commit cycle guarded by one mutex, so
// whichever channel delivers a given logical event first wins and the
// duplicate no-ops.
type RunMonitor struct {
	resourceID uuid.UUID

	queries  analysis.RunQueryService
	commands analysis.RunCommandService
	bus      events.EventBus
	recovery analysis.RecoveryStore
	// stats receives one-way lines-processed notifications. Optional.
	stats analysis.StatsNotifier

	cfg     Config
	limiter *common.RateLimiter

	mu sync.Mutex

	// snapshot is the authoritative merged view, nil while idle.
	snapshot *analysis.RunSnapshot
	// lastKnown is the most recent snapshot seen while the run was active,
	// retained after the run disappears from the active-run query so
	// completion detection has a basis for synthesis.
	lastKnown *analysis.RunSnapshot
	ledger    *analysis.RecentBatchLedger

	// overlay is the transient optimistic status applied after a user
	// command, empty when none is in effect.
	overlay      analysis.RunStatus
	overlaySetAt time.Time
	// pendingBatchSize is an optimistic batch-size display value awaiting
	// server revalidation. Zero when none.
	pendingBatchSize int

	// showCompleted is set once a terminal snapshot has been shown (or
	// loaded back from the recovery store).
	showCompleted bool

	// Poll scheduler state.
	pollCancel     context.CancelFunc
	pollDone       chan struct{}
	uninformative  int
	refreshTimer   *time.Timer
	subscriptionID events.SubscriptionID
	subscribed     bool
	started        bool

	// Completion detection state. Both triggers (vanished run, final-batch
	// stagnation) share one window keyed by run id.
	detectingRun      uuid.UUID
	detectionDeadline time.Time
	finalBatchSince   time.Time

	timeProvider timeProvider
	metrics      Metrics
	tracer       trace.Tracer
	logger       *logger.Logger
}

// Option defines functional options for configuring a new RunMonitor.
type Option func(*RunMonitor)

// WithTimeProvider sets a custom time provider, used by tests to control
// staleness and settle windows.
func WithTimeProvider(tp timeProvider) Option {
	return func(m *RunMonitor) { m.timeProvider = tp }
}

// WithStatsNotifier attaches a statistics rollup consumer.
func WithStatsNotifier(n analysis.StatsNotifier) Option {
	return func(m *RunMonitor) { m.stats = n }
}

// NewRunMonitor creates a monitor for a single resource. Start must be
// called before the monitor observes anything.
func NewRunMonitor(
	resourceID uuid.UUID,
	queries analysis.RunQueryService,
	commands analysis.RunCommandService,
	bus events.EventBus,
	recovery analysis.RecoveryStore,
	cfg Config,
	metrics Metrics,
	tracer trace.Tracer,
	log *logger.Logger,
	opts ...Option,
) *RunMonitor {
	m := &RunMonitor{
		resourceID:   resourceID,
		queries:      queries,
		commands:     commands,
		bus:          bus,
		recovery:     recovery,
		cfg:          cfg,
		limiter:      common.NewRateLimiter(cfg.CommandRPS, cfg.CommandBurst),
		ledger:       analysis.NewRecentBatchLedger(),
		timeProvider: realTimeProvider{},
		metrics:      metrics,
		tracer:       tracer,
		logger:       log.With("component", "run_monitor", "resource_id", resourceID.String()),
	}
	if m.metrics == nil {
		m.metrics = NoopMetrics{}
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start restores any persisted terminal snapshot, subscribes to the run
// lifecycle events for the resource, starts the poll scheduler, and issues
// one immediate poll to discover an in-flight run. It is not safe to call
// Start twice without an intervening Stop.
func (m *RunMonitor) Start(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "run_monitor.start",
		trace.WithAttributes(attribute.String("resource_id", m.resourceID.String())))
	defer span.End()

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("run monitor already started")
	}
	m.started = true
	m.mu.Unlock()

	m.restoreFromRecovery(ctx)

	subID, err := m.bus.Subscribe(analysis.LifecycleEventTypes(), m.resourceID, m.handleEvent)
	if err != nil {
		span.RecordError(err)
		return err
	}
	m.mu.Lock()
	m.subscriptionID = subID
	m.subscribed = true
	m.mu.Unlock()

	m.startPoller()
	m.pollOnce(ctx)

	m.logger.Info(ctx, "Run monitor started")
	return nil
}

// Stop synchronously halts the poll scheduler and removes the event
// subscription. After Stop returns, no timer or subscription owned by this
// monitor mutates state.
func (m *RunMonitor) Stop() {
	ctx := context.Background()

	m.stopPoller()

	m.mu.Lock()
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	subscribed := m.subscribed
	subID := m.subscriptionID
	m.subscribed = false
	m.started = false
	m.mu.Unlock()

	if subscribed {
		if err := m.bus.Unsubscribe(subID); err != nil {
			m.logger.Error(ctx, "Event subscription teardown failed", "err", err)
		}
	}

	m.logger.Info(ctx, "Run monitor stopped")
}

// Snapshot returns the displayed snapshot: the authoritative merged state
// with any optimistic overlay applied, or nil while the monitor is idle.
func (m *RunMonitor) Snapshot() *analysis.RunSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.displayedSnapshotLocked()
}

// Progress returns the derived progress projection for presentation. It is
// always synthesizable, even from a partial snapshot.
func (m *RunMonitor) Progress() analysis.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return analysis.BuildProgress(m.displayedSnapshotLocked(), m.ledger)
}

// RecentBatches returns the retained completed-batch records, oldest first.
func (m *RunMonitor) RecentBatches() []analysis.BatchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.Records()
}

// ShowCompleted reports whether a terminal snapshot is being shown.
func (m *RunMonitor) ShowCompleted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.showCompleted
}

// StartNewAnalysis clears the recovery entries for the resource and resets
// the monitor to the idle meta-state, ready to observe a fresh run.
func (m *RunMonitor) StartNewAnalysis(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "run_monitor.start_new_analysis",
		trace.WithAttributes(attribute.String("resource_id", m.resourceID.String())))
	defer span.End()

	if err := m.recovery.Clear(ctx, m.resourceID); err != nil {
		span.RecordError(err)
		return err
	}

	m.mu.Lock()
	m.snapshot = nil
	m.lastKnown = nil
	m.overlay = ""
	m.overlaySetAt = time.Time{}
	m.pendingBatchSize = 0
	m.showCompleted = false
	m.uninformative = 0
	m.clearDetectionLocked()
	m.ledger.Reset()
	m.mu.Unlock()

	m.startPoller()

	m.logger.Info(ctx, "New analysis requested, monitor reset to idle")
	return nil
}

// Refresh issues an immediate out-of-cadence poll and restarts a scheduler
// that stopped after exhausting its uninformative-poll cap.
func (m *RunMonitor) Refresh(ctx context.Context) {
	m.mu.Lock()
	m.uninformative = 0
	m.mu.Unlock()

	m.startPoller()
	m.pollOnce(ctx)
}

// restoreFromRecovery loads a persisted terminal snapshot so a reloaded
// monitor shows the finished run instead of an empty idle state.
func (m *RunMonitor) restoreFromRecovery(ctx context.Context) {
	show, err := m.recovery.ShowCompleted(ctx, m.resourceID)
	if err != nil {
		m.logger.Error(ctx, "Recovery flag load failed", "err", err)
		return
	}
	if !show {
		return
	}

	snap, err := m.recovery.TerminalRun(ctx, m.resourceID)
	if err != nil {
		if !errors.Is(err, analysis.ErrNoTerminalRun) {
			m.logger.Error(ctx, "Recovery snapshot load failed", "err", err)
		}
		return
	}

	m.mu.Lock()
	m.snapshot = snap
	m.showCompleted = true
	m.mu.Unlock()

	m.logger.Info(ctx, "Terminal run restored from recovery store",
		"run_id", snap.RunID.String(), "status", snap.Status.String())
}

// applySnapshot is the single commit path for both channels: read the
// committed state, merge, commit, and run post-commit effects. It returns
// whether the authoritative snapshot changed.
func (m *RunMonitor) applySnapshot(ctx context.Context, incoming *analysis.RunSnapshot, source string) bool {
	m.mu.Lock()

	next, changed := analysis.Merge(m.snapshot, incoming)
	if !changed {
		m.mu.Unlock()
		return false
	}

	wasTerminal := m.snapshot.IsTerminal()
	m.snapshot = next

	if !next.IsTerminal() {
		m.lastKnown = next
	}

	// A confirmed non-transitional status settles any optimistic overlay.
	if m.overlay != "" && !next.Status.IsTransitional() {
		m.overlay = ""
		m.overlaySetAt = time.Time{}
	}
	if m.pendingBatchSize != 0 && next.BatchSize == m.pendingBatchSize {
		m.pendingBatchSize = 0
	}

	nowTerminal := next.IsTerminal() && !wasTerminal
	if nowTerminal {
		m.showCompleted = true
		m.clearDetectionLocked()
	}
	m.mu.Unlock()

	m.logger.Debug(ctx, "Snapshot committed",
		"source", source,
		"run_id", next.RunID.String(),
		"status", next.Status.String(),
		"current_batch", next.CurrentBatch,
	)

	if nowTerminal {
		m.finalizeTerminal(ctx, next)
	}

	return true
}

// finalizeTerminal persists the one terminal snapshot per run and stops the
// poll scheduler. Merge guarantees this executes at most once per run.
func (m *RunMonitor) finalizeTerminal(ctx context.Context, snap *analysis.RunSnapshot) {
	ctx, span := m.tracer.Start(ctx, "run_monitor.finalize_terminal",
		trace.WithAttributes(
			attribute.String("run_id", snap.RunID.String()),
			attribute.String("status", snap.Status.String()),
		))
	defer span.End()

	if err := m.recovery.SaveTerminalRun(ctx, m.resourceID, snap); err != nil {
		// Not fatal: the in-memory terminal snapshot stays authoritative,
		// only the reload path loses it.
		m.logger.Error(ctx, "Terminal snapshot persistence failed", "err", err)
		span.RecordError(err)
	}

	m.metrics.IncTerminalRuns(ctx, snap.Status)
	// The terminal snapshot may have been committed by the poll loop's own
	// tick; a blocking stop would wait on the very goroutine running this.
	m.requestPollStop()

	m.logger.Info(ctx, "Run reached terminal state",
		"run_id", snap.RunID.String(),
		"status", snap.Status.String(),
		"lines_processed", snap.LinesProcessed,
		"issues_found", snap.IssuesFound,
	)
}

// displayedSnapshotLocked overlays optimistic command state onto the
// authoritative snapshot. Callers must hold m.mu.
func (m *RunMonitor) displayedSnapshotLocked() *analysis.RunSnapshot {
	if m.snapshot == nil {
		return nil
	}
	if m.overlay == "" && m.pendingBatchSize == 0 {
		return m.snapshot.Clone()
	}

	s := m.snapshot.Clone()
	if m.overlay != "" {
		s.Status = m.overlay
	}
	if m.pendingBatchSize > 0 {
		s.BatchSize = m.pendingBatchSize
	}
	return s
}

func (m *RunMonitor) clearDetectionLocked() {
	m.detectingRun = uuid.Nil
	m.detectionDeadline = time.Time{}
	m.finalBatchSince = time.Time{}
}
