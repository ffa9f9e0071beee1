package analysis

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNoActiveRun is returned by RunQueryService when the resource currently
// has no active analysis run. Absence of a run is meaningful input for
// completion detection, not a transport failure.
var ErrNoActiveRun = errors.New("no active analysis run")

// ErrNoTerminalRun is returned by RecoveryStore when no terminal snapshot
// has been persisted for the resource.
var ErrNoTerminalRun = errors.New("no terminal run recorded")

// RunQueryService is the pull channel: a point-in-time query against the
// run record service.
type RunQueryService interface {
	// ActiveRun returns the snapshot of the resource's active run, or
	// ErrNoActiveRun when the server has none on record.
	ActiveRun(ctx context.Context, resourceID uuid.UUID) (*RunSnapshot, error)
}

// RunCommandService issues user-initiated commands against the run executor.
// Commands are acknowledged, not synchronously applied; the resulting state
// change arrives later over the event or poll channel.
type RunCommandService interface {
	Pause(ctx context.Context, runID uuid.UUID) error
	Resume(ctx context.Context, runID uuid.UUID) error
	Cancel(ctx context.Context, runID uuid.UUID) error
	UpdateBatchSize(ctx context.Context, runID uuid.UUID, size int) error
}

// RecoveryStore is a scoped key/value persistence surface keyed by resource
// id. It survives a full reload of the monitoring context and holds exactly
// two logical entries per resource: the serialized terminal snapshot and a
// flag controlling whether completed results are shown on next load.
type RecoveryStore interface {
	// SaveTerminalRun persists the terminal snapshot for the resource and
	// marks completed results as visible on next load. Writes are
	// last-writer-wins; a terminal snapshot is written at most once per run.
	SaveTerminalRun(ctx context.Context, resourceID uuid.UUID, snap *RunSnapshot) error

	// TerminalRun loads the persisted terminal snapshot, returning
	// ErrNoTerminalRun when none exists.
	TerminalRun(ctx context.Context, resourceID uuid.UUID) (*RunSnapshot, error)

	// ShowCompleted reports whether completed results should be shown on
	// next load. False (without error) when no entry exists.
	ShowCompleted(ctx context.Context, resourceID uuid.UUID) (bool, error)

	// SetShowCompleted updates the visibility flag without touching the
	// snapshot entry.
	SetShowCompleted(ctx context.Context, resourceID uuid.UUID, show bool) error

	// Clear removes both entries for the resource. Called when the user
	// starts a new analysis.
	Clear(ctx context.Context, resourceID uuid.UUID) error
}

// StatsNotifier receives one-way lines-processed notifications for the
// statistics rollup. Implementations must not block; failures are the
// notifier's concern, not the monitor's.
type StatsNotifier interface {
	RecordLinesProcessed(resourceID uuid.UUID, linesProcessed int64)
}
