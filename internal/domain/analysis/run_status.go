package analysis

import (
	"fmt"
)

// RunStatus represents the lifecycle state of an analysis run. It enables
// tracking of run lifecycle from queueing through completion, cancellation,
// or failure.
type RunStatus string

const (
	// RunStatusQueued indicates a run has been accepted but not yet started.
	RunStatusQueued RunStatus = "QUEUED"

	// RunStatusRunning indicates a run is actively processing batches.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusPausing indicates a pause was requested and the executor is
	// draining the current batch.
	RunStatusPausing RunStatus = "PAUSING"

	// RunStatusPaused indicates a run has been halted and can be resumed.
	RunStatusPaused RunStatus = "PAUSED"

	// RunStatusCancelling indicates a cancel was requested and the executor
	// is winding the run down.
	RunStatusCancelling RunStatus = "CANCELLING"

	// RunStatusCancelled indicates a run was cancelled before finishing.
	RunStatusCancelled RunStatus = "CANCELLED"

	// RunStatusCompleted indicates all batches finished successfully.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusError indicates the run encountered an unrecoverable error.
	RunStatusError RunStatus = "ERROR"
)

func (s RunStatus) String() string { return string(s) }

// ParseRunStatus converts a string to a RunStatus. Unknown values map to the
// empty status so callers can distinguish "server sent garbage" from a real
// state.
func ParseRunStatus(s string) RunStatus {
	switch s {
	case "QUEUED", "queued":
		return RunStatusQueued
	case "RUNNING", "running":
		return RunStatusRunning
	case "PAUSING", "pausing":
		return RunStatusPausing
	case "PAUSED", "paused":
		return RunStatusPaused
	case "CANCELLING", "cancelling":
		return RunStatusCancelling
	case "CANCELLED", "cancelled":
		return RunStatusCancelled
	case "COMPLETED", "completed":
		return RunStatusCompleted
	case "ERROR", "error":
		return RunStatusError
	default:
		return ""
	}
}

// IsTerminal reports whether the status admits no further mutation.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusCancelled || s == RunStatusError
}

// IsTransitional reports whether the status may be held optimistically by the
// action controller before the server confirms it.
func (s RunStatus) IsTransitional() bool {
	return s == RunStatusQueued || s == RunStatusPausing || s == RunStatusCancelling
}

// ValidateTransition checks if a status transition is valid and returns an
// error if not.
func (s RunStatus) ValidateTransition(target RunStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid run status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target
// status. It enforces the run lifecycle rules to prevent invalid state
// changes. Any non-terminal state may move to ERROR.
func (s RunStatus) isValidTransition(target RunStatus) bool {
	if target == RunStatusError {
		return !s.IsTerminal()
	}

	switch s {
	case RunStatusQueued:
		return target == RunStatusRunning || target == RunStatusCancelling
	case RunStatusRunning:
		return target == RunStatusPausing || target == RunStatusPaused ||
			target == RunStatusCancelling || target == RunStatusCompleted
	case RunStatusPausing:
		return target == RunStatusPaused || target == RunStatusCancelling
	case RunStatusPaused:
		return target == RunStatusRunning || target == RunStatusCancelling
	case RunStatusCancelling:
		return target == RunStatusCancelled
	case RunStatusCompleted, RunStatusCancelled, RunStatusError:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
