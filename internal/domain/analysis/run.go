// Package analysis contains the domain model for monitoring asynchronous
// log-analysis runs: the run snapshot, its status state machine, the pure
// merge function that reconciles snapshots arriving over independent
// channels, and the ports to the run executor and recovery storage.
package analysis

import (
	"time"

	"github.com/google/uuid"
)

// RunSnapshot is the canonical in-memory representation of one analysis run
// at a point in time. It is pure data; all mutation happens by merging
// snapshots through Merge so both the push and pull channels share one code
// path.
type RunSnapshot struct {
	RunID      uuid.UUID `json:"run_id"`
	ResourceID uuid.UUID `json:"resource_id"`
	OrgID      uuid.UUID `json:"org_id,omitempty"`
	UserID     uuid.UUID `json:"user_id,omitempty"`

	Status RunStatus `json:"status"`

	BatchSize    int `json:"batch_size"`
	CurrentBatch int `json:"current_batch"`
	TotalBatches int `json:"total_batches"`
	// MaxBatches is a user-imposed cap below the natural total. Zero means
	// no cap.
	MaxBatches int `json:"max_batches,omitempty"`

	TotalLines     int64 `json:"total_lines"`
	LinesProcessed int64 `json:"lines_processed"`
	IssuesFound    int   `json:"issues_found"`
	AlertsCreated  int   `json:"alerts_created"`

	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a copy of the snapshot. Snapshots contain no reference types
// beyond value fields, so a shallow copy is a full copy.
func (s *RunSnapshot) Clone() *RunSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// IsTerminal reports whether the snapshot has reached a terminal status.
func (s *RunSnapshot) IsTerminal() bool {
	return s != nil && s.Status.IsTerminal()
}

// EffectiveTotalBatches returns the number of batches the run will actually
// process, honoring a user-imposed MaxBatches cap when one is set.
func (s *RunSnapshot) EffectiveTotalBatches() int {
	if s == nil {
		return 0
	}
	if s.MaxBatches > 0 && s.MaxBatches < s.TotalBatches {
		return s.MaxBatches
	}
	return s.TotalBatches
}

// AtFinalBatch reports whether the run has reached (or passed) its final
// batch while still carrying a non-terminal status.
func (s *RunSnapshot) AtFinalBatch() bool {
	if s == nil || s.EffectiveTotalBatches() == 0 {
		return false
	}
	return s.CurrentBatch >= s.EffectiveTotalBatches()
}
