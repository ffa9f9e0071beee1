package analysis

import "github.com/google/uuid"

// Merge reconciles an incoming snapshot observation against the current
// authoritative snapshot and returns the next authoritative snapshot along
// with whether anything changed. It is the single code path for both the
// push-event and poll channels, which makes duplicate delivery harmless:
//
//   - A nil incoming observation never changes anything.
//   - A nil current snapshot is seeded from the incoming one.
//   - A terminal current snapshot is immutable; duplicates of the terminal
//     observation (same run, same status) are no-ops.
//   - An incoming snapshot for a different run replaces the current one only
//     if the current run already ended; an active run is never displaced by
//     an observation for another run id.
//   - CurrentBatch, LinesProcessed, IssuesFound and AlertsCreated never
//     decrease. Dimension fields (totals, batch size) accept the incoming
//     value when it is present.
//   - Status moves only along the run state machine; a terminal incoming
//     status is accepted from any non-terminal state since the server is
//     authoritative about how a run ended.
func Merge(current, incoming *RunSnapshot) (*RunSnapshot, bool) {
	if incoming == nil {
		return current, false
	}
	if current == nil {
		return incoming.Clone(), true
	}

	if incoming.RunID != current.RunID {
		// Observation for a different run. While the current run is live it
		// stays authoritative; once it ended, the new run takes over.
		if current.IsTerminal() {
			return incoming.Clone(), true
		}
		return current, false
	}

	if current.IsTerminal() {
		return current, false
	}

	next := current.Clone()
	changed := false

	if incoming.Status != "" && incoming.Status != current.Status {
		switch {
		case incoming.Status.IsTerminal():
			next.Status = incoming.Status
			changed = true
		case current.Status.isValidTransition(incoming.Status):
			next.Status = incoming.Status
			changed = true
		}
		// Invalid non-terminal transitions are dropped on the floor; the
		// progress fields below still merge.
	}

	if incoming.CurrentBatch > next.CurrentBatch {
		next.CurrentBatch = incoming.CurrentBatch
		changed = true
	}
	if incoming.LinesProcessed > next.LinesProcessed {
		next.LinesProcessed = incoming.LinesProcessed
		changed = true
	}
	if incoming.IssuesFound > next.IssuesFound {
		next.IssuesFound = incoming.IssuesFound
		changed = true
	}
	if incoming.AlertsCreated > next.AlertsCreated {
		next.AlertsCreated = incoming.AlertsCreated
		changed = true
	}

	if incoming.TotalBatches > 0 && incoming.TotalBatches != next.TotalBatches {
		next.TotalBatches = incoming.TotalBatches
		changed = true
	}
	if incoming.TotalLines > 0 && incoming.TotalLines != next.TotalLines {
		next.TotalLines = incoming.TotalLines
		changed = true
	}
	if incoming.BatchSize > 0 && incoming.BatchSize != next.BatchSize {
		next.BatchSize = incoming.BatchSize
		changed = true
	}
	if incoming.MaxBatches > 0 && incoming.MaxBatches != next.MaxBatches {
		next.MaxBatches = incoming.MaxBatches
		changed = true
	}

	if current.OrgID == uuid.Nil && incoming.OrgID != uuid.Nil {
		next.OrgID = incoming.OrgID
		changed = true
	}
	if current.UserID == uuid.Nil && incoming.UserID != uuid.Nil {
		next.UserID = incoming.UserID
		changed = true
	}

	if !incoming.StartTime.IsZero() && (next.StartTime.IsZero() || incoming.StartTime.Before(next.StartTime)) {
		next.StartTime = incoming.StartTime
		changed = true
	}
	if incoming.ErrorMessage != "" && incoming.ErrorMessage != next.ErrorMessage {
		next.ErrorMessage = incoming.ErrorMessage
		changed = true
	}

	if next.Status.IsTerminal() {
		if !incoming.EndTime.IsZero() {
			next.EndTime = incoming.EndTime
		} else if !incoming.UpdatedAt.IsZero() {
			next.EndTime = incoming.UpdatedAt
		}
	}

	if changed {
		if incoming.UpdatedAt.After(next.UpdatedAt) {
			next.UpdatedAt = incoming.UpdatedAt
		}
		return next, true
	}

	return current, false
}
