package analysis

import "time"

// Progress is the derived projection exposed to presentation consumers.
// It is always synthesizable from whatever partial snapshot fields exist;
// missing data degrades the estimate rather than failing.
type Progress struct {
	Percentage             float64       `json:"percentage"`
	LinesProcessed         int64         `json:"lines_processed"`
	TotalLines             int64         `json:"total_lines"`
	CurrentBatch           int           `json:"current_batch"`
	TotalBatches           int           `json:"total_batches"`
	IssuesFound            int           `json:"issues_found"`
	AlertsCreated          int           `json:"alerts_created"`
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining"`
}

// BuildProgress derives a Progress projection from a snapshot and the recent
// batch ledger. A nil snapshot yields the zero projection. When the server
// has not supplied a final line count, lines processed fall back to
// CurrentBatch * BatchSize.
func BuildProgress(s *RunSnapshot, ledger *RecentBatchLedger) Progress {
	if s == nil {
		return Progress{}
	}

	totalBatches := s.EffectiveTotalBatches()

	lines := s.LinesProcessed
	if lines == 0 && s.CurrentBatch > 0 && s.BatchSize > 0 {
		lines = int64(s.CurrentBatch) * int64(s.BatchSize)
	}

	p := Progress{
		LinesProcessed: lines,
		TotalLines:     s.TotalLines,
		CurrentBatch:   s.CurrentBatch,
		TotalBatches:   totalBatches,
		IssuesFound:    s.IssuesFound,
		AlertsCreated:  s.AlertsCreated,
	}

	switch {
	case s.Status == RunStatusCompleted:
		p.Percentage = 100
	case s.TotalLines > 0:
		p.Percentage = clampPercent(float64(lines) / float64(s.TotalLines) * 100)
	case totalBatches > 0:
		p.Percentage = clampPercent(float64(s.CurrentBatch) / float64(totalBatches) * 100)
	}

	if ledger != nil && !s.Status.IsTerminal() {
		p.EstimatedTimeRemaining = ledger.EstimateRemaining(totalBatches - s.CurrentBatch)
	}

	return p
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
