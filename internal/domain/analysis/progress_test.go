package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildProgressNilSnapshot(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Progress{}, BuildProgress(nil, NewRecentBatchLedger()))
}

func TestBuildProgressPercentage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		setup    func(*RunSnapshot)
		wantPct  float64
		wantLine int64
	}{
		{
			name:     "line based when total lines known",
			setup:    func(s *RunSnapshot) {},
			wantPct:  30,
			wantLine: 3000,
		},
		{
			name: "batch based when total lines unknown",
			setup: func(s *RunSnapshot) {
				s.TotalLines = 0
				s.LinesProcessed = 0
				s.BatchSize = 0
			},
			wantPct:  30,
			wantLine: 0,
		},
		{
			name: "completed pins to one hundred",
			setup: func(s *RunSnapshot) {
				s.Status = RunStatusCompleted
				s.LinesProcessed = 4000
			},
			wantPct:  100,
			wantLine: 4000,
		},
		{
			name: "no dimensions at all",
			setup: func(s *RunSnapshot) {
				s.TotalLines = 0
				s.TotalBatches = 0
				s.CurrentBatch = 0
				s.LinesProcessed = 0
			},
			wantPct:  0,
			wantLine: 0,
		},
		{
			name: "overshoot clamps at one hundred",
			setup: func(s *RunSnapshot) {
				s.LinesProcessed = 12000
			},
			wantPct:  100,
			wantLine: 12000,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			snap := snapshotFixture(RunStatusRunning)
			tt.setup(snap)

			p := BuildProgress(snap, nil)
			assert.InDelta(t, tt.wantPct, p.Percentage, 0.01)
			assert.Equal(t, tt.wantLine, p.LinesProcessed)
		})
	}
}

func TestBuildProgressFallsBackToBatchTimesSize(t *testing.T) {
	t.Parallel()

	snap := snapshotFixture(RunStatusRunning)
	snap.LinesProcessed = 0

	p := BuildProgress(snap, nil)
	assert.Equal(t, int64(3000), p.LinesProcessed, "current batch times batch size")
	assert.InDelta(t, 30, p.Percentage, 0.01)
}

func TestBuildProgressHonorsMaxBatchesCap(t *testing.T) {
	t.Parallel()

	snap := snapshotFixture(RunStatusRunning)
	snap.TotalLines = 0
	snap.LinesProcessed = 0
	snap.BatchSize = 0
	snap.MaxBatches = 5

	p := BuildProgress(snap, nil)
	assert.Equal(t, 5, p.TotalBatches)
	assert.InDelta(t, 60, p.Percentage, 0.01)
}

func TestBuildProgressEstimatedTimeRemaining(t *testing.T) {
	t.Parallel()

	ledger := NewRecentBatchLedger()
	ledger.Append(BatchRecord{BatchNumber: 2, ProcessingTime: 2 * time.Second})
	ledger.Append(BatchRecord{BatchNumber: 3, ProcessingTime: 2 * time.Second})

	snap := snapshotFixture(RunStatusRunning)
	p := BuildProgress(snap, ledger)
	assert.Equal(t, 14*time.Second, p.EstimatedTimeRemaining, "seven batches remain")

	terminal := snapshotFixture(RunStatusCompleted)
	p = BuildProgress(terminal, ledger)
	assert.Zero(t, p.EstimatedTimeRemaining, "no estimate for ended runs")
}
