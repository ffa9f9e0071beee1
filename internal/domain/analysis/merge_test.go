package analysis

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotFixture(status RunStatus) *RunSnapshot {
	return &RunSnapshot{
		RunID:          uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		ResourceID:     uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		Status:         status,
		BatchSize:      1000,
		CurrentBatch:   3,
		TotalBatches:   10,
		TotalLines:     10000,
		LinesProcessed: 3000,
		IssuesFound:    4,
		AlertsCreated:  1,
		StartTime:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC),
	}
}

func TestMergeSeedAndNil(t *testing.T) {
	t.Parallel()

	current := snapshotFixture(RunStatusRunning)

	next, changed := Merge(current, nil)
	assert.False(t, changed)
	assert.Same(t, current, next)

	incoming := snapshotFixture(RunStatusRunning)
	next, changed = Merge(nil, incoming)
	require.True(t, changed)
	assert.Equal(t, incoming, next)
	assert.NotSame(t, incoming, next, "seeded snapshot must be a copy")
}

func TestMergeDuplicateIsNoOp(t *testing.T) {
	t.Parallel()

	current := snapshotFixture(RunStatusRunning)
	duplicate := current.Clone()

	next, changed := Merge(current, duplicate)
	assert.False(t, changed)
	assert.Same(t, current, next)
}

func TestMergeTerminalIsImmutable(t *testing.T) {
	t.Parallel()

	current := snapshotFixture(RunStatusCompleted)

	incoming := snapshotFixture(RunStatusRunning)
	incoming.CurrentBatch = 9
	incoming.LinesProcessed = 9000
	incoming.UpdatedAt = current.UpdatedAt.Add(time.Minute)

	next, changed := Merge(current, incoming)
	assert.False(t, changed)
	assert.Same(t, current, next)
	assert.Equal(t, RunStatusCompleted, next.Status)
	assert.Equal(t, 3, next.CurrentBatch)
}

func TestMergeDifferentRun(t *testing.T) {
	t.Parallel()

	t.Run("active run is not displaced", func(t *testing.T) {
		t.Parallel()
		current := snapshotFixture(RunStatusRunning)
		other := snapshotFixture(RunStatusQueued)
		other.RunID = uuid.New()

		next, changed := Merge(current, other)
		assert.False(t, changed)
		assert.Same(t, current, next)
	})

	t.Run("terminal run yields to new run", func(t *testing.T) {
		t.Parallel()
		current := snapshotFixture(RunStatusCancelled)
		other := snapshotFixture(RunStatusQueued)
		other.RunID = uuid.New()
		other.CurrentBatch = 0
		other.LinesProcessed = 0

		next, changed := Merge(current, other)
		require.True(t, changed)
		assert.Equal(t, other.RunID, next.RunID)
		assert.Equal(t, RunStatusQueued, next.Status)
		assert.Equal(t, 0, next.CurrentBatch)
	})
}

func TestMergeCountersNeverDecrease(t *testing.T) {
	t.Parallel()

	current := snapshotFixture(RunStatusRunning)

	stale := snapshotFixture(RunStatusRunning)
	stale.CurrentBatch = 1
	stale.LinesProcessed = 1000
	stale.IssuesFound = 1
	stale.AlertsCreated = 0

	next, changed := Merge(current, stale)
	assert.False(t, changed)
	assert.Equal(t, 3, next.CurrentBatch)
	assert.Equal(t, int64(3000), next.LinesProcessed)
	assert.Equal(t, 4, next.IssuesFound)
	assert.Equal(t, 1, next.AlertsCreated)

	fresh := snapshotFixture(RunStatusRunning)
	fresh.CurrentBatch = 5
	fresh.LinesProcessed = 5000
	fresh.IssuesFound = 7
	fresh.AlertsCreated = 2
	fresh.UpdatedAt = current.UpdatedAt.Add(time.Minute)

	next, changed = Merge(current, fresh)
	require.True(t, changed)
	assert.Equal(t, 5, next.CurrentBatch)
	assert.Equal(t, int64(5000), next.LinesProcessed)
	assert.Equal(t, 7, next.IssuesFound)
	assert.Equal(t, 2, next.AlertsCreated)
	assert.Equal(t, fresh.UpdatedAt, next.UpdatedAt)

	// The input snapshot must not have been mutated.
	assert.Equal(t, 3, current.CurrentBatch)
}

func TestMergeStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		from       RunStatus
		incoming   RunStatus
		want       RunStatus
		wantChange bool
	}{
		{name: "queued to running", from: RunStatusQueued, incoming: RunStatusRunning, want: RunStatusRunning, wantChange: true},
		{name: "running to pausing", from: RunStatusRunning, incoming: RunStatusPausing, want: RunStatusPausing, wantChange: true},
		{name: "pausing to paused", from: RunStatusPausing, incoming: RunStatusPaused, want: RunStatusPaused, wantChange: true},
		{name: "invalid transition dropped", from: RunStatusPaused, incoming: RunStatusQueued, want: RunStatusPaused, wantChange: false},
		{name: "terminal incoming always accepted", from: RunStatusPaused, incoming: RunStatusCompleted, want: RunStatusCompleted, wantChange: true},
		{name: "error accepted from any non-terminal", from: RunStatusCancelling, incoming: RunStatusError, want: RunStatusError, wantChange: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			current := snapshotFixture(tt.from)
			incoming := snapshotFixture(tt.incoming)
			incoming.UpdatedAt = current.UpdatedAt.Add(time.Second)

			next, changed := Merge(current, incoming)
			assert.Equal(t, tt.wantChange, changed)
			assert.Equal(t, tt.want, next.Status)
		})
	}
}

func TestMergeInvalidStatusStillMergesProgress(t *testing.T) {
	t.Parallel()

	current := snapshotFixture(RunStatusPaused)

	incoming := snapshotFixture(RunStatusQueued)
	incoming.CurrentBatch = 6
	incoming.LinesProcessed = 6000
	incoming.UpdatedAt = current.UpdatedAt.Add(time.Second)

	next, changed := Merge(current, incoming)
	require.True(t, changed)
	assert.Equal(t, RunStatusPaused, next.Status, "invalid status change must be dropped")
	assert.Equal(t, 6, next.CurrentBatch)
	assert.Equal(t, int64(6000), next.LinesProcessed)
}

func TestMergeDimensionsAndIdentity(t *testing.T) {
	t.Parallel()

	current := snapshotFixture(RunStatusRunning)
	current.OrgID = uuid.Nil
	current.UserID = uuid.Nil

	incoming := snapshotFixture(RunStatusRunning)
	incoming.BatchSize = 500
	incoming.TotalBatches = 20
	incoming.TotalLines = 10500
	incoming.MaxBatches = 15
	incoming.OrgID = uuid.New()
	incoming.UserID = uuid.New()
	incoming.UpdatedAt = current.UpdatedAt.Add(time.Second)

	next, changed := Merge(current, incoming)
	require.True(t, changed)
	assert.Equal(t, 500, next.BatchSize)
	assert.Equal(t, 20, next.TotalBatches)
	assert.Equal(t, int64(10500), next.TotalLines)
	assert.Equal(t, 15, next.MaxBatches)
	assert.Equal(t, incoming.OrgID, next.OrgID)
	assert.Equal(t, incoming.UserID, next.UserID)

	// Zero-valued dimensions never clobber known ones.
	sparse := snapshotFixture(RunStatusRunning)
	sparse.BatchSize = 0
	sparse.TotalBatches = 0
	sparse.TotalLines = 0

	next2, changed := Merge(next, sparse)
	assert.False(t, changed)
	assert.Equal(t, 500, next2.BatchSize)
	assert.Equal(t, 20, next2.TotalBatches)
}

func TestMergeTerminalSetsEndTime(t *testing.T) {
	t.Parallel()

	t.Run("explicit end time wins", func(t *testing.T) {
		t.Parallel()
		current := snapshotFixture(RunStatusRunning)
		incoming := snapshotFixture(RunStatusCompleted)
		incoming.EndTime = current.UpdatedAt.Add(2 * time.Minute)
		incoming.UpdatedAt = current.UpdatedAt.Add(3 * time.Minute)

		next, changed := Merge(current, incoming)
		require.True(t, changed)
		assert.Equal(t, incoming.EndTime, next.EndTime)
	})

	t.Run("falls back to updated at", func(t *testing.T) {
		t.Parallel()
		current := snapshotFixture(RunStatusRunning)
		incoming := snapshotFixture(RunStatusCancelled)
		incoming.UpdatedAt = current.UpdatedAt.Add(time.Minute)

		next, changed := Merge(current, incoming)
		require.True(t, changed)
		assert.Equal(t, incoming.UpdatedAt, next.EndTime)
	})
}

func TestMergeKeepsEarliestStartTime(t *testing.T) {
	t.Parallel()

	current := snapshotFixture(RunStatusRunning)
	earlier := current.StartTime.Add(-time.Minute)

	incoming := snapshotFixture(RunStatusRunning)
	incoming.StartTime = earlier

	next, changed := Merge(current, incoming)
	require.True(t, changed)
	assert.Equal(t, earlier, next.StartTime)

	later := snapshotFixture(RunStatusRunning)
	later.StartTime = current.StartTime.Add(time.Hour)

	next2, changed := Merge(next, later)
	assert.False(t, changed)
	assert.Equal(t, earlier, next2.StartTime)
}
