package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSnapshotClone(t *testing.T) {
	t.Parallel()

	var nilSnap *RunSnapshot
	assert.Nil(t, nilSnap.Clone())

	snap := snapshotFixture(RunStatusRunning)
	clone := snap.Clone()
	require.NotSame(t, snap, clone)
	assert.Equal(t, snap, clone)

	clone.CurrentBatch = 99
	assert.Equal(t, 3, snap.CurrentBatch)
}

func TestRunSnapshotEffectiveTotalBatches(t *testing.T) {
	t.Parallel()

	var nilSnap *RunSnapshot
	assert.Zero(t, nilSnap.EffectiveTotalBatches())

	snap := snapshotFixture(RunStatusRunning)
	assert.Equal(t, 10, snap.EffectiveTotalBatches())

	snap.MaxBatches = 6
	assert.Equal(t, 6, snap.EffectiveTotalBatches())

	snap.MaxBatches = 50
	assert.Equal(t, 10, snap.EffectiveTotalBatches(), "cap above the natural total is inert")
}

func TestRunSnapshotAtFinalBatch(t *testing.T) {
	t.Parallel()

	var nilSnap *RunSnapshot
	assert.False(t, nilSnap.AtFinalBatch())

	snap := snapshotFixture(RunStatusRunning)
	assert.False(t, snap.AtFinalBatch())

	snap.CurrentBatch = 10
	assert.True(t, snap.AtFinalBatch())

	snap.CurrentBatch = 8
	snap.MaxBatches = 8
	assert.True(t, snap.AtFinalBatch())

	snap.TotalBatches = 0
	snap.MaxBatches = 0
	assert.False(t, snap.AtFinalBatch(), "unknown totals never look final")
}
