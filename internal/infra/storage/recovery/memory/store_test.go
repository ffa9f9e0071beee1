package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensoc/runwatch/internal/domain/analysis"
)

func TestMemoryRecoveryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	resourceID := uuid.New()

	snap := &analysis.RunSnapshot{
		RunID:      uuid.New(),
		ResourceID: resourceID,
		Status:     analysis.RunStatusCompleted,
	}
	require.NoError(t, store.SaveTerminalRun(ctx, resourceID, snap))

	loaded, err := store.TerminalRun(ctx, resourceID)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
	assert.NotSame(t, snap, loaded, "store must hand out copies")

	show, err := store.ShowCompleted(ctx, resourceID)
	require.NoError(t, err)
	assert.True(t, show)
}

func TestMemoryRecoveryStoreMissingEntries(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()

	_, err := store.TerminalRun(ctx, uuid.New())
	assert.ErrorIs(t, err, analysis.ErrNoTerminalRun)

	show, err := store.ShowCompleted(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, show)
}

func TestMemoryRecoveryStoreFlagWithoutSnapshot(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	resourceID := uuid.New()

	require.NoError(t, store.SetShowCompleted(ctx, resourceID, true))

	show, err := store.ShowCompleted(ctx, resourceID)
	require.NoError(t, err)
	assert.True(t, show)

	_, err = store.TerminalRun(ctx, resourceID)
	assert.ErrorIs(t, err, analysis.ErrNoTerminalRun)
}

func TestMemoryRecoveryStoreClear(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	resourceID := uuid.New()

	snap := &analysis.RunSnapshot{RunID: uuid.New(), ResourceID: resourceID, Status: analysis.RunStatusCancelled}
	require.NoError(t, store.SaveTerminalRun(ctx, resourceID, snap))
	require.NoError(t, store.Clear(ctx, resourceID))

	_, err := store.TerminalRun(ctx, resourceID)
	assert.ErrorIs(t, err, analysis.ErrNoTerminalRun)

	show, err := store.ShowCompleted(ctx, resourceID)
	require.NoError(t, err)
	assert.False(t, show)
}
