package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensoc/runwatch/internal/domain/analysis"
	"github.com/opensoc/runwatch/internal/domain/events"
)

func TestBrokerDeliversToMatchingSubscription(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	resourceID := uuid.New()
	runID := uuid.New()

	var received []events.DomainEvent
	_, err := broker.Subscribe(analysis.LifecycleEventTypes(), resourceID,
		func(_ context.Context, evt events.DomainEvent) error {
			received = append(received, evt)
			return nil
		})
	require.NoError(t, err)

	evt := analysis.NewRunPausedEvent(resourceID, runID)
	require.NoError(t, broker.Publish(context.Background(), evt))

	require.Len(t, received, 1)
	assert.Equal(t, evt.EventType(), received[0].EventType())
	assert.Equal(t, resourceID, received[0].ResourceID())
}

func TestBrokerFiltersByResource(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	mine := uuid.New()
	theirs := uuid.New()

	var count int
	_, err := broker.Subscribe(analysis.LifecycleEventTypes(), mine,
		func(context.Context, events.DomainEvent) error {
			count++
			return nil
		})
	require.NoError(t, err)

	require.NoError(t, broker.Publish(context.Background(), analysis.NewRunPausedEvent(theirs, uuid.New())))
	assert.Zero(t, count)

	require.NoError(t, broker.Publish(context.Background(), analysis.NewRunPausedEvent(mine, uuid.New())))
	assert.Equal(t, 1, count)
}

func TestBrokerWildcardResource(t *testing.T) {
	t.Parallel()

	broker := NewBroker()

	var count int
	_, err := broker.Subscribe(analysis.LifecycleEventTypes(), uuid.Nil,
		func(context.Context, events.DomainEvent) error {
			count++
			return nil
		})
	require.NoError(t, err)

	require.NoError(t, broker.Publish(context.Background(), analysis.NewRunPausedEvent(uuid.New(), uuid.New())))
	require.NoError(t, broker.Publish(context.Background(), analysis.NewRunPausedEvent(uuid.New(), uuid.New())))
	assert.Equal(t, 2, count)
}

func TestBrokerFiltersByEventType(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	resourceID := uuid.New()

	var count int
	_, err := broker.Subscribe([]events.EventType{analysis.EventTypeRunCompleted}, resourceID,
		func(context.Context, events.DomainEvent) error {
			count++
			return nil
		})
	require.NoError(t, err)

	require.NoError(t, broker.Publish(context.Background(), analysis.NewRunPausedEvent(resourceID, uuid.New())))
	assert.Zero(t, count)

	require.NoError(t, broker.Publish(context.Background(),
		analysis.NewRunCompletedEvent(resourceID, uuid.New(), 100, 1, 0)))
	assert.Equal(t, 1, count)
}

func TestBrokerPropagatesHandlerError(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	resourceID := uuid.New()
	wantErr := errors.New("handler exploded")

	_, err := broker.Subscribe(analysis.LifecycleEventTypes(), resourceID,
		func(context.Context, events.DomainEvent) error { return wantErr })
	require.NoError(t, err)

	err = broker.Publish(context.Background(), analysis.NewRunPausedEvent(resourceID, uuid.New()))
	assert.ErrorIs(t, err, wantErr)
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	resourceID := uuid.New()

	var count int
	id, err := broker.Subscribe(analysis.LifecycleEventTypes(), resourceID,
		func(context.Context, events.DomainEvent) error {
			count++
			return nil
		})
	require.NoError(t, err)

	require.NoError(t, broker.Unsubscribe(id))
	require.NoError(t, broker.Publish(context.Background(), analysis.NewRunPausedEvent(resourceID, uuid.New())))
	assert.Zero(t, count)
}

func TestBrokerRejectsNilHandler(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	_, err := broker.Subscribe(analysis.LifecycleEventTypes(), uuid.New(), nil)
	assert.Error(t, err)
}

func TestBrokerClose(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	assert.True(t, broker.Connected())

	require.NoError(t, broker.Close())
	assert.False(t, broker.Connected())

	err := broker.Publish(context.Background(), analysis.NewRunPausedEvent(uuid.New(), uuid.New()))
	assert.Error(t, err)

	_, err = broker.Subscribe(analysis.LifecycleEventTypes(), uuid.New(), func(context.Context, events.DomainEvent) error { return nil })
	assert.Error(t, err)
}
