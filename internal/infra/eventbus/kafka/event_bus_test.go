package kafka

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/opensoc/runwatch/internal/domain/analysis"
	"github.com/opensoc/runwatch/internal/domain/events"
	"github.com/opensoc/runwatch/internal/infra/eventbus/serialization"
	"github.com/opensoc/runwatch/pkg/common/logger"
)

type noopBusMetrics struct{}

func (noopBusMetrics) IncMessagePublished(context.Context, string) {}
func (noopBusMetrics) IncMessageConsumed(context.Context, string)  {}
func (noopBusMetrics) IncPublishError(context.Context, string)     {}
func (noopBusMetrics) IncConsumeError(context.Context, string)     {}

// blockingConsumerGroup parks Consume until the context is cancelled, which
// is all the consume loop needs during producer-side tests.
type blockingConsumerGroup struct{ errs chan error }

func newBlockingConsumerGroup() *blockingConsumerGroup {
	return &blockingConsumerGroup{errs: make(chan error)}
}

func (g *blockingConsumerGroup) Consume(ctx context.Context, _ []string, _ sarama.ConsumerGroupHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (g *blockingConsumerGroup) Errors() <-chan error      { return g.errs }
func (g *blockingConsumerGroup) Close() error              { return nil }
func (g *blockingConsumerGroup) Pause(map[string][]int32)  {}
func (g *blockingConsumerGroup) Resume(map[string][]int32) {}
func (g *blockingConsumerGroup) PauseAll()                 {}
func (g *blockingConsumerGroup) ResumeAll()                {}

type unmappedEvent struct{}

func (unmappedEvent) EventType() events.EventType { return "Unmapped" }
func (unmappedEvent) OccurredAt() time.Time       { return time.Now() }
func (unmappedEvent) ResourceID() uuid.UUID       { return uuid.Nil }

func newTestBus(t *testing.T) (*EventBus, *mocks.SyncProducer) {
	t.Helper()

	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	tracer := noop.NewTracerProvider().Tracer("test")

	cfg := &EventBusConfig{
		Brokers:        []string{"localhost:9092"},
		LifecycleTopic: "analysis-run-lifecycle",
		ProgressTopic:  "analysis-run-progress",
		GroupID:        "test-group",
		ClientID:       "test-client",
		ServiceType:    "test",
	}

	bus, err := NewEventBus(producer, newBlockingConsumerGroup(), cfg, log, noopBusMetrics{}, tracer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	return bus, producer
}

func TestEventBusRequiresMetrics(t *testing.T) {
	t.Parallel()

	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	tracer := noop.NewTracerProvider().Tracer("test")
	cfg := &EventBusConfig{LifecycleTopic: "lifecycle", ProgressTopic: "progress"}

	_, err := NewEventBus(nil, nil, cfg, log, nil, tracer)
	assert.Error(t, err)
}

func TestPublishRoutesByEventType(t *testing.T) {
	t.Parallel()

	bus, producer := newTestBus(t)
	resourceID := uuid.New()

	// A lifecycle event lands on the lifecycle topic, keyed by resource.
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "analysis-run-lifecycle", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, resourceID.String(), string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		var env serialization.Envelope
		require.NoError(t, json.Unmarshal(value, &env))
		assert.Equal(t, analysis.EventTypeRunCompleted, env.EventType)
		assert.Equal(t, resourceID, env.ResourceID)
		return nil
	})

	evt := analysis.NewRunCompletedEvent(resourceID, uuid.New(), 10000, 4, 1)
	require.NoError(t, bus.Publish(context.Background(), evt))

	// A batch event lands on the progress topic.
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "analysis-run-progress", msg.Topic)
		return nil
	})

	batch := analysis.NewBatchCompletedEvent(resourceID, uuid.New(), 4, 10, 4000, 1, 0, time.Second)
	require.NoError(t, bus.Publish(context.Background(), batch))
}

func TestPublishHonorsKeyAndHeaderOptions(t *testing.T) {
	t.Parallel()

	bus, producer := newTestBus(t)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "custom-key", string(key))

		found := false
		for _, h := range msg.Headers {
			if string(h.Key) == "origin" {
				found = true
				assert.Equal(t, "test", string(h.Value))
			}
		}
		assert.True(t, found, "origin header attached")
		return nil
	})

	evt := analysis.NewRunPausedEvent(uuid.New(), uuid.New())
	err := bus.Publish(context.Background(), evt,
		events.WithKey("custom-key"),
		events.WithHeaders(map[string]string{"origin": "test"}),
	)
	require.NoError(t, err)
}

func TestPublishUnmappedEventType(t *testing.T) {
	t.Parallel()

	bus, _ := newTestBus(t)
	err := bus.Publish(context.Background(), unmappedEvent{})
	assert.Error(t, err)
}

func TestPublishSendFailure(t *testing.T) {
	t.Parallel()

	bus, producer := newTestBus(t)
	producer.ExpectSendMessageAndFail(sarama.ErrBrokerNotAvailable)

	evt := analysis.NewRunPausedEvent(uuid.New(), uuid.New())
	err := bus.Publish(context.Background(), evt)
	assert.ErrorIs(t, err, sarama.ErrBrokerNotAvailable)
}

func TestSubscribeValidation(t *testing.T) {
	t.Parallel()

	bus, _ := newTestBus(t)

	_, err := bus.Subscribe(analysis.LifecycleEventTypes(), uuid.New(), nil)
	assert.Error(t, err, "nil handler rejected")

	_, err = bus.Subscribe([]events.EventType{"Unmapped"}, uuid.New(),
		func(context.Context, events.DomainEvent) error { return nil })
	assert.Error(t, err, "unmapped event type rejected")
}

func TestDispatchFiltersByResourceAndType(t *testing.T) {
	t.Parallel()

	bus, _ := newTestBus(t)
	mine := uuid.New()

	var mineCount, wildcardCount, completedOnlyCount int
	_, err := bus.Subscribe(analysis.LifecycleEventTypes(), mine,
		func(context.Context, events.DomainEvent) error { mineCount++; return nil })
	require.NoError(t, err)

	_, err = bus.Subscribe(analysis.LifecycleEventTypes(), uuid.Nil,
		func(context.Context, events.DomainEvent) error { wildcardCount++; return nil })
	require.NoError(t, err)

	_, err = bus.Subscribe([]events.EventType{analysis.EventTypeRunCompleted}, mine,
		func(context.Context, events.DomainEvent) error { completedOnlyCount++; return nil })
	require.NoError(t, err)

	ctx := context.Background()
	bus.dispatch(ctx, "analysis-run-lifecycle", analysis.NewRunPausedEvent(mine, uuid.New()))
	bus.dispatch(ctx, "analysis-run-lifecycle", analysis.NewRunPausedEvent(uuid.New(), uuid.New()))
	bus.dispatch(ctx, "analysis-run-lifecycle", analysis.NewRunCompletedEvent(mine, uuid.New(), 1, 0, 0))

	assert.Equal(t, 2, mineCount, "one paused plus one completed for this resource")
	assert.Equal(t, 3, wildcardCount, "wildcard sees everything")
	assert.Equal(t, 1, completedOnlyCount)
}

func TestUnsubscribeStopsDispatch(t *testing.T) {
	t.Parallel()

	bus, _ := newTestBus(t)
	resourceID := uuid.New()

	var count int
	id, err := bus.Subscribe(analysis.LifecycleEventTypes(), resourceID,
		func(context.Context, events.DomainEvent) error { count++; return nil })
	require.NoError(t, err)

	require.NoError(t, bus.Unsubscribe(id))
	bus.dispatch(context.Background(), "analysis-run-lifecycle", analysis.NewRunPausedEvent(resourceID, uuid.New()))
	assert.Zero(t, count)
}
