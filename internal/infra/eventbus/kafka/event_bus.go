// Package kafka provides a Kafka-based implementation of the event bus for asynchronous messaging.
package kafka

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensoc/runwatch/internal/domain/analysis"
	"github.com/opensoc/runwatch/internal/domain/events"
	"github.com/opensoc/runwatch/internal/infra/eventbus/kafka/tracing"
	"github.com/opensoc/runwatch/internal/infra/eventbus/serialization"
	"github.com/opensoc/runwatch/pkg/common/logger"
)

// EventBusMetrics defines metrics operations needed to monitor Kafka message handling.
// It enables tracking of successful and failed message publishing/consumption.
type EventBusMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncMessageConsumed(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
	IncConsumeError(ctx context.Context, topic string)
}

// EventBusConfig contains settings for connecting to and interacting with
// Kafka brokers. It defines the topics, consumer group, and client
// identifiers needed for message routing.
type EventBusConfig struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string

	// LifecycleTopic carries start, pause, cancel, and completion events.
	LifecycleTopic string
	// ProgressTopic carries the high-volume batch and progress events.
	ProgressTopic string

	// GroupID identifies the consumer group for this bus instance.
	GroupID string
	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string
	// ServiceType identifies the kind of service running the bus.
	ServiceType string
}

var _ events.EventBus = (*EventBus)(nil)

// EventBus implements the EventBus interface using Kafka as the underlying
// message broker. Subscriptions are resource-scoped: the bus consumes the
// run event topics once and fans each decoded event out to the handlers
// registered for its resource.
type EventBus struct {
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup

	// Maps domain event types to their Kafka topics.
	topicMap      map[events.EventType]string
	consumeTopics []string

	subsMu sync.RWMutex
	subs   map[events.SubscriptionID]*subscription

	// connected tracks whether a consumer group session is currently
	// established, so consumers can tell push delivery is down.
	connected atomic.Bool

	consumeCancel context.CancelFunc
	consumeDone   chan struct{}

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics EventBusMetrics
}

type subscription struct {
	eventTypes map[events.EventType]struct{}
	resourceID uuid.UUID
	handler    events.HandlerFunc
}

// NewEventBus creates a Kafka-based event bus from an established producer
// and consumer group. Consumption starts immediately; handlers registered
// later receive only events decoded after their registration.
func NewEventBus(
	producer sarama.SyncProducer,
	consumerGroup sarama.ConsumerGroup,
	cfg *EventBusConfig,
	log *logger.Logger,
	metrics EventBusMetrics,
	tracer trace.Tracer,
) (*EventBus, error) {
	if metrics == nil {
		return nil, fmt.Errorf("metrics are required for kafka event bus")
	}

	log = log.With(
		"component", "kafka_event_bus",
		"client_id", cfg.ClientID,
		"group_id", cfg.GroupID,
		"service_type", cfg.ServiceType,
	)

	topicMap := map[events.EventType]string{
		analysis.EventTypeRunStarted:     cfg.LifecycleTopic,
		analysis.EventTypeRunCompleted:   cfg.LifecycleTopic,
		analysis.EventTypeRunCancelled:   cfg.LifecycleTopic,
		analysis.EventTypeRunPaused:      cfg.LifecycleTopic,
		analysis.EventTypeBatchStarted:   cfg.ProgressTopic,
		analysis.EventTypeBatchCompleted: cfg.ProgressTopic,
		analysis.EventTypeRunProgress:    cfg.ProgressTopic,
	}

	topicSet := make(map[string]struct{})
	for _, topic := range topicMap {
		topicSet[topic] = struct{}{}
	}
	consumeTopics := make([]string, 0, len(topicSet))
	for topic := range topicSet {
		consumeTopics = append(consumeTopics, topic)
	}

	consumeCtx, consumeCancel := context.WithCancel(context.Background())
	bus := &EventBus{
		producer:      producer,
		consumerGroup: consumerGroup,
		topicMap:      topicMap,
		consumeTopics: consumeTopics,
		subs:          make(map[events.SubscriptionID]*subscription),
		consumeCancel: consumeCancel,
		consumeDone:   make(chan struct{}),
		logger:        log,
		tracer:        tracer,
		metrics:       metrics,
	}

	go bus.consumeLoop(consumeCtx)

	return bus, nil
}

// Publish sends a domain event to the Kafka topic mapped to its type. The
// resource id is used as the partition key unless overridden, so events for
// one resource stay ordered within their topic.
func (b *EventBus) Publish(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	topic, ok := b.topicMap[event.EventType()]
	if !ok {
		return fmt.Errorf("unknown event type '%s', no topic mapped", event.EventType())
	}

	ctx, span := tracing.ProducerSpan(ctx, b.tracer, topic)
	defer span.End()

	var pParams events.PublishParams
	for _, opt := range opts {
		opt(&pParams)
	}

	key := event.ResourceID().String()
	if pParams.Key != "" {
		key = pParams.Key
	}
	span.SetAttributes(attribute.String("event.key", key))

	msgBytes, err := serialization.MarshalDomainEvent(event)
	if err != nil {
		span.RecordError(err)
		b.metrics.IncPublishError(ctx, topic)
		return fmt.Errorf("failed to serialize payload for event %s: %w", event.EventType(), err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(msgBytes),
	}
	for k, v := range pParams.Headers {
		kafkaMsg.Headers = append(kafkaMsg.Headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	tracing.Inject(ctx, kafkaMsg)

	partition, offset, sendErr := b.producer.SendMessage(kafkaMsg)
	if sendErr != nil {
		span.RecordError(sendErr)
		b.metrics.IncPublishError(ctx, topic)
		return fmt.Errorf("failed to send message to kafka topic %s: %w", topic, sendErr)
	}

	b.metrics.IncMessagePublished(ctx, topic)
	b.logger.Info(ctx, "Published message to Kafka",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"event_type", event.EventType(),
		"key", key,
	)

	return nil
}

// Subscribe registers a handler for the given event types scoped to one
// resource. Events for other resources are filtered out before the handler
// runs.
func (b *EventBus) Subscribe(
	eventTypes []events.EventType,
	resourceID uuid.UUID,
	handler events.HandlerFunc,
) (events.SubscriptionID, error) {
	if handler == nil {
		return events.SubscriptionID{}, fmt.Errorf("subscribe: handler cannot be nil")
	}

	typeSet := make(map[events.EventType]struct{}, len(eventTypes))
	for _, et := range eventTypes {
		if _, ok := b.topicMap[et]; !ok {
			return events.SubscriptionID{}, fmt.Errorf("subscribe: unknown event type %s", et)
		}
		typeSet[et] = struct{}{}
	}

	id := events.SubscriptionID(uuid.New())
	b.subsMu.Lock()
	b.subs[id] = &subscription{
		eventTypes: typeSet,
		resourceID: resourceID,
		handler:    handler,
	}
	b.subsMu.Unlock()

	b.logger.Info(context.Background(), "Subscribed to events",
		"subscription_id", id.String(),
		"resource_id", resourceID.String(),
		"event_types", eventTypes,
	)
	return id, nil
}

// Unsubscribe removes a handler registration. It is a no-op for an unknown
// id.
func (b *EventBus) Unsubscribe(id events.SubscriptionID) error {
	b.subsMu.Lock()
	delete(b.subs, id)
	b.subsMu.Unlock()
	return nil
}

// Connected reports whether a consumer group session is currently
// established.
func (b *EventBus) Connected() bool { return b.connected.Load() }

// consumeLoop maintains a continuous consumer group session for processing messages.
func (b *EventBus) consumeLoop(ctx context.Context) {
	defer close(b.consumeDone)

	cgHandler := &runEventHandler{bus: b}
	for {
		if err := b.consumerGroup.Consume(ctx, b.consumeTopics, cgHandler); err != nil {
			b.connected.Store(false)
			b.logger.Error(ctx, "Error from consumer group", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
		// Rebalance or transient broker error; back off briefly before
		// rejoining so a flapping broker is not hammered.
		time.Sleep(time.Second)
	}
}

// dispatch fans one decoded event out to every matching subscription.
func (b *EventBus) dispatch(ctx context.Context, topic string, evt events.DomainEvent) {
	b.subsMu.RLock()
	var handlers []events.HandlerFunc
	for _, sub := range b.subs {
		if _, ok := sub.eventTypes[evt.EventType()]; !ok {
			continue
		}
		if sub.resourceID != uuid.Nil && sub.resourceID != evt.ResourceID() {
			continue
		}
		handlers = append(handlers, sub.handler)
	}
	b.subsMu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, evt); err != nil {
			b.metrics.IncConsumeError(ctx, topic)
			b.logger.Error(ctx, "Failed to handle message",
				"event_type", evt.EventType(), "error", err)
		}
	}
}

// runEventHandler implements sarama.ConsumerGroupHandler to process Kafka
// messages and convert them into domain events for the registered
// subscriptions.
type runEventHandler struct{ bus *EventBus }

func (h *runEventHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.bus.connected.Store(true)
	h.bus.logger.Info(context.Background(),
		"Consumer group session setup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

func (h *runEventHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.bus.connected.Store(false)
	h.bus.logger.Info(context.Background(),
		"Consumer group session cleanup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

// ConsumeClaim processes messages from an assigned partition, deserializing
// them into domain events and fanning them out to subscriptions.
func (h *runEventHandler) ConsumeClaim(
	sess sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	b := h.bus
	b.logger.Info(sess.Context(), "Starting to consume from partition",
		"partition", claim.Partition(),
		"member_id", sess.MemberID(),
	)

	for msg := range claim.Messages() {
		msgCtx := tracing.Extract(sess.Context(), msg)
		msgCtx, span := tracing.ConsumerSpan(msgCtx, b.tracer, msg)

		evt, err := serialization.UnmarshalDomainEvent(msg.Value)
		if err != nil {
			// An undecodable message is skipped, not retried: redelivery
			// would fail the same way.
			sess.MarkMessage(msg, "")
			span.RecordError(err)
			b.metrics.IncConsumeError(msgCtx, msg.Topic)
			span.End()
			continue
		}

		b.logger.Debug(msgCtx, "Received Kafka message",
			"topic", msg.Topic,
			"partition", claim.Partition(),
			"offset", msg.Offset,
			"event_type", evt.EventType(),
		)

		b.dispatch(msgCtx, msg.Topic, evt)
		b.metrics.IncMessageConsumed(msgCtx, msg.Topic)

		sess.MarkMessage(msg, "")
		span.End()
	}
	return nil
}

// Close gracefully shuts down the event bus by stopping consumption and
// closing both producer and consumer connections.
func (b *EventBus) Close() error {
	b.consumeCancel()
	<-b.consumeDone
	b.connected.Store(false)

	if err := b.producer.Close(); err != nil {
		return err
	}
	return b.consumerGroup.Close()
}
