package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensoc/runwatch/internal/domain/events"
	"github.com/opensoc/runwatch/pkg/common/logger"
)

const (
	connectInitialInterval = 5 * time.Second
	connectMaxElapsed      = 5 * time.Minute
)

// ClientConfig holds the broker addresses and client identity for the shared
// Kafka client backing both the publisher and the consumer group.
type ClientConfig struct {
	Brokers  []string
	ClientID string
}

// NewClient builds a sarama client tuned for the monitor's consumption
// pattern: a long-lived consumer group replaying lifecycle and progress
// topics from the earliest retained offset, and a publisher whose terminal
// events must not be lost.
func NewClient(cfg *ClientConfig) (sarama.Client, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID

	config.Consumer.Return.Errors = true
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	// A monitor joining late still needs the run's earlier lifecycle events.
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Session.Timeout = 20 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	config.Consumer.Offsets.AutoCommit.Enable = true
	config.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second

	// Terminal events are the commit point of a run; wait for full ISR acks.
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	// Hashing the resource id keeps one resource's events on one partition,
	// preserving their order for consumers.
	config.Producer.Partitioner = sarama.NewHashPartitioner

	config.Version = sarama.V3_6_0_0

	return sarama.NewClient(cfg.Brokers, config)
}

// ConnectEventBus builds an EventBus on top of client, retrying with
// exponential backoff while the brokers come up.
func ConnectEventBus(
	cfg *EventBusConfig,
	client sarama.Client,
	log *logger.Logger,
	metrics EventBusMetrics,
	tracer trace.Tracer,
) (events.EventBus, error) {
	var eventBus events.EventBus

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = connectInitialInterval
	expBackoff.MaxElapsedTime = connectMaxElapsed

	operation := func() error {
		producer, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			return fmt.Errorf("creating producer: %w", err)
		}

		consumerGroup, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, client)
		if err != nil {
			producer.Close()
			return fmt.Errorf("creating consumer group: %w", err)
		}

		eventBus, err = NewEventBus(
			producer,
			consumerGroup,
			cfg,
			log,
			metrics,
			tracer,
		)
		if err != nil {
			producer.Close()
			consumerGroup.Close()
			return fmt.Errorf("creating event bus: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect event bus after retries: %w", err)
	}

	return eventBus, nil
}
