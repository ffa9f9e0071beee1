package tracing

import (
	"context"

	"github.com/IBM/sarama"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// ProducerSpan opens a producer-kind span covering the publish of one event
// to topic.
func ProducerSpan(ctx context.Context, tracer trace.Tracer, topic string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "kafka.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(topic),
			semconv.MessagingOperationPublish,
		),
	)
}

// ConsumerSpan opens a consumer-kind span covering the handling of one
// received message, tagged with its partition and offset.
func ConsumerSpan(ctx context.Context, tracer trace.Tracer, msg *sarama.ConsumerMessage) (context.Context, trace.Span) {
	return tracer.Start(ctx, "kafka.receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(msg.Topic),
			semconv.MessagingOperationReceive,
			semconv.MessagingKafkaDestinationPartition(int(msg.Partition)),
			semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
		),
	)
}
