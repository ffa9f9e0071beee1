// Package tracing carries OpenTelemetry span context across Kafka so a run
// lifecycle event can be followed from its publisher to the monitors
// consuming it.
package tracing

import (
	"context"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// headerCarrier adapts sarama record headers to the TextMapCarrier the
// propagators read and write.
type headerCarrier struct{ headers []sarama.RecordHeader }

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	c.headers = append(c.headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(c.headers))
	for i, h := range c.headers {
		keys[i] = string(h.Key)
	}
	return keys
}

// Inject writes the span context in ctx into the outgoing message's headers.
func Inject(ctx context.Context, msg *sarama.ProducerMessage) {
	carrier := &headerCarrier{headers: msg.Headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	msg.Headers = carrier.headers
}

// Extract returns ctx extended with any span context found in the incoming
// message's headers.
func Extract(ctx context.Context, msg *sarama.ConsumerMessage) context.Context {
	carrier := &headerCarrier{headers: make([]sarama.RecordHeader, 0, len(msg.Headers))}
	for _, h := range msg.Headers {
		if h != nil {
			carrier.headers = append(carrier.headers, *h)
		}
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
