package monitor

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/opensoc/runwatch/internal/domain/analysis"
	"github.com/opensoc/runwatch/internal/domain/events"
)

// Metrics defines the metrics operations needed by the run monitor.
type Metrics interface {
	// Event bus delivery metrics. Declared here rather than borrowed from an
	// adapter package so one collector satisfies both the monitor and the
	// broker without the app layer importing infrastructure.
	IncMessagePublished(ctx context.Context, topic string)
	IncMessageConsumed(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
	IncConsumeError(ctx context.Context, topic string)

	// Poll scheduler metrics.
	IncPollsIssued(ctx context.Context)
	IncPollFailures(ctx context.Context)

	// Event ingestion metrics.
	IncEventsIngested(ctx context.Context, eventType events.EventType)

	// Completion detection metrics.
	IncCompletionsSynthesized(ctx context.Context)
	IncDetectionsAbandoned(ctx context.Context)

	// Lifecycle metrics.
	IncTerminalRuns(ctx context.Context, status analysis.RunStatus)

	// Command metrics.
	IncCommandsIssued(ctx context.Context, command string)
	IncCommandFailures(ctx context.Context, command string)
}

type monitorMetrics struct {
	// Broker metrics.
	messagesPublished metric.Int64Counter
	messagesConsumed  metric.Int64Counter
	publishErrors     metric.Int64Counter
	consumeErrors     metric.Int64Counter

	// Poll metrics.
	pollsIssued  metric.Int64Counter
	pollFailures metric.Int64Counter

	// Ingestion metrics.
	eventsIngested metric.Int64Counter

	// Detection metrics.
	completionsSynthesized metric.Int64Counter
	detectionsAbandoned    metric.Int64Counter

	// Lifecycle metrics.
	terminalRuns metric.Int64Counter

	// Command metrics.
	commandsIssued  metric.Int64Counter
	commandFailures metric.Int64Counter
}

const namespace = "run_monitor"

// NewMonitorMetrics creates a new monitor metrics instance.
func NewMonitorMetrics(mp metric.MeterProvider) (*monitorMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	c := new(monitorMetrics)
	var err error

	if c.messagesPublished, err = meter.Int64Counter(
		"messages_published_total",
		metric.WithDescription("Total number of messages published"),
	); err != nil {
		return nil, err
	}

	if c.messagesConsumed, err = meter.Int64Counter(
		"messages_consumed_total",
		metric.WithDescription("Total number of messages consumed"),
	); err != nil {
		return nil, err
	}

	if c.publishErrors, err = meter.Int64Counter(
		"publish_errors_total",
		metric.WithDescription("Total number of publish errors"),
	); err != nil {
		return nil, err
	}

	if c.consumeErrors, err = meter.Int64Counter(
		"consume_errors_total",
		metric.WithDescription("Total number of consume errors"),
	); err != nil {
		return nil, err
	}

	if c.pollsIssued, err = meter.Int64Counter(
		"polls_issued_total",
		metric.WithDescription("Total number of poll requests issued"),
	); err != nil {
		return nil, err
	}

	if c.pollFailures, err = meter.Int64Counter(
		"poll_failures_total",
		metric.WithDescription("Total number of poll requests that failed"),
	); err != nil {
		return nil, err
	}

	if c.eventsIngested, err = meter.Int64Counter(
		"events_ingested_total",
		metric.WithDescription("Total number of run events ingested from the event bus"),
	); err != nil {
		return nil, err
	}

	if c.completionsSynthesized, err = meter.Int64Counter(
		"completions_synthesized_total",
		metric.WithDescription("Total number of run completions inferred without a terminal event"),
	); err != nil {
		return nil, err
	}

	if c.detectionsAbandoned, err = meter.Int64Counter(
		"detections_abandoned_total",
		metric.WithDescription("Total number of detection windows that expired without confirmation"),
	); err != nil {
		return nil, err
	}

	if c.terminalRuns, err = meter.Int64Counter(
		"terminal_runs_total",
		metric.WithDescription("Total number of runs that reached a terminal status"),
	); err != nil {
		return nil, err
	}

	if c.commandsIssued, err = meter.Int64Counter(
		"commands_issued_total",
		metric.WithDescription("Total number of run control commands issued"),
	); err != nil {
		return nil, err
	}

	if c.commandFailures, err = meter.Int64Counter(
		"command_failures_total",
		metric.WithDescription("Total number of run control commands that failed"),
	); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *monitorMetrics) IncMessagePublished(ctx context.Context, topic string) {
	c.messagesPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (c *monitorMetrics) IncMessageConsumed(ctx context.Context, topic string) {
	c.messagesConsumed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (c *monitorMetrics) IncPublishError(ctx context.Context, topic string) {
	c.publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (c *monitorMetrics) IncConsumeError(ctx context.Context, topic string) {
	c.consumeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (c *monitorMetrics) IncPollsIssued(ctx context.Context) { c.pollsIssued.Add(ctx, 1) }

func (c *monitorMetrics) IncPollFailures(ctx context.Context) { c.pollFailures.Add(ctx, 1) }

func (c *monitorMetrics) IncEventsIngested(ctx context.Context, eventType events.EventType) {
	c.eventsIngested.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", string(eventType))))
}

func (c *monitorMetrics) IncCompletionsSynthesized(ctx context.Context) {
	c.completionsSynthesized.Add(ctx, 1)
}

func (c *monitorMetrics) IncDetectionsAbandoned(ctx context.Context) {
	c.detectionsAbandoned.Add(ctx, 1)
}

func (c *monitorMetrics) IncTerminalRuns(ctx context.Context, status analysis.RunStatus) {
	c.terminalRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func (c *monitorMetrics) IncCommandsIssued(ctx context.Context, command string) {
	c.commandsIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

func (c *monitorMetrics) IncCommandFailures(ctx context.Context, command string) {
	c.commandFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

// NoopMetrics is a Metrics implementation that records nothing. It keeps the
// monitor usable in tests and tooling that do not wire a meter provider.
type NoopMetrics struct{}

func (NoopMetrics) IncMessagePublished(context.Context, string)          {}
func (NoopMetrics) IncMessageConsumed(context.Context, string)           {}
func (NoopMetrics) IncPublishError(context.Context, string)              {}
func (NoopMetrics) IncConsumeError(context.Context, string)              {}
func (NoopMetrics) IncPollsIssued(context.Context)                       {}
func (NoopMetrics) IncPollFailures(context.Context)                      {}
func (NoopMetrics) IncEventsIngested(context.Context, events.EventType)  {}
func (NoopMetrics) IncCompletionsSynthesized(context.Context)            {}
func (NoopMetrics) IncDetectionsAbandoned(context.Context)               {}
func (NoopMetrics) IncTerminalRuns(context.Context, analysis.RunStatus)  {}
func (NoopMetrics) IncCommandsIssued(context.Context, string)            {}
func (NoopMetrics) IncCommandFailures(context.Context, string)           {}
