// Package otel bootstraps OpenTelemetry for the monitor service: OTLP trace
// and metric exporters over gRPC, a sampler that keeps probe endpoints out
// of the trace stream, and the W3C propagators. Providers are registered
// globally so instrumentation libraries pick them up without plumbing.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensoc/runwatch/pkg/common/logger"
)

const exporterDialTimeout = 5 * time.Second

// Config describes the service to the telemetry backend.
type Config struct {
	// ServiceName labels every span and metric emitted by this process.
	ServiceName string

	// ExporterEndpoint is the OTLP gRPC collector address.
	ExporterEndpoint string

	// ExcludedRoutes lists HTTP targets that are never sampled, typically
	// the health and readiness probes.
	ExcludedRoutes map[string]struct{}

	// Probability is the head-sampling ratio applied to everything else.
	Probability float64

	// ResourceAttributes carries extra resource labels (hostname, build).
	ResourceAttributes map[string]string
}

// InitTelemetry stands up the global tracer and meter providers. The
// returned teardown flushes and shuts both down.
func InitTelemetry(log *logger.Logger, cfg Config) (trace.TracerProvider, func(ctx context.Context), error) {
	ctx, cancel := context.WithTimeout(context.Background(), exporterDialTimeout)
	defer cancel()

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.ExporterEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.ExporterEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res := newResource(cfg)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(newProbeSampler(cfg.ExcludedRoutes, cfg.Probability)),
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	teardown := func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			log.Error(ctx, "shutting down tracer provider", "error", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			log.Error(ctx, "shutting down meter provider", "error", err)
		}
	}

	return tp, teardown, nil
}

// MeterProvider returns the globally registered meter provider.
func MeterProvider() metric.MeterProvider { return otel.GetMeterProvider() }

func newResource(cfg Config) *resource.Resource {
	attrs := make([]attribute.KeyValue, 0, len(cfg.ResourceAttributes)+1)
	attrs = append(attrs, semconv.ServiceNameKey.String(cfg.ServiceName))
	for k, v := range cfg.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}
