package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TraceID returns the trace id carried by ctx for log correlation, or the
// empty string when the context holds no span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
