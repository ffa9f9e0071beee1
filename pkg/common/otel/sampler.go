package otel

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// probeSampler applies ratio-based head sampling but never samples requests
// to excluded HTTP targets, keeping the health and readiness probes from
// flooding the trace stream.
type probeSampler struct {
	excluded    map[string]struct{}
	probability float64
	ratio       sdktrace.Sampler
}

func newProbeSampler(excluded map[string]struct{}, probability float64) probeSampler {
	return probeSampler{
		excluded:    excluded,
		probability: probability,
		ratio:       sdktrace.TraceIDRatioBased(probability),
	}
}

// ShouldSample implements sdktrace.Sampler.
func (s probeSampler) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, attr := range params.Attributes {
		if attr.Key != "http.target" {
			continue
		}
		if _, skip := s.excluded[attr.Value.AsString()]; skip {
			return sdktrace.SamplingResult{Decision: sdktrace.Drop}
		}
	}
	return s.ratio.ShouldSample(params)
}

// Description implements sdktrace.Sampler.
func (s probeSampler) Description() string {
	return fmt.Sprintf("probeSampler{probability: %.2f}", s.probability)
}
