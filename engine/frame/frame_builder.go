package frame

import (
	"github.com/Carmen-Shannon/oxy-stf/engine/accel"
	"github.com/Carmen-Shannon/oxy-stf/engine/producer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/temporal"
	"github.com/Carmen-Shannon/oxy-stf/engine/upscaler"
)

// OrchestratorBuilderOption is a functional option used to configure an Orchestrator during construction.
type OrchestratorBuilderOption func(*orchestrator)

// WithUpscaler sets the upscaler used in the Upscaled anti-aliasing mode. Without it the
// mode is unavailable and falls back to TAA.
//
// Parameters:
//   - u: the upscaler; the orchestrator takes ownership
//
// Returns:
//   - OrchestratorBuilderOption: a function that sets the upscaler
func WithUpscaler(u upscaler.Upscaler) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.upscaler = u
	}
}

// WithPipelineCache shares an existing pipeline cache.
//
// Parameters:
//   - c: the cache
//
// Returns:
//   - OrchestratorBuilderOption: a function that sets the cache
func WithPipelineCache(c *pipeline.Cache) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.pipelines = c
	}
}

// WithAccelManager sets the acceleration structure manager of the tracing producers.
func WithAccelManager(m accel.Manager) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.accel = m
	}
}

// WithShadowDistance sets the view distance covered by the shadow cascades. It is applied to
// the constant block and the raster producer alike.
//
// Parameters:
//   - distance: the distance in world units
//
// Returns:
//   - OrchestratorBuilderOption: a function that sets the shadow distance
func WithShadowDistance(distance float32) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.shadows.MaxDistance = distance
		o.producerOptions = append(o.producerOptions, producer.WithShadowDistance(distance))
	}
}

// WithProducerOptions passes options to every producer the orchestrator creates.
func WithProducerOptions(opts ...producer.ProducerBuilderOption) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.producerOptions = append(o.producerOptions, opts...)
	}
}

// WithTemporalOptions passes options to every accumulator the orchestrator creates.
func WithTemporalOptions(opts ...temporal.AccumulatorBuilderOption) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.temporalOptions = append(o.temporalOptions, opts...)
	}
}
