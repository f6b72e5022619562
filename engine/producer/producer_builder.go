package producer

import "github.com/Carmen-Shannon/oxy-stf/engine/light"

// options configures the producers created by New.
type options struct {
	shadows light.CascadedShadow
}

func defaultOptions() options {
	return options{shadows: light.NewCascadedShadow()}
}

// ProducerBuilderOption is a functional option used to configure a Producer during construction.
type ProducerBuilderOption func(*options)

// WithShadowResolution sets the width and height of each shadow cascade of the raster producer.
//
// Parameters:
//   - resolution: texels per side
//
// Returns:
//   - ProducerBuilderOption: a function that sets the cascade resolution
func WithShadowResolution(resolution uint32) ProducerBuilderOption {
	return func(o *options) {
		o.shadows.Resolution = max(resolution, 1)
	}
}

// WithShadowDistance sets the view distance beyond which the raster producer casts no shadows.
//
// Parameters:
//   - distance: the distance in world units
//
// Returns:
//   - ProducerBuilderOption: a function that sets the maximum shadow distance
func WithShadowDistance(distance float32) ProducerBuilderOption {
	return func(o *options) {
		o.shadows.MaxDistance = distance
	}
}
