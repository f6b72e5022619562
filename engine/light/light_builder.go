package light

import "github.com/go-gl/mathgl/mgl32"

// LightBuilderOption configures a sun in NewSun. Options given a zero value keep the default.
type LightBuilderOption func(*lightImpl)

// WithDirection sets the direction the light travels in, normalized.
func WithDirection(dir mgl32.Vec3) LightBuilderOption {
	return func(l *lightImpl) {
		if dir != (mgl32.Vec3{}) {
			l.direction = normalize(dir)
		}
	}
}

// WithColor sets the linear RGB tint multiplied with the irradiance.
func WithColor(color mgl32.Vec3) LightBuilderOption {
	return func(l *lightImpl) {
		if color != (mgl32.Vec3{}) {
			l.color = color
		}
	}
}

// WithIrradiance sets the irradiance at a surface facing the light.
func WithIrradiance(irradiance float32) LightBuilderOption {
	return func(l *lightImpl) {
		if irradiance > 0 {
			l.irradiance = irradiance
		}
	}
}

// WithAngularSize sets the apparent diameter of the sun disk in degrees. It widens the
// penumbra of ray traced shadows.
func WithAngularSize(degrees float32) LightBuilderOption {
	return func(l *lightImpl) {
		if degrees > 0 {
			l.angularSize = degrees
		}
	}
}

// WithShadows turns shadow cascade rendering on or off.
func WithShadows(enabled bool) LightBuilderOption {
	return func(l *lightImpl) {
		l.castsShadows = enabled
	}
}
