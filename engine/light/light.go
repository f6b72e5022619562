package light

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	mu *sync.Mutex

	direction    mgl32.Vec3
	color        mgl32.Vec3
	irradiance   float32
	angularSize  float32 // degrees
	enabled      bool
	castsShadows bool
}

// Light defines the interface for the scene's directional sun light.
//
// The sun has no position, only a direction from the light toward the scene. Its
// contribution is color * irradiance, and its angular size is the apparent diameter of
// the disk in degrees. The light is marshaled into the per-frame constant block through
// Constants() and drives the cascaded shadow pass when CastsShadows is set.
type Light interface {
	// Direction returns the normalized direction the light travels.
	//
	// Returns:
	//   - mgl32.Vec3: normalized direction
	Direction() mgl32.Vec3

	// Color returns the RGB color of the light.
	//
	// Returns:
	//   - mgl32.Vec3: color as (r, g, b)
	Color() mgl32.Vec3

	// Irradiance returns the scalar intensity at a surface facing the light.
	//
	// Returns:
	//   - float32: the irradiance
	Irradiance() float32

	// AngularSize returns the apparent diameter of the light in degrees.
	//
	// Returns:
	//   - float32: angular size in degrees
	AngularSize() float32

	// Enabled reports whether the light contributes to shading.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// CastsShadows reports whether the raster producer renders shadow cascades for the light.
	//
	// Returns:
	//   - bool: true if the light casts shadows
	CastsShadows() bool

	// Constants returns the GPU representation of the light. A disabled light encodes zero irradiance.
	//
	// Parameters:
	//   - cascadeSplits: the far view distance of each shadow cascade
	//
	// Returns:
	//   - LightConstants: the encoded light
	Constants(cascadeSplits [MaxCascades]float32) LightConstants

	// SetDirection sets the light direction. The vector is normalized before storing.
	//
	// Parameters:
	//   - x: the x direction component
	//   - y: the y direction component
	//   - z: the z direction component
	SetDirection(x, y, z float32)

	// SetColor sets the RGB color of the light.
	//
	// Parameters:
	//   - r, g, b: color components
	SetColor(r, g, b float32)

	// SetIrradiance sets the scalar intensity.
	SetIrradiance(irradiance float32)

	// SetEnabled enables or disables the light.
	SetEnabled(enabled bool)

	// SetCastsShadows enables or disables shadow cascades.
	SetCastsShadows(castsShadows bool)
}

var _ Light = &lightImpl{}

// NewSun creates the sample's sun: direction (0.1, -1, -0.15), white, irradiance 5 and an
// angular size of 0.53 degrees, casting shadows.
//
// Parameters:
//   - opts: functional options to override the defaults
//
// Returns:
//   - Light: the light
func NewSun(opts ...LightBuilderOption) Light {
	l := &lightImpl{
		mu:           &sync.Mutex{},
		direction:    normalize(mgl32.Vec3{0.1, -1, -0.15}),
		color:        mgl32.Vec3{1, 1, 1},
		irradiance:   5,
		angularSize:  0.53,
		enabled:      true,
		castsShadows: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) Direction() mgl32.Vec3 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.direction
}

func (l *lightImpl) Color() mgl32.Vec3 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color
}

func (l *lightImpl) Irradiance() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.irradiance
}

func (l *lightImpl) AngularSize() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.angularSize
}

func (l *lightImpl) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

func (l *lightImpl) CastsShadows() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.castsShadows
}

func (l *lightImpl) Constants(cascadeSplits [MaxCascades]float32) LightConstants {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := LightConstants{
		Direction:     l.direction,
		AngularSize:   mgl32.DegToRad(l.angularSize),
		Color:         l.color,
		CascadeSplits: cascadeSplits,
	}
	if l.enabled {
		c.Irradiance = l.irradiance
	}
	return c
}

func (l *lightImpl) SetDirection(x, y, z float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.direction = normalize(mgl32.Vec3{x, y, z})
}

func (l *lightImpl) SetColor(r, g, b float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = mgl32.Vec3{r, g, b}
}

func (l *lightImpl) SetIrradiance(irradiance float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.irradiance = irradiance
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

func (l *lightImpl) SetCastsShadows(castsShadows bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.castsShadows = castsShadows
}

// normalize returns v scaled to unit length, or straight down for a zero vector.
func normalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.Len() < 1e-8 {
		return mgl32.Vec3{0, -1, 0}
	}
	return v.Normalize()
}
