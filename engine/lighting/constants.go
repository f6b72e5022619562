// Package lighting encodes the per-frame constant block every producer and the motion
// vector pass read: ambient color, the sun, the current and previous views and the
// stochastic filtering fields.
package lighting

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-stf/engine/camera"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

// ConstantsSize is the encoded size of Constants, matching the WGSL LightingConstants struct.
const ConstantsSize = 608

// Field offsets inside the encoded block.
const (
	offsetAmbient  = 0
	offsetLight    = 16
	offsetView     = offsetLight + light.LightConstantsSize
	offsetViewPrev = offsetView + camera.ViewConstantsSize
	offsetSTF      = offsetViewPrev + camera.ViewConstantsSize
)

// DefaultAmbient is the sky ambient term of the sample scene.
var DefaultAmbient = mgl32.Vec4{0.05, 0.05, 0.05, 0}

// Constants is the per-frame constant block.
type Constants struct {
	Ambient    mgl32.Vec4
	Light      light.LightConstants
	View       camera.ViewConstants
	ViewPrev   camera.ViewConstants
	FrameIndex uint32
	STF        config.STFFields
}

// Build assembles the block for a frame. When previous views are not valid the current view
// is written in both slots, so motion vectors evaluate to zero.
//
// Parameters:
//   - cfg: the frame's configuration snapshot
//   - frameIndex: the frame index written to the stochastic filtering fields
//   - sun: the light constants
//   - view: the current view
//   - prev: the previous view, read only when prevValid is true
//   - prevValid: whether prev holds the last frame's view
//
// Returns:
//   - Constants: the block
func Build(cfg config.RenderConfiguration, frameIndex uint32, sun light.LightConstants, view camera.PlanarView, prev camera.PlanarView, prevValid bool) Constants {
	c := Constants{
		Ambient:    DefaultAmbient,
		Light:      sun,
		View:       view.Constants(),
		FrameIndex: frameIndex,
		STF:        cfg.EncodeSTF(),
	}
	if prevValid {
		c.ViewPrev = prev.Constants()
	} else {
		c.ViewPrev = c.View
	}
	return c
}

// Size returns the size of the encoded block in bytes.
//
// Returns:
//   - int: 608
func (c *Constants) Size() int {
	return ConstantsSize
}

// Marshal serializes the block for upload into the frame uniform buffer.
//
// Returns:
//   - []byte: the 608-byte block
func (c *Constants) Marshal() []byte {
	buf := make([]byte, ConstantsSize)
	for i, v := range c.Ambient {
		binary.LittleEndian.PutUint32(buf[offsetAmbient+i*4:], math.Float32bits(v))
	}
	c.Light.MarshalTo(buf[offsetLight:])
	c.View.MarshalTo(buf[offsetView:])
	c.ViewPrev.MarshalTo(buf[offsetViewPrev:])

	s := c.STF
	words := [16]uint32{
		s.SplitScreen,
		c.FrameIndex,
		s.FilterMode,
		s.MagnificationMethod,
		s.MinificationMethod,
		s.UseMipLevelOverride,
		s.MipLevelOverrideBits,
		s.AddressMode,
		math.Float32bits(s.Sigma),
		s.WaveLaneLayout,
		s.ReseedOnSample,
		s.UseWhiteNoise,
		s.DebugVisualizeLanes,
	}
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[offsetSTF+i*4:], w)
	}
	return buf
}
