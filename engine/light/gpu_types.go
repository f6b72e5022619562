package light

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// LightConstantsSize is the encoded size of LightConstants.
const LightConstantsSize = 48

// ShadowConstantsSize is the encoded size of ShadowConstants.
const ShadowConstantsSize = 288

// CascadeSelectSize is the encoded size of CascadeSelect.
const CascadeSelectSize = 16

// LightConstants is the GPU representation of the sun inside the per-frame constant block.
// Matches the WGSL LightConstants struct (48 bytes).
type LightConstants struct {
	Direction     mgl32.Vec3           // offset  0
	AngularSize   float32              // offset 12: radians
	Color         mgl32.Vec3           // offset 16
	Irradiance    float32              // offset 28
	CascadeSplits [MaxCascades]float32 // offset 32
}

// Size returns the size of the encoded struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (c *LightConstants) Size() int {
	return LightConstantsSize
}

// MarshalTo writes the constants into buf, which must hold at least LightConstantsSize bytes.
func (c *LightConstants) MarshalTo(buf []byte) {
	putFloats(buf[0:], c.Direction[:])
	putFloats(buf[12:], []float32{c.AngularSize})
	putFloats(buf[16:], c.Color[:])
	putFloats(buf[28:], []float32{c.Irradiance})
	putFloats(buf[32:], c.CascadeSplits[:])
}

// Marshal serializes the constants into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer
func (c *LightConstants) Marshal() []byte {
	buf := make([]byte, LightConstantsSize)
	c.MarshalTo(buf)
	return buf
}

// ShadowConstants is the GPU representation of the shadow cascades.
// Matches the WGSL ShadowConstants struct (288 bytes).
type ShadowConstants struct {
	CascadeViewProj [MaxCascades]mgl32.Mat4 // offset   0: world to light clip, standard depth
	CascadeSplits   [MaxCascades]float32    // offset 256: far view distance per cascade
	CascadeCount    uint32                  // offset 272
	TexelSize       float32                 // offset 276: 1 / resolution
	DepthBias       float32                 // offset 280
}

// Size returns the size of the encoded struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (288)
func (s *ShadowConstants) Size() int {
	return ShadowConstantsSize
}

// Marshal serializes the constants into a byte buffer suitable for GPU uniform upload.
//
// Returns:
//   - []byte: 288-byte buffer
func (s *ShadowConstants) Marshal() []byte {
	buf := make([]byte, ShadowConstantsSize)
	for i, m := range s.CascadeViewProj {
		putFloats(buf[i*64:], m[:])
	}
	putFloats(buf[256:], s.CascadeSplits[:])
	binary.LittleEndian.PutUint32(buf[272:], s.CascadeCount)
	putFloats(buf[276:], []float32{s.TexelSize, s.DepthBias})
	binary.LittleEndian.PutUint32(buf[284:], 0) // _pad0
	return buf
}

// CascadeSelect picks the cascade a shadow depth draw renders. One buffer per cascade.
type CascadeSelect struct {
	Index uint32
}

// Marshal serializes the selector into a 16-byte uniform.
func (c CascadeSelect) Marshal() []byte {
	buf := make([]byte, CascadeSelectSize)
	binary.LittleEndian.PutUint32(buf[0:], c.Index)
	return buf
}

func putFloats(buf []byte, values []float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
}
