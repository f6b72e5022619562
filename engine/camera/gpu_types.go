package camera

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ViewConstantsSize is the encoded size of ViewConstants, matching the WGSL ViewConstants struct.
const ViewConstantsSize = 240

// ViewConstants is the GPU representation of a PlanarView.
// Layout (WGSL uniform rules):
//
//	offset   0: worldToClip         mat4x4f
//	offset  64: worldToClipNoOffset mat4x4f
//	offset 128: clipToWorld         mat4x4f
//	offset 192: cameraPosition      vec3f + f32 pad
//	offset 208: viewportSize        vec2f
//	offset 216: viewportSizeInv     vec2f
//	offset 224: pixelOffset         vec2f
//	offset 232: clipToWindowScale   vec2f
type ViewConstants struct {
	WorldToClip         mgl32.Mat4
	WorldToClipNoOffset mgl32.Mat4
	ClipToWorld         mgl32.Mat4
	CameraPosition      mgl32.Vec3
	ViewportSize        mgl32.Vec2
	ViewportSizeInv     mgl32.Vec2
	PixelOffset         mgl32.Vec2
	ClipToWindowScale   mgl32.Vec2
}

// Size returns the size of the encoded struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (240)
func (c *ViewConstants) Size() int {
	return ViewConstantsSize
}

// Marshal serializes the constants into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (c *ViewConstants) Marshal() []byte {
	buf := make([]byte, ViewConstantsSize)
	c.MarshalTo(buf)
	return buf
}

// MarshalTo writes the constants into buf, which must hold at least ViewConstantsSize bytes.
func (c *ViewConstants) MarshalTo(buf []byte) {
	putFloats(buf[0:], c.WorldToClip[:])
	putFloats(buf[64:], c.WorldToClipNoOffset[:])
	putFloats(buf[128:], c.ClipToWorld[:])
	putFloats(buf[192:], c.CameraPosition[:])
	binary.LittleEndian.PutUint32(buf[204:], 0) // _pad0
	putFloats(buf[208:], c.ViewportSize[:])
	putFloats(buf[216:], c.ViewportSizeInv[:])
	putFloats(buf[224:], c.PixelOffset[:])
	putFloats(buf[232:], c.ClipToWindowScale[:])
}

func putFloats(buf []byte, values []float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
}
