package temporal

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ConstantsSize is the encoded size of Constants.
const ConstantsSize = 64

// Constants drive one temporal resolve. Matches the WGSL TemporalConstants struct (64 bytes).
type Constants struct {
	InputSize  mgl32.Vec2 // offset  0
	OutputSize mgl32.Vec2 // offset 16, the inverses are derived on marshal
	// Jitter is the pixel offset the resolved frame was rendered with.
	Jitter      mgl32.Vec2 // offset 32
	BlendFactor float32    // offset 40: weight of the current frame
	// NoHistory makes the resolve copy the current frame into the resolved and feedback surfaces.
	NoHistory bool // offset 44
}

// Marshal serializes the constants into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer
func (c Constants) Marshal() []byte {
	buf := make([]byte, ConstantsSize)
	putVec2(buf[0:], c.InputSize)
	putVec2(buf[8:], inverse(c.InputSize))
	putVec2(buf[16:], c.OutputSize)
	putVec2(buf[24:], inverse(c.OutputSize))
	putVec2(buf[32:], c.Jitter)
	binary.LittleEndian.PutUint32(buf[40:], math.Float32bits(c.BlendFactor))
	if c.NoHistory {
		binary.LittleEndian.PutUint32(buf[44:], 1)
	}
	return buf
}

func inverse(v mgl32.Vec2) mgl32.Vec2 {
	var out mgl32.Vec2
	for i := range v {
		if v[i] != 0 {
			out[i] = 1 / v[i]
		}
	}
	return out
}

func putVec2(buf []byte, v mgl32.Vec2) {
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(v[1]))
}
