package temporal

import (
	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultJitterPhases is the length of the jitter cycle.
const DefaultJitterPhases = 16

// JitterOffset returns the sub-pixel camera offset of a jitter phase, taken from the
// Halton (2, 3) sequence. Both components lie in [-0.5, 0.5) and the offset is never the
// zero vector.
//
// Parameters:
//   - phase: the frame's position in the cycle
//   - phases: the cycle length, 0 for DefaultJitterPhases
//
// Returns:
//   - mgl32.Vec2: the offset in pixels, +x right and +y down
func JitterOffset(phase, phases uint32) mgl32.Vec2 {
	if phases == 0 {
		phases = DefaultJitterPhases
	}
	// index 0 of the sequence is the pixel corner for both bases
	i := phase%phases + 1
	return mgl32.Vec2{common.Halton(i, 2) - 0.5, common.Halton(i, 3) - 0.5}
}
