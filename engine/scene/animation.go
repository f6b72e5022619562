package scene

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// AnimationOffset is the time offset between consecutive animations, so identical clips
// on neighbouring objects do not move in lockstep.
const AnimationOffset float32 = 1.0

// LocalTime maps an animation clock to a clip time: clip i runs AnimationOffset*i seconds
// ahead and loops modulo its duration.
//
// Parameters:
//   - t: the scene's animation clock in seconds
//   - index: the animation's position in the scene
//   - duration: the clip length
//
// Returns:
//   - float32: time inside the clip, in [0, duration)
func LocalTime(t float64, index int, duration float32) float32 {
	if duration <= 0 {
		return 0
	}
	shifted := t + float64(AnimationOffset)*float64(index)
	local := float32(mod64(shifted, float64(duration)))
	if local >= duration {
		local = 0
	}
	return local
}

func mod64(a, b float64) float64 {
	r := a - b*float64(int64(a/b))
	if r < 0 {
		r += b
	}
	return r
}

// Sample evaluates the channel at time t. Missing tracks keep the identity component.
func (c *Channel) Sample(t float32) Transform {
	return c.SampleOver(IdentityTransform(), t)
}

// SampleOver evaluates the channel at time t, keeping the components of base that the
// channel does not animate.
func (c *Channel) SampleOver(base Transform, t float32) Transform {
	out := base
	if len(c.Translation) > 0 {
		out.Translation = sampleVector(c.Translation, t)
	}
	if len(c.Rotation) > 0 {
		out.Rotation = sampleRotation(c.Rotation, t)
	}
	if len(c.Scale) > 0 {
		out.Scale = sampleVector(c.Scale, t)
	}
	return out
}

// keyIndex returns the index of the last key at or before t and the blend factor toward the next key.
func keyIndex(n int, timeAt func(int) float32, t float32) (int, float32) {
	i := sort.Search(n, func(i int) bool { return timeAt(i) > t }) - 1
	if i < 0 {
		return 0, 0
	}
	if i >= n-1 {
		return n - 1, 0
	}
	t0, t1 := timeAt(i), timeAt(i+1)
	span := t1 - t0
	if span <= 0 {
		return i, 0
	}
	return i, math32.Min(math32.Max((t-t0)/span, 0), 1)
}

func sampleVector(keys []VectorKey, t float32) mgl32.Vec3 {
	i, f := keyIndex(len(keys), func(i int) float32 { return keys[i].Time }, t)
	if f == 0 {
		return keys[i].Value
	}
	a, b := keys[i].Value, keys[i+1].Value
	return a.Add(b.Sub(a).Mul(f))
}

func sampleRotation(keys []RotationKey, t float32) mgl32.Quat {
	i, f := keyIndex(len(keys), func(i int) float32 { return keys[i].Time }, t)
	if f == 0 {
		return keys[i].Value
	}
	return mgl32.QuatSlerp(keys[i].Value, keys[i+1].Value, f)
}

// Compose applies a local animated transform on top of a base placement.
func Compose(base Transform, anim Transform) mgl32.Mat4 {
	return base.Matrix().Mul4(anim.Matrix())
}
