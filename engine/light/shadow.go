package light

import (
	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// MaxCascades is the number of shadow cascades the shaders declare.
const MaxCascades = 4

// ShadowMapResolution is the default width and height in texels of each cascade's depth texture.
const ShadowMapResolution = 2048

// DefaultMaxShadowDistance is the view distance beyond which nothing is shadowed.
const DefaultMaxShadowDistance float32 = 100.0

// DefaultShadowBias is the constant depth bias subtracted before the shadow comparison.
const DefaultShadowBias float32 = 0.0015

// DefaultSplitLambda blends logarithmic (1) and uniform (0) cascade split placement.
const DefaultSplitLambda float32 = 0.75

// CascadeView describes the camera the cascades are fitted to.
type CascadeView struct {
	// View is the camera's world to view transform.
	View mgl32.Mat4
	// FovY is the vertical field of view in radians.
	FovY float32
	// Aspect is viewport width / height.
	Aspect float32
	// Near is the camera near plane.
	Near float32
}

// CascadedShadow fits shadow cascades to a camera. Cascades are stabilized: each one is a
// bounding sphere of its frustum slice with a radius that only depends on the projection,
// and its center is snapped to whole shadow map texels in light space, so a moving camera
// does not make shadow edges swim.
type CascadedShadow struct {
	Resolution  uint32
	Count       int
	MaxDistance float32
	Lambda      float32
	Bias        float32
}

// NewCascadedShadow returns the default cascade setup: four 2048 texel cascades out to
// DefaultMaxShadowDistance.
func NewCascadedShadow() CascadedShadow {
	return CascadedShadow{
		Resolution:  ShadowMapResolution,
		Count:       MaxCascades,
		MaxDistance: DefaultMaxShadowDistance,
		Lambda:      DefaultSplitLambda,
		Bias:        DefaultShadowBias,
	}
}

// Splits returns the far view distance of each cascade. Unused cascades repeat the last split.
func (s CascadedShadow) Splits(near float32) [MaxCascades]float32 {
	var out [MaxCascades]float32
	n := common.Clamp(s.Count, 1, MaxCascades)
	far := math32.Max(s.MaxDistance, near*2)
	for i := 1; i <= MaxCascades; i++ {
		k := min(i, n)
		p := float32(k) / float32(n)
		logSplit := near * math32.Pow(far/near, p)
		uniSplit := near + (far-near)*p
		out[i-1] = s.Lambda*logSplit + (1-s.Lambda)*uniSplit
	}
	return out
}

// Compute fits the cascades to a camera and the scene bounds.
//
// Parameters:
//   - dir: normalized light direction, from the light toward the scene
//   - cam: the camera the cascades follow
//   - sceneBounds: world bounds of every shadow caster, may be empty
//
// Returns:
//   - ShadowConstants: the cascade matrices and splits
func (s CascadedShadow) Compute(dir mgl32.Vec3, cam CascadeView, sceneBounds common.AABB) ShadowConstants {
	n := common.Clamp(s.Count, 1, MaxCascades)
	res := float32(max(s.Resolution, 1))
	splits := s.Splits(cam.Near)

	out := ShadowConstants{
		CascadeSplits: splits,
		CascadeCount:  uint32(n),
		TexelSize:     1 / res,
		DepthBias:     s.Bias,
	}

	lightRot := lightRotation(dir)
	camToWorld := cam.View.Inv()
	tanY := math32.Tan(cam.FovY / 2)
	tanX := tanY * cam.Aspect
	// view depth of the nearest point at a given distance, reached at the frustum corners
	cornerCos := 1 / math32.Sqrt(1+tanX*tanX+tanY*tanY)

	prev := cam.Near
	for i := 0; i < n; i++ {
		nearDepth := math32.Max(prev*cornerCos, cam.Near)
		farDepth := splits[i]
		prev = splits[i]

		center, radius := sliceSphere(camToWorld, tanX, tanY, nearDepth, farDepth)
		// radius in 1/16 units keeps it constant under rotation despite float noise
		radius = math32.Ceil(radius*16) / 16
		texel := 2 * radius / res

		ls := lightRot.Mul4x1(center.Vec4(1)).Vec3()
		ls[0] = math32.Floor(ls[0]/texel) * texel
		ls[1] = math32.Floor(ls[1]/texel) * texel

		// depth range covers the cascade sphere and every caster between it and the light
		dNear, dFar := -ls[2]-radius, -ls[2]+radius
		if !sceneBounds.IsEmpty() {
			lb := sceneBounds.Transform(lightRot)
			dNear = math32.Min(dNear, -lb.Max[2])
			dFar = math32.Max(dFar, -lb.Min[2])
		}
		dNear -= 1
		dFar += 1

		proj := orthoZeroToOne(ls[0]-radius, ls[0]+radius, ls[1]-radius, ls[1]+radius, dNear, dFar)
		out.CascadeViewProj[i] = proj.Mul4(lightRot)
	}
	for i := n; i < MaxCascades; i++ {
		out.CascadeViewProj[i] = out.CascadeViewProj[n-1]
	}
	return out
}

// lightRotation is a world to light space rotation looking along dir.
func lightRotation(dir mgl32.Vec3) mgl32.Mat4 {
	up := mgl32.Vec3{0, 1, 0}
	if math32.Abs(dir[1]) > 0.99 {
		up = mgl32.Vec3{1, 0, 0}
	}
	return mgl32.LookAtV(mgl32.Vec3{}, dir, up)
}

// sliceSphere bounds the part of the view frustum between two view depths.
func sliceSphere(camToWorld mgl32.Mat4, tanX, tanY, nearDepth, farDepth float32) (mgl32.Vec3, float32) {
	var corners [8]mgl32.Vec3
	var center mgl32.Vec3
	i := 0
	for _, d := range [2]float32{nearDepth, farDepth} {
		for _, sx := range [2]float32{-1, 1} {
			for _, sy := range [2]float32{-1, 1} {
				p := mgl32.Vec4{sx * tanX * d, sy * tanY * d, -d, 1}
				corners[i] = camToWorld.Mul4x1(p).Vec3()
				center = center.Add(corners[i])
				i++
			}
		}
	}
	center = center.Mul(1.0 / 8)
	var radius float32
	for _, c := range corners {
		radius = math32.Max(radius, c.Sub(center).Len())
	}
	return center, radius
}

// orthoZeroToOne builds an orthographic projection with WebGPU's [0, 1] clip depth,
// mapping view depth near to 0 and far to 1.
func orthoZeroToOne(left, right, bottom, top, near, far float32) mgl32.Mat4 {
	rl := right - left
	tb := top - bottom
	fn := far - near
	return mgl32.Mat4{
		2 / rl, 0, 0, 0,
		0, 2 / tb, 0, 0,
		0, 0, -1 / fn, 0,
		-(right + left) / rl, -(top + bottom) / tb, -near / fn, 1,
	}
}
