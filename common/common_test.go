package common

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestHaltonFirstElements(t *testing.T) {
	assert.Equal(t, float32(0), Halton(0, 2))
	assert.InDelta(t, 0.5, Halton(1, 2), 1e-6)
	assert.InDelta(t, 0.25, Halton(2, 2), 1e-6)
	assert.InDelta(t, 0.75, Halton(3, 2), 1e-6)
	assert.InDelta(t, 1.0/3.0, Halton(1, 3), 1e-6)
	assert.InDelta(t, 2.0/3.0, Halton(2, 3), 1e-6)
	assert.InDelta(t, 1.0/9.0, Halton(3, 3), 1e-6)
}

func TestExtentScale(t *testing.T) {
	e := Extent{Width: 1920, Height: 1080}
	assert.Equal(t, Extent{Width: 1114, Height: 626}, e.Scale(0.58))
	assert.Equal(t, e, e.Scale(1))
	assert.Equal(t, Extent{Width: 1, Height: 1}, Extent{Width: 1, Height: 1}.Scale(0.1))
	assert.True(t, Extent{Width: 10, Height: 5}.Fits(Extent{Width: 10, Height: 6}))
	assert.False(t, Extent{Width: 11, Height: 5}.Fits(Extent{Width: 10, Height: 6}))
}

func TestAABB(t *testing.T) {
	b := EmptyAABB()
	assert.True(t, b.IsEmpty())
	assert.Equal(t, float32(0), b.SurfaceArea())

	b = b.Extend(mgl32.Vec3{0, 0, 0}).Extend(mgl32.Vec3{1, 2, 3})
	assert.False(t, b.IsEmpty())
	assert.Equal(t, mgl32.Vec3{0.5, 1, 1.5}, b.Center())
	assert.InDelta(t, 2*(2+6+3), b.SurfaceArea(), 1e-5)

	moved := b.Transform(mgl32.Translate3D(10, 0, 0))
	assert.InDelta(t, 10, moved.Min[0], 1e-5)
	assert.InDelta(t, 11, moved.Max[0], 1e-5)
}

func TestFrustumCulling(t *testing.T) {
	proj := mgl32.Ortho(-1, 1, -1, 1, 0, 10)
	// mgl32.Ortho maps depth to [-1, 1]; remap to [0, 1].
	remap := mgl32.Mat4{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0.5, 0, 0, 0, 0.5, 1}
	f := ExtractFrustumFromMatrix(remap.Mul4(proj))

	inside := AABB{Min: mgl32.Vec3{-0.5, -0.5, -5}, Max: mgl32.Vec3{0.5, 0.5, -4}}
	outside := AABB{Min: mgl32.Vec3{5, 5, -5}, Max: mgl32.Vec3{6, 6, -4}}
	behind := AABB{Min: mgl32.Vec3{-0.5, -0.5, 1}, Max: mgl32.Vec3{0.5, 0.5, 2}}

	assert.True(t, f.IntersectsAABB(inside))
	assert.False(t, f.IntersectsAABB(outside))
	assert.False(t, f.IntersectsAABB(behind))
}

func TestClampAndDivCeil(t *testing.T) {
	assert.Equal(t, 3, Clamp(5, 0, 3))
	assert.Equal(t, float32(0.1), Clamp(float32(0.1), 0, 1))
	assert.Equal(t, uint32(240), DivCeil(1920, 8))
	assert.Equal(t, uint32(68), DivCeil(1080, 16))
	assert.Equal(t, uint32(0), DivCeil(10, 0))
}
