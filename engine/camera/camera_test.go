package camera

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/shader"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func project(m mgl32.Mat4, p mgl32.Vec3) mgl32.Vec3 {
	c := m.Mul4x1(p.Vec4(1))
	return c.Vec3().Mul(1 / c[3])
}

func TestReverseZPerspectiveDepthRange(t *testing.T) {
	proj := ReverseZPerspective(math32.Pi/4, 16.0/9.0, 0.1, 1000)

	near := project(proj, mgl32.Vec3{0, 0, -0.1})
	far := project(proj, mgl32.Vec3{0, 0, -1000})
	mid := project(proj, mgl32.Vec3{0, 0, -10})

	assert.InDelta(t, 1.0, near[2], 1e-5)
	assert.InDelta(t, 0.0, far[2], 1e-5)
	assert.Greater(t, mid[2], far[2])
	assert.Less(t, mid[2], near[2])
}

func TestControllerStartsLookingDownX(t *testing.T) {
	cc := NewCameraController(WithPosition(0, 1.8, 0), WithTarget(1, 1.8, 0))

	assert.Equal(t, mgl32.Vec3{0, 1.8, 0}, cc.Position())
	fwd := cc.Forward()
	assert.InDelta(t, 1, fwd[0], 1e-5)
	assert.InDelta(t, 0, fwd[1], 1e-5)
	assert.InDelta(t, 0, fwd[2], 1e-5)
	assert.InDelta(t, 3, cc.PanSpeed(), 1e-6)
}

func TestControllerMovement(t *testing.T) {
	cc := NewCameraController(WithPanSpeed(2))

	cc.PanForward(1)
	assert.InDelta(t, 2, cc.Position()[0], 1e-5)

	cc.PanRight(1)
	assert.InDelta(t, 2, cc.Position()[2], 1e-5)

	cc.PanUp(-0.5)
	assert.InDelta(t, 0.8, cc.Position()[1], 1e-5)

	// looking down must not sink the camera when moving forward
	cc.Look(0, 10000)
	y := cc.Position()[1]
	cc.PanForward(1)
	assert.InDelta(t, y, cc.Position()[1], 1e-5)
}

func TestControllerPitchIsClamped(t *testing.T) {
	cc := NewCameraController()
	cc.Look(0, -1e6)
	assert.InDelta(t, maxPitch, cc.Pitch(), 1e-6)
	cc.Look(0, 1e6)
	assert.InDelta(t, -maxPitch, cc.Pitch(), 1e-6)
}

func TestCameraFollowsController(t *testing.T) {
	cc := NewCameraController(WithPosition(0, 1.8, 0), WithTarget(1, 1.8, 0))
	cam := NewCamera(WithController(cc))

	assert.Equal(t, mgl32.Vec3{0, 1.8, 0}, cam.Position())
	assert.InDelta(t, math32.Pi/4, cam.Fov(), 1e-6)

	cc.PanForward(1)
	assert.InDelta(t, 0, cam.Position()[0], 1e-6, "camera only moves on Update")
	cam.Update()
	assert.InDelta(t, 3, cam.Position()[0], 1e-5)

	// a point ahead of the camera lands in the middle of the screen
	view := cam.View(common.Extent{Width: 1920, Height: 1080}, mgl32.Vec2{})
	p := project(view.WorldToClip(), mgl32.Vec3{10, 1.8, 0})
	assert.InDelta(t, 0, p[0], 1e-5)
	assert.InDelta(t, 0, p[1], 1e-5)
}

func TestJitterShiftsByPixels(t *testing.T) {
	cam := NewCamera(WithController(NewCameraController()))
	extent := common.Extent{Width: 200, Height: 100}
	target := mgl32.Vec3{10, 2.5, 1}

	toPixel := func(v PlanarView) mgl32.Vec2 {
		ndc := project(v.WorldToClip(), target)
		return mgl32.Vec2{(ndc[0]*0.5 + 0.5) * 200, (0.5 - ndc[1]*0.5) * 100}
	}

	plain := toPixel(cam.View(extent, mgl32.Vec2{}))
	jittered := cam.View(extent, mgl32.Vec2{0.25, -0.5})
	shifted := toPixel(jittered)

	assert.InDelta(t, plain[0]+0.25, shifted[0], 1e-3)
	assert.InDelta(t, plain[1]-0.5, shifted[1], 1e-3)
	assert.Equal(t, jittered.WorldToClipNoOffset(), cam.View(extent, mgl32.Vec2{}).WorldToClip())

	id := jittered.ClipToWorld().Mul4(jittered.WorldToClip())
	assert.True(t, id.ApproxEqualThreshold(mgl32.Ident4(), 1e-3))
}

func TestViewConstantsMatchShaderLayout(t *testing.T) {
	layouts, err := shader.ReflectInclude(shader.AnnotationArgFrame)
	require.NoError(t, err)
	layout, ok := layouts["ViewConstants"]
	require.True(t, ok)

	var c ViewConstants
	assert.Equal(t, int(layout.Size), c.Size())

	for name, want := range map[string]int{
		"worldToClip":         0,
		"worldToClipNoOffset": 64,
		"clipToWorld":         128,
		"cameraPosition":      192,
		"viewportSize":        208,
		"viewportSizeInv":     216,
		"pixelOffset":         224,
		"clipToWindowScale":   232,
	} {
		f, ok := layout.Field(name)
		require.True(t, ok, name)
		assert.Equal(t, uint64(want), f.Offset, name)
	}
}

func TestViewConstantsMarshal(t *testing.T) {
	cam := NewCamera(WithController(NewCameraController()))
	v := cam.View(common.Extent{Width: 640, Height: 480}, mgl32.Vec2{0.5, 0.25})
	c := v.Constants()
	buf := c.Marshal()
	require.Len(t, buf, ViewConstantsSize)

	f := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
	}
	assert.Equal(t, c.WorldToClip[0], f(0))
	assert.Equal(t, float32(1.8), f(196))
	assert.Equal(t, float32(640), f(208))
	assert.Equal(t, float32(480), f(212))
	assert.InDelta(t, 1.0/640, f(216), 1e-9)
	assert.Equal(t, float32(0.5), f(224))
	assert.Equal(t, float32(0.25), f(228))
	assert.Equal(t, float32(320), f(232))
	assert.Equal(t, float32(-240), f(236))
}

func TestCameraOptionsRejectBadValues(t *testing.T) {
	cam := NewCamera(WithFovDegrees(60), WithClipPlanes(0.5, 200), WithUp(mgl32.Vec3{0, 2, 0}))
	assert.InDelta(t, math32.Pi/3, cam.Fov(), 1e-6)
	assert.Equal(t, float32(0.5), cam.Near())
	assert.Equal(t, float32(200), cam.Far())
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, cam.Up())

	cam = NewCamera(WithFovDegrees(500), WithClipPlanes(10, 1))
	assert.InDelta(t, mgl32.DegToRad(179), cam.Fov(), 1e-6)
	assert.Equal(t, float32(0.1), cam.Near())
	assert.Equal(t, float32(1000), cam.Far())
}
