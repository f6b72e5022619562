package light

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

func sceneBounds() common.AABB {
	return common.AABB{Min: mgl32.Vec3{-30, 0, -30}, Max: mgl32.Vec3{30, 10, 30}}
}

func cameraAt(pos mgl32.Vec3, yaw float32) CascadeView {
	fwd := mgl32.Vec3{math32.Cos(yaw), 0, math32.Sin(yaw)}
	return CascadeView{
		View:   mgl32.LookAtV(pos, pos.Add(fwd), mgl32.Vec3{0, 1, 0}),
		FovY:   math32.Pi / 4,
		Aspect: 16.0 / 9.0,
		Near:   0.1,
	}
}

func TestSunDefaults(t *testing.T) {
	sun := NewSun()
	d := sun.Direction()
	assert.InDelta(t, 1, d.Len(), 1e-6)
	assert.Less(t, d[1], float32(0))
	assert.InDelta(t, 5, sun.Irradiance(), 1e-6)
	assert.InDelta(t, 0.53, sun.AngularSize(), 1e-6)
	assert.True(t, sun.CastsShadows())

	c := sun.Constants([MaxCascades]float32{1, 2, 3, 4})
	assert.InDelta(t, mgl32.DegToRad(0.53), c.AngularSize, 1e-7)
	assert.Equal(t, float32(5), c.Irradiance)

	sun.SetEnabled(false)
	assert.Zero(t, sun.Constants([MaxCascades]float32{}).Irradiance)
}

func TestSunOptionsKeepDefaultsForZeroValues(t *testing.T) {
	sun := NewSun(WithDirection(mgl32.Vec3{}), WithColor(mgl32.Vec3{}), WithIrradiance(0), WithAngularSize(-1))
	def := NewSun()
	assert.Equal(t, def.Direction(), sun.Direction())
	assert.Equal(t, def.Irradiance(), sun.Irradiance())
	assert.Equal(t, def.AngularSize(), sun.AngularSize())

	sun = NewSun(WithDirection(mgl32.Vec3{0, -4, 0}), WithIrradiance(2), WithShadows(false))
	assert.Equal(t, mgl32.Vec3{0, -1, 0}, sun.Direction())
	assert.Equal(t, float32(2), sun.Irradiance())
	assert.False(t, sun.CastsShadows())
}

func TestConstantsMatchShaderLayout(t *testing.T) {
	frame, err := shader.ReflectInclude(shader.AnnotationArgFrame)
	require.NoError(t, err)
	shadow, err := shader.ReflectInclude(shader.AnnotationArgShadow)
	require.NoError(t, err)

	var lc LightConstants
	var sc ShadowConstants
	assert.Equal(t, int(frame["LightConstants"].Size), lc.Size())
	assert.Equal(t, int(shadow["ShadowConstants"].Size), sc.Size())
	assert.Len(t, sc.Marshal(), ShadowConstantsSize)

	splits, ok := shadow["ShadowConstants"].Field("cascadeSplits")
	require.True(t, ok)
	assert.Equal(t, uint64(256), splits.Offset)
	bias, ok := shadow["ShadowConstants"].Field("depthBias")
	require.True(t, ok)
	assert.Equal(t, uint64(280), bias.Offset)
}

func TestLightConstantsMarshal(t *testing.T) {
	c := LightConstants{
		Direction:     mgl32.Vec3{0, -1, 0},
		AngularSize:   0.01,
		Color:         mgl32.Vec3{1, 0.5, 0.25},
		Irradiance:    5,
		CascadeSplits: [MaxCascades]float32{4, 8, 16, 32},
	}
	buf := c.Marshal()
	require.Len(t, buf, LightConstantsSize)
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	assert.Equal(t, float32(-1), f(4))
	assert.Equal(t, float32(0.5), f(20))
	assert.Equal(t, float32(5), f(28))
	assert.Equal(t, float32(32), f(44))
}

func TestSplitsIncreaseToMaxDistance(t *testing.T) {
	cs := NewCascadedShadow()
	splits := cs.Splits(0.1)
	for i := 1; i < MaxCascades; i++ {
		assert.Greater(t, splits[i], splits[i-1])
	}
	assert.InDelta(t, DefaultMaxShadowDistance, splits[MaxCascades-1], 1e-3)

	cs.Count = 2
	splits = cs.Splits(0.1)
	assert.Equal(t, splits[1], splits[3], "unused cascades repeat the last split")
}

func TestCascadeCoversCameraSurroundings(t *testing.T) {
	sun := NewSun()
	cs := NewCascadedShadow()
	c := cs.Compute(sun.Direction(), cameraAt(mgl32.Vec3{0, 1.8, 0}, 0), sceneBounds())
	assert.Equal(t, uint32(MaxCascades), c.CascadeCount)

	// a point two units ahead of the camera lands inside the first cascade
	p := c.CascadeViewProj[0].Mul4x1(mgl32.Vec4{2, 1, 0, 1})
	assert.InDelta(t, 0, p[0], 1)
	assert.InDelta(t, 0, p[1], 1)
	assert.GreaterOrEqual(t, p[2], float32(0))
	assert.LessOrEqual(t, p[2], float32(1))

	// casters above the slice stay in front of the near plane
	top := c.CascadeViewProj[0].Mul4x1(mgl32.Vec4{2, 10, 0, 1})
	assert.GreaterOrEqual(t, top[2], float32(0))
	assert.Less(t, top[2], p[2], "points nearer the light have smaller depth")
}

func TestCascadesAreTexelSnapped(t *testing.T) {
	sun := NewSun()
	cs := NewCascadedShadow()
	res := float32(cs.Resolution)

	for _, x := range []float32{0, 0.013, 0.37, 1.9, 7.25} {
		c := cs.Compute(sun.Direction(), cameraAt(mgl32.Vec3{x, 1.8, x * 0.5}, 0), sceneBounds())
		for i := 0; i < MaxCascades; i++ {
			m := c.CascadeViewProj[i]
			// light-space translation is a whole number of texels
			tx := m[12] * res / 2
			ty := m[13] * res / 2
			assert.InDelta(t, math32.Round(tx), tx, 2e-2, "cascade %d x at %v", i, x)
			assert.InDelta(t, math32.Round(ty), ty, 2e-2, "cascade %d y at %v", i, x)
		}
	}
}

func TestCascadeSizeIgnoresCameraRotation(t *testing.T) {
	sun := NewSun()
	cs := NewCascadedShadow()
	base := cs.Compute(sun.Direction(), cameraAt(mgl32.Vec3{0, 1.8, 0}, 0), sceneBounds())
	for _, yaw := range []float32{0.3, 1.1, 2.7} {
		c := cs.Compute(sun.Direction(), cameraAt(mgl32.Vec3{0, 1.8, 0}, yaw), sceneBounds())
		for i := 0; i < MaxCascades; i++ {
			assert.InDelta(t, base.CascadeViewProj[i][0], c.CascadeViewProj[i][0], 1e-6, "cascade %d", i)
		}
	}
}
