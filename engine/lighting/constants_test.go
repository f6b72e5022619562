package lighting

import (
	"encoding/binary"
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/camera"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/light"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testViews() (camera.PlanarView, camera.PlanarView) {
	cam := camera.NewCamera(camera.WithController(camera.NewCameraController()))
	extent := common.Extent{Width: 320, Height: 180}
	prev := cam.View(extent, mgl32.Vec2{0.25, -0.25})
	cam.Controller().PanForward(1)
	cam.Update()
	return cam.View(extent, mgl32.Vec2{-0.125, 0.375}), prev
}

func field(t *testing.T, name string) uint64 {
	layouts, err := shader.ReflectInclude(shader.AnnotationArgFrame)
	require.NoError(t, err)
	f, ok := layouts["LightingConstants"].Field(name)
	require.True(t, ok, name)
	return f.Offset
}

func word(buf []byte, off uint64) uint32 {
	return binary.LittleEndian.Uint32(buf[off:])
}

func TestLayoutMatchesShader(t *testing.T) {
	layouts, err := shader.ReflectInclude(shader.AnnotationArgFrame)
	require.NoError(t, err)
	var c Constants
	assert.Equal(t, int(layouts["LightingConstants"].Size), c.Size())

	assert.Equal(t, uint64(offsetLight), field(t, "light"))
	assert.Equal(t, uint64(offsetView), field(t, "view"))
	assert.Equal(t, uint64(offsetViewPrev), field(t, "viewPrev"))
	assert.Equal(t, uint64(offsetSTF), field(t, "stfSplitScreen"))
}

func TestMarshalWritesSTFFields(t *testing.T) {
	view, prev := testViews()
	cfg := config.Default()
	cfg.SamplerType = config.SamplerSplitScreen
	cfg.MinMethod = config.MinForceNegInf
	cfg.Sigma = 0.5
	cfg.UseWhiteNoise = true

	c := Build(cfg, 42, light.NewSun().Constants([light.MaxCascades]float32{}), view, prev, true)
	buf := c.Marshal()
	require.Len(t, buf, ConstantsSize)

	assert.Equal(t, uint32(1), word(buf, field(t, "stfSplitScreen")))
	assert.Equal(t, uint32(42), word(buf, field(t, "stfFrameIndex")))
	assert.Equal(t, config.STFAnisoLODMethodNone, word(buf, field(t, "stfMinificationMethod")))
	assert.Equal(t, uint32(1), word(buf, field(t, "stfUseMipLevelOverride")))
	assert.Equal(t, uint32(0xFF800000), word(buf, field(t, "stfMipLevelOverride")))
	assert.Equal(t, common.Float32Bits(0.5), word(buf, field(t, "stfSigma")))
	assert.Equal(t, uint32(1), word(buf, field(t, "stfUseWhiteNoise")))
	assert.Equal(t, uint32(0), word(buf, field(t, "_pad2")))
}

func TestMipOverrideEncodings(t *testing.T) {
	view, prev := testViews()
	for _, tc := range []struct {
		method  config.MinificationMethod
		useBits uint32
		bits    uint32
	}{
		{config.MinAniso, 0, 0},
		{config.MinForceNegInf, 1, 0xFF800000},
		{config.MinForcePosInf, 1, 0x7F800000},
		{config.MinForceNaN, 1, 0x7FC00000},
	} {
		cfg := config.Default()
		cfg.MinMethod = tc.method
		c := Build(cfg, 0, light.LightConstants{}, view, prev, true)
		buf := c.Marshal()
		assert.Equal(t, tc.useBits, word(buf, field(t, "stfUseMipLevelOverride")), tc.method.String())
		assert.Equal(t, tc.bits, word(buf, field(t, "stfMipLevelOverride")), tc.method.String())
	}
}

func TestPreviousViewFallsBackToCurrent(t *testing.T) {
	view, prev := testViews()
	cfg := config.Default()

	valid := Build(cfg, 1, light.LightConstants{}, view, prev, true)
	assert.Equal(t, prev.Constants(), valid.ViewPrev)

	invalid := Build(cfg, 1, light.LightConstants{}, view, prev, false)
	assert.Equal(t, invalid.View, invalid.ViewPrev)

	buf := invalid.Marshal()
	assert.Equal(t, buf[offsetView:offsetViewPrev], buf[offsetViewPrev:offsetSTF])
}
