package config

import (
	"reflect"
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allCaps = Capabilities{RayTracingPipeline: true, RayQuery: true, UpscalerAvailable: true}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	fixed, notes := c.Validate(allCaps)
	assert.Empty(t, notes)
	assert.Equal(t, c, fixed)
	assert.Equal(t, AAModeTAA, c.AAMode)
	assert.Equal(t, ProducerCompute, c.ProducerMode)
	assert.Equal(t, Mag2x2Quad, c.MagMethod)
	assert.Equal(t, float32(0.7), c.Sigma)
}

func TestMipOverrideEncoding(t *testing.T) {
	cases := []struct {
		method   MinificationMethod
		custom   float32
		use      uint32
		bits     uint32
		minValue uint32
	}{
		{MinAniso, 5, 0, 0, STFAnisoLODMethodDefault},
		{MinForceNegInf, 0, 1, 0xFF800000, STFAnisoLODMethodNone},
		{MinForcePosInf, 0, 1, 0x7F800000, STFAnisoLODMethodNone},
		{MinForceNaN, 0, 1, 0x7FC00000, STFAnisoLODMethodNone},
		{MinForceCustom, 2.5, 1, common.Float32Bits(2.5), STFAnisoLODMethodNone},
	}
	for _, tc := range cases {
		t.Run(tc.method.String(), func(t *testing.T) {
			c := Default()
			c.MinMethod = tc.method
			c.MipLevelOverride = tc.custom
			f := c.EncodeSTF()
			assert.Equal(t, tc.use, f.UseMipLevelOverride)
			assert.Equal(t, tc.bits, f.MipLevelOverrideBits)
			assert.Equal(t, tc.minValue, f.MinificationMethod)
		})
	}
}

func TestEncodeFallbacks(t *testing.T) {
	c := Default()
	c.AddressMode = AddressSameAsSampler
	c.MagMethod = MagWave
	c.SamplerType = SamplerSplitScreen
	f := c.EncodeSTF()
	assert.Equal(t, STFAddressModeWrap, f.AddressMode)
	assert.Equal(t, STFMagnificationNone, f.MagnificationMethod)
	assert.Equal(t, uint32(1), f.SplitScreen)

	c.AddressMode = AddressClamp
	assert.Equal(t, STFAddressModeClamp, c.EncodeSTF().AddressMode)
}

func TestValidateClampsAndHidesModes(t *testing.T) {
	c := Default()
	c.AAMode = AAModeUpscaled
	c.ProducerMode = ProducerRayGen
	c.Sigma = 250
	c.MinMethod = MinificationMethod(42)
	c.ResolutionScale = 0

	fixed, notes := c.Validate(Capabilities{})
	assert.Equal(t, AAModeTAA, fixed.AAMode)
	assert.Equal(t, ProducerCompute, fixed.ProducerMode)
	assert.Equal(t, float32(100), fixed.Sigma)
	assert.Equal(t, MinAniso, fixed.MinMethod)
	assert.Equal(t, float32(0.25), fixed.ResolutionScale)
	assert.Len(t, notes, 5)
}

func TestValidateRejectsNonFiniteCustomMip(t *testing.T) {
	c := Default()
	c.MinMethod = MinForceCustom
	c.MipLevelOverride = math32.Inf(1)
	fixed, notes := c.Validate(allCaps)
	assert.Equal(t, MinAniso, fixed.MinMethod)
	assert.Len(t, notes, 1)
}

func TestEffectiveThreadGroup(t *testing.T) {
	c := Default()
	c.ThreadGroup = ThreadGroup16x8
	x, y := c.EffectiveThreadGroup()
	assert.Equal(t, [2]uint32{16, 8}, [2]uint32{x, y})

	c.SamplerType = SamplerHW
	x, y = c.EffectiveThreadGroup()
	assert.Equal(t, [2]uint32{16, 16}, [2]uint32{x, y})
}

func TestShaderMacros(t *testing.T) {
	c := Default()
	c.STFLoad = true
	m := c.ShaderMacros()
	assert.Equal(t, "1", m[MacroSTFEnabled])
	assert.Equal(t, "1", m[MacroSTFLoad])
	assert.Equal(t, "1", m[MacroUseRayQuery])
	assert.Equal(t, "8", m[MacroThreadSizeX])

	c.SamplerType = SamplerHW
	m = c.ShaderMacros()
	assert.Equal(t, "0", m[MacroSTFEnabled])
	assert.Equal(t, "0", m[MacroSTFLoad])
	assert.Equal(t, "16", m[MacroThreadSizeY])

	a := MacroSet{"B": "1", "A": "2"}
	b := MacroSet{"A": "2", "B": "1"}
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "A=2;B=1;", a.Key())
	assert.NotEqual(t, a.Key(), a.With(MacroAlphaTested, "1").Key())
	assert.Len(t, a, 2)
}

func TestDecode(t *testing.T) {
	c, err := Decode([]byte(`
aa_mode = "Upscaled"
quality = "Balanced"
producer = "raster"
minification_method = "ForceNegInf"
sigma = 1.5
`))
	require.NoError(t, err)
	assert.Equal(t, AAModeUpscaled, c.AAMode)
	assert.Equal(t, QualityBalanced, c.Quality)
	assert.Equal(t, ProducerRaster, c.ProducerMode)
	assert.Equal(t, MinForceNegInf, c.MinMethod)
	assert.Equal(t, float32(1.5), c.Sigma)
	assert.Equal(t, FilterLinear, c.FilterMode)

	_, err = Decode([]byte(`aa_mode = "Supersampled"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aa mode")

	_, err = Decode([]byte(`not_a_field = 1`))
	require.Error(t, err)
}

func TestEncodeRoundTripsThroughText(t *testing.T) {
	c := Default()
	c.AAMode = AAModeNone
	data, err := Encode(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), "aa_mode = 'None'")
}

func TestPatchOnlyTouchesPresentKeys(t *testing.T) {
	p, err := DecodePatch([]byte(`
sigma = 2.5
stf_load = false
aa_mode = "None"
`))
	require.NoError(t, err)

	live := Default()
	live.STFLoad = true
	live.FreezeFrameIndex = true
	live.ExposureScale = 5
	next, err := p.Apply(live)
	require.NoError(t, err)

	assert.Equal(t, float32(2.5), next.Sigma)
	assert.False(t, next.STFLoad, "an explicit false is applied")
	assert.Equal(t, AAModeNone, next.AAMode)
	assert.True(t, next.FreezeFrameIndex, "absent keys keep their live value")
	assert.Equal(t, float32(5), next.ExposureScale)
	assert.True(t, live.STFLoad, "the input is not modified")

	_, err = DecodePatch([]byte(`not_a_field = 1`))
	require.Error(t, err)
}

func TestPatchCoversEveryKey(t *testing.T) {
	cfg := reflect.TypeOf(RenderConfiguration{})
	patch := reflect.TypeOf(Patch{})
	require.Equal(t, cfg.NumField(), patch.NumField())
	for i := 0; i < cfg.NumField(); i++ {
		f := cfg.Field(i)
		pf, ok := patch.FieldByName(f.Name)
		require.True(t, ok, f.Name)
		assert.Equal(t, f.Tag.Get("toml"), pf.Tag.Get("toml"), f.Name)
		assert.Equal(t, reflect.PointerTo(f.Type), pf.Type, f.Name)
	}
}
