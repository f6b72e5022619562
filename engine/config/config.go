// Package config holds the user tunable render state. A RenderConfiguration is
// immutable for the duration of a frame; mutations are queued on a Pending and
// applied at frame boundaries.
package config

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-stf/log"
	"github.com/chewxy/math32"
)

// ErrUnknownValue is returned when a configuration file names an enum value that does not exist.
var ErrUnknownValue = errors.New("config: unknown value")

var logger = log.New("config")

// RenderConfiguration is a snapshot of every user tunable render setting.
type RenderConfiguration struct {
	SamplerType         SamplerType         `toml:"sampler_type"`
	STFLoad             bool                `toml:"stf_load"`
	FilterMode          FilterMode          `toml:"filter_mode"`
	MagMethod           MagnificationMethod `toml:"magnification_method"`
	MinMethod           MinificationMethod  `toml:"minification_method"`
	MipLevelOverride    float32             `toml:"mip_level_override"`
	AddressMode         AddressMode         `toml:"address_mode"`
	Sigma               float32             `toml:"sigma"`
	ReseedOnSample      bool                `toml:"reseed_on_sample"`
	UseWhiteNoise       bool                `toml:"use_white_noise"`
	ProducerMode        ProducerMode        `toml:"producer"`
	ThreadGroup         ThreadGroup         `toml:"thread_group"`
	WaveLaneLayout      WaveLaneLayout      `toml:"wave_lane_layout"`
	DebugVisualizeLanes bool                `toml:"debug_visualize_lanes"`
	FreezeFrameIndex    bool                `toml:"freeze_frame_index"`

	AAMode        AAMode        `toml:"aa_mode"`
	Quality       QualityPreset `toml:"quality"`
	ExposureScale float32       `toml:"exposure_scale"`
	Sharpness     float32       `toml:"sharpness"`

	EnableAnimations bool    `toml:"enable_animations"`
	AnimationSpeed   float32 `toml:"animation_speed"`
	EnableFPSLimit   bool    `toml:"enable_fps_limit"`
	FPSLimit         uint32  `toml:"fps_limit"`
	ResolutionScale  float32 `toml:"resolution_scale"`
}

// Capabilities describes what the device and upscaler can do. Validate uses it to
// hide modes that can never be selected at runtime.
type Capabilities struct {
	RayTracingPipeline bool
	RayQuery           bool
	UpscalerAvailable  bool
}

// Default returns the configuration the sample starts with.
func Default() RenderConfiguration {
	return RenderConfiguration{
		SamplerType:      SamplerSTF,
		FilterMode:       FilterLinear,
		MagMethod:        Mag2x2Quad,
		MinMethod:        MinAniso,
		AddressMode:      AddressSameAsSampler,
		Sigma:            0.7,
		ProducerMode:     ProducerCompute,
		ThreadGroup:      ThreadGroup8x8,
		WaveLaneLayout:   WaveLaneNone,
		AAMode:           AAModeTAA,
		Quality:          QualityDLAA,
		ExposureScale:    2.0,
		EnableAnimations: true,
		AnimationSpeed:   1,
		EnableFPSLimit:   true,
		FPSLimit:         60,
		ResolutionScale:  1,
	}
}

// Validate clamps out-of-range values and replaces modes the capabilities cannot
// serve. It never fails; each correction is returned as a human readable note and
// logged as a warning.
//
// Parameters:
//   - caps: the device and upscaler capabilities
//
// Returns:
//   - RenderConfiguration: the corrected configuration
//   - []string: one note per corrected field
func (c RenderConfiguration) Validate(caps Capabilities) (RenderConfiguration, []string) {
	var notes []string
	fix := func(format string, args ...any) {
		n := fmt.Sprintf(format, args...)
		notes = append(notes, n)
		logger.Warningf("correcting configuration: %s", n)
	}

	if c.AAMode > AAModeUpscaled {
		fix("aa mode %d unknown, using TAA", uint32(c.AAMode))
		c.AAMode = AAModeTAA
	}
	if c.AAMode == AAModeUpscaled && !caps.UpscalerAvailable {
		fix("upscaler unavailable, using TAA")
		c.AAMode = AAModeTAA
	}
	if c.ProducerMode > ProducerRaster {
		fix("producer %d unknown, using Compute", uint32(c.ProducerMode))
		c.ProducerMode = ProducerCompute
	}
	if c.ProducerMode == ProducerRayGen && !caps.RayTracingPipeline {
		fix("ray tracing pipelines unsupported, using Compute")
		c.ProducerMode = ProducerCompute
	}
	if c.SamplerType > SamplerSplitScreen {
		fix("sampler type %d unknown, using STF", uint32(c.SamplerType))
		c.SamplerType = SamplerSTF
	}
	if c.FilterMode > FilterGaussian {
		fix("filter mode %d unknown, using Linear", uint32(c.FilterMode))
		c.FilterMode = FilterLinear
	}
	if c.MagMethod > MagWave {
		fix("magnification method %d unknown, using Default", uint32(c.MagMethod))
		c.MagMethod = MagDefault
	}
	if c.MinMethod > MinForceCustom {
		fix("minification method %d unknown, using Aniso", uint32(c.MinMethod))
		c.MinMethod = MinAniso
	}
	if c.MinMethod == MinForceCustom && (math32.IsNaN(c.MipLevelOverride) || math32.IsInf(c.MipLevelOverride, 0)) {
		fix("custom mip level %v is not finite, using Aniso", c.MipLevelOverride)
		c.MinMethod = MinAniso
		c.MipLevelOverride = 0
	}
	if c.AddressMode > AddressWrap {
		fix("address mode %d unknown, using SameAsSampler", uint32(c.AddressMode))
		c.AddressMode = AddressSameAsSampler
	}
	if c.ThreadGroup > ThreadGroup16x16 {
		fix("thread group %d unknown, using 8x8", uint32(c.ThreadGroup))
		c.ThreadGroup = ThreadGroup8x8
	}
	if c.WaveLaneLayout > WaveLaneQuadZ16x2 {
		fix("wave lane layout %d unknown, using None", uint32(c.WaveLaneLayout))
		c.WaveLaneLayout = WaveLaneNone
	}
	if c.Quality > QualityDLAA {
		fix("quality preset %d unknown, using DLAA", uint32(c.Quality))
		c.Quality = QualityDLAA
	}
	if s := clampFloat(c.Sigma, 0, 100); s != c.Sigma {
		fix("sigma %v outside [0, 100]", c.Sigma)
		c.Sigma = s
	}
	if m := clampFloat(c.MipLevelOverride, -100, 100); m != c.MipLevelOverride && c.MinMethod == MinForceCustom {
		fix("custom mip level %v outside [-100, 100]", c.MipLevelOverride)
		c.MipLevelOverride = m
	}
	if s := clampFloat(c.Sharpness, 0, 1); s != c.Sharpness {
		fix("sharpness %v outside [0, 1]", c.Sharpness)
		c.Sharpness = s
	}
	if c.ExposureScale <= 0 || math32.IsNaN(c.ExposureScale) {
		fix("exposure scale %v must be positive", c.ExposureScale)
		c.ExposureScale = 2.0
	}
	if s := clampFloat(c.ResolutionScale, 0.25, 1); s != c.ResolutionScale {
		fix("resolution scale %v outside [0.25, 1]", c.ResolutionScale)
		c.ResolutionScale = s
	}
	if c.AnimationSpeed < 0 {
		fix("animation speed %v is negative", c.AnimationSpeed)
		c.AnimationSpeed = 0
	}
	if c.EnableFPSLimit && c.FPSLimit == 0 {
		fix("fps limit 0 with limiter enabled, using 60")
		c.FPSLimit = 60
	}

	return c, notes
}

// EffectiveThreadGroup returns the dispatch group shape actually used. Without
// stochastic filtering the kernel always runs 16x16.
func (c RenderConfiguration) EffectiveThreadGroup() (x, y uint32) {
	if !c.SamplerType.STFEnabled() {
		return 16, 16
	}
	return c.ThreadGroup.Shape()
}

func clampFloat(v, lo, hi float32) float32 {
	if math32.IsNaN(v) {
		return lo
	}
	return max(lo, min(v, hi))
}
