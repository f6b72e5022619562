package config

import (
	"bytes"
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/pelletier/go-toml/v2"
)

// Patch is a partially specified configuration: only the keys present in the decoded
// text are set. Applying it leaves every other field of the live configuration alone, so
// toggles made at runtime survive a reload of a file that does not mention them.
type Patch struct {
	SamplerType         *SamplerType         `toml:"sampler_type"`
	STFLoad             *bool                `toml:"stf_load"`
	FilterMode          *FilterMode          `toml:"filter_mode"`
	MagMethod           *MagnificationMethod `toml:"magnification_method"`
	MinMethod           *MinificationMethod  `toml:"minification_method"`
	MipLevelOverride    *float32             `toml:"mip_level_override"`
	AddressMode         *AddressMode         `toml:"address_mode"`
	Sigma               *float32             `toml:"sigma"`
	ReseedOnSample      *bool                `toml:"reseed_on_sample"`
	UseWhiteNoise       *bool                `toml:"use_white_noise"`
	ProducerMode        *ProducerMode        `toml:"producer"`
	ThreadGroup         *ThreadGroup         `toml:"thread_group"`
	WaveLaneLayout      *WaveLaneLayout      `toml:"wave_lane_layout"`
	DebugVisualizeLanes *bool                `toml:"debug_visualize_lanes"`
	FreezeFrameIndex    *bool                `toml:"freeze_frame_index"`

	AAMode        *AAMode        `toml:"aa_mode"`
	Quality       *QualityPreset `toml:"quality"`
	ExposureScale *float32       `toml:"exposure_scale"`
	Sharpness     *float32       `toml:"sharpness"`

	EnableAnimations *bool    `toml:"enable_animations"`
	AnimationSpeed   *float32 `toml:"animation_speed"`
	EnableFPSLimit   *bool    `toml:"enable_fps_limit"`
	FPSLimit         *uint32  `toml:"fps_limit"`
	ResolutionScale  *float32 `toml:"resolution_scale"`
}

// DecodePatch parses TOML configuration text without filling absent keys.
func DecodePatch(data []byte) (Patch, error) {
	var p Patch
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Patch{}, fmt.Errorf("config: %w", err)
	}
	return p, nil
}

// Apply returns c with every key set in p copied over. A key explicitly set to a zero
// value, like `stf_load = false`, is still copied.
func (p Patch) Apply(c RenderConfiguration) (RenderConfiguration, error) {
	if err := copier.CopyWithOption(&c, &p, copier.Option{IgnoreEmpty: true}); err != nil {
		return c, fmt.Errorf("config: applying patch: %w", err)
	}
	return c, nil
}

// Mutation wraps Apply for the change queue. A failed copy leaves the configuration as it was.
func (p Patch) Mutation() Mutation {
	return func(c *RenderConfiguration) {
		next, err := p.Apply(*c)
		if err != nil {
			logger.Errorf("dropping reloaded keys: %v", err)
			return
		}
		*c = next
	}
}
