package config

import "github.com/Carmen-Shannon/oxy-stf/common"

// Encoded values understood by the stochastic filtering shader library.
const (
	STFFilterTypeLinear   uint32 = 0
	STFFilterTypeCubic    uint32 = 1
	STFFilterTypeGaussian uint32 = 2

	STFMagnificationNone            uint32 = 0
	STFMagnification2x2Quad         uint32 = 1
	STFMagnification2x2Fine         uint32 = 2
	STFMagnification2x2FineTemporal uint32 = 3
	STFMagnification3x3FineALU      uint32 = 4
	STFMagnification3x3FineLUT      uint32 = 5
	STFMagnification4x4Fine         uint32 = 6

	STFAnisoLODMethodDefault uint32 = 0
	STFAnisoLODMethodNone    uint32 = 1

	STFAddressModeWrap  uint32 = 0
	STFAddressModeClamp uint32 = 1
)

// IEEE-754 patterns written into the mip override field by the forced minification policies.
const (
	MipOverrideNegInfBits uint32 = 0xFF800000
	MipOverridePosInfBits uint32 = 0x7F800000
	MipOverrideNaNBits    uint32 = 0x7FC00000
)

// STFFields is the encoded stochastic filtering block of the per-frame constants,
// in constant block order. Frame index is owned by the orchestrator and is not part of it.
type STFFields struct {
	SplitScreen          uint32
	FilterMode           uint32
	MagnificationMethod  uint32
	MinificationMethod   uint32
	UseMipLevelOverride  uint32
	MipLevelOverrideBits uint32
	AddressMode          uint32
	Sigma                float32
	WaveLaneLayout       uint32
	ReseedOnSample       uint32
	UseWhiteNoise        uint32
	DebugVisualizeLanes  uint32
}

// EncodeSTF converts the configuration to the values the shaders read.
// Encodings with no shader counterpart fall back to the default policy.
func (c RenderConfiguration) EncodeSTF() STFFields {
	f := STFFields{
		SplitScreen:         boolToUint(c.SamplerType == SamplerSplitScreen),
		FilterMode:          encodeFilter(c.FilterMode),
		MagnificationMethod: encodeMagnification(c.MagMethod),
		AddressMode:         encodeAddress(c.AddressMode),
		Sigma:               c.Sigma,
		WaveLaneLayout:      uint32(c.WaveLaneLayout),
		ReseedOnSample:      boolToUint(c.ReseedOnSample),
		UseWhiteNoise:       boolToUint(c.UseWhiteNoise),
		DebugVisualizeLanes: boolToUint(c.DebugVisualizeLanes),
	}

	switch c.MinMethod {
	case MinForceNegInf:
		f.MipLevelOverrideBits = MipOverrideNegInfBits
	case MinForcePosInf:
		f.MipLevelOverrideBits = MipOverridePosInfBits
	case MinForceNaN:
		f.MipLevelOverrideBits = MipOverrideNaNBits
	case MinForceCustom:
		f.MipLevelOverrideBits = common.Float32Bits(c.MipLevelOverride)
	default:
		f.MinificationMethod = STFAnisoLODMethodDefault
		f.UseMipLevelOverride = 0
		f.MipLevelOverrideBits = 0
		return f
	}
	f.MinificationMethod = STFAnisoLODMethodNone
	f.UseMipLevelOverride = 1
	return f
}

func encodeFilter(m FilterMode) uint32 {
	switch m {
	case FilterCubic:
		return STFFilterTypeCubic
	case FilterGaussian:
		return STFFilterTypeGaussian
	default:
		return STFFilterTypeLinear
	}
}

func encodeMagnification(m MagnificationMethod) uint32 {
	switch m {
	case Mag2x2Quad:
		return STFMagnification2x2Quad
	case Mag2x2Fine:
		return STFMagnification2x2Fine
	case Mag2x2FineTemporal:
		return STFMagnification2x2FineTemporal
	case Mag3x3FineALU:
		return STFMagnification3x3FineALU
	case Mag3x3FineLUT:
		return STFMagnification3x3FineLUT
	case Mag4x4Fine:
		return STFMagnification4x4Fine
	default:
		// Default and Wave have no dedicated kernel.
		return STFMagnificationNone
	}
}

func encodeAddress(m AddressMode) uint32 {
	if m == AddressClamp {
		return STFAddressModeClamp
	}
	// SameAsSampler resolves to the anisotropic wrap sampler.
	return STFAddressModeWrap
}

func boolToUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
