package config

import (
	"fmt"
	"strings"
)

// AAMode selects the anti-aliasing path. Exactly one is active per frame.
type AAMode uint32

const (
	// AAModeNone presents the raw HDR color without temporal accumulation.
	AAModeNone AAMode = iota
	// AAModeTAA resolves through the temporal accumulator.
	AAModeTAA
	// AAModeUpscaled renders at the upscaler's input size and reconstructs to output size.
	AAModeUpscaled
)

// ProducerMode selects the geometry producer. Exactly one is active per frame.
type ProducerMode uint32

const (
	ProducerRayGen ProducerMode = iota
	ProducerCompute
	ProducerRaster
)

// SamplerType selects hardware filtering, stochastic filtering, or a split screen comparison.
type SamplerType uint32

const (
	SamplerHW SamplerType = iota
	SamplerSTF
	SamplerSplitScreen
)

// FilterMode is the stochastic filter kernel.
type FilterMode uint32

const (
	FilterLinear FilterMode = iota
	FilterCubic
	FilterGaussian
)

// MagnificationMethod selects how neighbouring lanes share samples during magnification.
type MagnificationMethod uint32

const (
	MagDefault MagnificationMethod = iota
	Mag2x2Quad
	Mag2x2Fine
	Mag2x2FineTemporal
	Mag3x3FineALU
	Mag3x3FineLUT
	Mag4x4Fine
	MagWave
)

// MinificationMethod selects the mip level policy during minification.
type MinificationMethod uint32

const (
	MinAniso MinificationMethod = iota
	MinForceNegInf
	MinForcePosInf
	MinForceNaN
	MinForceCustom
)

// AddressMode is the texture address mode used by stochastic loads.
type AddressMode uint32

const (
	AddressSameAsSampler AddressMode = iota
	AddressClamp
	AddressWrap
)

// ThreadGroup is the compute dispatch group shape.
type ThreadGroup uint32

const (
	ThreadGroup8x8 ThreadGroup = iota
	ThreadGroup16x8
	ThreadGroup8x16
	ThreadGroup16x16
)

// WaveLaneLayout overrides the lane to pixel mapping of a wave.
type WaveLaneLayout uint32

const (
	WaveLaneNone WaveLaneLayout = iota
	WaveLaneRowLinear16x2
	WaveLaneQuadZ16x2
)

// QualityPreset selects the upscaler's render to output ratio.
type QualityPreset uint32

const (
	QualityMaxPerf QualityPreset = iota
	QualityBalanced
	QualityMaxQuality
	QualityUltraPerf
	QualityDLAA
)

var (
	aaModeNames       = []string{"None", "TAA", "Upscaled"}
	producerNames     = []string{"RayGen", "Compute", "Raster"}
	samplerNames      = []string{"HW", "STF", "SplitScreen"}
	filterNames       = []string{"Linear", "Cubic", "Gaussian"}
	magNames          = []string{"Default", "2x2Quad", "2x2Fine", "2x2FineTemporal", "3x3FineALU", "3x3FineLUT", "4x4Fine", "Wave"}
	minNames          = []string{"Aniso", "ForceNegInf", "ForcePosInf", "ForceNaN", "ForceCustom"}
	addressNames      = []string{"SameAsSampler", "Clamp", "Wrap"}
	threadGroupNames  = []string{"8x8", "16x8", "8x16", "16x16"}
	waveLaneNames     = []string{"None", "RowLinear16x2", "QuadZ16x2"}
	qualityNames      = []string{"MaxPerf", "Balanced", "MaxQuality", "UltraPerf", "DLAA"}
	threadGroupShapes = [][2]uint32{{8, 8}, {16, 8}, {8, 16}, {16, 16}}
	qualityRatios     = []float32{0.5, 0.58, 0.667, 0.333, 1.0}
)

func enumName(names []string, v uint32) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("Unknown(%d)", v)
}

func parseEnum(kind string, names []string, text []byte) (uint32, error) {
	s := strings.TrimSpace(string(text))
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q (want one of %s)", ErrUnknownValue, kind, s, strings.Join(names, ", "))
}

func (m AAMode) String() string              { return enumName(aaModeNames, uint32(m)) }
func (m ProducerMode) String() string        { return enumName(producerNames, uint32(m)) }
func (m SamplerType) String() string         { return enumName(samplerNames, uint32(m)) }
func (m FilterMode) String() string          { return enumName(filterNames, uint32(m)) }
func (m MagnificationMethod) String() string { return enumName(magNames, uint32(m)) }
func (m MinificationMethod) String() string  { return enumName(minNames, uint32(m)) }
func (m AddressMode) String() string         { return enumName(addressNames, uint32(m)) }
func (m ThreadGroup) String() string         { return enumName(threadGroupNames, uint32(m)) }
func (m WaveLaneLayout) String() string      { return enumName(waveLaneNames, uint32(m)) }
func (m QualityPreset) String() string       { return enumName(qualityNames, uint32(m)) }

func (m AAMode) MarshalText() ([]byte, error)              { return []byte(m.String()), nil }
func (m ProducerMode) MarshalText() ([]byte, error)        { return []byte(m.String()), nil }
func (m SamplerType) MarshalText() ([]byte, error)         { return []byte(m.String()), nil }
func (m FilterMode) MarshalText() ([]byte, error)          { return []byte(m.String()), nil }
func (m MagnificationMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
func (m MinificationMethod) MarshalText() ([]byte, error)  { return []byte(m.String()), nil }
func (m AddressMode) MarshalText() ([]byte, error)         { return []byte(m.String()), nil }
func (m ThreadGroup) MarshalText() ([]byte, error)         { return []byte(m.String()), nil }
func (m WaveLaneLayout) MarshalText() ([]byte, error)      { return []byte(m.String()), nil }
func (m QualityPreset) MarshalText() ([]byte, error)       { return []byte(m.String()), nil }

func (m *AAMode) UnmarshalText(text []byte) error {
	v, err := parseEnum("aa mode", aaModeNames, text)
	*m = AAMode(v)
	return err
}

func (m *ProducerMode) UnmarshalText(text []byte) error {
	v, err := parseEnum("producer", producerNames, text)
	*m = ProducerMode(v)
	return err
}

func (m *SamplerType) UnmarshalText(text []byte) error {
	v, err := parseEnum("sampler type", samplerNames, text)
	*m = SamplerType(v)
	return err
}

func (m *FilterMode) UnmarshalText(text []byte) error {
	v, err := parseEnum("filter mode", filterNames, text)
	*m = FilterMode(v)
	return err
}

func (m *MagnificationMethod) UnmarshalText(text []byte) error {
	v, err := parseEnum("magnification method", magNames, text)
	*m = MagnificationMethod(v)
	return err
}

func (m *MinificationMethod) UnmarshalText(text []byte) error {
	v, err := parseEnum("minification method", minNames, text)
	*m = MinificationMethod(v)
	return err
}

func (m *AddressMode) UnmarshalText(text []byte) error {
	v, err := parseEnum("address mode", addressNames, text)
	*m = AddressMode(v)
	return err
}

func (m *ThreadGroup) UnmarshalText(text []byte) error {
	v, err := parseEnum("thread group", threadGroupNames, text)
	*m = ThreadGroup(v)
	return err
}

func (m *WaveLaneLayout) UnmarshalText(text []byte) error {
	v, err := parseEnum("wave lane layout", waveLaneNames, text)
	*m = WaveLaneLayout(v)
	return err
}

func (m *QualityPreset) UnmarshalText(text []byte) error {
	v, err := parseEnum("quality preset", qualityNames, text)
	*m = QualityPreset(v)
	return err
}

// Shape returns the group dimensions in threads.
func (g ThreadGroup) Shape() (x, y uint32) {
	if int(g) >= len(threadGroupShapes) {
		return 16, 16
	}
	s := threadGroupShapes[g]
	return s[0], s[1]
}

// Ratio returns the render to output scale of the preset.
func (q QualityPreset) Ratio() float32 {
	if int(q) >= len(qualityRatios) {
		return 1
	}
	return qualityRatios[q]
}

// Next cycles to the following preset, wrapping around.
func (q QualityPreset) Next() QualityPreset {
	return QualityPreset((uint32(q) + 1) % uint32(len(qualityNames)))
}

// Next cycles to the following sampler type, wrapping around.
func (s SamplerType) Next() SamplerType {
	return SamplerType((uint32(s) + 1) % uint32(len(samplerNames)))
}

// STFEnabled reports whether stochastic filtering is on for this sampler type.
func (s SamplerType) STFEnabled() bool {
	return s != SamplerHW
}

// Title is the window title suffix naming the producer's tracing path.
func (m ProducerMode) Title() string {
	switch m {
	case ProducerRayGen:
		return "- using RayGen(TraceRay)"
	case ProducerCompute:
		return "- using Compute(TraceRayInline)"
	default:
		return "- using Raster"
	}
}
