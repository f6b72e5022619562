// Package gpu defines the backend-neutral GPU resource handles and descriptors shared
// by the renderer, pipelines and every render pass.
package gpu

import "errors"

var (
	// ErrDeviceUnavailable is returned when no adapter or device could be created.
	ErrDeviceUnavailable = errors.New("gpu: device unavailable")
	// ErrFeatureUnsupported is returned when an operation needs a feature the device lacks.
	ErrFeatureUnsupported = errors.New("gpu: feature unsupported")
	// ErrInvalidHandle is returned when a resource from another backend or a released resource is used.
	ErrInvalidHandle = errors.New("gpu: invalid handle")
)

// TextureFormat is the backend-neutral pixel format of a texture.
type TextureFormat int

const (
	FormatUndefined TextureFormat = iota
	FormatRGBA8UnormSrgb
	FormatRGBA8Unorm
	FormatBGRA8UnormSrgb
	FormatBGRA8Unorm
	FormatR32Uint
	FormatR32Float
	FormatRGBA16Float
	FormatRGBA32Float
	FormatDepth32Float
)

// BytesPerPixel returns the texel size of the format.
func (f TextureFormat) BytesPerPixel() uint32 {
	switch f {
	case FormatRGBA16Float:
		return 8
	case FormatRGBA32Float:
		return 16
	case FormatUndefined:
		return 0
	default:
		return 4
	}
}

// IsSRGB reports whether the format encodes sRGB on write.
func (f TextureFormat) IsSRGB() bool {
	return f == FormatRGBA8UnormSrgb || f == FormatBGRA8UnormSrgb
}

// IsDepth reports whether the format is a depth format.
func (f TextureFormat) IsDepth() bool {
	return f == FormatDepth32Float
}

func (f TextureFormat) String() string {
	switch f {
	case FormatRGBA8UnormSrgb:
		return "RGBA8_SRGB"
	case FormatRGBA8Unorm:
		return "RGBA8_UNORM"
	case FormatBGRA8UnormSrgb:
		return "BGRA8_SRGB"
	case FormatBGRA8Unorm:
		return "BGRA8_UNORM"
	case FormatR32Uint:
		return "R32_UINT"
	case FormatR32Float:
		return "R32_FLOAT"
	case FormatRGBA16Float:
		return "RGBA16_FLOAT"
	case FormatRGBA32Float:
		return "RGBA32_FLOAT"
	case FormatDepth32Float:
		return "D32"
	default:
		return "UNDEFINED"
	}
}

// TextureUsage is a bitmask of the ways a texture may be bound.
type TextureUsage uint32

const (
	TextureUsageSampled TextureUsage = 1 << iota
	TextureUsageStorage
	TextureUsageRenderTarget
	TextureUsageCopySrc
	TextureUsageCopyDst
)

// TextureDescriptor describes a 2D texture.
type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format TextureFormat
	Usage  TextureUsage
	// ClearValue is the value ClearTexture writes to every channel.
	ClearValue float32
}

// Texture is a backend owned 2D surface. Handles compare by identity.
type Texture interface {
	ID() uint64
	Descriptor() TextureDescriptor
	Release()
}

// BufferUsage is a bitmask of the ways a buffer may be bound.
type BufferUsage uint32

const (
	BufferUsageUniform BufferUsage = 1 << iota
	BufferUsageStorage
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageCopyDst
	BufferUsageCopySrc
	// BufferUsageAccelInput marks buffers read by acceleration structure builds.
	BufferUsageAccelInput
)

// BufferDescriptor describes a linear GPU buffer.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// Buffer is a backend owned linear allocation.
type Buffer interface {
	ID() uint64
	Descriptor() BufferDescriptor
	Release()
}

// FilterMode selects nearest or linear filtering in a sampler.
type FilterMode int

const (
	FilterNearest FilterMode = iota
	FilterLinear
)

// AddressMode selects how a sampler treats coordinates outside [0, 1].
type AddressMode int

const (
	AddressRepeat AddressMode = iota
	AddressClampToEdge
)

// SamplerDescriptor describes a sampler.
type SamplerDescriptor struct {
	Label         string
	Filter        FilterMode
	Address       AddressMode
	MaxAnisotropy uint16
	// Compare makes a comparison sampler for shadow lookups.
	Compare bool
}

// Sampler is a backend owned sampler object.
type Sampler interface {
	ID() uint64
	Descriptor() SamplerDescriptor
	Release()
}

// BindGroupEntry binds exactly one of Buffer, Texture or Sampler to a binding slot.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Texture Texture
	Sampler Sampler
}

// BindGroup is a set of resources bound together at one group index of a pipeline.
type BindGroup interface {
	ID() uint64
	Label() string
	Entries() []BindGroupEntry
	Release()
}

// Features reports optional device capabilities.
type Features struct {
	// RayQuery is hardware inline ray queries from compute shaders.
	RayQuery bool
	// RayTracingPipeline is ray generation / hit / miss shader pipelines.
	RayTracingPipeline bool
	// TimestampQuery enables GPU pass timing.
	TimestampQuery bool
}
