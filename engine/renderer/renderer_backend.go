package renderer

import (
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeHeadless selects the in-memory backend that records every command instead of
	// executing it. Buffer contents are kept so the recorded frame can be inspected.
	BackendTypeHeadless
)

func (t RendererBackendType) String() string {
	if t == BackendTypeHeadless {
		return "headless"
	}
	return "wgpu"
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// RendererBackend is the device level interface every backend implements. The Renderer
// validates arguments before forwarding to it, so backends may assume well formed input.
type RendererBackend interface {
	Features() gpu.Features
	SurfaceFormat() gpu.TextureFormat
	SurfaceSize() (width, height uint32)

	CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error)
	CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error)
	CreateSampler(desc gpu.SamplerDescriptor) (gpu.Sampler, error)
	CreateBindGroup(p pipeline.Pipeline, group uint32, entries []gpu.BindGroupEntry) (gpu.BindGroup, error)

	CompilePipeline(p pipeline.Pipeline) error
	ReleasePipeline(p pipeline.Pipeline)

	WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error
	WriteTexture(tex gpu.Texture, data []byte) error

	BeginFrame() (CommandList, error)
	Submit(cl CommandList) error
	Present() error

	ConfigureSurface(width, height uint32)
	SetPresentMode(mode PresentMode)
	WaitIdle()
	Release()
}
