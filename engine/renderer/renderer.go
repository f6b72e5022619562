package renderer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/log"
)

var logger = log.New("renderer")

// resourceIDs hands out process unique handle identities across backends.
var resourceIDs atomic.Uint64

func nextID() uint64 {
	return resourceIDs.Add(1)
}

// renderer is the implementation of the Renderer interface.
// It validates every call against the pipeline layouts and resource descriptors before
// forwarding it to the selected backend.
type renderer struct {
	mu *sync.Mutex

	backendType RendererBackendType
	backend     RendererBackend

	surface              Surface
	forceFallbackAdapter bool
	debug                bool
	headlessWidth        uint32
	headlessHeight       uint32
	headlessFeatures     *gpu.Features
	pendingPresentMode   *PresentMode
}

// Renderer defines the device layer used by every render pass. It creates backend resources,
// compiles pipelines, records frames into a CommandList and presents them. Renderer also
// satisfies pipeline.Compiler so a pipeline.Cache can compile through it.
type Renderer interface {
	// Backend returns the backend type the renderer was created with.
	//
	// Returns:
	//   - RendererBackendType: the backend type
	Backend() RendererBackendType

	// Features reports the optional capabilities of the device.
	//
	// Returns:
	//   - gpu.Features: the device features
	Features() gpu.Features

	// SurfaceFormat returns the pixel format of the presentation surface.
	//
	// Returns:
	//   - gpu.TextureFormat: the surface format
	SurfaceFormat() gpu.TextureFormat

	// SurfaceSize returns the size of the presentation surface in pixels.
	//
	// Returns:
	//   - uint32: the surface width
	//   - uint32: the surface height
	SurfaceSize() (width, height uint32)

	// CreateTexture allocates a 2D texture.
	//
	// Parameters:
	//   - desc: the texture descriptor
	//
	// Returns:
	//   - gpu.Texture: the texture handle
	//   - error: an error if the descriptor is invalid or the allocation fails
	CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error)

	// CreateBuffer allocates a linear buffer.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - gpu.Buffer: the buffer handle
	//   - error: an error if the descriptor is invalid or the allocation fails
	CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error)

	// CreateSampler creates a sampler.
	//
	// Parameters:
	//   - desc: the sampler descriptor
	//
	// Returns:
	//   - gpu.Sampler: the sampler handle
	//   - error: an error if creation fails
	CreateSampler(desc gpu.SamplerDescriptor) (gpu.Sampler, error)

	// CreateBindGroup binds resources to one group of a compiled pipeline. Every binding of the
	// pipeline's layout must be provided exactly once with a compatible resource.
	//
	// Parameters:
	//   - p: the compiled pipeline whose layout the group follows
	//   - group: the group index
	//   - entries: the resources, one per binding
	//
	// Returns:
	//   - gpu.BindGroup: the bind group
	//   - error: an error if an entry is missing, extra or incompatible
	CreateBindGroup(p pipeline.Pipeline, group uint32, entries []gpu.BindGroupEntry) (gpu.BindGroup, error)

	// CompilePipeline creates the backend object of a pipeline and stores it on the pipeline.
	//
	// Parameters:
	//   - p: the pipeline to compile
	//
	// Returns:
	//   - error: gpu.ErrFeatureUnsupported when the pipeline needs ray tracing the device lacks,
	//     or the backend's compile error
	CompilePipeline(p pipeline.Pipeline) error

	// ReleasePipeline destroys the backend object of a pipeline.
	//
	// Parameters:
	//   - p: the pipeline to release
	ReleasePipeline(p pipeline.Pipeline)

	// WriteBuffer uploads data into a buffer at offset.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: the byte offset into buf
	//   - data: the bytes to upload
	//
	// Returns:
	//   - error: an error if the write is out of bounds
	WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error

	// WriteTexture uploads a full image into a texture. The data is tightly packed rows.
	//
	// Parameters:
	//   - tex: the destination texture
	//   - data: width * height * bytes per pixel bytes
	//
	// Returns:
	//   - error: an error if the data size does not match the texture
	WriteTexture(tex gpu.Texture, data []byte) error

	// BeginFrame acquires the next surface texture and opens a command list for the frame.
	//
	// Returns:
	//   - CommandList: the frame's command list
	//   - error: an error if the surface could not be acquired
	BeginFrame() (CommandList, error)

	// Submit finishes a command list and queues it for execution.
	//
	// Parameters:
	//   - cl: the command list returned by BeginFrame
	//
	// Returns:
	//   - error: an error if encoding failed
	Submit(cl CommandList) error

	// Present shows the frame's surface texture.
	//
	// Returns:
	//   - error: an error if there is no frame to present
	Present() error

	// Resize reconfigures the presentation surface.
	//
	// Parameters:
	//   - width: the new surface width
	//   - height: the new surface height
	Resize(width, height uint32)

	// SetPresentMode changes the present mode, applied on the next Resize.
	//
	// Parameters:
	//   - mode: the present mode
	SetPresentMode(mode PresentMode)

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle()

	// Release destroys the device. The renderer must not be used afterwards.
	Release()
}

var (
	_ Renderer          = &renderer{}
	_ pipeline.Compiler = &renderer{}
)

// NewRenderer creates a Renderer on the selected backend.
//
// Parameters:
//   - backendType: the backend to create
//   - options: builder options; BackendTypeWGPU requires WithSurface
//
// Returns:
//   - Renderer: the renderer
//   - error: an error wrapping gpu.ErrDeviceUnavailable if no device could be created
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:             &sync.Mutex{},
		backendType:    backendType,
		headlessWidth:  1280,
		headlessHeight: 720,
	}
	for _, opt := range options {
		opt(r)
	}

	switch backendType {
	case BackendTypeHeadless:
		features := gpu.Features{RayQuery: true, RayTracingPipeline: true}
		if r.headlessFeatures != nil {
			features = *r.headlessFeatures
		}
		r.backend = newHeadlessRendererBackend(r.headlessWidth, r.headlessHeight, features)
	case BackendTypeWGPU:
		if r.surface == nil {
			return nil, fmt.Errorf("%w: wgpu backend needs a surface", gpu.ErrDeviceUnavailable)
		}
		b, err := newWGPURendererBackend(r.surface.SurfaceDescriptor(), r.forceFallbackAdapter)
		if err != nil {
			return nil, err
		}
		r.backend = b
	default:
		return nil, fmt.Errorf("%w: unknown backend %d", gpu.ErrDeviceUnavailable, backendType)
	}

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}
	if r.surface != nil {
		r.backend.ConfigureSurface(uint32(r.surface.Width()), uint32(r.surface.Height()))
	}

	f := r.backend.Features()
	logger.Noticef("%s device ready, surface %s, ray query %t, ray pipelines %t", backendType, r.backend.SurfaceFormat(), f.RayQuery, f.RayTracingPipeline)
	return r, nil
}

func (r *renderer) Backend() RendererBackendType {
	return r.backendType
}

func (r *renderer) Features() gpu.Features {
	return r.backend.Features()
}

func (r *renderer) SurfaceFormat() gpu.TextureFormat {
	return r.backend.SurfaceFormat()
}

func (r *renderer) SurfaceSize() (uint32, uint32) {
	return r.backend.SurfaceSize()
}

func (r *renderer) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("renderer: texture %s has zero size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	if desc.Format == gpu.FormatUndefined {
		return nil, fmt.Errorf("renderer: texture %s has no format", desc.Label)
	}
	if desc.Format.IsDepth() && desc.Usage&gpu.TextureUsageStorage != 0 {
		return nil, fmt.Errorf("renderer: depth texture %s cannot be a storage texture", desc.Label)
	}
	return r.backend.CreateTexture(desc)
}

func (r *renderer) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("renderer: buffer %s has zero size", desc.Label)
	}
	return r.backend.CreateBuffer(desc)
}

func (r *renderer) CreateSampler(desc gpu.SamplerDescriptor) (gpu.Sampler, error) {
	return r.backend.CreateSampler(desc)
}

func (r *renderer) CreateBindGroup(p pipeline.Pipeline, group uint32, entries []gpu.BindGroupEntry) (gpu.BindGroup, error) {
	if p == nil || p.Handle() == nil {
		return nil, fmt.Errorf("renderer: bind group %d needs a compiled pipeline", group)
	}
	layout, ok := p.BindGroupLayout(group)
	if !ok {
		return nil, fmt.Errorf("renderer: pipeline %s declares no group %d", p.PipelineKey(), group)
	}
	if err := validateBindGroup(layout, entries); err != nil {
		return nil, fmt.Errorf("renderer: pipeline %s group %d: %w", p.PipelineKey(), group, err)
	}
	return r.backend.CreateBindGroup(p, group, entries)
}

func (r *renderer) CompilePipeline(p pipeline.Pipeline) error {
	f := r.backend.Features()
	if p.Type() == pipeline.PipelineTypeRayTracing && !f.RayTracingPipeline {
		return fmt.Errorf("pipeline %s: %w: ray tracing pipelines", p.PipelineKey(), gpu.ErrFeatureUnsupported)
	}
	for _, layout := range p.BindGroupLayouts() {
		for _, e := range layout.Entries {
			if e.Kind == gpu.BindingAccelerationStructure && !f.RayQuery && !f.RayTracingPipeline {
				return fmt.Errorf("pipeline %s: %w: acceleration structure binding %s", p.PipelineKey(), gpu.ErrFeatureUnsupported, e.Name)
			}
		}
	}
	if err := r.backend.CompilePipeline(p); err != nil {
		return err
	}
	if r.debug {
		logger.Debugf("compiled %s pipeline %s [%s]", p.Type(), p.PipelineKey(), p.Defines().Key())
	}
	return nil
}

func (r *renderer) ReleasePipeline(p pipeline.Pipeline) {
	if p == nil || p.Handle() == nil {
		return
	}
	r.backend.ReleasePipeline(p)
	p.SetHandle(nil)
}

func (r *renderer) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	size := buf.Descriptor().Size
	if offset+uint64(len(data)) > size {
		return fmt.Errorf("renderer: write of %d bytes at %d overflows %s (%d bytes)", len(data), offset, buf.Descriptor().Label, size)
	}
	if buf.Descriptor().Usage&gpu.BufferUsageCopyDst == 0 {
		return fmt.Errorf("renderer: buffer %s is not writable", buf.Descriptor().Label)
	}
	return r.backend.WriteBuffer(buf, offset, data)
}

func (r *renderer) WriteTexture(tex gpu.Texture, data []byte) error {
	d := tex.Descriptor()
	want := int(d.Width * d.Height * d.Format.BytesPerPixel())
	if len(data) != want {
		return fmt.Errorf("renderer: texture %s wants %d bytes, got %d", d.Label, want, len(data))
	}
	if d.Usage&gpu.TextureUsageCopyDst == 0 {
		return fmt.Errorf("renderer: texture %s is not writable", d.Label)
	}
	return r.backend.WriteTexture(tex, data)
}

func (r *renderer) BeginFrame() (CommandList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.BeginFrame()
}

func (r *renderer) Submit(cl CommandList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.Submit(cl)
}

func (r *renderer) Present() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.Present()
}

func (r *renderer) Resize(width, height uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend.ConfigureSurface(width, height)
	logger.Infof("surface resized to %dx%d", width, height)
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) WaitIdle() {
	r.backend.WaitIdle()
}

func (r *renderer) Release() {
	r.backend.Release()
}

// validateBindGroup checks entries against a reflected layout.
func validateBindGroup(layout gpu.BindGroupLayout, entries []gpu.BindGroupEntry) error {
	provided := make(map[uint32]gpu.BindGroupEntry, len(entries))
	for _, e := range entries {
		if _, dup := provided[e.Binding]; dup {
			return fmt.Errorf("binding %d provided twice", e.Binding)
		}
		if _, ok := layout.Entry(e.Binding); !ok {
			return fmt.Errorf("binding %d is not declared", e.Binding)
		}
		provided[e.Binding] = e
	}

	for _, le := range layout.Entries {
		e, ok := provided[le.Binding]
		if !ok {
			return fmt.Errorf("binding %d (%s) not provided", le.Binding, le.Name)
		}
		if err := checkEntry(le, e); err != nil {
			return fmt.Errorf("binding %d (%s): %w", le.Binding, le.Name, err)
		}
	}
	return nil
}

func checkEntry(le gpu.BindingLayoutEntry, e gpu.BindGroupEntry) error {
	switch le.Kind {
	case gpu.BindingUniformBuffer, gpu.BindingStorageBuffer, gpu.BindingReadOnlyStorageBuffer, gpu.BindingAccelerationStructure:
		if e.Buffer == nil {
			return fmt.Errorf("want a buffer")
		}
		d := e.Buffer.Descriptor()
		if le.Kind == gpu.BindingUniformBuffer && d.Usage&gpu.BufferUsageUniform == 0 {
			return fmt.Errorf("buffer %s lacks uniform usage", d.Label)
		}
		if (le.Kind == gpu.BindingStorageBuffer || le.Kind == gpu.BindingReadOnlyStorageBuffer) && d.Usage&gpu.BufferUsageStorage == 0 {
			return fmt.Errorf("buffer %s lacks storage usage", d.Label)
		}
		if d.Size < le.MinBindingSize {
			return fmt.Errorf("buffer %s is %d bytes, shader needs %d", d.Label, d.Size, le.MinBindingSize)
		}
	case gpu.BindingSampledTexture, gpu.BindingDepthTexture:
		if e.Texture == nil {
			return fmt.Errorf("want a texture")
		}
		d := e.Texture.Descriptor()
		if d.Usage&gpu.TextureUsageSampled == 0 {
			return fmt.Errorf("texture %s lacks sampled usage", d.Label)
		}
		if d.Format.IsDepth() != (le.Kind == gpu.BindingDepthTexture) {
			return fmt.Errorf("texture %s format %s does not match the binding", d.Label, d.Format)
		}
	case gpu.BindingStorageTexture:
		if e.Texture == nil {
			return fmt.Errorf("want a storage texture")
		}
		d := e.Texture.Descriptor()
		if d.Usage&gpu.TextureUsageStorage == 0 {
			return fmt.Errorf("texture %s lacks storage usage", d.Label)
		}
		if d.Format != le.StorageFormat {
			return fmt.Errorf("texture %s is %s, shader writes %s", d.Label, d.Format, le.StorageFormat)
		}
	case gpu.BindingSampler, gpu.BindingComparisonSampler:
		if e.Sampler == nil {
			return fmt.Errorf("want a sampler")
		}
		if e.Sampler.Descriptor().Compare != (le.Kind == gpu.BindingComparisonSampler) {
			return fmt.Errorf("sampler %s comparison mode does not match the binding", e.Sampler.Descriptor().Label)
		}
	}
	return nil
}
