package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// wgpuRendererBackendImpl is the WebGPU implementation of RendererBackend.
// WebGPU exposes neither ray queries nor ray tracing pipelines, so both features are reported
// as unavailable and TraceRays always fails with gpu.ErrFeatureUnsupported.
type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	width, height uint32
	presentMode   wgpu.PresentMode // defaults to PresentModeImmediate (Uncapped)

	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// wgpuTexture wraps a texture and the default view every binding uses.
type wgpuTexture struct {
	id      uint64
	desc    gpu.TextureDescriptor
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

func (t *wgpuTexture) ID() uint64                        { return t.id }
func (t *wgpuTexture) Descriptor() gpu.TextureDescriptor { return t.desc }

func (t *wgpuTexture) Release() {
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.texture != nil {
		t.texture.Release()
		t.texture = nil
	}
}

type wgpuBuffer struct {
	id     uint64
	desc   gpu.BufferDescriptor
	buffer *wgpu.Buffer
}

func (b *wgpuBuffer) ID() uint64                       { return b.id }
func (b *wgpuBuffer) Descriptor() gpu.BufferDescriptor { return b.desc }

func (b *wgpuBuffer) Release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}

type wgpuSampler struct {
	id      uint64
	desc    gpu.SamplerDescriptor
	sampler *wgpu.Sampler
}

func (s *wgpuSampler) ID() uint64                        { return s.id }
func (s *wgpuSampler) Descriptor() gpu.SamplerDescriptor { return s.desc }

func (s *wgpuSampler) Release() {
	if s.sampler != nil {
		s.sampler.Release()
		s.sampler = nil
	}
}

type wgpuBindGroup struct {
	id      uint64
	label   string
	entries []gpu.BindGroupEntry
	group   *wgpu.BindGroup
}

func (g *wgpuBindGroup) ID() uint64                    { return g.id }
func (g *wgpuBindGroup) Label() string                 { return g.label }
func (g *wgpuBindGroup) Entries() []gpu.BindGroupEntry { return g.entries }

func (g *wgpuBindGroup) Release() {
	if g.group != nil {
		g.group.Release()
		g.group = nil
	}
}

// wgpuPipelineHandle is stored on compiled pipelines. Bind groups are created against its layouts.
type wgpuPipelineHandle struct {
	render  *wgpu.RenderPipeline
	compute *wgpu.ComputePipeline
	layouts []*wgpu.BindGroupLayout
}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool) (*wgpuRendererBackendImpl, error) {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
	}
	w.surface = w.instance.CreateSurface(surfaceDescriptor)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: request adapter: %v", gpu.ErrDeviceUnavailable, err)
	}
	w.adapter = a

	// the trace kernel binds six storage buffers and seven storage textures across its groups
	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = 8
	limits.MaxStorageBuffersPerShaderStage = 10
	limits.MaxStorageTexturesPerShaderStage = 8

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "STF Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: request device: %v", gpu.ErrDeviceUnavailable, err)
	}
	w.device = d
	w.queue = d.GetQueue()

	capabilities := w.surface.GetCapabilities(w.adapter)
	if len(capabilities.Formats) == 0 {
		return nil, fmt.Errorf("%w: surface reports no formats", gpu.ErrDeviceUnavailable)
	}
	w.surfaceFormat = capabilities.Formats[0]
	for _, f := range capabilities.Formats {
		if f == wgpu.TextureFormatBGRA8UnormSrgb || f == wgpu.TextureFormatRGBA8UnormSrgb {
			w.surfaceFormat = f
			break
		}
	}
	return w, nil
}

func (b *wgpuRendererBackendImpl) Features() gpu.Features {
	return gpu.Features{}
}

func (b *wgpuRendererBackendImpl) SurfaceFormat() gpu.TextureFormat {
	switch b.surfaceFormat {
	case wgpu.TextureFormatBGRA8UnormSrgb:
		return gpu.FormatBGRA8UnormSrgb
	case wgpu.TextureFormatRGBA8UnormSrgb:
		return gpu.FormatRGBA8UnormSrgb
	case wgpu.TextureFormatRGBA8Unorm:
		return gpu.FormatRGBA8Unorm
	default:
		return gpu.FormatBGRA8Unorm
	}
}

func (b *wgpuRendererBackendImpl) SurfaceSize() (uint32, uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       width,
		Height:      height,
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	b.width, b.height = width, height
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

func (b *wgpuRendererBackendImpl) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        toWGPUFormat(desc.Format),
		Usage:         toWGPUTextureUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create texture %s: %w", desc.Label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("failed to create texture view %s: %w", desc.Label, err)
	}
	return &wgpuTexture{id: nextID(), desc: desc, texture: tex, view: view}, nil
}

func (b *wgpuRendererBackendImpl) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             desc.Size,
		Usage:            toWGPUBufferUsage(desc.Usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %s: %w", desc.Label, err)
	}
	return &wgpuBuffer{id: nextID(), desc: desc, buffer: buf}, nil
}

func (b *wgpuRendererBackendImpl) CreateSampler(desc gpu.SamplerDescriptor) (gpu.Sampler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	address := wgpu.AddressModeRepeat
	if desc.Address == gpu.AddressClampToEdge {
		address = wgpu.AddressModeClampToEdge
	}
	filter, mipFilter := wgpu.FilterModeNearest, wgpu.MipmapFilterModeNearest
	if desc.Filter == gpu.FilterLinear {
		filter, mipFilter = wgpu.FilterModeLinear, wgpu.MipmapFilterModeLinear
	}
	sd := &wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  address,
		AddressModeV:  address,
		AddressModeW:  address,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  mipFilter,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: max(desc.MaxAnisotropy, 1),
	}
	if desc.Compare {
		// shadow cascades use standard depth, nearer occluders store smaller values
		sd.Compare = wgpu.CompareFunctionLess
		sd.MaxAnisotropy = 1
	}
	samp, err := b.device.CreateSampler(sd)
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler %s: %w", desc.Label, err)
	}
	return &wgpuSampler{id: nextID(), desc: desc, sampler: samp}, nil
}

func (b *wgpuRendererBackendImpl) CreateBindGroup(p pipeline.Pipeline, group uint32, entries []gpu.BindGroupEntry) (gpu.BindGroup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle, ok := p.Handle().(*wgpuPipelineHandle)
	if !ok || int(group) >= len(handle.layouts) || handle.layouts[group] == nil {
		return nil, fmt.Errorf("%w: pipeline %s has no wgpu layout for group %d", gpu.ErrInvalidHandle, p.PipelineKey(), group)
	}

	bindGroupEntries := make([]wgpu.BindGroupEntry, len(entries))
	for i, e := range entries {
		switch {
		case e.Buffer != nil:
			buf, ok := e.Buffer.(*wgpuBuffer)
			if !ok || buf.buffer == nil {
				return nil, fmt.Errorf("%w: buffer at binding %d", gpu.ErrInvalidHandle, e.Binding)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: e.Binding,
				Buffer:  buf.buffer,
				Offset:  0,
				Size:    wgpu.WholeSize,
			}
		case e.Texture != nil:
			tex, ok := e.Texture.(*wgpuTexture)
			if !ok || tex.view == nil {
				return nil, fmt.Errorf("%w: texture at binding %d", gpu.ErrInvalidHandle, e.Binding)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding:     e.Binding,
				TextureView: tex.view,
			}
		case e.Sampler != nil:
			samp, ok := e.Sampler.(*wgpuSampler)
			if !ok || samp.sampler == nil {
				return nil, fmt.Errorf("%w: sampler at binding %d", gpu.ErrInvalidHandle, e.Binding)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: e.Binding,
				Sampler: samp.sampler,
			}
		}
	}

	label := fmt.Sprintf("%s/%d", p.PipelineKey(), group)
	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label + " Bind Group",
		Layout:  handle.layouts[group],
		Entries: bindGroupEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group %s: %w", label, err)
	}
	return &wgpuBindGroup{id: nextID(), label: label, entries: entries, group: bindGroup}, nil
}

func (b *wgpuRendererBackendImpl) CompilePipeline(p pipeline.Pipeline) error {
	if p.Type() == pipeline.PipelineTypeRayTracing {
		return fmt.Errorf("pipeline %s: %w", p.PipelineKey(), gpu.ErrFeatureUnsupported)
	}

	layouts, pipelineLayout, err := b.createPipelineLayout(p)
	if err != nil {
		return err
	}

	switch p.Type() {
	case pipeline.PipelineTypeCompute:
		computeShader := p.Shader(shader.ShaderTypeCompute)
		module, err := b.createShaderModule(computeShader)
		if err != nil {
			return err
		}
		created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label:  p.PipelineKey() + " Compute Pipeline",
			Layout: pipelineLayout,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: computeShader.EntryPoint(),
			},
		})
		if err != nil {
			return fmt.Errorf("pipeline %s: %w", p.PipelineKey(), err)
		}
		p.SetHandle(&wgpuPipelineHandle{compute: created, layouts: layouts})
	case pipeline.PipelineTypeRender:
		created, err := b.createRenderPipeline(p, pipelineLayout)
		if err != nil {
			return fmt.Errorf("pipeline %s: %w", p.PipelineKey(), err)
		}
		p.SetHandle(&wgpuPipelineHandle{render: created, layouts: layouts})
	}
	return nil
}

func (b *wgpuRendererBackendImpl) createShaderModule(s shader.Shader) (*wgpu.ShaderModule, error) {
	return b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: s.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.Source(),
		},
	})
}

// createPipelineLayout creates one bind group layout per group index of the pipeline's merged
// layouts. Unused group indices below the highest one get an empty layout.
func (b *wgpuRendererBackendImpl) createPipelineLayout(p pipeline.Pipeline) ([]*wgpu.BindGroupLayout, *wgpu.PipelineLayout, error) {
	merged := p.BindGroupLayouts()
	maxGroup := -1
	for g := range merged {
		if int(g) > maxGroup {
			maxGroup = int(g)
		}
	}

	bindGroupLayouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := 0; g <= maxGroup; g++ {
		desc := wgpu.BindGroupLayoutDescriptor{Label: fmt.Sprintf("%s/%d", p.PipelineKey(), g)}
		for _, e := range merged[uint32(g)].Entries {
			entry, err := toWGPULayoutEntry(e)
			if err != nil {
				return nil, nil, fmt.Errorf("pipeline %s group %d: %w", p.PipelineKey(), g, err)
			}
			desc.Entries = append(desc.Entries, entry)
		}
		layout, err := b.device.CreateBindGroupLayout(&desc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create bind group layout for group %d: %w", g, err)
		}
		bindGroupLayouts[g] = layout
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return nil, nil, err
	}
	return bindGroupLayouts, pipelineLayout, nil
}

func (b *wgpuRendererBackendImpl) createRenderPipeline(p pipeline.Pipeline, layout *wgpu.PipelineLayout) (*wgpu.RenderPipeline, error) {
	vertexShader := p.Shader(shader.ShaderTypeVertex)
	vs, err := b.createShaderModule(vertexShader)
	if err != nil {
		return nil, err
	}

	vertexLayouts := make([]wgpu.VertexBufferLayout, 0, len(vertexShader.VertexLayouts()))
	for _, vl := range vertexShader.VertexLayouts() {
		attrs := make([]wgpu.VertexAttribute, len(vl.Attributes))
		for i, a := range vl.Attributes {
			attrs[i] = wgpu.VertexAttribute{
				Format:         toWGPUVertexFormat(a.Format),
				Offset:         a.Offset,
				ShaderLocation: a.Location,
			}
		}
		vertexLayouts = append(vertexLayouts, wgpu.VertexBufferLayout{
			ArrayStride: vl.Stride,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes:  attrs,
		})
	}

	var fragment *wgpu.FragmentState
	if fragmentShader := p.Shader(shader.ShaderTypeFragment); fragmentShader != nil {
		fs, err := b.createShaderModule(fragmentShader)
		if err != nil {
			return nil, err
		}
		targets := make([]wgpu.ColorTargetState, len(p.ColorFormats()))
		for i, f := range p.ColorFormats() {
			targets[i] = wgpu.ColorTargetState{
				Format:    toWGPUFormat(f),
				WriteMask: wgpu.ColorWriteMaskAll,
			}
		}
		fragment = &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: fragmentShader.EntryPoint(),
			Targets:    targets,
		}
	}

	var depthStencil *wgpu.DepthStencilState
	if p.DepthTestEnabled() {
		depthStencil = &wgpu.DepthStencilState{
			Format:              toWGPUFormat(p.DepthFormat()),
			DepthWriteEnabled:   p.DepthWriteEnabled(),
			DepthCompare:        toWGPUCompare(p.DepthCompare()),
			DepthBias:           p.DepthBias(),
			DepthBiasSlopeScale: p.DepthBiasSlopeScale(),
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	topology := wgpu.PrimitiveTopologyTriangleList
	if p.Topology() == gpu.TopologyLineList {
		topology = wgpu.PrimitiveTopologyLineList
	}
	cull := wgpu.CullModeNone
	switch p.CullMode() {
	case gpu.CullFront:
		cull = wgpu.CullModeFront
	case gpu.CullBack:
		cull = wgpu.CullModeBack
	}

	return b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: vertexShader.EntryPoint(),
			Buffers:    vertexLayouts,
		},
		Fragment: fragment,
		Primitive: wgpu.PrimitiveState{
			Topology:  topology,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  cull,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depthStencil,
	})
}

func (b *wgpuRendererBackendImpl) ReleasePipeline(p pipeline.Pipeline) {
	handle, ok := p.Handle().(*wgpuPipelineHandle)
	if !ok {
		return
	}
	if handle.render != nil {
		handle.render.Release()
	}
	if handle.compute != nil {
		handle.compute.Release()
	}
	for _, l := range handle.layouts {
		if l != nil {
			l.Release()
		}
	}
}

func (b *wgpuRendererBackendImpl) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	wb, ok := buf.(*wgpuBuffer)
	if !ok || wb.buffer == nil {
		return fmt.Errorf("%w: write to %s", gpu.ErrInvalidHandle, buf.Descriptor().Label)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.WriteBuffer(wb.buffer, offset, data)
	return nil
}

func (b *wgpuRendererBackendImpl) WriteTexture(tex gpu.Texture, data []byte) error {
	wt, ok := tex.(*wgpuTexture)
	if !ok || wt.texture == nil {
		return fmt.Errorf("%w: write to %s", gpu.ErrInvalidHandle, tex.Descriptor().Label)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	d := wt.desc
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  wt.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  d.Width * d.Format.BytesPerPixel(),
			RowsPerImage: d.Height,
		},
		&wgpu.Extent3D{
			Width:              d.Width,
			Height:             d.Height,
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (b *wgpuRendererBackendImpl) BeginFrame() (CommandList, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface != nil {
		return nil, errors.New("renderer: previous frame surface not yet presented")
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return nil, err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return nil, err
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return nil, err
	}

	b.frameSurface = surfaceTexture
	b.frameView = view
	return &wgpuCommandList{
		encoder: encoder,
		surface: &wgpuTexture{
			id: nextID(),
			desc: gpu.TextureDescriptor{
				Label:  "surface",
				Width:  b.width,
				Height: b.height,
				Format: b.SurfaceFormat(),
				Usage:  gpu.TextureUsageRenderTarget,
			},
			view: view,
		},
	}, nil
}

func (b *wgpuRendererBackendImpl) Submit(cl CommandList) error {
	wcl, ok := cl.(*wgpuCommandList)
	if !ok || wcl.encoder == nil {
		return fmt.Errorf("%w: command list", gpu.ErrInvalidHandle)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	commandBuffer, err := wcl.encoder.Finish(nil)
	if err != nil {
		wcl.encoder.Release()
		wcl.encoder = nil
		return fmt.Errorf("renderer: finish frame: %w", err)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	wcl.encoder.Release()
	wcl.encoder = nil
	return nil
}

func (b *wgpuRendererBackendImpl) Present() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface == nil {
		return errors.New("renderer: present without a frame")
	}
	b.surface.Present()

	b.frameView.Release()
	b.frameView = nil
	b.frameSurface.Release()
	b.frameSurface = nil
	return nil
}

func (b *wgpuRendererBackendImpl) WaitIdle() {
	b.device.Poll(true, nil)
}

func (b *wgpuRendererBackendImpl) Release() {
	b.WaitIdle()
	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	b.surface.Release()
	b.instance.Release()
}

// wgpuCommandList records into a single command encoder per frame.
type wgpuCommandList struct {
	encoder  *wgpu.CommandEncoder
	surface  *wgpuTexture
	openPass bool
}

func (l *wgpuCommandList) Surface() gpu.Texture {
	return l.surface
}

func (l *wgpuCommandList) Dispatch(p pipeline.Pipeline, groups []gpu.BindGroup, x, y, z uint32) error {
	if l.openPass {
		return errors.New("renderer: dispatch inside a render pass")
	}
	if err := checkCompiled(p, pipeline.PipelineTypeCompute); err != nil {
		return err
	}
	pass := l.encoder.BeginComputePass(nil)
	pass.SetPipeline(p.Handle().(*wgpuPipelineHandle).compute)
	for i, g := range groups {
		pass.SetBindGroup(uint32(i), g.(*wgpuBindGroup).group, nil)
	}
	pass.DispatchWorkgroups(x, y, z)
	pass.End()
	pass.Release()
	return nil
}

func (l *wgpuCommandList) TraceRays(pipeline.Pipeline, []gpu.BindGroup, uint32, uint32) error {
	return fmt.Errorf("trace rays: %w", gpu.ErrFeatureUnsupported)
}

func (l *wgpuCommandList) BeginRenderPass(desc RenderPassDescriptor) (RenderPass, error) {
	if l.openPass {
		return nil, errors.New("renderer: render pass already open")
	}
	if err := checkRenderPass(desc); err != nil {
		return nil, err
	}

	rpd := &wgpu.RenderPassDescriptor{Label: desc.Label}
	for _, a := range desc.ColorAttachments {
		loadOp := wgpu.LoadOpLoad
		if a.Clear {
			loadOp = wgpu.LoadOpClear
		}
		rpd.ColorAttachments = append(rpd.ColorAttachments, wgpu.RenderPassColorAttachment{
			View:       a.Texture.(*wgpuTexture).view,
			LoadOp:     loadOp,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: a.ClearValue[0], G: a.ClearValue[1], B: a.ClearValue[2], A: a.ClearValue[3]},
		})
	}
	if desc.Depth != nil {
		loadOp := wgpu.LoadOpLoad
		if desc.Depth.Clear {
			loadOp = wgpu.LoadOpClear
		}
		rpd.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            desc.Depth.Texture.(*wgpuTexture).view,
			DepthLoadOp:     loadOp,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: desc.Depth.ClearValue,
		}
	}

	l.openPass = true
	return &wgpuRenderPass{list: l, pass: l.encoder.BeginRenderPass(rpd)}, nil
}

// Barrier is a no-op. WebGPU tracks resource usage and inserts transitions itself.
func (l *wgpuCommandList) Barrier(...gpu.Barrier) {}

func (l *wgpuCommandList) ClearTexture(tex gpu.Texture) error {
	if err := checkClear(tex); err != nil {
		return err
	}
	d := tex.Descriptor()
	desc := RenderPassDescriptor{Label: "clear " + d.Label}
	if d.Format.IsDepth() {
		desc.Depth = &DepthAttachment{Texture: tex, Clear: true, ClearValue: d.ClearValue}
	} else {
		v := float64(d.ClearValue)
		desc.ColorAttachments = []ColorAttachment{{Texture: tex, Clear: true, ClearValue: [4]float64{v, v, v, v}}}
	}
	pass, err := l.BeginRenderPass(desc)
	if err != nil {
		return err
	}
	return pass.End()
}

type wgpuRenderPass struct {
	list *wgpuCommandList
	pass *wgpu.RenderPassEncoder
}

func (p *wgpuRenderPass) SetPipeline(pl pipeline.Pipeline) error {
	if err := checkCompiled(pl, pipeline.PipelineTypeRender); err != nil {
		return err
	}
	p.pass.SetPipeline(pl.Handle().(*wgpuPipelineHandle).render)
	return nil
}

func (p *wgpuRenderPass) SetBindGroup(index uint32, g gpu.BindGroup) {
	p.pass.SetBindGroup(index, g.(*wgpuBindGroup).group, nil)
}

func (p *wgpuRenderPass) SetVertexBuffer(slot uint32, buf gpu.Buffer) {
	p.pass.SetVertexBuffer(slot, buf.(*wgpuBuffer).buffer, 0, wgpu.WholeSize)
}

func (p *wgpuRenderPass) SetIndexBuffer(buf gpu.Buffer) {
	p.pass.SetIndexBuffer(buf.(*wgpuBuffer).buffer, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
}

func (p *wgpuRenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.pass.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *wgpuRenderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.pass.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

// End closes the pass. The encoder is released here because it must be gone before Finish.
func (p *wgpuRenderPass) End() error {
	p.list.openPass = false
	p.pass.End()
	p.pass.Release()
	return nil
}

func toWGPUFormat(f gpu.TextureFormat) wgpu.TextureFormat {
	switch f {
	case gpu.FormatRGBA8UnormSrgb:
		return wgpu.TextureFormatRGBA8UnormSrgb
	case gpu.FormatRGBA8Unorm:
		return wgpu.TextureFormatRGBA8Unorm
	case gpu.FormatBGRA8UnormSrgb:
		return wgpu.TextureFormatBGRA8UnormSrgb
	case gpu.FormatBGRA8Unorm:
		return wgpu.TextureFormatBGRA8Unorm
	case gpu.FormatR32Uint:
		return wgpu.TextureFormatR32Uint
	case gpu.FormatR32Float:
		return wgpu.TextureFormatR32Float
	case gpu.FormatRGBA16Float:
		return wgpu.TextureFormatRGBA16Float
	case gpu.FormatRGBA32Float:
		return wgpu.TextureFormatRGBA32Float
	case gpu.FormatDepth32Float:
		return wgpu.TextureFormatDepth32Float
	default:
		return wgpu.TextureFormatUndefined
	}
}

func toWGPUTextureUsage(u gpu.TextureUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	if u&gpu.TextureUsageSampled != 0 {
		out |= wgpu.TextureUsageTextureBinding
	}
	if u&gpu.TextureUsageStorage != 0 {
		out |= wgpu.TextureUsageStorageBinding
	}
	if u&gpu.TextureUsageRenderTarget != 0 {
		out |= wgpu.TextureUsageRenderAttachment
	}
	if u&gpu.TextureUsageCopySrc != 0 {
		out |= wgpu.TextureUsageCopySrc
	}
	if u&gpu.TextureUsageCopyDst != 0 {
		out |= wgpu.TextureUsageCopyDst
	}
	return out
}

func toWGPUBufferUsage(u gpu.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&gpu.BufferUsageUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	// acceleration structure inputs are read by the traversal kernel as storage buffers
	if u&(gpu.BufferUsageStorage|gpu.BufferUsageAccelInput) != 0 {
		out |= wgpu.BufferUsageStorage
	}
	if u&gpu.BufferUsageVertex != 0 {
		out |= wgpu.BufferUsageVertex
	}
	if u&gpu.BufferUsageIndex != 0 {
		out |= wgpu.BufferUsageIndex
	}
	if u&gpu.BufferUsageCopyDst != 0 {
		out |= wgpu.BufferUsageCopyDst
	}
	if u&gpu.BufferUsageCopySrc != 0 {
		out |= wgpu.BufferUsageCopySrc
	}
	return out
}

func toWGPUVertexFormat(f gpu.VertexFormat) wgpu.VertexFormat {
	switch f {
	case gpu.VertexFloat32x2:
		return wgpu.VertexFormatFloat32x2
	case gpu.VertexFloat32x3:
		return wgpu.VertexFormatFloat32x3
	case gpu.VertexFloat32x4:
		return wgpu.VertexFormatFloat32x4
	case gpu.VertexUint32:
		return wgpu.VertexFormatUint32
	case gpu.VertexUint32x4:
		return wgpu.VertexFormatUint32x4
	default:
		return wgpu.VertexFormatFloat32
	}
}

func toWGPUCompare(c gpu.CompareFunction) wgpu.CompareFunction {
	switch c {
	case gpu.CompareLess:
		return wgpu.CompareFunctionLess
	case gpu.CompareGreater:
		return wgpu.CompareFunctionGreater
	case gpu.CompareGreaterEqual:
		return wgpu.CompareFunctionGreaterEqual
	default:
		return wgpu.CompareFunctionAlways
	}
}

func toWGPUStage(s gpu.ShaderStage) wgpu.ShaderStage {
	var out wgpu.ShaderStage
	if s&gpu.StageVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if s&gpu.StageFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	if s&(gpu.StageCompute|gpu.StageRayTracing) != 0 {
		out |= wgpu.ShaderStageCompute
	}
	return out
}

// toWGPULayoutEntry converts a reflected binding into a wgpu layout entry.
func toWGPULayoutEntry(e gpu.BindingLayoutEntry) (wgpu.BindGroupLayoutEntry, error) {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    e.Binding,
		Visibility: toWGPUStage(e.Visibility),
	}

	switch e.Kind {
	case gpu.BindingUniformBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		entry.Buffer.MinBindingSize = e.MinBindingSize
	case gpu.BindingStorageBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		entry.Buffer.MinBindingSize = e.MinBindingSize
	case gpu.BindingReadOnlyStorageBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		entry.Buffer.MinBindingSize = e.MinBindingSize
	case gpu.BindingSampledTexture:
		entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
		switch e.SampleType {
		case gpu.SampleUnfilterableFloat:
			entry.Texture.SampleType = wgpu.TextureSampleTypeUnfilterableFloat
		case gpu.SampleUint:
			entry.Texture.SampleType = wgpu.TextureSampleTypeUint
		case gpu.SampleSint:
			entry.Texture.SampleType = wgpu.TextureSampleTypeSint
		default:
			entry.Texture.SampleType = wgpu.TextureSampleTypeFloat
		}
	case gpu.BindingDepthTexture:
		entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
		entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
	case gpu.BindingStorageTexture:
		entry.StorageTexture.ViewDimension = wgpu.TextureViewDimension2D
		entry.StorageTexture.Format = toWGPUFormat(e.StorageFormat)
		switch e.StorageAccess {
		case gpu.AccessReadOnly:
			entry.StorageTexture.Access = wgpu.StorageTextureAccessReadOnly
		case gpu.AccessReadWrite:
			entry.StorageTexture.Access = wgpu.StorageTextureAccessReadWrite
		default:
			entry.StorageTexture.Access = wgpu.StorageTextureAccessWriteOnly
		}
	case gpu.BindingSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	case gpu.BindingComparisonSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
	case gpu.BindingAccelerationStructure:
		return entry, fmt.Errorf("binding %s: %w: acceleration structures", e.Name, gpu.ErrFeatureUnsupported)
	}
	return entry, nil
}
