package producer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/light"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/scene"
	"github.com/Carmen-Shannon/oxy-stf/engine/targets"
)

// Pipeline names of the raster path.
const (
	PipelineShadowDepth  = "shadow_depth"
	PipelineGBuffer      = "gbuffer"
	PipelineDepthResolve = "depth_resolve"
	PipelineDeferred     = "deferred"
)

// shadow map depth is cleared to the far plane and tested with less.
const shadowClearDepth = 1

var gbufferFormats = []gpu.TextureFormat{
	targets.Albedo.Format(),
	targets.Specular.Format(),
	targets.Normals.Format(),
	targets.GeoNormals.Format(),
	targets.Emissive.Format(),
}

// raster renders cascaded shadow maps, fills the G-buffer by rasterization, resolves the
// device depth to linear depth and lights the G-buffer in a deferred compute pass.
type raster struct {
	r         renderer.Renderer
	pipelines *pipeline.Cache
	bindings  bind_group_provider.BindGroupProvider
	shadows   light.CascadedShadow

	shadowMaps    [light.MaxCascades]gpu.Texture
	shadowBuffer  gpu.Buffer
	cascadeSelect [light.MaxCascades]gpu.Buffer
	shadowSampler gpu.Sampler
}

func newRaster(res Resources, opts options) (*raster, error) {
	p := &raster{
		r:         res.Renderer,
		pipelines: res.Pipelines,
		bindings:  bind_group_provider.NewBindGroupProvider("raster", res.Renderer, bind_group_provider.WithCapacity(14)),
		shadows:   opts.shadows,
	}
	if err := p.allocate(); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func (p *raster) allocate() error {
	var err error
	for i := range p.shadowMaps {
		p.shadowMaps[i], err = p.r.CreateTexture(gpu.TextureDescriptor{
			Label:      fmt.Sprintf("ShadowCascade%d", i),
			Width:      p.shadows.Resolution,
			Height:     p.shadows.Resolution,
			Format:     gpu.FormatDepth32Float,
			Usage:      gpu.TextureUsageRenderTarget | gpu.TextureUsageSampled,
			ClearValue: shadowClearDepth,
		})
		if err != nil {
			return fmt.Errorf("producer: shadow map %d: %w", i, err)
		}
	}
	p.shadowBuffer, err = p.r.CreateBuffer(gpu.BufferDescriptor{
		Label: "raster.shadow",
		Size:  light.ShadowConstantsSize,
		Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("producer: shadow constants: %w", err)
	}
	for i := range p.cascadeSelect {
		p.cascadeSelect[i], err = p.r.CreateBuffer(gpu.BufferDescriptor{
			Label: fmt.Sprintf("raster.cascade%d", i),
			Size:  light.CascadeSelectSize,
			Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
		})
		if err == nil {
			err = p.r.WriteBuffer(p.cascadeSelect[i], 0, light.CascadeSelect{Index: uint32(i)}.Marshal())
		}
		if err != nil {
			return fmt.Errorf("producer: cascade selector %d: %w", i, err)
		}
	}
	p.shadowSampler, err = p.r.CreateSampler(gpu.SamplerDescriptor{
		Label:   "raster.shadowSampler",
		Filter:  gpu.FilterLinear,
		Address: gpu.AddressClampToEdge,
		Compare: true,
	})
	if err != nil {
		return fmt.Errorf("producer: shadow sampler: %w", err)
	}
	return nil
}

func (p *raster) Mode() config.ProducerMode {
	return config.ProducerRaster
}

// gbufferVariant selects one G-buffer fill pipeline. Materials that keep back faces
// compile with DOUBLE_SIDED so the shader flips the normal of back faces.
type gbufferVariant struct {
	alphaTested bool
	cull        gpu.CullMode
}

var gbufferVariants = []gbufferVariant{
	{alphaTested: false, cull: gpu.CullBack},
	{alphaTested: false, cull: gpu.CullNone},
	{alphaTested: true, cull: gpu.CullNone},
}

func variantOf(d scene.DrawItem) gbufferVariant {
	return gbufferVariant{alphaTested: d.AlphaTested, cull: d.Cull}
}

// gbufferDefines is the macro set of a G-buffer fill variant. MOTION_VECTORS stays in the
// key for the fill, but the vectors themselves are written by the temporal motion vector
// pass so that every producer shares them.
func gbufferDefines(cfg config.RenderConfiguration, v gbufferVariant) config.MacroSet {
	alpha, doubleSided := "0", "0"
	if v.alphaTested {
		alpha = "1"
	}
	if v.cull == gpu.CullNone {
		doubleSided = "1"
	}
	return cfg.ShaderMacros().
		With(config.MacroMotionVectors, "1").
		With(config.MacroAlphaTested, alpha).
		With(config.MacroDoubleSided, doubleSided)
}

func gbufferFactory(v gbufferVariant) pipeline.Factory {
	return pipeline.RenderFactory(PipelineGBuffer, "gbuffer.wgsl",
		pipeline.WithColorTargets(gbufferFormats...),
		pipeline.WithDepth(targets.DeviceDepth.Format(), gpu.CompareGreater, true),
		pipeline.WithCullMode(v.cull),
	)
}

var shadowFactory = pipeline.RenderFactory(PipelineShadowDepth, "shadow_depth.wgsl",
	pipeline.WithDepth(gpu.FormatDepth32Float, gpu.CompareLess, true),
	pipeline.WithDepthBias(2, 2),
	pipeline.WithCullMode(gpu.CullBack),
)

func (p *raster) Requests(cfg config.RenderConfiguration) []pipeline.Request {
	reqs := []pipeline.Request{
		{Name: PipelineShadowDepth, Defines: config.MacroSet{}, Factory: shadowFactory},
		{Name: PipelineDepthResolve, Defines: config.MacroSet{}, Factory: pipeline.ComputeFactory(PipelineDepthResolve, "depth_resolve.wgsl")},
		{Name: PipelineDeferred, Defines: config.MacroSet{}, Factory: pipeline.ComputeFactory(PipelineDeferred, "deferred.wgsl")},
	}
	for _, v := range gbufferVariants {
		reqs = append(reqs, p.gbufferRequest(cfg, v))
	}
	return reqs
}

func (p *raster) gbufferRequest(cfg config.RenderConfiguration, v gbufferVariant) pipeline.Request {
	return pipeline.Request{Name: PipelineGBuffer, Defines: gbufferDefines(cfg, v), Factory: gbufferFactory(v)}
}

func (p *raster) get(req pipeline.Request) (pipeline.Pipeline, error) {
	return p.pipelines.Get(req.Name, req.Defines, req.Factory)
}

func (p *raster) Produce(fc FrameContext, cfg config.RenderConfiguration, s scene.Scene, t targets.RenderTargets) (GBufferResult, error) {
	if err := checkTargets(t); err != nil {
		return GBufferResult{}, err
	}
	fixed := p.Requests(cfg)[:3]
	resolved := make([]pipeline.Pipeline, len(fixed))
	for i, req := range fixed {
		pl, err := p.get(req)
		if err != nil {
			return GBufferResult{}, err
		}
		resolved[i] = pl
	}
	shadowPipe, resolvePipe, deferredPipe := resolved[0], resolved[1], resolved[2]

	sun := s.Sun()
	shadow := p.shadows.Compute(sun.Direction(), fc.Camera, s.Bounds())
	if !sun.Enabled() || !sun.CastsShadows() {
		shadow.CascadeCount = 0
	}
	if err := p.r.WriteBuffer(p.shadowBuffer, 0, shadow.Marshal()); err != nil {
		return GBufferResult{}, fmt.Errorf("producer: shadow constants: %w", err)
	}

	res := GBufferResult{Mode: config.ProducerRaster, Size: t.RenderSize(), Color: t.Texture(targets.HDRColor), Depth: t.Texture(targets.Depth)}
	draws, err := p.renderShadows(fc.Commands, shadowPipe, s, shadow.CascadeCount > 0)
	if err != nil {
		return res, err
	}
	res.Draws += draws

	eye := fc.Camera.View.Inv().Col(3).Vec3()
	draws, err = p.fillGBuffer(fc, cfg, scene.BuildDrawItems(s, eye), t)
	if err != nil {
		return res, err
	}
	res.Draws += draws

	barriers := make([]gpu.Barrier, 0, len(gbufferFormats)+1+len(p.shadowMaps))
	for _, sf := range []targets.Surface{targets.Albedo, targets.Specular, targets.Normals, targets.GeoNormals, targets.Emissive, targets.DeviceDepth} {
		barriers = append(barriers, gpu.Barrier{Texture: t.Texture(sf), Before: gpu.StateRenderTarget, After: gpu.StateShaderRead})
	}
	for _, m := range p.shadowMaps {
		barriers = append(barriers, gpu.Barrier{Texture: m, Before: gpu.StateRenderTarget, After: gpu.StateShaderRead})
	}
	fc.Commands.Barrier(barriers...)

	if err := p.resolveDepth(fc.Commands, resolvePipe, t); err != nil {
		return res, err
	}
	res.Grid, err = p.light(fc, deferredPipe, t)
	return res, err
}

// renderShadows draws every instance into each cascade. The maps are cleared even when the
// sun casts no shadows so the deferred pass always samples defined depth.
func (p *raster) renderShadows(cl renderer.CommandList, pl pipeline.Pipeline, s scene.Scene, cast bool) (int, error) {
	b := s.Buffers()
	draws := 0
	for i, m := range p.shadowMaps {
		bg, err := p.bindings.BindGroup(fmt.Sprintf("shadow%d", i), pl, 0, 0, func() []gpu.BindGroupEntry {
			return []gpu.BindGroupEntry{
				{Binding: 0, Buffer: p.shadowBuffer},
				{Binding: 1, Buffer: b.Instances},
				{Binding: 2, Buffer: p.cascadeSelect[i]},
			}
		})
		if err != nil {
			return draws, err
		}
		rp, err := cl.BeginRenderPass(renderer.RenderPassDescriptor{
			Label: fmt.Sprintf("ShadowCascade%d", i),
			Depth: &renderer.DepthAttachment{Texture: m, Clear: true, ClearValue: shadowClearDepth},
		})
		if err != nil {
			return draws, err
		}
		if cast {
			if err := rp.SetPipeline(pl); err != nil {
				rp.End()
				return draws, err
			}
			rp.SetBindGroup(0, bg)
			draws += scene.DrawInstances(rp, s)
		}
		if err := rp.End(); err != nil {
			return draws, err
		}
	}
	return draws, nil
}

// fillGBuffer rasterizes the draw items in order, switching pipeline only when the
// variant changes between consecutive items.
func (p *raster) fillGBuffer(fc FrameContext, cfg config.RenderConfiguration, items []scene.DrawItem, t targets.RenderTargets) (int, error) {
	type bound struct {
		pl     pipeline.Pipeline
		groups [2]gpu.BindGroup
	}
	variants := map[gbufferVariant]bound{}
	for _, d := range items {
		v := variantOf(d)
		if _, ok := variants[v]; ok {
			continue
		}
		pl, err := p.get(p.gbufferRequest(cfg, v))
		if err != nil {
			return 0, err
		}
		key := fmt.Sprintf("gbuffer/a%t/c%d", v.alphaTested, v.cull)
		g0, err := p.bindings.BindGroup(key+"/frame", pl, 0, fc.Constants.ID(), func() []gpu.BindGroupEntry {
			return []gpu.BindGroupEntry{
				{Binding: 0, Buffer: fc.Constants},
				{Binding: 1, Buffer: d.Buffers.Instances},
				{Binding: 2, Buffer: d.Buffers.Materials},
			}
		})
		if err != nil {
			return 0, err
		}
		g1, err := p.bindings.BindGroup(key+"/atlas", pl, 1, 0, func() []gpu.BindGroupEntry {
			return []gpu.BindGroupEntry{
				{Binding: 0, Texture: d.Buffers.Atlas},
				{Binding: 1, Sampler: d.Buffers.Sampler},
			}
		})
		if err != nil {
			return 0, err
		}
		variants[v] = bound{pl: pl, groups: [2]gpu.BindGroup{g0, g1}}
	}

	rp, err := fc.Commands.BeginRenderPass(t.GBufferFramebuffer())
	if err != nil {
		return 0, err
	}
	var current pipeline.Pipeline
	var bindErr error
	draws := scene.DrawItems(rp, items, func(d scene.DrawItem) error {
		want := variants[variantOf(d)]
		if want.pl == current {
			return nil
		}
		if err := rp.SetPipeline(want.pl); err != nil {
			bindErr = err
			return err
		}
		current = want.pl
		rp.SetBindGroup(0, want.groups[0])
		rp.SetBindGroup(1, want.groups[1])
		return nil
	})
	if err := rp.End(); err != nil {
		return draws, err
	}
	return draws, bindErr
}

func (p *raster) resolveDepth(cl renderer.CommandList, pl pipeline.Pipeline, t targets.RenderTargets) error {
	bg, err := p.bindings.BindGroup("depthResolve", pl, 0, t.Generation(), func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{
			{Binding: 0, Texture: t.Texture(targets.DeviceDepth)},
			{Binding: 1, Texture: t.Texture(targets.Depth)},
		}
	})
	if err != nil {
		return err
	}
	x, y := dispatchSize(pl, t.RenderSize())
	return cl.Dispatch(pl, []gpu.BindGroup{bg}, x, y, 1)
}

func (p *raster) light(fc FrameContext, pl pipeline.Pipeline, t targets.RenderTargets) ([3]uint32, error) {
	g0, err := p.bindings.BindGroup("deferred/frame", pl, 0, fc.Constants.ID(), func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{
			{Binding: 0, Buffer: fc.Constants},
			{Binding: 1, Buffer: p.shadowBuffer},
		}
	})
	if err != nil {
		return [3]uint32{}, err
	}
	g1, err := p.bindings.BindGroup("deferred/gbuffer", pl, 1, t.Generation(), func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{
			{Binding: 0, Texture: t.Texture(targets.Albedo)},
			{Binding: 1, Texture: t.Texture(targets.Specular)},
			{Binding: 2, Texture: t.Texture(targets.Normals)},
			{Binding: 3, Texture: t.Texture(targets.Emissive)},
			{Binding: 4, Texture: t.Texture(targets.Depth)},
			{Binding: 5, Texture: t.Texture(targets.HDRColor)},
		}
	})
	if err != nil {
		return [3]uint32{}, err
	}
	g2, err := p.bindings.BindGroup("deferred/shadows", pl, 2, 0, func() []gpu.BindGroupEntry {
		entries := make([]gpu.BindGroupEntry, 0, len(p.shadowMaps)+1)
		for i, m := range p.shadowMaps {
			entries = append(entries, gpu.BindGroupEntry{Binding: uint32(i), Texture: m})
		}
		return append(entries, gpu.BindGroupEntry{Binding: uint32(len(p.shadowMaps)), Sampler: p.shadowSampler})
	})
	if err != nil {
		return [3]uint32{}, err
	}
	x, y := dispatchSize(pl, t.RenderSize())
	if err := fc.Commands.Dispatch(pl, []gpu.BindGroup{g0, g1, g2}, x, y, 1); err != nil {
		return [3]uint32{}, err
	}
	return [3]uint32{x, y, 1}, nil
}

// dispatchSize covers size with the pipeline's workgroups.
func dispatchSize(pl pipeline.Pipeline, size common.Extent) (uint32, uint32) {
	wg := pl.WorkgroupSize()
	return common.DivCeil(size.Width, max(wg[0], 1)), common.DivCeil(size.Height, max(wg[1], 1))
}

func (p *raster) Release() {
	p.bindings.Release()
	for _, m := range p.shadowMaps {
		if m != nil {
			m.Release()
		}
	}
	for _, b := range p.cascadeSelect {
		if b != nil {
			b.Release()
		}
	}
	if p.shadowBuffer != nil {
		p.shadowBuffer.Release()
	}
	if p.shadowSampler != nil {
		p.shadowSampler.Release()
	}
}
