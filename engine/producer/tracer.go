package producer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/accel"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/scene"
	"github.com/Carmen-Shannon/oxy-stf/engine/targets"
)

// PipelineTrace is the name of the tracing kernel shared by the Compute and RayGen producers.
const PipelineTrace = "trace"

// tracer traces primary rays against the acceleration structures and writes the G-buffer
// and the lit color in one kernel. Compute dispatches the kernel in thread groups and
// traverses inline; RayGen launches it once per pixel through a ray tracing pipeline.
type tracer struct {
	mode      config.ProducerMode
	r         renderer.Renderer
	pipelines *pipeline.Cache
	accel     accel.Manager
	bindings  bind_group_provider.BindGroupProvider
}

func newTracer(mode config.ProducerMode, res Resources) *tracer {
	return &tracer{
		mode:      mode,
		r:         res.Renderer,
		pipelines: res.Pipelines,
		accel:     res.Accel,
		bindings:  bind_group_provider.NewBindGroupProvider(mode.String(), res.Renderer, bind_group_provider.WithCapacity(3)),
	}
}

func (p *tracer) Mode() config.ProducerMode {
	return p.mode
}

// traceDefines forces USE_RAY_QUERY to the producer's own path so a configuration naming
// another producer cannot select the wrong entry point.
func (p *tracer) traceDefines(cfg config.RenderConfiguration) config.MacroSet {
	rayQuery := "0"
	if p.mode == config.ProducerCompute {
		rayQuery = "1"
	}
	return cfg.ShaderMacros().With(config.MacroUseRayQuery, rayQuery)
}

func (p *tracer) Requests(cfg config.RenderConfiguration) []pipeline.Request {
	factory := pipeline.ComputeFactory(PipelineTrace, "trace.wgsl")
	if p.mode == config.ProducerRayGen {
		factory = pipeline.RayGenFactory(PipelineTrace, "trace.wgsl")
	}
	return []pipeline.Request{{Name: PipelineTrace, Defines: p.traceDefines(cfg), Factory: factory}}
}

func (p *tracer) Produce(fc FrameContext, cfg config.RenderConfiguration, s scene.Scene, t targets.RenderTargets) (GBufferResult, error) {
	if err := checkTargets(t); err != nil {
		return GBufferResult{}, err
	}
	req := p.Requests(cfg)[0]
	pl, err := p.pipelines.Get(req.Name, req.Defines, req.Factory)
	if err != nil {
		return GBufferResult{}, err
	}

	if !p.accel.Built() {
		if err := p.accel.Build(s); err != nil {
			return GBufferResult{}, fmt.Errorf("producer %s: %w", p.mode, err)
		}
	}
	rebuilds, err := p.accel.Update(fc.Commands, s, fc.FrameIndex)
	if err != nil {
		return GBufferResult{}, fmt.Errorf("producer %s: %w", p.mode, err)
	}

	groups, err := p.bindGroups(fc, pl, s, t)
	if err != nil {
		return GBufferResult{}, err
	}

	size := t.RenderSize()
	res := GBufferResult{
		Mode:     p.mode,
		Size:     size,
		Color:    t.Texture(targets.HDRColor),
		Depth:    t.Texture(targets.Depth),
		Rebuilds: rebuilds,
	}
	if p.mode == config.ProducerRayGen {
		res.Grid = [3]uint32{size.Width, size.Height, 1}
		return res, fc.Commands.TraceRays(pl, groups, size.Width, size.Height)
	}

	wg := pl.WorkgroupSize()
	res.Grid = [3]uint32{common.DivCeil(size.Width, max(wg[0], 1)), common.DivCeil(size.Height, max(wg[1], 1)), 1}
	return res, fc.Commands.Dispatch(pl, groups, res.Grid[0], res.Grid[1], 1)
}

func (p *tracer) bindGroups(fc FrameContext, pl pipeline.Pipeline, s scene.Scene, t targets.RenderTargets) ([]gpu.BindGroup, error) {
	b := s.Buffers()
	ab := p.accel.Buffers()

	g0, err := p.bindings.BindGroup("frame", pl, 0, fc.Constants.ID(), func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{
			{Binding: 0, Buffer: fc.Constants},
			{Binding: 1, Buffer: b.Instances},
			{Binding: 2, Buffer: b.Materials},
		}
	})
	if err != nil {
		return nil, err
	}
	g1, err := p.bindings.BindGroup("geometry", pl, 1, ab.Nodes.ID(), func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{
			{Binding: 0, Buffer: ab.Nodes},
			{Binding: 1, Buffer: ab.Instances},
			{Binding: 2, Buffer: ab.Triangles},
			{Binding: 3, Buffer: ab.Meshes},
			{Binding: 4, Buffer: b.Vertices},
			{Binding: 5, Buffer: b.Indices},
		}
	})
	if err != nil {
		return nil, err
	}
	g2, err := p.bindings.BindGroup("outputs", pl, 2, t.Generation(), func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{
			{Binding: 0, Texture: b.Atlas},
			{Binding: 1, Sampler: b.Sampler},
			{Binding: 2, Texture: t.Texture(targets.Albedo)},
			{Binding: 3, Texture: t.Texture(targets.Specular)},
			{Binding: 4, Texture: t.Texture(targets.Normals)},
			{Binding: 5, Texture: t.Texture(targets.GeoNormals)},
			{Binding: 6, Texture: t.Texture(targets.Emissive)},
			{Binding: 7, Texture: t.Texture(targets.Depth)},
			{Binding: 8, Texture: t.Texture(targets.HDRColor)},
		}
	})
	if err != nil {
		return nil, err
	}
	return []gpu.BindGroup{g0, g1, g2}, nil
}

func (p *tracer) Release() {
	p.bindings.Release()
}
