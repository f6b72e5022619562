// Package tonemap maps the HDR color of a frame to the low dynamic range presentation color
// and blits it onto the presentation surface.
package tonemap

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/targets"
)

// Pipeline names of the presentation passes.
const (
	PipelineTonemap = "tonemap"
	PipelineBlit    = "blit"
)

// MacroSurfaceSRGB makes the blit decode gamma so an sRGB surface does not encode twice.
const MacroSurfaceSRGB = "SURFACE_SRGB"

const (
	constantsSize = 16
	exposureSize  = 16
	// DefaultExposure is the adapted exposure written to the exposure buffer. Eye adaptation
	// is off, so it never changes.
	DefaultExposure = 1
)

var tonemapFactory = pipeline.ComputeFactory(PipelineTonemap, "tonemap.wgsl")

func blitFactory(surface gpu.TextureFormat) pipeline.Factory {
	return pipeline.RenderFactory(PipelineBlit, "blit.wgsl", pipeline.WithColorTargets(surface))
}

// Source returns the surface the tone mapper reads for an anti-aliasing mode and whether the
// exposure must still be applied. The upscaler applies the exposure itself.
//
// Parameters:
//   - mode: the frame's anti-aliasing mode
//
// Returns:
//   - targets.Surface: the HDR surface to tone map
//   - bool: true if the tone mapper applies the exposure
func Source(mode config.AAMode) (targets.Surface, bool) {
	switch mode {
	case config.AAModeTAA:
		return targets.ResolvedColor, true
	case config.AAModeUpscaled:
		return targets.ResolvedColor, false
	default:
		return targets.HDRColor, true
	}
}

// ToneMapper owns the exposure buffer and the presentation passes.
type ToneMapper interface {
	// Exposure returns the storage buffer holding the adapted exposure.
	Exposure() gpu.Buffer

	// Requests lists the pipeline variants Render uses for a surface format.
	//
	// Parameters:
	//   - surface: the presentation surface format
	//
	// Returns:
	//   - []pipeline.Request: the variants
	Requests(surface gpu.TextureFormat) []pipeline.Request

	// Render tone maps the source surface of the frame's anti-aliasing mode into LDRColor and
	// blits LDRColor onto the presentation surface of cl.
	//
	// Parameters:
	//   - cl: the frame's command list
	//   - t: the render targets
	//   - mode: selects the source surface
	//   - exposureScale: user exposure multiplier
	//
	// Returns:
	//   - targets.Surface: the surface that was tone mapped
	//   - error: an error if recording failed
	Render(cl renderer.CommandList, t targets.RenderTargets, mode config.AAMode, exposureScale float32) (targets.Surface, error)

	// Release frees the GPU resources.
	Release()
}

type toneMapper struct {
	r         renderer.Renderer
	pipelines *pipeline.Cache
	bindings  bind_group_provider.BindGroupProvider

	constants gpu.Buffer
	exposure  gpu.Buffer
	linear    gpu.Sampler
	point     gpu.Sampler
}

// New creates a ToneMapper and initializes its exposure.
//
// Parameters:
//   - r: the renderer
//   - pipelines: the shared pipeline cache
//
// Returns:
//   - ToneMapper: the tone mapper
//   - error: an error if a buffer or sampler could not be created
func New(r renderer.Renderer, pipelines *pipeline.Cache) (ToneMapper, error) {
	tm := &toneMapper{
		r:         r,
		pipelines: pipelines,
		bindings:  bind_group_provider.NewBindGroupProvider("tonemap", r, bind_group_provider.WithCapacity(4)),
	}
	if err := tm.allocate(); err != nil {
		tm.Release()
		return nil, err
	}
	return tm, nil
}

func (tm *toneMapper) allocate() error {
	var err error
	tm.constants, err = tm.r.CreateBuffer(gpu.BufferDescriptor{Label: "tonemap.constants", Size: constantsSize, Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst})
	if err != nil {
		return fmt.Errorf("tonemap: constants: %w", err)
	}
	tm.exposure, err = tm.r.CreateBuffer(gpu.BufferDescriptor{Label: "tonemap.exposure", Size: exposureSize, Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst})
	if err != nil {
		return fmt.Errorf("tonemap: exposure: %w", err)
	}
	buf := make([]byte, exposureSize)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(DefaultExposure))
	if err := tm.r.WriteBuffer(tm.exposure, 0, buf); err != nil {
		return fmt.Errorf("tonemap: exposure: %w", err)
	}
	tm.linear, err = tm.r.CreateSampler(gpu.SamplerDescriptor{Label: "tonemap.linear", Filter: gpu.FilterLinear, Address: gpu.AddressClampToEdge})
	if err != nil {
		return fmt.Errorf("tonemap: sampler: %w", err)
	}
	tm.point, err = tm.r.CreateSampler(gpu.SamplerDescriptor{Label: "tonemap.point", Filter: gpu.FilterNearest, Address: gpu.AddressClampToEdge})
	if err != nil {
		return fmt.Errorf("tonemap: sampler: %w", err)
	}
	return nil
}

func (tm *toneMapper) Exposure() gpu.Buffer {
	return tm.exposure
}

func blitDefines(surface gpu.TextureFormat) config.MacroSet {
	v := "0"
	if surface.IsSRGB() {
		v = "1"
	}
	return config.MacroSet{MacroSurfaceSRGB: v}
}

func (tm *toneMapper) Requests(surface gpu.TextureFormat) []pipeline.Request {
	return []pipeline.Request{
		{Name: PipelineTonemap, Defines: config.MacroSet{}, Factory: tonemapFactory},
		{Name: PipelineBlit, Defines: blitDefines(surface), Factory: blitFactory(surface)},
	}
}

func (tm *toneMapper) Render(cl renderer.CommandList, t targets.RenderTargets, mode config.AAMode, exposureScale float32) (targets.Surface, error) {
	source, applyExposure := Source(mode)
	if err := tm.tonemap(cl, t, source, applyExposure, exposureScale); err != nil {
		return source, err
	}
	return source, tm.blit(cl, t)
}

func (tm *toneMapper) tonemap(cl renderer.CommandList, t targets.RenderTargets, source targets.Surface, applyExposure bool, exposureScale float32) error {
	pl, err := tm.pipelines.Get(PipelineTonemap, config.MacroSet{}, tonemapFactory)
	if err != nil {
		return err
	}
	out := t.OutputSize()
	buf := make([]byte, constantsSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(float32(out.Width)))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(out.Height)))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(exposureScale))
	if applyExposure {
		binary.LittleEndian.PutUint32(buf[12:], 1)
	}
	if err := tm.r.WriteBuffer(tm.constants, 0, buf); err != nil {
		return fmt.Errorf("tonemap: constants: %w", err)
	}

	g0, err := tm.bindings.BindGroup("tonemap/constants", pl, 0, 0, func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{
			{Binding: 0, Buffer: tm.constants},
			{Binding: 1, Buffer: tm.exposure},
		}
	})
	if err != nil {
		return err
	}
	g1, err := tm.bindings.BindGroup("tonemap/"+source.String(), pl, 1, t.Generation(), func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{
			{Binding: 0, Texture: t.Texture(source)},
			{Binding: 1, Sampler: tm.linear},
			{Binding: 2, Texture: t.Texture(targets.LDRColor)},
		}
	})
	if err != nil {
		return err
	}
	cl.Barrier(gpu.Barrier{Texture: t.Texture(source), Before: gpu.StateUnorderedAccess, After: gpu.StateShaderRead})
	wg := pl.WorkgroupSize()
	return cl.Dispatch(pl, []gpu.BindGroup{g0, g1}, common.DivCeil(out.Width, max(wg[0], 1)), common.DivCeil(out.Height, max(wg[1], 1)), 1)
}

func (tm *toneMapper) blit(cl renderer.CommandList, t targets.RenderTargets) error {
	surface := cl.Surface()
	format := surface.Descriptor().Format
	pl, err := tm.pipelines.Get(PipelineBlit, blitDefines(format), blitFactory(format))
	if err != nil {
		return err
	}
	bg, err := tm.bindings.BindGroup("blit", pl, 0, t.Generation(), func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{
			{Binding: 0, Texture: t.Texture(targets.LDRColor)},
			{Binding: 1, Sampler: tm.point},
		}
	})
	if err != nil {
		return err
	}
	cl.Barrier(gpu.Barrier{Texture: t.Texture(targets.LDRColor), Before: gpu.StateUnorderedAccess, After: gpu.StateShaderRead})
	rp, err := cl.BeginRenderPass(renderer.RenderPassDescriptor{
		Label:            "Blit",
		ColorAttachments: []renderer.ColorAttachment{{Texture: surface, Clear: true}},
	})
	if err != nil {
		return err
	}
	if err := rp.SetPipeline(pl); err != nil {
		rp.End()
		return err
	}
	rp.SetBindGroup(0, bg)
	// fullscreen triangle generated from the vertex index
	rp.Draw(3, 1, 0, 0)
	return rp.End()
}

func (tm *toneMapper) Release() {
	tm.bindings.Release()
	for _, b := range []gpu.Buffer{tm.constants, tm.exposure} {
		if b != nil {
			b.Release()
		}
	}
	for _, s := range []gpu.Sampler{tm.linear, tm.point} {
		if s != nil {
			s.Release()
		}
	}
}
