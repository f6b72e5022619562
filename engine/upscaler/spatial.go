package upscaler

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

// PipelineUpscale is the pipeline name of the spatial upscaler.
const PipelineUpscale = "upscale"

// spatialConstantsSize matches the WGSL UpscaleConstants struct.
const spatialConstantsSize = 32

var upscaleFactory = pipeline.ComputeFactory(PipelineUpscale, "upscale.wgsl")

// spatial reconstructs the output with a bilinear upsample followed by contrast adaptive
// sharpening, blended with the previous output unless history is reset.
type spatial struct {
	r         renderer.Renderer
	pipelines *pipeline.Cache
	bindings  bind_group_provider.BindGroupProvider

	constants gpu.Buffer
	sampler   gpu.Sampler

	input, output common.Extent
	// feedback selects the feedback surface the next Render writes.
	feedback int
	rendered bool
}

// NewSpatial creates the reference upscaler. It runs on any backend.
//
// Parameters:
//   - r: the renderer
//   - pipelines: the shared pipeline cache
//
// Returns:
//   - Upscaler: the upscaler
//   - error: an error if its buffers could not be created
func NewSpatial(r renderer.Renderer, pipelines *pipeline.Cache) (Upscaler, error) {
	s := &spatial{
		r:         r,
		pipelines: pipelines,
		bindings:  bind_group_provider.NewBindGroupProvider("upscaler", r, bind_group_provider.WithCapacity(3)),
	}
	var err error
	s.constants, err = r.CreateBuffer(gpu.BufferDescriptor{
		Label: "upscaler.constants",
		Size:  spatialConstantsSize,
		Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		s.Release()
		return nil, fmt.Errorf("upscaler: constants: %w", err)
	}
	s.sampler, err = r.CreateSampler(gpu.SamplerDescriptor{
		Label:   "upscaler.linear",
		Filter:  gpu.FilterLinear,
		Address: gpu.AddressClampToEdge,
	})
	if err != nil {
		s.Release()
		return nil, fmt.Errorf("upscaler: sampler: %w", err)
	}
	return s, nil
}

func (s *spatial) Name() string      { return "spatial" }
func (s *spatial) IsSupported() bool { return true }
func (s *spatial) IsAvailable() bool { return s.constants != nil }

func (s *spatial) SetRenderSize(outputWidth, outputHeight uint32, quality config.QualityPreset) error {
	if !s.IsAvailable() {
		return ErrUnavailable
	}
	out := common.Extent{Width: outputWidth, Height: outputHeight}
	in := InputSize(out, quality)
	if in != s.input || out != s.output {
		logger.Noticef("render size %s for output %s at %s", in, out, quality)
	}
	s.input, s.output = in, out
	return nil
}

func (s *spatial) RenderSize() (uint32, uint32, uint32, uint32) {
	return s.input.Width, s.input.Height, s.output.Width, s.output.Height
}

func (s *spatial) Requests() []pipeline.Request {
	return []pipeline.Request{{Name: PipelineUpscale, Defines: config.MacroSet{}, Factory: upscaleFactory}}
}

func (s *spatial) marshal(p RenderParams) []byte {
	buf := make([]byte, spatialConstantsSize)
	put := func(off int, v float32) { binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v)) }
	put(0, float32(s.input.Width))
	put(4, float32(s.input.Height))
	put(8, float32(s.output.Width))
	put(12, float32(s.output.Height))
	put(16, common.Clamp(p.Sharpness, 0, 1))
	put(20, p.ExposureScale)
	if p.ResetHistory {
		binary.LittleEndian.PutUint32(buf[24:], 1)
	}
	return buf
}

func (s *spatial) Render(p RenderParams) error {
	if !s.IsAvailable() {
		return ErrUnavailable
	}
	t := p.Targets
	if t.RenderSize() != s.input || t.OutputSize() != s.output {
		return fmt.Errorf("upscaler: targets are %s -> %s, render size is %s -> %s",
			t.RenderSize(), t.OutputSize(), s.input, s.output)
	}
	pl, err := s.pipelines.Get(PipelineUpscale, config.MacroSet{}, upscaleFactory)
	if err != nil {
		return err
	}
	if err := s.r.WriteBuffer(s.constants, 0, s.marshal(p)); err != nil {
		return fmt.Errorf("upscaler: constants: %w", err)
	}

	g0, err := s.bindings.BindGroup("constants", pl, 0, p.Exposure.ID(), func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{
			{Binding: 0, Buffer: s.constants},
			{Binding: 1, Buffer: p.Exposure},
		}
	})
	if err != nil {
		return err
	}
	write, history := targets.Feedback1, targets.Feedback2
	if s.feedback == 1 {
		write, history = history, write
	}
	g1, err := s.bindings.BindGroup("surfaces/"+write.String(), pl, 1, t.Generation(), func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{
			{Binding: 0, Texture: t.Texture(targets.HDRColor)},
			{Binding: 1, Sampler: s.sampler},
			{Binding: 2, Texture: t.Texture(history)},
			{Binding: 3, Texture: t.Texture(targets.ResolvedColor)},
			{Binding: 4, Texture: t.Texture(write)},
		}
	})
	if err != nil {
		return err
	}

	p.Commands.Barrier(gpu.Barrier{Texture: t.Texture(targets.HDRColor), Before: gpu.StateUnorderedAccess, After: gpu.StateShaderRead})
	wg := pl.WorkgroupSize()
	x, y := common.DivCeil(s.output.Width, max(wg[0], 1)), common.DivCeil(s.output.Height, max(wg[1], 1))
	if err := p.Commands.Dispatch(pl, []gpu.BindGroup{g0, g1}, x, y, 1); err != nil {
		return err
	}
	s.rendered = true
	return nil
}

func (s *spatial) AdvanceFrame() {
	if s.rendered {
		s.feedback ^= 1
		s.rendered = false
	}
}

func (s *spatial) Release() {
	s.bindings.Release()
	if s.constants != nil {
		s.constants.Release()
		s.constants = nil
	}
	if s.sampler != nil {
		s.sampler.Release()
		s.sampler = nil
	}
}
