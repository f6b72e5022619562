// Package temporal renders per-pixel motion vectors and resolves the jittered HDR color of a
// frame against the reprojected history of previous frames.
package temporal

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/scene"
	"github.com/Carmen-Shannon/oxy-stf/engine/targets"
	"github.com/Carmen-Shannon/oxy-stf/log"
	"github.com/go-gl/mathgl/mgl32"
)

var logger = log.New("temporal")

// Pipeline names of the temporal passes.
const (
	PipelineMotionVectors = "motion_vectors"
	PipelineResolve       = "temporal"
)

// DefaultBlendFactor is the weight of the current frame in the resolve.
const DefaultBlendFactor = 0.1

// PassContext is what the temporal passes need from the frame being recorded.
type PassContext struct {
	Commands renderer.CommandList
	// Constants is the uniform buffer holding this frame's lighting constant block, including
	// the current and previous view.
	Constants gpu.Buffer
	// HistoryValid is false on the first frame after targets were (re)created. Motion vectors
	// are not rendered and the resolve ignores the feedback surfaces.
	HistoryValid bool
}

// accumulator is the implementation of the Accumulator interface.
type accumulator struct {
	r         renderer.Renderer
	pipelines *pipeline.Cache
	bindings  bind_group_provider.BindGroupProvider

	constants gpu.Buffer
	sampler   gpu.Sampler

	blendFactor float32
	phases      uint32
	phase       uint32

	// feedback is the feedback surface the next resolve writes; the other one holds history.
	feedback int
	resolved bool
}

// Accumulator defines the interface for the temporal anti-aliasing stage of a frame.
//
// It owns the jitter sequence, the motion vector pass and the resolve, and alternates
// between the two feedback surfaces of the Render Target Set. It is recreated together
// with the Render Target Set.
type Accumulator interface {
	// Requests lists the pipeline variants the accumulator uses.
	//
	// Returns:
	//   - []pipeline.Request: the variants
	Requests() []pipeline.Request

	// RenderMotionVectors rasterizes the scene once more to write the screen-space motion of
	// every pixel between the previous and the current unjittered view. The pass owns the
	// device depth attachment for its duration. Without history the motion vector surface is
	// cleared instead.
	//
	// Parameters:
	//   - pc: the frame's pass context
	//   - s: the uploaded scene
	//   - t: the render targets of the frame
	//
	// Returns:
	//   - bool: true if the pass was rendered, false if it was skipped
	//   - error: an error if recording failed
	RenderMotionVectors(pc PassContext, s scene.Scene, t targets.RenderTargets) (bool, error)

	// Resolve blends the HDR color of t with the history feedback into the resolved color
	// surface at the output size and writes the new feedback surface.
	//
	// Parameters:
	//   - pc: the frame's pass context
	//   - t: the render targets of the frame
	//
	// Returns:
	//   - gpu.Texture: the resolved color surface
	//   - error: an error if recording failed
	Resolve(pc PassContext, t targets.RenderTargets) (gpu.Texture, error)

	// PixelOffset returns the jitter to render the current frame with. It is zero when
	// anti-aliasing is disabled.
	//
	// Parameters:
	//   - mode: the frame's anti-aliasing mode
	//
	// Returns:
	//   - mgl32.Vec2: the offset in pixels
	PixelOffset(mode config.AAMode) mgl32.Vec2

	// AdvanceFrame moves to the next jitter phase unless frozen and, after a resolve, swaps the
	// roles of the feedback surfaces.
	//
	// Parameters:
	//   - frozen: keep the current jitter phase
	AdvanceFrame(frozen bool)

	// Phase returns the current jitter phase.
	Phase() uint32

	// FeedbackTarget returns the feedback surface the next resolve writes.
	FeedbackTarget() targets.Surface

	// Release frees the GPU resources of the accumulator.
	Release()
}

// New creates an Accumulator.
//
// Parameters:
//   - r: the renderer the passes record against
//   - pipelines: the shared pipeline cache
//   - opts: functional options
//
// Returns:
//   - Accumulator: the accumulator
//   - error: an error if its buffers could not be created
func New(r renderer.Renderer, pipelines *pipeline.Cache, opts ...AccumulatorBuilderOption) (Accumulator, error) {
	a := &accumulator{
		r:           r,
		pipelines:   pipelines,
		bindings:    bind_group_provider.NewBindGroupProvider("temporal", r, bind_group_provider.WithCapacity(4)),
		blendFactor: DefaultBlendFactor,
		phases:      DefaultJitterPhases,
	}
	for _, opt := range opts {
		opt(a)
	}

	var err error
	a.constants, err = r.CreateBuffer(gpu.BufferDescriptor{
		Label: "temporal.constants",
		Size:  ConstantsSize,
		Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		a.Release()
		return nil, fmt.Errorf("temporal: constants: %w", err)
	}
	a.sampler, err = r.CreateSampler(gpu.SamplerDescriptor{
		Label:   "temporal.linear",
		Filter:  gpu.FilterLinear,
		Address: gpu.AddressClampToEdge,
	})
	if err != nil {
		a.Release()
		return nil, fmt.Errorf("temporal: sampler: %w", err)
	}
	logger.Debugf("accumulator created, blend %.3f, %d jitter phases", a.blendFactor, a.phases)
	return a, nil
}

var (
	motionFactory = pipeline.RenderFactory(PipelineMotionVectors, "motion_vectors.wgsl",
		pipeline.WithColorTargets(targets.MotionVectors.Format()),
		pipeline.WithDepth(targets.DeviceDepth.Format(), gpu.CompareGreater, true),
		pipeline.WithCullMode(gpu.CullBack),
	)
	resolveFactory = pipeline.ComputeFactory(PipelineResolve, "temporal.wgsl")
)

func (a *accumulator) Requests() []pipeline.Request {
	return []pipeline.Request{
		{Name: PipelineMotionVectors, Defines: config.MacroSet{}, Factory: motionFactory},
		{Name: PipelineResolve, Defines: config.MacroSet{}, Factory: resolveFactory},
	}
}

func (a *accumulator) RenderMotionVectors(pc PassContext, s scene.Scene, t targets.RenderTargets) (bool, error) {
	if !t.Allocated() {
		return false, fmt.Errorf("temporal: motion vectors: %w", targets.ErrInvalidSize)
	}
	mv := t.Texture(targets.MotionVectors)
	if !pc.HistoryValid {
		return false, pc.Commands.ClearTexture(mv)
	}

	pl, err := a.pipelines.Get(PipelineMotionVectors, config.MacroSet{}, motionFactory)
	if err != nil {
		return false, err
	}
	b := s.Buffers()
	bg, err := a.bindings.BindGroup("motion/frame", pl, 0, pc.Constants.ID(), func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{
			{Binding: 0, Buffer: pc.Constants},
			{Binding: 1, Buffer: b.Instances},
		}
	})
	if err != nil {
		return false, err
	}

	rp, err := pc.Commands.BeginRenderPass(renderer.RenderPassDescriptor{
		Label:            "MotionVectors",
		ColorAttachments: []renderer.ColorAttachment{{Texture: mv, Clear: true}},
		Depth:            &renderer.DepthAttachment{Texture: t.Texture(targets.DeviceDepth), Clear: true},
	})
	if err != nil {
		return false, err
	}
	if err := rp.SetPipeline(pl); err != nil {
		rp.End()
		return false, err
	}
	rp.SetBindGroup(0, bg)
	scene.DrawInstances(rp, s)
	return true, rp.End()
}

func (a *accumulator) Resolve(pc PassContext, t targets.RenderTargets) (gpu.Texture, error) {
	if !t.Allocated() {
		return nil, fmt.Errorf("temporal: resolve: %w", targets.ErrInvalidSize)
	}
	pl, err := a.pipelines.Get(PipelineResolve, config.MacroSet{}, resolveFactory)
	if err != nil {
		return nil, err
	}

	in, out := t.RenderSize(), t.OutputSize()
	c := Constants{
		InputSize:   mgl32.Vec2{float32(in.Width), float32(in.Height)},
		OutputSize:  mgl32.Vec2{float32(out.Width), float32(out.Height)},
		Jitter:      JitterOffset(a.phase, a.phases),
		BlendFactor: a.blendFactor,
		NoHistory:   !pc.HistoryValid,
	}
	if err := a.r.WriteBuffer(a.constants, 0, c.Marshal()); err != nil {
		return nil, fmt.Errorf("temporal: constants: %w", err)
	}

	g0, err := a.bindings.BindGroup("resolve/constants", pl, 0, 0, func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{{Binding: 0, Buffer: a.constants}}
	})
	if err != nil {
		return nil, err
	}
	write, history := a.FeedbackTarget(), a.historySurface()
	g1, err := a.bindings.BindGroup(fmt.Sprintf("resolve/%s", write), pl, 1, t.Generation(), func() []gpu.BindGroupEntry {
		return []gpu.BindGroupEntry{
			{Binding: 0, Texture: t.Texture(targets.HDRColor)},
			{Binding: 1, Texture: t.Texture(targets.MotionVectors)},
			{Binding: 2, Texture: t.Texture(history)},
			{Binding: 3, Sampler: a.sampler},
			{Binding: 4, Texture: t.Texture(targets.ResolvedColor)},
			{Binding: 5, Texture: t.Texture(write)},
		}
	})
	if err != nil {
		return nil, err
	}

	pc.Commands.Barrier(
		gpu.Barrier{Texture: t.Texture(targets.HDRColor), Before: gpu.StateUnorderedAccess, After: gpu.StateShaderRead},
		gpu.Barrier{Texture: t.Texture(targets.MotionVectors), Before: gpu.StateRenderTarget, After: gpu.StateShaderRead},
	)
	wg := pl.WorkgroupSize()
	x, y := common.DivCeil(out.Width, max(wg[0], 1)), common.DivCeil(out.Height, max(wg[1], 1))
	if err := pc.Commands.Dispatch(pl, []gpu.BindGroup{g0, g1}, x, y, 1); err != nil {
		return nil, err
	}
	a.resolved = true
	return t.Texture(targets.ResolvedColor), nil
}

func (a *accumulator) PixelOffset(mode config.AAMode) mgl32.Vec2 {
	if mode == config.AAModeNone {
		return mgl32.Vec2{}
	}
	return JitterOffset(a.phase, a.phases)
}

func (a *accumulator) AdvanceFrame(frozen bool) {
	if !frozen {
		a.phase++
	}
	if a.resolved {
		a.feedback ^= 1
		a.resolved = false
	}
}

func (a *accumulator) Phase() uint32 {
	return a.phase
}

func (a *accumulator) FeedbackTarget() targets.Surface {
	if a.feedback == 0 {
		return targets.Feedback1
	}
	return targets.Feedback2
}

func (a *accumulator) historySurface() targets.Surface {
	if a.feedback == 0 {
		return targets.Feedback2
	}
	return targets.Feedback1
}

func (a *accumulator) Release() {
	a.bindings.Release()
	if a.constants != nil {
		a.constants.Release()
		a.constants = nil
	}
	if a.sampler != nil {
		a.sampler.Release()
		a.sampler = nil
	}
}
