// Package frame drives the per-frame work of the sample: it picks the render and output
// resolution, keeps the Render Target Set and the temporal history consistent with the
// configuration, uploads the constant block and records the geometry, temporal, upscale
// and presentation passes in order.
package frame

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/accel"
	"github.com/Carmen-Shannon/oxy-stf/engine/camera"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/light"
	"github.com/Carmen-Shannon/oxy-stf/engine/lighting"
	"github.com/Carmen-Shannon/oxy-stf/engine/producer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/scene"
	"github.com/Carmen-Shannon/oxy-stf/engine/targets"
	"github.com/Carmen-Shannon/oxy-stf/engine/temporal"
	"github.com/Carmen-Shannon/oxy-stf/engine/tonemap"
	"github.com/Carmen-Shannon/oxy-stf/engine/upscaler"
	"github.com/Carmen-Shannon/oxy-stf/log"
)

var logger = log.New("frame")

// orchestrator is the implementation of the Orchestrator interface.
type orchestrator struct {
	r        renderer.Renderer
	scene    scene.Scene
	camera   camera.Camera
	pending  *config.Pending
	cfg      config.RenderConfiguration
	caps     config.Capabilities
	shadows  light.CascadedShadow
	producer producer.Producer

	pipelines *pipeline.Cache
	accel     accel.Manager
	targets   targets.RenderTargets
	temporal  temporal.Accumulator
	upscaler  upscaler.Upscaler
	tonemap   tonemap.ToneMapper
	constants gpu.Buffer

	producerOptions []producer.ProducerBuilderOption
	temporalOptions []temporal.AccumulatorBuilderOption

	state      State
	prevView   camera.PlanarView
	prevValid  bool
	frameIndex uint32
	animTime   float64
	stats      Stats
}

// Orchestrator defines the interface for the top level frame driver.
//
// An Orchestrator is owned by the render goroutine. Configuration changes from other
// goroutines are queued on Pending and take effect at the start of the next Render.
//
// Usage pattern:
//  1. Create with New after the scene has been uploaded
//  2. Call Warm once to compile pipelines and build acceleration structures
//  3. Call Render once per frame
type Orchestrator interface {
	// Config returns the configuration of the last recorded frame.
	//
	// Returns:
	//   - config.RenderConfiguration: a copy of the active configuration
	Config() config.RenderConfiguration

	// Pending returns the queue configuration changes are submitted through.
	//
	// Returns:
	//   - *config.Pending: the queue
	Pending() *config.Pending

	// State returns the current lifecycle state.
	State() State

	// PreviousViewsValid reports whether the next frame can reproject against the last one.
	PreviousViewsValid() bool

	// FrameIndex returns the index the next frame is recorded with.
	FrameIndex() uint32

	// Targets returns the Render Target Set.
	Targets() targets.RenderTargets

	// Warm compiles the pipelines of the current configuration and builds the acceleration
	// structures, then waits for the device to go idle.
	//
	// Parameters:
	//   - ctx: cancels pipeline compilation
	//
	// Returns:
	//   - error: the first compile or build error
	Warm(ctx context.Context) error

	// Render applies pending configuration changes and records, submits and presents one frame.
	//
	// Parameters:
	//   - dt: wall clock seconds since the previous frame
	//
	// Returns:
	//   - Report: what the frame did
	//   - error: an error if any pass failed; the frame is not presented
	Render(dt float64) (Report, error)

	// Stats returns the work counters.
	//
	// Returns:
	//   - Stats: a copy of the counters
	Stats() Stats

	// Release frees every GPU resource the orchestrator created.
	Release()
}

var _ Orchestrator = &orchestrator{}

// New creates an Orchestrator for an uploaded scene. The configuration is validated
// against the device features and the upscaler before the producer is created.
//
// Parameters:
//   - r: the renderer
//   - s: the uploaded scene
//   - cam: the camera views are built from
//   - cfg: the initial configuration
//   - options: functional options
//
// Returns:
//   - Orchestrator: the orchestrator
//   - error: an error if a resource could not be created or the producer is unsupported
func New(r renderer.Renderer, s scene.Scene, cam camera.Camera, cfg config.RenderConfiguration, options ...OrchestratorBuilderOption) (Orchestrator, error) {
	o := &orchestrator{
		r:       r,
		scene:   s,
		camera:  cam,
		pending: config.NewPending(),
		shadows: light.NewCascadedShadow(),
		state:   StateUninitialized,
	}
	for _, opt := range options {
		opt(o)
	}
	if o.pipelines == nil {
		o.pipelines = pipeline.NewCache(r)
	}
	if o.upscaler == nil {
		o.upscaler = upscaler.NewNone()
	}
	if o.accel == nil {
		o.accel = accel.NewManager(r)
	}
	f := r.Features()
	o.caps = config.Capabilities{
		RayTracingPipeline: f.RayTracingPipeline,
		RayQuery:           f.RayQuery,
		UpscalerAvailable:  o.upscaler.IsAvailable(),
	}
	o.cfg, _ = cfg.Validate(o.caps)

	if err := o.allocate(); err != nil {
		o.Release()
		return nil, err
	}
	logger.Noticef("orchestrator ready: producer %s, aa %s, upscaler %s", o.cfg.ProducerMode, o.cfg.AAMode, o.upscaler.Name())
	return o, nil
}

func (o *orchestrator) allocate() error {
	var err error
	o.constants, err = o.r.CreateBuffer(gpu.BufferDescriptor{
		Label: "frame.constants",
		Size:  lighting.ConstantsSize,
		Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("frame: constants: %w", err)
	}
	if o.tonemap, err = tonemap.New(o.r, o.pipelines); err != nil {
		return err
	}
	if o.temporal, err = temporal.New(o.r, o.pipelines, o.temporalOptions...); err != nil {
		return err
	}
	o.targets = targets.NewRenderTargets(o.r)
	return o.switchProducer(o.cfg.ProducerMode)
}

func (o *orchestrator) switchProducer(mode config.ProducerMode) error {
	if o.producer != nil {
		o.producer.Release()
		o.producer = nil
		o.stats.ProducerSwitches++
	}
	p, err := producer.New(mode, producer.Resources{Renderer: o.r, Pipelines: o.pipelines, Accel: o.accel}, o.producerOptions...)
	if err != nil {
		return err
	}
	o.producer = p
	return nil
}

func (o *orchestrator) requests() []pipeline.Request {
	reqs := o.producer.Requests(o.cfg)
	reqs = append(reqs, o.temporal.Requests()...)
	reqs = append(reqs, o.upscaler.Requests()...)
	return append(reqs, o.tonemap.Requests(o.r.SurfaceFormat())...)
}

func (o *orchestrator) Warm(ctx context.Context) error {
	if err := o.pipelines.Warm(ctx, o.requests()); err != nil {
		return err
	}
	if !o.accel.Built() {
		if err := o.accel.Build(o.scene); err != nil {
			return err
		}
	}
	o.r.WaitIdle()
	return nil
}

// applyPending moves the queued configuration changes into the next frame's snapshot.
func (o *orchestrator) applyPending() error {
	if o.pending.Empty() {
		return nil
	}
	next, change := o.pending.Apply(o.cfg, o.caps)
	if change == 0 {
		return nil
	}
	prev := o.cfg
	o.cfg = next

	// every pass fetches its pipeline per frame, so the next Get rebuilds the new variant
	if change.Has(config.ChangeShaderCache | config.ChangePipeline) {
		o.pipelines.Invalidate()
	}
	if change.Has(config.ChangePipeline) {
		o.stats.PipelineRebuilds++
		logger.Noticef("pipeline variant changed: %s", o.cfg.ShaderMacros().Key())
	}
	if change.Has(config.ChangeProducer) {
		logger.Noticef("producer %s -> %s", prev.ProducerMode, next.ProducerMode)
		if err := o.switchProducer(next.ProducerMode); err != nil {
			return err
		}
		o.invalidate()
	}
	if change.Has(config.ChangeAAMode) {
		logger.Noticef("anti-aliasing %s -> %s", prev.AAMode, next.AAMode)
		o.invalidate()
	}
	if change.Has(config.ChangeQuality) && next.AAMode == config.AAModeUpscaled {
		logger.Noticef("upscaler quality %s -> %s", prev.Quality, next.Quality)
		o.invalidate()
	}
	if prev.ResolutionScale != next.ResolutionScale && next.AAMode != config.AAModeUpscaled {
		o.invalidate()
	}
	return nil
}

func (o *orchestrator) invalidate() {
	if o.state != StateUninitialized {
		o.state = StateTargetsInvalid
	}
	o.prevValid = false
}

// sizes resolves the render and output resolution of the frame. The upscaler is asked
// before anything is allocated and its input size is authoritative.
func (o *orchestrator) sizes() (common.Extent, common.Extent, error) {
	w, h := o.r.SurfaceSize()
	output := common.Extent{Width: w, Height: h}
	if output.IsZero() {
		return output, output, fmt.Errorf("frame: presentation surface is %s: %w", output, targets.ErrInvalidSize)
	}
	if o.cfg.AAMode == config.AAModeUpscaled {
		if err := o.upscaler.SetRenderSize(output.Width, output.Height, o.cfg.Quality); err != nil {
			return output, output, err
		}
		inW, inH, outW, outH := o.upscaler.RenderSize()
		return common.Extent{Width: inW, Height: inH}, common.Extent{Width: outW, Height: outH}, nil
	}
	render := output
	if o.cfg.ResolutionScale < 1 {
		render = output.Scale(o.cfg.ResolutionScale)
	}
	return render, output, nil
}

// reallocate recreates the Render Target Set and the temporal accumulator.
func (o *orchestrator) reallocate(render, output common.Extent) error {
	if err := o.targets.Create(render, output); err != nil {
		return err
	}
	if o.state != StateUninitialized {
		// the jitter phase survives so a frozen frame keeps its offset across a resize
		opts := append(slices.Clone(o.temporalOptions), temporal.WithPhase(o.temporal.Phase()))
		o.temporal.Release()
		acc, err := temporal.New(o.r, o.pipelines, opts...)
		if err != nil {
			return err
		}
		o.temporal = acc
	}
	o.stats.Reallocations++
	o.prevValid = false
	o.state = StateSteady
	logger.Noticef("render targets %s -> %s (%s, %s)", render, output, o.cfg.AAMode, o.cfg.ProducerMode)
	return nil
}

func (o *orchestrator) Render(dt float64) (Report, error) {
	if err := o.applyPending(); err != nil {
		return Report{}, err
	}
	rep := Report{Index: o.frameIndex, Entered: o.state, Producer: o.cfg.ProducerMode, AAMode: o.cfg.AAMode}

	render, output, err := o.sizes()
	if err != nil {
		return rep, err
	}
	if o.state != StateSteady || o.targets.IsResizeRequired(render, output) {
		if err := o.reallocate(render, output); err != nil {
			return rep, err
		}
		rep.Reallocated = true
	}
	rep.RenderSize, rep.OutputSize = render, output
	rep.HistoryValid = o.prevValid
	if !o.prevValid {
		o.stats.InvalidFrames++
	}

	if o.cfg.EnableAnimations {
		o.animTime += dt * float64(o.cfg.AnimationSpeed)
	}
	if err := o.scene.Animate(o.animTime, o.frameIndex); err != nil {
		return rep, err
	}

	o.camera.Update()
	rep.Jitter = o.temporal.PixelOffset(o.cfg.AAMode)
	view := o.camera.View(render, rep.Jitter)
	sun := o.scene.Sun().Constants(o.shadows.Splits(o.camera.Near()))
	block := lighting.Build(o.cfg, o.frameIndex, sun, view, o.prevView, o.prevValid)
	if err := o.r.WriteBuffer(o.constants, 0, block.Marshal()); err != nil {
		return rep, fmt.Errorf("frame: constants: %w", err)
	}

	cl, err := o.r.BeginFrame()
	if err != nil {
		return rep, err
	}
	if err := o.record(cl, view, &rep); err != nil {
		// the list is still submitted so the device leaves the frame; nothing is presented
		return rep, errors.Join(err, o.r.Submit(cl))
	}
	if err := o.r.Submit(cl); err != nil {
		return rep, err
	}
	if err := o.r.Present(); err != nil {
		return rep, err
	}

	o.prevView = view
	o.prevValid = true
	o.temporal.AdvanceFrame(o.cfg.FreezeFrameIndex)
	o.upscaler.AdvanceFrame()
	if !o.cfg.FreezeFrameIndex {
		o.frameIndex++
	}
	o.targets.NextFrame()
	o.stats.Frames++
	o.stats.BLASRebuilds += rep.GBuffer.Rebuilds
	return rep, nil
}

// record issues the passes of one frame onto cl.
func (o *orchestrator) record(cl renderer.CommandList, view camera.PlanarView, rep *Report) error {
	fc := producer.FrameContext{
		Commands:   cl,
		FrameIndex: o.frameIndex,
		Constants:  o.constants,
		Camera: light.CascadeView{
			View:   view.ViewMatrix(),
			FovY:   o.camera.Fov(),
			Aspect: rep.RenderSize.Aspect(),
			Near:   o.camera.Near(),
		},
	}
	g, err := o.producer.Produce(fc, o.cfg, o.scene, o.targets)
	if err != nil {
		return err
	}
	rep.GBuffer = g

	pc := temporal.PassContext{Commands: cl, Constants: o.constants, HistoryValid: o.prevValid}
	switch o.cfg.AAMode {
	case config.AAModeTAA:
		if rep.MotionVectors, err = o.temporal.RenderMotionVectors(pc, o.scene, o.targets); err != nil {
			return err
		}
		if _, err := o.temporal.Resolve(pc, o.targets); err != nil {
			return err
		}
	case config.AAModeUpscaled:
		if rep.MotionVectors, err = o.temporal.RenderMotionVectors(pc, o.scene, o.targets); err != nil {
			return err
		}
		err = o.upscaler.Render(upscaler.RenderParams{
			Commands:          cl,
			Targets:           o.targets,
			Exposure:          o.tonemap.Exposure(),
			ExposureScale:     o.cfg.ExposureScale,
			Sharpness:         o.cfg.Sharpness,
			GBufferRasterized: o.cfg.ProducerMode == config.ProducerRaster,
			ResetHistory:      !o.prevValid,
			View:              view,
			PreviousView:      o.prevView,
		})
		if err != nil {
			return err
		}
	}

	rep.Presented, err = o.tonemap.Render(cl, o.targets, o.cfg.AAMode, o.cfg.ExposureScale)
	return err
}

func (o *orchestrator) Config() config.RenderConfiguration {
	return o.cfg
}

func (o *orchestrator) Pending() *config.Pending {
	return o.pending
}

func (o *orchestrator) State() State {
	return o.state
}

func (o *orchestrator) PreviousViewsValid() bool {
	return o.prevValid
}

func (o *orchestrator) FrameIndex() uint32 {
	return o.frameIndex
}

func (o *orchestrator) Targets() targets.RenderTargets {
	return o.targets
}

func (o *orchestrator) Stats() Stats {
	return o.stats
}

func (o *orchestrator) Release() {
	if o.producer != nil {
		o.producer.Release()
	}
	if o.temporal != nil {
		o.temporal.Release()
	}
	if o.tonemap != nil {
		o.tonemap.Release()
	}
	if o.targets != nil {
		o.targets.Release()
	}
	if o.constants != nil {
		o.constants.Release()
	}
	o.upscaler.Release()
	o.accel.Release()
	o.pipelines.Invalidate()
}
