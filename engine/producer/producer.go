// Package producer fills the G-buffer and the HDR color surface of a frame. Three
// interchangeable strategies exist: rasterization with deferred lighting, a compute kernel
// traversing the BVH inline, and a ray generation pipeline launched per pixel.
package producer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/accel"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/light"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/scene"
	"github.com/Carmen-Shannon/oxy-stf/engine/targets"
	"github.com/Carmen-Shannon/oxy-stf/log"
)

var logger = log.New("producer")

// FrameContext is the command context of one frame's geometry pass.
type FrameContext struct {
	Commands   renderer.CommandList
	FrameIndex uint32
	// Constants is the uniform buffer holding this frame's lighting constant block.
	Constants gpu.Buffer
	// Camera is the unjittered camera the shadow cascades are fitted to.
	Camera light.CascadeView
}

// GBufferResult describes what a producer wrote.
type GBufferResult struct {
	Mode config.ProducerMode
	Size common.Extent
	// Color is the lit HDR surface.
	Color gpu.Texture
	// Depth is the linear depth surface.
	Depth gpu.Texture
	// Draws counts the draw calls of the raster path.
	Draws int
	// Grid is the workgroup count of the compute path or the launch size of the ray generation path.
	Grid [3]uint32
	// Rebuilds counts the bottom level structures rebuilt for this frame.
	Rebuilds int
}

// Resources are the long-lived objects shared by every producer.
type Resources struct {
	Renderer  renderer.Renderer
	Pipelines *pipeline.Cache
	// Accel is required by the tracing producers.
	Accel accel.Manager
}

// Producer is one geometry producer strategy. Producers are used by the frame goroutine only.
type Producer interface {
	// Mode returns the producer mode this strategy implements.
	//
	// Returns:
	//   - config.ProducerMode: the mode
	Mode() config.ProducerMode

	// Requests lists the pipeline variants Produce will ask for under cfg, so they can be
	// compiled ahead of the first frame.
	//
	// Parameters:
	//   - cfg: the configuration the variants are derived from
	//
	// Returns:
	//   - []pipeline.Request: the variants
	Requests(cfg config.RenderConfiguration) []pipeline.Request

	// Produce records the geometry pass of a frame. It writes every G-buffer channel, the
	// linear depth and the HDR color of t at its render size.
	//
	// Parameters:
	//   - fc: the frame's command context
	//   - cfg: the frame's configuration snapshot
	//   - s: the uploaded and animated scene
	//   - t: the allocated render targets
	//
	// Returns:
	//   - GBufferResult: what was written
	//   - error: an error if a pipeline, a bind group or a command could not be created
	Produce(fc FrameContext, cfg config.RenderConfiguration, s scene.Scene, t targets.RenderTargets) (GBufferResult, error)

	// Release destroys the producer's own GPU resources. Shared resources are untouched.
	Release()
}

// New creates the producer for a mode.
//
// Parameters:
//   - mode: the producer mode
//   - res: the shared resources
//   - options: functional options
//
// Returns:
//   - Producer: the producer
//   - error: gpu.ErrFeatureUnsupported when the device cannot run the mode, or an error if
//     a resource could not be created
func New(mode config.ProducerMode, res Resources, options ...ProducerBuilderOption) (Producer, error) {
	opts := defaultOptions()
	for _, opt := range options {
		opt(&opts)
	}

	var p Producer
	switch mode {
	case config.ProducerRaster:
		raster, err := newRaster(res, opts)
		if err != nil {
			return nil, err
		}
		p = raster
	case config.ProducerCompute, config.ProducerRayGen:
		if res.Accel == nil {
			return nil, fmt.Errorf("producer %s: no acceleration structure manager", mode)
		}
		if mode == config.ProducerRayGen && !res.Renderer.Features().RayTracingPipeline {
			return nil, fmt.Errorf("producer %s: %w: ray tracing pipelines", mode, gpu.ErrFeatureUnsupported)
		}
		p = newTracer(mode, res)
	default:
		return nil, fmt.Errorf("producer: unknown mode %d", uint32(mode))
	}
	logger.Noticef("geometry producer %s %s", mode, mode.Title())
	return p, nil
}

// checkTargets verifies the targets are allocated before any pass records.
func checkTargets(t targets.RenderTargets) error {
	if !t.Allocated() {
		return fmt.Errorf("producer: render targets not allocated")
	}
	return nil
}
