package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
)

// ColorAttachment is one color output of a render pass.
type ColorAttachment struct {
	Texture gpu.Texture
	// Clear loads ClearValue instead of the existing contents.
	Clear      bool
	ClearValue [4]float64
}

// DepthAttachment is the depth output of a render pass.
type DepthAttachment struct {
	Texture    gpu.Texture
	Clear      bool
	ClearValue float32
}

// RenderPassDescriptor describes the attachments of a render pass.
type RenderPassDescriptor struct {
	Label            string
	ColorAttachments []ColorAttachment
	Depth            *DepthAttachment
}

// CommandList records the GPU work of one frame. Commands execute in recording order once the
// list is submitted. A CommandList is owned by the goroutine that began the frame.
type CommandList interface {
	// Surface returns the presentation texture of this frame.
	//
	// Returns:
	//   - gpu.Texture: the surface texture, valid until Present
	Surface() gpu.Texture

	// Dispatch records a compute dispatch.
	//
	// Parameters:
	//   - p: a compiled compute pipeline
	//   - groups: bind groups in group index order
	//   - x, y, z: the workgroup counts
	//
	// Returns:
	//   - error: an error if the pipeline is not a compiled compute pipeline
	Dispatch(p pipeline.Pipeline, groups []gpu.BindGroup, x, y, z uint32) error

	// TraceRays records a ray tracing launch of width x height ray generation invocations.
	//
	// Parameters:
	//   - p: a compiled ray tracing pipeline
	//   - groups: bind groups in group index order
	//   - width, height: the launch grid
	//
	// Returns:
	//   - error: gpu.ErrFeatureUnsupported when the device has no ray tracing pipelines
	TraceRays(p pipeline.Pipeline, groups []gpu.BindGroup, width, height uint32) error

	// BeginRenderPass opens a render pass. It must be ended before any other command is recorded.
	//
	// Parameters:
	//   - desc: the attachments of the pass
	//
	// Returns:
	//   - RenderPass: the open pass
	//   - error: an error if an attachment lacks the render target usage
	BeginRenderPass(desc RenderPassDescriptor) (RenderPass, error)

	// Barrier records resource state transitions. All barriers of one call are issued together.
	//
	// Parameters:
	//   - barriers: the transitions to record
	Barrier(barriers ...gpu.Barrier)

	// ClearTexture fills a render target texture with its descriptor's ClearValue.
	//
	// Parameters:
	//   - tex: the texture to clear
	//
	// Returns:
	//   - error: an error if the texture lacks the render target usage
	ClearTexture(tex gpu.Texture) error
}

// RenderPass records draws into the attachments of an open pass.
type RenderPass interface {
	SetPipeline(p pipeline.Pipeline) error
	SetBindGroup(index uint32, g gpu.BindGroup)
	SetVertexBuffer(slot uint32, buf gpu.Buffer)
	SetIndexBuffer(buf gpu.Buffer)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	End() error
}

func checkCompiled(p pipeline.Pipeline, want pipeline.PipelineType) error {
	if p == nil {
		return fmt.Errorf("renderer: nil pipeline")
	}
	if p.Type() != want {
		return fmt.Errorf("renderer: pipeline %s is a %s pipeline, want %s", p.PipelineKey(), p.Type(), want)
	}
	if p.Handle() == nil {
		return fmt.Errorf("renderer: pipeline %s is not compiled", p.PipelineKey())
	}
	return nil
}

func checkRenderPass(desc RenderPassDescriptor) error {
	if len(desc.ColorAttachments) == 0 && desc.Depth == nil {
		return fmt.Errorf("renderer: render pass %q has no attachments", desc.Label)
	}
	for i, a := range desc.ColorAttachments {
		if a.Texture == nil {
			return fmt.Errorf("renderer: render pass %q color attachment %d is nil", desc.Label, i)
		}
		if a.Texture.Descriptor().Usage&gpu.TextureUsageRenderTarget == 0 {
			return fmt.Errorf("renderer: render pass %q color attachment %s is not a render target", desc.Label, a.Texture.Descriptor().Label)
		}
	}
	if desc.Depth != nil {
		d := desc.Depth.Texture.Descriptor()
		if !d.Format.IsDepth() || d.Usage&gpu.TextureUsageRenderTarget == 0 {
			return fmt.Errorf("renderer: render pass %q depth attachment %s is not a depth render target", desc.Label, d.Label)
		}
	}
	return nil
}

func checkClear(tex gpu.Texture) error {
	if tex == nil {
		return fmt.Errorf("renderer: clear of nil texture")
	}
	if tex.Descriptor().Usage&gpu.TextureUsageRenderTarget == 0 {
		return fmt.Errorf("renderer: cannot clear %s, not a render target", tex.Descriptor().Label)
	}
	return nil
}
