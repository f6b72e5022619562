package pipeline

import (
	"maps"

	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/shader"
)

// PipelineBuilderOption configures a pipeline inside NewPipeline. Which shader stages are
// required depends on the PipelineType and is checked after every option has run.
type PipelineBuilderOption func(*pipeline)

func WithVertexShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) { p.vertexShader = s }
}

func WithFragmentShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) { p.fragmentShader = s }
}

func WithComputeShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) { p.computeShader = s }
}

// WithRayGenShader sets the entry shader of a PipelineTypeRayTracing pipeline.
func WithRayGenShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) { p.rayGenShader = s }
}

// WithDefines records the macros the shaders were pre-processed with. The cache keys
// pipelines on this set, so it is copied rather than aliased.
func WithDefines(defines config.MacroSet) PipelineBuilderOption {
	return func(p *pipeline) {
		p.defines = maps.Clone(defines)
		if p.defines == nil {
			p.defines = config.MacroSet{}
		}
	}
}

// WithDepth attaches a depth buffer to a render pipeline.
//
// Parameters:
//   - format: depth attachment format
//   - compare: comparison against the stored depth; reversed-Z passes use CompareGreater
//   - write: false for passes that only test depth
func WithDepth(format gpu.TextureFormat, compare gpu.CompareFunction, write bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthFormat = format
		p.depthCompare = compare
		p.depthWriteEnabled = write
	}
}

// WithDepthBias offsets rasterized depth, used by the shadow cascades.
func WithDepthBias(bias int32, slopeScale float32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthBias = bias
		p.depthBiasSlopeScale = slopeScale
	}
}

func WithCullMode(mode gpu.CullMode) PipelineBuilderOption {
	return func(p *pipeline) { p.cullMode = mode }
}

// WithTopology defaults to triangle lists.
func WithTopology(topology gpu.Topology) PipelineBuilderOption {
	return func(p *pipeline) { p.topology = topology }
}

// WithColorTargets lists the color attachment formats, one per fragment @location.
func WithColorTargets(formats ...gpu.TextureFormat) PipelineBuilderOption {
	return func(p *pipeline) {
		p.colorFormats = append([]gpu.TextureFormat(nil), formats...)
	}
}
