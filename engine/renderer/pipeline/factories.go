package pipeline

import (
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/shader"
)

// ComputeFactory returns a factory that loads a compute kernel from an embedded asset and
// wraps it in a compute pipeline pre-processed with the requested defines.
//
// Parameters:
//   - name: the pipeline and shader key
//   - asset: the WGSL file under the shader assets
//
// Returns:
//   - Factory: the factory
func ComputeFactory(name, asset string) Factory {
	return func(defines config.MacroSet) (Pipeline, error) {
		cs, err := shader.Load(name, shader.ShaderTypeCompute, asset, defines)
		if err != nil {
			return nil, err
		}
		return NewPipeline(name, PipelineTypeCompute, WithComputeShader(cs), WithDefines(defines))
	}
}

// RenderFactory returns a factory that loads the vertex and, when color targets are given,
// the fragment entry point of an embedded asset.
//
// Parameters:
//   - name: the pipeline and shader key
//   - asset: the WGSL file under the shader assets
//   - opts: render state applied after the shaders
//
// Returns:
//   - Factory: the factory
func RenderFactory(name, asset string, opts ...PipelineBuilderOption) Factory {
	return func(defines config.MacroSet) (Pipeline, error) {
		vs, err := shader.Load(name, shader.ShaderTypeVertex, asset, defines)
		if err != nil {
			return nil, err
		}
		all := []PipelineBuilderOption{WithVertexShader(vs), WithDefines(defines)}
		staged := &pipeline{}
		for _, opt := range opts {
			opt(staged)
		}
		if len(staged.colorFormats) > 0 {
			fs, err := shader.Load(name, shader.ShaderTypeFragment, asset, defines)
			if err != nil {
				return nil, err
			}
			all = append(all, WithFragmentShader(fs))
		}
		return NewPipeline(name, PipelineTypeRender, append(all, opts...)...)
	}
}

// RayGenFactory returns a factory that loads the ray generation kernel of an embedded asset
// into a ray tracing pipeline.
//
// Parameters:
//   - name: the pipeline and shader key
//   - asset: the WGSL file under the shader assets
//
// Returns:
//   - Factory: the factory
func RayGenFactory(name, asset string) Factory {
	return func(defines config.MacroSet) (Pipeline, error) {
		rs, err := shader.Load(name, shader.ShaderTypeRayGen, asset, defines)
		if err != nil {
			return nil, err
		}
		return NewPipeline(name, PipelineTypeRayTracing, WithRayGenShader(rs), WithDefines(defines))
	}
}
