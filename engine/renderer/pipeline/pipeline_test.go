package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quadSource = `
// @stf:include frame
// @stf:group 0 0 uniform frame frame
@group(1) @binding(0) var source: texture_2d<f32>;
@group(1) @binding(1) var pointSampler: sampler;

struct QuadIn {
    @location(0) position: vec2f,
}

@vertex
fn vs_main(input: QuadIn) -> @builtin(position) vec4f {
    return vec4f(input.position, textureLoad(source, vec2i(0, 0), 0).x, 1.0) + frame.ambientColor;
}

@fragment
fn fs_main() -> @location(0) vec4f {
    return textureSample(source, pointSampler, vec2f(0.5));
}
`

const kernelSource = `
@group(0) @binding(0) var<storage, read_write> values: array<u32>;

@compute @workgroup_size(THREAD_SIZE_X, THREAD_SIZE_Y, 1)
fn main(@builtin(global_invocation_id) id: vec3u) {
    values[id.x] = id.y;
}
`

func loadQuad(t *testing.T) (shader.Shader, shader.Shader) {
	t.Helper()
	vs, err := shader.NewShader("quad", shader.ShaderTypeVertex, quadSource, nil)
	require.NoError(t, err)
	fs, err := shader.NewShader("quad", shader.ShaderTypeFragment, quadSource, nil)
	require.NoError(t, err)
	return vs, fs
}

func TestNewPipelineMergesStages(t *testing.T) {
	vs, fs := loadQuad(t)
	p, err := NewPipeline("quad", PipelineTypeRender,
		WithVertexShader(vs),
		WithFragmentShader(fs),
		WithColorTargets(gpu.FormatRGBA8Unorm),
		WithDepth(gpu.FormatDepth32Float, gpu.CompareGreater, true),
	)
	require.NoError(t, err)

	g0, ok := p.BindGroupLayout(0)
	require.True(t, ok)
	frame, ok := g0.Entry(0)
	require.True(t, ok)
	assert.Equal(t, gpu.StageVertex|gpu.StageFragment, frame.Visibility)

	g1, ok := p.BindGroupLayout(1)
	require.True(t, ok)
	source, ok := g1.Entry(0)
	require.True(t, ok)
	// sampled by the fragment stage, so it stays filterable
	assert.Equal(t, gpu.SampleFloat, source.SampleType)
	assert.Equal(t, gpu.StageVertex|gpu.StageFragment, source.Visibility)

	assert.True(t, p.DepthTestEnabled())
	assert.Equal(t, gpu.CompareGreater, p.DepthCompare())
	assert.Equal(t, []gpu.TextureFormat{gpu.FormatRGBA8Unorm}, p.ColorFormats())
	assert.Equal(t, [3]uint32{}, p.WorkgroupSize())
	assert.NotNil(t, p.Defines())
}

func TestNewPipelineMissingShader(t *testing.T) {
	vs, _ := loadQuad(t)
	tests := []struct {
		name string
		typ  PipelineType
		opts []PipelineBuilderOption
	}{
		{"render without vertex", PipelineTypeRender, nil},
		{"color targets without fragment", PipelineTypeRender, []PipelineBuilderOption{WithVertexShader(vs), WithColorTargets(gpu.FormatRGBA8Unorm)}},
		{"compute without kernel", PipelineTypeCompute, nil},
		{"raytracing without raygen", PipelineTypeRayTracing, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPipeline("p", tt.typ, tt.opts...)
			assert.ErrorIs(t, err, ErrMissingShader)
		})
	}

	p, err := NewPipeline("shadow", PipelineTypeRender, WithVertexShader(vs), WithDepth(gpu.FormatDepth32Float, gpu.CompareLess, true))
	require.NoError(t, err)
	assert.Nil(t, p.Shader(shader.ShaderTypeFragment))
}

type countingCompiler struct {
	compiled atomic.Int32
	released atomic.Int32
	fail     error
}

func (c *countingCompiler) CompilePipeline(p Pipeline) error {
	if c.fail != nil {
		return c.fail
	}
	c.compiled.Add(1)
	p.SetHandle(p.PipelineKey())
	return nil
}

func (c *countingCompiler) ReleasePipeline(p Pipeline) {
	c.released.Add(1)
	p.SetHandle(nil)
}

func kernelFactory(calls *atomic.Int32) Factory {
	return func(defines config.MacroSet) (Pipeline, error) {
		calls.Add(1)
		s, err := shader.NewShader("kernel", shader.ShaderTypeCompute, kernelSource, defines)
		if err != nil {
			return nil, err
		}
		return NewPipeline("kernel", PipelineTypeCompute, WithComputeShader(s), WithDefines(defines))
	}
}

func TestCacheKeyedByDefines(t *testing.T) {
	compiler := &countingCompiler{}
	cache := NewCache(compiler)
	var calls atomic.Int32
	factory := kernelFactory(&calls)

	small := config.MacroSet{config.MacroThreadSizeX: "8", config.MacroThreadSizeY: "8"}
	large := small.With(config.MacroThreadSizeX, "16")

	p1, err := cache.Get("kernel", small, factory)
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{8, 8, 1}, p1.WorkgroupSize())
	assert.Equal(t, "kernel", p1.Handle())

	again, err := cache.Get("kernel", config.MacroSet{config.MacroThreadSizeY: "8", config.MacroThreadSizeX: "8"}, factory)
	require.NoError(t, err)
	assert.Same(t, p1, again)

	p2, err := cache.Get("kernel", large, factory)
	require.NoError(t, err)
	assert.NotSame(t, p1, p2)
	assert.Equal(t, [3]uint32{16, 8, 1}, p2.WorkgroupSize())

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 2, stats.Builds)
	assert.Equal(t, 1, stats.Hits)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCacheSharesConcurrentBuilds(t *testing.T) {
	compiler := &countingCompiler{}
	cache := NewCache(compiler)
	var calls atomic.Int32
	factory := kernelFactory(&calls)
	defines := config.MacroSet{config.MacroThreadSizeX: "16", config.MacroThreadSizeY: "16"}

	var wg sync.WaitGroup
	results := make([]Pipeline, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := cache.Get("kernel", defines, factory)
			assert.NoError(t, err)
			results[i] = p
		}()
	}
	wg.Wait()

	for _, p := range results[1:] {
		assert.Same(t, results[0], p)
	}
	assert.EqualValues(t, 1, compiler.compiled.Load())
}

func TestCacheInvalidate(t *testing.T) {
	compiler := &countingCompiler{}
	cache := NewCache(compiler)
	var calls atomic.Int32
	defines := config.MacroSet{config.MacroThreadSizeX: "8", config.MacroThreadSizeY: "8"}

	before, err := cache.Get("kernel", defines, kernelFactory(&calls))
	require.NoError(t, err)

	cache.Invalidate()
	assert.Zero(t, cache.Len())
	assert.EqualValues(t, 1, compiler.released.Load())
	assert.Nil(t, before.Handle())

	after, err := cache.Get("kernel", defines, kernelFactory(&calls))
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Equal(t, 1, cache.Stats().Invalidations)
}

func TestCacheWarm(t *testing.T) {
	compiler := &countingCompiler{}
	cache := NewCache(compiler)
	var calls atomic.Int32
	factory := kernelFactory(&calls)

	var reqs []Request
	for _, x := range []string{"8", "16"} {
		for _, y := range []string{"8", "16"} {
			reqs = append(reqs, Request{
				Name:    "kernel",
				Defines: config.MacroSet{config.MacroThreadSizeX: x, config.MacroThreadSizeY: y},
				Factory: factory,
			})
		}
	}
	require.NoError(t, cache.Warm(context.Background(), reqs))
	assert.Equal(t, 4, cache.Len())

	boom := errors.New("device lost")
	failing := NewCache(&countingCompiler{fail: boom})
	err := failing.Warm(context.Background(), reqs[:1])
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, failing.Len())
}

func TestFactoriesLoadAssets(t *testing.T) {
	defines := config.MacroSet{"STF_ENABLED": "1", "STF_LOAD": "0", "MOTION_VECTORS": "1", "ALPHA_TESTED": "1"}
	p, err := RenderFactory("gbuffer", "gbuffer.wgsl",
		WithColorTargets(gpu.FormatRGBA8Unorm, gpu.FormatRGBA8Unorm, gpu.FormatRGBA16Float, gpu.FormatRGBA16Float, gpu.FormatRGBA16Float),
		WithDepth(gpu.FormatDepth32Float, gpu.CompareGreater, true),
	)(defines)
	require.NoError(t, err)
	assert.Equal(t, PipelineTypeRender, p.Type())
	assert.NotNil(t, p.Shader(shader.ShaderTypeFragment))
	assert.Equal(t, "1", p.Defines()["ALPHA_TESTED"])

	shadow, err := RenderFactory("shadow_depth", "shadow_depth.wgsl", WithDepth(gpu.FormatDepth32Float, gpu.CompareLess, true))(nil)
	require.NoError(t, err)
	assert.Nil(t, shadow.Shader(shader.ShaderTypeFragment))

	resolve, err := ComputeFactory("depth_resolve", "depth_resolve.wgsl")(config.MacroSet{})
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{8, 8, 1}, resolve.WorkgroupSize())

	_, err = ComputeFactory("missing", "missing.wgsl")(nil)
	assert.Error(t, err)
}
