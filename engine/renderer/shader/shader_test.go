package shader

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreProcessorConditionals(t *testing.T) {
	src := strings.Join([]string{
		"a",
		"#if STF_ENABLED",
		"stf",
		"#if STF_LOAD",
		"load",
		"#else",
		"sample",
		"#endif",
		"#else",
		"hw",
		"#endif",
		"#ifdef MISSING",
		"missing",
		"#endif",
		"#ifndef MISSING",
		"not missing",
		"#endif",
	}, "\n")

	tests := []struct {
		name    string
		defines map[string]string
		want    []string
	}{
		{"stf sample", map[string]string{"STF_ENABLED": "1", "STF_LOAD": "0"}, []string{"a", "stf", "sample", "not missing"}},
		{"stf load", map[string]string{"STF_ENABLED": "1", "STF_LOAD": "1"}, []string{"a", "stf", "load", "not missing"}},
		{"hardware", map[string]string{"STF_ENABLED": "0", "STF_LOAD": "1"}, []string{"a", "hw", "not missing"}},
		{"nothing defined", nil, []string{"a", "hw", "not missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewPreProcessor(tt.defines).Process(src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.Split(out, "\n"))
		})
	}
}

func TestPreProcessorSubstitution(t *testing.T) {
	pp := NewPreProcessor(map[string]string{"THREAD_SIZE_X": "16", "THREAD_SIZE_Y": "8", "X": "9"})
	out, err := pp.Process("@workgroup_size(THREAD_SIZE_X, THREAD_SIZE_Y, 1)\nlet MAX_X = X;\n// THREAD_SIZE_X stays in comments")
	require.NoError(t, err)
	assert.Equal(t, "@workgroup_size(16, 8, 1)\nlet MAX_X = 9;\n// THREAD_SIZE_X stays in comments", out)
}

func TestPreProcessorErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"unterminated", "#if A\nx", "unterminated"},
		{"stray else", "#else", "#else without #if"},
		{"stray endif", "#endif", "#endif without #if"},
		{"unknown directive", "#pragma once", "unknown directive"},
		{"missing name", "#ifdef\n#endif", "requires a name"},
		{"unknown include", "// @stf:include nope", "unknown struct type"},
		{"bad group arity", "// @stf:group 0 0 uniform frame", "five arguments"},
		{"bad address space", "// @stf:group 0 0 private frame frame", "unknown address space"},
		{"unbindable include", "// @stf:group 0 0 uniform helpers stf", "cannot be bound"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPreProcessor(nil).Process(tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestPreProcessorIncludesOnce(t *testing.T) {
	pp := NewPreProcessor(nil)
	out, err := pp.Process("// @stf:include frame\n// @stf:include stf\n// @stf:group 0 0 uniform frame frame\n// @stf:group 0 1 read materials array<material>")
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, "struct LightingConstants"))
	assert.Equal(t, 1, strings.Count(out, "struct MaterialData"))
	assert.Contains(t, out, "@group(0) @binding(0) var<uniform> frame: LightingConstants;")
	assert.Contains(t, out, "@group(0) @binding(1) var<storage, read> materials: array<MaterialData>;")

	decls := pp.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, AnnotationTypeBindingGroup, decls[0].Type)
	assert.Equal(t, 1, *decls[1].Binding)
}

func TestReflectIncludeSizes(t *testing.T) {
	frame, err := ReflectInclude(AnnotationArgFrame)
	require.NoError(t, err)

	lc, ok := frame["LightingConstants"]
	require.True(t, ok)
	assert.Equal(t, uint64(608), lc.Size)
	assert.Equal(t, uint64(240), frame["ViewConstants"].Size)
	assert.Equal(t, uint64(48), frame["LightConstants"].Size)

	offsets := map[string]uint64{
		"ambientColor":           0,
		"light":                  16,
		"view":                   64,
		"viewPrev":               304,
		"stfSplitScreen":         544,
		"stfMipLevelOverride":    568,
		"stfDebugVisualizeLanes": 592,
	}
	for name, want := range offsets {
		f, ok := lc.Field(name)
		require.True(t, ok, name)
		assert.Equal(t, want, f.Offset, name)
	}

	bvh, err := ReflectInclude(AnnotationArgBVH)
	require.NoError(t, err)
	assert.Equal(t, uint64(32), bvh["BVHNode"].Size)
	assert.Equal(t, uint64(144), bvh["TLASInstance"].Size)
	assert.Equal(t, uint64(16), bvh["MeshRecord"].Size)

	for key, want := range map[AnnotationArg]struct {
		name string
		size uint64
	}{
		AnnotationArgInstance: {"InstanceData", 144},
		AnnotationArgMaterial: {"MaterialData", 64},
		AnnotationArgShadow:   {"ShadowConstants", 288},
	} {
		layouts, err := ReflectInclude(key)
		require.NoError(t, err)
		assert.Equal(t, want.size, layouts[want.name].Size, want.name)
	}
}

func TestGBufferReflection(t *testing.T) {
	defines := map[string]string{"STF_ENABLED": "1", "STF_LOAD": "0", "ALPHA_TESTED": "0"}
	vs, err := Load("gbuffer", ShaderTypeVertex, "gbuffer.wgsl", defines)
	require.NoError(t, err)
	assert.Equal(t, "vs_main", vs.EntryPoint())

	layouts := vs.VertexLayouts()
	require.Len(t, layouts, 1)
	assert.Equal(t, uint64(48), layouts[0].Stride)
	require.Len(t, layouts[0].Attributes, 4)
	assert.Equal(t, gpu.VertexFloat32x4, layouts[0].Attributes[3].Format)
	assert.Equal(t, uint64(32), layouts[0].Attributes[3].Offset)

	g0, ok := vs.BindGroupLayout(0)
	require.True(t, ok)
	require.Len(t, g0.Entries, 3)
	assert.Equal(t, gpu.BindingUniformBuffer, g0.Entries[0].Kind)
	assert.Equal(t, uint64(608), g0.Entries[0].MinBindingSize)
	assert.Equal(t, gpu.BindingReadOnlyStorageBuffer, g0.Entries[1].Kind)
	assert.Zero(t, g0.Entries[1].MinBindingSize)
	assert.Equal(t, gpu.StageVertex, g0.Entries[0].Visibility)

	fs, err := Load("gbuffer", ShaderTypeFragment, "gbuffer.wgsl", defines)
	require.NoError(t, err)
	assert.Equal(t, "fs_main", fs.EntryPoint())
	assert.Empty(t, fs.VertexLayouts())

	g1, ok := fs.BindGroupLayout(1)
	require.True(t, ok)
	atlas, ok := g1.Entry(0)
	require.True(t, ok)
	assert.Equal(t, gpu.BindingSampledTexture, atlas.Kind)
	assert.Equal(t, gpu.SampleFloat, atlas.SampleType)
	binding, ok := fs.BindingFromName(1, "atlasSampler")
	require.True(t, ok)
	assert.Equal(t, uint32(1), binding)
}

func TestTraceVariants(t *testing.T) {
	compute, err := Load("trace", ShaderTypeCompute, "trace.wgsl", map[string]string{
		"STF_ENABLED": "1", "STF_LOAD": "1", "USE_RAY_QUERY": "1", "THREAD_SIZE_X": "16", "THREAD_SIZE_Y": "8", "ALPHA_TESTED": "0",
	})
	require.NoError(t, err)
	assert.Equal(t, "main", compute.EntryPoint())
	assert.Equal(t, [3]uint32{16, 8, 1}, compute.WorkgroupSize())
	assert.Contains(t, compute.Source(), "textureLoad(atlas")

	g2, ok := compute.BindGroupLayout(2)
	require.True(t, ok)
	depth, ok := g2.Entry(7)
	require.True(t, ok)
	assert.Equal(t, gpu.BindingStorageTexture, depth.Kind)
	assert.Equal(t, gpu.FormatR32Float, depth.StorageFormat)
	assert.Equal(t, gpu.AccessWriteOnly, depth.StorageAccess)

	raygen, err := Load("trace", ShaderTypeRayGen, "trace.wgsl", map[string]string{
		"STF_ENABLED": "0", "STF_LOAD": "0", "USE_RAY_QUERY": "0", "THREAD_SIZE_X": "16", "THREAD_SIZE_Y": "16", "ALPHA_TESTED": "0",
	})
	require.NoError(t, err)
	assert.Equal(t, "raygen", raygen.EntryPoint())
	assert.Equal(t, gpu.StageRayTracing, raygen.BindGroupLayouts()[0].Entries[0].Visibility)
	assert.NotContains(t, raygen.Source(), "return material.baseColor * stfSampleAtlas")
}

func TestDeferredSampleTypes(t *testing.T) {
	s, err := Load("deferred", ShaderTypeCompute, "deferred.wgsl", nil)
	require.NoError(t, err)

	g1, _ := s.BindGroupLayout(1)
	depth, ok := g1.Entry(4)
	require.True(t, ok)
	assert.Equal(t, gpu.SampleUnfilterableFloat, depth.SampleType)

	g2, _ := s.BindGroupLayout(2)
	shadowMap, _ := g2.Entry(0)
	assert.Equal(t, gpu.BindingDepthTexture, shadowMap.Kind)
	cmp, _ := g2.Entry(4)
	assert.Equal(t, gpu.BindingComparisonSampler, cmp.Kind)
}

func TestNewShaderErrors(t *testing.T) {
	_, err := NewShader("empty", ShaderTypeCompute, "", nil)
	require.Error(t, err)

	_, err = NewShader("no entry", ShaderTypeFragment, "@compute @workgroup_size(1) fn main() {}", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fragment entry point")

	_, err = Load("missing", ShaderTypeCompute, "missing.wgsl", nil)
	require.Error(t, err)
}

func TestStripCommentsKeepsLines(t *testing.T) {
	src := "a // one\n/* two\n /* nested */ still */b\nc/**/d"
	assert.Equal(t, "a \n\nb\ncd", stripComments(src))

	l, ok := resolveTypeLayout("array<vec3u, 4>", nil)
	require.True(t, ok)
	assert.Equal(t, wgslTypeLayout{64, 16}, l)
}
