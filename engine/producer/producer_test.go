package producer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/accel"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/light"
	"github.com/Carmen-Shannon/oxy-stf/engine/lighting"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/scene"
	"github.com/Carmen-Shannon/oxy-stf/engine/targets"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	r       renderer.Renderer
	rec     renderer.Recorder
	scene   scene.Scene
	res     Resources
	targets targets.RenderTargets
	frame   gpu.Buffer
}

func newFixture(t *testing.T, features gpu.Features, render common.Extent) *fixture {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithHeadlessSize(render.Width, render.Height), renderer.WithHeadlessFeatures(features))
	require.NoError(t, err)
	t.Cleanup(r.Release)
	rec, ok := renderer.AsRecorder(r)
	require.True(t, ok)

	desc, err := scene.DefaultDescription()
	require.NoError(t, err)
	s, err := scene.NewScene(desc, scene.WithSkinningWorkers(2))
	require.NoError(t, err)
	t.Cleanup(s.Release)
	require.NoError(t, s.Upload(r))
	require.NoError(t, s.Animate(0, 0))

	m := accel.NewManager(r, accel.WithBuildWorkers(2))
	t.Cleanup(m.Release)

	rt := targets.NewRenderTargets(r)
	require.NoError(t, rt.Create(render, render))
	t.Cleanup(rt.Release)

	frame, err := r.CreateBuffer(gpu.BufferDescriptor{Label: "frame", Size: lighting.ConstantsSize, Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst})
	require.NoError(t, err)

	return &fixture{
		r:       r,
		rec:     rec,
		scene:   s,
		res:     Resources{Renderer: r, Pipelines: pipeline.NewCache(r), Accel: m},
		targets: rt,
		frame:   frame,
	}
}

func (f *fixture) context(cl renderer.CommandList, frameIndex uint32) FrameContext {
	pos, target := f.scene.CameraStart()
	size := f.targets.RenderSize()
	return FrameContext{
		Commands:   cl,
		FrameIndex: frameIndex,
		Constants:  f.frame,
		Camera: light.CascadeView{
			View:   mgl32.LookAtV(pos, target, mgl32.Vec3{0, 1, 0}),
			FovY:   math32.Pi / 4,
			Aspect: size.Aspect(),
			Near:   0.1,
		},
	}
}

// produce records one frame and returns its commands.
func (f *fixture) produce(t *testing.T, p Producer, cfg config.RenderConfiguration, frameIndex uint32) (GBufferResult, []renderer.Command) {
	t.Helper()
	f.rec.Reset()
	cl, err := f.r.BeginFrame()
	require.NoError(t, err)
	res, err := p.Produce(f.context(cl, frameIndex), cfg, f.scene, f.targets)
	require.NoError(t, err)
	require.NoError(t, f.r.Submit(cl))
	require.NoError(t, f.r.Present())
	frames := f.rec.Frames()
	require.Len(t, frames, 1)
	return res, frames[0]
}

func filter(cmds []renderer.Command, kind renderer.CommandKind) []renderer.Command {
	var out []renderer.Command
	for _, c := range cmds {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func TestComputeDispatchCoversRenderSize(t *testing.T) {
	tests := []struct {
		name    string
		sampler config.SamplerType
		group   config.ThreadGroup
		want    [3]uint32
	}{
		{"stf 16x8", config.SamplerSTF, config.ThreadGroup16x8, [3]uint32{7, 5, 1}},
		{"stf 8x16", config.SamplerSTF, config.ThreadGroup8x16, [3]uint32{13, 3, 1}},
		{"hardware always 16x16", config.SamplerHW, config.ThreadGroup8x8, [3]uint32{7, 3, 1}},
	}
	f := newFixture(t, gpu.Features{RayQuery: true, RayTracingPipeline: true}, common.Extent{Width: 101, Height: 37})
	p, err := New(config.ProducerCompute, f.res)
	require.NoError(t, err)
	defer p.Release()

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.SamplerType = tt.sampler
			cfg.ThreadGroup = tt.group

			res, cmds := f.produce(t, p, cfg, uint32(i+1))
			assert.Equal(t, tt.want, res.Grid)
			dispatches := filter(cmds, renderer.CommandDispatch)
			require.Len(t, dispatches, 1)
			assert.Equal(t, tt.want, dispatches[0].Size)
			assert.Contains(t, dispatches[0].Pipeline, "USE_RAY_QUERY=1;")
			assert.Empty(t, filter(cmds, renderer.CommandTraceRays))
		})
	}
}

func TestRayGenLaunchesPerPixel(t *testing.T) {
	f := newFixture(t, gpu.Features{RayTracingPipeline: true}, common.Extent{Width: 101, Height: 37})
	p, err := New(config.ProducerRayGen, f.res)
	require.NoError(t, err)
	defer p.Release()

	cfg := config.Default()
	cfg.ProducerMode = config.ProducerRayGen
	res, cmds := f.produce(t, p, cfg, 1)
	assert.Equal(t, [3]uint32{101, 37, 1}, res.Grid)

	traces := filter(cmds, renderer.CommandTraceRays)
	require.Len(t, traces, 1)
	assert.Equal(t, [3]uint32{101, 37, 1}, traces[0].Size)
	assert.Contains(t, traces[0].Pipeline, "USE_RAY_QUERY=0;")
	require.Len(t, traces[0].BindGroups, 3)
	assert.Equal(t, []string{"accel.nodes", "accel.tlasInstances", "accel.triangles", "accel.meshes", "scene.vertices", "scene.indices"}, traces[0].BindGroups[1].Resources)
	assert.Same(t, f.targets.Texture(targets.HDRColor), res.Color)
}

func TestRayGenRequiresPipelineFeature(t *testing.T) {
	f := newFixture(t, gpu.Features{RayQuery: true}, common.Extent{Width: 8, Height: 8})
	_, err := New(config.ProducerRayGen, f.res)
	assert.ErrorIs(t, err, gpu.ErrFeatureUnsupported)

	_, err = New(config.ProducerCompute, Resources{Renderer: f.r, Pipelines: f.res.Pipelines})
	assert.Error(t, err, "tracing without an acceleration structure manager")
}

func TestRasterDrawsEveryInstanceInSceneOrder(t *testing.T) {
	f := newFixture(t, gpu.Features{}, common.Extent{Width: 64, Height: 36})
	p, err := New(config.ProducerRaster, f.res, WithShadowResolution(256))
	require.NoError(t, err)
	defer p.Release()

	cfg := config.Default()
	cfg.ProducerMode = config.ProducerRaster
	res, cmds := f.produce(t, p, cfg, 1)
	instances := f.scene.Instances()
	materials := f.scene.Materials()

	passes := filter(cmds, renderer.CommandRenderPass)
	require.Len(t, passes, light.MaxCascades+1)
	for i := 0; i < light.MaxCascades; i++ {
		assert.Equal(t, []string{fmt.Sprintf("ShadowCascade%d", i)}, passes[i].Attachments)
	}
	assert.Equal(t, "GBufferFill", passes[light.MaxCascades].Label)

	draws := filter(cmds, renderer.CommandDrawIndexed)
	require.Len(t, draws, (light.MaxCascades+1)*len(instances))
	assert.Equal(t, len(draws), res.Draws)

	fill := draws[light.MaxCascades*len(instances):]
	for i, d := range fill {
		assert.Equal(t, uint32(i), d.FirstInstance)
		assert.Equal(t, "scene.indices", d.IndexBuffer)
		alpha := materials[instances[i].MaterialIndex].AlphaTested
		assert.Equal(t, alpha, strings.Contains(d.Pipeline, "ALPHA_TESTED=1;"), instances[i].Name)
		assert.Contains(t, d.Pipeline, "MOTION_VECTORS=1;")
	}

	dispatches := filter(cmds, renderer.CommandDispatch)
	require.Len(t, dispatches, 2)
	assert.True(t, strings.HasPrefix(dispatches[0].Pipeline, PipelineDepthResolve+"#"))
	assert.True(t, strings.HasPrefix(dispatches[1].Pipeline, PipelineDeferred+"#"))
	assert.Equal(t, [3]uint32{8, 5, 1}, dispatches[1].Size)
	assert.Equal(t, dispatches[1].Size, res.Grid)

	barriers := filter(cmds, renderer.CommandBarrier)
	require.Len(t, barriers, 1)
	assert.Len(t, barriers[0].Barriers, 6+light.MaxCascades)
}

func TestBindGroupsFollowTargetGeneration(t *testing.T) {
	f := newFixture(t, gpu.Features{RayQuery: true, RayTracingPipeline: true}, common.Extent{Width: 32, Height: 32})
	p, err := New(config.ProducerCompute, f.res)
	require.NoError(t, err)
	defer p.Release()
	cfg := config.Default()

	_, first := f.produce(t, p, cfg, 1)
	_, same := f.produce(t, p, cfg, 1)
	f.targets.NextFrame()
	_, swapped := f.produce(t, p, cfg, 2)

	g := func(cmds []renderer.Command) []renderer.BindGroupRecord {
		return filter(cmds, renderer.CommandDispatch)[0].BindGroups
	}
	assert.Equal(t, g(first)[2].ID, g(same)[2].ID)
	assert.NotEqual(t, g(first)[2].ID, g(swapped)[2].ID)
	assert.Equal(t, g(first)[0].ID, g(swapped)[0].ID, "frame constants do not depend on the targets")
	assert.Equal(t, g(first)[1].ID, g(swapped)[1].ID)
}

func TestProduceNeedsAllocatedTargets(t *testing.T) {
	f := newFixture(t, gpu.Features{}, common.Extent{Width: 8, Height: 8})
	p, err := New(config.ProducerRaster, f.res, WithShadowResolution(16))
	require.NoError(t, err)
	defer p.Release()

	cl, err := f.r.BeginFrame()
	require.NoError(t, err)
	_, err = p.Produce(f.context(cl, 1), config.Default(), f.scene, targets.NewRenderTargets(f.r))
	assert.Error(t, err)
}

func TestRasterPicksFillVariantByCullMode(t *testing.T) {
	f := newFixture(t, gpu.Features{}, common.Extent{Width: 64, Height: 36})
	p, err := New(config.ProducerRaster, f.res, WithShadowResolution(256))
	require.NoError(t, err)
	defer p.Release()

	cfg := config.Default()
	cfg.ProducerMode = config.ProducerRaster
	_, cmds := f.produce(t, p, cfg, 1)
	instances := f.scene.Instances()
	materials := f.scene.Materials()

	draws := filter(cmds, renderer.CommandDrawIndexed)
	fill := draws[light.MaxCascades*len(instances):]
	var sawDoubleSided, sawCulled bool
	for i, d := range fill {
		m := materials[instances[i].MaterialIndex]
		keepsBackFaces := scene.CullModeFor(m) == gpu.CullNone
		assert.Equal(t, keepsBackFaces, strings.Contains(d.Pipeline, "DOUBLE_SIDED=1;"), instances[i].Name)
		if instances[i].Name == "ground" {
			assert.True(t, m.DoubleSided)
			sawDoubleSided = true
		}
		sawCulled = sawCulled || !keepsBackFaces
	}
	assert.True(t, sawDoubleSided)
	assert.True(t, sawCulled)
	assert.Equal(t, 6, f.res.Pipelines.Stats().Entries, "three fill variants next to the shadow, resolve and deferred pipelines")
}
