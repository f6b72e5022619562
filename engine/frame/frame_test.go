package frame

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/camera"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/scene"
	"github.com/Carmen-Shannon/oxy-stf/engine/targets"
	"github.com/Carmen-Shannon/oxy-stf/engine/upscaler"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = 1.0 / 60

type fixture struct {
	r     renderer.Renderer
	rec   renderer.Recorder
	cache *pipeline.Cache
	o     Orchestrator
}

type fixtureOptions struct {
	size     common.Extent
	features gpu.Features
	spatial  bool
}

func newFixture(t *testing.T, cfg config.RenderConfiguration, fo fixtureOptions) *fixture {
	t.Helper()
	if fo.size.IsZero() {
		fo.size = common.Extent{Width: 160, Height: 90}
	}
	r, err := renderer.NewRenderer(renderer.BackendTypeHeadless,
		renderer.WithHeadlessSize(fo.size.Width, fo.size.Height),
		renderer.WithHeadlessFeatures(fo.features))
	require.NoError(t, err)
	t.Cleanup(r.Release)
	rec, ok := renderer.AsRecorder(r)
	require.True(t, ok)

	desc, err := scene.DefaultDescription()
	require.NoError(t, err)
	s, err := scene.NewScene(desc)
	require.NoError(t, err)
	t.Cleanup(s.Release)
	require.NoError(t, s.Upload(r))

	pos, target := s.CameraStart()
	cam := camera.NewCamera(camera.WithController(camera.NewCameraController(
		camera.WithPosition(pos.X(), pos.Y(), pos.Z()),
		camera.WithTarget(target.X(), target.Y(), target.Z()),
	)))

	cache := pipeline.NewCache(r)
	opts := []OrchestratorBuilderOption{WithPipelineCache(cache)}
	if fo.spatial {
		u, err := upscaler.NewSpatial(r, cache)
		require.NoError(t, err)
		opts = append(opts, WithUpscaler(u))
	}
	o, err := New(r, s, cam, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(o.Release)
	return &fixture{r: r, rec: rec, cache: cache, o: o}
}

// frame renders one frame and returns its report and recorded commands.
func (f *fixture) frame(t *testing.T) (Report, []renderer.Command) {
	t.Helper()
	f.rec.Reset()
	rep, err := f.o.Render(dt)
	require.NoError(t, err)
	frames := f.rec.Frames()
	require.Len(t, frames, 1)
	return rep, frames[0]
}

func find(cmds []renderer.Command, kind renderer.CommandKind, label string) int {
	for i, c := range cmds {
		if c.Kind == kind && c.Label == label {
			return i
		}
	}
	return -1
}

func TestUpscaledFrameRendersAtQualityRatio(t *testing.T) {
	cfg := config.Default()
	cfg.AAMode = config.AAModeUpscaled
	cfg.Quality = config.QualityBalanced
	f := newFixture(t, cfg, fixtureOptions{size: common.Extent{Width: 1920, Height: 1080}, spatial: true})

	rep, cmds := f.frame(t)
	assert.True(t, rep.Reallocated)
	assert.False(t, rep.HistoryValid)
	assert.Equal(t, common.Extent{Width: 1114, Height: 626}, rep.RenderSize)
	assert.Equal(t, common.Extent{Width: 1920, Height: 1080}, rep.OutputSize)
	assert.Equal(t, rep.RenderSize, f.o.Targets().RenderSize())
	assert.Equal(t, targets.ResolvedColor, rep.Presented)
	assert.Equal(t, config.ProducerCompute, rep.GBuffer.Mode)
	assert.Equal(t, rep.RenderSize, rep.GBuffer.Size)

	up := -1
	for i, c := range cmds {
		if c.Kind == renderer.CommandDispatch && c.Pipeline == "upscale#" {
			up = i
		}
	}
	require.GreaterOrEqual(t, up, 0)
	assert.Equal(t, [3]uint32{240, 135, 1}, cmds[up].Size)

	blit := find(cmds, renderer.CommandRenderPass, "Blit")
	require.Greater(t, blit, up, "presentation follows the upscaler")
	assert.Equal(t, []string{"surface"}, cmds[blit].Attachments)

	rep, _ = f.frame(t)
	assert.False(t, rep.Reallocated)
	assert.True(t, rep.HistoryValid)
	assert.True(t, rep.MotionVectors)
	assert.Equal(t, 1, f.o.Stats().Reallocations)
}

func TestAAModeSwitchInvalidatesOnce(t *testing.T) {
	f := newFixture(t, config.Default(), fixtureOptions{spatial: true})
	for i := 0; i < 3; i++ {
		f.frame(t)
	}
	before := f.o.Stats()
	require.Equal(t, StateSteady, f.o.State())
	require.True(t, f.o.PreviousViewsValid())

	f.o.Pending().Enqueue(func(c *config.RenderConfiguration) {
		c.AAMode = config.AAModeUpscaled
	})
	rep, cmds := f.frame(t)
	assert.Equal(t, StateTargetsInvalid, rep.Entered)
	assert.True(t, rep.Reallocated)
	assert.False(t, rep.HistoryValid)
	assert.False(t, rep.MotionVectors)
	assert.GreaterOrEqual(t, find(cmds, renderer.CommandClear, "MotionVectors"), 0)

	for i := 0; i < 3; i++ {
		rep, _ = f.frame(t)
		assert.False(t, rep.Reallocated)
		assert.True(t, rep.HistoryValid)
	}
	after := f.o.Stats()
	assert.Equal(t, 1, after.Reallocations-before.Reallocations)
	assert.Equal(t, 1, after.InvalidFrames-before.InvalidFrames)
	assert.Equal(t, config.AAModeUpscaled, f.o.Config().AAMode)
}

func TestUpscaledFallsBackWithoutUpscaler(t *testing.T) {
	cfg := config.Default()
	cfg.AAMode = config.AAModeUpscaled
	f := newFixture(t, cfg, fixtureOptions{})
	assert.Equal(t, config.AAModeTAA, f.o.Config().AAMode)

	rep, _ := f.frame(t)
	assert.Equal(t, rep.OutputSize, rep.RenderSize)
}

func TestProducerSwitchRestartsHistory(t *testing.T) {
	f := newFixture(t, config.Default(), fixtureOptions{})
	f.frame(t)
	gen := f.o.Targets().Generation()

	f.o.Pending().Enqueue(func(c *config.RenderConfiguration) {
		c.ProducerMode = config.ProducerRaster
	})
	rep, _ := f.frame(t)
	assert.Equal(t, config.ProducerRaster, rep.GBuffer.Mode)
	assert.True(t, rep.Reallocated)
	assert.False(t, rep.HistoryValid)
	assert.Equal(t, 1, f.o.Stats().ProducerSwitches)
	assert.NotEqual(t, gen, f.o.Targets().Generation())
}

func TestResizeReallocates(t *testing.T) {
	f := newFixture(t, config.Default(), fixtureOptions{})
	f.frame(t)
	f.r.Resize(320, 180)
	rep, _ := f.frame(t)
	assert.True(t, rep.Reallocated)
	assert.Equal(t, common.Extent{Width: 320, Height: 180}, rep.OutputSize)
	assert.Equal(t, 2, f.o.Targets().Creations())
}

// stripIDs removes the bind group identities, which differ between devices.
func stripIDs(cmds []renderer.Command) []renderer.Command {
	out := make([]renderer.Command, len(cmds))
	for i, c := range cmds {
		groups := make([]renderer.BindGroupRecord, len(c.BindGroups))
		for j, g := range c.BindGroups {
			g.ID = 0
			groups[j] = g
		}
		c.BindGroups = groups
		out[i] = c
	}
	return out
}

func TestMotionVectorsIndependentOfProducer(t *testing.T) {
	features := gpu.Features{RayQuery: true, RayTracingPipeline: true}
	var (
		reference []renderer.Command
		constants []byte
	)
	for _, mode := range []config.ProducerMode{config.ProducerRayGen, config.ProducerCompute, config.ProducerRaster} {
		cfg := config.Default()
		cfg.ProducerMode = mode
		f := newFixture(t, cfg, fixtureOptions{features: features})
		f.frame(t)
		rep, cmds := f.frame(t)
		require.True(t, rep.MotionVectors, mode.String())
		require.Equal(t, mode, rep.GBuffer.Mode)

		start := find(cmds, renderer.CommandRenderPass, "MotionVectors")
		require.GreaterOrEqual(t, start, 0, mode.String())
		end := start + 1
		for end < len(cmds) && cmds[end].Kind == renderer.CommandDrawIndexed {
			end++
		}
		mv := stripIDs(cmds[start:end])

		data, err := f.rec.ReadBuffer(f.o.(*orchestrator).constants)
		require.NoError(t, err)

		if reference == nil {
			reference, constants = mv, data
			continue
		}
		assert.Equal(t, reference, mv, mode.String())
		assert.Equal(t, constants, data, mode.String())
	}
}

func TestJitterFollowsModeAndFreeze(t *testing.T) {
	cfg := config.Default()
	cfg.AAMode = config.AAModeNone
	f := newFixture(t, cfg, fixtureOptions{})
	for i := 0; i < 4; i++ {
		rep, cmds := f.frame(t)
		assert.Equal(t, mgl32.Vec2{}, rep.Jitter)
		assert.Equal(t, targets.HDRColor, rep.Presented)
		assert.Equal(t, -1, find(cmds, renderer.CommandRenderPass, "MotionVectors"))
	}
	assert.Equal(t, uint32(4), f.o.FrameIndex())

	f.o.Pending().Enqueue(func(c *config.RenderConfiguration) {
		c.AAMode = config.AAModeTAA
		c.FreezeFrameIndex = true
	})
	first, _ := f.frame(t)
	assert.NotEqual(t, mgl32.Vec2{}, first.Jitter)
	for i := 0; i < 3; i++ {
		rep, _ := f.frame(t)
		assert.Equal(t, first.Jitter, rep.Jitter)
		assert.Equal(t, first.Index, rep.Index)
	}
}

func TestWarmCompilesEveryVariant(t *testing.T) {
	f := newFixture(t, config.Default(), fixtureOptions{spatial: true})
	require.NoError(t, f.o.Warm(t.Context()))
	cache := f.o.(*orchestrator).pipelines
	warmed := cache.Len()
	assert.Positive(t, warmed)

	f.frame(t)
	assert.Equal(t, warmed, cache.Len(), "a warmed frame compiles nothing new")
}

func TestSamplerToggleRebuildsPipelines(t *testing.T) {
	f := newFixture(t, config.Default(), fixtureOptions{})
	f.frame(t)

	for _, sampler := range []config.SamplerType{config.SamplerHW, config.SamplerSTF} {
		before := f.cache.Stats()
		f.o.Pending().Enqueue(func(c *config.RenderConfiguration) {
			c.SamplerType = sampler
		})
		f.frame(t)
		after := f.cache.Stats()
		assert.Equal(t, before.Invalidations+1, after.Invalidations, sampler.String())
		assert.Greater(t, after.Builds, before.Builds, sampler.String())
	}
	assert.Equal(t, 2, f.o.Stats().PipelineRebuilds)

	// an unrelated change keeps every cached variant
	before := f.cache.Stats()
	f.o.Pending().Enqueue(func(c *config.RenderConfiguration) {
		c.Sigma = 1.5
	})
	f.frame(t)
	assert.Equal(t, before.Invalidations, f.cache.Stats().Invalidations)
	assert.Equal(t, before.Builds, f.cache.Stats().Builds)
}

func TestFrozenJitterSurvivesResize(t *testing.T) {
	f := newFixture(t, config.Default(), fixtureOptions{})
	for i := 0; i < 3; i++ {
		f.frame(t)
	}
	f.o.Pending().Enqueue(func(c *config.RenderConfiguration) {
		c.FreezeFrameIndex = true
	})
	frozen, _ := f.frame(t)
	require.NotEqual(t, mgl32.Vec2{}, frozen.Jitter)

	f.r.Resize(320, 180)
	rep, _ := f.frame(t)
	require.True(t, rep.Reallocated)
	assert.Equal(t, frozen.Jitter, rep.Jitter)
	assert.Equal(t, frozen.Index, rep.Index)
}

func TestUpscalerFeedbackAlternatesPerPresentedFrame(t *testing.T) {
	cfg := config.Default()
	cfg.AAMode = config.AAModeUpscaled
	f := newFixture(t, cfg, fixtureOptions{spatial: true})

	written := func(cmds []renderer.Command) string {
		for _, c := range cmds {
			if c.Kind == renderer.CommandDispatch && c.Pipeline == "upscale#" {
				return c.BindGroups[1].Resources[4]
			}
		}
		return ""
	}
	var got []string
	for i := 0; i < 3; i++ {
		_, cmds := f.frame(t)
		got = append(got, written(cmds))
	}
	assert.Equal(t, []string{"TemporalFeedback1", "TemporalFeedback2", "TemporalFeedback1"}, got)
}
