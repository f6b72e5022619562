package engine

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/camera"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/frame"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHeadless(t *testing.T, cfg config.RenderConfiguration, options ...EngineBuilderOption) (Engine, renderer.Recorder) {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeHeadless,
		renderer.WithHeadlessSize(128, 72),
		renderer.WithHeadlessFeatures(gpu.Features{RayQuery: true, RayTracingPipeline: true}))
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
	o, err := frame.New(r, s, cam, cfg)
	require.NoError(t, err)
	t.Cleanup(o.Release)
	return NewEngine(r, o, cam, options...), rec
}

func uncapped() config.RenderConfiguration {
	cfg := config.Default()
	cfg.EnableFPSLimit = false
	return cfg
}

func TestRunStopsAfterFrameBudget(t *testing.T) {
	e, rec := newHeadless(t, uncapped(), WithMaxFrames(5))
	require.NoError(t, e.Run())
	assert.Equal(t, 5, rec.Presented())
	assert.Equal(t, 5, e.Profiler().Frames())
	assert.Equal(t, 5, e.Orchestrator().Stats().Frames)

	summary := e.Summary()
	for _, row := range []string{"Frames", "Reallocations", "Pipeline rebuilds", "BLAS rebuilds", "Average frame time"} {
		assert.Contains(t, summary, row)
	}
}

func TestKeysQueueConfigurationChanges(t *testing.T) {
	e, _ := newHeadless(t, uncapped(), WithMaxFrames(2))
	assert.True(t, e.HandleKey(common.KeyF3))
	assert.True(t, e.HandleKey(common.KeyF5))
	assert.True(t, e.HandleKey(common.KeySpace))
	assert.True(t, e.HandleKey(common.KeyF10))
	assert.False(t, e.HandleKey(common.KeyW), "movement keys are not toggles")

	require.NoError(t, e.Run())
	cfg := e.Orchestrator().Config()
	assert.Equal(t, config.ProducerRaster, cfg.ProducerMode)
	assert.Equal(t, config.AAModeNone, cfg.AAMode)
	assert.False(t, cfg.EnableAnimations)
	assert.Equal(t, 1, e.Orchestrator().Stats().ProducerSwitches)
}

func TestBindingsCycle(t *testing.T) {
	cfg := config.Default()
	p := config.NewPending()
	Bindings[common.KeyQ].Apply(p)
	Bindings[common.KeyF8].Apply(p)
	Bindings[common.KeyF9].Apply(p)
	next, change := p.Apply(cfg, config.Capabilities{})
	assert.Equal(t, cfg.Quality.Next(), next.Quality)
	assert.Equal(t, cfg.SamplerType.Next(), next.SamplerType)
	assert.True(t, next.FreezeFrameIndex)
	assert.True(t, change.Has(config.ChangeQuality))

	Bindings[common.KeyF10].Apply(p)
	assert.False(t, p.Empty())
	_, change = p.Apply(next, config.Capabilities{})
	assert.True(t, change.Has(config.ChangeShaderCache))
}

func TestTitleNamesProducer(t *testing.T) {
	assert.Equal(t, "STF - using Raster", Title("STF", config.ProducerRaster))
	assert.Equal(t, "STF - using Compute(TraceRayInline)", Title("STF", config.ProducerCompute))
	assert.Equal(t, "STF - using RayGen(TraceRay)", Title("STF", config.ProducerRayGen))
}

func TestQuitStopsUnboundedRun(t *testing.T) {
	e, _ := newHeadless(t, uncapped())
	done := make(chan error, 1)
	go func() { done <- e.Run() }()
	e.Quit()
	e.Quit()
	require.NoError(t, <-done)
}
