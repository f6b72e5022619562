package temporal

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/lighting"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/scene"
	"github.com/Carmen-Shannon/oxy-stf/engine/targets"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	r       renderer.Renderer
	rec     renderer.Recorder
	scene   scene.Scene
	targets targets.RenderTargets
	frame   gpu.Buffer
	acc     Accumulator
}

func newFixture(t *testing.T, render, output common.Extent) *fixture {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithHeadlessSize(output.Width, output.Height))
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

	rt := targets.NewRenderTargets(r)
	require.NoError(t, rt.Create(render, output))
	t.Cleanup(rt.Release)

	frame, err := r.CreateBuffer(gpu.BufferDescriptor{Label: "frame", Size: lighting.ConstantsSize, Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst})
	require.NoError(t, err)

	acc, err := New(r, pipeline.NewCache(r))
	require.NoError(t, err)
	t.Cleanup(acc.Release)
	return &fixture{r: r, rec: rec, scene: s, targets: rt, frame: frame, acc: acc}
}

// record runs fn inside one frame and returns the recorded commands.
func (f *fixture) record(t *testing.T, fn func(cl renderer.CommandList)) []renderer.Command {
	t.Helper()
	f.rec.Reset()
	cl, err := f.r.BeginFrame()
	require.NoError(t, err)
	fn(cl)
	require.NoError(t, f.r.Submit(cl))
	require.NoError(t, f.r.Present())
	frames := f.rec.Frames()
	require.Len(t, frames, 1)
	return frames[0]
}

func (f *fixture) context(cl renderer.CommandList, history bool) PassContext {
	return PassContext{Commands: cl, Constants: f.frame, HistoryValid: history}
}

func TestJitterOffsetSequence(t *testing.T) {
	seen := map[mgl32.Vec2]bool{}
	for phase := uint32(0); phase < DefaultJitterPhases; phase++ {
		o := JitterOffset(phase, 0)
		assert.NotEqual(t, mgl32.Vec2{}, o, "phase %d", phase)
		for i := range o {
			assert.GreaterOrEqual(t, o[i], float32(-0.5))
			assert.Less(t, o[i], float32(0.5))
		}
		assert.False(t, seen[o], "phase %d repeats an earlier offset", phase)
		seen[o] = true
	}
	assert.Equal(t, JitterOffset(3, 0), JitterOffset(3+DefaultJitterPhases, 0))
	first := JitterOffset(0, 0)
	assert.Zero(t, first[0])
	assert.InDelta(t, -1.0/6, first[1], 1e-6)
}

func TestPixelOffsetFollowsModeAndFreeze(t *testing.T) {
	f := newFixture(t, common.Extent{Width: 32, Height: 32}, common.Extent{Width: 32, Height: 32})

	prev := f.acc.PixelOffset(config.AAModeTAA)
	for i := 0; i < 8; i++ {
		assert.Equal(t, mgl32.Vec2{}, f.acc.PixelOffset(config.AAModeNone))
		f.acc.AdvanceFrame(false)
		cur := f.acc.PixelOffset(config.AAModeTAA)
		assert.NotEqual(t, prev, cur, "jitter must change every frame")
		assert.Equal(t, cur, f.acc.PixelOffset(config.AAModeUpscaled))
		prev = cur
	}

	frozen := f.acc.PixelOffset(config.AAModeTAA)
	phase := f.acc.Phase()
	for i := 0; i < 4; i++ {
		f.acc.AdvanceFrame(true)
		assert.Equal(t, frozen, f.acc.PixelOffset(config.AAModeTAA))
	}
	assert.Equal(t, phase, f.acc.Phase())
}

func TestMotionVectorsClearedWithoutHistory(t *testing.T) {
	f := newFixture(t, common.Extent{Width: 64, Height: 36}, common.Extent{Width: 64, Height: 36})
	var rendered bool
	cmds := f.record(t, func(cl renderer.CommandList) {
		var err error
		rendered, err = f.acc.RenderMotionVectors(f.context(cl, false), f.scene, f.targets)
		require.NoError(t, err)
	})
	assert.False(t, rendered)
	require.Len(t, cmds, 1)
	assert.Equal(t, renderer.CommandClear, cmds[0].Kind)
	assert.Equal(t, "MotionVectors", cmds[0].Label)
}

func TestMotionVectorsDrawEveryInstance(t *testing.T) {
	f := newFixture(t, common.Extent{Width: 64, Height: 36}, common.Extent{Width: 64, Height: 36})
	cmds := f.record(t, func(cl renderer.CommandList) {
		rendered, err := f.acc.RenderMotionVectors(f.context(cl, true), f.scene, f.targets)
		require.NoError(t, err)
		assert.True(t, rendered)
	})

	require.NotEmpty(t, cmds)
	assert.Equal(t, renderer.CommandRenderPass, cmds[0].Kind)
	assert.Equal(t, []string{"MotionVectors", "DeviceDepth"}, cmds[0].Attachments)

	draws := cmds[1:]
	assert.Len(t, draws, len(f.scene.Instances()))
	for i, d := range draws {
		assert.Equal(t, renderer.CommandDrawIndexed, d.Kind)
		assert.Equal(t, uint32(i), d.FirstInstance)
		assert.Equal(t, "motion_vectors#", d.Pipeline)
		require.Len(t, d.BindGroups, 1)
		assert.Equal(t, []string{"frame", "scene.instances"}, d.BindGroups[0].Resources)
	}
}

func TestResolveCoversOutputAndAlternatesFeedback(t *testing.T) {
	render, output := common.Extent{Width: 60, Height: 34}, common.Extent{Width: 100, Height: 57}
	f := newFixture(t, render, output)

	wantHistory := []struct {
		write, read string
	}{
		{"TemporalFeedback1", "TemporalFeedback2"},
		{"TemporalFeedback2", "TemporalFeedback1"},
		{"TemporalFeedback1", "TemporalFeedback2"},
	}
	for frame, want := range wantHistory {
		history := frame > 0
		cmds := f.record(t, func(cl renderer.CommandList) {
			out, err := f.acc.Resolve(f.context(cl, history), f.targets)
			require.NoError(t, err)
			assert.Equal(t, f.targets.Texture(targets.ResolvedColor), out)
		})
		require.Len(t, cmds, 2)
		assert.Equal(t, renderer.CommandBarrier, cmds[0].Kind)
		assert.Len(t, cmds[0].Barriers, 2)

		d := cmds[1]
		assert.Equal(t, renderer.CommandDispatch, d.Kind)
		assert.Equal(t, [3]uint32{13, 8, 1}, d.Size)
		require.Len(t, d.BindGroups, 2)
		assert.Equal(t, []string{"HdrColor", "MotionVectors", want.read, "temporal.linear", "ResolvedColor", want.write}, d.BindGroups[1].Resources, "frame %d", frame)

		data, err := f.rec.ReadBuffer(f.acc.(*accumulator).constants)
		require.NoError(t, err)
		require.Len(t, data, ConstantsSize)
		noHistory := binary.LittleEndian.Uint32(data[44:])
		if history {
			assert.Zero(t, noHistory)
		} else {
			assert.Equal(t, uint32(1), noHistory)
		}
		assert.Equal(t, float32(100), math.Float32frombits(binary.LittleEndian.Uint32(data[16:])))
		assert.Equal(t, float32(1.0/34), math.Float32frombits(binary.LittleEndian.Uint32(data[12:])))

		f.acc.AdvanceFrame(false)
	}
}

func TestFeedbackHeldWithoutResolve(t *testing.T) {
	f := newFixture(t, common.Extent{Width: 16, Height: 16}, common.Extent{Width: 16, Height: 16})
	assert.Equal(t, targets.Feedback1, f.acc.FeedbackTarget())
	f.acc.AdvanceFrame(false)
	assert.Equal(t, targets.Feedback1, f.acc.FeedbackTarget(), "no resolve was recorded")
}

func TestResolveRebuildsAfterTargetSwap(t *testing.T) {
	f := newFixture(t, common.Extent{Width: 32, Height: 32}, common.Extent{Width: 32, Height: 32})
	var first, second uint64
	cmds := f.record(t, func(cl renderer.CommandList) {
		_, err := f.acc.Resolve(f.context(cl, false), f.targets)
		require.NoError(t, err)
	})
	first = cmds[1].BindGroups[1].ID

	f.targets.NextFrame()
	cmds = f.record(t, func(cl renderer.CommandList) {
		_, err := f.acc.Resolve(f.context(cl, true), f.targets)
		require.NoError(t, err)
	})
	second = cmds[1].BindGroups[1].ID
	assert.NotEqual(t, first, second)
}

func TestConstantsLayout(t *testing.T) {
	c := Constants{
		InputSize:   mgl32.Vec2{4, 8},
		OutputSize:  mgl32.Vec2{16, 0},
		Jitter:      mgl32.Vec2{0.25, -0.25},
		BlendFactor: 0.1,
	}
	buf := c.Marshal()
	require.Len(t, buf, ConstantsSize)
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	assert.Equal(t, float32(0.25), f(8))
	assert.Equal(t, float32(0.125), f(12))
	assert.Equal(t, float32(1.0/16), f(24))
	assert.Zero(t, f(28), "zero extent has no inverse")
	assert.Equal(t, float32(-0.25), f(36))
	assert.Equal(t, float32(0.1), f(40))
	assert.Zero(t, binary.LittleEndian.Uint32(buf[44:]))
}

func TestWithPhaseContinuesTheCycle(t *testing.T) {
	f := newFixture(t, common.Extent{Width: 32, Height: 32}, common.Extent{Width: 32, Height: 32})
	for i := 0; i < 5; i++ {
		f.acc.AdvanceFrame(false)
	}

	acc, err := New(f.r, pipeline.NewCache(f.r), WithPhase(f.acc.Phase()))
	require.NoError(t, err)
	defer acc.Release()
	assert.Equal(t, uint32(5), acc.Phase())
	assert.Equal(t, f.acc.PixelOffset(config.AAModeTAA), acc.PixelOffset(config.AAModeTAA))
}
