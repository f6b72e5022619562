package upscaler

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/targets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputSizeFollowsQuality(t *testing.T) {
	out := common.Extent{Width: 1920, Height: 1080}
	tests := []struct {
		quality config.QualityPreset
		want    common.Extent
	}{
		{config.QualityMaxPerf, common.Extent{Width: 960, Height: 540}},
		{config.QualityBalanced, common.Extent{Width: 1114, Height: 626}},
		{config.QualityMaxQuality, common.Extent{Width: 1281, Height: 720}},
		{config.QualityUltraPerf, common.Extent{Width: 639, Height: 360}},
		{config.QualityDLAA, out},
	}
	for _, tt := range tests {
		t.Run(tt.quality.String(), func(t *testing.T) {
			got := InputSize(out, tt.quality)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Fits(out), "render size never exceeds the output")
		})
	}
	assert.Equal(t, common.Extent{Width: 1, Height: 1}, InputSize(common.Extent{Width: 1, Height: 1}, config.QualityUltraPerf))
}

func TestNoneIsNeverAvailable(t *testing.T) {
	u := NewNone()
	assert.False(t, u.IsSupported())
	assert.False(t, u.IsAvailable())
	assert.True(t, errors.Is(u.SetRenderSize(1920, 1080, config.QualityBalanced), ErrUnavailable))
	assert.True(t, errors.Is(u.Render(RenderParams{}), ErrUnavailable))
	u.AdvanceFrame()
}

func newSpatial(t *testing.T, output common.Extent, quality config.QualityPreset) (renderer.Renderer, renderer.Recorder, Upscaler, targets.RenderTargets, gpu.Buffer) {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithHeadlessSize(output.Width, output.Height))
	require.NoError(t, err)
	t.Cleanup(r.Release)
	rec, ok := renderer.AsRecorder(r)
	require.True(t, ok)

	u, err := NewSpatial(r, pipeline.NewCache(r))
	require.NoError(t, err)
	t.Cleanup(u.Release)
	require.True(t, u.IsAvailable())
	require.NoError(t, u.SetRenderSize(output.Width, output.Height, quality))

	inW, inH, outW, outH := u.RenderSize()
	rt := targets.NewRenderTargets(r)
	require.NoError(t, rt.Create(common.Extent{Width: inW, Height: inH}, common.Extent{Width: outW, Height: outH}))
	t.Cleanup(rt.Release)

	exposure, err := r.CreateBuffer(gpu.BufferDescriptor{Label: "exposure", Size: 16, Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst})
	require.NoError(t, err)
	return r, rec, u, rt, exposure
}

func TestSpatialRendersAtOutputSize(t *testing.T) {
	r, rec, u, rt, exposure := newSpatial(t, common.Extent{Width: 200, Height: 100}, config.QualityMaxPerf)
	inW, inH, outW, outH := u.RenderSize()
	assert.Equal(t, []uint32{100, 50, 200, 100}, []uint32{inW, inH, outW, outH})

	writes := []string{"TemporalFeedback1", "TemporalFeedback2", "TemporalFeedback1"}
	for i, want := range writes {
		rec.Reset()
		cl, err := r.BeginFrame()
		require.NoError(t, err)
		require.NoError(t, u.Render(RenderParams{Commands: cl, Targets: rt, Exposure: exposure, ExposureScale: 2, ResetHistory: i == 0}))
		require.NoError(t, r.Submit(cl))
		require.NoError(t, r.Present())
		u.AdvanceFrame()

		cmds := rec.Frames()[0]
		require.Len(t, cmds, 2)
		d := cmds[1]
		assert.Equal(t, renderer.CommandDispatch, d.Kind)
		assert.Equal(t, [3]uint32{25, 13, 1}, d.Size)
		require.Len(t, d.BindGroups, 2)
		res := d.BindGroups[1].Resources
		assert.Equal(t, "HdrColor", res[0])
		assert.Equal(t, "ResolvedColor", res[3])
		assert.Equal(t, want, res[4], "frame %d", i)
	}
}

func TestSpatialRejectsMismatchedTargets(t *testing.T) {
	r, _, u, rt, exposure := newSpatial(t, common.Extent{Width: 200, Height: 100}, config.QualityMaxPerf)
	require.NoError(t, rt.Create(common.Extent{Width: 200, Height: 100}, common.Extent{Width: 200, Height: 100}))
	cl, err := r.BeginFrame()
	require.NoError(t, err)
	assert.Error(t, u.Render(RenderParams{Commands: cl, Targets: rt, Exposure: exposure}))
	require.NoError(t, r.Submit(cl))
	require.NoError(t, r.Present())
}

func TestSpatialFeedbackOnlySwapsAfterAdvance(t *testing.T) {
	r, rec, u, rt, exposure := newSpatial(t, common.Extent{Width: 200, Height: 100}, config.QualityMaxPerf)

	// a frame that records twice, as on a failed present, writes the same surface both times
	written := func() string {
		t.Helper()
		rec.Reset()
		cl, err := r.BeginFrame()
		require.NoError(t, err)
		require.NoError(t, u.Render(RenderParams{Commands: cl, Targets: rt, Exposure: exposure, ExposureScale: 2}))
		require.NoError(t, r.Submit(cl))
		require.NoError(t, r.Present())
		return rec.Frames()[0][1].BindGroups[1].Resources[4]
	}
	assert.Equal(t, "TemporalFeedback1", written())
	assert.Equal(t, "TemporalFeedback1", written())

	u.AdvanceFrame()
	assert.Equal(t, "TemporalFeedback2", written())

	// advancing without a Render keeps the roles
	u.AdvanceFrame()
	u.AdvanceFrame()
	assert.Equal(t, "TemporalFeedback1", written())
}
