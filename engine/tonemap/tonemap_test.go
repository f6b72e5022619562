package tonemap

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/targets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceByMode(t *testing.T) {
	tests := []struct {
		mode     config.AAMode
		source   targets.Surface
		exposure bool
	}{
		{config.AAModeNone, targets.HDRColor, true},
		{config.AAModeTAA, targets.ResolvedColor, true},
		{config.AAModeUpscaled, targets.ResolvedColor, false},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			source, exposure := Source(tt.mode)
			assert.Equal(t, tt.source, source)
			assert.Equal(t, tt.exposure, exposure)
		})
	}
}

func TestRenderTonemapsAndBlits(t *testing.T) {
	output := common.Extent{Width: 1920, Height: 1080}
	r, err := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithHeadlessSize(output.Width, output.Height))
	require.NoError(t, err)
	t.Cleanup(r.Release)
	rec, _ := renderer.AsRecorder(r)

	tm, err := New(r, pipeline.NewCache(r))
	require.NoError(t, err)
	t.Cleanup(tm.Release)

	data, err := rec.ReadBuffer(tm.Exposure())
	require.NoError(t, err)
	assert.Equal(t, float32(DefaultExposure), math.Float32frombits(binary.LittleEndian.Uint32(data)))

	rt := targets.NewRenderTargets(r)
	require.NoError(t, rt.Create(common.Extent{Width: 1114, Height: 626}, output))
	t.Cleanup(rt.Release)

	for _, mode := range []config.AAMode{config.AAModeNone, config.AAModeTAA, config.AAModeUpscaled} {
		rec.Reset()
		cl, err := r.BeginFrame()
		require.NoError(t, err)
		source, err := tm.Render(cl, rt, mode, 2)
		require.NoError(t, err)
		require.NoError(t, r.Submit(cl))
		require.NoError(t, r.Present())

		var dispatch, pass, draw *renderer.Command
		cmds := rec.Frames()[0]
		for i := range cmds {
			switch cmds[i].Kind {
			case renderer.CommandDispatch:
				dispatch = &cmds[i]
			case renderer.CommandRenderPass:
				pass = &cmds[i]
			case renderer.CommandDraw:
				draw = &cmds[i]
			}
		}
		require.NotNil(t, dispatch)
		require.NotNil(t, pass)
		require.NotNil(t, draw)

		assert.Equal(t, [3]uint32{240, 135, 1}, dispatch.Size, "tone mapping runs at the output size")
		assert.Equal(t, []string{source.String(), "tonemap.linear", "LdrColor"}, dispatch.BindGroups[1].Resources)
		assert.Equal(t, []string{"surface"}, pass.Attachments)
		assert.Equal(t, "blit#SURFACE_SRGB=1;", draw.Pipeline)
		assert.Equal(t, uint32(3), draw.Count)
	}
}
