package targets

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headless(t *testing.T) (renderer.Renderer, renderer.Recorder) {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithHeadlessSize(64, 64))
	require.NoError(t, err)
	t.Cleanup(r.Release)
	rec, ok := renderer.AsRecorder(r)
	require.True(t, ok)
	return r, rec
}

func TestNextFrameSwapsEveryPair(t *testing.T) {
	r, _ := headless(t)
	sizes := []common.Extent{{Width: 1, Height: 1}, {Width: 7, Height: 3}, {Width: 64, Height: 64}, {Width: 1920, Height: 1080}}
	for _, size := range sizes {
		set := NewRenderTargets(r)
		require.NoError(t, set.Create(size, size), size.String())

		var before [pairedCount][2]uint64
		for s := Surface(0); s < pairedCount; s++ {
			before[s] = [2]uint64{set.Texture(s).ID(), set.Previous(s).ID()}
		}

		set.NextFrame()
		for s := Surface(0); s < pairedCount; s++ {
			cur, prev := set.Texture(s), set.Previous(s)
			assert.NotEqual(t, cur.ID(), prev.ID(), "%s %s", size, s)
			assert.Equal(t, before[s][1], cur.ID(), "%s %s takes the previous texture", size, s)
			assert.Equal(t, before[s][0], prev.ID(), "%s %s", size, s)
		}

		set.NextFrame()
		for s := Surface(0); s < pairedCount; s++ {
			assert.Equal(t, before[s][0], set.Texture(s).ID(), "%s %s returns after two swaps", size, s)
			assert.Equal(t, before[s][1], set.Previous(s).ID(), "%s %s", size, s)
		}
		set.Release()
	}
}

func TestUnpairedSurfacesAreStable(t *testing.T) {
	r, _ := headless(t)
	set := NewRenderTargets(r)
	require.NoError(t, set.Create(common.Extent{Width: 32, Height: 16}, common.Extent{Width: 64, Height: 32}))
	defer set.Release()

	hdr := set.Texture(HDRColor)
	set.NextFrame()
	assert.Same(t, hdr, set.Texture(HDRColor))
	assert.Nil(t, set.Previous(HDRColor))
	assert.Nil(t, set.Previous(LDRColor))
}

func TestCreateSizesSurfaces(t *testing.T) {
	r, rec := headless(t)
	set := NewRenderTargets(r)
	render := common.Extent{Width: 1114, Height: 626}
	output := common.Extent{Width: 1920, Height: 1080}
	require.NoError(t, set.Create(render, output))

	for s := Surface(0); s < surfaceCount; s++ {
		d := set.Texture(s).Descriptor()
		want := render
		if s.outputSized() {
			want = output
		}
		assert.Equal(t, want, common.Extent{Width: d.Width, Height: d.Height}, s.String())
		assert.Equal(t, s.Format(), d.Format, s.String())
	}
	assert.Equal(t, int(surfaceCount+pairedCount), rec.LiveTextures())

	set.Release()
	assert.Zero(t, rec.LiveTextures())
	assert.False(t, set.Allocated())
	assert.Nil(t, set.Texture(Albedo))
}

func TestCreateRejectsInvalidSizes(t *testing.T) {
	r, rec := headless(t)
	set := NewRenderTargets(r)

	err := set.Create(common.Extent{}, common.Extent{Width: 8, Height: 8})
	assert.True(t, errors.Is(err, ErrInvalidSize))
	err = set.Create(common.Extent{Width: 16, Height: 8}, common.Extent{Width: 8, Height: 8})
	assert.True(t, errors.Is(err, ErrInvalidSize), "render larger than output")
	assert.Zero(t, rec.LiveTextures())
	assert.Zero(t, set.Creations())
}

func TestResizeAndGeneration(t *testing.T) {
	r, rec := headless(t)
	set := NewRenderTargets(r)
	size := common.Extent{Width: 32, Height: 32}
	assert.True(t, set.IsResizeRequired(size, size), "nothing allocated yet")

	require.NoError(t, set.Create(size, size))
	g := set.Generation()
	assert.False(t, set.IsResizeRequired(size, size))
	assert.True(t, set.IsResizeRequired(size, common.Extent{Width: 64, Height: 32}))
	assert.True(t, set.IsResizeRequired(common.Extent{Width: 16, Height: 16}, size))

	set.NextFrame()
	assert.Greater(t, set.Generation(), g)

	require.NoError(t, set.Create(size, common.Extent{Width: 64, Height: 64}))
	assert.Equal(t, 2, set.Creations())
	assert.Equal(t, int(surfaceCount+pairedCount), rec.LiveTextures(), "recreating releases the old set")
	set.Release()
}

func TestGBufferFramebufferFollowsSwap(t *testing.T) {
	r, _ := headless(t)
	set := NewRenderTargets(r)
	require.NoError(t, set.Create(common.Extent{Width: 8, Height: 8}, common.Extent{Width: 8, Height: 8}))
	defer set.Release()

	fb := set.GBufferFramebuffer()
	require.Len(t, fb.ColorAttachments, 5)
	require.NotNil(t, fb.Depth)
	assert.Same(t, set.Texture(Albedo), fb.ColorAttachments[0].Texture)
	assert.Same(t, set.Texture(DeviceDepth), fb.Depth.Texture)

	set.NextFrame()
	next := set.GBufferFramebuffer()
	assert.Same(t, set.Texture(Albedo), next.ColorAttachments[0].Texture)
	assert.NotSame(t, fb.ColorAttachments[0].Texture, next.ColorAttachments[0].Texture)
	assert.Same(t, fb.Depth.Texture, next.Depth.Texture, "the device depth attachment is not paired")
}

func TestOutputSizedSurfaces(t *testing.T) {
	r, _ := headless(t)
	set := NewRenderTargets(r)
	render := common.Extent{Width: 640, Height: 360}
	output := common.Extent{Width: 1280, Height: 720}
	require.NoError(t, set.Create(render, output))
	defer set.Release()

	size := func(s Surface) common.Extent {
		d := set.Texture(s).Descriptor()
		return common.Extent{Width: d.Width, Height: d.Height}
	}
	for _, s := range []Surface{ResolvedColor, Feedback1, Feedback2, LDRColor} {
		assert.Equal(t, output, size(s), "%s is written by the upscaler or tonemap at output size", s)
	}
	for _, s := range []Surface{HDRColor, MotionVectors, Depth, Albedo} {
		assert.Equal(t, render, size(s), s.String())
	}
	assert.Equal(t, render, set.RenderSize())
}
