package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingApplyClassifiesChanges(t *testing.T) {
	p := NewPending()
	assert.True(t, p.Empty())

	base := Default()
	p.Enqueue(func(c *RenderConfiguration) { c.AAMode = AAModeUpscaled })
	p.Enqueue(func(c *RenderConfiguration) { c.Quality = QualityBalanced })
	assert.False(t, p.Empty())

	next, change := p.Apply(base, allCaps)
	assert.Equal(t, AAModeUpscaled, next.AAMode)
	assert.True(t, change.Has(ChangeAAMode))
	assert.True(t, change.Has(ChangeQuality))
	assert.False(t, change.Has(ChangePipeline))
	assert.True(t, p.Empty())

	// base is untouched
	assert.Equal(t, AAModeTAA, base.AAMode)
}

func TestPendingProducerAndPipelineChanges(t *testing.T) {
	p := NewPending()
	p.Enqueue(func(c *RenderConfiguration) { c.ProducerMode = ProducerRaster })
	_, change := p.Apply(Default(), allCaps)
	assert.True(t, change.Has(ChangeProducer))
	assert.True(t, change.Has(ChangePipeline))

	p.Enqueue(func(c *RenderConfiguration) { c.Sigma = 2 })
	_, change = p.Apply(Default(), allCaps)
	assert.Equal(t, ChangeOther, change)

	p.RecreatePipelines()
	_, change = p.Apply(Default(), allCaps)
	assert.True(t, change.Has(ChangeShaderCache))
	assert.True(t, change.Has(ChangePipeline))

	_, change = p.Apply(Default(), allCaps)
	assert.Equal(t, Change(0), change)
}

func TestPendingReplaceValidates(t *testing.T) {
	p := NewPending()
	c := Default()
	c.AAMode = AAModeUpscaled
	p.Replace(c)
	next, change := p.Apply(Default(), Capabilities{})
	assert.Equal(t, AAModeTAA, next.AAMode)
	assert.Equal(t, Change(0), change)
}

func TestWatcherQueuesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stf.toml")
	require.NoError(t, os.WriteFile(path, []byte(`sigma = 1.0`), 0o644))

	p := NewPending()
	w, err := Watch(path, p)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`sigma = 4.0`), 0o644))
	require.Eventually(t, func() bool { return !p.Empty() }, 2*time.Second, 10*time.Millisecond)

	next, change := p.Apply(Default(), allCaps)
	assert.Equal(t, float32(4), next.Sigma)
	assert.Equal(t, ChangeOther, change)
}

func TestWatcherReloadKeepsRuntimeToggles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stf.toml")
	require.NoError(t, os.WriteFile(path, []byte(`sigma = 1.0`), 0o644))

	p := NewPending()
	w, err := Watch(path, p)
	require.NoError(t, err)
	defer w.Close()

	live := Default()
	live.FreezeFrameIndex = true
	live.SamplerType = SamplerHW

	require.NoError(t, os.WriteFile(path, []byte("sigma = 2.0\nenable_animations = false\n"), 0o644))
	require.Eventually(t, func() bool { return !p.Empty() }, 2*time.Second, 10*time.Millisecond)

	next, change := p.Apply(live, allCaps)
	assert.Equal(t, float32(2), next.Sigma)
	assert.False(t, next.EnableAnimations)
	assert.True(t, next.FreezeFrameIndex)
	assert.Equal(t, SamplerHW, next.SamplerType)
	assert.Equal(t, ChangeOther, change)
}
