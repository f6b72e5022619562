package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/upscaler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func TestParseExtent(t *testing.T) {
	e, err := parseExtent("1920x1080")
	require.NoError(t, err)
	assert.Equal(t, common.Extent{Width: 1920, Height: 1080}, e)

	for _, bad := range []string{"", "1920", "0x1080", "axb"} {
		_, err := parseExtent(bad)
		assert.Error(t, err, bad)
	}
}

func TestProducerFlag(t *testing.T) {
	_, forced, err := producerFlag(false, false)
	require.NoError(t, err)
	assert.False(t, forced)

	mode, forced, err := producerFlag(true, false)
	require.NoError(t, err)
	assert.True(t, forced)
	assert.Equal(t, config.ProducerCompute, mode)

	mode, _, err = producerFlag(false, true)
	require.NoError(t, err)
	assert.Equal(t, config.ProducerRayGen, mode)

	_, _, err = producerFlag(true, true)
	assert.Error(t, err)
}

func TestMissingFeatureExitsWithStatusOne(t *testing.T) {
	err := checkFeatures(gpu.Features{RayQuery: true}, config.ProducerRayGen)
	require.ErrorIs(t, err, gpu.ErrFeatureUnsupported)
	assert.NoError(t, checkFeatures(gpu.Features{}, config.ProducerCompute))

	var coder cli.ExitCoder
	require.True(t, errors.As(exitError(err), &coder))
	assert.Equal(t, 1, coder.ExitCode())

	var other cli.ExitCoder
	assert.False(t, errors.As(exitError(fmt.Errorf("scene: bad file")), &other))
}

func TestFeatureTable(t *testing.T) {
	r, err := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithHeadlessFeatures(gpu.Features{RayQuery: true}))
	require.NoError(t, err)
	defer r.Release()
	up, err := upscaler.NewSpatial(r, pipeline.NewCache(r))
	require.NoError(t, err)
	defer up.Release()

	out := featureTable(r, up)
	assert.Contains(t, out, "headless")
	assert.Contains(t, out, "Ray tracing pipelines")
	assert.Contains(t, out, "Upscaler (spatial)")
	assert.Contains(t, out, gpu.FormatBGRA8UnormSrgb.String())
}

func TestLoadConfigAppliesProducerFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stf.toml")
	c := config.Default()
	c.ProducerMode = config.ProducerRaster
	data, err := config.Encode(c)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := loadConfig(options{configPath: path})
	require.NoError(t, err)
	assert.Equal(t, config.ProducerRaster, cfg.ProducerMode)

	cfg, err = loadConfig(options{configPath: path, producer: config.ProducerCompute, forced: true})
	require.NoError(t, err)
	assert.Equal(t, config.ProducerCompute, cfg.ProducerMode)
}

func TestHeadlessRun(t *testing.T) {
	exited := -1
	cli.OsExiter = func(code int) { exited = code }
	defer func() { cli.OsExiter = os.Exit }()

	require.NoError(t, newApp().Run([]string{"stf", "--headless", "96x54", "--frames", "3", "run"}))
	assert.Equal(t, -1, exited)
}

func TestHeadlessRayPipelineRun(t *testing.T) {
	require.NoError(t, newApp().Run([]string{"stf", "--headless", "64x36", "--frames", "2", "--ray-pipeline"}))
}
