package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-stf/engine"
	"github.com/Carmen-Shannon/oxy-stf/engine/accel"
	"github.com/Carmen-Shannon/oxy-stf/engine/camera"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/frame"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/scene"
	"github.com/Carmen-Shannon/oxy-stf/engine/upscaler"
	"github.com/Carmen-Shannon/oxy-stf/engine/window"
	"github.com/urfave/cli"
)

const (
	windowTitle = "Stochastic Texture Filtering"
	// cameraPanSpeed is the camera movement speed in world units per second.
	cameraPanSpeed   = 3
	cameraFovDegrees = 45
)

// options are the parsed global flags.
type options struct {
	configPath string
	scenePath  string
	headless   bool
	size       [2]uint32
	frames     int
	debug      bool
	software   bool
	profile    bool
	producer   config.ProducerMode
	forced     bool
}

func parseOptions(ctx *cli.Context) (options, error) {
	o := options{
		configPath: ctx.GlobalString("config"),
		scenePath:  ctx.GlobalString("scene"),
		frames:     ctx.GlobalInt("frames"),
		debug:      ctx.GlobalBool("debug"),
		software:   ctx.GlobalBool("software"),
		profile:    ctx.GlobalBool("profile"),
	}
	if s := ctx.GlobalString("headless"); s != "" {
		e, err := parseExtent(s)
		if err != nil {
			return o, err
		}
		o.headless, o.size = true, [2]uint32{e.Width, e.Height}
	}
	var err error
	o.producer, o.forced, err = producerFlag(ctx.GlobalBool("ray-query"), ctx.GlobalBool("ray-pipeline"))
	return o, err
}

// loadConfig reads the starting configuration and applies the producer flag.
func loadConfig(o options) (config.RenderConfiguration, error) {
	cfg := config.Default()
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	if o.forced {
		cfg.ProducerMode = o.producer
	}
	return cfg, nil
}

// openDevice creates the window, when not headless, and the renderer.
func openDevice(o options) (renderer.Renderer, window.Window, error) {
	if o.headless {
		r, err := renderer.NewRenderer(renderer.BackendTypeHeadless,
			renderer.WithHeadlessSize(o.size[0], o.size[1]),
			renderer.WithDebug(o.debug))
		return r, nil, err
	}
	w, err := window.NewWindow(window.WithTitle(windowTitle))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", gpu.ErrDeviceUnavailable, err)
	}
	r, err := renderer.NewRenderer(renderer.BackendTypeWGPU,
		renderer.WithSurface(w),
		renderer.WithDebug(o.debug),
		renderer.WithForceSoftwareRenderer(o.software),
		renderer.WithPresentMode(renderer.PresentModeVSync))
	if err != nil {
		w.Close()
		return nil, nil, err
	}
	return r, w, nil
}

// checkFeatures fails when the device cannot run the producer selected at startup.
func checkFeatures(f gpu.Features, mode config.ProducerMode) error {
	if mode == config.ProducerRayGen && !f.RayTracingPipeline {
		return fmt.Errorf("%w: %s needs ray tracing pipelines", gpu.ErrFeatureUnsupported, mode)
	}
	return nil
}

// exitError converts device and feature faults to exit status 1.
func exitError(err error) error {
	if errors.Is(err, gpu.ErrDeviceUnavailable) || errors.Is(err, gpu.ErrFeatureUnsupported) {
		return cli.NewExitError(err.Error(), 1)
	}
	return err
}

func loadScene(path string) (scene.Scene, error) {
	desc, err := scene.DefaultDescription()
	if path != "" {
		desc, err = scene.LoadDescription(path)
	}
	if err != nil {
		return nil, err
	}
	return scene.NewScene(desc)
}

// Run renders the scene until the window closes or the frame budget is spent.
func Run(ctx *cli.Context) error {
	setupLogging(ctx)
	o, err := parseOptions(ctx)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	r, w, err := openDevice(o)
	if err != nil {
		return exitError(err)
	}
	defer r.Release()
	if w != nil {
		defer w.Close()
	}
	if err := checkFeatures(r.Features(), cfg.ProducerMode); err != nil {
		return exitError(err)
	}

	s, err := loadScene(o.scenePath)
	if err != nil {
		return err
	}
	defer s.Release()
	if err := s.Upload(r); err != nil {
		return err
	}

	pos, target := s.CameraStart()
	cam := camera.NewCamera(camera.WithFovDegrees(cameraFovDegrees), camera.WithController(camera.NewCameraController(
		camera.WithPosition(pos.X(), pos.Y(), pos.Z()),
		camera.WithTarget(target.X(), target.Y(), target.Z()),
		camera.WithPanSpeed(cameraPanSpeed),
	)))

	cache := pipeline.NewCache(r)
	bvh := accel.NewManager(r)
	up, err := upscaler.NewSpatial(r, cache)
	if err != nil {
		return err
	}
	orch, err := frame.New(r, s, cam, cfg,
		frame.WithPipelineCache(cache),
		frame.WithAccelManager(bvh),
		frame.WithUpscaler(up))
	if err != nil {
		return exitError(err)
	}
	defer orch.Release()
	if err := orch.Warm(context.Background()); err != nil {
		return exitError(err)
	}
	logger.Infof("acceleration structures\n%s", bvh.StatsTable())

	if o.configPath != "" {
		watcher, err := config.Watch(o.configPath, orch.Pending())
		if err != nil {
			return err
		}
		defer watcher.Close()
	}

	engineOpts := []engine.EngineBuilderOption{
		engine.WithTitle(windowTitle),
		engine.WithMaxFrames(o.frames),
		engine.WithProfiling(o.profile),
	}
	if w != nil {
		engineOpts = append(engineOpts, engine.WithWindow(w))
	}
	e := engine.NewEngine(r, orch, cam, engineOpts...)
	runErr := e.Run()
	r.WaitIdle()

	logger.Noticef("session summary\n%s", e.Summary())
	return runErr
}
