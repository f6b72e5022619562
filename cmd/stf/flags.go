package main

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/log"
	"github.com/urfave/cli"
)

var logger = log.New("cmd")

var globalFlags = []cli.Flag{
	cli.BoolFlag{
		Name:  "ray-query",
		Usage: "trace primary rays inline from a compute kernel (default)",
	},
	cli.BoolFlag{
		Name:  "ray-pipeline",
		Usage: "trace primary rays with a ray generation pipeline",
	},
	cli.BoolFlag{
		Name:  "debug",
		Usage: "enable graphics API validation",
	},
	cli.BoolFlag{
		Name:  "software",
		Usage: "use the software fallback adapter",
	},
	cli.StringFlag{
		Name:  "config",
		Usage: "load render settings from a TOML `FILE` and reload it on change",
	},
	cli.StringFlag{
		Name:  "scene",
		Usage: "load the scene description from a YAML `FILE`",
	},
	cli.StringFlag{
		Name:  "headless",
		Usage: "render `WxH` frames without a window on the recording backend",
	},
	cli.IntFlag{
		Name:  "frames",
		Usage: "stop after `N` frames",
	},
	cli.BoolFlag{
		Name:  "profile",
		Usage: "log frame statistics every second",
	},
	cli.BoolFlag{
		Name:  "v",
		Usage: "enable verbose logging",
	},
	cli.BoolFlag{
		Name:  "vv",
		Usage: "enable even more verbose logging",
	},
}

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}
	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}

// parseExtent parses a WxH size.
func parseExtent(s string) (common.Extent, error) {
	var e common.Extent
	if _, err := fmt.Sscanf(s, "%dx%d", &e.Width, &e.Height); err != nil {
		return e, fmt.Errorf("invalid size %q, want WxH: %w", s, err)
	}
	if e.IsZero() {
		return e, fmt.Errorf("invalid size %q: both dimensions must be positive", s)
	}
	return e, nil
}

// producerFlag returns the producer selected on the command line, if any.
func producerFlag(rayQuery, rayPipeline bool) (config.ProducerMode, bool, error) {
	switch {
	case rayQuery && rayPipeline:
		return 0, false, fmt.Errorf("--ray-query and --ray-pipeline are mutually exclusive")
	case rayPipeline:
		return config.ProducerRayGen, true, nil
	case rayQuery:
		return config.ProducerCompute, true, nil
	}
	return 0, false, nil
}
