// Command stf renders the stochastic texture filtering sample.
package main

import (
	"os"

	"github.com/urfave/cli"
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "stf"
	app.Usage = "render a scene with stochastic texture filtering"
	app.Version = "0.1.0"
	app.Flags = globalFlags
	app.Action = Run
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "render interactively, or headless for a fixed number of frames",
			Description: `
Open a window and render the scene until it is closed. Runtime toggles:

  Space      animations          F5/F6/F7  anti-aliasing None/TAA/Upscaled
  F1/F2/F3   producer            F8        cycle sampler type
  F9         freeze frame index  F10       recreate pipelines
  Q          cycle quality       W/A/S/D/E/Shift  move, right drag to look`,
			Action: Run,
		},
		{
			Name:   "info",
			Usage:  "print the device feature table",
			Action: Info,
		},
	}

	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger.Critical(err)
		os.Exit(1)
	}
}
