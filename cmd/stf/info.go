package main

import (
	"bytes"
	"fmt"

	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/upscaler"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Info prints the features of the device the run command would use.
func Info(ctx *cli.Context) error {
	setupLogging(ctx)
	o, err := parseOptions(ctx)
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

	up, err := upscaler.NewSpatial(r, pipeline.NewCache(r))
	if err != nil {
		return err
	}
	defer up.Release()

	fmt.Print(featureTable(r, up))
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func featureTable(r renderer.Renderer, up upscaler.Upscaler) string {
	f := r.Features()
	caps := config.Capabilities{RayTracingPipeline: f.RayTracingPipeline, RayQuery: f.RayQuery, UpscalerAvailable: up.IsAvailable()}
	_, notes := config.Default().Validate(caps)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Feature", "Available"})
	table.Append([]string{"Backend", r.Backend().String()})
	table.Append([]string{"Ray query", yesNo(f.RayQuery)})
	table.Append([]string{"Ray tracing pipelines", yesNo(f.RayTracingPipeline)})
	table.Append([]string{"Timestamp queries", yesNo(f.TimestampQuery)})
	table.Append([]string{"Upscaler (" + up.Name() + ")", yesNo(up.IsAvailable())})
	table.Append([]string{"Output format", r.SurfaceFormat().String()})
	table.SetFooter([]string{"Default settings corrected", fmt.Sprint(len(notes))})
	table.Render()
	return buf.String()
}
