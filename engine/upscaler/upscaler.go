// Package upscaler defines the contract of an external upscaler: it picks the internal render
// resolution for an output resolution and a quality preset, then reconstructs the output
// resolution from the low resolution HDR color of a frame.
package upscaler

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/camera"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-stf/engine/targets"
	"github.com/Carmen-Shannon/oxy-stf/log"
)

var logger = log.New("upscaler")

// ErrUnavailable is returned by every operation of an upscaler that is not available.
var ErrUnavailable = errors.New("upscaler: unavailable")

// RenderParams are the inputs of one upscaler invocation.
type RenderParams struct {
	Commands renderer.CommandList
	Targets  targets.RenderTargets
	// Exposure is the tone mapper's exposure buffer, a single f32.
	Exposure      gpu.Buffer
	ExposureScale float32
	Sharpness     float32
	// GBufferRasterized is true when the raster producer filled the G-buffer.
	GBufferRasterized bool
	// ResetHistory discards the accumulated history, set while previous views are invalid.
	ResetHistory bool
	View         camera.PlanarView
	PreviousView camera.PlanarView
}

// Upscaler is the contract the frame orchestrator drives. SetRenderSize must be called
// before the render targets are allocated and RenderSize is authoritative for every pass
// that runs before Render.
type Upscaler interface {
	// Name returns a short name for logs and the info table.
	Name() string

	// IsSupported reports whether the device has the feature the upscaler needs.
	IsSupported() bool

	// IsAvailable reports whether the upscaler is supported and initialized.
	IsAvailable() bool

	// SetRenderSize derives the input resolution for an output resolution.
	//
	// Parameters:
	//   - outputWidth, outputHeight: the presentation resolution
	//   - quality: the render to output ratio preset
	//
	// Returns:
	//   - error: ErrUnavailable if the upscaler is not available
	SetRenderSize(outputWidth, outputHeight uint32, quality config.QualityPreset) error

	// RenderSize returns the sizes chosen by the last SetRenderSize.
	//
	// Returns:
	//   - inputWidth, inputHeight: the resolution upstream passes render at
	//   - outputWidth, outputHeight: the resolution Render writes
	RenderSize() (inputWidth, inputHeight, outputWidth, outputHeight uint32)

	// Requests lists the pipeline variants Render uses.
	//
	// Returns:
	//   - []pipeline.Request: the variants, empty for upscalers without pipelines
	Requests() []pipeline.Request

	// Render reconstructs the output resolution into the resolved color surface of the targets.
	//
	// Parameters:
	//   - p: the frame's inputs
	//
	// Returns:
	//   - error: ErrUnavailable, or an error if recording failed
	Render(p RenderParams) error

	// AdvanceFrame runs after the frame presented. When Render recorded since the last call,
	// the feedback surfaces swap roles so the next Render reads this frame's output as history.
	AdvanceFrame()

	// Release frees the upscaler's GPU resources.
	Release()
}

// InputSize scales an output resolution by the ratio of a quality preset. The result is
// rounded to the nearest pixel and never smaller than one pixel nor larger than the output.
//
// Parameters:
//   - output: the presentation resolution
//   - quality: the preset
//
// Returns:
//   - common.Extent: the render resolution
func InputSize(output common.Extent, quality config.QualityPreset) common.Extent {
	in := output.Scale(quality.Ratio())
	return common.Extent{Width: min(in.Width, output.Width), Height: min(in.Height, output.Height)}
}

// none is an absent upscaler.
type none struct{}

// NewNone returns the upscaler of a build or device without one. It is never available.
func NewNone() Upscaler {
	return none{}
}

func (none) Name() string                                             { return "none" }
func (none) IsSupported() bool                                        { return false }
func (none) IsAvailable() bool                                        { return false }
func (none) SetRenderSize(uint32, uint32, config.QualityPreset) error { return ErrUnavailable }
func (none) RenderSize() (uint32, uint32, uint32, uint32)             { return 0, 0, 0, 0 }
func (none) Requests() []pipeline.Request                             { return nil }
func (none) Render(RenderParams) error                                { return ErrUnavailable }
func (none) AdvanceFrame()                                            {}
func (none) Release()                                                 {}
