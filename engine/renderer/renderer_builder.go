package renderer

import (
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// Surface is the window the WebGPU backend presents into.
type Surface interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	Width() int
	Height() int
}

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithSurface sets the window the renderer presents into. Required by BackendTypeWGPU.
//
// Parameters:
//   - s: the presentation surface, typically a window.Window
//
// Returns:
//   - RendererBuilderOption: a function that applies the surface option to a renderer
func WithSurface(s Surface) RendererBuilderOption {
	return func(r *renderer) {
		r.surface = s
	}
}

// WithPresentMode selects VSync or uncapped presentation on the WebGPU backend. The
// headless backend ignores it.
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithForceSoftwareRenderer requests the fallback adapter, such as lavapipe or SwiftShader,
// when one is installed.
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithDebug enables per-pipeline and per-pass trace logging.
//
// Parameters:
//   - debug: true to log every compiled pipeline and recorded pass at Debug level
//
// Returns:
//   - RendererBuilderOption: a function that applies the debug option to a renderer
func WithDebug(debug bool) RendererBuilderOption {
	return func(r *renderer) {
		r.debug = debug
	}
}

// WithHeadlessSize sets the surface size of the headless backend. Defaults to 1280x720.
//
// Parameters:
//   - width: the surface width
//   - height: the surface height
//
// Returns:
//   - RendererBuilderOption: a function that applies the headless size option to a renderer
func WithHeadlessSize(width, height uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.headlessWidth = width
		r.headlessHeight = height
	}
}

// WithHeadlessFeatures sets the features the headless backend reports. Defaults to ray query
// and ray tracing pipelines both available.
//
// Parameters:
//   - f: the features to report
//
// Returns:
//   - RendererBuilderOption: a function that applies the headless features option to a renderer
func WithHeadlessFeatures(f gpu.Features) RendererBuilderOption {
	return func(r *renderer) {
		r.headlessFeatures = &f
	}
}
