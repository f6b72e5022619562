package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-stf/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
type EngineBuilderOption func(*engine)

// WithProfiling starts the engine with the once-per-second statistics log switched on.
// It can still be toggled later with EnableProfiler and DisableProfiler.
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets the input tick rate. Values <= 0 keep the default of 120 Hz.
//
// Parameters:
//   - hz: ticks per second
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(hz float64) EngineBuilderOption {
	return func(e *engine) {
		if hz > 0 {
			e.tickRate = time.Duration(float64(time.Second) / hz)
		}
	}
}

// WithWindow attaches a window. Without one the engine runs headless and input is only
// reachable through HandleKey.
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithTitle sets the base window title the active producer is appended to.
func WithTitle(title string) EngineBuilderOption {
	return func(e *engine) {
		e.title = title
	}
}

// WithMaxFrames stops the engine after n frames. Zero renders until quit.
//
// Parameters:
//   - n: the frame budget
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithMaxFrames(n int) EngineBuilderOption {
	return func(e *engine) {
		e.maxFrames = max(n, 0)
	}
}
