package frame

import (
	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/producer"
	"github.com/Carmen-Shannon/oxy-stf/engine/targets"
	"github.com/go-gl/mathgl/mgl32"
)

// State is the lifecycle state of an Orchestrator.
type State int

const (
	// StateUninitialized is the state before the first frame allocated the render targets.
	StateUninitialized State = iota
	// StateSteady renders with the allocated targets.
	StateSteady
	// StateTargetsInvalid is entered when the output size, the anti-aliasing mode, the upscaler
	// quality or the producer changes. The next frame reallocates before recording.
	StateTargetsInvalid
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateSteady:
		return "Steady"
	case StateTargetsInvalid:
		return "TargetsInvalid"
	}
	return "Unknown"
}

// Stats counts the work of an Orchestrator since construction.
type Stats struct {
	Frames int
	// Reallocations counts Render Target Set allocations, the first one included.
	Reallocations int
	// InvalidFrames counts frames recorded without valid previous views.
	InvalidFrames    int
	PipelineRebuilds int
	ProducerSwitches int
	BLASRebuilds     int
}

// Report describes one recorded frame.
type Report struct {
	Index uint32
	// Entered is the state the frame started in.
	Entered     State
	Reallocated bool
	// HistoryValid is PreviousViewsValid as seen by the frame's passes.
	HistoryValid bool
	RenderSize   common.Extent
	OutputSize   common.Extent
	Producer     config.ProducerMode
	AAMode       config.AAMode
	// Jitter is the pixel offset the frame's view was built with.
	Jitter  mgl32.Vec2
	GBuffer producer.GBufferResult
	// MotionVectors is true if the motion vector pass rendered.
	MotionVectors bool
	// Presented is the surface tone mapped onto the presentation surface.
	Presented targets.Surface
}
