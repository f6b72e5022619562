// Package engine runs the sample: an input tick loop that turns held keys into camera
// motion, and a render loop that drives the frame orchestrator under an optional frame
// rate limit.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-stf/common"
	"github.com/Carmen-Shannon/oxy-stf/engine/camera"
	"github.com/Carmen-Shannon/oxy-stf/engine/frame"
	"github.com/Carmen-Shannon/oxy-stf/engine/profiler"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stf/engine/window"
	"github.com/Carmen-Shannon/oxy-stf/log"
	"github.com/go-gl/mathgl/mgl32"
)

var logger = log.New("engine")

// engine implements the Engine interface.
type engine struct {
	renderer     renderer.Renderer
	orchestrator frame.Orchestrator
	camera       camera.Camera
	window       window.Window

	tickRateChannel chan time.Duration
	tickRate        time.Duration

	wg          sync.WaitGroup
	quitChannel chan struct{}
	quitOnce    sync.Once

	profiler         *profiler.Profiler
	profilingEnabled bool

	title     string
	maxFrames int

	// input is written by the window goroutine and the tick loop, and drained by the render loop.
	inputMu  sync.Mutex
	held     map[uint32]bool
	motion   mgl32.Vec3
	look     mgl32.Vec2
	dragging bool
	cursor   [2]int32

	errMu sync.Mutex
	err   error
}

// Engine owns the loops of the sample.
type Engine interface {
	// Window returns the window, or nil when running headless.
	Window() window.Window

	// Orchestrator returns the frame orchestrator the render loop drives.
	Orchestrator() frame.Orchestrator

	// Profiler returns the frame profiler.
	Profiler() *profiler.Profiler

	// EnableProfiler turns on periodic statistics logging.
	EnableProfiler()

	// DisableProfiler turns off periodic statistics logging. Frames are still counted.
	DisableProfiler()

	// SetTickRate sets the input tick rate in ticks per second.
	//
	// Parameters:
	//   - hz: ticks per second (defaults to 120 if <= 0)
	SetTickRate(hz float64)

	// HandleKey applies the runtime binding of a key, if any.
	//
	// Parameters:
	//   - keyCode: the pressed key
	//
	// Returns:
	//   - bool: true if the key is bound
	HandleKey(keyCode uint32) bool

	// Run starts the loops and blocks until the window closes, the frame budget is spent,
	// Quit is called or a frame fails.
	//
	// Returns:
	//   - error: the error of the failed frame, nil otherwise
	Run() error

	// Quit signals every loop to stop. Safe to call multiple times.
	Quit()

	// Summary renders the lifetime statistics table.
	Summary() string
}

// NewEngine creates an Engine driving o.
//
// Parameters:
//   - r: the renderer o records against
//   - o: the frame orchestrator
//   - cam: the camera moved by input
//   - options: functional options
//
// Returns:
//   - Engine: the engine
func NewEngine(r renderer.Renderer, o frame.Orchestrator, cam camera.Camera, options ...EngineBuilderOption) Engine {
	e := &engine{
		renderer:        r,
		orchestrator:    o,
		camera:          cam,
		tickRateChannel: make(chan time.Duration, 1),
		tickRate:        time.Second / 120,
		quitChannel:     make(chan struct{}),
		profiler:        profiler.NewProfiler(),
		title:           "Stochastic Texture Filtering",
		held:            map[uint32]bool{},
	}
	for _, opt := range options {
		opt(e)
	}
	if e.profilingEnabled {
		e.EnableProfiler()
	}
	if e.window != nil {
		e.attachWindow()
	}
	return e
}

func (e *engine) attachWindow() {
	e.window.SetTitle(Title(e.title, e.orchestrator.Config().ProducerMode))
	e.window.SetResizeCallback(func(width, height int) {
		if width > 0 && height > 0 {
			e.renderer.Resize(uint32(width), uint32(height))
		}
	})
	e.window.SetKeyDownCallback(func(key uint32) {
		if e.HandleKey(key) {
			return
		}
		e.inputMu.Lock()
		e.held[key] = true
		e.inputMu.Unlock()
	})
	e.window.SetKeyUpCallback(func(key uint32) {
		e.inputMu.Lock()
		delete(e.held, key)
		e.inputMu.Unlock()
	})
	e.window.SetMouseButtonCallback(func(button int, pressed bool, x, y int32) {
		if button != common.MouseButtonRight {
			return
		}
		e.inputMu.Lock()
		e.dragging = pressed
		e.cursor = [2]int32{x, y}
		e.inputMu.Unlock()
	})
	e.window.SetMouseMoveCallback(func(x, y int32) {
		e.inputMu.Lock()
		defer e.inputMu.Unlock()
		if e.dragging {
			e.look = e.look.Add(mgl32.Vec2{float32(x - e.cursor[0]), float32(y - e.cursor[1])})
		}
		e.cursor = [2]int32{x, y}
	})
	e.window.SetUpdateCallback(func() {
		select {
		case <-e.quitChannel:
			e.window.Close()
		default:
		}
	})
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Orchestrator() frame.Orchestrator {
	return e.orchestrator
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) HandleKey(keyCode uint32) bool {
	b, ok := Bindings[keyCode]
	if !ok {
		return false
	}
	logger.Infof("key %d: %s", keyCode, b.Name)
	b.Apply(e.orchestrator.Pending())
	return true
}

func (e *engine) Run() error {
	e.wg.Add(2)
	go e.handleTick()
	go e.handleRender()
	if e.window != nil {
		// the window must pump events on the goroutine that created it
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()

	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

func (e *engine) Quit() {
	e.signalQuit()
}

func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) fail(err error) {
	e.errMu.Lock()
	e.err = errors.Join(e.err, err)
	e.errMu.Unlock()
	e.signalQuit()
}

// handleTick turns held movement keys into camera motion at the tick rate.
func (e *engine) handleTick() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.tickRate)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now
			e.accumulateMotion(dt)
		case rate := <-e.tickRateChannel:
			ticker.Reset(rate)
			e.tickRate = rate
		}
	}
}

func (e *engine) accumulateMotion(dt float32) {
	var dir mgl32.Vec3
	e.inputMu.Lock()
	defer e.inputMu.Unlock()
	if e.held[common.KeyD] {
		dir[0]++
	}
	if e.held[common.KeyA] {
		dir[0]--
	}
	if e.held[common.KeyE] {
		dir[1]++
	}
	if e.held[common.KeyLeftShift] {
		dir[1]--
	}
	if e.held[common.KeyW] {
		dir[2]++
	}
	if e.held[common.KeyS] {
		dir[2]--
	}
	e.motion = e.motion.Add(dir.Mul(dt))
}

// applyInput moves the camera by the motion accumulated since the previous frame. It runs on
// the render goroutine, which owns the camera.
func (e *engine) applyInput() {
	e.inputMu.Lock()
	motion, look := e.motion, e.look
	e.motion, e.look = mgl32.Vec3{}, mgl32.Vec2{}
	e.inputMu.Unlock()

	ctrl := e.camera.Controller()
	if ctrl == nil {
		return
	}
	speed := ctrl.PanSpeed()
	if motion[0] != 0 {
		ctrl.PanRight(motion[0] * speed)
	}
	if motion[1] != 0 {
		ctrl.PanUp(motion[1] * speed)
	}
	if motion[2] != 0 {
		ctrl.PanForward(motion[2] * speed)
	}
	if look != (mgl32.Vec2{}) {
		ctrl.Look(look[0], look[1])
	}
}

// handleRender records frames until quit. A failed frame stops the engine.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.fail(fmt.Errorf("render goroutine panicked: %v", r))
		}
	}()

	producer := e.orchestrator.Config().ProducerMode
	last := time.Now()
	for frames := 0; e.maxFrames <= 0 || frames < e.maxFrames; frames++ {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		start := time.Now()
		dt := start.Sub(last).Seconds()
		last = start

		e.applyInput()
		rep, err := e.orchestrator.Render(dt)
		if err != nil {
			e.fail(fmt.Errorf("frame %d: %w", rep.Index, err))
			return
		}
		if rep.Reallocated {
			logger.Infof("frame %d reallocated targets %s -> %s", rep.Index, rep.RenderSize, rep.OutputSize)
		}
		if rep.Producer != producer && e.window != nil {
			producer = rep.Producer
			e.window.SetTitle(Title(e.title, producer))
		}

		elapsed := time.Since(start)
		e.profiler.Tick(elapsed)

		cfg := e.orchestrator.Config()
		if cfg.EnableFPSLimit && cfg.FPSLimit > 0 {
			if remaining := time.Second/time.Duration(cfg.FPSLimit) - elapsed; remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
	e.signalQuit()
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
	log.SetModuleLevel("profiler", log.Info)
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
	log.SetModuleLevel("profiler", log.Notice)
}

func (e *engine) SetTickRate(hz float64) {
	if hz <= 0 {
		hz = 120
	}
	rate := time.Duration(float64(time.Second) / hz)
	select {
	case e.tickRateChannel <- rate:
	default:
		// replace the pending value
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- rate
	}
}

func (e *engine) Summary() string {
	st := e.orchestrator.Stats()
	return e.profiler.Summary(
		profiler.Counter{Name: "Reallocations", Value: st.Reallocations},
		profiler.Counter{Name: "Frames without history", Value: st.InvalidFrames},
		profiler.Counter{Name: "Pipeline rebuilds", Value: st.PipelineRebuilds},
		profiler.Counter{Name: "Producer switches", Value: st.ProducerSwitches},
		profiler.Counter{Name: "BLAS rebuilds", Value: st.BLASRebuilds},
	)
}
