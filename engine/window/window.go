// Package window hosts the sample in a GLFW window and forwards its input events.
package window

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// Window is the presentation window of the sample.
//
// Every method except SetTitle must be called from the goroutine that created the window.
// Callbacks run on that goroutine from inside ProcessMessages.
type Window interface {
	// SetUpdateCallback sets the function called once per message loop iteration.
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving the new framebuffer width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetKeyDownCallback sets the callback for key presses. Auto repeat is not reported.
	//
	// Parameters:
	//   - callback: function receiving the key code, see the common package
	SetKeyDownCallback(callback func(keyCode uint32))

	// SetKeyUpCallback sets the callback for key releases.
	//
	// Parameters:
	//   - callback: function receiving the key code
	SetKeyUpCallback(callback func(keyCode uint32))

	// SetMouseButtonCallback sets the callback for mouse button presses and releases.
	//
	// Parameters:
	//   - callback: function receiving the button, whether it was pressed and the cursor position
	SetMouseButtonCallback(callback func(button int, pressed bool, x, y int32))

	// SetMouseMoveCallback sets the callback for cursor movement.
	//
	// Parameters:
	//   - callback: function receiving the cursor position in pixels
	SetMouseMoveCallback(callback func(x, y int32))

	// SetTitle changes the title bar text. Safe to call from any goroutine; the title is
	// applied by the next ProcessMessages iteration.
	SetTitle(title string)

	// Title returns the most recently requested title.
	Title() string

	// SurfaceDescriptor returns the platform descriptor the WebGPU surface is created from.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the descriptor, or nil if the window is closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning reports whether the window is still open.
	IsRunning() bool

	// Close destroys the window.
	//
	// Returns:
	//   - error: an error if the window was never created
	Close() error

	// ProcessMessages polls events until the window is closed.
	ProcessMessages()

	// Width returns the framebuffer width in pixels.
	Width() int

	// Height returns the framebuffer height in pixels.
	Height() int
}

type engineWindow struct {
	title     string
	titleMu   sync.Mutex
	titleSet  bool
	minWidth  int
	minHeight int
	maxWidth  int
	maxHeight int
	width     int
	height    int

	// platform is the *glfwWindow once created.
	platform any

	onUpdate      func()
	onResize      func(width, height int)
	onKeyDown     func(keyCode uint32)
	onKeyUp       func(keyCode uint32)
	onMouseButton func(button int, pressed bool, x, y int32)
	onMouseMove   func(x, y int32)
}

var _ Window = &engineWindow{}

// NewWindow opens a window. It locks the calling goroutine to its OS thread, which must
// be the main thread on most platforms.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the opened window
//   - error: an error if GLFW could not create it
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:     "Stochastic Texture Filtering",
		minWidth:  320,
		minHeight: 180,
		maxWidth:  3840,
		maxHeight: 2160,
		width:     1920,
		height:    1080,
	}
	for _, opt := range options {
		opt(w)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.onKeyDown = callback
}

func (w *engineWindow) SetKeyUpCallback(callback func(keyCode uint32)) {
	w.onKeyUp = callback
}

func (w *engineWindow) SetMouseButtonCallback(callback func(button int, pressed bool, x, y int32)) {
	w.onMouseButton = callback
}

func (w *engineWindow) SetMouseMoveCallback(callback func(x, y int32)) {
	w.onMouseMove = callback
}

func (w *engineWindow) SetTitle(title string) {
	w.titleMu.Lock()
	defer w.titleMu.Unlock()
	if title != w.title {
		w.title = title
		w.titleSet = true
	}
}

func (w *engineWindow) Title() string {
	w.titleMu.Lock()
	defer w.titleMu.Unlock()
	return w.title
}

// takeTitle returns a title requested since the last call.
func (w *engineWindow) takeTitle() (string, bool) {
	w.titleMu.Lock()
	defer w.titleMu.Unlock()
	set := w.titleSet
	w.titleSet = false
	return w.title, set
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if !platformProcessMessages(w) {
			break
		}
		if title, ok := w.takeTitle(); ok {
			platformSetTitle(w, title)
		}
		if w.onUpdate != nil {
			w.onUpdate()
		}
		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	return w.width
}

func (w *engineWindow) Height() int {
	return w.height
}
