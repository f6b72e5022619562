package window

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

var errNotOpen = errors.New("window is not open")

type glfwWindow struct {
	window  *glfw.Window
	running bool
}

func newPlatformWindow(w *engineWindow) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("initializing GLFW: %w", err)
	}
	// the WebGPU surface needs a window without a GL context
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("creating GLFW window: %w", err)
	}
	win.SetSizeLimits(w.minWidth, w.minHeight, w.maxWidth, w.maxHeight)

	gw := &glfwWindow{window: win, running: true}
	w.platform = gw

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			gw.running = false
			win.SetShouldClose(true)
			return
		}
		switch action {
		case glfw.Press:
			if w.onKeyDown != nil {
				w.onKeyDown(uint32(key))
			}
		case glfw.Release:
			if w.onKeyUp != nil {
				w.onKeyUp(uint32(key))
			}
		}
	})

	win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if w.onMouseButton == nil || action == glfw.Repeat {
			return
		}
		x, y := win.GetCursorPos()
		w.onMouseButton(int(button), action == glfw.Press, int32(x), int32(y))
	})

	win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		if w.onMouseMove != nil {
			w.onMouseMove(int32(x), int32(y))
		}
	})

	// framebuffer size, not window size: they differ on high-DPI displays
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.width, w.height = width, height
		if w.onResize != nil {
			w.onResize(width, height)
		}
	})
	w.width, w.height = win.GetFramebufferSize()
	return nil
}

func platformWindow(w *engineWindow) (*glfwWindow, bool) {
	gw, ok := w.platform.(*glfwWindow)
	return gw, ok && gw != nil
}

func platformGetSurfaceDescriptor(w *engineWindow) *wgpu.SurfaceDescriptor {
	gw, ok := platformWindow(w)
	if !ok {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(gw.window)
}

func platformIsRunningCheck(w *engineWindow) bool {
	gw, ok := platformWindow(w)
	return ok && gw.running && !gw.window.ShouldClose()
}

func platformSetTitle(w *engineWindow, title string) {
	if gw, ok := platformWindow(w); ok {
		gw.window.SetTitle(title)
	}
}

func platformCloseWindow(w *engineWindow) error {
	gw, ok := platformWindow(w)
	if !ok {
		return errNotOpen
	}
	gw.running = false
	gw.window.Destroy()
	glfw.Terminate()
	w.platform = nil
	return nil
}

// platformProcessMessages polls pending events without blocking.
func platformProcessMessages(w *engineWindow) bool {
	glfw.PollEvents()
	return platformIsRunningCheck(w)
}
