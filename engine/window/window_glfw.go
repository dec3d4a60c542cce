package window

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// glfwHandle is the GLFW state behind a desktopWindow.
type glfwHandle struct {
	window *glfw.Window
}

// openPlatformWindow creates a GLFW window without a client API and routes its callbacks into w.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
func openPlatformWindow(w *desktopWindow) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("initialize GLFW: %w", err)
	}

	// The surface is owned by WebGPU, GLFW must not create a GL context.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, boolHint(w.resizable))

	win, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("create GLFW window: %w", err)
	}
	win.SetSizeLimits(sizeLimit(w.minWidth), sizeLimit(w.minHeight), glfw.DontCare, glfw.DontCare)
	w.handle = &glfwHandle{window: win}

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action == glfw.Release {
			return
		}
		if key == glfw.KeyEscape {
			win.SetShouldClose(true)
			return
		}
		if w.onKey != nil {
			w.onKey(uint32(key))
		}
	})

	win.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		if w.onScroll != nil {
			w.onScroll(float32(yoff))
		}
	})

	win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if button != glfw.MouseButtonLeft {
			return
		}
		switch action {
		case glfw.Press:
			w.pointer.press(win.GetCursorPos())
		case glfw.Release:
			w.pointer.release()
		}
	})

	win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		w.cursorMoved(x, y)
	})

	// Framebuffer size, not window size: the swapchain is configured in pixels.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.framebufferResized(width, height)
	})
	w.width, w.height = win.GetFramebufferSize()

	return nil
}

func boolHint(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}

func sizeLimit(v int) int {
	if v <= 0 {
		return glfw.DontCare
	}
	return v
}

func handleOf(w *desktopWindow) *glfwHandle {
	h, _ := w.handle.(*glfwHandle)
	return h
}

// platformSurfaceDescriptor asks the wgpuglfw bridge for the surface of the current platform (Win32, X11, Wayland or
// Metal).
func platformSurfaceDescriptor(w *desktopWindow) *wgpu.SurfaceDescriptor {
	h := handleOf(w)
	if h == nil {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(h.window)
}

func platformRunning(w *desktopWindow) bool {
	h := handleOf(w)
	return h != nil && !h.window.ShouldClose()
}

// platformRequestClose flags the window. glfwSetWindowShouldClose is safe from any thread.
func platformRequestClose(w *desktopWindow) {
	if h := handleOf(w); h != nil {
		h.window.SetShouldClose(true)
	}
}

func platformSetTitle(w *desktopWindow, title string) {
	if h := handleOf(w); h != nil {
		h.window.SetTitle(title)
	}
}

// platformClose destroys the window and terminates GLFW.
func platformClose(w *desktopWindow) error {
	h := handleOf(w)
	if h == nil {
		return fmt.Errorf("window is not open")
	}
	h.window.Destroy()
	w.handle = nil
	glfw.Terminate()
	return nil
}

// platformPoll processes pending events without blocking and reports whether the loop should continue.
func platformPoll(w *desktopWindow) bool {
	if !platformRunning(w) {
		return false
	}
	glfw.PollEvents()
	return platformRunning(w)
}
