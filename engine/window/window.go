// Package window opens the desktop window the particle demo renders into and turns its input into the few events the
// engine consumes: framebuffer resizes, key presses, pointer drags and scroll.
package window

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// Window provides the render surface and the input events of the demo.
// Callbacks fire on the goroutine that runs ProcessMessages.
type Window interface {
	// SetResizeCallback sets the function called when the framebuffer size changes.
	//
	// Parameters:
	//   - callback: function receiving the new framebuffer width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for vertical scroll, positive away from the user.
	SetScrollCallback(callback func(delta float32))

	// SetKeyCallback sets the callback for key presses. Held keys repeat.
	//
	// Parameters:
	//   - callback: function receiving the key code, see common.Key*
	SetKeyCallback(callback func(keyCode uint32))

	// SetDragCallback sets the callback for pointer movement while the left button is held.
	//
	// Parameters:
	//   - callback: function receiving the movement since the last event in pixels
	SetDragCallback(callback func(dx, dy float32))

	// SetTitle changes the title bar text. May be called from any goroutine, the change is applied by the message loop.
	SetTitle(title string)

	// Title returns the title the window was created with.
	Title() string

	// SurfaceDescriptor returns the platform surface descriptor the renderer creates its WebGPU surface from.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the descriptor, or nil when the window was never opened
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning reports whether the window is open and no close was requested.
	IsRunning() bool

	// RequestClose asks the message loop to stop. Unlike Close it may be called from any goroutine.
	RequestClose()

	// Close destroys the window. Must be called from the goroutine that created it.
	//
	// Returns:
	//   - error: error if the window was never opened
	Close() error

	// ProcessMessages polls input until the window closes.
	ProcessMessages()

	// Width returns the framebuffer width in pixels.
	Width() int

	// Height returns the framebuffer height in pixels.
	Height() int
}

// desktopWindow implements Window on top of a platform handle.
type desktopWindow struct {
	title     string
	width     int
	height    int
	minWidth  int
	minHeight int
	resizable bool

	// handle holds the platform window (glfwHandle).
	handle any

	onResize func(width, height int)
	onScroll func(delta float32)
	onKey    func(keyCode uint32)
	onDrag   func(dx, dy float32)

	pointer pointerTracker

	titleMu      sync.Mutex
	pendingTitle *string
}

var _ Window = &desktopWindow{}

// NewWindow opens a window. The calling goroutine is locked to its OS thread and must also run ProcessMessages and
// Close.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the open window
//   - error: error if the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &desktopWindow{
		title:     "oxy-particles",
		width:     1280,
		height:    720,
		minWidth:  320,
		minHeight: 180,
		resizable: true,
	}
	for _, opt := range options {
		opt(w)
	}
	if w.width <= 0 || w.height <= 0 {
		return nil, fmt.Errorf("window size %dx%d must be positive", w.width, w.height)
	}
	if err := openPlatformWindow(w); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *desktopWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *desktopWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *desktopWindow) SetKeyCallback(callback func(keyCode uint32)) {
	w.onKey = callback
}

func (w *desktopWindow) SetDragCallback(callback func(dx, dy float32)) {
	w.onDrag = callback
}

func (w *desktopWindow) SetTitle(title string) {
	w.titleMu.Lock()
	defer w.titleMu.Unlock()
	w.pendingTitle = &title
}

func (w *desktopWindow) Title() string {
	return w.title
}

// takeTitle returns the title set since the last call.
func (w *desktopWindow) takeTitle() (string, bool) {
	w.titleMu.Lock()
	defer w.titleMu.Unlock()
	if w.pendingTitle == nil {
		return "", false
	}
	t := *w.pendingTitle
	w.pendingTitle = nil
	return t, true
}

func (w *desktopWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformSurfaceDescriptor(w)
}

func (w *desktopWindow) IsRunning() bool {
	return platformRunning(w)
}

func (w *desktopWindow) RequestClose() {
	platformRequestClose(w)
}

func (w *desktopWindow) Close() error {
	return platformClose(w)
}

func (w *desktopWindow) ProcessMessages() {
	for platformPoll(w) {
		if title, ok := w.takeTitle(); ok {
			platformSetTitle(w, title)
		}
		runtime.Gosched()
	}
}

func (w *desktopWindow) Width() int {
	return w.width
}

func (w *desktopWindow) Height() int {
	return w.height
}

// framebufferResized records the new size and forwards it.
func (w *desktopWindow) framebufferResized(width, height int) {
	w.width = width
	w.height = height
	if w.onResize != nil {
		w.onResize(width, height)
	}
}

// cursorMoved forwards the movement as a drag when the left button is held.
func (w *desktopWindow) cursorMoved(x, y float64) {
	if dx, dy, ok := w.pointer.move(x, y); ok && w.onDrag != nil {
		w.onDrag(dx, dy)
	}
}

// pointerTracker turns absolute cursor positions into drag deltas.
type pointerTracker struct {
	dragging bool
	lastX    float64
	lastY    float64
}

// press starts a drag at the given position.
func (p *pointerTracker) press(x, y float64) {
	p.dragging = true
	p.lastX, p.lastY = x, y
}

func (p *pointerTracker) release() {
	p.dragging = false
}

// move returns the movement since the last position, ok is false when no drag is in progress.
func (p *pointerTracker) move(x, y float64) (dx, dy float32, ok bool) {
	if !p.dragging {
		return 0, 0, false
	}
	dx, dy = float32(x-p.lastX), float32(y-p.lastY)
	p.lastX, p.lastY = x, y
	return dx, dy, dx != 0 || dy != 0
}
