package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointerTrackerReportsDragDeltas(t *testing.T) {
	var p pointerTracker

	_, _, ok := p.move(10, 10)
	assert.False(t, ok, "moves without a pressed button are not drags")

	p.press(10, 10)
	dx, dy, ok := p.move(14, 7)
	require.True(t, ok)
	assert.Equal(t, float32(4), dx)
	assert.Equal(t, float32(-3), dy)

	_, _, ok = p.move(14, 7)
	assert.False(t, ok, "zero movement is dropped")

	p.release()
	_, _, ok = p.move(30, 30)
	assert.False(t, ok)
}

func TestCursorMovedForwardsDrags(t *testing.T) {
	w := &desktopWindow{}
	var got [][2]float32
	w.SetDragCallback(func(dx, dy float32) { got = append(got, [2]float32{dx, dy}) })

	w.cursorMoved(1, 1)
	w.pointer.press(1, 1)
	w.cursorMoved(3, 0)
	w.cursorMoved(4, 2)

	assert.Equal(t, [][2]float32{{2, -1}, {1, 2}}, got)
}

func TestFramebufferResizedUpdatesSize(t *testing.T) {
	w := &desktopWindow{width: 100, height: 50}
	var size [2]int
	w.framebufferResized(300, 200)
	assert.Equal(t, 300, w.Width())
	assert.Equal(t, 200, w.Height())

	w.SetResizeCallback(func(width, height int) { size = [2]int{width, height} })
	w.framebufferResized(640, 360)
	assert.Equal(t, [2]int{640, 360}, size)
}

func TestSetTitleIsTakenOnce(t *testing.T) {
	w := &desktopWindow{title: "demo"}
	_, ok := w.takeTitle()
	assert.False(t, ok)

	w.SetTitle("first")
	w.SetTitle("second")
	title, ok := w.takeTitle()
	require.True(t, ok)
	assert.Equal(t, "second", title)
	_, ok = w.takeTitle()
	assert.False(t, ok)
	assert.Equal(t, "demo", w.Title())
}

func TestClosedWindowIsNotRunning(t *testing.T) {
	w := &desktopWindow{}
	assert.False(t, w.IsRunning())
	assert.Nil(t, w.SurfaceDescriptor())
	assert.Error(t, w.Close())
	w.RequestClose()
}

func TestBuilderOptions(t *testing.T) {
	w := &desktopWindow{}
	for _, opt := range []WindowBuilderOption{
		WithTitle("particles"),
		WithSize(800, 600),
		WithMinSize(200, 100),
		WithResizable(false),
	} {
		opt(w)
	}
	assert.Equal(t, "particles", w.title)
	assert.Equal(t, 800, w.width)
	assert.Equal(t, 600, w.height)
	assert.Equal(t, 200, w.minWidth)
	assert.Equal(t, 100, w.minHeight)
	assert.False(t, w.resizable)
}
