package window

// WindowBuilderOption is a functional option for configuring a window before it opens.
type WindowBuilderOption func(w *desktopWindow)

// WithTitle sets the title bar text.
func WithTitle(title string) WindowBuilderOption {
	return func(w *desktopWindow) {
		w.title = title
	}
}

// WithSize sets the requested client size. On high-DPI displays the framebuffer reported by Width and Height may be
// larger.
//
// Parameters:
//   - width, height: requested size in screen coordinates
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSize(width, height int) WindowBuilderOption {
	return func(w *desktopWindow) {
		w.width = width
		w.height = height
	}
}

// WithMinSize sets the smallest size the user can shrink the window to. Non-positive values leave that axis
// unbounded.
//
// Parameters:
//   - width, height: minimum size in screen coordinates
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithMinSize(width, height int) WindowBuilderOption {
	return func(w *desktopWindow) {
		w.minWidth = width
		w.minHeight = height
	}
}

// WithResizable sets whether the user can resize the window.
func WithResizable(resizable bool) WindowBuilderOption {
	return func(w *desktopWindow) {
		w.resizable = resizable
	}
}
