package window

// WindowBuilderOption is a functional option for configuring a Window before it opens.
type WindowBuilderOption func(w *engineWindow)

// WithTitle sets the initial title bar text.
//
// Parameters:
//   - title: the title
//
// Returns:
//   - WindowBuilderOption: a function that sets the title
func WithTitle(title string) WindowBuilderOption {
	return func(w *engineWindow) {
		w.title = title
	}
}

// WithSize sets the requested framebuffer size. High-DPI displays may report a larger one.
//
// Parameters:
//   - width: the width in pixels
//   - height: the height in pixels
//
// Returns:
//   - WindowBuilderOption: a function that sets the size
func WithSize(width, height int) WindowBuilderOption {
	return func(w *engineWindow) {
		if width > 0 && height > 0 {
			w.width, w.height = width, height
		}
	}
}

// WithSizeLimits bounds interactive resizing.
func WithSizeLimits(minWidth, minHeight, maxWidth, maxHeight int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.minWidth, w.minHeight = minWidth, minHeight
		w.maxWidth, w.maxHeight = maxWidth, maxHeight
	}
}
