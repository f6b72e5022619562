package common

// Virtual key codes for cross-platform input handling.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyW     = 87  // W key (ASCII)
	KeyA     = 65  // A key (ASCII)
	KeyS     = 83  // S key (ASCII)
	KeyD     = 68  // D key (ASCII)
	KeyQ     = 81  // Q key (ASCII)
	KeyE     = 69  // E key (ASCII)
	KeySpace = 32  // Spacebar (ASCII)
	KeyEsc   = 256 // Escape key (GLFW)
)

// Function keys drive the runtime render toggles.
const (
	KeyF1  = 290
	KeyF2  = 291
	KeyF3  = 292
	KeyF5  = 294
	KeyF6  = 295
	KeyF7  = 296
	KeyF8  = 297
	KeyF9  = 298
	KeyF10 = 299
)

// Additional non-printable keys
const (
	KeyLeftShift  = 340 // Left Shift (GLFW)
	KeyRightShift = 344 // Right Shift (GLFW)
)

// Mouse buttons, matching GLFW button indices.
const (
	MouseButtonLeft  = 0
	MouseButtonRight = 1
)
