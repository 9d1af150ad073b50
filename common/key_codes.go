package common

// Virtual key codes delivered by window key callbacks.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeySpace = 32  // Spacebar (ASCII), requests a frame from a manual view
	KeyP     = 80  // P key (ASCII), pauses or resumes a rate-driven view
	KeyEsc   = 256 // Escape key (GLFW), closes the window
)
