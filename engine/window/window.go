package window

import (
	"context"
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// Window is a platform window a view can present to.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetKeyDownCallback sets the callback for key press events.
	//
	// Parameters:
	//   - callback: function receiving the glfw key code
	SetKeyDownCallback(callback func(keyCode uint32))

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor for the platform window, created by the
	// wgpuglfw bridge.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if the window is closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true if the window is still open.
	IsRunning() bool

	// Close destroys the window and releases platform resources.
	//
	// Returns:
	//   - error: error if the window was never opened
	Close() error

	// ProcessMessages runs the message loop on the calling goroutine until the window closes or ctx is done.
	// The update callback runs once per iteration.
	//
	// Parameters:
	//   - ctx: stops the loop when done
	ProcessMessages(ctx context.Context)

	// Title returns the window title.
	Title() string

	// Width returns the framebuffer width in pixels.
	Width() int

	// Height returns the framebuffer height in pixels.
	Height() int
}

type gpuWindow struct {
	mu sync.Mutex

	title     string
	resizable bool
	maxWidth  int
	maxHeight int
	minWidth  int
	minHeight int
	width     int
	height    int

	// platform holds the glfw state once the window is open.
	platform *glfwWindow

	onUpdate  func()
	onResize  func(width, height int)
	onKeyDown func(keyCode uint32)
}

var _ Window = &gpuWindow{}

// NewWindow opens a window. glfw requires this and ProcessMessages to run on the main goroutine;
// the calling goroutine is locked to its OS thread.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the open window
//   - error: error if glfw cannot be initialized or the window cannot be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &gpuWindow{
		title:     "oxy-gpu",
		resizable: true,
		maxWidth:  3840,
		maxHeight: 2160,
		minWidth:  64,
		minHeight: 64,
		width:     800,
		height:    600,
	}
	for _, opt := range options {
		opt(w)
	}
	if w.width <= 0 || w.height <= 0 {
		return nil, errors.Newf("invalid window size %dx%d", w.width, w.height)
	}
	if err := openPlatformWindow(w); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *gpuWindow) SetUpdateCallback(callback func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onUpdate = callback
}

func (w *gpuWindow) SetResizeCallback(callback func(width, height int)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onResize = callback
}

func (w *gpuWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onKeyDown = callback
}

func (w *gpuWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformSurfaceDescriptor(w)
}

func (w *gpuWindow) IsRunning() bool {
	return platformIsRunning(w)
}

func (w *gpuWindow) Close() error {
	return platformClose(w)
}

func (w *gpuWindow) ProcessMessages(ctx context.Context) {
	for w.IsRunning() {
		if ctx.Err() != nil {
			return
		}
		if !platformPollEvents(w) {
			return
		}

		w.mu.Lock()
		update := w.onUpdate
		w.mu.Unlock()
		if update != nil {
			update()
		}

		runtime.Gosched()
	}
}

func (w *gpuWindow) Title() string {
	return w.title
}

func (w *gpuWindow) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

func (w *gpuWindow) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}

// resized stores the framebuffer size and notifies the resize callback.
func (w *gpuWindow) resized(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	callback := w.onResize
	w.mu.Unlock()
	if callback != nil {
		callback(width, height)
	}
}

func (w *gpuWindow) keyDown(key uint32) {
	w.mu.Lock()
	callback := w.onKeyDown
	w.mu.Unlock()
	if callback != nil {
		callback(key)
	}
}
