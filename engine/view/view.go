// Package view drives a draw callback from a surface, either on demand or at a fixed rate, and
// connects it to a glfw window.
package view

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/shader"
	"github.com/Carmen-Shannon/oxy-gpu/engine/window"
	"github.com/cockroachdb/errors"
)

// DrawFunc renders one frame into drawable. desc targets the drawable; passing both to
// engine.WithDrawable presents the frame when the pass commits.
type DrawFunc func(ctx context.Context, g engine.GPU, drawable device.Drawable, desc device.RenderPassDescriptor) error

// PassDraw returns a DrawFunc executing shaders as one pass on the drawable.
//
// Parameters:
//   - shaders: the shaders of the frame, in order
//
// Returns:
//   - DrawFunc: the draw callback
func PassDraw(shaders ...shader.Shader) DrawFunc {
	pass := engine.NewPass(shaders...).WithLabel("view frame")
	return func(ctx context.Context, g engine.GPU, drawable device.Drawable, desc device.RenderPassDescriptor) error {
		return g.Execute(ctx, pass, engine.WithDrawable(drawable, desc))
	}
}

// UpdateProcedure decides when a view draws.
type UpdateProcedure struct {
	interval time.Duration
}

// Manual draws only when View.Draw is called.
func Manual() UpdateProcedure {
	return UpdateProcedure{}
}

// Rate draws every interval while the view runs. Intervals <= 0 are Manual.
func Rate(interval time.Duration) UpdateProcedure {
	if interval <= 0 {
		return Manual()
	}
	return UpdateProcedure{interval: interval}
}

// IsManual reports whether the procedure only draws on demand.
func (p UpdateProcedure) IsManual() bool {
	return p.interval <= 0
}

// Interval returns the redraw interval, zero for Manual.
func (p UpdateProcedure) Interval() time.Duration {
	return p.interval
}

// View owns a surface and draws frames into it.
type View struct {
	mu          sync.Mutex
	gpu         engine.GPU
	surface     device.Surface
	ownsSurface bool
	window      window.Window
	draw        DrawFunc

	procedure        UpdateProcedure
	procedureChannel chan UpdateProcedure

	loadAction device.LoadAction
	clearColor [4]float64
	width      int
	height     int

	// drawing is set while a frame is in flight. Draws arriving meanwhile are dropped.
	drawing atomic.Bool
}

// NewView creates a view drawing into surface. When a size is set through WithSize the surface is
// configured immediately; otherwise Resize must be called before the first draw.
//
// Parameters:
//   - g: the GPU frames execute on
//   - surface: the surface drawables come from
//   - draw: renders a frame
//   - options: functional options to configure the view
//
// Returns:
//   - *View: the view
//   - error: error if an argument is missing or the surface cannot be configured
func NewView(g engine.GPU, surface device.Surface, draw DrawFunc, options ...ViewBuilderOption) (*View, error) {
	if g == nil || surface == nil {
		return nil, common.MissingBackingError("a view needs a GPU and a surface")
	}
	if draw == nil {
		return nil, errors.New("a view needs a draw function")
	}

	v := &View{
		gpu:              g,
		surface:          surface,
		draw:             draw,
		procedure:        Manual(),
		procedureChannel: make(chan UpdateProcedure, 1),
		loadAction:       device.LoadActionClear,
		clearColor:       [4]float64{0, 0, 0, 1},
	}
	for _, opt := range options {
		opt(v)
	}
	if v.width > 0 && v.height > 0 {
		if err := v.Resize(v.width, v.height); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// NewWindowView creates a view presenting to a glfw window. The GPU must run on a wgpu device; its
// primary surface is used when it was created with a compatible surface, otherwise a surface is
// created from the window. The surface follows the window's framebuffer size.
//
// Parameters:
//   - g: the GPU frames execute on
//   - w: the window
//   - draw: renders a frame
//   - options: functional options to configure the view
//
// Returns:
//   - *View: the view; Run drives the window's message loop
//   - error: error if the GPU has no wgpu device or the surface cannot be created
func NewWindowView(g engine.GPU, w window.Window, draw DrawFunc, options ...ViewBuilderOption) (*View, error) {
	if g == nil {
		return nil, common.MissingBackingError("a view needs a GPU")
	}
	wdev, ok := g.Device().(device.WGPUDevice)
	if !ok {
		return nil, common.MissingBackingError("window views need a wgpu device, the GPU runs on %v", g.Device().Backend())
	}
	if w == nil {
		return nil, common.MissingBackingError("window view needs a window")
	}

	surface := wdev.PrimarySurface()
	owns := false
	if surface == nil {
		desc := w.SurfaceDescriptor()
		if desc == nil {
			return nil, common.MissingBackingError("window %q has no surface", w.Title())
		}
		var err error
		if surface, err = wdev.NewSurface(desc); err != nil {
			return nil, err
		}
		owns = true
	}

	v, err := NewView(g, surface, draw, append([]ViewBuilderOption{WithSize(w.Width(), w.Height())}, options...)...)
	if err != nil {
		if owns {
			surface.Release()
		}
		return nil, err
	}
	v.window = w
	v.ownsSurface = owns

	w.SetResizeCallback(func(width, height int) {
		if err := v.Resize(width, height); err != nil {
			common.Logger().Warn("failed to resize view", "width", width, "height", height, "error", err)
		}
	})
	return v, nil
}

// Surface returns the surface the view draws into.
func (v *View) Surface() device.Surface {
	return v.surface
}

// Size returns the configured surface size.
func (v *View) Size() (width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.width, v.height
}

// UpdateProcedure returns the current update procedure.
func (v *View) UpdateProcedure() UpdateProcedure {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.procedure
}

// SetUpdateProcedure switches between manual and rate-driven drawing. A running view picks the
// change up immediately.
//
// Parameters:
//   - p: the new procedure
func (v *View) SetUpdateProcedure(p UpdateProcedure) {
	v.mu.Lock()
	v.procedure = p
	v.mu.Unlock()

	// only the latest procedure matters
	for {
		select {
		case v.procedureChannel <- p:
			return
		default:
		}
		select {
		case <-v.procedureChannel:
		default:
		}
	}
}

// Resize reconfigures the surface.
//
// Parameters:
//   - width: width in pixels
//   - height: height in pixels
//
// Returns:
//   - error: error if the surface cannot be configured
func (v *View) Resize(width, height int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.surface.Configure(width, height); err != nil {
		return errors.Wrapf(err, "failed to resize view to %dx%d", width, height)
	}
	v.width, v.height = width, height
	return nil
}

// Draw renders one frame. A draw requested while another is in flight is dropped.
//
// Parameters:
//   - ctx: passed to the draw function
//
// Returns:
//   - bool: true if a frame was drawn
//   - error: error if no drawable could be acquired or the draw function failed
func (v *View) Draw(ctx context.Context) (bool, error) {
	if !v.drawing.CompareAndSwap(false, true) {
		common.Logger().Debug("draw dropped, previous frame still in flight")
		return false, nil
	}
	defer v.drawing.Store(false)

	drawable, err := v.surface.NextDrawable()
	if err != nil {
		return false, errors.Wrap(err, "failed to acquire drawable")
	}
	if err := v.draw(ctx, v.gpu, drawable, v.descriptor(drawable)); err != nil {
		return false, err
	}
	return true, nil
}

func (v *View) descriptor(drawable device.Drawable) device.RenderPassDescriptor {
	v.mu.Lock()
	defer v.mu.Unlock()
	return device.RenderPassDescriptor{ColorAttachments: []device.ColorAttachment{{
		Texture:     drawable.Texture(),
		LoadAction:  v.loadAction,
		StoreAction: device.StoreActionStore,
		ClearColor:  v.clearColor,
	}}}
}

// Run draws according to the update procedure until ctx is done. A window view also runs the
// window's message loop on the calling goroutine and returns when the window closes.
//
// Parameters:
//   - ctx: stops the view when done
func (v *View) Run(ctx context.Context) {
	if v.window == nil {
		v.handleUpdates(ctx)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v.handleUpdates(ctx)
	}()

	v.window.ProcessMessages(ctx)
	cancel()
	wg.Wait()
}

// handleUpdates fires draws at the procedure's rate and listens for procedure changes.
// Panics inside a draw stop the loop instead of the process, except usage violations and missing
// backing stores, which are programming errors and propagate.
func (v *View) handleUpdates(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok && (errors.Is(err, common.ErrUsageViolation) || errors.Is(err, common.ErrMissingBacking)) {
				panic(err)
			}
			common.Logger().Error("view update loop recovered from panic", "panic", r)
		}
	}()

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	apply := func(p UpdateProcedure) {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		if !p.IsManual() {
			ticker = time.NewTicker(p.Interval())
			tick = ticker.C
		}
	}
	apply(v.UpdateProcedure())
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if _, err := v.Draw(ctx); err != nil && ctx.Err() == nil {
				common.Logger().Warn("frame failed", "error", err)
			}
		case p := <-v.procedureChannel:
			apply(p)
		}
	}
}

// Release frees the surface when the view created it.
func (v *View) Release() {
	if v.ownsSurface {
		v.surface.Release()
	}
}
