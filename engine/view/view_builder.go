package view

import "github.com/Carmen-Shannon/oxy-gpu/engine/device"

// ViewBuilderOption is a functional option for configuring a View.
type ViewBuilderOption func(*View)

// WithUpdateProcedure sets when the view draws. Defaults to Manual.
//
// Parameters:
//   - p: the update procedure
//
// Returns:
//   - ViewBuilderOption: option function to apply
func WithUpdateProcedure(p UpdateProcedure) ViewBuilderOption {
	return func(v *View) {
		v.procedure = p
	}
}

// WithLoadAction sets the load action of the drawable's color attachment. Defaults to clear.
//
// Parameters:
//   - action: the load action
//
// Returns:
//   - ViewBuilderOption: option function to apply
func WithLoadAction(action device.LoadAction) ViewBuilderOption {
	return func(v *View) {
		v.loadAction = action
	}
}

// WithClearColor sets the color the drawable is cleared to. Defaults to opaque black.
//
// Parameters:
//   - r, g, b, a: the color components in [0, 1]
//
// Returns:
//   - ViewBuilderOption: option function to apply
func WithClearColor(r, g, b, a float64) ViewBuilderOption {
	return func(v *View) {
		v.clearColor = [4]float64{r, g, b, a}
	}
}

// WithSize configures the surface to width x height when the view is created.
//
// Parameters:
//   - width: width in pixels
//   - height: height in pixels
//
// Returns:
//   - ViewBuilderOption: option function to apply
func WithSize(width, height int) ViewBuilderOption {
	return func(v *View) {
		v.width = width
		v.height = height
	}
}
