package engine

import (
	"context"

	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/shader"
)

// Completion runs after a pass's command buffer has completed.
type Completion func(ctx context.Context, g GPU) error

// Pass is an ordered list of shaders executed as one command buffer.
type Pass struct {
	label      string
	shaders    []shader.Shader
	completion Completion
}

// NewPass creates a pass running shaders in order.
//
// Parameters:
//   - shaders: the shaders
//
// Returns:
//   - *Pass: the pass
func NewPass(shaders ...shader.Shader) *Pass {
	return &Pass{shaders: shaders}
}

// WithLabel sets the label used in logs and errors.
func (p *Pass) WithLabel(label string) *Pass {
	p.label = label
	return p
}

// WithCompletion sets the callback run after the pass completes. It is skipped when the pass fails.
func (p *Pass) WithCompletion(fn Completion) *Pass {
	p.completion = fn
	return p
}

// Append adds shaders to the end of the pass.
func (p *Pass) Append(shaders ...shader.Shader) *Pass {
	p.shaders = append(p.shaders, shaders...)
	return p
}

// Label returns the pass label.
func (p *Pass) Label() string {
	return p.label
}

// Shaders returns the shaders in execution order.
func (p *Pass) Shaders() []shader.Shader {
	return p.shaders
}

type execution struct {
	library    device.Library
	drawable   device.Drawable
	descriptor device.RenderPassDescriptor
}

// ExecuteOption configures one GPU.Execute call.
type ExecuteOption func(*execution)

// WithPassLibrary compiles the pass's not yet compiled shaders from lib instead of the GPU's library.
//
// Parameters:
//   - lib: the library
//
// Returns:
//   - ExecuteOption: option function to apply
func WithPassLibrary(lib device.Library) ExecuteOption {
	return func(e *execution) {
		e.library = lib
	}
}

// WithDrawable hands a drawable and a descriptor targeting it to every drawing shader of the pass,
// and presents the drawable when the pass is committed.
//
// Parameters:
//   - drawable: the frame's drawable
//   - desc: a render pass descriptor targeting the drawable
//
// Returns:
//   - ExecuteOption: option function to apply
func WithDrawable(drawable device.Drawable, desc device.RenderPassDescriptor) ExecuteOption {
	return func(e *execution) {
		e.drawable = drawable
		e.descriptor = desc
	}
}
