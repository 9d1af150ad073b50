// Package shader holds the units of work a pass is made of. Compute, raster and copy shaders
// realize their resources during Initialize and record commands into a shared command buffer
// during Encode.
package shader

import (
	"context"

	"github.com/Carmen-Shannon/oxy-gpu/engine/buffer"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/texture"
	"github.com/cockroachdb/errors"
)

// Runtime is what a shader needs from the GPU it runs on.
type Runtime interface {
	texture.Runtime

	// Library returns the library entry points are compiled from.
	Library() device.Library
}

// Shader is one step of a pass.
type Shader interface {
	// Initialize compiles the shader's pipeline and realizes its buffers and textures.
	//
	// Parameters:
	//   - ctx: bounds texture loads and buffer realization
	//   - rt: the runtime to compile and allocate on
	//
	// Returns:
	//   - error: the first compilation or realization error
	Initialize(ctx context.Context, rt Runtime) error

	// Encode records the shader's work into cb.
	//
	// Parameters:
	//   - ctx: bounds any late resolution
	//   - rt: the runtime the shader was initialized on
	//   - cb: the pass's command buffer
	//
	// Returns:
	//   - error: the first binding or encoding error
	Encode(ctx context.Context, rt Runtime, cb device.CommandBuffer) error
}

// DrawingShader is a shader that can render into a drawable handed to the pass.
type DrawingShader interface {
	Shader

	// SetDrawingContext gives the shader the drawable of the current frame and a descriptor targeting it.
	SetDrawingContext(drawable device.Drawable, desc device.RenderPassDescriptor)
}

// Resources exposes the buffers and textures a shader binds, grouped by binding stage.
type Resources interface {
	AllTextures() [][]*texture.Texture
	AllBuffers() [][]buffer.Erased
}

// initializeBuffers realizes every buffer in list order.
func initializeBuffers(ctx context.Context, rt Runtime, buffers []buffer.Erased) error {
	for _, b := range buffers {
		if err := b.Manager().Initialize(ctx, rt.Device()); err != nil {
			return errors.Wrapf(err, "failed to initialize buffer %q", b.Label())
		}
	}
	return nil
}

// resolveTextures resolves every texture in list order.
func resolveTextures(ctx context.Context, rt Runtime, textures []*texture.Texture) ([]device.Texture, error) {
	resolved := make([]device.Texture, 0, len(textures))
	for _, t := range textures {
		tex, err := t.Resolve(ctx, rt)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, tex)
	}
	return resolved, nil
}

// encodeBuffers binds buffers to consecutive indices starting at 0.
func encodeBuffers(enc device.ResourceEncoder, buffers []buffer.Erased) error {
	for i, b := range buffers {
		if err := b.Manager().Encode(enc, i); err != nil {
			return errors.Wrapf(err, "failed to encode buffer %q at index %d", b.Label(), i)
		}
	}
	return nil
}

// encodeTextures binds textures as one range starting at 0. An empty list binds nothing.
func encodeTextures(ctx context.Context, rt Runtime, enc device.ResourceEncoder, textures []*texture.Texture) error {
	if len(textures) == 0 {
		return nil
	}
	resolved, err := resolveTextures(ctx, rt, textures)
	if err != nil {
		return err
	}
	enc.SetTextures(resolved)
	return nil
}
