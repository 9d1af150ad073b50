package shader

import (
	"context"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/texture"
	"github.com/cockroachdb/errors"
)

// drawingContext is the drawable of the current frame and the descriptor that targets it.
type drawingContext struct {
	drawable   device.Drawable
	descriptor *device.RenderPassDescriptor
}

// RenderPassDescriptor decides where a RasterShader draws. Use DrawableDescriptor,
// CustomDescriptor, FutureDescriptor or TextureTarget.
type RenderPassDescriptor interface {
	resolve(ctx context.Context, rt Runtime, drawing drawingContext) (device.RenderPassDescriptor, error)
}

// DescriptorFuture builds a render pass descriptor when the shader is encoded.
type DescriptorFuture func(ctx context.Context, rt Runtime) (device.RenderPassDescriptor, error)

type drawableDescriptor struct {
	load *device.LoadAction
}

type customDescriptor struct {
	desc device.RenderPassDescriptor
}

type futureDescriptor struct {
	fn DescriptorFuture
}

// DrawableDescriptor draws into the drawable handed to the pass. A non-nil load overrides the
// load action of the first color attachment.
//
// Parameters:
//   - load: optional load action override
//
// Returns:
//   - RenderPassDescriptor: the descriptor
func DrawableDescriptor(load *device.LoadAction) RenderPassDescriptor {
	return drawableDescriptor{load: load}
}

// CustomDescriptor draws with a fixed descriptor.
func CustomDescriptor(desc device.RenderPassDescriptor) RenderPassDescriptor {
	return customDescriptor{desc: desc}
}

// FutureDescriptor builds the descriptor with fn every time the shader is encoded.
func FutureDescriptor(fn DescriptorFuture) RenderPassDescriptor {
	return futureDescriptor{fn: fn}
}

// TextureTarget draws into tex, resolving it when the shader is encoded.
//
// Parameters:
//   - tex: the render target
//   - load: the load action
//   - store: the store action
//
// Returns:
//   - RenderPassDescriptor: the descriptor
func TextureTarget(tex *texture.Texture, load device.LoadAction, store device.StoreAction) RenderPassDescriptor {
	return FutureDescriptor(func(ctx context.Context, rt Runtime) (device.RenderPassDescriptor, error) {
		resolved, err := tex.Resolve(ctx, rt)
		if err != nil {
			return device.RenderPassDescriptor{}, err
		}
		return device.RenderPassDescriptor{
			ColorAttachments: []device.ColorAttachment{{
				Texture:     resolved,
				LoadAction:  load,
				StoreAction: store,
			}},
		}, nil
	})
}

func (d drawableDescriptor) resolve(_ context.Context, _ Runtime, drawing drawingContext) (device.RenderPassDescriptor, error) {
	if drawing.descriptor == nil {
		return device.RenderPassDescriptor{}, common.MissingBackingError("no drawing context was set")
	}
	desc := *drawing.descriptor
	if d.load != nil && len(desc.ColorAttachments) > 0 {
		desc.ColorAttachments = append([]device.ColorAttachment(nil), desc.ColorAttachments...)
		desc.ColorAttachments[0].LoadAction = *d.load
	}
	return desc, nil
}

func (d customDescriptor) resolve(context.Context, Runtime, drawingContext) (device.RenderPassDescriptor, error) {
	return d.desc, nil
}

func (d futureDescriptor) resolve(ctx context.Context, rt Runtime, _ drawingContext) (device.RenderPassDescriptor, error) {
	desc, err := d.fn(ctx, rt)
	if err != nil {
		return device.RenderPassDescriptor{}, errors.Wrap(err, "failed to build render pass descriptor")
	}
	return desc, nil
}
