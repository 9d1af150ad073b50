// Package texture describes textures that are realized on a device when a pass needs them: an existing
// device texture, an image file loaded through a Loader, or a constructor run against the GPU.
package texture

import (
	"context"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/cockroachdb/errors"
)

// Runtime is what a texture needs to realize itself.
type Runtime interface {
	// Device returns the device textures are created on.
	Device() device.Device

	// TextureLoader returns the loader used for path textures.
	TextureLoader() Loader
}

// Future produces a device texture when the texture is first resolved.
type Future func(ctx context.Context, rt Runtime) (device.Texture, error)

type representation interface {
	isRepresentation()
}

type raw struct {
	texture device.Texture
}

type path struct {
	path    string
	options []LoadOption
}

type future struct {
	fn Future
}

func (raw) isRepresentation()    {}
func (path) isRepresentation()   {}
func (future) isRepresentation() {}

// Texture is a lazily realized texture. Once resolved it caches the device texture.
type Texture struct {
	mu   sync.Mutex
	name string
	rep  representation
}

// New wraps an existing device texture.
//
// Parameters:
//   - name: debug name
//   - tex: the device texture
//
// Returns:
//   - *Texture: the texture
func New(name string, tex device.Texture) *Texture {
	return &Texture{name: name, rep: raw{texture: tex}}
}

// FromPath creates a texture loaded from an image file on first resolve.
//
// Parameters:
//   - name: debug name
//   - filePath: the image file path
//   - options: loader options such as a target size
//
// Returns:
//   - *Texture: the texture
func FromPath(name, filePath string, options ...LoadOption) *Texture {
	return &Texture{name: name, rep: path{path: filePath, options: options}}
}

// FromFuture creates a texture produced by fn on first resolve.
//
// Parameters:
//   - name: debug name
//   - fn: the texture constructor
//
// Returns:
//   - *Texture: the texture
func FromFuture(name string, fn Future) *Texture {
	return &Texture{name: name, rep: future{fn: fn}}
}

// Empty creates a texture that allocates an uninitialized device texture from desc on first resolve.
//
// Parameters:
//   - name: debug name, also used as the descriptor label when it has none
//   - desc: the texture descriptor
//
// Returns:
//   - *Texture: the texture
func Empty(name string, desc device.TextureDescriptor) *Texture {
	desc.Label = common.Coalesce(desc.Label, name)
	return FromFuture(name, func(_ context.Context, rt Runtime) (device.Texture, error) {
		return createTexture(rt.Device(), desc)
	})
}

func createTexture(dev device.Device, desc device.TextureDescriptor) (device.Texture, error) {
	tex, err := dev.NewTexture(desc)
	if err != nil {
		return nil, common.ResourceCreationError(err, "unable to create texture %q", desc.Label)
	}
	return tex, nil
}

// EmptyCopy creates a texture with the same descriptor as t, resolving t first. Options override
// individual descriptor fields.
//
// Parameters:
//   - options: descriptor overrides
//
// Returns:
//   - *Texture: the copy, named "Copy of <name>" unless overridden
func (t *Texture) EmptyCopy(options ...CopyOption) *Texture {
	name := "Copy of " + common.Coalesce(t.name, "unnamed texture")
	return FromFuture(name, func(ctx context.Context, rt Runtime) (device.Texture, error) {
		source, err := t.Resolve(ctx, rt)
		if err != nil {
			return nil, err
		}
		desc := source.Descriptor()
		desc.Label = name
		for _, opt := range options {
			opt(&desc)
		}
		return createTexture(rt.Device(), desc)
	})
}

// Name returns the debug name.
func (t *Texture) Name() string {
	return t.name
}

// Resolve realizes the texture and caches the result. Concurrent calls wait for the first one.
//
// Parameters:
//   - ctx: bounds loading and construction
//   - rt: provides the device and loader
//
// Returns:
//   - device.Texture: the device texture
//   - error: the load or construction error
func (t *Texture) Resolve(ctx context.Context, rt Runtime) (device.Texture, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		tex device.Texture
		err error
	)
	switch rep := t.rep.(type) {
	case raw:
		return rep.texture, nil
	case path:
		loader := rt.TextureLoader()
		if loader == nil {
			return nil, common.MissingBackingError("no texture loader for %q", rep.path)
		}
		tex, err = loader.Load(ctx, rt.Device(), rep.path, rep.options...)
	case future:
		tex, err = rep.fn(ctx, rt)
	default:
		panic(errors.AssertionFailedf("unhandled texture representation %T", rep))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve texture %q", t.name)
	}
	if tex == nil {
		return nil, common.MissingBackingError("texture %q resolved to nothing", t.name)
	}

	t.rep = raw{texture: tex}
	common.Logger().Debug("texture resolved", "texture", t.name, "width", tex.Descriptor().Width, "height", tex.Descriptor().Height)
	return tex, nil
}

// Resolved returns the device texture if the texture has been resolved.
//
// Returns:
//   - device.Texture: the device texture
//   - bool: false while the texture is still pending
func (t *Texture) Resolved() (device.Texture, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.rep.(raw); ok {
		return r.texture, true
	}
	return nil, false
}
