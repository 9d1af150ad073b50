package texture

import (
	"context"
	"io"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/cockroachdb/errors"
)

// LoadOptions controls how an image becomes a texture.
type LoadOptions struct {
	// Width and Height resize the image. Zero keeps the source size for that dimension.
	Width, Height int
	// Format is the texture format. Only 8-bit RGBA and BGRA formats can be loaded from images.
	Format device.PixelFormat
	// Usage is the texture usage. Zero uses the loader default.
	Usage device.TextureUsage
	// StorageMode is the texture storage mode.
	StorageMode device.StorageMode
}

// LoadOption adjusts LoadOptions for one load.
type LoadOption func(*LoadOptions)

// WithLoadSize resizes the image to width x height with a bilinear filter.
//
// Parameters:
//   - width: target width, zero keeps the source width
//   - height: target height, zero keeps the source height
//
// Returns:
//   - LoadOption: option function to apply
func WithLoadSize(width, height int) LoadOption {
	return func(o *LoadOptions) {
		o.Width = width
		o.Height = height
	}
}

// WithLoadFormat sets the texture format.
func WithLoadFormat(format device.PixelFormat) LoadOption {
	return func(o *LoadOptions) {
		o.Format = format
	}
}

// WithLoadUsage sets the texture usage.
func WithLoadUsage(usage device.TextureUsage) LoadOption {
	return func(o *LoadOptions) {
		o.Usage = usage
	}
}

// WithLoadStorageMode sets the texture storage mode.
func WithLoadStorageMode(mode device.StorageMode) LoadOption {
	return func(o *LoadOptions) {
		o.StorageMode = mode
	}
}

// Loader turns encoded images into device textures.
type Loader interface {
	// Load decodes the image file at path and uploads it to a new texture on dev.
	// Results are cached per device, path and options when caching is enabled.
	//
	// Parameters:
	//   - ctx: checked before decoding
	//   - dev: the device to create the texture on
	//   - path: the image file path
	//   - options: load options
	//
	// Returns:
	//   - device.Texture: the loaded texture
	//   - error: error if decoding or texture creation fails
	Load(ctx context.Context, dev device.Device, path string, options ...LoadOption) (device.Texture, error)

	// LoadReader decodes an image stream and uploads it to a new texture on dev. Stream loads are never cached.
	//
	// Parameters:
	//   - ctx: checked before decoding
	//   - dev: the device to create the texture on
	//   - name: label for the texture
	//   - r: the encoded image stream
	//   - options: load options
	//
	// Returns:
	//   - device.Texture: the loaded texture
	//   - error: error if decoding or texture creation fails
	LoadReader(ctx context.Context, dev device.Device, name string, r io.Reader, options ...LoadOption) (device.Texture, error)

	// Forget drops every cached texture created on dev without releasing it.
	Forget(dev device.Device)
}

type cacheKey struct {
	device  device.Device
	path    string
	options LoadOptions
}

// imageLoader is the implementation of the Loader interface.
type imageLoader struct {
	mu sync.RWMutex

	cacheEnabled bool
	defaults     LoadOptions

	cache map[cacheKey]device.Texture
}

var _ Loader = &imageLoader{}

// NewLoader creates an image Loader. Caching is enabled unless disabled with WithCache.
//
// Parameters:
//   - options: variadic list of LoaderBuilderOption functions to configure the loader
//
// Returns:
//   - Loader: the created loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &imageLoader{
		cacheEnabled: true,
		defaults: LoadOptions{
			Format:      device.PixelFormatRGBA8Unorm,
			Usage:       device.TextureUsageShaderRead | device.TextureUsageCopySource | device.TextureUsageCopyDestination,
			StorageMode: device.StorageModePrivate,
		},
		cache: make(map[cacheKey]device.Texture),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *imageLoader) resolveOptions(options []LoadOption) LoadOptions {
	opts := l.defaults
	for _, opt := range options {
		opt(&opts)
	}
	opts.Usage = common.Coalesce(opts.Usage, l.defaults.Usage)
	return opts
}

func (l *imageLoader) Load(ctx context.Context, dev device.Device, path string, options ...LoadOption) (device.Texture, error) {
	opts := l.resolveOptions(options)
	key := cacheKey{device: dev, path: path, options: opts}

	if l.cacheEnabled {
		l.mu.RLock()
		tex, ok := l.cache[key]
		l.mu.RUnlock()
		if ok {
			return tex, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "load texture %s", path)
	}
	staging, err := common.DecodeImageFile(path, opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}
	tex, err := upload(dev, path, staging, opts)
	if err != nil {
		return nil, err
	}

	if l.cacheEnabled {
		l.mu.Lock()
		if cached, ok := l.cache[key]; ok {
			l.mu.Unlock()
			tex.Release()
			return cached, nil
		}
		l.cache[key] = tex
		l.mu.Unlock()
	}

	common.Logger().Debug("texture loaded", "path", path, "width", staging.Width, "height", staging.Height, "format", opts.Format)
	return tex, nil
}

func (l *imageLoader) LoadReader(ctx context.Context, dev device.Device, name string, r io.Reader, options ...LoadOption) (device.Texture, error) {
	opts := l.resolveOptions(options)
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "load texture %s", name)
	}
	staging, err := common.DecodeImage(r, opts.Width, opts.Height)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode texture %s", name)
	}
	return upload(dev, name, staging, opts)
}

func (l *imageLoader) Forget(dev device.Device) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.cache {
		if key.device == dev {
			delete(l.cache, key)
		}
	}
}

// upload creates a texture for staging and writes its pixels, swizzling to BGRA when asked.
func upload(dev device.Device, label string, staging common.TextureStagingData, opts LoadOptions) (device.Texture, error) {
	pixels := staging.Pixels
	switch opts.Format {
	case device.PixelFormatRGBA8Unorm, device.PixelFormatRGBA8UnormSrgb:
	case device.PixelFormatBGRA8Unorm, device.PixelFormatBGRA8UnormSrgb:
		pixels = make([]byte, len(staging.Pixels))
		for i := 0; i+3 < len(pixels); i += 4 {
			pixels[i+0] = staging.Pixels[i+2]
			pixels[i+1] = staging.Pixels[i+1]
			pixels[i+2] = staging.Pixels[i+0]
			pixels[i+3] = staging.Pixels[i+3]
		}
	default:
		return nil, errors.Newf("cannot load image %s as %s", label, opts.Format)
	}

	tex, err := dev.NewTexture(device.TextureDescriptor{
		Label:       label,
		Format:      opts.Format,
		Width:       int(staging.Width),
		Height:      int(staging.Height),
		Depth:       1,
		StorageMode: opts.StorageMode,
		Usage:       opts.Usage | device.TextureUsageCopyDestination,
	})
	if err != nil {
		return nil, common.ResourceCreationError(err, "unable to create texture for %s", label)
	}
	if err := tex.Upload(pixels); err != nil {
		tex.Release()
		return nil, errors.Wrapf(err, "failed to upload texture %s", label)
	}
	return tex, nil
}
