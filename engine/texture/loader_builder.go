package texture

import "github.com/Carmen-Shannon/oxy-gpu/engine/device"

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*imageLoader)

// WithCache is an option builder that enables or disables the texture cache.
//
// Parameters:
//   - enabled: whether loaded textures are cached
//
// Returns:
//   - LoaderBuilderOption: a function that applies the cache option to a loader
func WithCache(enabled bool) LoaderBuilderOption {
	return func(l *imageLoader) {
		l.cacheEnabled = enabled
	}
}

// WithDefaultFormat is an option builder that sets the format used when a load does not choose one.
//
// Parameters:
//   - format: the default pixel format
//
// Returns:
//   - LoaderBuilderOption: a function that applies the format option to a loader
func WithDefaultFormat(format device.PixelFormat) LoaderBuilderOption {
	return func(l *imageLoader) {
		l.defaults.Format = format
	}
}

// WithDefaultUsage is an option builder that sets the usage used when a load does not choose one.
//
// Parameters:
//   - usage: the default texture usage
//
// Returns:
//   - LoaderBuilderOption: a function that applies the usage option to a loader
func WithDefaultUsage(usage device.TextureUsage) LoaderBuilderOption {
	return func(l *imageLoader) {
		l.defaults.Usage = usage
	}
}

// WithTexture is an option builder that pre-populates the cache with a texture for dev and path,
// keyed with the loader's default options.
//
// Parameters:
//   - dev: the device the texture lives on
//   - path: the cache path
//   - tex: the texture to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the texture option to a loader
func WithTexture(dev device.Device, path string, tex device.Texture) LoaderBuilderOption {
	return func(l *imageLoader) {
		l.cache[cacheKey{device: dev, path: path, options: l.defaults}] = tex
	}
}
