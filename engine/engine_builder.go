package engine

import (
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/profiler"
	"github.com/Carmen-Shannon/oxy-gpu/engine/texture"
)

// GPUBuilderOption is a functional option for configuring a GPU.
// Use the With* functions to create options that are applied directly to the gpu instance.
type GPUBuilderOption func(*gpu)

// WithBackend selects how the device is created. Ignored when WithDevice is used.
//
// Parameters:
//   - backend: the backend
//
// Returns:
//   - GPUBuilderOption: option function to apply
func WithBackend(backend Backend) GPUBuilderOption {
	return func(g *gpu) {
		g.backend = backend
	}
}

// WithDevice uses an existing device. The GPU does not release it.
//
// Parameters:
//   - dev: the device
//
// Returns:
//   - GPUBuilderOption: option function to apply
func WithDevice(dev device.Device) GPUBuilderOption {
	return func(g *gpu) {
		g.device = dev
	}
}

// WithLibrarySource compiles a WGSL library and uses it for every shader.
//
// Parameters:
//   - label: debug label of the library
//   - source: the WGSL source
//
// Returns:
//   - GPUBuilderOption: option function to apply
func WithLibrarySource(label, source string) GPUBuilderOption {
	return func(g *gpu) {
		g.librarySource = &device.LibraryDescriptor{Label: label, Source: source}
	}
}

// WithLibrary uses an existing library for every shader. It takes precedence over WithLibrarySource.
//
// Parameters:
//   - lib: the library
//
// Returns:
//   - GPUBuilderOption: option function to apply
func WithLibrary(lib device.Library) GPUBuilderOption {
	return func(g *gpu) {
		g.library = lib
	}
}

// WithTextureLoader replaces the default image loader.
//
// Parameters:
//   - loader: the texture loader
//
// Returns:
//   - GPUBuilderOption: option function to apply
func WithTextureLoader(loader texture.Loader) GPUBuilderOption {
	return func(g *gpu) {
		g.loader = loader
	}
}

// WithForceFallbackAdapter asks wgpu for its software fallback adapter.
//
// Parameters:
//   - force: whether to force the fallback adapter
//
// Returns:
//   - GPUBuilderOption: option function to apply
func WithForceFallbackAdapter(force bool) GPUBuilderOption {
	return func(g *gpu) {
		g.forceFallbackAdapter = force
	}
}

// WithWGPUOptions passes extra options to the wgpu device, such as a compatible window surface.
//
// Parameters:
//   - options: wgpu device options
//
// Returns:
//   - GPUBuilderOption: option function to apply
func WithWGPUOptions(options ...device.WGPUDeviceBuilderOption) GPUBuilderOption {
	return func(g *gpu) {
		g.wgpuOptions = append(g.wgpuOptions, options...)
	}
}

// WithSoftwareKernels registers Go kernels used when the GPU runs on the software device.
// Repeated options are merged.
//
// Parameters:
//   - kernels: the kernels
//
// Returns:
//   - GPUBuilderOption: option function to apply
func WithSoftwareKernels(kernels device.Kernels) GPUBuilderOption {
	return func(g *gpu) {
		g.kernels = g.kernels.Merge(kernels)
	}
}

// WithProfiling enables or disables pass statistics logging.
//
// Parameters:
//   - enabled: if true, passes are recorded by a profiler
//
// Returns:
//   - GPUBuilderOption: option function to apply
func WithProfiling(enabled bool) GPUBuilderOption {
	return func(g *gpu) {
		if !enabled {
			g.profiler = nil
			return
		}
		if g.profiler == nil {
			g.profiler = profiler.NewProfiler()
		}
	}
}
