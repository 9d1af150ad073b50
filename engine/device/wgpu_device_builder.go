package device

import "github.com/cogentcore/webgpu/wgpu"

// WGPUDeviceBuilderOption is a functional option for configuring a wgpuDevice.
// Use the With* functions to create options.
type WGPUDeviceBuilderOption func(d *wgpuDevice)

// WithLabel sets the debug label of the device.
//
// Parameters:
//   - label: the device label
//
// Returns:
//   - WGPUDeviceBuilderOption: option function to apply
func WithLabel(label string) WGPUDeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.label = label
	}
}

// WithForceFallbackAdapter requests the software fallback adapter (for example lavapipe or WARP)
// instead of a hardware adapter.
//
// Parameters:
//   - force: true to force the fallback adapter
//
// Returns:
//   - WGPUDeviceBuilderOption: option function to apply
func WithForceFallbackAdapter(force bool) WGPUDeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.forceFallbackAdapter = force
	}
}

// WithDefaultLibrarySource sets the WGSL source compiled into the device's default library.
//
// Parameters:
//   - label: the library label
//   - source: the WGSL source
//
// Returns:
//   - WGPUDeviceBuilderOption: option function to apply
func WithDefaultLibrarySource(label, source string) WGPUDeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.defaultLibrary = &LibraryDescriptor{Label: label, Source: source}
	}
}

// WithCompatibleSurface requests an adapter able to present to the surface described by desc.
// The surface is created alongside the device and returned by PrimarySurface.
//
// Parameters:
//   - desc: the platform surface descriptor, typically from a window
//
// Returns:
//   - WGPUDeviceBuilderOption: option function to apply
func WithCompatibleSurface(desc *wgpu.SurfaceDescriptor) WGPUDeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.surfaceDescriptor = desc
	}
}

// WithPresentMode sets the present mode used when configuring surfaces. Defaults to FIFO (vsync).
//
// Parameters:
//   - mode: the wgpu present mode
//
// Returns:
//   - WGPUDeviceBuilderOption: option function to apply
func WithPresentMode(mode wgpu.PresentMode) WGPUDeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.presentMode = mode
	}
}
