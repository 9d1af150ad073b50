package device

// SoftwareDeviceBuilderOption is a functional option for configuring a softwareDevice.
// Use the With* functions to create options.
type SoftwareDeviceBuilderOption func(d *softwareDevice)

// WithSoftwareName sets the device name.
//
// Parameters:
//   - name: the device name
//
// Returns:
//   - SoftwareDeviceBuilderOption: option function to apply
func WithSoftwareName(name string) SoftwareDeviceBuilderOption {
	return func(d *softwareDevice) {
		d.name = name
	}
}

// WithKernels registers software entry points. May be given more than once; later registrations win.
//
// Parameters:
//   - kernels: the entry points to register
//
// Returns:
//   - SoftwareDeviceBuilderOption: option function to apply
func WithKernels(kernels Kernels) SoftwareDeviceBuilderOption {
	return func(d *softwareDevice) {
		d.kernels = d.kernels.Merge(kernels)
	}
}

// WithComputeKernel registers a single compute entry point.
//
// Parameters:
//   - name: the entry point name
//   - kernel: the kernel
//
// Returns:
//   - SoftwareDeviceBuilderOption: option function to apply
func WithComputeKernel(name string, kernel ComputeKernel) SoftwareDeviceBuilderOption {
	return WithKernels(Kernels{Compute: map[string]ComputeKernel{name: kernel}})
}

// WithVertexKernel registers a single vertex entry point.
//
// Parameters:
//   - name: the entry point name
//   - kernel: the kernel
//
// Returns:
//   - SoftwareDeviceBuilderOption: option function to apply
func WithVertexKernel(name string, kernel VertexKernel) SoftwareDeviceBuilderOption {
	return WithKernels(Kernels{Vertex: map[string]VertexKernel{name: kernel}})
}

// WithFragmentKernel registers a single fragment entry point.
//
// Parameters:
//   - name: the entry point name
//   - kernel: the kernel
//
// Returns:
//   - SoftwareDeviceBuilderOption: option function to apply
func WithFragmentKernel(name string, kernel FragmentKernel) SoftwareDeviceBuilderOption {
	return WithKernels(Kernels{Fragment: map[string]FragmentKernel{name: kernel}})
}

// WithSoftwareThreadGroupSize sets the thread group size reported by software compute pipelines.
// Defaults to 8x8x1.
//
// Parameters:
//   - width, height, depth: the thread group size
//
// Returns:
//   - SoftwareDeviceBuilderOption: option function to apply
func WithSoftwareThreadGroupSize(width, height, depth int) SoftwareDeviceBuilderOption {
	return func(d *softwareDevice) {
		d.threadGroup.Width, d.threadGroup.Height, d.threadGroup.Depth = width, height, depth
	}
}
