package device

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cockroachdb/errors"
)

// SoftwareDevice is a Device that executes registered Go kernels on the host. It needs no GPU and is
// used as a fallback and for testing the layers above the device.
type SoftwareDevice interface {
	Device

	// RegisterKernels adds entry points to every library of the device, including ones created earlier.
	//
	// Parameters:
	//   - kernels: the entry points to add; existing names are replaced
	RegisterKernels(kernels Kernels)
}

type softwareDevice struct {
	mu *sync.Mutex

	name        string
	kernels     Kernels
	threadGroup common.Size

	queue    *softwareQueue
	library  *softwareLibrary
	released bool
}

var _ SoftwareDevice = &softwareDevice{}

// NewSoftwareDevice creates a host device. Libraries created on it resolve entry points against
// the registered kernels instead of compiling source.
//
// Parameters:
//   - options: variadic list of SoftwareDeviceBuilderOption functions to configure the device
//
// Returns:
//   - SoftwareDevice: the device
func NewSoftwareDevice(options ...SoftwareDeviceBuilderOption) SoftwareDevice {
	d := &softwareDevice{
		mu:          &sync.Mutex{},
		name:        "oxy-gpu software device",
		threadGroup: common.NewSize(8, 8, 1),
	}
	for _, opt := range options {
		opt(d)
	}
	d.threadGroup = common.NewSize(d.threadGroup.Width, d.threadGroup.Height, d.threadGroup.Depth)
	d.queue = &softwareQueue{device: d, label: d.name + " queue"}
	d.library = &softwareLibrary{label: "default", device: d}

	common.Logger().Debug("software device created", "name", d.name, "kernels", len(d.kernels.names()))
	return d
}

func (d *softwareDevice) Name() string {
	return d.name
}

func (d *softwareDevice) Backend() BackendType {
	return BackendSoftware
}

func (d *softwareDevice) Queue() Queue {
	return d.queue
}

func (d *softwareDevice) RegisterKernels(kernels Kernels) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels = d.kernels.Merge(kernels)
}

func (d *softwareDevice) registeredKernels() Kernels {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.kernels
}

func (d *softwareDevice) isReleased() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

func (d *softwareDevice) NewBuffer(desc BufferDescriptor) (Buffer, error) {
	if d.isReleased() {
		return nil, common.ResourceCreationError(errors.New("device released"), "failed to create buffer %q", desc.Label)
	}
	size := max(desc.Size, uint64(len(desc.Contents)))
	if size == 0 {
		return nil, common.ResourceCreationError(errors.New("zero sized buffer"), "failed to create buffer %q", desc.Label)
	}

	b := &softwareBuffer{
		label: desc.Label,
		mode:  desc.StorageMode,
		size:  size,
		gpu:   make([]byte, size),
	}
	copy(b.gpu, desc.Contents)
	switch desc.StorageMode {
	case StorageModeShared:
		b.cpu = b.gpu
	case StorageModeManaged:
		b.cpu = make([]byte, size)
		copy(b.cpu, desc.Contents)
	}
	return b, nil
}

func (d *softwareDevice) NewTexture(desc TextureDescriptor) (Texture, error) {
	if d.isReleased() {
		return nil, common.ResourceCreationError(errors.New("device released"), "failed to create texture %q", desc.Label)
	}
	if desc.Width <= 0 || desc.Height <= 0 || desc.Depth < 0 {
		return nil, common.ResourceCreationError(
			errors.Newf("invalid extent %dx%dx%d", desc.Width, desc.Height, desc.Depth),
			"failed to create texture %q", desc.Label,
		)
	}
	return newSoftwareTexture(desc), nil
}

// NewLibrary returns a library view over the registered kernels. The source is not compiled.
func (d *softwareDevice) NewLibrary(desc LibraryDescriptor) (Library, error) {
	if d.isReleased() {
		return nil, common.CompilationError(errors.New("device released"), "failed to create library %q", desc.Label)
	}
	return &softwareLibrary{label: desc.Label, device: d}, nil
}

func (d *softwareDevice) DefaultLibrary() (Library, error) {
	return d.library, nil
}

func (d *softwareDevice) NewComputePipeline(lib Library, fn FunctionDescriptor) (ComputePipeline, error) {
	if sl, ok := lib.(*softwareLibrary); !ok || sl.device != d {
		return nil, common.CompilationError(errors.Newf("library %T does not belong to this device", lib), "failed to compile %q", fn.Name)
	}
	kernel, ok := d.registeredKernels().Compute[fn.Name]
	if !ok {
		return nil, common.CompilationError(errors.Newf("no compute kernel %q", fn.Name), "failed to compile %q", fn.Name)
	}

	common.Logger().Debug("software compute pipeline compiled", "function", fn.Name)
	return &softwareComputePipeline{
		label:       fn.Name,
		kernel:      kernel,
		constants:   fn.Constants,
		threadGroup: d.threadGroup,
	}, nil
}

func (d *softwareDevice) NewRenderPipeline(lib Library, desc RenderPipelineDescriptor) (RenderPipeline, error) {
	if sl, ok := lib.(*softwareLibrary); !ok || sl.device != d {
		return nil, common.CompilationError(errors.Newf("library %T does not belong to this device", lib), "failed to compile %q", desc.Label)
	}
	kernels := d.registeredKernels()
	vertex, ok := kernels.Vertex[desc.Vertex.Name]
	if !ok {
		return nil, common.CompilationError(errors.Newf("no vertex kernel %q", desc.Vertex.Name), "failed to compile %q", desc.Label)
	}
	fragment, ok := kernels.Fragment[desc.Fragment.Name]
	if !ok {
		return nil, common.CompilationError(errors.Newf("no fragment kernel %q", desc.Fragment.Name), "failed to compile %q", desc.Label)
	}

	common.Logger().Debug("software render pipeline compiled", "vertex", desc.Vertex.Name, "fragment", desc.Fragment.Name)
	return &softwareRenderPipeline{
		label:             common.Coalesce(desc.Label, desc.Vertex.Name+"/"+desc.Fragment.Name),
		vertex:            vertex,
		fragment:          fragment,
		vertexConstants:   desc.Vertex.Constants,
		fragmentConstants: desc.Fragment.Constants,
		colorFormat:       desc.ColorFormat,
		primitive:         desc.Primitive,
	}, nil
}

func (d *softwareDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
}
