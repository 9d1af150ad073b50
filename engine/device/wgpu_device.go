package device

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// WGPUDevice is a Device backed by wgpu-native. Besides the Device contract it can create
// presentable surfaces for platform windows.
type WGPUDevice interface {
	Device

	// NewSurface creates a presentable surface from a platform surface descriptor.
	// The surface must be configured before drawables can be acquired.
	//
	// Parameters:
	//   - desc: the platform surface descriptor, typically from a window
	//
	// Returns:
	//   - Surface: the surface
	//   - error: an error marked common.ErrResourceCreation if the surface cannot be created
	NewSurface(desc *wgpu.SurfaceDescriptor) (Surface, error)

	// PrimarySurface returns the surface created from WithCompatibleSurface, or nil.
	//
	// Returns:
	//   - Surface: the surface the adapter was selected for
	PrimarySurface() Surface
}

type wgpuDevice struct {
	mu *sync.Mutex

	label                string
	forceFallbackAdapter bool
	presentMode          wgpu.PresentMode
	defaultLibrary       *LibraryDescriptor
	surfaceDescriptor    *wgpu.SurfaceDescriptor

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpuQueue
	surface  *wgpuSurface
	library  Library
	sampler  *wgpu.Sampler
}

var _ WGPUDevice = &wgpuDevice{}

// NewWGPUDevice requests an adapter and a logical device from wgpu-native.
//
// Parameters:
//   - options: variadic list of WGPUDeviceBuilderOption functions to configure the device
//
// Returns:
//   - WGPUDevice: the device
//   - error: an error marked common.ErrResourceCreation if no adapter or device is available
func NewWGPUDevice(options ...WGPUDeviceBuilderOption) (WGPUDevice, error) {
	d := &wgpuDevice{
		mu:          &sync.Mutex{},
		label:       "oxy-gpu wgpu device",
		presentMode: wgpu.PresentModeFifo,
	}
	for _, opt := range options {
		opt(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	if d.instance == nil {
		return nil, common.ResourceCreationError(errors.New("wgpu returned a nil instance"), "failed to create wgpu instance")
	}

	adapterOptions := &wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		PowerPreference:      wgpu.PowerPreferenceHighPerformance,
	}
	if d.surfaceDescriptor != nil {
		d.surface = &wgpuSurface{device: d, surface: d.instance.CreateSurface(d.surfaceDescriptor)}
		adapterOptions.CompatibleSurface = d.surface.surface
	}

	adapter, err := d.instance.RequestAdapter(adapterOptions)
	if err != nil {
		d.Release()
		return nil, common.ResourceCreationError(err, "failed to request wgpu adapter")
	}
	d.adapter = adapter

	dev, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: d.label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		d.Release()
		return nil, common.ResourceCreationError(err, "failed to request wgpu device")
	}
	d.device = dev
	d.queue = &wgpuQueue{device: d, queue: dev.GetQueue(), label: d.label + " queue"}

	if d.defaultLibrary != nil {
		lib, err := d.NewLibrary(*d.defaultLibrary)
		if err != nil {
			d.Release()
			return nil, err
		}
		d.library = lib
	}

	common.Logger().Debug("wgpu device created", "label", d.label, "fallback", d.forceFallbackAdapter)
	return d, nil
}

func (d *wgpuDevice) Name() string {
	return d.label
}

func (d *wgpuDevice) Backend() BackendType {
	return BackendWGPU
}

func (d *wgpuDevice) Queue() Queue {
	return d.queue
}

func (d *wgpuDevice) NewBuffer(desc BufferDescriptor) (Buffer, error) {
	size := max(desc.Size, uint64(len(desc.Contents)))
	// copies and queue writes operate on multiples of 4 bytes
	padded := max(common.AlignUp(size, 4), 4)

	b := &wgpuBuffer{
		device: d,
		label:  desc.Label,
		size:   size,
		mode:   desc.StorageMode,
	}
	usage := wgpu.BufferUsageStorage | wgpu.BufferUsageUniform | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

	var err error
	if len(desc.Contents) > 0 {
		contents := make([]byte, padded)
		copy(contents, desc.Contents)
		b.buffer, err = d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    desc.Label,
			Contents: contents,
			Usage:    usage,
		})
	} else {
		b.buffer, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: desc.Label,
			Size:  padded,
			Usage: usage,
		})
	}
	if err != nil {
		return nil, common.ResourceCreationError(err, "failed to create buffer %q of %d bytes", desc.Label, size)
	}

	if desc.StorageMode != StorageModePrivate {
		b.shadow = make([]byte, padded)
		copy(b.shadow, desc.Contents)
	}
	return b, nil
}

func (d *wgpuDevice) NewTexture(desc TextureDescriptor) (Texture, error) {
	size := desc.Size()
	format, ok := wgpuFormatOf(desc.Format)
	if !ok {
		return nil, common.ResourceCreationError(errors.Newf("unsupported pixel format %s", desc.Format), "failed to create texture %q", desc.Label)
	}

	dimension := wgpu.TextureDimension2D
	if size.Depth > 1 {
		dimension = wgpu.TextureDimension3D
	}

	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     desc.Label,
		Usage:     wgpuTextureUsageOf(desc.Usage),
		Dimension: dimension,
		Size: wgpu.Extent3D{
			Width:              uint32(size.Width),
			Height:             uint32(size.Height),
			DepthOrArrayLayers: uint32(size.Depth),
		},
		Format:        format,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, common.ResourceCreationError(err, "failed to create texture %q", desc.Label)
	}

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, common.ResourceCreationError(err, "failed to create view for texture %q", desc.Label)
	}

	desc.Width, desc.Height, desc.Depth = size.Width, size.Height, size.Depth
	return &wgpuTexture{device: d, texture: tex, view: view, desc: desc, owned: true}, nil
}

func (d *wgpuDevice) NewLibrary(desc LibraryDescriptor) (Library, error) {
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return nil, common.CompilationError(err, "failed to compile library %q", desc.Label)
	}

	lib := &wgpuLibrary{
		label:   desc.Label,
		source:  desc.Source,
		module:  module,
		reflect: parseWGSLModule(desc.Source),
	}
	common.Logger().Debug("wgpu library created", "label", desc.Label, "functions", lib.FunctionNames())
	return lib, nil
}

func (d *wgpuDevice) DefaultLibrary() (Library, error) {
	if d.library == nil {
		return nil, common.MissingBackingError("device %q has no default library", d.label)
	}
	return d.library, nil
}

func (d *wgpuDevice) NewComputePipeline(lib Library, fn FunctionDescriptor) (ComputePipeline, error) {
	l, ok := lib.(*wgpuLibrary)
	if !ok {
		return nil, common.CompilationError(errors.Newf("library %T does not belong to a wgpu device", lib), "failed to compile %q", fn.Name)
	}
	ep, ok := l.reflect.entryPoints[fn.Name]
	if !ok || ep.stage != shaderStageCompute {
		return nil, common.CompilationError(errors.Newf("no compute entry point %q in library %q", fn.Name, l.label), "failed to compile %q", fn.Name)
	}

	module, release, err := l.specialize(d, fn.Constants)
	if err != nil {
		return nil, common.CompilationError(err, "failed to specialize %q", fn.Name)
	}
	defer release()

	globals := l.reflect.usedGlobals(fn.Name)
	layouts, groupLayouts, err := d.createLayouts(fn.Name, globals, func(int) wgpu.ShaderStage {
		return wgpu.ShaderStageCompute
	})
	if err != nil {
		return nil, common.CompilationError(err, "failed to create layout for %q", fn.Name)
	}

	pipelineLayout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            fn.Name,
		BindGroupLayouts: groupLayouts,
	})
	if err != nil {
		return nil, common.CompilationError(err, "failed to create pipeline layout for %q", fn.Name)
	}

	created, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  fn.Name + " Compute Pipeline",
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: fn.Name,
		},
	})
	if err != nil {
		return nil, common.CompilationError(err, "failed to create compute pipeline %q", fn.Name)
	}

	common.Logger().Debug("wgpu compute pipeline compiled", "function", fn.Name, "groups", len(groupLayouts))
	return &wgpuComputePipeline{
		label:       fn.Name,
		pipeline:    created,
		layout:      layouts,
		bindLayouts: groupLayouts,
		threadGroup: common.NewSize(
			int(ep.workgroupSize[0]), int(ep.workgroupSize[1]), int(ep.workgroupSize[2]),
		),
	}, nil
}

func (d *wgpuDevice) NewRenderPipeline(lib Library, desc RenderPipelineDescriptor) (RenderPipeline, error) {
	l, ok := lib.(*wgpuLibrary)
	if !ok {
		return nil, common.CompilationError(errors.Newf("library %T does not belong to a wgpu device", lib), "failed to compile %q", desc.Label)
	}
	if ep, ok := l.reflect.entryPoints[desc.Vertex.Name]; !ok || ep.stage != shaderStageVertex {
		return nil, common.CompilationError(errors.Newf("no vertex entry point %q in library %q", desc.Vertex.Name, l.label), "failed to compile %q", desc.Label)
	}
	if ep, ok := l.reflect.entryPoints[desc.Fragment.Name]; !ok || ep.stage != shaderStageFragment {
		return nil, common.CompilationError(errors.Newf("no fragment entry point %q in library %q", desc.Fragment.Name, l.label), "failed to compile %q", desc.Label)
	}
	format, ok := wgpuFormatOf(desc.ColorFormat)
	if !ok {
		return nil, common.CompilationError(errors.Newf("unsupported color format %s", desc.ColorFormat), "failed to compile %q", desc.Label)
	}

	constants := make(FunctionConstants, len(desc.Vertex.Constants)+len(desc.Fragment.Constants))
	for k, v := range desc.Vertex.Constants {
		constants[k] = v
	}
	for k, v := range desc.Fragment.Constants {
		constants[k] = v
	}
	module, release, err := l.specialize(d, constants)
	if err != nil {
		return nil, common.CompilationError(err, "failed to specialize %q", desc.Label)
	}
	defer release()

	globals := l.reflect.usedGlobals(desc.Vertex.Name, desc.Fragment.Name)
	layouts, groupLayouts, err := d.createLayouts(desc.Label, globals, func(group int) wgpu.ShaderStage {
		if group == rasterVertexBufferGroup || group == rasterVertexTextureGroup {
			return wgpu.ShaderStageVertex
		}
		return wgpu.ShaderStageFragment
	})
	if err != nil {
		return nil, common.CompilationError(err, "failed to create layout for %q", desc.Label)
	}

	pipelineLayout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: groupLayouts,
	})
	if err != nil {
		return nil, common.CompilationError(err, "failed to create pipeline layout for %q", desc.Label)
	}

	created, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: desc.Vertex.Name,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: desc.Fragment.Name,
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpuTopologyOf(desc.Primitive),
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, common.CompilationError(err, "failed to create render pipeline %q", desc.Label)
	}

	common.Logger().Debug("wgpu render pipeline compiled", "label", desc.Label, "vertex", desc.Vertex.Name, "fragment", desc.Fragment.Name)
	return &wgpuRenderPipeline{
		label:       desc.Label,
		pipeline:    created,
		layout:      layouts,
		bindLayouts: groupLayouts,
		colorFormat: desc.ColorFormat,
	}, nil
}

func (d *wgpuDevice) NewSurface(desc *wgpu.SurfaceDescriptor) (Surface, error) {
	surface := d.instance.CreateSurface(desc)
	if surface == nil {
		return nil, common.ResourceCreationError(errors.New("wgpu returned a nil surface"), "failed to create surface")
	}
	return &wgpuSurface{device: d, surface: surface}, nil
}

func (d *wgpuDevice) PrimarySurface() Surface {
	if d.surface == nil {
		return nil
	}
	return d.surface
}

func (d *wgpuDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sampler != nil {
		d.sampler.Release()
		d.sampler = nil
	}
	if d.queue != nil {
		d.queue.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.surface != nil {
		d.surface.Release()
		d.surface = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

// defaultSampler returns the linear clamp sampler bound to every sampler declaration.
func (d *wgpuDevice) defaultSampler() (*wgpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sampler != nil {
		return d.sampler, nil
	}
	samp, err := d.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "oxy-gpu default sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, err
	}
	d.sampler = samp
	return samp, nil
}

// createLayouts builds one bind group layout per group index up to the highest group used. Groups
// with no declarations get an empty layout so indices stay stable.
//
// Parameters:
//   - label: label prefix for the layouts
//   - globals: the resource declarations used by the pipeline
//   - visibility: returns the stage visibility for a group
//
// Returns:
//   - map[int][]parsedGlobal: the globals of each group sorted by binding
//   - []*wgpu.BindGroupLayout: the created layouts indexed by group
//   - error: an error if a layout cannot be created
func (d *wgpuDevice) createLayouts(label string, globals []parsedGlobal, visibility func(group int) wgpu.ShaderStage) (map[int][]parsedGlobal, []*wgpu.BindGroupLayout, error) {
	descriptors := bindGroupLayouts(globals, visibility)
	maxGroup := -1
	for g := range descriptors {
		maxGroup = max(maxGroup, g)
	}

	byGroup := make(map[int][]parsedGlobal, len(descriptors))
	for _, g := range globals {
		byGroup[g.group] = append(byGroup[g.group], g)
	}
	for g := range byGroup {
		sortGlobals(byGroup[g])
	}

	layouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := range layouts {
		desc := descriptors[g]
		desc.Label = label
		layout, err := d.device.CreateBindGroupLayout(&desc)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to create bind group layout for group %d", g)
		}
		layouts[g] = layout
	}
	return byGroup, layouts, nil
}

// wgpuFormatOf maps a PixelFormat to the wgpu texture format.
func wgpuFormatOf(f PixelFormat) (wgpu.TextureFormat, bool) {
	switch f {
	case PixelFormatRGBA8Unorm:
		return wgpu.TextureFormatRGBA8Unorm, true
	case PixelFormatRGBA8UnormSrgb:
		return wgpu.TextureFormatRGBA8UnormSrgb, true
	case PixelFormatBGRA8Unorm:
		return wgpu.TextureFormatBGRA8Unorm, true
	case PixelFormatBGRA8UnormSrgb:
		return wgpu.TextureFormatBGRA8UnormSrgb, true
	case PixelFormatR32Float:
		return wgpu.TextureFormatR32Float, true
	case PixelFormatRGBA16Float:
		return wgpu.TextureFormatRGBA16Float, true
	case PixelFormatRGBA32Float:
		return wgpu.TextureFormatRGBA32Float, true
	case PixelFormatDepth32Float:
		return wgpu.TextureFormatDepth32Float, true
	default:
		return wgpu.TextureFormatUndefined, false
	}
}

// pixelFormatOf maps a wgpu texture format back to a PixelFormat.
func pixelFormatOf(f wgpu.TextureFormat) (PixelFormat, bool) {
	for _, pf := range []PixelFormat{
		PixelFormatRGBA8Unorm, PixelFormatRGBA8UnormSrgb, PixelFormatBGRA8Unorm, PixelFormatBGRA8UnormSrgb,
		PixelFormatR32Float, PixelFormatRGBA16Float, PixelFormatRGBA32Float, PixelFormatDepth32Float,
	} {
		if wf, _ := wgpuFormatOf(pf); wf == f {
			return pf, true
		}
	}
	return 0, false
}

func wgpuTextureUsageOf(u TextureUsage) wgpu.TextureUsage {
	usage := wgpu.TextureUsageCopyDst
	if u.Has(TextureUsageShaderRead) {
		usage |= wgpu.TextureUsageTextureBinding
	}
	if u.Has(TextureUsageShaderWrite) {
		usage |= wgpu.TextureUsageStorageBinding
	}
	if u.Has(TextureUsageRenderTarget) {
		usage |= wgpu.TextureUsageRenderAttachment
	}
	if u.Has(TextureUsageCopySource) {
		usage |= wgpu.TextureUsageCopySrc
	}
	return usage
}

func wgpuTopologyOf(p PrimitiveType) wgpu.PrimitiveTopology {
	switch p {
	case PrimitiveTriangleStrip:
		return wgpu.PrimitiveTopologyTriangleStrip
	case PrimitiveLine:
		return wgpu.PrimitiveTopologyLineList
	case PrimitiveLineStrip:
		return wgpu.PrimitiveTopologyLineStrip
	case PrimitivePoint:
		return wgpu.PrimitiveTopologyPointList
	default:
		return wgpu.PrimitiveTopologyTriangleList
	}
}
