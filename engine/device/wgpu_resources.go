package device

import (
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// Bind group convention of the wgpu backend. Compute pipelines read buffers from group 0 and
// textures from group 1; render pipelines split both by stage.
const (
	computeBufferGroup  = 0
	computeTextureGroup = 1

	rasterVertexBufferGroup    = 0
	rasterFragmentBufferGroup  = 1
	rasterVertexTextureGroup   = 2
	rasterFragmentTextureGroup = 3
)

type wgpuQueue struct {
	device *wgpuDevice
	queue  *wgpu.Queue
	label  string
}

var _ Queue = &wgpuQueue{}

func (q *wgpuQueue) Label() string {
	return q.label
}

func (q *wgpuQueue) NewCommandBuffer() (CommandBuffer, error) {
	encoder, err := q.device.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, common.ResourceCreationError(err, "failed to create command encoder on %q", q.label)
	}
	return newWGPUCommandBuffer(q, encoder), nil
}

// byteRange is a half-open byte interval [start, end).
type byteRange struct {
	start, end uint64
}

type wgpuBuffer struct {
	mu     sync.Mutex
	device *wgpuDevice
	buffer *wgpu.Buffer
	label  string
	size   uint64
	mode   StorageMode

	// shadow is the CPU copy of shared and managed buffers, padded to a multiple of 4 bytes.
	shadow []byte
	dirty  []byteRange
}

var _ Buffer = &wgpuBuffer{}

func (b *wgpuBuffer) Label() string {
	return b.label
}

func (b *wgpuBuffer) Size() uint64 {
	return b.size
}

func (b *wgpuBuffer) StorageMode() StorageMode {
	return b.mode
}

func (b *wgpuBuffer) Contents() []byte {
	if b.shadow == nil {
		return nil
	}
	return b.shadow[:b.size]
}

func (b *wgpuBuffer) DidModifyRange(start, end uint64) {
	if b.mode != StorageModeManaged || end <= start {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirty = append(b.dirty, byteRange{start: start &^ 3, end: min(common.AlignUp(end, 4), uint64(len(b.shadow)))})
}

func (b *wgpuBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
	b.shadow = nil
	b.dirty = nil
}

// paddedSize is the allocated size of the device buffer.
func (b *wgpuBuffer) paddedSize() uint64 {
	return max(common.AlignUp(b.size, 4), 4)
}

// flush uploads CPU writes ahead of a submission. Shared buffers upload the whole shadow,
// managed buffers only the ranges announced through DidModifyRange.
func (b *wgpuBuffer) flush(queue *wgpu.Queue) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.mode {
	case StorageModeShared:
		queue.WriteBuffer(b.buffer, 0, b.shadow)
	case StorageModeManaged:
		for _, r := range b.dirty {
			queue.WriteBuffer(b.buffer, r.start, b.shadow[r.start:r.end])
		}
		b.dirty = b.dirty[:0]
	}
}

// readback copies mapped staging bytes into the shadow.
func (b *wgpuBuffer) readback(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.shadow, data)
}

type wgpuTexture struct {
	device  *wgpuDevice
	texture *wgpu.Texture
	view    *wgpu.TextureView
	desc    TextureDescriptor

	// owned is false for swapchain textures, which are released by their drawable.
	owned bool
}

var _ Texture = &wgpuTexture{}

func (t *wgpuTexture) Label() string {
	return t.desc.Label
}

func (t *wgpuTexture) Descriptor() TextureDescriptor {
	return t.desc
}

func (t *wgpuTexture) Upload(data []byte) error {
	size := t.desc.Size()
	bpp := t.desc.Format.BytesPerPixel()
	if want := size.Volume() * bpp; len(data) != want {
		return errors.Newf("texture %q expects %d bytes, got %d", t.desc.Label, want, len(data))
	}

	t.device.queue.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  t.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(size.Width * bpp),
			RowsPerImage: uint32(size.Height),
		},
		&wgpu.Extent3D{
			Width:              uint32(size.Width),
			Height:             uint32(size.Height),
			DepthOrArrayLayers: uint32(size.Depth),
		},
	)
	return nil
}

func (t *wgpuTexture) Release() {
	if !t.owned {
		return
	}
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.texture != nil {
		t.texture.Release()
		t.texture = nil
	}
}

type wgpuLibrary struct {
	label   string
	source  string
	module  *wgpu.ShaderModule
	reflect *wgslModule
}

var _ Library = &wgpuLibrary{}

func (l *wgpuLibrary) Label() string {
	return l.label
}

func (l *wgpuLibrary) FunctionNames() []string {
	return l.reflect.entryPointNames()
}

func (l *wgpuLibrary) HasFunction(name string) bool {
	_, ok := l.reflect.entryPoints[name]
	return ok
}

// specialize returns the module to build a pipeline from. Without constants the library's own
// module is used; otherwise the source is specialized and compiled into a temporary module that
// release frees once the pipeline exists.
//
// Parameters:
//   - d: the device compiling the module
//   - constants: the specialization values
//
// Returns:
//   - *wgpu.ShaderModule: the module
//   - func(): releases a temporary module
//   - error: an error if specialization or compilation fails
func (l *wgpuLibrary) specialize(d *wgpuDevice, constants FunctionConstants) (*wgpu.ShaderModule, func(), error) {
	if len(constants) == 0 {
		return l.module, func() {}, nil
	}

	source, err := NewPreProcessor(constants).Process(l.source)
	if err != nil {
		return nil, nil, err
	}
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: l.label + " specialized",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: source,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return module, module.Release, nil
}

type wgpuComputePipeline struct {
	label       string
	pipeline    *wgpu.ComputePipeline
	layout      map[int][]parsedGlobal
	bindLayouts []*wgpu.BindGroupLayout
	threadGroup common.Size
}

var _ ComputePipeline = &wgpuComputePipeline{}

func (p *wgpuComputePipeline) Label() string {
	return p.label
}

func (p *wgpuComputePipeline) ThreadGroupSize() common.Size {
	return p.threadGroup
}

type wgpuRenderPipeline struct {
	label       string
	pipeline    *wgpu.RenderPipeline
	layout      map[int][]parsedGlobal
	bindLayouts []*wgpu.BindGroupLayout
	colorFormat PixelFormat
}

var _ RenderPipeline = &wgpuRenderPipeline{}

func (p *wgpuRenderPipeline) Label() string {
	return p.label
}

func (p *wgpuRenderPipeline) ColorFormat() PixelFormat {
	return p.colorFormat
}

// sortGlobals orders globals by binding index.
func sortGlobals(globals []parsedGlobal) {
	sort.Slice(globals, func(i, j int) bool {
		return globals[i].binding < globals[j].binding
	})
}
