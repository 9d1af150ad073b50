package device

import (
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cockroachdb/errors"
)

// HostTexture is a texture whose texels live in host memory, as with the software backend.
type HostTexture interface {
	Texture
	KernelTexture

	// Bytes returns a copy of the tightly packed texel data.
	Bytes() []byte
}

type softwareQueue struct {
	mu     sync.Mutex
	device *softwareDevice
	label  string
	// tail is closed when the most recently committed command buffer has finished.
	tail chan struct{}
}

var _ Queue = &softwareQueue{}

func (q *softwareQueue) Label() string {
	return q.label
}

func (q *softwareQueue) NewCommandBuffer() (CommandBuffer, error) {
	if q.device.isReleased() {
		return nil, common.ResourceCreationError(errors.New("device released"), "failed to create command buffer")
	}
	return newSoftwareCommandBuffer(q), nil
}

// enqueue makes done the new tail and returns the previous one.
func (q *softwareQueue) enqueue(done chan struct{}) chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	prev := q.tail
	q.tail = done
	return prev
}

// softwareBuffer stores its bytes in host memory. Shared buffers use one slice for both sides;
// managed buffers keep a cpu copy and a device copy; private buffers only have the device copy.
type softwareBuffer struct {
	mu       sync.Mutex
	label    string
	mode     StorageMode
	size     uint64
	cpu      []byte
	gpu      []byte
	released bool
}

var _ Buffer = &softwareBuffer{}

func (b *softwareBuffer) Label() string {
	return b.label
}

func (b *softwareBuffer) Size() uint64 {
	return b.size
}

func (b *softwareBuffer) StorageMode() StorageMode {
	return b.mode
}

func (b *softwareBuffer) Contents() []byte {
	return b.cpu
}

func (b *softwareBuffer) DidModifyRange(start, end uint64) {
	if b.mode != StorageModeManaged {
		return
	}
	end = min(end, b.size)
	if start >= end {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.gpu[start:end], b.cpu[start:end])
}

func (b *softwareBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
}

// synchronize copies the device copy of a managed buffer back to the cpu copy.
func (b *softwareBuffer) synchronize() {
	if b.mode != StorageModeManaged {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.cpu, b.gpu)
}

type softwareTexture struct {
	mu   sync.RWMutex
	desc TextureDescriptor
	data []byte
}

var _ HostTexture = &softwareTexture{}

func newSoftwareTexture(desc TextureDescriptor) *softwareTexture {
	size := desc.Size()
	desc.Width, desc.Height, desc.Depth = size.Width, size.Height, size.Depth
	return &softwareTexture{
		desc: desc,
		data: make([]byte, size.Volume()*desc.Format.BytesPerPixel()),
	}
}

func (t *softwareTexture) Label() string {
	return t.desc.Label
}

func (t *softwareTexture) Descriptor() TextureDescriptor {
	return t.desc
}

func (t *softwareTexture) Upload(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(data) != len(t.data) {
		return errors.Newf("texture %q expects %d bytes, got %d", t.desc.Label, len(t.data), len(data))
	}
	copy(t.data, data)
	return nil
}

func (t *softwareTexture) Release() {}

func (t *softwareTexture) Bytes() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.data)
}

func (t *softwareTexture) Size() common.Size {
	return t.desc.Size()
}

func (t *softwareTexture) Format() PixelFormat {
	return t.desc.Format
}

func (t *softwareTexture) texelOffset(x, y, z int) int {
	return ((z*t.desc.Height+y)*t.desc.Width + x) * t.desc.Format.BytesPerPixel()
}

func (t *softwareTexture) Load(x, y, z int) [4]float32 {
	x = min(max(x, 0), t.desc.Width-1)
	y = min(max(y, 0), t.desc.Height-1)
	z = min(max(z, 0), t.desc.Depth-1)

	t.mu.RLock()
	defer t.mu.RUnlock()
	return decodeTexel(t.desc.Format, t.data[t.texelOffset(x, y, z):])
}

func (t *softwareTexture) Store(x, y, z int, color [4]float32) {
	if x < 0 || y < 0 || z < 0 || x >= t.desc.Width || y >= t.desc.Height || z >= t.desc.Depth {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	encodeTexel(t.desc.Format, t.data[t.texelOffset(x, y, z):], color)
}

func (t *softwareTexture) Sample(uv [2]float32) [4]float32 {
	x := int(uv[0] * float32(t.desc.Width))
	y := int(uv[1] * float32(t.desc.Height))
	return t.Load(x, y, 0)
}

// fill writes color to every texel.
func (t *softwareTexture) fill(color [4]float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bpp := t.desc.Format.BytesPerPixel()
	for offset := 0; offset < len(t.data); offset += bpp {
		encodeTexel(t.desc.Format, t.data[offset:], color)
	}
}

type softwareLibrary struct {
	label  string
	device *softwareDevice
}

var _ Library = &softwareLibrary{}

func (l *softwareLibrary) Label() string {
	return l.label
}

// FunctionNames lists every kernel registered on the device, sorted.
func (l *softwareLibrary) FunctionNames() []string {
	names := l.device.registeredKernels().names()
	slices.Sort(names)
	return names
}

func (l *softwareLibrary) HasFunction(name string) bool {
	return slices.Contains(l.device.registeredKernels().names(), name)
}

type softwareComputePipeline struct {
	label       string
	kernel      ComputeKernel
	constants   FunctionConstants
	threadGroup common.Size
}

var _ ComputePipeline = &softwareComputePipeline{}

func (p *softwareComputePipeline) Label() string {
	return p.label
}

func (p *softwareComputePipeline) ThreadGroupSize() common.Size {
	return p.threadGroup
}

type softwareRenderPipeline struct {
	label             string
	vertex            VertexKernel
	fragment          FragmentKernel
	vertexConstants   FunctionConstants
	fragmentConstants FunctionConstants
	colorFormat       PixelFormat
	primitive         PrimitiveType
}

var _ RenderPipeline = &softwareRenderPipeline{}

func (p *softwareRenderPipeline) Label() string {
	return p.label
}

func (p *softwareRenderPipeline) ColorFormat() PixelFormat {
	return p.colorFormat
}
