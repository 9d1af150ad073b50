package shader

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/buffer"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/texture"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRuntime struct {
	dev device.Device
	lib device.Library
}

func (r testRuntime) Device() device.Device         { return r.dev }
func (r testRuntime) Library() device.Library       { return r.lib }
func (r testRuntime) TextureLoader() texture.Loader { return nil }

// countingDevice counts pipeline compilations.
type countingDevice struct {
	device.Device
	compute int
	render  int
}

func (d *countingDevice) NewComputePipeline(lib device.Library, fn device.FunctionDescriptor) (device.ComputePipeline, error) {
	d.compute++
	return d.Device.NewComputePipeline(lib, fn)
}

func (d *countingDevice) NewRenderPipeline(lib device.Library, desc device.RenderPipelineDescriptor) (device.RenderPipeline, error) {
	d.render++
	return d.Device.NewRenderPipeline(lib, desc)
}

// doubleKernel doubles each float32 of buffer 0 in place, one element per thread along x.
func doubleKernel(inv *device.ComputeInvocation) {
	p := inv.ThreadPositionInGrid
	data := inv.Buffers[0]
	if p.Y != 0 || p.Z != 0 || (p.X+1)*4 > len(data) {
		return
	}
	common.WriteElement(data, p.X, common.ReadElement[float32](data, p.X)*2)
}

// fillKernel writes the thread position as red and green into texture 0.
func fillKernel(inv *device.ComputeInvocation) {
	p := inv.ThreadPositionInGrid
	inv.Textures[0].Store(p.X, p.Y, p.Z, [4]float32{float32(p.X), float32(p.Y), 0, 1})
}

func newRuntime(t *testing.T) (testRuntime, *countingDevice) {
	t.Helper()
	sw := device.NewSoftwareDevice(
		device.WithKernels(QuadKernels()),
		device.WithComputeKernel("double", doubleKernel),
		device.WithComputeKernel("fill", fillKernel),
	)
	lib, err := sw.DefaultLibrary()
	require.NoError(t, err)
	dev := &countingDevice{Device: sw}
	return testRuntime{dev: dev, lib: lib}, dev
}

// run initializes and encodes shaders into one command buffer and waits for it.
func run(t *testing.T, rt Runtime, shaders ...Shader) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, s := range shaders {
		if err := s.Initialize(ctx, rt); err != nil {
			return err
		}
	}
	cb, err := rt.Device().Queue().NewCommandBuffer()
	require.NoError(t, err)
	for _, s := range shaders {
		if err := s.Encode(ctx, rt, cb); err != nil {
			return err
		}
	}
	require.NoError(t, cb.Commit())
	return cb.WaitUntilCompleted(ctx)
}

func TestGroupsForSizeRoundsUp(t *testing.T) {
	groups := GroupsForSize(common.NewSize(8, 8, 1), common.NewSize(17, 8, 1))
	assert.Equal(t, common.Size{Width: 3, Height: 1, Depth: 1}, groups)

	groups = GroupsForSize(common.NewSize(64, 1, 1), common.NewSize(64, 1, 1))
	assert.Equal(t, common.Size{Width: 1, Height: 1, Depth: 1}, groups)
}

func TestComputeFunctionCompilesOnce(t *testing.T) {
	rt, dev := newRuntime(t)
	fn := NewComputeFunction("double", nil)
	assert.False(t, fn.Compiled())

	first, err := fn.Compile(context.Background(), rt)
	require.NoError(t, err)
	second, err := fn.Compile(context.Background(), rt)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.True(t, fn.Compiled())
	assert.Equal(t, 1, dev.compute)
}

func TestMissingEntryPointIsCompilationError(t *testing.T) {
	rt, _ := newRuntime(t)
	s := NewComputeShader("missing", common.NewSize(1, 1, 1))
	err := s.Initialize(context.Background(), rt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrCompilation))
	assert.False(t, s.Function().Compiled())
}

func TestMissingLibraryIsCompilationError(t *testing.T) {
	rt, _ := newRuntime(t)
	rt.lib = nil
	_, err := NewComputeFunction("double", nil).Compile(context.Background(), rt)
	assert.True(t, errors.Is(err, common.ErrCompilation))
}

func TestComputeShaderWithBufferDispatch(t *testing.T) {
	rt, _ := newRuntime(t)
	values := buffer.New[float32]("values", buffer.UsageShared, 1, 2, 3, 4, 5)
	s := NewComputeShader("double", common.NewSize(2, 1, 1),
		WithBuffers(values),
		WithDispatch(BufferDispatch()),
	)

	require.NoError(t, run(t, rt, s))
	got, ok := values.Values()
	require.True(t, ok)
	assert.Equal(t, []float32{2, 4, 6, 8, 10}, got)

	// the copy shares the compiled pipeline
	require.NoError(t, run(t, rt, s.Copy()))
	got, _ = values.Values()
	assert.Equal(t, []float32{4, 8, 12, 16, 20}, got)
}

func TestComputeShaderDefaultDispatchCoversTexture(t *testing.T) {
	rt, _ := newRuntime(t)
	target := texture.Empty("target", device.TextureDescriptor{
		Format: device.PixelFormatRGBA32Float,
		Width:  5,
		Height: 3,
		Usage:  device.TextureUsageShaderWrite,
	})
	s := NewComputeShader("fill", common.NewSize(4, 4, 1), WithTextures(target))
	require.NoError(t, run(t, rt, s))

	tex, ok := target.Resolved()
	require.True(t, ok)
	host := tex.(device.HostTexture)
	assert.Equal(t, [4]float32{4, 2, 0, 1}, host.Load(4, 2, 0))
}

func TestDefaultDispatchWithoutTextureFails(t *testing.T) {
	rt, _ := newRuntime(t)
	s := NewComputeShader("double", common.NewSize(1, 1, 1), WithBuffers(buffer.New[float32]("v", buffer.UsageShared, 1)))
	err := run(t, rt, s)
	assert.Error(t, err)
}

func TestFixedDispatchAndPipelineThreadGroup(t *testing.T) {
	rt, _ := newRuntime(t)
	values := buffer.New[float32]("values", buffer.UsageShared, 1, 1, 1, 1)
	// the software pipeline declares 8x8x1, so one group covers every element
	s := NewComputeShader("double", common.Size{}, WithBuffers(values), WithDispatch(FixedDispatch(common.NewSize(1, 1, 1))))
	require.NoError(t, run(t, rt, s))
	got, _ := values.Values()
	assert.Equal(t, []float32{2, 2, 2, 2}, got)
}

func TestRasterQuadIntoTexture(t *testing.T) {
	rt, dev := newRuntime(t)
	target := texture.Empty("target", device.TextureDescriptor{
		Format: device.PixelFormatRGBA8Unorm,
		Width:  2,
		Height: 2,
		Usage:  device.TextureUsageRenderTarget,
	})
	s := NewQuadShader(FormatOf(target), TextureTarget(target, device.LoadActionClear, device.StoreActionStore))
	require.NoError(t, run(t, rt, s))
	require.NoError(t, run(t, rt, s))
	assert.Equal(t, 1, dev.render)

	tex, _ := target.Resolved()
	host := tex.(device.HostTexture)
	assert.Equal(t, []byte{64, 64, 0, 255}, host.Bytes()[:4])
	assert.Equal(t, []byte{191, 191, 0, 255}, host.Bytes()[12:16])
}

func TestDrawableDescriptorNeedsDrawingContext(t *testing.T) {
	rt, _ := newRuntime(t)
	s := NewQuadShader(Format(device.PixelFormatBGRA8Unorm), DrawableDescriptor(nil))
	err := run(t, rt, s)
	assert.True(t, errors.Is(err, common.ErrMissingBacking))

	surface := device.NewOffscreenSurface(rt.Device(), device.PixelFormatBGRA8Unorm)
	require.NoError(t, surface.Configure(2, 1))
	drawable, err := surface.NextDrawable()
	require.NoError(t, err)

	load := device.LoadActionClear
	s = NewQuadShader(Format(device.PixelFormatBGRA8Unorm), DrawableDescriptor(&load))
	s.SetDrawingContext(drawable, device.RenderPassDescriptor{
		ColorAttachments: []device.ColorAttachment{{Texture: drawable.Texture(), LoadAction: device.LoadActionLoad}},
	})
	require.NoError(t, run(t, rt, s))

	host := drawable.Texture().(device.HostTexture)
	assert.Equal(t, [4]float32{0.25, 0.5, 0, 1}, roundColor(host.Load(0, 0, 0)))
}

// roundColor rounds channels to two decimals to compare normalized 8-bit colors.
func roundColor(c [4]float32) [4]float32 {
	for i := range c {
		c[i] = float32(int(c[i]*100+0.5)) / 100
	}
	return c
}

func TestCopyShaderTextures(t *testing.T) {
	rt, _ := newRuntime(t)
	desc := device.TextureDescriptor{Format: device.PixelFormatRGBA8Unorm, Width: 2, Height: 1}

	srcTex, err := rt.Device().NewTexture(desc)
	require.NoError(t, err)
	require.NoError(t, srcTex.Upload([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	source := texture.New("source", srcTex)
	sink := source.EmptyCopy()

	require.NoError(t, run(t, rt, CopyTexture(source, sink)))
	resolved, _ := sink.Resolved()
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, resolved.(device.HostTexture).Bytes())

	partial := texture.Empty("partial", desc)
	require.NoError(t, run(t, rt, CopyTextureRegion(source, common.Origin{X: 1}, partial, common.Origin{}, common.NewSize(1, 1, 1))))
	resolved, _ = partial.Resolved()
	assert.Equal(t, []byte{5, 6, 7, 8, 0, 0, 0, 0}, resolved.(device.HostTexture).Bytes())

	require.NoError(t, run(t, rt, SynchronizeTexture(partial)))
}

func TestCopyShaderReadsBackDeviceOnlyBuffer(t *testing.T) {
	rt, _ := newRuntime(t)
	private := buffer.New[float32]("private", buffer.UsageDevice, 1, 2, 3)
	readback := buffer.Alloc[float32]("readback", buffer.UsageShared, 3)

	require.NoError(t, run(t, rt,
		NewComputeShader("double", common.NewSize(1, 1, 1), WithBuffers(private), WithDispatch(BufferDispatch())),
		CopyBuffer(private, 0, readback, 0, 0),
	))
	got, ok := readback.Values()
	require.True(t, ok)
	assert.Equal(t, []float32{2, 4, 6}, got)
}

func TestSynchronizeManagedBuffer(t *testing.T) {
	rt, _ := newRuntime(t)
	managed := buffer.New[float32]("managed", buffer.UsageManaged, 1, 2)

	require.NoError(t, run(t, rt,
		NewComputeShader("double", common.NewSize(1, 1, 1), WithBuffers(managed), WithDispatch(BufferDispatch())),
	))
	got, _ := managed.Values()
	assert.Equal(t, []float32{1, 2}, got, "device writes stay invisible until synchronized")

	require.NoError(t, run(t, rt, SynchronizeBuffer(managed)))
	got, _ = managed.Values()
	assert.Equal(t, []float32{2, 4}, got)
}

func TestCopyWithoutDeviceBackingFails(t *testing.T) {
	rt, _ := newRuntime(t)
	sparse := buffer.New[float32]("sparse", buffer.UsageSparse, 1)
	sink := buffer.Alloc[float32]("sink", buffer.UsageShared, 1)
	err := run(t, rt, CopyBuffer(sparse, 0, sink, 0, 0))
	assert.True(t, errors.Is(err, common.ErrMissingBacking))
}
