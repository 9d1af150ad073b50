package device

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float32Bytes(values ...float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func float32At(data []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
}

func doubleKernel(inv *ComputeInvocation) {
	i := inv.ThreadPositionInGrid.X
	in, out := inv.Buffers[0], inv.Buffers[1]
	if i*4 >= len(in) {
		return
	}
	binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32At(in, i)*2))
}

func waitFor(t *testing.T, cb CommandBuffer) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return cb.WaitUntilCompleted(ctx)
}

func TestSoftwareComputeDispatch(t *testing.T) {
	dev := NewSoftwareDevice(WithComputeKernel("double", doubleKernel))
	lib, err := dev.DefaultLibrary()
	require.NoError(t, err)
	assert.True(t, lib.HasFunction("double"))

	pipeline, err := dev.NewComputePipeline(lib, FunctionDescriptor{Name: "double"})
	require.NoError(t, err)

	input, err := dev.NewBuffer(BufferDescriptor{Label: "in", StorageMode: StorageModeShared, Contents: float32Bytes(1, 2, 3, 4, 5)})
	require.NoError(t, err)
	output, err := dev.NewBuffer(BufferDescriptor{Label: "out", StorageMode: StorageModeShared, Size: 20})
	require.NoError(t, err)

	cb, err := dev.Queue().NewCommandBuffer()
	require.NoError(t, err)
	enc, err := cb.ComputeEncoder()
	require.NoError(t, err)
	enc.SetPipeline(pipeline)
	enc.SetBuffer(input, 0, 0)
	enc.SetBuffer(output, 0, 1)
	enc.Dispatch(common.NewSize(2, 1, 1), pipeline.ThreadGroupSize())
	require.NoError(t, enc.End())
	require.NoError(t, cb.Commit())
	require.NoError(t, waitFor(t, cb))

	assert.Equal(t, CommandBufferStatusCompleted, cb.Status())
	for i, want := range []float32{2, 4, 6, 8, 10} {
		assert.Equal(t, want, float32At(output.Contents(), i))
	}
}

func TestSoftwareMissingKernelIsCompilationError(t *testing.T) {
	dev := NewSoftwareDevice()
	lib, err := dev.DefaultLibrary()
	require.NoError(t, err)

	_, err = dev.NewComputePipeline(lib, FunctionDescriptor{Name: "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrCompilation))

	_, err = dev.NewRenderPipeline(lib, RenderPipelineDescriptor{Vertex: FunctionDescriptor{Name: "v"}, Fragment: FunctionDescriptor{Name: "f"}})
	assert.True(t, errors.Is(err, common.ErrCompilation))
}

func TestSoftwareRegisterKernelsAfterCreation(t *testing.T) {
	dev := NewSoftwareDevice()
	lib, err := dev.NewLibrary(LibraryDescriptor{Label: "late"})
	require.NoError(t, err)
	assert.False(t, lib.HasFunction("double"))

	dev.RegisterKernels(Kernels{Compute: map[string]ComputeKernel{"double": doubleKernel}})
	assert.True(t, lib.HasFunction("double"))
	assert.Equal(t, []string{"double"}, lib.FunctionNames())
}

func TestSoftwareManagedBufferSynchronization(t *testing.T) {
	dev := NewSoftwareDevice(WithComputeKernel("double", doubleKernel))
	lib, _ := dev.DefaultLibrary()
	pipeline, err := dev.NewComputePipeline(lib, FunctionDescriptor{Name: "double"})
	require.NoError(t, err)

	buf, err := dev.NewBuffer(BufferDescriptor{StorageMode: StorageModeManaged, Contents: float32Bytes(1, 1)})
	require.NoError(t, err)

	// cpu writes are invisible to the device until announced
	copy(buf.Contents(), float32Bytes(3, 4))
	buf.DidModifyRange(0, 4)

	cb, _ := dev.Queue().NewCommandBuffer()
	enc, _ := cb.ComputeEncoder()
	enc.SetPipeline(pipeline)
	enc.SetBuffer(buf, 0, 0)
	enc.SetBuffer(buf, 0, 1)
	enc.Dispatch(common.NewSize(1, 1, 1), common.NewSize(2, 1, 1))
	require.NoError(t, enc.End())
	require.NoError(t, cb.Commit())
	require.NoError(t, waitFor(t, cb))

	// device results are invisible to the cpu until synchronized
	assert.Equal(t, float32(3), float32At(buf.Contents(), 0))

	cb, _ = dev.Queue().NewCommandBuffer()
	blit, _ := cb.BlitEncoder()
	blit.SynchronizeBuffer(buf)
	require.NoError(t, blit.End())
	require.NoError(t, cb.Commit())
	require.NoError(t, waitFor(t, cb))

	assert.Equal(t, float32(6), float32At(buf.Contents(), 0))
	assert.Equal(t, float32(2), float32At(buf.Contents(), 1))
}

func TestSoftwarePrivateBufferHasNoContents(t *testing.T) {
	dev := NewSoftwareDevice()
	buf, err := dev.NewBuffer(BufferDescriptor{Size: 16, StorageMode: StorageModePrivate})
	require.NoError(t, err)
	assert.Nil(t, buf.Contents())

	_, err = dev.NewBuffer(BufferDescriptor{StorageMode: StorageModeShared})
	assert.True(t, errors.Is(err, common.ErrResourceCreation))
}

func TestSoftwareBindingErrors(t *testing.T) {
	dev := NewSoftwareDevice()
	buf, _ := dev.NewBuffer(BufferDescriptor{Size: 512, StorageMode: StorageModeShared})

	cb, _ := dev.Queue().NewCommandBuffer()
	enc, err := cb.ComputeEncoder()
	require.NoError(t, err)

	_, err = cb.BlitEncoder()
	assert.Error(t, err, "second encoder while the first is open")

	enc.SetBuffer(buf, 4, 0)
	enc.Dispatch(common.NewSize(1, 1, 1), common.NewSize(1, 1, 1))
	err = enc.End()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not aligned")
}

func TestSoftwareKernelPanicFailsCommandBuffer(t *testing.T) {
	dev := NewSoftwareDevice(WithComputeKernel("boom", func(*ComputeInvocation) {
		panic("out of bounds")
	}))
	lib, _ := dev.DefaultLibrary()
	pipeline, err := dev.NewComputePipeline(lib, FunctionDescriptor{Name: "boom"})
	require.NoError(t, err)

	cb, _ := dev.Queue().NewCommandBuffer()
	enc, _ := cb.ComputeEncoder()
	enc.SetPipeline(pipeline)
	enc.Dispatch(common.NewSize(1, 1, 1), common.NewSize(1, 1, 1))
	require.NoError(t, enc.End())
	require.NoError(t, cb.Commit())

	err = waitFor(t, cb)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of bounds")
	assert.Equal(t, CommandBufferStatusError, cb.Status())
	assert.Error(t, cb.Commit(), "commit twice")
}

func TestSoftwareCommandBuffersRunInCommitOrder(t *testing.T) {
	var order []int
	gate := make(chan struct{})
	dev := NewSoftwareDevice(WithComputeKernel("record", func(inv *ComputeInvocation) {
		if inv.Constants["id"] == 0 {
			<-gate
		}
		order = append(order, int(inv.Constants["id"]))
	}))
	lib, _ := dev.DefaultLibrary()

	var buffers []CommandBuffer
	for id := range 3 {
		pipeline, err := dev.NewComputePipeline(lib, FunctionDescriptor{Name: "record", Constants: FunctionConstants{"id": float64(id)}})
		require.NoError(t, err)
		cb, _ := dev.Queue().NewCommandBuffer()
		enc, _ := cb.ComputeEncoder()
		enc.SetPipeline(pipeline)
		enc.Dispatch(common.NewSize(1, 1, 1), common.NewSize(1, 1, 1))
		require.NoError(t, enc.End())
		require.NoError(t, cb.Commit())
		buffers = append(buffers, cb)
	}
	close(gate)

	require.NoError(t, waitFor(t, buffers[2]))
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestSoftwareDiscardDropsRecordedWork(t *testing.T) {
	ran := false
	dev := NewSoftwareDevice(WithComputeKernel("mark", func(*ComputeInvocation) { ran = true }))
	lib, _ := dev.DefaultLibrary()
	pipeline, err := dev.NewComputePipeline(lib, FunctionDescriptor{Name: "mark"})
	require.NoError(t, err)

	cb, err := dev.Queue().NewCommandBuffer()
	require.NoError(t, err)
	enc, err := cb.ComputeEncoder()
	require.NoError(t, err)
	enc.SetPipeline(pipeline)
	enc.Dispatch(common.NewSize(1, 1, 1), common.NewSize(1, 1, 1))

	// the encoder is still open, as after an encoding error
	cb.Discard()
	assert.Equal(t, CommandBufferStatusDiscarded, cb.Status())
	assert.Equal(t, "discarded", cb.Status().String())
	assert.Error(t, cb.Commit())
	assert.Error(t, waitFor(t, cb))
	cb.Discard()

	next, err := dev.Queue().NewCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, next.Commit())
	require.NoError(t, waitFor(t, next))
	next.Discard()
	assert.Equal(t, CommandBufferStatusCompleted, next.Status())
	assert.False(t, ran)
}

func TestSoftwareWaitHonorsContext(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	dev := NewSoftwareDevice(WithComputeKernel("block", func(*ComputeInvocation) { <-gate }))
	lib, _ := dev.DefaultLibrary()
	pipeline, _ := dev.NewComputePipeline(lib, FunctionDescriptor{Name: "block"})

	cb, _ := dev.Queue().NewCommandBuffer()
	enc, _ := cb.ComputeEncoder()
	enc.SetPipeline(pipeline)
	enc.Dispatch(common.NewSize(1, 1, 1), common.NewSize(1, 1, 1))
	require.NoError(t, enc.End())
	require.NoError(t, cb.Commit())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := cb.WaitUntilCompleted(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, CommandBufferStatusCommitted, cb.Status())
}

func TestSoftwareRenderPassClearAndFragment(t *testing.T) {
	vertices := 0
	dev := NewSoftwareDevice(
		WithVertexKernel("vert", func(*VertexInvocation) VertexOutput {
			vertices++
			return VertexOutput{}
		}),
		WithFragmentKernel("uv", func(inv *FragmentInvocation) [4]float32 {
			return [4]float32{inv.UV[0], inv.UV[1], 0, 1}
		}),
	)
	lib, _ := dev.DefaultLibrary()
	pipeline, err := dev.NewRenderPipeline(lib, RenderPipelineDescriptor{
		Vertex:      FunctionDescriptor{Name: "vert"},
		Fragment:    FunctionDescriptor{Name: "uv"},
		ColorFormat: PixelFormatRGBA8Unorm,
	})
	require.NoError(t, err)

	target, err := dev.NewTexture(TextureDescriptor{Format: PixelFormatRGBA8Unorm, Width: 2, Height: 2, Usage: TextureUsageRenderTarget})
	require.NoError(t, err)

	cb, _ := dev.Queue().NewCommandBuffer()
	enc, err := cb.RenderEncoder(RenderPassDescriptor{ColorAttachments: []ColorAttachment{{
		Texture:    target,
		LoadAction: LoadActionClear,
		ClearColor: [4]float64{1, 0, 0, 1},
	}}})
	require.NoError(t, err)
	enc.SetPipeline(pipeline)
	enc.Draw(PrimitiveTriangle, 0, 6)
	require.NoError(t, enc.End())
	require.NoError(t, cb.Commit())
	require.NoError(t, waitFor(t, cb))

	assert.Equal(t, 6, vertices)
	pixels := target.(HostTexture).Bytes()
	// pixel (1, 0) has uv (0.75, 0.25)
	assert.Equal(t, []byte{191, 64, 0, 255}, pixels[4:8])
}

func TestSoftwareBlitCopyTexture(t *testing.T) {
	dev := NewSoftwareDevice()
	src, _ := dev.NewTexture(TextureDescriptor{Format: PixelFormatRGBA8Unorm, Width: 2, Height: 2})
	dst, _ := dev.NewTexture(TextureDescriptor{Format: PixelFormatRGBA8Unorm, Width: 2, Height: 2})
	require.NoError(t, src.Upload([]byte{
		1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4,
	}))

	cb, _ := dev.Queue().NewCommandBuffer()
	blit, _ := cb.BlitEncoder()
	blit.CopyTexture(src, common.Origin{X: 1, Y: 1}, dst, common.Origin{}, common.NewSize(1, 1, 1))
	blit.CopyTexture(src, common.Origin{X: 1, Y: 1}, dst, common.Origin{}, common.NewSize(2, 2, 1))
	err := blit.End()
	require.Error(t, err, "second copy does not fit")
	require.NoError(t, cb.Commit())
	require.NoError(t, waitFor(t, cb))

	assert.Equal(t, []byte{4, 4, 4, 4}, dst.(HostTexture).Bytes()[:4])
	assert.Error(t, dst.Upload([]byte{1, 2, 3}))
}

func TestOffscreenSurfaceCountsPresentedFrames(t *testing.T) {
	dev := NewSoftwareDevice()
	surface := NewOffscreenSurface(dev, PixelFormatBGRA8Unorm)

	_, err := surface.NextDrawable()
	require.Error(t, err)
	require.NoError(t, surface.Configure(4, 3))

	drawable, err := surface.NextDrawable()
	require.NoError(t, err)
	assert.Equal(t, 4, drawable.Texture().Descriptor().Width)

	cb, _ := dev.Queue().NewCommandBuffer()
	cb.Present(drawable)
	require.NoError(t, cb.Commit())
	require.NoError(t, waitFor(t, cb))
	assert.Equal(t, 1, surface.PresentedFrames())
}

func TestTexelRoundTrip(t *testing.T) {
	color := [4]float32{0.5, -2, 1024, 1}
	buf := make([]byte, 16)
	encodeTexel(PixelFormatRGBA32Float, buf, color)
	assert.Equal(t, color, decodeTexel(PixelFormatRGBA32Float, buf))

	encodeTexel(PixelFormatRGBA16Float, buf, color)
	assert.Equal(t, color, decodeTexel(PixelFormatRGBA16Float, buf))

	encodeTexel(PixelFormatBGRA8Unorm, buf, [4]float32{1, 0, 0, 1})
	assert.Equal(t, []byte{0, 0, 255, 255}, buf[:4])
}
