package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requirePanicsWith runs fn and requires a panic carrying an error marked with target.
func requirePanicsWith(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		assert.True(t, errors.Is(err, target), "panic %v is not marked %v", err, target)
	}()
	fn()
}

// copyKernel copies buffer 0 into buffer 1, one float32 per thread.
func copyKernel(inv *device.ComputeInvocation) {
	i := inv.ThreadPositionInGrid.X * 4
	in, out := inv.Buffers[0], inv.Buffers[1]
	if i+4 > len(in) || i+4 > len(out) {
		return
	}
	copy(out[i:i+4], in[i:i+4])
}

func runCopy(t *testing.T, dev device.SoftwareDevice, in, out *Manager, count int) {
	t.Helper()
	lib, err := dev.DefaultLibrary()
	require.NoError(t, err)
	pipeline, err := dev.NewComputePipeline(lib, device.FunctionDescriptor{Name: "copy"})
	require.NoError(t, err)

	cb, err := dev.Queue().NewCommandBuffer()
	require.NoError(t, err)
	enc, err := cb.ComputeEncoder()
	require.NoError(t, err)
	enc.SetPipeline(pipeline)
	require.NoError(t, in.Encode(enc, 0))
	require.NoError(t, out.Encode(enc, 1))
	enc.Dispatch(common.NewSize(count, 1, 1), common.NewSize(1, 1, 1))
	require.NoError(t, enc.End())
	require.NoError(t, cb.Commit())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, cb.WaitUntilCompleted(ctx))
}

func TestSparseBufferReadsWithoutDevice(t *testing.T) {
	b := New[int32]("sparse", UsageSparse, 0, 1, 2, 3)

	v, ok := b.Get(3)
	require.True(t, ok)
	assert.Equal(t, int32(3), v)
	assert.Equal(t, StateCPUBytes, b.Manager().State())

	// sparse buffers never reach the device
	require.NoError(t, b.Manager().Initialize(context.Background(), device.NewSoftwareDevice()))
	assert.Equal(t, StateCPUBytes, b.Manager().State())
}

func TestSharedBufferReadsBeforeRealization(t *testing.T) {
	b := New[int32]("shared", UsageShared, 0, 1, 2, 3)

	v, ok := b.Get(3)
	require.True(t, ok)
	assert.Equal(t, int32(3), v)
	_, _, realized := b.Manager().DeviceBuffer()
	assert.False(t, realized)
}

func TestRoundTripForCPUVisibleUsages(t *testing.T) {
	dev := device.NewSoftwareDevice()
	for _, usage := range []Usage{UsageShared, UsageManaged, UsageSparse} {
		t.Run(usage.String(), func(t *testing.T) {
			b := Alloc[float32]("values", usage, 4)
			require.NoError(t, b.Manager().Initialize(context.Background(), dev))

			b.Set(2, 1.5)
			v, ok := b.Get(2)
			require.True(t, ok)
			assert.Equal(t, float32(1.5), v)

			values, ok := b.Values()
			require.True(t, ok)
			assert.Equal(t, []float32{0, 0, 1.5, 0}, values)
		})
	}
}

func TestWritesBeforeRealizationReplayInOrder(t *testing.T) {
	b := Alloc[uint32]("queued", UsageShared, 2)
	b.Set(0, 1)
	b.Set(1, 7)
	b.Set(0, 2)

	_, ok := b.Get(0)
	assert.False(t, ok, "no backing store yet")
	assert.Equal(t, 3, b.Manager().Pending())

	require.NoError(t, b.Manager().Initialize(context.Background(), device.NewSoftwareDevice()))
	assert.Equal(t, 0, b.Manager().Pending())

	values, ok := b.Values()
	require.True(t, ok)
	assert.Equal(t, []uint32{2, 7}, values)

	// a second initialize is a no-op and does not replay again
	b.Set(0, 9)
	require.NoError(t, b.Manager().Initialize(context.Background(), device.NewSoftwareDevice()))
	v, _ := b.Get(0)
	assert.Equal(t, uint32(9), v)
}

func TestDeviceOnlyAccessPanics(t *testing.T) {
	b := New[float32]("private", UsageDevice, 1, 2)
	requirePanicsWith(t, common.ErrUsageViolation, func() { b.Get(0) })
	requirePanicsWith(t, common.ErrUsageViolation, func() { b.Set(0, 1) })

	require.NoError(t, b.Manager().Initialize(context.Background(), device.NewSoftwareDevice()))
	requirePanicsWith(t, common.ErrUsageViolation, func() { b.Get(0) })
	requirePanicsWith(t, common.ErrUsageViolation, func() { b.Values() })
}

func TestUnsizedElementTypePanics(t *testing.T) {
	requirePanicsWith(t, common.ErrUsageViolation, func() { New[int]("bad", UsageShared, 1) })
	requirePanicsWith(t, common.ErrUsageViolation, func() { Alloc[map[string]int32]("bad", UsageShared, 1) })
}

func TestOutOfRangeIndexPanics(t *testing.T) {
	b := New[int32]("small", UsageSparse, 1)
	requirePanicsWith(t, common.ErrUsageViolation, func() { b.Get(1) })
	requirePanicsWith(t, common.ErrUsageViolation, func() { b.Set(-1, 0) })
}

func TestFromSliceAliasesCallerMemory(t *testing.T) {
	values := []float32{1, 2, 3}
	b := FromSlice("alias", UsageShared, values)
	b.Set(1, 20)
	assert.Equal(t, float32(20), values[1])
	assert.Equal(t, StateCPUPointer, b.Manager().State())

	require.NoError(t, b.Manager().Initialize(context.Background(), device.NewSoftwareDevice()))
	v, ok := b.Get(1)
	require.True(t, ok)
	assert.Equal(t, float32(20), v)
}

func TestFromFuture(t *testing.T) {
	dev := device.NewSoftwareDevice()
	calls := 0
	b := FromFuture[float32]("future", UsageShared, 2, func(ctx context.Context, d device.Device) (device.Buffer, error) {
		calls++
		return d.NewBuffer(device.BufferDescriptor{Size: 8, StorageMode: device.StorageModeShared})
	})
	b.Set(1, 4)
	require.NoError(t, b.Manager().Initialize(context.Background(), dev))
	require.NoError(t, b.Manager().Initialize(context.Background(), dev))
	assert.Equal(t, 1, calls)

	v, _ := b.Get(1)
	assert.Equal(t, float32(4), v)

	failing := FromFuture[float32]("failing", UsageShared, 1, func(context.Context, device.Device) (device.Buffer, error) {
		return nil, errors.New("out of memory")
	})
	err := failing.Manager().Initialize(context.Background(), dev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrResourceCreation))

	requirePanicsWith(t, common.ErrUsageViolation, func() {
		FromFuture[float32]("sparse", UsageSparse, 1, nil)
	})
}

func TestManagedWritesReachTheDevice(t *testing.T) {
	dev := device.NewSoftwareDevice(device.WithComputeKernel("copy", copyKernel))
	in := Alloc[float32]("in", UsageManaged, 2)
	out := Alloc[float32]("out", UsageShared, 2)
	require.NoError(t, in.Manager().Initialize(context.Background(), dev))
	require.NoError(t, out.Manager().Initialize(context.Background(), dev))

	in.Set(0, 3)
	in.Set(1, 4)
	runCopy(t, dev, in.Manager(), out.Manager(), 2)

	values, ok := out.Values()
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4}, values)
}

func TestSparseBuffersEncodeInline(t *testing.T) {
	dev := device.NewSoftwareDevice(device.WithComputeKernel("copy", copyKernel))
	in := New[float32]("constants", UsageSparse, 5, 6)
	out := Alloc[float32]("out", UsageShared, 2)
	require.NoError(t, out.Manager().Initialize(context.Background(), dev))

	runCopy(t, dev, in.Manager(), out.Manager(), 2)
	values, _ := out.Values()
	assert.Equal(t, []float32{5, 6}, values)
}

func TestEncodeWithoutBackingFails(t *testing.T) {
	dev := device.NewSoftwareDevice()
	cb, _ := dev.Queue().NewCommandBuffer()
	enc, _ := cb.ComputeEncoder()

	b := Alloc[float32]("pending", UsageShared, 1)
	err := b.Manager().Encode(enc, 0)
	assert.True(t, errors.Is(err, common.ErrMissingBacking))
}

func TestResetAndRelease(t *testing.T) {
	dev := device.NewSoftwareDevice()
	b := New[int32]("lifecycle", UsageShared, 1, 2)
	require.NoError(t, b.Manager().Initialize(context.Background(), dev))
	assert.Equal(t, StateRealized, b.Manager().State())

	b.Manager().Reset()
	assert.Equal(t, StateAllocation, b.Manager().State())
	_, ok := b.Get(0)
	assert.False(t, ok)

	require.NoError(t, b.Manager().Initialize(context.Background(), dev))
	v, ok := b.Get(0)
	require.True(t, ok)
	assert.Equal(t, int32(0), v, "reset discards previous contents")

	b.Manager().Release()
	assert.Equal(t, StateFreed, b.Manager().State())
	requirePanicsWith(t, common.ErrMissingBacking, func() { b.Get(0) })
	requirePanicsWith(t, common.ErrMissingBacking, func() { b.Set(0, 1) })

	err := b.Manager().Initialize(context.Background(), dev)
	assert.True(t, errors.Is(err, common.ErrMissingBacking))
}

func TestInitializeHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := Alloc[float32]("cancelled", UsageShared, 1)
	err := b.Manager().Initialize(ctx, device.NewSoftwareDevice())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateAllocation, b.Manager().State())
}
