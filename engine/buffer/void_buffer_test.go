package buffer

import (
	"context"
	"testing"

	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoidBufferPlacesPartsAtAlignedOffsets(t *testing.T) {
	positions := New[float32]("positions", UsageShared, 1, 2, 3)
	ids := Alloc[uint32]("ids", UsageShared, 2)
	weights := New[float32]("weights", UsageShared, 0.5)

	ids.Set(1, 42)

	v, err := NewVoidBuffer("packed", UsageShared, positions, ids, weights)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v.Offset(0))
	assert.Equal(t, device.BufferOffsetAlignment, v.Offset(1))
	assert.Equal(t, 2*device.BufferOffsetAlignment, v.Offset(2))
	assert.Equal(t, 2*device.BufferOffsetAlignment+4, v.Size())

	// initializing any part realizes the whole void buffer
	require.NoError(t, ids.Manager().Initialize(context.Background(), device.NewSoftwareDevice()))

	buf, offset, ok := ids.Manager().DeviceBuffer()
	require.True(t, ok)
	assert.Equal(t, device.BufferOffsetAlignment, offset)
	whole, wholeOffset, ok := v.Manager().DeviceBuffer()
	require.True(t, ok)
	assert.Same(t, buf, whole)
	assert.Equal(t, uint64(0), wholeOffset)

	values, ok := positions.Values()
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, values)

	id, ok := ids.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint32(42), id, "queued part writes replay at realization")

	weights.Set(0, 0.25)
	w, _ := weights.Get(0)
	assert.Equal(t, float32(0.25), w)
	raw, _ := v.Manager().Snapshot()
	assert.Equal(t, weights.Manager().Size(), uint64(len(raw))-v.Offset(2))
}

func TestVoidBufferRejectsInvalidParts(t *testing.T) {
	_, err := NewVoidBuffer("sparse", UsageSparse, New[float32]("a", UsageSparse, 1))
	assert.Error(t, err)

	_, err = NewVoidBuffer("mixed", UsageShared, New[float32]("a", UsageShared, 1), New[float32]("b", UsageManaged, 1))
	assert.Error(t, err)

	_, err = NewVoidBuffer("empty", UsageShared)
	assert.Error(t, err)

	realized := New[float32]("realized", UsageShared, 1)
	require.NoError(t, realized.Manager().Initialize(context.Background(), device.NewSoftwareDevice()))
	_, err = NewVoidBuffer("late", UsageShared, realized)
	assert.Error(t, err)

	part := New[float32]("part", UsageShared, 1)
	_, err = NewVoidBuffer("first", UsageShared, part)
	require.NoError(t, err)
	_, err = NewVoidBuffer("second", UsageShared, part)
	assert.Error(t, err)
}

func TestVoidBufferReset(t *testing.T) {
	dev := device.NewSoftwareDevice()
	a := New[int32]("a", UsageManaged, 7)
	b := New[int32]("b", UsageManaged, 8)
	v, err := NewVoidBuffer("pair", UsageManaged, a, b)
	require.NoError(t, err)
	require.NoError(t, v.Initialize(context.Background(), dev))
	assert.Equal(t, StateRealized, a.Manager().State())

	v.Reset()
	assert.Equal(t, StateAllocation, a.Manager().State())
	assert.Equal(t, StateAllocation, v.Manager().State())

	require.NoError(t, b.Manager().Initialize(context.Background(), dev))
	assert.Equal(t, StateRealized, a.Manager().State())
	value, ok := b.Get(0)
	require.True(t, ok)
	assert.Equal(t, int32(0), value)
}

func TestVoidBufferPartResetClearsRegion(t *testing.T) {
	for _, usage := range []Usage{UsageShared, UsageManaged} {
		t.Run(usage.String(), func(t *testing.T) {
			ctx := context.Background()
			dev := device.NewSoftwareDevice()
			a := New[int32]("a", usage, 1, 2)
			b := New[int32]("b", usage, 3)
			_, err := NewVoidBuffer("pair", usage, a, b)
			require.NoError(t, err)

			require.NoError(t, a.Manager().Initialize(ctx, dev))
			a.Set(0, 99)
			a.Manager().Reset()
			assert.Equal(t, StateAllocation, a.Manager().State())

			a.Set(1, 5)
			require.NoError(t, a.Manager().Initialize(ctx, dev))
			values, ok := a.Values()
			require.True(t, ok)
			assert.Equal(t, []int32{0, 5}, values, "reset part starts zeroed, then replays queued writes")

			kept, ok := b.Get(0)
			require.True(t, ok)
			assert.Equal(t, int32(3), kept)
		})
	}
}

func TestVoidBufferDevicePartResetClearsRegion(t *testing.T) {
	ctx := context.Background()
	dev := device.NewSoftwareDevice()
	a := New[int32]("a", UsageDevice, 7, 8)
	b := New[int32]("b", UsageDevice, 9)
	v, err := NewVoidBuffer("pair", UsageDevice, a, b)
	require.NoError(t, err)
	require.NoError(t, v.Initialize(ctx, dev))

	buf, _, ok := v.Manager().DeviceBuffer()
	require.True(t, ok)
	assert.Equal(t, []byte{7, 0, 0, 0, 8, 0, 0, 0}, readDeviceBytes(t, dev, buf, v.Offset(0), 8))

	a.Manager().Reset()
	require.NoError(t, a.Manager().Initialize(ctx, dev))
	assert.Equal(t, StateRealized, a.Manager().State())
	assert.Equal(t, make([]byte, 8), readDeviceBytes(t, dev, buf, v.Offset(0), 8))
	assert.Equal(t, []byte{9, 0, 0, 0}, readDeviceBytes(t, dev, buf, v.Offset(1), 4))
}

// readDeviceBytes copies a region of a private buffer into a shared one.
func readDeviceBytes(t *testing.T, dev device.Device, src device.Buffer, offset, size uint64) []byte {
	t.Helper()
	dst, err := dev.NewBuffer(device.BufferDescriptor{Label: "readback", Size: size, StorageMode: device.StorageModeShared})
	require.NoError(t, err)
	defer dst.Release()

	cb, err := dev.Queue().NewCommandBuffer()
	require.NoError(t, err)
	enc, err := cb.BlitEncoder()
	require.NoError(t, err)
	enc.CopyBuffer(src, offset, dst, 0, size)
	require.NoError(t, enc.End())
	require.NoError(t, cb.Commit())
	require.NoError(t, cb.WaitUntilCompleted(context.Background()))
	return append([]byte(nil), dst.Contents()...)
}
