package buffer

import (
	"context"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/cockroachdb/errors"
)

// VoidBuffer packs several buffers into one device allocation. Each part starts at an offset
// aligned to device.BufferOffsetAlignment so it can still be bound on its own.
type VoidBuffer struct {
	mu      sync.Mutex
	label   string
	usage   Usage
	parts   []Erased
	offsets []uint64
	manager *Manager
}

var (
	_ Erased      = &VoidBuffer{}
	_ Initializer = &VoidBuffer{}
)

// NewVoidBuffer lays parts out in one buffer. Parts must share usage, must not be sparse and must
// not have been realized, freed or packed into another void buffer.
//
// Parameters:
//   - label: debug label
//   - usage: the usage class of every part
//   - parts: the buffers to pack, in layout order
//
// Returns:
//   - *VoidBuffer: the void buffer
//   - error: an error describing the first part that cannot be packed
func NewVoidBuffer(label string, usage Usage, parts ...Erased) (*VoidBuffer, error) {
	if usage == UsageSparse {
		return nil, errors.Newf("void buffer %q cannot be sparse", label)
	}
	if len(parts) == 0 {
		return nil, errors.Newf("void buffer %q has no parts", label)
	}

	v := &VoidBuffer{
		label:   label,
		usage:   usage,
		parts:   parts,
		offsets: make([]uint64, len(parts)),
	}

	var size uint64
	for i, part := range parts {
		m := part.Manager()
		if m.Usage() != usage {
			return nil, errors.Newf("part %q has usage %s, void buffer %q is %s", part.Label(), m.Usage(), label, usage)
		}
		switch state := m.State(); state {
		case StateAllocation, StateCPUBytes, StateCPUPointer:
		default:
			return nil, errors.Newf("part %q is %s and cannot be packed", part.Label(), state)
		}
		m.mu.Lock()
		owned := m.owner != nil
		m.mu.Unlock()
		if owned {
			return nil, errors.Newf("part %q already belongs to a void buffer", part.Label())
		}

		size = common.AlignUp(size, device.BufferOffsetAlignment)
		v.offsets[i] = size
		size += m.Size()
	}

	v.manager = newManager(label, usage, 1, int(size), allocation{count: int(size)})
	v.manager.setOwner(v)
	for _, part := range parts {
		part.Manager().setOwner(v)
	}
	return v, nil
}

func (v *VoidBuffer) Label() string {
	return v.label
}

// Manager returns the byte-level manager spanning the whole allocation.
func (v *VoidBuffer) Manager() *Manager {
	return v.manager
}

// Usage returns the usage class shared by every part.
func (v *VoidBuffer) Usage() Usage {
	return v.usage
}

// Parts returns the packed buffers in layout order.
func (v *VoidBuffer) Parts() []Erased {
	return append([]Erased(nil), v.parts...)
}

// Offset returns the byte offset of part i.
func (v *VoidBuffer) Offset(i int) uint64 {
	return v.offsets[i]
}

// Size returns the total allocation size in bytes.
func (v *VoidBuffer) Size() uint64 {
	return v.manager.Size()
}

// Initialize creates the shared device buffer from the parts' CPU bytes and realizes every part
// at its offset, replaying each part's queued writes. Parts reset after realization are realized
// again into the existing buffer with their region zeroed.
//
// Parameters:
//   - ctx: checked before allocating
//   - dev: the device to allocate on
//
// Returns:
//   - error: an error marked common.ErrResourceCreation if the device buffer cannot be created
func (v *VoidBuffer) Initialize(ctx context.Context, dev device.Device) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if buf, _, ok := v.manager.DeviceBuffer(); ok {
		for i, part := range v.parts {
			m := part.Manager()
			if m.State() != StateAllocation || m.readopt(buf, v.offsets[i]) {
				continue
			}
			if err := clearRegion(ctx, dev, buf, v.offsets[i], m.Size()); err != nil {
				return errors.Wrapf(err, "failed to clear part %q of void buffer %q", part.Label(), v.label)
			}
			m.adopt(buf, v.offsets[i])
		}
		return nil
	}
	if v.manager.State() == StateFreed {
		return common.MissingBackingError("initialize freed void buffer %q", v.label)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "initialize void buffer %q", v.label)
	}

	contents := make([]byte, v.manager.Size())
	hasContents := false
	for i, part := range v.parts {
		m := part.Manager()
		m.mu.Lock()
		switch rep := m.rep.(type) {
		case cpuBytes:
			copy(contents[v.offsets[i]:], rep.data)
			hasContents = true
		case cpuPointer:
			copy(contents[v.offsets[i]:], rep.data)
			hasContents = true
		}
		m.mu.Unlock()
	}

	mode, _ := v.usage.StorageMode()
	desc := device.BufferDescriptor{Label: v.label, Size: v.manager.Size(), StorageMode: mode}
	if hasContents {
		desc.Contents = contents
	}
	buf, err := dev.NewBuffer(desc)
	if err != nil {
		return common.ResourceCreationError(err, "failed to realize void buffer %q", v.label)
	}

	for i, part := range v.parts {
		part.Manager().adopt(buf, v.offsets[i])
	}
	v.manager.adopt(buf, 0)

	common.Logger().Debug("void buffer realized", "buffer", v.label, "parts", len(v.parts), "bytes", v.manager.Size())
	return nil
}

// clearRegion zero-fills size bytes of a private buffer at offset by copying from a zeroed
// staging buffer.
func clearRegion(ctx context.Context, dev device.Device, buf device.Buffer, offset, size uint64) error {
	// copies must be a multiple of 4 bytes; the bytes after a part are alignment padding
	size = min(common.AlignUp(size, 4), buf.Size()-offset)
	zeros, err := dev.NewBuffer(device.BufferDescriptor{
		Label:       buf.Label() + " clear",
		Size:        size,
		StorageMode: device.StorageModeShared,
		Contents:    make([]byte, size),
	})
	if err != nil {
		return common.ResourceCreationError(err, "failed to create clear buffer")
	}
	defer zeros.Release()

	cb, err := dev.Queue().NewCommandBuffer()
	if err != nil {
		return err
	}
	defer cb.Discard()
	enc, err := cb.BlitEncoder()
	if err != nil {
		return err
	}
	enc.CopyBuffer(zeros, 0, buf, offset, size)
	if err := enc.End(); err != nil {
		return err
	}
	if err := cb.Commit(); err != nil {
		return err
	}
	return cb.WaitUntilCompleted(ctx)
}

// Reset releases the shared device buffer and returns every part to a pending allocation.
func (v *VoidBuffer) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if buf, _, ok := v.manager.DeviceBuffer(); ok {
		buf.Release()
	}
	v.manager.Reset()
	for _, part := range v.parts {
		part.Manager().Reset()
	}
}

// Release frees the shared device buffer and every part.
func (v *VoidBuffer) Release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if buf, _, ok := v.manager.DeviceBuffer(); ok {
		buf.Release()
	}
	v.manager.Release()
	for _, part := range v.parts {
		part.Manager().Release()
	}
}
