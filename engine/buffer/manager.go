package buffer

import (
	"context"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/cockroachdb/errors"
)

// Initializer realizes a resource on a device. A VoidBuffer is the Initializer of its parts.
type Initializer interface {
	Initialize(ctx context.Context, dev device.Device) error
}

// Manager owns the backing representation of exactly one buffer. It is safe for concurrent use,
// but passes that share a manager still need to be serialized by the caller.
type Manager struct {
	mu      sync.Mutex
	label   string
	usage   Usage
	stride  int
	count   int
	rep     representation
	pending []pendingWrite

	// owner is a non-owning back-reference to the initializer that realizes this manager.
	owner Initializer
}

func newManager(label string, usage Usage, stride, count int, rep representation) *Manager {
	// sparse buffers never reach the device, so a pending allocation is just zeroed memory
	if a, ok := rep.(allocation); ok && usage == UsageSparse {
		rep = cpuBytes{data: make([]byte, a.count*stride)}
	}
	return &Manager{
		label:  label,
		usage:  usage,
		stride: stride,
		count:  count,
		rep:    rep,
	}
}

// Label returns the debug label.
func (m *Manager) Label() string {
	return m.label
}

// Usage returns the usage class.
func (m *Manager) Usage() Usage {
	return m.usage
}

// Stride returns the element size in bytes.
func (m *Manager) Stride() int {
	return m.stride
}

// Count returns the number of elements.
func (m *Manager) Count() int {
	return m.count
}

// Size returns the buffer size in bytes.
func (m *Manager) Size() uint64 {
	return uint64(m.count * m.stride)
}

// State reports which representation the manager currently holds.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rep.state()
}

// Pending returns the number of writes waiting for backing storage.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// checkAccess panics when CPU indexed access is illegal. Caller holds the lock.
func (m *Manager) checkAccess(index int) {
	if !m.usage.CPUAccessible() {
		common.PanicUsageViolation("CPU access to device-only buffer %q", m.label)
	}
	if _, ok := m.rep.(freed); ok {
		common.PanicMissingBacking("access to freed buffer %q", m.label)
	}
	if index < 0 || index >= m.count {
		common.PanicUsageViolation("index %d out of range [0, %d) for buffer %q", index, m.count, m.label)
	}
}

// cpuView returns the CPU-visible bytes backing the manager, or nil when there are none.
// Caller holds the lock.
func (m *Manager) cpuView() []byte {
	switch rep := m.rep.(type) {
	case allocation, future, freed:
		return nil
	case cpuBytes:
		return rep.data
	case cpuPointer:
		return rep.data
	case realized:
		contents := rep.buffer.Contents()
		if contents == nil {
			return nil
		}
		return contents[rep.offset : rep.offset+m.Size()]
	default:
		panic(errors.AssertionFailedf("unhandled representation %T", rep))
	}
}

// Read returns a copy of the bytes of element index.
//
// Parameters:
//   - index: the element index
//
// Returns:
//   - []byte: the element bytes
//   - bool: false when no backing store exists yet
func (m *Manager) Read(index int) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkAccess(index)

	view := m.cpuView()
	if view == nil {
		return nil, false
	}
	start := index * m.stride
	return slices.Clone(view[start : start+m.stride]), true
}

// Write stores data as element index. Without backing storage the write is queued and replayed
// when the manager is realized.
//
// Parameters:
//   - index: the element index
//   - data: exactly Stride bytes
func (m *Manager) Write(index int, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkAccess(index)
	if len(data) != m.stride {
		common.PanicUsageViolation("write of %d bytes to buffer %q with stride %d", len(data), m.label, m.stride)
	}

	switch m.rep.(type) {
	case allocation, future:
		m.pending = append(m.pending, pendingWrite{index: index, data: slices.Clone(data)})
	case cpuBytes, cpuPointer, realized:
		m.apply(index, data)
	case freed:
		common.PanicMissingBacking("write to freed buffer %q", m.label)
	default:
		panic(errors.AssertionFailedf("unhandled representation %T", m.rep))
	}
}

// apply writes data into the backing store and announces managed changes. Caller holds the lock.
func (m *Manager) apply(index int, data []byte) {
	view := m.cpuView()
	if view == nil {
		common.Logger().Warn("dropping write without CPU-visible backing", "buffer", m.label, "index", index)
		return
	}
	start := index * m.stride
	copy(view[start:start+m.stride], data)

	if r, ok := m.rep.(realized); ok && m.usage == UsageManaged {
		begin := r.offset + uint64(start)
		r.buffer.DidModifyRange(begin, begin+uint64(m.stride))
	}
}

// Snapshot copies every element's bytes.
//
// Returns:
//   - []byte: Count*Stride bytes
//   - bool: false when no backing store exists yet
func (m *Manager) Snapshot() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.usage.CPUAccessible() {
		common.PanicUsageViolation("CPU access to device-only buffer %q", m.label)
	}
	if _, ok := m.rep.(freed); ok {
		common.PanicMissingBacking("access to freed buffer %q", m.label)
	}

	view := m.cpuView()
	if view == nil {
		return nil, false
	}
	return slices.Clone(view), true
}

// DeviceBuffer exposes the realized device buffer.
//
// Returns:
//   - device.Buffer: the buffer, which may be shared with other managers
//   - uint64: the byte offset of this manager's data inside the buffer
//   - bool: false unless the manager is realized
func (m *Manager) DeviceBuffer() (device.Buffer, uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rep.(realized); ok {
		return r.buffer, r.offset, true
	}
	return nil, 0, false
}

// Initialize realizes the manager on dev. Managers owned by a VoidBuffer delegate to it.
// Sparse and already realized managers are left untouched.
//
// Parameters:
//   - ctx: bounds future constructors
//   - dev: the device to allocate on
//
// Returns:
//   - error: an error marked common.ErrResourceCreation if the device buffer cannot be created, or
//     common.ErrMissingBacking if the manager was freed
func (m *Manager) Initialize(ctx context.Context, dev device.Device) error {
	m.mu.Lock()
	owner := m.owner
	m.mu.Unlock()
	if owner != nil {
		return owner.Initialize(ctx, dev)
	}

	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "initialize buffer %q", m.label)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.usage == UsageSparse {
		return nil
	}
	mode, _ := m.usage.StorageMode()

	var (
		buf device.Buffer
		err error
	)
	switch rep := m.rep.(type) {
	case realized:
		return nil
	case freed:
		return common.MissingBackingError("initialize freed buffer %q", m.label)
	case allocation:
		buf, err = dev.NewBuffer(device.BufferDescriptor{Label: m.label, Size: m.Size(), StorageMode: mode})
	case future:
		buf, err = rep.constructor(ctx, dev)
		if err == nil && buf != nil && buf.Size() < m.Size() {
			err = errors.Newf("constructed buffer holds %d bytes, need %d", buf.Size(), m.Size())
		}
		if err == nil && buf == nil {
			err = errors.New("constructor returned no buffer")
		}
	case cpuBytes:
		buf, err = dev.NewBuffer(device.BufferDescriptor{Label: m.label, Size: m.Size(), StorageMode: mode, Contents: rep.data})
	case cpuPointer:
		buf, err = dev.NewBuffer(device.BufferDescriptor{Label: m.label, Size: m.Size(), StorageMode: mode, Contents: rep.data})
	default:
		panic(errors.AssertionFailedf("unhandled representation %T", rep))
	}
	if err != nil {
		return common.ResourceCreationError(err, "failed to realize buffer %q", m.label)
	}

	m.realize(buf, 0)
	common.Logger().Debug("buffer realized", "buffer", m.label, "usage", m.usage, "bytes", m.Size())
	return nil
}

// realize installs buf as the backing store and replays queued writes in FIFO order.
// Caller holds the lock.
func (m *Manager) realize(buf device.Buffer, offset uint64) {
	m.rep = realized{buffer: buf, offset: offset}
	pending := m.pending
	m.pending = nil
	for _, w := range pending {
		m.apply(w.index, w.data)
	}
}

// adopt realizes the manager as a region of a buffer owned by someone else.
func (m *Manager) adopt(buf device.Buffer, offset uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.realize(buf, offset)
}

// readopt realizes a part that was reset while its owner's buffer stayed realized. The part's old
// region is zeroed before queued writes replay. It reports false when the region has no CPU-visible
// bytes, in which case the caller clears it on the device before adopting.
func (m *Manager) readopt(buf device.Buffer, offset uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	contents := buf.Contents()
	if contents == nil {
		return false
	}
	clear(contents[offset : offset+m.Size()])
	if m.usage == UsageManaged {
		buf.DidModifyRange(offset, offset+m.Size())
	}
	m.realize(buf, offset)
	return true
}

// setOwner installs the initializer that realizes this manager.
func (m *Manager) setOwner(owner Initializer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owner = owner
}

// Encode binds the manager's backing store at index.
//
// Parameters:
//   - enc: the encoder to bind on
//   - index: the binding index
//
// Returns:
//   - error: an error marked common.ErrMissingBacking if the manager has no backing store
func (m *Manager) Encode(enc device.ResourceEncoder, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch rep := m.rep.(type) {
	case realized:
		enc.SetBuffer(rep.buffer, rep.offset, index)
	case cpuBytes:
		enc.SetBytes(rep.data, index)
	case cpuPointer:
		enc.SetBytes(rep.data, index)
	case allocation, future:
		return common.MissingBackingError("buffer %q is not realized", m.label)
	case freed:
		return common.MissingBackingError("buffer %q was freed", m.label)
	default:
		panic(errors.AssertionFailedf("unhandled representation %T", rep))
	}
	return nil
}

// Reset discards the backing store and queued writes and returns to a pending allocation.
// Sparse managers return to zeroed CPU bytes.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseBacking()
	m.pending = nil
	if m.usage == UsageSparse {
		m.rep = cpuBytes{data: make([]byte, m.Size())}
		return
	}
	m.rep = allocation{count: m.count}
}

// Release frees the backing store. Any later access panics.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseBacking()
	m.pending = nil
	m.rep = freed{}
}

// releaseBacking releases a device buffer this manager owns. Caller holds the lock.
func (m *Manager) releaseBacking() {
	if r, ok := m.rep.(realized); ok && m.owner == nil {
		r.buffer.Release()
	}
}
