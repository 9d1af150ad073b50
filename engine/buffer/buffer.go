package buffer

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-gpu/common"
)

// Erased is a buffer with its element type erased. Shaders bind erased buffers through their manager.
type Erased interface {
	// Label returns the debug label.
	Label() string

	// Manager returns the manager that owns the backing store.
	Manager() *Manager
}

// Buffer is a typed view over a Manager. T must have a fixed size (for example float32, int32 or a
// struct of those); int, pointers, slices and maps panic at construction.
type Buffer[T any] struct {
	manager *Manager
}

var _ Erased = &Buffer[float32]{}

// New creates a buffer holding a copy of values. The values are uploaded when the buffer is realized.
//
// Parameters:
//   - label: debug label
//   - usage: the usage class
//   - values: the initial elements
//
// Returns:
//   - *Buffer[T]: the buffer
func New[T any](label string, usage Usage, values ...T) *Buffer[T] {
	stride := common.ElementStride[T]()
	data := slices.Clone(common.SliceToBytes(values))
	if data == nil {
		data = []byte{}
	}
	return &Buffer[T]{manager: newManager(label, usage, stride, len(values), cpuBytes{data: data})}
}

// Alloc creates a buffer of count zeroed elements whose device memory is allocated at realization.
//
// Parameters:
//   - label: debug label
//   - usage: the usage class
//   - count: the number of elements
//
// Returns:
//   - *Buffer[T]: the buffer
func Alloc[T any](label string, usage Usage, count int) *Buffer[T] {
	stride := common.ElementStride[T]()
	return &Buffer[T]{manager: newManager(label, usage, stride, count, allocation{count: count})}
}

// FromFuture creates a buffer whose device buffer is produced by ctor at realization. Sparse usage
// is rejected because sparse buffers never reach the device.
//
// Parameters:
//   - label: debug label
//   - usage: the usage class
//   - count: the number of elements the constructed buffer holds
//   - ctor: produces the device buffer
//
// Returns:
//   - *Buffer[T]: the buffer
func FromFuture[T any](label string, usage Usage, count int, ctor Constructor) *Buffer[T] {
	stride := common.ElementStride[T]()
	if usage == UsageSparse {
		common.PanicUsageViolation("future buffer %q cannot be sparse", label)
	}
	return &Buffer[T]{manager: newManager(label, usage, stride, count, future{constructor: ctor})}
}

// FromSlice creates a buffer aliasing values. Until the buffer is realized, writes through the
// buffer land in the caller's slice.
//
// Parameters:
//   - label: debug label
//   - usage: the usage class
//   - values: the caller's elements
//
// Returns:
//   - *Buffer[T]: the buffer
func FromSlice[T any](label string, usage Usage, values []T) *Buffer[T] {
	stride := common.ElementStride[T]()
	data := common.SliceToBytes(values)
	if data == nil {
		data = []byte{}
	}
	return &Buffer[T]{manager: newManager(label, usage, stride, len(values), cpuPointer{data: data})}
}

func (b *Buffer[T]) Label() string {
	return b.manager.Label()
}

func (b *Buffer[T]) Manager() *Manager {
	return b.manager
}

// Usage returns the buffer's usage class.
func (b *Buffer[T]) Usage() Usage {
	return b.manager.Usage()
}

// Count returns the number of elements.
func (b *Buffer[T]) Count() int {
	return b.manager.Count()
}

// Get reads element i. It panics for device-only or freed buffers.
//
// Parameters:
//   - i: the element index
//
// Returns:
//   - T: the element
//   - bool: false when the buffer has no backing store yet
func (b *Buffer[T]) Get(i int) (T, bool) {
	data, ok := b.manager.Read(i)
	if !ok {
		var zero T
		return zero, false
	}
	return common.BytesToStruct[T](data), true
}

// Set writes element i, queuing the write if the buffer has no backing store yet.
// It panics for device-only or freed buffers.
//
// Parameters:
//   - i: the element index
//   - v: the value
func (b *Buffer[T]) Set(i int, v T) {
	b.manager.Write(i, common.StructToBytes(&v))
}

// Values copies every element.
//
// Returns:
//   - []T: the elements
//   - bool: false when the buffer has no backing store yet
func (b *Buffer[T]) Values() ([]T, bool) {
	data, ok := b.manager.Snapshot()
	if !ok {
		return nil, false
	}
	values := make([]T, b.manager.Count())
	for i := range values {
		values[i] = common.ReadElement[T](data, i)
	}
	return values, true
}
