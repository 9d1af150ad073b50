// Package buffer manages the lifetime of GPU buffers from their logical description to device memory.
//
// A buffer starts out as a pending allocation, a pending constructor or CPU bytes, and is realized
// into a device buffer the first time a pass initializes it. Writes made before realization are
// queued and replayed in order once backing storage exists.
package buffer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
)

// Usage is the CPU/GPU visibility and mutability contract of a buffer.
type Usage int

const (
	// UsageDevice buffers live in private device memory. Any CPU indexed access panics.
	UsageDevice Usage = iota

	// UsageShared buffers are visible to both the CPU and the device through the same memory.
	UsageShared

	// UsageManaged buffers keep a CPU copy and a device copy. CPU writes are announced to the device
	// automatically; device writes are only visible after a synchronize blit.
	UsageManaged

	// UsageSparse buffers are CPU-only and never mutated by the device. They are never materialized
	// on the device and are encoded inline on every pass.
	UsageSparse
)

func (u Usage) String() string {
	switch u {
	case UsageDevice:
		return "device"
	case UsageShared:
		return "shared"
	case UsageManaged:
		return "managed"
	case UsageSparse:
		return "sparse"
	default:
		return fmt.Sprintf("Usage(%d)", int(u))
	}
}

// StorageMode maps the usage to the storage mode requested from the device.
//
// Returns:
//   - device.StorageMode: the storage mode
//   - bool: false for sparse buffers, which have no device storage
func (u Usage) StorageMode() (device.StorageMode, bool) {
	switch u {
	case UsageDevice:
		return device.StorageModePrivate, true
	case UsageShared:
		return device.StorageModeShared, true
	case UsageManaged:
		return device.StorageModeManaged, true
	default:
		return 0, false
	}
}

// CPUAccessible reports whether indexed CPU access is legal for the usage.
func (u Usage) CPUAccessible() bool {
	return u != UsageDevice
}
