package buffer

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
)

// Constructor produces the device buffer of a future buffer at realization time.
type Constructor func(ctx context.Context, dev device.Device) (device.Buffer, error)

// State names the variant currently held by a Manager.
type State int

const (
	// StateAllocation is a pending allocation of Count elements.
	StateAllocation State = iota
	// StateFuture is a pending Constructor.
	StateFuture
	// StateCPUBytes is CPU memory owned by the manager.
	StateCPUBytes
	// StateCPUPointer is CPU memory aliasing a caller's slice.
	StateCPUPointer
	// StateRealized is a device buffer, possibly at an offset inside a larger allocation.
	StateRealized
	// StateFreed is a released buffer.
	StateFreed
)

func (s State) String() string {
	switch s {
	case StateAllocation:
		return "allocation"
	case StateFuture:
		return "future"
	case StateCPUBytes:
		return "cpu bytes"
	case StateCPUPointer:
		return "cpu pointer"
	case StateRealized:
		return "realized"
	case StateFreed:
		return "freed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// representation is the sum type of buffer backings. Every access site switches over all variants.
type representation interface {
	state() State
}

type allocation struct {
	count int
}

type future struct {
	constructor Constructor
}

type cpuBytes struct {
	data []byte
}

type cpuPointer struct {
	data []byte
}

type realized struct {
	buffer device.Buffer
	offset uint64
}

type freed struct{}

func (allocation) state() State { return StateAllocation }
func (future) state() State     { return StateFuture }
func (cpuBytes) state() State   { return StateCPUBytes }
func (cpuPointer) state() State { return StateCPUPointer }
func (realized) state() State   { return StateRealized }
func (freed) state() State      { return StateFreed }

// pendingWrite is a write made before backing storage existed.
type pendingWrite struct {
	index int
	data  []byte
}
