package commands

import (
	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
)

const scaleFunction = "scale"

// scaleSource multiplies every element of a storage buffer by the factor constant.
const scaleSource = `
override factor: f32 = 1.0;

@group(0) @binding(0) var<storage, read_write> values: array<f32>;

@compute @workgroup_size(64)
fn scale(@builtin(global_invocation_id) id: vec3<u32>) {
	if (id.x >= arrayLength(&values)) {
		return;
	}
	values[id.x] = values[id.x] * factor;
}
`

// scaleKernel is scaleSource for the software device.
func scaleKernel(inv *device.ComputeInvocation) {
	p := inv.ThreadPositionInGrid
	data := inv.Buffers[0]
	if p.Y != 0 || p.Z != 0 || (p.X+1)*4 > len(data) {
		return
	}
	factor := float32(inv.Constants["factor"])
	common.WriteElement(data, p.X, common.ReadElement[float32](data, p.X)*factor)
}

func scaleKernels() device.Kernels {
	return device.Kernels{Compute: map[string]device.ComputeKernel{scaleFunction: scaleKernel}}
}
