package device

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doubleSource = `
override factor: f32 = 2.0;

@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> output: array<f32>;

@compute @workgroup_size(64)
fn double(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x >= arrayLength(&input)) {
        return;
    }
    output[id.x] = input[id.x] * factor;
}
`

// newTestWGPUDevice skips the test when the machine has no usable adapter.
func newTestWGPUDevice(t *testing.T) WGPUDevice {
	t.Helper()
	dev, err := NewWGPUDevice(WithLabel("test"), WithDefaultLibrarySource("double", doubleSource))
	if err != nil {
		t.Skipf("no wgpu adapter available: %v", err)
	}
	t.Cleanup(dev.Release)
	return dev
}

func TestWGPUComputeRoundTrip(t *testing.T) {
	dev := newTestWGPUDevice(t)

	lib, err := dev.DefaultLibrary()
	require.NoError(t, err)
	assert.Equal(t, []string{"double"}, lib.FunctionNames())

	pipeline, err := dev.NewComputePipeline(lib, FunctionDescriptor{Name: "double", Constants: FunctionConstants{"factor": 3}})
	require.NoError(t, err)
	assert.Equal(t, common.NewSize(64, 1, 1), pipeline.ThreadGroupSize())

	input, err := dev.NewBuffer(BufferDescriptor{StorageMode: StorageModeShared, Contents: float32Bytes(1, 2, 3)})
	require.NoError(t, err)
	output, err := dev.NewBuffer(BufferDescriptor{StorageMode: StorageModeShared, Size: 12})
	require.NoError(t, err)

	cb, err := dev.Queue().NewCommandBuffer()
	require.NoError(t, err)
	enc, err := cb.ComputeEncoder()
	require.NoError(t, err)
	enc.SetPipeline(pipeline)
	enc.SetBuffer(input, 0, 0)
	enc.SetBuffer(output, 0, 1)
	enc.Dispatch(common.NewSize(1, 1, 1), pipeline.ThreadGroupSize())
	require.NoError(t, enc.End())
	require.NoError(t, cb.Commit())
	require.NoError(t, waitFor(t, cb))

	for i, want := range []float32{3, 6, 9} {
		assert.Equal(t, want, float32At(output.Contents(), i))
	}
}

func TestWGPUDiscardReleasesUncommittedWork(t *testing.T) {
	dev := newTestWGPUDevice(t)
	lib, err := dev.DefaultLibrary()
	require.NoError(t, err)
	pipeline, err := dev.NewComputePipeline(lib, FunctionDescriptor{Name: "double"})
	require.NoError(t, err)
	output, err := dev.NewBuffer(BufferDescriptor{StorageMode: StorageModeShared, Size: 12})
	require.NoError(t, err)

	cb, err := dev.Queue().NewCommandBuffer()
	require.NoError(t, err)
	enc, err := cb.ComputeEncoder()
	require.NoError(t, err)
	enc.SetPipeline(pipeline)
	enc.SetBytes(float32Bytes(1, 2, 3), 0)
	enc.SetBuffer(output, 0, 1)
	enc.Dispatch(common.NewSize(1, 1, 1), pipeline.ThreadGroupSize())

	cb.Discard()
	assert.Equal(t, CommandBufferStatusDiscarded, cb.Status())
	assert.Error(t, cb.Commit())
	assert.Error(t, waitFor(t, cb))
	cb.Discard()
	assert.Equal(t, make([]byte, 12), output.Contents())
}

func TestWGPUMissingEntryPoint(t *testing.T) {
	dev := newTestWGPUDevice(t)
	lib, err := dev.DefaultLibrary()
	require.NoError(t, err)

	_, err = dev.NewComputePipeline(lib, FunctionDescriptor{Name: "missing"})
	assert.True(t, errors.Is(err, common.ErrCompilation))

	foreign, err := NewSoftwareDevice(WithComputeKernel("double", doubleKernel)).DefaultLibrary()
	require.NoError(t, err)
	_, err = dev.NewComputePipeline(foreign, FunctionDescriptor{Name: "double"})
	assert.True(t, errors.Is(err, common.ErrCompilation))
}
