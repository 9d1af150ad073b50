// Package device defines the capabilities oxy-gpu needs from a GPU runtime and provides two implementations:
// a WebGPU backend built on wgpu-native and an in-process software backend that runs Go kernels.
//
// The interfaces mirror the shape of explicit GPU APIs: a Device creates resources and pipelines, a Queue hands
// out CommandBuffers, and a CommandBuffer records work through compute, render and blit encoders before it is
// committed. Resources are bound by positional index; textures are bound as a contiguous range starting at 0.
package device

import (
	"context"

	"github.com/Carmen-Shannon/oxy-gpu/common"
)

// Device is a logical GPU. It creates buffers, textures, libraries and pipelines, and owns the command queue.
type Device interface {
	// Name returns a human-readable device name.
	//
	// Returns:
	//   - string: the device name
	Name() string

	// Backend reports which implementation backs this device.
	//
	// Returns:
	//   - BackendType: the backend
	Backend() BackendType

	// Queue returns the device's command queue.
	//
	// Returns:
	//   - Queue: the command queue
	Queue() Queue

	// NewBuffer allocates a buffer. When desc.Contents is set the buffer is initialized with it.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - Buffer: the created buffer
	//   - error: an error marked common.ErrResourceCreation if allocation fails
	NewBuffer(desc BufferDescriptor) (Buffer, error)

	// NewTexture allocates a texture.
	//
	// Parameters:
	//   - desc: the texture descriptor
	//
	// Returns:
	//   - Texture: the created texture
	//   - error: an error marked common.ErrResourceCreation if allocation fails
	NewTexture(desc TextureDescriptor) (Texture, error)

	// NewLibrary creates a shader library from source.
	//
	// Parameters:
	//   - desc: the library descriptor
	//
	// Returns:
	//   - Library: the created library
	//   - error: an error marked common.ErrCompilation if the source is rejected
	NewLibrary(desc LibraryDescriptor) (Library, error)

	// DefaultLibrary returns the library configured when the device was created.
	//
	// Returns:
	//   - Library: the default library
	//   - error: an error marked common.ErrMissingBacking if no default library exists
	DefaultLibrary() (Library, error)

	// NewComputePipeline compiles a compute pipeline for an entry point in lib.
	//
	// Parameters:
	//   - lib: the library holding the entry point
	//   - fn: the entry point and its constants
	//
	// Returns:
	//   - ComputePipeline: the compiled pipeline
	//   - error: an error marked common.ErrCompilation if compilation fails
	NewComputePipeline(lib Library, fn FunctionDescriptor) (ComputePipeline, error)

	// NewRenderPipeline compiles a render pipeline for a vertex and fragment entry point pair in lib.
	//
	// Parameters:
	//   - lib: the library holding both entry points
	//   - desc: the render pipeline descriptor
	//
	// Returns:
	//   - RenderPipeline: the compiled pipeline
	//   - error: an error marked common.ErrCompilation if compilation fails
	NewRenderPipeline(lib Library, desc RenderPipelineDescriptor) (RenderPipeline, error)

	// Release frees the device and everything it still owns.
	Release()
}

// Queue submits command buffers to a Device.
type Queue interface {
	// Label returns the queue's debug label.
	Label() string

	// NewCommandBuffer starts a new command buffer in the recording state.
	//
	// Returns:
	//   - CommandBuffer: the new command buffer
	//   - error: an error marked common.ErrResourceCreation if the buffer cannot be created
	NewCommandBuffer() (CommandBuffer, error)
}

// CommandBuffer records encoded work and submits it as one unit.
type CommandBuffer interface {
	// ComputeEncoder opens a compute encoder. The previous encoder must have been ended.
	//
	// Returns:
	//   - ComputeEncoder: the encoder
	//   - error: an error if the command buffer is no longer recording
	ComputeEncoder() (ComputeEncoder, error)

	// RenderEncoder opens a render encoder targeting the attachments in desc.
	//
	// Parameters:
	//   - desc: the render pass attachments
	//
	// Returns:
	//   - RenderEncoder: the encoder
	//   - error: an error if the descriptor is invalid or the command buffer is no longer recording
	RenderEncoder(desc RenderPassDescriptor) (RenderEncoder, error)

	// BlitEncoder opens a blit encoder for copies and synchronization.
	//
	// Returns:
	//   - BlitEncoder: the encoder
	//   - error: an error if the command buffer is no longer recording
	BlitEncoder() (BlitEncoder, error)

	// Present schedules a drawable to be presented once the command buffer has been committed.
	//
	// Parameters:
	//   - drawable: the drawable to present
	Present(drawable Drawable)

	// Commit submits the recorded work. The command buffer stops accepting encoders.
	//
	// Returns:
	//   - error: an error if submission fails
	Commit() error

	// Discard abandons a command buffer that is still recording and releases what it holds. It is a
	// no-op once the command buffer has been committed.
	Discard()

	// WaitUntilCompleted blocks until the committed work has finished executing or ctx is done.
	// Committed work is never cancelled; ctx only bounds the wait.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//
	// Returns:
	//   - error: the execution error, or ctx.Err() if the wait was abandoned
	WaitUntilCompleted(ctx context.Context) error

	// Status reports the command buffer's lifecycle state.
	Status() CommandBufferStatus
}

// ResourceEncoder binds buffers, inline bytes and textures by positional index.
type ResourceEncoder interface {
	// SetBuffer binds a device buffer at index, starting at offset bytes.
	SetBuffer(buffer Buffer, offset uint64, index int)

	// SetBytes binds a copy of data at index. Used for small CPU-only data that the device never mutates.
	SetBytes(data []byte, index int)

	// SetTextures binds textures as the contiguous range [0, len(textures)).
	SetTextures(textures []Texture)
}

// ComputeEncoder encodes compute dispatches.
type ComputeEncoder interface {
	ResourceEncoder

	// SetPipeline selects the compute pipeline for subsequent dispatches.
	SetPipeline(pipeline ComputePipeline)

	// Dispatch launches groups thread groups of threadsPerGroup threads each.
	Dispatch(groups, threadsPerGroup common.Size)

	// End finishes encoding. Any binding error recorded by the encoder is returned here.
	End() error
}

// RenderEncoder encodes draws into a render pass.
type RenderEncoder interface {
	ResourceEncoder

	// SetPipeline selects the render pipeline for subsequent draws.
	SetPipeline(pipeline RenderPipeline)

	// SetStage selects which stage subsequent SetBuffer, SetBytes and SetTextures calls bind to.
	SetStage(stage Stage)

	// Draw issues a non-indexed draw of count vertices starting at start.
	Draw(primitive PrimitiveType, start, count int)

	// End finishes the render pass. Any binding error recorded by the encoder is returned here.
	End() error
}

// BlitEncoder encodes copies and CPU/device synchronization.
type BlitEncoder interface {
	// CopyTexture copies a region of size texels from src at srcOrigin to dst at dstOrigin.
	CopyTexture(src Texture, srcOrigin common.Origin, dst Texture, dstOrigin common.Origin, size common.Size)

	// CopyBuffer copies size bytes from src at srcOffset to dst at dstOffset.
	CopyBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64)

	// Synchronize makes device writes to a managed texture visible to the CPU after completion.
	Synchronize(texture Texture)

	// SynchronizeBuffer makes device writes to a managed buffer visible to the CPU after completion.
	SynchronizeBuffer(buffer Buffer)

	// End finishes encoding. Any error recorded by the encoder is returned here.
	End() error
}

// Buffer is device memory.
type Buffer interface {
	// Label returns the debug label.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// StorageMode returns the buffer's storage mode.
	StorageMode() StorageMode

	// Contents returns the CPU-visible bytes, or nil for private buffers.
	// Writes to a managed buffer's contents must be announced with DidModifyRange.
	//
	// Returns:
	//   - []byte: the CPU-visible bytes
	Contents() []byte

	// DidModifyRange tells the device that CPU writes touched [start, end) of a managed buffer.
	// It is a no-op for other storage modes.
	DidModifyRange(start, end uint64)

	// Release frees the buffer.
	Release()
}

// Texture is device image memory.
type Texture interface {
	// Label returns the debug label.
	Label() string

	// Descriptor returns the descriptor the texture was created with.
	Descriptor() TextureDescriptor

	// Upload replaces the full contents of mip level 0 with tightly packed texel data.
	//
	// Parameters:
	//   - data: width*height*depth*BytesPerPixel bytes
	//
	// Returns:
	//   - error: an error if the data does not match the texture size
	Upload(data []byte) error

	// Release frees the texture.
	Release()
}

// Library is a collection of shader entry points.
type Library interface {
	// Label returns the debug label.
	Label() string

	// FunctionNames lists the entry points in the library.
	FunctionNames() []string

	// HasFunction reports whether name is an entry point of the library.
	HasFunction(name string) bool
}

// ComputePipeline is a compiled compute entry point.
type ComputePipeline interface {
	// Label returns the debug label.
	Label() string

	// ThreadGroupSize returns the workgroup size declared by the entry point, or 1x1x1 when unknown.
	ThreadGroupSize() common.Size
}

// RenderPipeline is a compiled vertex and fragment entry point pair.
type RenderPipeline interface {
	// Label returns the debug label.
	Label() string

	// ColorFormat returns the color attachment format the pipeline was built for.
	ColorFormat() PixelFormat
}

// Drawable is a presentable texture handed out by a Surface.
type Drawable interface {
	// Texture returns the drawable's backing texture.
	Texture() Texture

	// Present shows the drawable. CommandBuffer.Present calls this after the work is submitted.
	//
	// Returns:
	//   - error: an error if presentation fails
	Present() error
}

// Surface produces drawables for a window or offscreen target.
type Surface interface {
	// Configure (re)creates the surface's drawables for a new size.
	//
	// Parameters:
	//   - width: width in pixels
	//   - height: height in pixels
	//
	// Returns:
	//   - error: an error if the surface cannot be configured
	Configure(width, height int) error

	// Format returns the pixel format of the surface's drawables.
	Format() PixelFormat

	// NextDrawable acquires the next drawable.
	//
	// Returns:
	//   - Drawable: the drawable
	//   - error: an error if the surface is not configured or acquisition fails
	NextDrawable() (Drawable, error)

	// Release frees the surface.
	Release()
}
