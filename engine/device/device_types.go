package device

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cockroachdb/errors"
)

// BufferOffsetAlignment is the alignment required for buffer offsets bound to a shader.
// It matches WebGPU's minStorageBufferOffsetAlignment default limit.
const BufferOffsetAlignment uint64 = 256

// BackendType identifies the implementation behind a Device.
type BackendType int

const (
	// BackendWGPU selects the WebGPU backend.
	BackendWGPU BackendType = iota

	// BackendSoftware selects the in-process software reference backend.
	BackendSoftware
)

func (b BackendType) String() string {
	switch b {
	case BackendWGPU:
		return "wgpu"
	case BackendSoftware:
		return "software"
	default:
		return fmt.Sprintf("BackendType(%d)", int(b))
	}
}

// StorageMode controls where a buffer's memory lives and who may touch it.
type StorageMode int

const (
	// StorageModePrivate memory is only accessible by the device.
	StorageModePrivate StorageMode = iota

	// StorageModeShared memory is visible to both the CPU and the device.
	StorageModeShared

	// StorageModeManaged memory has a CPU copy and a device copy. CPU writes must be announced with
	// DidModifyRange and device writes must be synchronized back with a blit.
	StorageModeManaged
)

func (m StorageMode) String() string {
	switch m {
	case StorageModePrivate:
		return "private"
	case StorageModeShared:
		return "shared"
	case StorageModeManaged:
		return "managed"
	default:
		return fmt.Sprintf("StorageMode(%d)", int(m))
	}
}

// PixelFormat is the texel format of a texture or render target.
type PixelFormat int

const (
	// PixelFormatRGBA8Unorm is 8 bits per channel RGBA, normalized.
	PixelFormatRGBA8Unorm PixelFormat = iota
	// PixelFormatRGBA8UnormSrgb is 8 bits per channel RGBA in the sRGB color space.
	PixelFormatRGBA8UnormSrgb
	// PixelFormatBGRA8Unorm is 8 bits per channel BGRA, normalized. The usual swapchain format.
	PixelFormatBGRA8Unorm
	// PixelFormatBGRA8UnormSrgb is 8 bits per channel BGRA in the sRGB color space.
	PixelFormatBGRA8UnormSrgb
	// PixelFormatR32Float is a single 32-bit float channel.
	PixelFormatR32Float
	// PixelFormatRGBA16Float is four 16-bit float channels.
	PixelFormatRGBA16Float
	// PixelFormatRGBA32Float is four 32-bit float channels.
	PixelFormatRGBA32Float
	// PixelFormatDepth32Float is a 32-bit float depth format.
	PixelFormatDepth32Float
)

// BytesPerPixel returns the size in bytes of one texel of the format.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelFormatRGBA8Unorm, PixelFormatRGBA8UnormSrgb, PixelFormatBGRA8Unorm, PixelFormatBGRA8UnormSrgb,
		PixelFormatR32Float, PixelFormatDepth32Float:
		return 4
	case PixelFormatRGBA16Float:
		return 8
	case PixelFormatRGBA32Float:
		return 16
	default:
		return 4
	}
}

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatRGBA8Unorm:
		return "rgba8unorm"
	case PixelFormatRGBA8UnormSrgb:
		return "rgba8unorm-srgb"
	case PixelFormatBGRA8Unorm:
		return "bgra8unorm"
	case PixelFormatBGRA8UnormSrgb:
		return "bgra8unorm-srgb"
	case PixelFormatR32Float:
		return "r32float"
	case PixelFormatRGBA16Float:
		return "rgba16float"
	case PixelFormatRGBA32Float:
		return "rgba32float"
	case PixelFormatDepth32Float:
		return "depth32float"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// TextureUsage is a bit set describing how a texture will be used.
type TextureUsage uint32

const (
	// TextureUsageShaderRead allows sampling or loading the texture in a shader.
	TextureUsageShaderRead TextureUsage = 1 << iota
	// TextureUsageShaderWrite allows storage writes from a shader.
	TextureUsageShaderWrite
	// TextureUsageRenderTarget allows the texture to be a color attachment.
	TextureUsageRenderTarget
	// TextureUsageCopySource allows the texture to be a copy source.
	TextureUsageCopySource
	// TextureUsageCopyDestination allows the texture to be a copy destination or upload target.
	TextureUsageCopyDestination
)

// Has reports whether every bit of flag is set.
func (u TextureUsage) Has(flag TextureUsage) bool {
	return u&flag == flag
}

// PrimitiveType is the topology used by a draw.
type PrimitiveType int

const (
	// PrimitiveTriangle draws independent triangles.
	PrimitiveTriangle PrimitiveType = iota
	// PrimitiveTriangleStrip draws a triangle strip.
	PrimitiveTriangleStrip
	// PrimitiveLine draws independent lines.
	PrimitiveLine
	// PrimitiveLineStrip draws a line strip.
	PrimitiveLineStrip
	// PrimitivePoint draws points.
	PrimitivePoint
)

// LoadAction decides what a color attachment holds at the start of a render pass.
type LoadAction int

const (
	// LoadActionDontCare leaves the attachment contents undefined.
	LoadActionDontCare LoadAction = iota
	// LoadActionLoad preserves the existing contents.
	LoadActionLoad
	// LoadActionClear clears to the attachment's clear color.
	LoadActionClear
)

// StoreAction decides whether a color attachment's contents survive the render pass.
type StoreAction int

const (
	// StoreActionStore keeps the rendered contents.
	StoreActionStore StoreAction = iota
	// StoreActionDontCare discards the rendered contents.
	StoreActionDontCare
)

// Stage selects which render stage subsequent resource bindings target.
type Stage int

const (
	// StageVertex binds to the vertex stage.
	StageVertex Stage = iota
	// StageFragment binds to the fragment stage.
	StageFragment
)

// CommandBufferStatus tracks a command buffer through its lifecycle.
type CommandBufferStatus int

const (
	// CommandBufferStatusRecording accepts new encoders.
	CommandBufferStatusRecording CommandBufferStatus = iota
	// CommandBufferStatusCommitted has been submitted and may be executing.
	CommandBufferStatusCommitted
	// CommandBufferStatusCompleted has finished executing.
	CommandBufferStatusCompleted
	// CommandBufferStatusError failed during submission or execution.
	CommandBufferStatusError
	// CommandBufferStatusDiscarded was dropped before commit and never ran.
	CommandBufferStatusDiscarded
)

var errCommandBufferDiscarded = errors.New("command buffer was discarded")

func (s CommandBufferStatus) String() string {
	switch s {
	case CommandBufferStatusRecording:
		return "recording"
	case CommandBufferStatusCommitted:
		return "committed"
	case CommandBufferStatusCompleted:
		return "completed"
	case CommandBufferStatusError:
		return "error"
	case CommandBufferStatusDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("CommandBufferStatus(%d)", int(s))
	}
}

// FunctionConstants holds named specialization values applied to a shader function at pipeline creation.
type FunctionConstants map[string]float64

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	// Label is a debug label.
	Label string
	// Size is the buffer size in bytes. Ignored when Contents is set and larger.
	Size uint64
	// StorageMode decides CPU visibility.
	StorageMode StorageMode
	// Contents optionally initializes the buffer.
	Contents []byte
}

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	// Label is a debug label.
	Label string
	// Format is the texel format.
	Format PixelFormat
	// Width, Height and Depth give the extent. Depth above 1 creates a 3D texture.
	Width, Height, Depth int
	// StorageMode decides CPU visibility. Textures are usually private.
	StorageMode StorageMode
	// Usage lists the ways the texture will be used.
	Usage TextureUsage
}

// Size returns the texture extent.
func (d TextureDescriptor) Size() common.Size {
	return common.NewSize(d.Width, d.Height, d.Depth)
}

// LibraryDescriptor describes a shader library to create.
type LibraryDescriptor struct {
	// Label is a debug label.
	Label string
	// Source is the WGSL source. The software backend ignores it and resolves entry points against registered kernels.
	Source string
}

// FunctionDescriptor names a shader entry point and its specialization constants.
type FunctionDescriptor struct {
	// Name is the entry point name.
	Name string
	// Constants are optional specialization values.
	Constants FunctionConstants
}

// RenderPipelineDescriptor describes a render pipeline to create.
type RenderPipelineDescriptor struct {
	// Label is a debug label.
	Label string
	// Vertex is the vertex entry point.
	Vertex FunctionDescriptor
	// Fragment is the fragment entry point.
	Fragment FunctionDescriptor
	// ColorFormat is the format of the single color attachment.
	ColorFormat PixelFormat
	// Primitive is the topology drawn with this pipeline.
	Primitive PrimitiveType
}

// ColorAttachment is one color target of a render pass.
type ColorAttachment struct {
	// Texture is the render target.
	Texture Texture
	// LoadAction decides the contents at the start of the pass.
	LoadAction LoadAction
	// StoreAction decides whether the contents survive the pass.
	StoreAction StoreAction
	// ClearColor is used with LoadActionClear, in RGBA order.
	ClearColor [4]float64
}

// RenderPassDescriptor describes the attachments of a render pass.
type RenderPassDescriptor struct {
	// ColorAttachments are the color targets. Index 0 is the primary target.
	ColorAttachments []ColorAttachment
}
