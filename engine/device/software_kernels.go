package device

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-gpu/common"
)

// ComputeInvocation is the per-thread input of a software compute kernel.
type ComputeInvocation struct {
	// ThreadPositionInGrid is the global thread position.
	ThreadPositionInGrid common.Origin
	// ThreadPositionInGroup is the thread position inside its group.
	ThreadPositionInGroup common.Origin
	// GroupPosition is the position of the thread's group.
	GroupPosition common.Origin
	// GridSize is the total number of threads in each dimension. It may exceed the data size.
	GridSize common.Size
	// Buffers holds the bound bytes by index, each starting at its bound offset. Unbound indices are nil.
	Buffers [][]byte
	// Textures holds the bound textures by index.
	Textures []KernelTexture
	// Constants are the pipeline's function constants.
	Constants FunctionConstants
}

// VertexInvocation is the per-vertex input of a software vertex kernel.
type VertexInvocation struct {
	// VertexID is the index of the vertex being processed.
	VertexID int
	// Buffers holds the vertex stage bound bytes by index.
	Buffers [][]byte
	// Textures holds the vertex stage textures by index.
	Textures []KernelTexture
	// Constants are the vertex function's constants.
	Constants FunctionConstants
}

// VertexOutput is the result of a software vertex kernel.
type VertexOutput struct {
	// Position is the clip space position.
	Position [4]float32
	// UV is the texture coordinate passed to the fragment stage.
	UV [2]float32
}

// FragmentInvocation is the per-pixel input of a software fragment kernel.
type FragmentInvocation struct {
	// Position is the pixel position in the render target.
	Position common.Origin
	// UV is the pixel center normalized to [0, 1] with the origin at the top left.
	UV [2]float32
	// TargetSize is the size of the color attachment.
	TargetSize common.Size
	// Buffers holds the fragment stage bound bytes by index.
	Buffers [][]byte
	// Textures holds the fragment stage textures by index.
	Textures []KernelTexture
	// Constants are the fragment function's constants.
	Constants FunctionConstants
}

// ComputeKernel is a Go implementation of a compute entry point, run once per thread.
type ComputeKernel func(inv *ComputeInvocation)

// VertexKernel is a Go implementation of a vertex entry point, run once per vertex.
type VertexKernel func(inv *VertexInvocation) VertexOutput

// FragmentKernel is a Go implementation of a fragment entry point, run once per pixel. It returns
// the RGBA color written to the first color attachment.
type FragmentKernel func(inv *FragmentInvocation) [4]float32

// Kernels is a registry of software entry points by name.
type Kernels struct {
	Compute  map[string]ComputeKernel
	Vertex   map[string]VertexKernel
	Fragment map[string]FragmentKernel
}

// Merge returns a registry holding the entries of k and other. Entries of other win on name clashes.
//
// Parameters:
//   - other: the registry to merge in
//
// Returns:
//   - Kernels: the merged registry
func (k Kernels) Merge(other Kernels) Kernels {
	merged := Kernels{
		Compute:  make(map[string]ComputeKernel, len(k.Compute)+len(other.Compute)),
		Vertex:   make(map[string]VertexKernel, len(k.Vertex)+len(other.Vertex)),
		Fragment: make(map[string]FragmentKernel, len(k.Fragment)+len(other.Fragment)),
	}
	for _, src := range []Kernels{k, other} {
		for name, fn := range src.Compute {
			merged.Compute[name] = fn
		}
		for name, fn := range src.Vertex {
			merged.Vertex[name] = fn
		}
		for name, fn := range src.Fragment {
			merged.Fragment[name] = fn
		}
	}
	return merged
}

// names lists every registered entry point.
func (k Kernels) names() []string {
	names := make([]string, 0, len(k.Compute)+len(k.Vertex)+len(k.Fragment))
	for name := range k.Compute {
		names = append(names, name)
	}
	for name := range k.Vertex {
		names = append(names, name)
	}
	for name := range k.Fragment {
		names = append(names, name)
	}
	return names
}

// KernelTexture is texel access to a texture bound to a software kernel. Colors are RGBA with
// normalized formats mapped to [0, 1].
type KernelTexture interface {
	// Size returns the texture extent.
	Size() common.Size

	// Format returns the texel format.
	Format() PixelFormat

	// Load reads the texel at (x, y, z). Out of range coordinates are clamped to the edge.
	Load(x, y, z int) [4]float32

	// Store writes the texel at (x, y, z). Out of range coordinates are ignored.
	Store(x, y, z int, color [4]float32)

	// Sample reads the texel nearest to the normalized coordinate uv on slice 0.
	Sample(uv [2]float32) [4]float32
}

// encodeTexel writes color into dst using the format's layout.
func encodeTexel(format PixelFormat, dst []byte, color [4]float32) {
	switch format {
	case PixelFormatRGBA8Unorm, PixelFormatRGBA8UnormSrgb:
		for i := range 4 {
			dst[i] = unorm8(color[i])
		}
	case PixelFormatBGRA8Unorm, PixelFormatBGRA8UnormSrgb:
		dst[0], dst[1], dst[2], dst[3] = unorm8(color[2]), unorm8(color[1]), unorm8(color[0]), unorm8(color[3])
	case PixelFormatR32Float, PixelFormatDepth32Float:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(color[0]))
	case PixelFormatRGBA32Float:
		for i := range 4 {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(color[i]))
		}
	case PixelFormatRGBA16Float:
		for i := range 4 {
			binary.LittleEndian.PutUint16(dst[i*2:], float32ToHalf(color[i]))
		}
	}
}

// decodeTexel reads a color from src using the format's layout.
func decodeTexel(format PixelFormat, src []byte) [4]float32 {
	switch format {
	case PixelFormatRGBA8Unorm, PixelFormatRGBA8UnormSrgb:
		return [4]float32{float32(src[0]) / 255, float32(src[1]) / 255, float32(src[2]) / 255, float32(src[3]) / 255}
	case PixelFormatBGRA8Unorm, PixelFormatBGRA8UnormSrgb:
		return [4]float32{float32(src[2]) / 255, float32(src[1]) / 255, float32(src[0]) / 255, float32(src[3]) / 255}
	case PixelFormatR32Float, PixelFormatDepth32Float:
		return [4]float32{math.Float32frombits(binary.LittleEndian.Uint32(src)), 0, 0, 1}
	case PixelFormatRGBA32Float:
		var c [4]float32
		for i := range 4 {
			c[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
		return c
	case PixelFormatRGBA16Float:
		var c [4]float32
		for i := range 4 {
			c[i] = halfToFloat32(binary.LittleEndian.Uint16(src[i*2:]))
		}
		return c
	default:
		return [4]float32{}
	}
}

func unorm8(v float32) byte {
	v = min(max(v, 0), 1)
	return byte(v*255 + 0.5)
}

// float32ToHalf converts to IEEE 754 binary16, flushing subnormals to zero.
func float32ToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case bits&0x7fffffff == 0:
		return sign
	case exp >= 0x1f:
		if bits&0x7f800000 == 0x7f800000 && mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	case exp <= 0:
		return sign
	default:
		return sign | uint16(exp)<<10 | uint16(mant>>13)
	}
}

// halfToFloat32 converts from IEEE 754 binary16, treating subnormals as zero.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)

	switch exp {
	case 0:
		return math.Float32frombits(sign)
	case 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp-15+127)<<23 | mant<<13)
	}
}
