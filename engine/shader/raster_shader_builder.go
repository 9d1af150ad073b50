package shader

import (
	"github.com/Carmen-Shannon/oxy-gpu/engine/buffer"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/texture"
)

// RasterShaderBuilderOption is a functional option for configuring a RasterShader via NewRasterShader.
type RasterShaderBuilderOption func(*RasterShader)

// WithVertexConstants is an option builder that sets the vertex function constants.
//
// Parameters:
//   - constants: the specialization values
//
// Returns:
//   - RasterShaderBuilderOption: a function that applies the constants option to a raster shader
func WithVertexConstants(constants device.FunctionConstants) RasterShaderBuilderOption {
	return func(s *RasterShader) {
		s.vertex.Constants = constants
	}
}

// WithFragmentConstants is an option builder that sets the fragment function constants.
//
// Parameters:
//   - constants: the specialization values
//
// Returns:
//   - RasterShaderBuilderOption: a function that applies the constants option to a raster shader
func WithFragmentConstants(constants device.FunctionConstants) RasterShaderBuilderOption {
	return func(s *RasterShader) {
		s.fragment.Constants = constants
	}
}

// WithRasterFunction is an option builder that uses an existing function, sharing its compiled
// pipeline. It takes precedence over the entry points, constants, format and primitive.
func WithRasterFunction(fn *RasterFunction) RasterShaderBuilderOption {
	return func(s *RasterShader) {
		s.function = fn
	}
}

// WithVertexBuffers is an option builder that sets the vertex stage buffers, in index order.
func WithVertexBuffers(buffers ...buffer.Erased) RasterShaderBuilderOption {
	return func(s *RasterShader) {
		s.vertexBuffers = buffers
	}
}

// WithFragmentBuffers is an option builder that sets the fragment stage buffers, in index order.
func WithFragmentBuffers(buffers ...buffer.Erased) RasterShaderBuilderOption {
	return func(s *RasterShader) {
		s.fragmentBuffers = buffers
	}
}

// WithVertexTextures is an option builder that sets the vertex stage textures, in index order.
func WithVertexTextures(textures ...*texture.Texture) RasterShaderBuilderOption {
	return func(s *RasterShader) {
		s.vertexTextures = textures
	}
}

// WithFragmentTextures is an option builder that sets the fragment stage textures, in index order.
func WithFragmentTextures(textures ...*texture.Texture) RasterShaderBuilderOption {
	return func(s *RasterShader) {
		s.fragmentTextures = textures
	}
}

// WithVertexRange is an option builder that sets the vertices drawn.
//
// Parameters:
//   - start: the first vertex
//   - count: the number of vertices
//
// Returns:
//   - RasterShaderBuilderOption: a function that applies the range option to a raster shader
func WithVertexRange(start, count int) RasterShaderBuilderOption {
	return func(s *RasterShader) {
		s.startingVertex, s.vertexCount = start, count
	}
}

// WithPrimitive is an option builder that sets the topology drawn.
func WithPrimitive(primitive device.PrimitiveType) RasterShaderBuilderOption {
	return func(s *RasterShader) {
		s.primitive = primitive
	}
}
