package shader

import (
	"github.com/Carmen-Shannon/oxy-gpu/engine/buffer"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/texture"
)

// ComputeShaderBuilderOption is a functional option for configuring a ComputeShader via NewComputeShader.
type ComputeShaderBuilderOption func(*ComputeShader)

// WithComputeConstants is an option builder that sets the function constants of the entry point.
//
// Parameters:
//   - constants: the specialization values
//
// Returns:
//   - ComputeShaderBuilderOption: a function that applies the constants option to a compute shader
func WithComputeConstants(constants device.FunctionConstants) ComputeShaderBuilderOption {
	return func(s *ComputeShader) {
		s.constants = constants
	}
}

// WithComputeFunction is an option builder that uses an existing function, sharing its compiled
// pipeline. It takes precedence over the name and constants.
//
// Parameters:
//   - fn: the compute function
//
// Returns:
//   - ComputeShaderBuilderOption: a function that applies the function option to a compute shader
func WithComputeFunction(fn *ComputeFunction) ComputeShaderBuilderOption {
	return func(s *ComputeShader) {
		s.function = fn
		s.name = fn.Name()
	}
}

// WithBuffers is an option builder that sets the bound buffers, in index order.
//
// Parameters:
//   - buffers: the buffers
//
// Returns:
//   - ComputeShaderBuilderOption: a function that applies the buffers option to a compute shader
func WithBuffers(buffers ...buffer.Erased) ComputeShaderBuilderOption {
	return func(s *ComputeShader) {
		s.buffers = buffers
	}
}

// WithTextures is an option builder that sets the bound textures, in index order.
//
// Parameters:
//   - textures: the textures
//
// Returns:
//   - ComputeShaderBuilderOption: a function that applies the textures option to a compute shader
func WithTextures(textures ...*texture.Texture) ComputeShaderBuilderOption {
	return func(s *ComputeShader) {
		s.textures = textures
	}
}

// WithDispatch is an option builder that replaces the default texture dispatch.
//
// Parameters:
//   - dispatch: the dispatch sizing
//
// Returns:
//   - ComputeShaderBuilderOption: a function that applies the dispatch option to a compute shader
func WithDispatch(dispatch ThreadGroupDispatch) ComputeShaderBuilderOption {
	return func(s *ComputeShader) {
		s.dispatch = dispatch
	}
}
