package shader

import (
	"context"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/buffer"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/texture"
	"github.com/cockroachdb/errors"
)

// ComputeShader dispatches a compute function over its bound buffers and textures.
// Buffers bind to consecutive indices and textures to one range, both starting at 0.
type ComputeShader struct {
	name      string
	constants device.FunctionConstants

	function        *ComputeFunction
	buffers         []buffer.Erased
	textures        []*texture.Texture
	threadGroupSize common.Size
	dispatch        ThreadGroupDispatch
}

var (
	_ Shader    = &ComputeShader{}
	_ Resources = &ComputeShader{}
)

// NewComputeShader creates a compute shader for the entry point name. A zero threadGroupSize uses
// the workgroup size the compiled pipeline declares.
//
// Parameters:
//   - name: the entry point name
//   - threadGroupSize: threads per group
//   - options: variadic list of ComputeShaderBuilderOption functions
//
// Returns:
//   - *ComputeShader: the shader
func NewComputeShader(name string, threadGroupSize common.Size, options ...ComputeShaderBuilderOption) *ComputeShader {
	s := &ComputeShader{
		name:            name,
		threadGroupSize: threadGroupSize,
		dispatch:        TextureDispatch(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.function == nil {
		s.function = NewComputeFunction(s.name, s.constants)
	}
	return s
}

// Copy returns a shader sharing the function, resources and dispatch of s. The compiled pipeline is shared.
func (s *ComputeShader) Copy() *ComputeShader {
	return &ComputeShader{
		name:            s.name,
		constants:       s.constants,
		function:        s.function,
		buffers:         append([]buffer.Erased(nil), s.buffers...),
		textures:        append([]*texture.Texture(nil), s.textures...),
		threadGroupSize: s.threadGroupSize,
		dispatch:        s.dispatch,
	}
}

// Function returns the shader's compute function.
func (s *ComputeShader) Function() *ComputeFunction {
	return s.function
}

// Buffers returns the bound buffers.
func (s *ComputeShader) Buffers() []buffer.Erased {
	return s.buffers
}

// Textures returns the bound textures.
func (s *ComputeShader) Textures() []*texture.Texture {
	return s.textures
}

// SetBuffers replaces the bound buffers. Takes effect at the next Initialize.
func (s *ComputeShader) SetBuffers(buffers ...buffer.Erased) {
	s.buffers = buffers
}

// SetTextures replaces the bound textures. Takes effect at the next Initialize.
func (s *ComputeShader) SetTextures(textures ...*texture.Texture) {
	s.textures = textures
}

func (s *ComputeShader) AllTextures() [][]*texture.Texture {
	return [][]*texture.Texture{s.textures}
}

func (s *ComputeShader) AllBuffers() [][]buffer.Erased {
	return [][]buffer.Erased{s.buffers}
}

func (s *ComputeShader) Initialize(ctx context.Context, rt Runtime) error {
	if _, err := s.function.Compile(ctx, rt); err != nil {
		return err
	}
	if err := initializeBuffers(ctx, rt, s.buffers); err != nil {
		return err
	}
	_, err := resolveTextures(ctx, rt, s.textures)
	return err
}

func (s *ComputeShader) Encode(ctx context.Context, rt Runtime, cb device.CommandBuffer) error {
	pipeline, err := s.function.Compile(ctx, rt)
	if err != nil {
		return err
	}

	threadGroupSize := s.threadGroupSize
	if threadGroupSize == (common.Size{}) {
		threadGroupSize = pipeline.ThreadGroupSize()
	} else {
		threadGroupSize = common.NewSize(threadGroupSize.Width, threadGroupSize.Height, threadGroupSize.Depth)
	}
	groups, err := s.dispatch.GroupsForSize(threadGroupSize, s)
	if err != nil {
		return errors.Wrapf(err, "failed to size dispatch of %s", s.function.Name())
	}

	enc, err := cb.ComputeEncoder()
	if err != nil {
		return err
	}
	enc.SetPipeline(pipeline)
	err = encodeBuffers(enc, s.buffers)
	if err == nil {
		err = encodeTextures(ctx, rt, enc, s.textures)
	}
	if err == nil {
		enc.Dispatch(groups, threadGroupSize)
	}
	return errors.CombineErrors(err, enc.End())
}
