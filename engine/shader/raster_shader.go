package shader

import (
	"context"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/engine/buffer"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/texture"
	"github.com/cockroachdb/errors"
)

// RasterShader draws a vertex range with a vertex and fragment function pair. Each stage binds its
// own buffers to consecutive indices and its own textures to one range, all starting at 0.
type RasterShader struct {
	mu sync.Mutex

	vertex    device.FunctionDescriptor
	fragment  device.FunctionDescriptor
	format    RenderTargetFormat
	primitive device.PrimitiveType

	function         *RasterFunction
	vertexBuffers    []buffer.Erased
	fragmentBuffers  []buffer.Erased
	vertexTextures   []*texture.Texture
	fragmentTextures []*texture.Texture
	startingVertex   int
	vertexCount      int
	descriptor       RenderPassDescriptor
	drawing          drawingContext
}

var (
	_ DrawingShader = &RasterShader{}
	_ Resources     = &RasterShader{}
)

// NewRasterShader creates a raster shader drawing six vertices as a triangle list, the full screen quad.
//
// Parameters:
//   - vertex: the vertex entry point name
//   - fragment: the fragment entry point name
//   - format: the color attachment format the pipeline is compiled for
//   - descriptor: where the shader draws
//   - options: variadic list of RasterShaderBuilderOption functions
//
// Returns:
//   - *RasterShader: the shader
func NewRasterShader(vertex, fragment string, format RenderTargetFormat, descriptor RenderPassDescriptor, options ...RasterShaderBuilderOption) *RasterShader {
	s := &RasterShader{
		vertex:      device.FunctionDescriptor{Name: vertex},
		fragment:    device.FunctionDescriptor{Name: fragment},
		format:      format,
		primitive:   device.PrimitiveTriangle,
		vertexCount: 6,
		descriptor:  descriptor,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.function == nil {
		s.function = NewRasterFunction(s.vertex, s.fragment, s.format, s.primitive)
	}
	return s
}

// Function returns the shader's raster function.
func (s *RasterShader) Function() *RasterFunction {
	return s.function
}

// SetVertexRange changes the vertices drawn.
func (s *RasterShader) SetVertexRange(start, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startingVertex, s.vertexCount = start, count
}

func (s *RasterShader) SetDrawingContext(drawable device.Drawable, desc device.RenderPassDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawing = drawingContext{drawable: drawable, descriptor: &desc}
}

func (s *RasterShader) AllTextures() [][]*texture.Texture {
	return [][]*texture.Texture{s.fragmentTextures, s.vertexTextures}
}

func (s *RasterShader) AllBuffers() [][]buffer.Erased {
	return [][]buffer.Erased{s.fragmentBuffers, s.vertexBuffers}
}

func (s *RasterShader) Initialize(ctx context.Context, rt Runtime) error {
	if _, err := s.function.Compile(ctx, rt); err != nil {
		return err
	}
	for _, buffers := range [][]buffer.Erased{s.vertexBuffers, s.fragmentBuffers} {
		if err := initializeBuffers(ctx, rt, buffers); err != nil {
			return err
		}
	}
	for _, textures := range [][]*texture.Texture{s.vertexTextures, s.fragmentTextures} {
		if _, err := resolveTextures(ctx, rt, textures); err != nil {
			return err
		}
	}
	return nil
}

func (s *RasterShader) Encode(ctx context.Context, rt Runtime, cb device.CommandBuffer) error {
	pipeline, err := s.function.Compile(ctx, rt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	drawing := s.drawing
	start, count := s.startingVertex, s.vertexCount
	s.mu.Unlock()

	desc, err := s.descriptor.resolve(ctx, rt, drawing)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", s.function.Name())
	}
	enc, err := cb.RenderEncoder(desc)
	if err != nil {
		return err
	}
	enc.SetPipeline(pipeline)

	enc.SetStage(device.StageVertex)
	err = encodeBuffers(enc, s.vertexBuffers)
	if err == nil {
		err = encodeTextures(ctx, rt, enc, s.vertexTextures)
	}
	if err == nil {
		enc.SetStage(device.StageFragment)
		err = encodeBuffers(enc, s.fragmentBuffers)
	}
	if err == nil {
		err = encodeTextures(ctx, rt, enc, s.fragmentTextures)
	}
	if err == nil {
		enc.Draw(s.function.Primitive(), start, count)
	}
	return errors.CombineErrors(err, enc.End())
}
