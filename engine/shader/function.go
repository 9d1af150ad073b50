package shader

import (
	"context"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/texture"
)

// compiled holds a pipeline that is built at most once. Until the first successful build it holds
// only the recipe; afterwards it holds the pipeline and the recipe is never consulted again.
type compiled[P any] struct {
	mu       sync.Mutex
	pipeline P
	done     bool
}

func (c *compiled[P]) get(build func() (P, error)) (P, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return c.pipeline, nil
	}
	p, err := build()
	if err != nil {
		var zero P
		return zero, err
	}
	c.pipeline, c.done = p, true
	return p, nil
}

func (c *compiled[P]) isDone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func runtimeLibrary(rt Runtime, function string) (device.Library, error) {
	lib := rt.Library()
	if lib == nil {
		return nil, common.CompilationError(common.MissingBackingError("no library"), "unable to compile %s", function)
	}
	return lib, nil
}

// ComputeFunction is a compute entry point and the pipeline compiled from it.
type ComputeFunction struct {
	name      string
	constants device.FunctionConstants
	state     compiled[device.ComputePipeline]
}

// NewComputeFunction describes a compute entry point. Nothing is compiled until Compile.
//
// Parameters:
//   - name: the entry point name
//   - constants: optional specialization values
//
// Returns:
//   - *ComputeFunction: the function
func NewComputeFunction(name string, constants device.FunctionConstants) *ComputeFunction {
	return &ComputeFunction{name: name, constants: constants}
}

// Name returns the entry point name.
func (f *ComputeFunction) Name() string {
	return f.name
}

// Compile builds the pipeline on the first call and returns the cached pipeline afterwards.
//
// Parameters:
//   - ctx: unused by compute compilation, kept for symmetry with RasterFunction
//   - rt: provides the device and library
//
// Returns:
//   - device.ComputePipeline: the pipeline
//   - error: an error marked common.ErrCompilation
func (f *ComputeFunction) Compile(_ context.Context, rt Runtime) (device.ComputePipeline, error) {
	return f.state.get(func() (device.ComputePipeline, error) {
		lib, err := runtimeLibrary(rt, f.name)
		if err != nil {
			return nil, err
		}
		pipeline, err := rt.Device().NewComputePipeline(lib, device.FunctionDescriptor{Name: f.name, Constants: f.constants})
		if err != nil {
			return nil, common.CompilationError(err, "unable to make function %s on library %v", f.name, lib.FunctionNames())
		}
		common.Logger().Debug("compute pipeline compiled", "function", f.name, "library", lib.Label())
		return pipeline, nil
	})
}

// Compiled reports whether the pipeline has been built.
func (f *ComputeFunction) Compiled() bool {
	return f.state.isDone()
}

// RenderTargetFormat supplies the color attachment format of a raster pipeline.
type RenderTargetFormat interface {
	// TargetFormat returns the pixel format, resolving a texture if needed.
	TargetFormat(ctx context.Context, rt Runtime) (device.PixelFormat, error)
}

type fixedFormat device.PixelFormat

func (f fixedFormat) TargetFormat(context.Context, Runtime) (device.PixelFormat, error) {
	return device.PixelFormat(f), nil
}

type textureFormat struct {
	texture *texture.Texture
}

func (f textureFormat) TargetFormat(ctx context.Context, rt Runtime) (device.PixelFormat, error) {
	tex, err := f.texture.Resolve(ctx, rt)
	if err != nil {
		return 0, err
	}
	return tex.Descriptor().Format, nil
}

// Format targets a fixed pixel format.
func Format(format device.PixelFormat) RenderTargetFormat {
	return fixedFormat(format)
}

// FormatOf targets the format of tex, resolving it when the pipeline is compiled.
func FormatOf(tex *texture.Texture) RenderTargetFormat {
	return textureFormat{texture: tex}
}

// RasterFunction is a vertex and fragment entry point pair and the pipeline compiled from them.
type RasterFunction struct {
	vertex    device.FunctionDescriptor
	fragment  device.FunctionDescriptor
	format    RenderTargetFormat
	primitive device.PrimitiveType
	state     compiled[device.RenderPipeline]
}

// NewRasterFunction describes a render pipeline. Nothing is compiled until Compile.
//
// Parameters:
//   - vertex: the vertex entry point and constants
//   - fragment: the fragment entry point and constants
//   - format: the color attachment format
//   - primitive: the topology drawn with the pipeline
//
// Returns:
//   - *RasterFunction: the function
func NewRasterFunction(vertex, fragment device.FunctionDescriptor, format RenderTargetFormat, primitive device.PrimitiveType) *RasterFunction {
	return &RasterFunction{vertex: vertex, fragment: fragment, format: format, primitive: primitive}
}

// Name returns "vertex, fragment".
func (f *RasterFunction) Name() string {
	return fmt.Sprintf("%s, %s", f.vertex.Name, f.fragment.Name)
}

// Primitive returns the topology the pipeline draws.
func (f *RasterFunction) Primitive() device.PrimitiveType {
	return f.primitive
}

// Compile resolves the target format and builds the pipeline on the first call, returning the
// cached pipeline afterwards.
//
// Parameters:
//   - ctx: bounds resolution of a texture target format
//   - rt: provides the device and library
//
// Returns:
//   - device.RenderPipeline: the pipeline
//   - error: an error marked common.ErrCompilation
func (f *RasterFunction) Compile(ctx context.Context, rt Runtime) (device.RenderPipeline, error) {
	return f.state.get(func() (device.RenderPipeline, error) {
		lib, err := runtimeLibrary(rt, f.Name())
		if err != nil {
			return nil, err
		}
		format, err := f.format.TargetFormat(ctx, rt)
		if err != nil {
			return nil, common.CompilationError(err, "unable to resolve the target format of %s", f.Name())
		}
		pipeline, err := rt.Device().NewRenderPipeline(lib, device.RenderPipelineDescriptor{
			Label:       f.vertex.Name + " " + f.fragment.Name,
			Vertex:      f.vertex,
			Fragment:    f.fragment,
			ColorFormat: format,
			Primitive:   f.primitive,
		})
		if err != nil {
			return nil, common.CompilationError(err, "unable to make functions %s on library %v", f.Name(), lib.FunctionNames())
		}
		common.Logger().Debug("render pipeline compiled", "functions", f.Name(), "format", format)
		return pipeline, nil
	})
}

// Compiled reports whether the pipeline has been built.
func (f *RasterFunction) Compiled() bool {
	return f.state.isDone()
}
