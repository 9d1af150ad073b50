// Package engine ties a device, its shader library and a texture loader into a GPU that executes
// passes: ordered lists of shaders that are initialized, encoded into one command buffer,
// committed and waited on.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/profiler"
	"github.com/Carmen-Shannon/oxy-gpu/engine/shader"
	"github.com/Carmen-Shannon/oxy-gpu/engine/texture"
	"github.com/cockroachdb/errors"
)

// Backend selects how NewGPU obtains its device.
type Backend string

const (
	// BackendAuto requests a wgpu device and falls back to the software device when no adapter is available.
	BackendAuto Backend = "auto"
	// BackendWGPU requires a wgpu device.
	BackendWGPU Backend = "wgpu"
	// BackendSoftware uses the in-process software device.
	BackendSoftware Backend = "software"
)

// ParseBackend parses a backend name. The empty string is BackendAuto.
//
// Parameters:
//   - name: "auto", "wgpu" or "software", case insensitive
//
// Returns:
//   - Backend: the backend
//   - error: error if the name is unknown
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendWGPU, BackendSoftware:
		return b, nil
	default:
		return "", errors.Newf("unknown backend %q", name)
	}
}

// gpu implements the GPU interface.
type gpu struct {
	mu       sync.Mutex
	released bool

	backend              Backend
	forceFallbackAdapter bool
	wgpuOptions          []device.WGPUDeviceBuilderOption
	kernels              device.Kernels
	librarySource        *device.LibraryDescriptor

	device     device.Device
	ownsDevice bool
	library    device.Library
	loader     texture.Loader
	profiler   *profiler.Profiler
}

// GPU is the main entry point. It owns a device, the library shaders compile from and the
// texture loader, and executes passes against them.
type GPU interface {
	shader.Runtime

	// Name returns the device name.
	Name() string

	// Queue returns the device's command queue.
	Queue() device.Queue

	// Profiler returns the pass profiler, or nil when profiling is disabled.
	Profiler() *profiler.Profiler

	// Execute runs a pass: every shader is initialized in order, encoded in order into one command
	// buffer, the drawable (if any) is presented, the buffer is committed and waited on, and the
	// completion callback runs. The first failure aborts the pass; nothing is committed.
	//
	// Parameters:
	//   - ctx: bounds initialization and the wait for completion
	//   - pass: the pass to run
	//   - options: per-execution options such as a drawable or a library override
	//
	// Returns:
	//   - error: the first initialization, encoding, execution or completion error
	Execute(ctx context.Context, pass *Pass, options ...ExecuteOption) error

	// ExecuteShaders runs shaders as an unnamed pass without a completion callback.
	//
	// Parameters:
	//   - ctx: bounds initialization and the wait for completion
	//   - shaders: the shaders to run, in order
	//
	// Returns:
	//   - error: the first error
	ExecuteShaders(ctx context.Context, shaders ...shader.Shader) error

	// Release frees the device if the GPU created it.
	Release()
}

var _ GPU = &gpu{}

// NewGPU creates a GPU with the provided options. Without WithDevice a device is created for the
// selected backend, BackendAuto by default.
//
// Parameters:
//   - options: variadic list of GPUBuilderOption functions to configure the GPU
//
// Returns:
//   - GPU: the GPU
//   - error: an error marked common.ErrResourceCreation if no device can be created, or a
//     compilation error if the library source is rejected
func NewGPU(options ...GPUBuilderOption) (GPU, error) {
	g := &gpu{backend: BackendAuto}
	for _, opt := range options {
		opt(g)
	}

	if g.device == nil {
		dev, err := g.createDevice()
		if err != nil {
			return nil, err
		}
		g.device = dev
		g.ownsDevice = true
	} else if sw, ok := g.device.(device.SoftwareDevice); ok {
		sw.RegisterKernels(g.kernels)
	}

	if g.library == nil {
		if err := g.createLibrary(); err != nil {
			g.Release()
			return nil, err
		}
	}
	if g.loader == nil {
		g.loader = texture.NewLoader()
	}

	common.Logger().Info("gpu ready", "device", g.device.Name(), "backend", g.device.Backend())
	return g, nil
}

// Default creates a GPU on the best available device: wgpu when an adapter exists, the software
// device otherwise.
//
// Parameters:
//   - options: additional options; a WithBackend option overrides the automatic choice
//
// Returns:
//   - GPU: the GPU
//   - error: error if no device can be created
func Default(options ...GPUBuilderOption) (GPU, error) {
	return NewGPU(append([]GPUBuilderOption{WithBackend(BackendAuto)}, options...)...)
}

func (g *gpu) createDevice() (device.Device, error) {
	switch g.backend {
	case BackendSoftware:
		return device.NewSoftwareDevice(device.WithKernels(g.kernels)), nil
	case BackendWGPU:
		return g.createWGPUDevice()
	case BackendAuto:
		dev, err := g.createWGPUDevice()
		if err == nil {
			return dev, nil
		}
		common.Logger().Warn("wgpu unavailable, using the software device", "error", err)
		return device.NewSoftwareDevice(device.WithKernels(g.kernels)), nil
	default:
		return nil, common.ResourceCreationError(errors.Newf("unknown backend %q", g.backend), "failed to create device")
	}
}

func (g *gpu) createWGPUDevice() (device.Device, error) {
	options := append([]device.WGPUDeviceBuilderOption{device.WithForceFallbackAdapter(g.forceFallbackAdapter)}, g.wgpuOptions...)
	return device.NewWGPUDevice(options...)
}

func (g *gpu) createLibrary() error {
	if g.librarySource != nil {
		lib, err := g.device.NewLibrary(*g.librarySource)
		if err != nil {
			return common.CompilationError(err, "failed to create library %q", g.librarySource.Label)
		}
		g.library = lib
		return nil
	}
	lib, err := g.device.DefaultLibrary()
	if err != nil {
		// shaders report the missing library when they compile
		common.Logger().Debug("gpu has no library", "device", g.device.Name(), "error", err)
		return nil
	}
	g.library = lib
	return nil
}

func (g *gpu) Name() string {
	return g.device.Name()
}

func (g *gpu) Device() device.Device {
	return g.device
}

func (g *gpu) Queue() device.Queue {
	return g.device.Queue()
}

func (g *gpu) Library() device.Library {
	return g.library
}

func (g *gpu) TextureLoader() texture.Loader {
	return g.loader
}

func (g *gpu) Profiler() *profiler.Profiler {
	return g.profiler
}

func (g *gpu) isReleased() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}

func (g *gpu) Execute(ctx context.Context, pass *Pass, options ...ExecuteOption) (err error) {
	if g.isReleased() {
		return common.MissingBackingError("gpu %q has been released", g.Name())
	}

	exec := execution{}
	for _, opt := range options {
		opt(&exec)
	}
	var rt shader.Runtime = g
	if exec.library != nil {
		rt = libraryRuntime{GPU: g, library: exec.library}
	}

	label := common.Coalesce(pass.label, "unnamed pass")
	start := time.Now()
	if g.profiler != nil {
		defer func() {
			g.profiler.Record(label, time.Since(start), err)
		}()
	}
	common.Logger().Debug("pass started", "pass", label, "shaders", len(pass.shaders))

	for i, s := range pass.shaders {
		if err := s.Initialize(ctx, rt); err != nil {
			return errors.Wrapf(err, "pass %q: failed to initialize shader %d", label, i)
		}
	}
	if exec.drawable != nil {
		for _, s := range pass.shaders {
			if ds, ok := s.(shader.DrawingShader); ok {
				ds.SetDrawingContext(exec.drawable, exec.descriptor)
			}
		}
	}

	cb, err := g.device.Queue().NewCommandBuffer()
	if err != nil {
		return errors.Wrapf(err, "pass %q", label)
	}
	// no-op once committed
	defer cb.Discard()
	for i, s := range pass.shaders {
		if err := s.Encode(ctx, rt, cb); err != nil {
			return errors.Wrapf(err, "pass %q: failed to encode shader %d", label, i)
		}
	}
	if exec.drawable != nil {
		cb.Present(exec.drawable)
	}
	if err := cb.Commit(); err != nil {
		return errors.Wrapf(err, "pass %q: failed to commit", label)
	}
	if err := cb.WaitUntilCompleted(ctx); err != nil {
		return errors.Wrapf(err, "pass %q", label)
	}

	if pass.completion != nil {
		if err := pass.completion(ctx, g); err != nil {
			return errors.Wrapf(err, "pass %q: completion failed", label)
		}
	}
	common.Logger().Debug("pass completed", "pass", label, "elapsed", time.Since(start))
	return nil
}

func (g *gpu) ExecuteShaders(ctx context.Context, shaders ...shader.Shader) error {
	return g.Execute(ctx, NewPass(shaders...))
}

func (g *gpu) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return
	}
	g.released = true
	if g.loader != nil {
		g.loader.Forget(g.device)
	}
	if g.ownsDevice {
		g.device.Release()
	}
}

// libraryRuntime overrides the library of a GPU for one execution.
type libraryRuntime struct {
	GPU
	library device.Library
}

func (r libraryRuntime) Library() device.Library {
	return r.library
}
