package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/buffer"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/Carmen-Shannon/oxy-gpu/engine/shader"
	"github.com/Carmen-Shannon/oxy-gpu/engine/texture"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// journal records shader steps across a pass.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type recordingShader struct {
	name       string
	journal    *journal
	failInit   bool
	failEncode bool
	drawable   device.Drawable
	encodedOn  device.CommandBuffer
}

func (s *recordingShader) Initialize(context.Context, shader.Runtime) error {
	s.journal.add("init " + s.name)
	if s.failInit {
		return errors.Newf("%s cannot initialize", s.name)
	}
	return nil
}

func (s *recordingShader) Encode(_ context.Context, _ shader.Runtime, cb device.CommandBuffer) error {
	s.journal.add("encode " + s.name)
	s.encodedOn = cb
	if s.failEncode {
		return errors.Newf("%s cannot encode", s.name)
	}
	return nil
}

func (s *recordingShader) SetDrawingContext(drawable device.Drawable, _ device.RenderPassDescriptor) {
	s.drawable = drawable
}

// scaleKernel multiplies each float32 of buffer 0 by the "factor" constant, one element per thread along x.
func scaleKernel(inv *device.ComputeInvocation) {
	p := inv.ThreadPositionInGrid
	data := inv.Buffers[0]
	if p.Y != 0 || p.Z != 0 || (p.X+1)*4 > len(data) {
		return
	}
	factor := float32(inv.Constants["factor"])
	common.WriteElement(data, p.X, common.ReadElement[float32](data, p.X)*factor)
}

func newSoftwareGPU(t *testing.T, options ...GPUBuilderOption) GPU {
	t.Helper()
	g, err := NewGPU(append([]GPUBuilderOption{
		WithBackend(BackendSoftware),
		WithSoftwareKernels(shader.QuadKernels()),
		WithSoftwareKernels(device.Kernels{Compute: map[string]device.ComputeKernel{"scale": scaleKernel}}),
	}, options...)...)
	require.NoError(t, err)
	t.Cleanup(g.Release)
	return g
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	g := newSoftwareGPU(t)
	j := &journal{}
	pass := NewPass(&recordingShader{name: "a", journal: j}, &recordingShader{name: "b", journal: j}).
		WithLabel("ordered").
		WithCompletion(func(_ context.Context, got GPU) error {
			assert.Same(t, g, got)
			j.add("completion")
			return nil
		})

	require.NoError(t, g.Execute(testContext(t), pass))
	assert.Equal(t, []string{"init a", "init b", "encode a", "encode b", "completion"}, j.list())
}

func TestExecuteAbortsOnFirstFailure(t *testing.T) {
	g := newSoftwareGPU(t)

	j := &journal{}
	completed := false
	pass := NewPass(
		&recordingShader{name: "a", journal: j},
		&recordingShader{name: "b", journal: j, failInit: true},
		&recordingShader{name: "c", journal: j},
	).WithCompletion(func(context.Context, GPU) error {
		completed = true
		return nil
	})
	err := g.Execute(testContext(t), pass)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b cannot initialize")
	assert.Equal(t, []string{"init a", "init b"}, j.list())
	assert.False(t, completed)

	j = &journal{}
	failing := &recordingShader{name: "a", journal: j, failEncode: true}
	err = g.ExecuteShaders(testContext(t),
		failing,
		&recordingShader{name: "b", journal: j},
	)
	require.Error(t, err)
	assert.Equal(t, []string{"init a", "init b", "encode a"}, j.list())
	require.NotNil(t, failing.encodedOn)
	assert.Equal(t, device.CommandBufferStatusDiscarded, failing.encodedOn.Status(), "aborted command buffer is discarded, not left recording")
}

func TestExecuteLeavesCommittedCommandBufferAlone(t *testing.T) {
	g := newSoftwareGPU(t)
	s := &recordingShader{name: "a", journal: &journal{}}
	require.NoError(t, g.ExecuteShaders(testContext(t), s))
	require.NotNil(t, s.encodedOn)
	assert.Equal(t, device.CommandBufferStatusCompleted, s.encodedOn.Status())
}

func TestCompletionErrorIsReturned(t *testing.T) {
	g := newSoftwareGPU(t)
	pass := NewPass().WithCompletion(func(context.Context, GPU) error {
		return errors.New("readback failed")
	})
	err := g.Execute(testContext(t), pass)
	assert.ErrorContains(t, err, "readback failed")
}

func TestExecuteComputePass(t *testing.T) {
	g := newSoftwareGPU(t)
	values := buffer.New[float32]("values", buffer.UsageShared, 1, 2, 3)
	scale := shader.NewComputeShader("scale", common.NewSize(1, 1, 1),
		shader.WithComputeConstants(device.FunctionConstants{"factor": 3}),
		shader.WithBuffers(values),
		shader.WithDispatch(shader.BufferDispatch()),
	)

	var observed []float32
	pass := NewPass(scale).WithCompletion(func(context.Context, GPU) error {
		observed, _ = values.Values()
		return nil
	})
	require.NoError(t, g.Execute(testContext(t), pass))
	assert.Equal(t, []float32{3, 6, 9}, observed)
}

func TestSynchronizedWriteIsVisibleToNextShader(t *testing.T) {
	g := newSoftwareGPU(t)
	values := buffer.New[float32]("values", buffer.UsageManaged, 1, 2)
	readback := buffer.Alloc[float32]("readback", buffer.UsageShared, 2)

	scale := shader.NewComputeShader("scale", common.NewSize(1, 1, 1),
		shader.WithComputeConstants(device.FunctionConstants{"factor": 2}),
		shader.WithBuffers(values),
		shader.WithDispatch(shader.BufferDispatch()),
	)
	require.NoError(t, g.ExecuteShaders(testContext(t),
		scale,
		shader.SynchronizeBuffer(values),
		shader.CopyBuffer(values, 0, readback, 0, 0),
	))

	got, _ := values.Values()
	assert.Equal(t, []float32{2, 4}, got)
	got, _ = readback.Values()
	assert.Equal(t, []float32{2, 4}, got)
}

func TestPassLibraryOverride(t *testing.T) {
	g, err := NewGPU(WithBackend(BackendSoftware))
	require.NoError(t, err)
	defer g.Release()

	other := device.NewSoftwareDevice(device.WithComputeKernel("scale", scaleKernel))
	foreign, err := other.DefaultLibrary()
	require.NoError(t, err)

	s := shader.NewComputeShader("scale", common.NewSize(1, 1, 1), shader.WithBuffers(buffer.New[float32]("v", buffer.UsageShared, 1)))
	err = g.Execute(testContext(t), NewPass(s), WithPassLibrary(foreign))
	assert.True(t, errors.Is(err, common.ErrCompilation), "the library of another device cannot compile here")

	g.Device().(device.SoftwareDevice).RegisterKernels(device.Kernels{Compute: map[string]device.ComputeKernel{"scale": scaleKernel}})
	own, err := g.Device().DefaultLibrary()
	require.NoError(t, err)
	values := buffer.New[float32]("v", buffer.UsageShared, 1)
	s = shader.NewComputeShader("scale", common.NewSize(1, 1, 1),
		shader.WithComputeConstants(device.FunctionConstants{"factor": 5}),
		shader.WithBuffers(values),
		shader.WithDispatch(shader.BufferDispatch()),
	)
	require.NoError(t, g.Execute(testContext(t), NewPass(s), WithPassLibrary(own)))
	v, _ := values.Get(0)
	assert.Equal(t, float32(5), v)
}

func TestExecuteWithDrawablePresents(t *testing.T) {
	g := newSoftwareGPU(t)
	surface := device.NewOffscreenSurface(g.Device(), device.PixelFormatBGRA8Unorm)
	require.NoError(t, surface.Configure(4, 4))
	drawable, err := surface.NextDrawable()
	require.NoError(t, err)

	j := &journal{}
	recorder := &recordingShader{name: "a", journal: j}
	quad := shader.NewQuadShader(shader.Format(surface.Format()), shader.DrawableDescriptor(nil))
	desc := device.RenderPassDescriptor{ColorAttachments: []device.ColorAttachment{{
		Texture:    drawable.Texture(),
		LoadAction: device.LoadActionClear,
	}}}

	require.NoError(t, g.Execute(testContext(t), NewPass(recorder, quad), WithDrawable(drawable, desc)))
	assert.Same(t, drawable, recorder.drawable)
	assert.Equal(t, 1, surface.PresentedFrames())
}

func TestReleasedGPUFails(t *testing.T) {
	g, err := NewGPU(WithBackend(BackendSoftware))
	require.NoError(t, err)
	g.Release()
	g.Release()
	err = g.ExecuteShaders(context.Background())
	assert.True(t, errors.Is(err, common.ErrMissingBacking))
}

func TestPassQueueRunsFIFO(t *testing.T) {
	g := newSoftwareGPU(t)
	q := NewPassQueue(g, 0)

	var (
		mu    sync.Mutex
		order []int
	)
	results := make([]<-chan error, 0, 16)
	for i := range 16 {
		pass := NewPass().WithCompletion(func(context.Context, GPU) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		results = append(results, q.Submit(testContext(t), pass))
	}
	for _, r := range results {
		require.NoError(t, <-r)
	}
	q.Close()

	expected := make([]int, 16)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, order)

	err := <-q.Submit(testContext(t), NewPass())
	assert.Error(t, err)
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendAuto, b)

	b, err = ParseBackend(" Software ")
	require.NoError(t, err)
	assert.Equal(t, BackendSoftware, b)

	_, err = ParseBackend("metal")
	assert.Error(t, err)
}

func TestNewGPUFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "software"
	cfg.Profile = true

	path := filepath.Join(t.TempDir(), "quad.wgsl")
	require.NoError(t, os.WriteFile(path, []byte(shader.QuadSource), 0o644))
	cfg.LibraryPath = path

	g, err := NewGPUFromConfig(cfg, WithSoftwareKernels(shader.QuadKernels()))
	require.NoError(t, err)
	defer g.Release()
	assert.Equal(t, device.BackendSoftware, g.Device().Backend())
	assert.NotNil(t, g.Profiler())
	require.NotNil(t, g.Library())
	assert.True(t, g.Library().HasFunction(shader.QuadVertexFunction))

	target := texture.Empty("target", device.TextureDescriptor{Format: device.PixelFormatRGBA8Unorm, Width: 2, Height: 2})
	quad := shader.NewQuadShader(shader.FormatOf(target), shader.TextureTarget(target, device.LoadActionClear, device.StoreActionStore))
	require.NoError(t, g.ExecuteShaders(testContext(t), quad))
	assert.Equal(t, 1, g.Profiler().Stats().Passes)

	cfg.LibraryPath = filepath.Join(t.TempDir(), "missing.wgsl")
	_, err = NewGPUFromConfig(cfg)
	assert.Error(t, err)

	cfg.Backend = "metal"
	_, err = NewGPUFromConfig(cfg)
	assert.Error(t, err)
}

func TestConfigLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, "INFO", level.String())

	cfg.LogLevel = "debug"
	level, err = cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", level.String())

	cfg.LogLevel = "chatty"
	_, err = cfg.SlogLevel()
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oxygpu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`backend: software
profile: true
frame_interval: 10ms
window:
  title: demo
  width: 320
`), 0o644))
	t.Setenv("OXYGPU_LOG_LEVEL", "debug")
	t.Setenv("OXYGPU_WINDOW_HEIGHT", "240")

	cfg, err := LoadConfig(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "software", cfg.Backend)
	assert.True(t, cfg.Profile)
	assert.Equal(t, 10*time.Millisecond, cfg.FrameInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, WindowConfig{Width: 320, Height: 240, Title: "demo"}, cfg.Window)

	v := viper.New()
	v.Set("backend", "metal")
	_, err = LoadConfig(v, path)
	assert.ErrorContains(t, err, "unknown backend")
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
