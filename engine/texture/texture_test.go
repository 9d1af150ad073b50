package texture

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/device"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRuntime struct {
	dev    device.Device
	loader Loader
}

func (r testRuntime) Device() device.Device { return r.dev }
func (r testRuntime) TextureLoader() Loader { return r.loader }

func newRuntime() testRuntime {
	return testRuntime{dev: device.NewSoftwareDevice(), loader: NewLoader()}
}

// writePNG writes a 2x1 image with a red and a blue pixel.
func writePNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{B: 255, A: 255})

	path := filepath.Join(t.TempDir(), "pixels.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func descriptor() device.TextureDescriptor {
	return device.TextureDescriptor{
		Format: device.PixelFormatRGBA8Unorm,
		Width:  4,
		Height: 2,
		Usage:  device.TextureUsageShaderRead | device.TextureUsageShaderWrite,
	}
}

func TestEmptyResolvesOnce(t *testing.T) {
	rt := newRuntime()
	tex := Empty("target", descriptor())

	_, ok := tex.Resolved()
	assert.False(t, ok)

	first, err := tex.Resolve(context.Background(), rt)
	require.NoError(t, err)
	second, err := tex.Resolve(context.Background(), rt)
	require.NoError(t, err)
	assert.Same(t, first, second)

	desc := first.Descriptor()
	assert.Equal(t, "target", desc.Label)
	assert.Equal(t, 4, desc.Width)
	assert.Equal(t, 1, desc.Depth)
}

func TestConcurrentResolveRunsFutureOnce(t *testing.T) {
	rt := newRuntime()
	var mu sync.Mutex
	calls := 0
	tex := FromFuture("counted", func(_ context.Context, rt Runtime) (device.Texture, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return rt.Device().NewTexture(descriptor())
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tex.Resolve(context.Background(), rt)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}

func TestFailedFutureStaysPending(t *testing.T) {
	rt := newRuntime()
	fail := true
	tex := FromFuture("flaky", func(_ context.Context, rt Runtime) (device.Texture, error) {
		if fail {
			return nil, errors.New("not yet")
		}
		return rt.Device().NewTexture(descriptor())
	})

	_, err := tex.Resolve(context.Background(), rt)
	require.Error(t, err)
	_, ok := tex.Resolved()
	assert.False(t, ok)

	fail = false
	_, err = tex.Resolve(context.Background(), rt)
	require.NoError(t, err)
}

func TestEmptyCopyInheritsDescriptor(t *testing.T) {
	rt := newRuntime()
	source := Empty("source", descriptor())

	copied := source.EmptyCopy()
	assert.Equal(t, "Copy of source", copied.Name())
	tex, err := copied.Resolve(context.Background(), rt)
	require.NoError(t, err)

	_, sourceResolved := source.Resolved()
	assert.True(t, sourceResolved, "copying resolves the source")

	desc := tex.Descriptor()
	assert.Equal(t, "Copy of source", desc.Label)
	assert.Equal(t, 4, desc.Width)
	assert.Equal(t, 2, desc.Height)
	assert.Equal(t, device.PixelFormatRGBA8Unorm, desc.Format)

	resized, err := source.EmptyCopy(WithCopyWidth(8), WithCopyFormat(device.PixelFormatR32Float), WithCopyName("half")).
		Resolve(context.Background(), rt)
	require.NoError(t, err)
	desc = resized.Descriptor()
	assert.Equal(t, "half", desc.Label)
	assert.Equal(t, 8, desc.Width)
	assert.Equal(t, 2, desc.Height)
	assert.Equal(t, device.PixelFormatR32Float, desc.Format)

	assert.Equal(t, "Copy of unnamed texture", Empty("", descriptor()).EmptyCopy().Name())
}

func TestEmptyCopyOfThreeDimensionalTexture(t *testing.T) {
	rt := newRuntime()
	desc := descriptor()
	desc.Depth = 3
	tex, err := Empty("volume", desc).EmptyCopy().Resolve(context.Background(), rt)
	require.NoError(t, err)
	assert.Equal(t, 3, tex.Descriptor().Depth)
}

func TestFromPathLoadsPixels(t *testing.T) {
	rt := newRuntime()
	path := writePNG(t)

	tex, err := FromPath("pixels", path).Resolve(context.Background(), rt)
	require.NoError(t, err)
	host, ok := tex.(device.HostTexture)
	require.True(t, ok)
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 0, 255, 255}, host.Bytes())
}

func TestFromPathWithoutLoader(t *testing.T) {
	rt := testRuntime{dev: device.NewSoftwareDevice()}
	_, err := FromPath("pixels", "missing.png").Resolve(context.Background(), rt)
	assert.True(t, errors.Is(err, common.ErrMissingBacking))
}

func TestLoaderCachesPerDevice(t *testing.T) {
	path := writePNG(t)
	loader := NewLoader()
	dev := device.NewSoftwareDevice()

	first, err := loader.Load(context.Background(), dev, path)
	require.NoError(t, err)
	second, err := loader.Load(context.Background(), dev, path)
	require.NoError(t, err)
	assert.Same(t, first, second)

	resized, err := loader.Load(context.Background(), dev, path, WithLoadSize(4, 2))
	require.NoError(t, err)
	assert.NotSame(t, first, resized)
	assert.Equal(t, 4, resized.Descriptor().Width)

	other, err := loader.Load(context.Background(), device.NewSoftwareDevice(), path)
	require.NoError(t, err)
	assert.NotSame(t, first, other)

	loader.Forget(dev)
	again, err := loader.Load(context.Background(), dev, path)
	require.NoError(t, err)
	assert.NotSame(t, first, again)
}

func TestLoaderSwizzlesBGRA(t *testing.T) {
	f, err := os.Open(writePNG(t))
	require.NoError(t, err)
	defer f.Close()

	tex, err := NewLoader(WithCache(false)).LoadReader(context.Background(), device.NewSoftwareDevice(), "bgra", f,
		WithLoadFormat(device.PixelFormatBGRA8Unorm))
	require.NoError(t, err)
	host := tex.(device.HostTexture)
	assert.Equal(t, []byte{0, 0, 255, 255, 255, 0, 0, 255}, host.Bytes())
	assert.Equal(t, [4]float32{1, 0, 0, 1}, host.Load(0, 0, 0))
}

func TestLoaderRejectsFloatFormats(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), device.NewSoftwareDevice(), writePNG(t),
		WithLoadFormat(device.PixelFormatRGBA32Float))
	assert.Error(t, err)
}

func TestLoaderHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLoader().Load(ctx, device.NewSoftwareDevice(), writePNG(t))
	assert.True(t, errors.Is(err, context.Canceled))
}
