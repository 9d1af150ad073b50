package device

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cockroachdb/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuSurface struct {
	mu         sync.Mutex
	device     *wgpuDevice
	surface    *wgpu.Surface
	format     PixelFormat
	wgpuFormat wgpu.TextureFormat
	width      int
	height     int
	configured bool
}

var _ Surface = &wgpuSurface{}

// Configure is a wrapper for the boilerplate required when configuring a surface. It must be called
// again whenever the window is resized.
func (s *wgpuSurface) Configure(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if width <= 0 || height <= 0 {
		return errors.Newf("invalid surface size %dx%d", width, height)
	}

	capabilities := s.surface.GetCapabilities(s.device.adapter)
	if len(capabilities.Formats) == 0 {
		return common.ResourceCreationError(errors.New("surface reports no formats"), "failed to configure surface")
	}

	// prefer a format the rest of the layer understands
	s.wgpuFormat = capabilities.Formats[0]
	for _, f := range capabilities.Formats {
		if _, ok := pixelFormatOf(f); ok {
			s.wgpuFormat = f
			break
		}
	}
	format, ok := pixelFormatOf(s.wgpuFormat)
	if !ok {
		format = PixelFormatBGRA8Unorm
	}
	s.format = format

	var alphaMode wgpu.CompositeAlphaMode
	if len(capabilities.AlphaModes) > 0 {
		alphaMode = capabilities.AlphaModes[0]
	}

	s.surface.Configure(s.device.adapter, s.device.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopyDst,
		Format:      s.wgpuFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: s.device.presentMode,
		AlphaMode:   alphaMode,
	})
	s.width, s.height = width, height
	s.configured = true

	common.Logger().Debug("surface configured", "width", width, "height", height, "format", s.format)
	return nil
}

func (s *wgpuSurface) Format() PixelFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

func (s *wgpuSurface) NextDrawable() (Drawable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return nil, errors.New("surface is not configured")
	}

	surfaceTexture, err := s.surface.GetCurrentTexture()
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire surface texture")
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return nil, errors.Wrap(err, "failed to create surface texture view")
	}

	return &wgpuDrawable{
		surface: s,
		texture: &wgpuTexture{
			device:  s.device,
			texture: surfaceTexture,
			view:    view,
			desc: TextureDescriptor{
				Label:  "drawable",
				Format: s.format,
				Width:  s.width,
				Height: s.height,
				Depth:  1,
				Usage:  TextureUsageRenderTarget | TextureUsageCopyDestination,
			},
		},
	}, nil
}

func (s *wgpuSurface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.surface != nil {
		s.surface.Release()
		s.surface = nil
	}
	s.configured = false
}

type wgpuDrawable struct {
	surface *wgpuSurface
	texture *wgpuTexture
	once    sync.Once
}

var _ Drawable = &wgpuDrawable{}

func (d *wgpuDrawable) Texture() Texture {
	return d.texture
}

// Present shows the drawable and releases its swapchain texture. Only the first call has an effect.
func (d *wgpuDrawable) Present() error {
	d.once.Do(func() {
		d.surface.surface.Present()
		d.texture.view.Release()
		d.texture.texture.Release()
	})
	return nil
}
