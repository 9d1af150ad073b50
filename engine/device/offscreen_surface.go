package device

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// OffscreenSurface is a Surface whose drawables are ordinary textures, used by headless views.
type OffscreenSurface interface {
	Surface

	// PresentedFrames returns how many drawables have been presented.
	PresentedFrames() int
}

// offscreenSurface hands out a render target texture created on its device. It backs headless views
// and works with every backend.
type offscreenSurface struct {
	mu      sync.Mutex
	device  Device
	format  PixelFormat
	texture Texture
	frames  int
}

var _ OffscreenSurface = &offscreenSurface{}

// NewOffscreenSurface creates a surface whose drawables are ordinary textures on dev. Presenting
// a drawable only counts the frame.
//
// Parameters:
//   - dev: the device that creates the backing texture
//   - format: the drawable pixel format
//
// Returns:
//   - OffscreenSurface: the surface; Configure must be called before NextDrawable
func NewOffscreenSurface(dev Device, format PixelFormat) OffscreenSurface {
	return &offscreenSurface{device: dev, format: format}
}

func (s *offscreenSurface) Configure(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if width <= 0 || height <= 0 {
		return errors.Newf("invalid surface size %dx%d", width, height)
	}
	tex, err := s.device.NewTexture(TextureDescriptor{
		Label:       "offscreen drawable",
		Format:      s.format,
		Width:       width,
		Height:      height,
		Depth:       1,
		StorageMode: StorageModePrivate,
		Usage:       TextureUsageRenderTarget | TextureUsageShaderRead | TextureUsageCopySource | TextureUsageCopyDestination,
	})
	if err != nil {
		return err
	}
	if s.texture != nil {
		s.texture.Release()
	}
	s.texture = tex
	return nil
}

func (s *offscreenSurface) Format() PixelFormat {
	return s.format
}

func (s *offscreenSurface) NextDrawable() (Drawable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.texture == nil {
		return nil, errors.New("surface is not configured")
	}
	return &offscreenDrawable{surface: s, texture: s.texture}, nil
}

func (s *offscreenSurface) PresentedFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *offscreenSurface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.texture != nil {
		s.texture.Release()
		s.texture = nil
	}
}

type offscreenDrawable struct {
	surface *offscreenSurface
	texture Texture
}

func (d *offscreenDrawable) Texture() Texture {
	return d.texture
}

func (d *offscreenDrawable) Present() error {
	d.surface.mu.Lock()
	defer d.surface.mu.Unlock()
	d.surface.frames++
	return nil
}
