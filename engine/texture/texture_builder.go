package texture

import "github.com/Carmen-Shannon/oxy-gpu/engine/device"

// CopyOption overrides one field of the descriptor used by EmptyCopy.
type CopyOption func(desc *device.TextureDescriptor)

// WithCopyName sets the label of the copy.
//
// Parameters:
//   - name: the label
//
// Returns:
//   - CopyOption: option function to apply
func WithCopyName(name string) CopyOption {
	return func(desc *device.TextureDescriptor) {
		desc.Label = name
	}
}

// WithCopyFormat sets the pixel format of the copy.
//
// Parameters:
//   - format: the pixel format
//
// Returns:
//   - CopyOption: option function to apply
func WithCopyFormat(format device.PixelFormat) CopyOption {
	return func(desc *device.TextureDescriptor) {
		desc.Format = format
	}
}

// WithCopyWidth sets the width of the copy.
func WithCopyWidth(width int) CopyOption {
	return func(desc *device.TextureDescriptor) {
		desc.Width = width
	}
}

// WithCopyHeight sets the height of the copy.
func WithCopyHeight(height int) CopyOption {
	return func(desc *device.TextureDescriptor) {
		desc.Height = height
	}
}

// WithCopyDepth sets the depth of the copy.
func WithCopyDepth(depth int) CopyOption {
	return func(desc *device.TextureDescriptor) {
		desc.Depth = depth
	}
}

// WithCopyStorageMode sets the storage mode of the copy.
func WithCopyStorageMode(mode device.StorageMode) CopyOption {
	return func(desc *device.TextureDescriptor) {
		desc.StorageMode = mode
	}
}

// WithCopyUsage sets the usage flags of the copy.
func WithCopyUsage(usage device.TextureUsage) CopyOption {
	return func(desc *device.TextureDescriptor) {
		desc.Usage = usage
	}
}
