package common

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// CeilDiv divides n by d rounding up. Used for thread group counts, where a partial group still needs a dispatch.
// A d of zero or less is treated as 1.
//
// Parameters:
//   - n: the dividend
//   - d: the divisor
//
// Returns:
//   - int: ceil(n / d)
func CeilDiv(n, d int) int {
	if d <= 0 {
		d = 1
	}
	return (n + d - 1) / d
}

// AlignUp rounds value up to the next multiple of alignment.
// An alignment of zero returns value unchanged.
//
// Parameters:
//   - value: the value to align
//   - alignment: the alignment boundary
//
// Returns:
//   - uint64: the aligned value
func AlignUp(value, alignment uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) / alignment * alignment
}

// DecodeImageFile decodes the image at path into RGBA staging data.
// Supports PNG, JPEG, GIF, BMP, TIFF and WebP.
//
// Parameters:
//   - path: the image file path
//   - width, height: target size; zero keeps the source size for that dimension
//
// Returns:
//   - TextureStagingData: the decoded pixels
//   - error: error if the file cannot be opened or decoded
func DecodeImageFile(path string, width, height int) (TextureStagingData, error) {
	file, err := os.Open(path)
	if err != nil {
		return TextureStagingData{}, errors.Wrapf(err, "failed to open texture file %s", path)
	}
	defer file.Close()

	staging, err := DecodeImage(file, width, height)
	if err != nil {
		return TextureStagingData{}, errors.Wrapf(err, "failed to decode texture file %s", path)
	}
	return staging, nil
}

// DecodeImageBytes decodes an in-memory encoded image into RGBA staging data.
//
// Parameters:
//   - data: the encoded image bytes
//   - width, height: target size; zero keeps the source size for that dimension
//
// Returns:
//   - TextureStagingData: the decoded pixels
//   - error: error if decoding fails
func DecodeImageBytes(data []byte, width, height int) (TextureStagingData, error) {
	return DecodeImage(bytes.NewReader(data), width, height)
}

// DecodeImage decodes an image stream into RGBA staging data, scaling it with a bilinear filter
// when a target size is requested.
//
// Parameters:
//   - r: the encoded image stream
//   - width, height: target size; zero keeps the source size for that dimension
//
// Returns:
//   - TextureStagingData: the decoded pixels
//   - error: error if decoding fails
func DecodeImage(r io.Reader, width, height int) (TextureStagingData, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return TextureStagingData{}, errors.Wrap(err, "failed to decode image")
	}

	bounds := img.Bounds()
	target := image.Rect(0, 0, Coalesce(width, bounds.Dx()), Coalesce(height, bounds.Dy()))

	rgba := image.NewRGBA(target)
	if target.Dx() == bounds.Dx() && target.Dy() == bounds.Dy() {
		draw.Draw(rgba, target, img, bounds.Min, draw.Src)
	} else {
		draw.BiLinear.Scale(rgba, target, img, bounds, draw.Src, nil)
	}

	return TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(target.Dx()),
		Height: uint32(target.Dy()),
	}, nil
}
