package common

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(0), AlignUp(0, 16))
	assert.Equal(t, uint64(16), AlignUp(12, 16))
	assert.Equal(t, uint64(256), AlignUp(256, 256))
	assert.Equal(t, uint64(7), AlignUp(7, 0))
}

func TestDecodeImageBytes(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := range 2 {
		for x := range 2 {
			src.Set(x, y, color.NRGBA{R: 200, G: 10, B: 30, A: 255})
		}
	}
	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, src))

	staging, err := DecodeImageBytes(encoded.Bytes(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), staging.Width)
	assert.Equal(t, uint32(2), staging.Height)
	assert.Equal(t, []byte{200, 10, 30, 255}, staging.Pixels[:4])

	scaled, err := DecodeImageBytes(encoded.Bytes(), 4, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), scaled.Width)
	assert.Equal(t, uint32(2), scaled.Height)
	assert.Len(t, scaled.Pixels, 4*2*4)

	_, err = DecodeImageBytes([]byte("not an image"), 0, 0)
	assert.Error(t, err)
}
