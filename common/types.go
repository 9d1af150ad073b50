// Package common contains common types that are used throughout oxy-gpu. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

// Size is a three dimensional extent, used for texture regions and thread group counts.
type Size struct {
	Width  int
	Height int
	Depth  int
}

// NewSize builds a Size, treating zero dimensions as 1.
//
// Parameters:
//   - width, height, depth: the extent in each dimension
//
// Returns:
//   - Size: the extent
func NewSize(width, height, depth int) Size {
	return Size{
		Width:  Coalesce(width, 1),
		Height: Coalesce(height, 1),
		Depth:  Coalesce(depth, 1),
	}
}

// Volume returns Width * Height * Depth.
func (s Size) Volume() int {
	return s.Width * s.Height * s.Depth
}

// Origin is a three dimensional offset into a texture.
type Origin struct {
	X int
	Y int
	Z int
}

// TextureStagingData holds RGBA pixel data for a texture pending GPU upload.
type TextureStagingData struct {
	// Pixels is the byte slice representing the actual pixel data for the texture. It should be in RGBA format, with 4 bytes per pixel.
	Pixels []byte
	// Width is the width of the texture in pixels.
	Width uint32
	// Height is the height of the texture in pixels.
	Height uint32
}
