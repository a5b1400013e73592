// Package heightfield provides a read-only view over decoded heightmap images.
package heightfield

import (
	"errors"
	"fmt"
	"math"
)

// BytesPerPixel is the size of one RGBA pixel in Pix.
const BytesPerPixel = 4

// HeightField errors.
var (
	ErrInvalidDimensions = errors.New("invalid heightfield dimensions")
	ErrPixelBufferSize   = errors.New("pixel buffer size does not match dimensions")
)

// HeightField is an immutable row-major RGBA image with a top-left origin.
// Pix holds Width*Height*4 bytes and must not be modified once the field is built.
type HeightField struct {
	Width  int
	Height int
	Pix    []byte
}

// New wraps an RGBA pixel buffer without copying it.
func New(width, height int, pix []byte) (*HeightField, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if pix == nil {
		return nil, fmt.Errorf("%w: nil pixel buffer", ErrPixelBufferSize)
	}
	if len(pix) != width*height*BytesPerPixel {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrPixelBufferSize, len(pix), width*height*BytesPerPixel)
	}
	return &HeightField{Width: width, Height: height, Pix: pix}, nil
}

// PixelCount returns Width*Height.
func (f *HeightField) PixelCount() int {
	return f.Width * f.Height
}

// Gray returns the float average of the R, G and B channels at (x, y).
// Coordinates must be in bounds.
func (f *HeightField) Gray(x, y int) float32 {
	i := (y*f.Width + x) * BytesPerPixel
	p := f.Pix[i : i+3 : i+3]
	return (float32(p[0]) + float32(p[1]) + float32(p[2])) / 3
}

// GrayByte returns the integer average of the R, G and B channels at (x, y).
func (f *HeightField) GrayByte(x, y int) uint8 {
	i := (y*f.Width + x) * BytesPerPixel
	return grayByte(f.Pix[i], f.Pix[i+1], f.Pix[i+2])
}

// MaxGray scans every pixel and returns the largest integer grayscale value.
// A zero result means the image is entirely black.
func (f *HeightField) MaxGray() uint8 {
	var maxGray uint8
	for i := 0; i+2 < len(f.Pix); i += BytesPerPixel {
		if g := grayByte(f.Pix[i], f.Pix[i+1], f.Pix[i+2]); g > maxGray {
			maxGray = g
			if maxGray == 255 {
				break
			}
		}
	}
	return maxGray
}

// Sample returns the bilinearly interpolated height at image-space (u, v),
// scaled from [0,255] grayscale to [0,maxHeight] voxel units.
// Coordinates are edge-clamped. The result is continuous; callers round it.
func (f *HeightField) Sample(u, v float32, maxHeight int) float32 {
	u = clampf(u, 0, float32(f.Width-1))
	v = clampf(v, 0, float32(f.Height-1))

	x0 := int(floorf(u))
	y0 := int(floorf(v))
	x1 := min(x0+1, f.Width-1)
	y1 := min(y0+1, f.Height-1)

	fx := u - float32(x0)
	fy := v - float32(y0)

	h0 := lerp(f.Gray(x0, y0), f.Gray(x1, y0), fx)
	h1 := lerp(f.Gray(x0, y1), f.Gray(x1, y1), fx)
	gray := lerp(h0, h1, fy)

	return (gray / 255) * float32(maxHeight)
}

func grayByte(r, g, b uint8) uint8 {
	return uint8((int(r) + int(g) + int(b)) / 3)
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func floorf(v float32) float32 {
	return float32(math.Floor(float64(v)))
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
