package heightfield

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/draw"
)

// Signature is the 8-byte header every PNG file starts with.
var Signature = [8]byte{137, 80, 78, 71, 13, 10, 26, 10}

// Decoding errors.
var (
	ErrNotPNG = errors.New("not a PNG file: signature mismatch")
	ErrDecode = errors.New("failed to decode heightmap")
)

// CheckSignature reads the first 8 bytes of r and compares them to Signature.
func CheckSignature(r io.Reader) error {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("%w: reading header: %v", ErrNotPNG, err)
	}
	if hdr != Signature {
		return ErrNotPNG
	}
	return nil
}

// IsPNG reports whether the file at path carries the PNG signature.
// Only I/O failures opening the file are returned as errors.
func IsPNG(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if err := CheckSignature(f); err != nil {
		return false, nil
	}
	return true, nil
}

// Load reads, gates and decodes a PNG heightmap from disk.
func Load(path string) (*HeightField, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	if err := CheckSignature(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	hf, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return hf, nil
}

// Decode decodes a PNG stream into a HeightField.
func Decode(r io.Reader) (*HeightField, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return FromImage(img)
}

// FromImage converts any image into a HeightField with straight (non-premultiplied)
// RGBA bytes. NRGBA images with a tight stride are wrapped without copying.
func FromImage(img image.Image) (*HeightField, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, b.Dx(), b.Dy())
	}

	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) && n.Stride == b.Dx()*BytesPerPixel {
		return New(b.Dx(), b.Dy(), n.Pix[:b.Dx()*b.Dy()*BytesPerPixel])
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return New(b.Dx(), b.Dy(), dst.Pix)
}
