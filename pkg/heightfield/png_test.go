package heightfield

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// encodePNG encodes img and returns the raw file bytes.
func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestCheckSignature(t *testing.T) {
	valid := encodePNG(t, image.NewGray(image.Rect(0, 0, 1, 1)))

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"valid png", valid, false},
		{"signature only", Signature[:], false},
		{"truncated", Signature[:5], true},
		{"empty", nil, true},
		{"jpeg header", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F'}, true},
		{"one byte off", []byte{137, 80, 78, 71, 13, 10, 26, 11}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSignature(bytes.NewReader(tt.data))
			if tt.wantErr {
				if !errors.Is(err, ErrNotPNG) {
					t.Errorf("expected ErrNotPNG, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestIsPNG(t *testing.T) {
	dir := t.TempDir()

	pngPath := filepath.Join(dir, "map.png")
	if err := os.WriteFile(pngPath, encodePNG(t, image.NewGray(image.Rect(0, 0, 2, 2))), 0644); err != nil {
		t.Fatalf("failed to write png: %v", err)
	}
	txtPath := filepath.Join(dir, "map.txt")
	if err := os.WriteFile(txtPath, []byte("not an image at all"), 0644); err != nil {
		t.Fatalf("failed to write txt: %v", err)
	}

	if ok, err := IsPNG(pngPath); err != nil || !ok {
		t.Errorf("IsPNG(png) = %v, %v; want true, nil", ok, err)
	}
	if ok, err := IsPNG(txtPath); err != nil || ok {
		t.Errorf("IsPNG(txt) = %v, %v; want false, nil", ok, err)
	}
	if _, err := IsPNG(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDecode_Gray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 40)
	}

	hf, err := Decode(bytes.NewReader(encodePNG(t, img)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if hf.Width != 3 || hf.Height != 2 {
		t.Fatalf("expected 3x2, got %dx%d", hf.Width, hf.Height)
	}
	if len(hf.Pix) != 3*2*BytesPerPixel {
		t.Fatalf("expected %d bytes, got %d", 3*2*BytesPerPixel, len(hf.Pix))
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			want := img.GrayAt(x, y).Y
			if got := hf.GrayByte(x, y); got != want {
				t.Errorf("pixel (%d,%d): gray %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestDecode_TranslucentKeepsStraightRGB(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 90, G: 120, B: 150, A: 10})

	hf, err := Decode(bytes.NewReader(encodePNG(t, img)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := hf.GrayByte(0, 0); got != 120 {
		t.Errorf("alpha must not darken heights: gray %d, want 120", got)
	}
}

func TestDecode_Garbage(t *testing.T) {
	data := append(Signature[:], []byte("garbage that is not a chunk")...)
	_, err := Decode(bytes.NewReader(data))
	if !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(2, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	path := filepath.Join(dir, "height.png")
	if err := os.WriteFile(path, encodePNG(t, img), 0644); err != nil {
		t.Fatalf("failed to write png: %v", err)
	}

	hf, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if hf.MaxGray() != 255 {
		t.Errorf("expected max gray 255, got %d", hf.MaxGray())
	}
	if hf.GrayByte(2, 1) != 255 || hf.GrayByte(1, 2) != 0 {
		t.Error("pixel layout is not row-major with top-left origin")
	}
}

func TestLoad_RejectsNonPNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "height.png")
	if err := os.WriteFile(path, []byte("BM this is a bitmap header"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := Load(path); !errors.Is(err, ErrNotPNG) {
		t.Errorf("expected ErrNotPNG, got %v", err)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.png")); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode for missing file, got %v", err)
	}
}

func TestFromImage_Empty(t *testing.T) {
	_, err := FromImage(image.NewGray(image.Rect(0, 0, 0, 5)))
	if !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("expected ErrInvalidDimensions, got %v", err)
	}
}

func TestFromImage_OffsetBounds(t *testing.T) {
	img := image.NewNRGBA(image.Rect(10, 20, 12, 21))
	img.SetNRGBA(11, 20, color.NRGBA{R: 30, G: 30, B: 30, A: 255})

	hf, err := FromImage(img)
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}
	if hf.Width != 2 || hf.Height != 1 {
		t.Fatalf("expected 2x1, got %dx%d", hf.Width, hf.Height)
	}
	if hf.GrayByte(1, 0) != 30 || hf.GrayByte(0, 0) != 0 {
		t.Errorf("offset image not rebased to origin: got %d,%d", hf.GrayByte(0, 0), hf.GrayByte(1, 0))
	}
}
