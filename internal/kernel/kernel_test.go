package kernel

import (
	"math"
	"testing"

	"github.com/Faultbox/brickterrain/pkg/heightfield"
	"github.com/Faultbox/brickterrain/pkg/voxel"
)

// grayField builds a HeightField whose pixel (x, y) has R=G=B=values[y*width+x].
func grayField(t *testing.T, width, height int, values []uint8) *heightfield.HeightField {
	t.Helper()
	pix := make([]byte, width*height*heightfield.BytesPerPixel)
	for i, v := range values {
		pix[i*4+0] = v
		pix[i*4+1] = v
		pix[i*4+2] = v
		pix[i*4+3] = 255
	}
	hf, err := heightfield.New(width, height, pix)
	if err != nil {
		t.Fatalf("heightfield.New failed: %v", err)
	}
	return hf
}

// noiseField builds a deterministic pseudo-random field.
func noiseField(t *testing.T, width, height int, seed uint32) *heightfield.HeightField {
	t.Helper()
	values := make([]uint8, width*height)
	s := seed
	for i := range values {
		s = s*1664525 + 1013904223
		values[i] = uint8(s >> 24)
	}
	return grayField(t, width, height, values)
}

// runGrid executes every work item serially and returns the raw buffer.
func runGrid(hf *heightfield.HeightField, p Params) voxel.ColumnBuffer {
	out := make([]float32, p.TerrainWidth*p.TerrainHeight*p.MaxHeight*3)
	for y := 0; y < p.TerrainHeight; y++ {
		for x := 0; x < p.TerrainWidth; x++ {
			Invoke(hf, p, out, x, y)
		}
	}
	buf := voxel.ColumnBuffer{
		Columns: p.TerrainWidth * p.TerrainHeight,
		Stride:  p.MaxHeight,
		Slots:   make([]voxel.Position, len(out)/3),
	}
	for i := range buf.Slots {
		buf.Slots[i] = voxel.Position{out[i*3], out[i*3+1], out[i*3+2]}
	}
	return buf
}

func params(hf *heightfield.HeightField, tw, th int, voxelSize float32, maxHeight int) Params {
	return NewParams(hf, voxel.GridConfig{
		TerrainWidth:  tw,
		TerrainHeight: th,
		VoxelSize:     voxelSize,
		MaxHeight:     maxHeight,
	})
}

func TestImageCoord(t *testing.T) {
	tests := []struct {
		name                string
		cell, cells, pixels int
		want                float32
	}{
		{"single cell", 0, 1, 512, 0},
		{"first cell", 0, 10, 100, 0},
		{"last cell", 9, 10, 100, 99},
		{"upscale midpoint", 1, 3, 2, 0.5},
		{"downscale", 1, 3, 100, 49.5},
		{"single pixel", 3, 4, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ImageCoord(tt.cell, tt.cells, tt.pixels); got != tt.want {
				t.Errorf("ImageCoord(%d,%d,%d) = %v, want %v", tt.cell, tt.cells, tt.pixels, got, tt.want)
			}
		})
	}
}

func TestImageCoord_IdentityIsExact(t *testing.T) {
	for _, n := range []int{2, 3, 7, 49, 255, 511, 4097, 10000} {
		for cell := 0; cell < n; cell++ {
			if got := ImageCoord(cell, n, n); got != float32(cell) {
				t.Fatalf("n=%d: ImageCoord(%d) = %v, want exact %d", n, cell, got, cell)
			}
		}
	}
}

func TestImageCoord_WideGrid(t *testing.T) {
	const n = 70000 // (n-1)*(n-1) does not fit in 32 bits

	prev := float32(-1)
	for _, cell := range []int{0, 1, 65536, 65537, 69998, 69999} {
		got := ImageCoord(cell, n, n)
		if got < prev {
			t.Fatalf("ImageCoord(%d) = %v, went backwards from %v", cell, got, prev)
		}
		if diff := math.Abs(float64(got) - float64(cell)); diff > 0.01 {
			t.Errorf("ImageCoord(%d) = %v, want about %d", cell, got, cell)
		}
		prev = got
	}
}

func TestCellHeight_ExactPixels(t *testing.T) {
	const w, h = 9, 6
	hf := noiseField(t, w, h, 7)

	for _, maxHeight := range []int{1, 37, 200, 256} {
		p := params(hf, w, h, 1, maxHeight)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				u := ImageCoord(x, w, w)
				v := ImageCoord(y, h, h)
				sampled := hf.Sample(u, v, maxHeight)
				want := (hf.Gray(x, y) / 255) * float32(maxHeight)
				if sampled != want {
					t.Fatalf("maxHeight=%d cell (%d,%d): sampled %v, want %v", maxHeight, x, y, sampled, want)
				}
				wantLevel := int(math.Floor(float64(want + 0.5)))
				if got := CellHeight(hf, p, x, y); got != wantLevel {
					t.Errorf("maxHeight=%d cell (%d,%d): height %d, want %d", maxHeight, x, y, got, wantLevel)
				}
			}
		}
	}
}

func TestCellHeight_Clamped(t *testing.T) {
	hf := grayField(t, 1, 1, []uint8{255})
	p := params(hf, 3, 3, 1, 256)

	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if got := CellHeight(hf, p, x, y); got < 0 || got > p.MaxHeight {
				t.Errorf("cell (%d,%d) height %d outside [0,%d]", x, y, got, p.MaxHeight)
			}
		}
	}
}

func TestNeighborMin_SkipsOutOfBounds(t *testing.T) {
	// A bright field with one dark pixel: only cells touching it see the dark height.
	values := make([]uint8, 5*5)
	for i := range values {
		values[i] = 200
	}
	values[0] = 0
	hf := grayField(t, 5, 5, values)
	p := params(hf, 5, 5, 1, 255)

	tests := []struct {
		x, y int
		want int
	}{
		{0, 0, 0},
		{1, 1, 0},
		{1, 0, 0},
		{2, 2, 200},
		{4, 4, 200},
		{4, 0, 200},
	}

	for _, tt := range tests {
		if got := NeighborMin(hf, p, tt.x, tt.y); got != tt.want {
			t.Errorf("NeighborMin(%d,%d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestNeighborMin_IncludesOwnHeight(t *testing.T) {
	hf := noiseField(t, 6, 6, 99)
	p := params(hf, 6, 6, 1, 128)

	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			if low, top := NeighborMin(hf, p, x, y), CellHeight(hf, p, x, y); low > top {
				t.Errorf("cell (%d,%d): neighbor min %d above own height %d", x, y, low, top)
			}
		}
	}
}

func TestScenario_TwoByTwoCorners(t *testing.T) {
	hf := grayField(t, 2, 2, []uint8{0, 64, 128, 255})
	p := params(hf, 2, 2, 1, 255)
	buf := runGrid(hf, p)

	wantTop := []float32{0, 64, 128, 255}
	for cell, top := range wantTop {
		n := buf.ValidCount(cell)
		if n == 0 {
			t.Fatalf("cell %d has no voxels", cell)
		}
		col := buf.Column(cell)
		if got := col[n-1].Y(); got != top {
			t.Errorf("cell %d: top height %v, want %v", cell, got, top)
		}
	}

	// Every cell neighbors the black corner, so skirts reach level 0 unless the
	// column would exceed the stride.
	wantCount := []int{1, 65, 129, 255}
	for cell, want := range wantCount {
		if got := buf.ValidCount(cell); got != want {
			t.Errorf("cell %d: %d voxels, want %d", cell, got, want)
		}
	}
	if got := buf.Column(1)[0].Y(); got != 0 {
		t.Errorf("cell 1 skirt should start at 0, got %v", got)
	}
	if got := buf.Column(3)[0].Y(); got != 1 {
		t.Errorf("cell 3 should drop its lowest level to fit the stride, starts at %v", got)
	}
}

func TestScenario_FlatTerrainHasNoSkirt(t *testing.T) {
	hf := grayField(t, 1, 1, []uint8{100})
	p := params(hf, 4, 4, 1, 200)
	buf := runGrid(hf, p)

	want := float32(math.Floor(float64((float32(100)/255)*200 + 0.5)))
	for cell := 0; cell < buf.Columns; cell++ {
		if n := buf.ValidCount(cell); n != 1 {
			t.Fatalf("cell %d: %d voxels, want exactly 1", cell, n)
		}
		if got := buf.Column(cell)[0].Y(); got != want {
			t.Errorf("cell %d: height %v, want %v", cell, got, want)
		}
	}
}

func TestScenario_VoxelSizeMultiples(t *testing.T) {
	hf := noiseField(t, 8, 8, 3)
	p := params(hf, 12, 5, 2.0, 64)
	positions := voxel.Compact(runGrid(hf, p))

	if len(positions) == 0 {
		t.Fatal("expected voxels")
	}
	for _, pos := range positions {
		for axis, c := range pos {
			if q := c / 2; q != float32(math.Trunc(float64(q))) {
				t.Fatalf("position %v: axis %d not a multiple of 2", pos, axis)
			}
		}
	}
}

func TestColumns_ValidPrefix(t *testing.T) {
	hf := noiseField(t, 13, 7, 11)
	p := params(hf, 20, 9, 0.5, 32)
	buf := runGrid(hf, p)

	if buf.Len() != 20*9*32 {
		t.Fatalf("buffer length %d, want %d", buf.Len(), 20*9*32)
	}
	for cell := 0; cell < buf.Columns; cell++ {
		col := buf.Column(cell)
		n := buf.ValidCount(cell)
		if n > p.MaxHeight {
			t.Fatalf("cell %d: %d valid slots > stride", cell, n)
		}
		for k := n; k < len(col); k++ {
			if !voxel.IsSentinel(col[k]) {
				t.Fatalf("cell %d: slot %d valid after sentinel at %d", cell, k, n)
			}
		}
		for k := 1; k < n; k++ {
			if col[k].Y()-col[k-1].Y() != p.VoxelSize {
				t.Fatalf("cell %d: levels not contiguous ascending at slot %d", cell, k)
			}
		}
	}
}

func TestColumns_GapClosing(t *testing.T) {
	hf := noiseField(t, 10, 10, 42)
	p := params(hf, 10, 10, 1, 255)
	buf := runGrid(hf, p)

	bottom := func(x, y int) int {
		return int(buf.Column(y*p.TerrainWidth + x)[0].Y())
	}

	for y := 0; y < p.TerrainHeight; y++ {
		for x := 0; x < p.TerrainWidth; x++ {
			h1 := CellHeight(hf, p, x, y)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= p.TerrainWidth || ny >= p.TerrainHeight {
						continue
					}
					h2 := CellHeight(hf, p, nx, ny)
					if got := bottom(x, y); got > min(h1, h2) && h1-min(h1, h2)+1 <= p.MaxHeight {
						t.Fatalf("cell (%d,%d) h=%d bottoms out at %d, neighbor (%d,%d) h=%d", x, y, h1, got, nx, ny, h2)
					}
				}
			}
		}
	}
}

func TestSpan_ClipsToStride(t *testing.T) {
	hf := grayField(t, 2, 1, []uint8{0, 255})
	p := params(hf, 2, 1, 1, 16)

	low, top := Span(hf, p, 1, 0)
	if top != 16 {
		t.Errorf("top = %d, want 16", top)
	}
	if top-low+1 != 16 {
		t.Errorf("span %d..%d has %d levels, want 16", low, top, top-low+1)
	}
}

func TestInvoke_OutOfGridIsNoop(t *testing.T) {
	hf := grayField(t, 1, 1, []uint8{50})
	p := params(hf, 2, 2, 1, 4)
	out := make([]float32, 2*2*4*3)

	Invoke(hf, p, out, 2, 0)
	Invoke(hf, p, out, 0, 7)

	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %v, expected untouched buffer", i, v)
		}
	}
}

func TestUniform(t *testing.T) {
	p := Params{ImageWidth: 640, ImageHeight: 480, TerrainWidth: 512, TerrainHeight: 256, VoxelSize: 0.25, MaxHeight: 200}

	buf := p.Uniform()
	if len(buf) != UniformSize {
		t.Fatalf("uniform is %d bytes, want %d", len(buf), UniformSize)
	}
	got, err := ParseUniform(buf)
	if err != nil {
		t.Fatalf("ParseUniform failed: %v", err)
	}
	if got != p {
		t.Errorf("ParseUniform = %+v, want %+v", got, p)
	}
	if s := math.Float32frombits(uint32(buf[24]) | uint32(buf[25])<<8 | uint32(buf[26])<<16 | uint32(buf[27])<<24); !math.IsNaN(float64(s)) {
		t.Errorf("sentinel field should be NaN, got %v", s)
	}

	if _, err := ParseUniform(buf[:8]); err == nil {
		t.Error("expected error for short uniform block")
	}
}
