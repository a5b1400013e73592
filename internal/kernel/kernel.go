// Package kernel implements the terrain sampling kernel: for every terrain cell it
// resamples the heightfield, scans the 8 neighbors for the lowest column, and
// writes a fixed-stride span of voxel positions padded with the sentinel.
//
// The host functions here are the reference implementation of the WGSL entry
// point in shaders/terrain.wgsl and must stay numerically identical to it.
package kernel

import (
	"math"

	"github.com/Faultbox/brickterrain/pkg/heightfield"
	"github.com/Faultbox/brickterrain/pkg/voxel"
)

// Params are the scalar kernel arguments.
type Params struct {
	ImageWidth    int
	ImageHeight   int
	TerrainWidth  int
	TerrainHeight int
	VoxelSize     float32
	MaxHeight     int
}

// NewParams combines the image size and the grid configuration.
func NewParams(hf *heightfield.HeightField, cfg voxel.GridConfig) Params {
	return Params{
		ImageWidth:    hf.Width,
		ImageHeight:   hf.Height,
		TerrainWidth:  cfg.TerrainWidth,
		TerrainHeight: cfg.TerrainHeight,
		VoxelSize:     cfg.VoxelSize,
		MaxHeight:     cfg.MaxHeight,
	}
}

// ImageCoord maps a terrain cell index onto image space so that the first and
// last cells land on the first and last pixels. Integer quotient and remainder
// are split so an identity mapping is exact. The device computes the product in
// 32 bits, so past that range both sides fall back to float32 arithmetic.
func ImageCoord(cell, cells, pixels int) float32 {
	if cells <= 1 {
		return 0
	}
	m, d := pixels-1, cells-1
	if m != 0 && uint64(cell) > math.MaxUint32/uint64(m) {
		return float32(cell) * float32(m) / float32(d)
	}
	n := cell * m
	return float32(n/d) + float32(n%d)/float32(d)
}

// CellHeight returns the rounded, clamped column height of cell (x, y).
func CellHeight(hf *heightfield.HeightField, p Params, x, y int) int {
	u := ImageCoord(x, p.TerrainWidth, p.ImageWidth)
	v := ImageCoord(y, p.TerrainHeight, p.ImageHeight)
	h := hf.Sample(u, v, p.MaxHeight)
	level := int(math.Floor(float64(h + 0.5)))
	return max(0, min(level, p.MaxHeight))
}

// NeighborMin returns the lowest column height among cell (x, y) and its
// in-bounds 8-neighbors. Neighbors outside the grid are skipped.
func NeighborMin(hf *heightfield.HeightField, p Params, x, y int) int {
	return neighborMin(hf, p, x, y, CellHeight(hf, p, x, y))
}

func neighborMin(hf *heightfield.HeightField, p Params, x, y, low int) int {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= p.TerrainWidth || ny < 0 || ny >= p.TerrainHeight {
				continue
			}
			if h := CellHeight(hf, p, nx, ny); h < low {
				low = h
			}
		}
	}
	return low
}

// Span returns the inclusive level range emitted for cell (x, y). When the
// skirt would need more than MaxHeight slots the lowest levels are dropped so
// the top stays exact.
func Span(hf *heightfield.HeightField, p Params, x, y int) (low, top int) {
	top = CellHeight(hf, p, x, y)
	low = neighborMin(hf, p, x, y, top)
	if top-low+1 > p.MaxHeight {
		low = top - p.MaxHeight + 1
	}
	return low, top
}

// WriteColumn fills col (MaxHeight*3 floats) with the column of cell (x, y)
// followed by sentinel padding, and returns the number of valid slots.
func WriteColumn(hf *heightfield.HeightField, p Params, x, y int, col []float32) int {
	low, top := Span(hf, p, x, y)
	wx := float32(x) * p.VoxelSize
	wz := float32(y) * p.VoxelSize

	n := 0
	for level := low; level <= top && n < p.MaxHeight; level++ {
		col[n*3+0] = wx
		col[n*3+1] = float32(level) * p.VoxelSize
		col[n*3+2] = wz
		n++
	}

	nan := voxel.Sentinel[0]
	for i := n * 3; i < p.MaxHeight*3; i++ {
		col[i] = nan
	}
	return n
}

// Invoke runs one work item of the global grid against the whole output buffer.
// Invocations outside the terrain grid return without writing.
func Invoke(hf *heightfield.HeightField, p Params, out []float32, x, y int) {
	if x >= p.TerrainWidth || y >= p.TerrainHeight {
		return
	}
	stride := p.MaxHeight * 3
	base := (y*p.TerrainWidth + x) * stride
	WriteColumn(hf, p, x, y, out[base:base+stride])
}
