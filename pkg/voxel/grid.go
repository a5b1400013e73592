// Package voxel defines the terrain grid configuration, the fixed-stride voxel
// column buffer produced by the sampling kernel, and its host-side compaction.
package voxel

import (
	"errors"
	"fmt"
	"math"
)

// MaxColumnHeight is the largest supported column stride.
const MaxColumnHeight = 256

// SlotBytes is the size of one slot on the device: three tightly packed float32s.
const SlotBytes = 12

// GridConfig errors.
var (
	ErrVoxelSize    = errors.New("voxel size must be greater than zero")
	ErrTerrainSize  = errors.New("terrain size must be at least 1x1")
	ErrMaxHeight    = errors.New("max height out of range")
	ErrGridTooLarge = errors.New("terrain grid too large")
)

// GridConfig describes the output terrain grid. It is independent of the
// source image resolution.
type GridConfig struct {
	TerrainWidth  int
	TerrainHeight int
	VoxelSize     float32
	MaxHeight     int
}

// Validate checks the grid configuration, including that the slot count and
// the device buffer size fit in an int.
func (c GridConfig) Validate() error {
	if !(c.VoxelSize > 0) || math.IsInf(float64(c.VoxelSize), 0) {
		return fmt.Errorf("%w: got %v", ErrVoxelSize, c.VoxelSize)
	}
	if c.TerrainWidth < 1 || c.TerrainHeight < 1 {
		return fmt.Errorf("%w: got %dx%d", ErrTerrainSize, c.TerrainWidth, c.TerrainHeight)
	}
	if c.MaxHeight < 1 || c.MaxHeight > MaxColumnHeight {
		return fmt.Errorf("%w: got %d, want [1,%d]", ErrMaxHeight, c.MaxHeight, MaxColumnHeight)
	}

	limit := math.MaxInt / SlotBytes
	if c.TerrainWidth > limit/c.TerrainHeight {
		return fmt.Errorf("%w: %dx%d cells", ErrGridTooLarge, c.TerrainWidth, c.TerrainHeight)
	}
	if c.Cells() > limit/c.MaxHeight {
		return fmt.Errorf("%w: %d cells x %d slots", ErrGridTooLarge, c.Cells(), c.MaxHeight)
	}
	return nil
}

// Cells returns the number of terrain cells (columns).
func (c GridConfig) Cells() int {
	return c.TerrainWidth * c.TerrainHeight
}

// Slots returns the fixed-stride buffer length: one slot per level per column.
func (c GridConfig) Slots() int {
	return c.Cells() * c.MaxHeight
}

// BufferBytes returns the device-side size of the output buffer.
func (c GridConfig) BufferBytes() int {
	return c.Slots() * SlotBytes
}
