package voxel

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Position is a world-space voxel position.
type Position = mgl32.Vec3

// Sentinel marks an unused slot. Only the X coordinate is ever tested.
var Sentinel = Position{
	float32(math.NaN()),
	float32(math.NaN()),
	float32(math.NaN()),
}

// IsSentinel reports whether p marks an unused slot.
func IsSentinel(p Position) bool {
	return math.IsNaN(float64(p[0]))
}

// ColumnBuffer is the fixed-stride output of one conversion. Column i owns
// Slots[i*Stride : (i+1)*Stride]; its valid positions form a contiguous
// prefix and every slot after the first sentinel is also a sentinel.
type ColumnBuffer struct {
	Columns int
	Stride  int
	Slots   []Position
}

// NewColumnBuffer allocates a buffer with every slot set to the sentinel.
func NewColumnBuffer(columns, stride int) ColumnBuffer {
	slots := make([]Position, columns*stride)
	for i := range slots {
		slots[i] = Sentinel
	}
	return ColumnBuffer{Columns: columns, Stride: stride, Slots: slots}
}

// Len returns the total number of slots.
func (b ColumnBuffer) Len() int {
	return len(b.Slots)
}

// Column returns the slots owned by column i.
func (b ColumnBuffer) Column(i int) []Position {
	return b.Slots[i*b.Stride : (i+1)*b.Stride]
}

// ValidCount returns the length of the valid prefix of column i.
func (b ColumnBuffer) ValidCount(i int) int {
	col := b.Column(i)
	for k, p := range col {
		if IsSentinel(p) {
			return k
		}
	}
	return len(col)
}

// Bounds returns the axis-aligned bounds of a position list.
// ok is false when the list is empty.
func Bounds(positions []Position) (lo, hi Position, ok bool) {
	if len(positions) == 0 {
		return Position{}, Position{}, false
	}
	lo, hi = positions[0], positions[0]
	for _, p := range positions[1:] {
		for i := 0; i < 3; i++ {
			lo[i] = min(lo[i], p[i])
			hi[i] = max(hi[i], p[i])
		}
	}
	return lo, hi, true
}
