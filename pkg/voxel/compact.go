package voxel

// EstimatedVoxelsPerColumn is the capacity hint used by Compact.
const EstimatedVoxelsPerColumn = 3

// Compact scans the buffer in slot order and returns every valid position.
// Ordering is row-major over columns, bottom to top within a column.
func Compact(b ColumnBuffer) []Position {
	return CompactInto(make([]Position, 0, b.Columns*EstimatedVoxelsPerColumn), b)
}

// CompactInto appends the valid positions of b to dst.
func CompactInto(dst []Position, b ColumnBuffer) []Position {
	for _, p := range b.Slots {
		if !IsSentinel(p) {
			dst = append(dst, p)
		}
	}
	return dst
}
