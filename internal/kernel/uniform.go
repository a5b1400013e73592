package kernel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Faultbox/brickterrain/pkg/voxel"
)

// UniformSize is the byte size of the Params uniform block in terrain.wgsl.
const UniformSize = 32

// ErrUniformSize is returned when a uniform block has the wrong length.
var ErrUniformSize = errors.New("kernel uniform block has wrong size")

// Uniform encodes p as the little-endian Params block bound at @binding(0).
// The sentinel travels in the block because WGSL cannot spell a NaN literal.
func (p Params) Uniform() []byte {
	buf := make([]byte, UniformSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(p.ImageWidth))
	le.PutUint32(buf[4:], uint32(p.ImageHeight))
	le.PutUint32(buf[8:], uint32(p.TerrainWidth))
	le.PutUint32(buf[12:], uint32(p.TerrainHeight))
	le.PutUint32(buf[16:], math.Float32bits(p.VoxelSize))
	le.PutUint32(buf[20:], uint32(p.MaxHeight))
	le.PutUint32(buf[24:], math.Float32bits(voxel.Sentinel[0]))
	return buf
}

// ParseUniform decodes a Params block written by Uniform.
func ParseUniform(buf []byte) (Params, error) {
	if len(buf) != UniformSize {
		return Params{}, fmt.Errorf("%w: got %d bytes, want %d", ErrUniformSize, len(buf), UniformSize)
	}
	le := binary.LittleEndian
	return Params{
		ImageWidth:    int(le.Uint32(buf[0:])),
		ImageHeight:   int(le.Uint32(buf[4:])),
		TerrainWidth:  int(le.Uint32(buf[8:])),
		TerrainHeight: int(le.Uint32(buf[12:])),
		VoxelSize:     math.Float32frombits(le.Uint32(buf[16:])),
		MaxHeight:     int(le.Uint32(buf[20:])),
	}, nil
}
