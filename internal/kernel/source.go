package kernel

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

// EntryPoint is the compute entry point name in the kernel source.
const EntryPoint = "generate_voxels"

// WorkgroupSize is the edge length of the square @workgroup_size in the source.
const WorkgroupSize = 8

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

//go:embed shaders/terrain.wgsl
var source string

// Source returns the WGSL source of the terrain sampling kernel.
func Source() string {
	return source
}

// Workgroups returns how many workgroups cover n invocations along one axis.
func Workgroups(n int) int {
	return (n + WorkgroupSize - 1) / WorkgroupSize
}

// Compile translates WGSL source to SPIR-V words.
func Compile(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("failed to compile kernel: %w", err)
	}
	if len(spirvBytes) < 4 || len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("failed to compile kernel: SPIR-V output has %d bytes", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	if words[0] != SPIRVMagic {
		return nil, fmt.Errorf("failed to compile kernel: invalid SPIR-V magic 0x%08X", words[0])
	}
	return words, nil
}
