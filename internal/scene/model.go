package scene

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/Faultbox/brickterrain/pkg/voxel"
)

// Params are the conversion parameters recorded with an instance set.
type Params struct {
	BrickScale    float32 `json:"brick_scale"`
	TerrainWidth  int     `json:"terrain_width"`
	TerrainHeight int     `json:"terrain_height"`
	MaxHeight     int     `json:"max_height"`
}

// InstanceSet is a particle system plus the instancer that places one brick
// per particle.
type InstanceSet struct {
	ID         uint `gorm:"primarykey"`
	CreatedAt  time.Time
	Name       string `gorm:"size:255;uniqueIndex;not null"`
	Particles  string `gorm:"size:255;not null"`
	Instancer  string `gorm:"size:255;not null"`
	Heightmap  string `gorm:"size:1024"`
	Params     datatypes.JSON
	VoxelCount int

	MinX, MinY, MinZ float32
	MaxX, MaxY, MaxZ float32

	Instances []Instance `gorm:"constraint:OnDelete:CASCADE"`
}

// Instance is one particle position.
type Instance struct {
	ID            uint `gorm:"primarykey"`
	InstanceSetID uint `gorm:"index:idx_instance_order,priority:1;not null"`
	Index         int  `gorm:"column:idx;index:idx_instance_order,priority:2"`
	X, Y, Z       float32
}

// ParticlesName returns the particle system name for an instance set.
func ParticlesName(name string) string {
	return name + "_particles"
}

// InstancerName returns the instancer name for an instance set.
func InstancerName(name string) string {
	return name + "_instancer"
}

// Parameters decodes the recorded conversion parameters.
func (s *InstanceSet) Parameters() (Params, error) {
	var p Params
	if len(s.Params) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(s.Params, &p); err != nil {
		return p, fmt.Errorf("decode params of %s: %w", s.Name, err)
	}
	return p, nil
}

// Bounds returns the recorded axis-aligned bounds of the instances.
func (s *InstanceSet) Bounds() (lo, hi voxel.Position) {
	return voxel.Position{s.MinX, s.MinY, s.MinZ}, voxel.Position{s.MaxX, s.MaxY, s.MaxZ}
}

// Position returns the instance position.
func (i Instance) Position() voxel.Position {
	return voxel.Position{i.X, i.Y, i.Z}
}
