// Package config handles voxelizer configuration loading and management.
package config

import (
	"math"

	"github.com/Faultbox/brickterrain/pkg/voxel"
)

// Config holds all voxelizer settings.
type Config struct {
	Terrain TerrainConfig `yaml:"terrain"`
	Compute ComputeConfig `yaml:"compute"`
	Scene   SceneConfig   `yaml:"scene"`
	Logging LoggingConfig `yaml:"logging"`
}

// TerrainConfig holds the conversion inputs.
type TerrainConfig struct {
	Heightmap  string  `yaml:"heightmap"`
	BrickScale float32 `yaml:"brick_scale"`
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	MaxHeight  int     `yaml:"max_height"`
	OutputName string  `yaml:"output_name"`
}

// ComputeConfig holds compute device settings.
type ComputeConfig struct {
	Workers     int `yaml:"workers"`       // 0 = one per CPU
	MaxBufferMB int `yaml:"max_buffer_mb"` // device allocation limit
}

// SceneConfig holds the instance set store settings.
type SceneConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	Path   string `yaml:"path"`   // sqlite database file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	LogFile        string `yaml:"log_file"`
	GraylogAddress string `yaml:"graylog_address"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Terrain: TerrainConfig{
			BrickScale: 1.0,
			Width:      512,
			Height:     512,
			MaxHeight:  voxel.MaxColumnHeight,
			OutputName: "terrain",
		},
		Compute: ComputeConfig{
			Workers:     0,
			MaxBufferMB: 4096,
		},
		Scene: SceneConfig{
			Driver: "sqlite",
			Path:   "scene.db",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// ClampMaxHeight limits a column height to [0, voxel.MaxColumnHeight].
func ClampMaxHeight(h int) int {
	return max(0, min(h, voxel.MaxColumnHeight))
}

// Grid returns the terrain grid described by the terrain section.
func (c *Config) Grid() voxel.GridConfig {
	return voxel.GridConfig{
		TerrainWidth:  c.Terrain.Width,
		TerrainHeight: c.Terrain.Height,
		VoxelSize:     c.Terrain.BrickScale,
		MaxHeight:     c.Terrain.MaxHeight,
	}
}

// MaxBufferBytes returns the compute allocation limit in bytes, 0 for the
// device default.
func (c *Config) MaxBufferBytes() int {
	if c.Compute.MaxBufferMB <= 0 {
		return 0
	}
	return int(min(int64(c.Compute.MaxBufferMB)<<20, math.MaxInt))
}
