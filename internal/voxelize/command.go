// Package voxelize is the undoable "voxelize terrain" command: it converts a
// PNG heightmap into voxel positions and publishes them to a scene as an
// instance set.
package voxelize

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/brickterrain/internal/compute"
	"github.com/Faultbox/brickterrain/internal/logger"
	"github.com/Faultbox/brickterrain/internal/scene"
	"github.com/Faultbox/brickterrain/pkg/heightfield"
	"github.com/Faultbox/brickterrain/pkg/voxel"
)

var (
	ErrMissingHeightmap  = errors.New("no heightmap selected")
	ErrHeightmapNotFound = errors.New("heightmap file does not exist")
	ErrMissingOutputName = errors.New("no output name")
	ErrNotDone           = errors.New("command has not been done")
	ErrAlreadyDone       = errors.New("command is already applied")
)

// Scene receives the generated instance sets.
type Scene interface {
	Create(ctx context.Context, spec scene.SetSpec, positions []voxel.Position) (*scene.InstanceSet, error)
	Delete(ctx context.Context, name string) error
}

// Converter turns a heightmap file into a voxel column buffer.
type Converter interface {
	ConvertFile(path string, cfg voxel.GridConfig) (voxel.ColumnBuffer, compute.Info, error)
}

// Options are the command arguments.
type Options struct {
	Heightmap     string
	BrickScale    float32
	TerrainWidth  int
	TerrainHeight int
	MaxHeight     int
	OutputName    string
}

// DefaultOptions returns the command defaults.
func DefaultOptions() Options {
	return Options{
		BrickScale:    1.0,
		TerrainWidth:  512,
		TerrainHeight: 512,
		MaxHeight:     voxel.MaxColumnHeight,
		OutputName:    "terrain",
	}
}

// Grid returns the terrain grid described by the options.
func (o Options) Grid() voxel.GridConfig {
	return voxel.GridConfig{
		TerrainWidth:  o.TerrainWidth,
		TerrainHeight: o.TerrainHeight,
		VoxelSize:     o.BrickScale,
		MaxHeight:     o.MaxHeight,
	}
}

// Validate checks the arguments without touching the heightmap contents.
func (o Options) Validate() error {
	if o.Heightmap == "" {
		return ErrMissingHeightmap
	}
	if _, err := os.Stat(o.Heightmap); err != nil {
		return fmt.Errorf("%w: %s", ErrHeightmapNotFound, o.Heightmap)
	}
	if o.OutputName == "" {
		return ErrMissingOutputName
	}
	if err := o.Grid().Validate(); err != nil {
		return fmt.Errorf("%w: %w", compute.ErrInvalidConfig, err)
	}
	return nil
}

// Command generates one terrain. The positions of the first successful Do are
// kept so Redo can rebuild the instance set without converting again.
type Command struct {
	opts  Options
	conv  Converter
	scene Scene

	positions []voxel.Position
	info      compute.Info
	set       *scene.InstanceSet
	applied   bool
}

// New creates a command that converts with conv and publishes to sc.
func New(conv Converter, sc Scene, opts Options) *Command {
	return &Command{opts: opts, conv: conv, scene: sc}
}

// IsUndoable reports that the command supports Undo and Redo.
func (c *Command) IsUndoable() bool {
	return true
}

// Do validates the options, converts the heightmap and creates the instance set.
func (c *Command) Do(ctx context.Context) error {
	if c.applied {
		return ErrAlreadyDone
	}
	if err := c.opts.Validate(); err != nil {
		return err
	}

	ok, err := heightfield.IsPNG(c.opts.Heightmap)
	if err != nil {
		return fmt.Errorf("%w: %w", compute.ErrImageLoadFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s: %w", compute.ErrImageLoadFailed, c.opts.Heightmap, heightfield.ErrNotPNG)
	}

	buf, info, err := c.conv.ConvertFile(c.opts.Heightmap, c.opts.Grid())
	if err != nil {
		return err
	}
	positions := voxel.Compact(buf)

	logger.Info("Heightmap converted",
		zap.String("heightmap", c.opts.Heightmap),
		zap.Int("image_width", info.Width),
		zap.Int("image_height", info.Height),
		zap.Int("voxels", len(positions)),
	)

	if err := ctx.Err(); err != nil {
		return err
	}

	c.positions, c.info = positions, info
	return c.publish(ctx)
}

// Undo deletes the instance set created by Do or Redo.
func (c *Command) Undo(ctx context.Context) error {
	if !c.applied {
		return ErrNotDone
	}
	if err := c.scene.Delete(ctx, c.opts.OutputName); err != nil {
		return fmt.Errorf("undo %s: %w", c.opts.OutputName, err)
	}
	c.applied = false
	c.set = nil
	return nil
}

// Redo recreates the instance set from the cached positions.
func (c *Command) Redo(ctx context.Context) error {
	if c.applied {
		return ErrAlreadyDone
	}
	if c.positions == nil {
		return ErrNotDone
	}
	return c.publish(ctx)
}

func (c *Command) publish(ctx context.Context) error {
	spec := scene.SetSpec{
		Name:      c.opts.OutputName,
		Heightmap: c.opts.Heightmap,
		Params: scene.Params{
			BrickScale:    c.opts.BrickScale,
			TerrainWidth:  c.opts.TerrainWidth,
			TerrainHeight: c.opts.TerrainHeight,
			MaxHeight:     c.opts.MaxHeight,
		},
	}
	set, err := c.scene.Create(ctx, spec, c.positions)
	if err != nil {
		return fmt.Errorf("create %s: %w", c.opts.OutputName, err)
	}
	c.set = set
	c.applied = true

	logger.Info("Terrain generated", zap.String("output", c.opts.OutputName))
	return nil
}

// Positions returns the cached voxel positions.
func (c *Command) Positions() []voxel.Position {
	return c.positions
}

// Info returns the heightmap description of the last conversion.
func (c *Command) Info() compute.Info {
	return c.info
}

// Set returns the live instance set, or nil when the command is not applied.
func (c *Command) Set() *scene.InstanceSet {
	return c.set
}
