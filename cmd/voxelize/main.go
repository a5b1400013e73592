// voxelize converts grayscale PNG heightmaps into brick terrain instance sets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/Faultbox/brickterrain/internal/compute"
	"github.com/Faultbox/brickterrain/internal/config"
	"github.com/Faultbox/brickterrain/internal/logger"
	"github.com/Faultbox/brickterrain/internal/scene"
	"github.com/Faultbox/brickterrain/internal/voxelize"
	"github.com/Faultbox/brickterrain/pkg/heightfield"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var run func(context.Context, *config.Config) error
	switch command {
	case "generate", "gen":
		run = cmdGenerate
	case "list", "ls":
		run = cmdList
	case "show":
		run = cmdShow
	case "delete", "rm":
		run = cmdDelete
	case "inspect":
		run = cmdInspect
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	// Parse CLI flags first
	if err := config.ParseFlags(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if errors.Is(err, config.ErrFlagAfterArgs) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.InitWithOptions(logger.Options{
		Level:         cfg.Logging.Level,
		File:          fileConfig(cfg.Logging.LogFile),
		Console:       true,
		GraylogAddr:   cfg.Logging.GraylogAddress,
		GraylogSource: "voxelize",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Command failed",
			zap.String("command", command),
			zap.String("kind", compute.Kind(err)),
			zap.Error(err),
		)
		logger.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func fileConfig(path string) logger.FileConfig {
	if path == "" {
		return logger.FileConfig{}
	}
	return logger.DefaultFileConfig(path)
}

func printUsage() {
	fmt.Println(`voxelize - heightmap to brick terrain converter

Usage:
  voxelize <command> [options] [arguments]

Options go before the command's arguments.

Commands:
  generate [options] [heightmap.png]  Convert a heightmap into an instance set
  list                                List instance sets in the scene
  show <name>                         Show an instance set
  delete <name>                       Delete an instance set
  inspect <heightmap.png>             Check a heightmap and print its stats

Options:
  -config <path>      Config file (default ./voxelize.yaml)
  -heightmap <path>   Heightmap PNG
  -s, -scale <n>      Brick scale
  -d, -dims <WxH>     Terrain dimensions in cells
  -width, -height     Terrain width or height in cells
  -max-height <n>     Maximum column height (0-256)
  -o, -output <name>  Instance set name
  -db <path>          Scene database file
  -workers <n>        Compute workers (0 = one per CPU)
  -debug              Enable debug logging

Examples:
  voxelize generate -d 256x256 -s 0.5 -o island maps/island.png
  voxelize list -db scenes/world.db
  voxelize inspect maps/island.png`)
}

func openScene(cfg *config.Config) (*scene.Store, error) {
	return scene.Open(scene.Config{
		Driver: cfg.Scene.Driver,
		Path:   cfg.Scene.Path,
		DSN:    cfg.Scene.DSN,
	})
}

func positional(n int, usage string) ([]string, error) {
	args := config.Args()
	if len(args) < n {
		return nil, errors.New("usage: " + usage)
	}
	return args, nil
}

func cmdGenerate(ctx context.Context, cfg *config.Config) error {
	if args := config.Args(); len(args) > 0 {
		cfg.Terrain.Heightmap = args[0]
	}

	d := compute.New(
		compute.WithWorkers(cfg.Compute.Workers),
		compute.WithMaxBufferBytes(cfg.MaxBufferBytes()),
	)
	if err := d.Initialize(); err != nil {
		return err
	}
	defer d.Close()

	store, err := openScene(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	cmd := voxelize.New(d, store, voxelize.Options{
		Heightmap:     cfg.Terrain.Heightmap,
		BrickScale:    cfg.Terrain.BrickScale,
		TerrainWidth:  cfg.Terrain.Width,
		TerrainHeight: cfg.Terrain.Height,
		MaxHeight:     cfg.Terrain.MaxHeight,
		OutputName:    cfg.Terrain.OutputName,
	})
	if err := cmd.Do(ctx); err != nil {
		return err
	}

	set := cmd.Set()
	info := cmd.Info()
	fmt.Printf("Terrain:   %s\n", set.Name)
	fmt.Printf("Heightmap: %s (%dx%d)\n", info.Path, info.Width, info.Height)
	fmt.Printf("Grid:      %dx%d, max height %d, brick scale %g\n",
		cfg.Terrain.Width, cfg.Terrain.Height, cfg.Terrain.MaxHeight, cfg.Terrain.BrickScale)
	fmt.Printf("Voxels:    %d\n", set.VoxelCount)
	fmt.Printf("Nodes:     %s, %s\n", set.Particles, set.Instancer)
	return nil
}

func cmdList(ctx context.Context, cfg *config.Config) error {
	store, err := openScene(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sets, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		fmt.Println("No instance sets.")
		return nil
	}

	fmt.Printf("%-24s %10s  %-19s  %s\n", "NAME", "VOXELS", "CREATED", "HEIGHTMAP")
	for _, s := range sets {
		fmt.Printf("%-24s %10d  %-19s  %s\n", s.Name, s.VoxelCount, s.CreatedAt.Format("2006-01-02 15:04:05"), s.Heightmap)
	}
	return nil
}

func cmdShow(ctx context.Context, cfg *config.Config) error {
	args, err := positional(1, "voxelize show <name>")
	if err != nil {
		return err
	}

	store, err := openScene(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	set, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}
	params, err := set.Parameters()
	if err != nil {
		return err
	}
	lo, hi := set.Bounds()

	fmt.Printf("Name:        %s\n", set.Name)
	fmt.Printf("Particles:   %s\n", set.Particles)
	fmt.Printf("Instancer:   %s\n", set.Instancer)
	fmt.Printf("Heightmap:   %s\n", set.Heightmap)
	fmt.Printf("Grid:        %dx%d\n", params.TerrainWidth, params.TerrainHeight)
	fmt.Printf("Max height:  %d\n", params.MaxHeight)
	fmt.Printf("Brick scale: %g\n", params.BrickScale)
	fmt.Printf("Voxels:      %d\n", set.VoxelCount)
	fmt.Printf("Bounds:      (%g, %g, %g) - (%g, %g, %g)\n", lo.X(), lo.Y(), lo.Z(), hi.X(), hi.Y(), hi.Z())
	return nil
}

func cmdDelete(ctx context.Context, cfg *config.Config) error {
	args, err := positional(1, "voxelize delete <name>")
	if err != nil {
		return err
	}

	store, err := openScene(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func cmdInspect(_ context.Context, cfg *config.Config) error {
	args, err := positional(1, "voxelize inspect <heightmap.png>")
	if err != nil {
		return err
	}
	path := args[0]

	ok, err := heightfield.IsPNG(path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", path, heightfield.ErrNotPNG)
	}

	hf, err := heightfield.Load(path)
	if err != nil {
		return err
	}
	maxGray := hf.MaxGray()

	grid := cfg.Grid()
	fmt.Printf("File:      %s\n", path)
	fmt.Printf("Size:      %dx%d\n", hf.Width, hf.Height)
	fmt.Printf("Max gray:  %d\n", maxGray)
	if maxGray == 0 {
		fmt.Println("Warning:   image is entirely black, no voxels would be generated")
	}
	if err := grid.Validate(); err != nil {
		fmt.Printf("Grid:      invalid (%v)\n", err)
		return nil
	}
	fmt.Printf("Grid:      %dx%d cells, %d slots, %.2f MB device buffer\n",
		grid.TerrainWidth, grid.TerrainHeight, grid.Slots(), float64(grid.BufferBytes())/(1024*1024))
	return nil
}
