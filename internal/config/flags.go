package config

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// Flags is the command-line flag set shared by the voxelize subcommands.
var Flags *flag.FlagSet

var (
	flagConfig    *string
	flagDebug     *bool
	flagHeightmap *string
	flagScale     *float64
	flagDims      *dims
	flagWidth     *int
	flagHeight    *int
	flagMaxHeight *int
	flagOutput    *string
	flagDB        *string
	flagWorkers   *int
)

// ErrFlagAfterArgs is returned when a flag follows a positional argument.
var ErrFlagAfterArgs = errors.New("flags must come before positional arguments")

func init() {
	defineFlags()
}

// defineFlags registers every flag on a fresh, unparsed flag set.
func defineFlags() {
	Flags = flag.NewFlagSet("voxelize", flag.ContinueOnError)

	flagConfig = Flags.String("config", "", "Path to config file")
	flagDebug = Flags.Bool("debug", false, "Enable debug logging")
	flagHeightmap = Flags.String("heightmap", "", "Path to the PNG heightmap")
	flagScale = Flags.Float64("scale", 0, "Brick scale (voxel edge length)")
	Flags.Float64Var(flagScale, "s", 0, "Shorthand for -scale")
	flagDims = &dims{}
	Flags.Var(flagDims, "dims", "Terrain dimensions as WIDTHxHEIGHT")
	Flags.Var(flagDims, "d", "Shorthand for -dims")
	flagWidth = Flags.Int("width", 0, "Terrain width in cells")
	flagHeight = Flags.Int("height", 0, "Terrain height in cells")
	flagMaxHeight = Flags.Int("max-height", 0, "Maximum column height (0-256)")
	flagOutput = Flags.String("output", "", "Output instance set name")
	Flags.StringVar(flagOutput, "o", "", "Shorthand for -output")
	flagDB = Flags.String("db", "", "Scene database file")
	flagWorkers = Flags.Int("workers", 0, "Compute workers (0 = one per CPU)")
}

// dims parses WIDTHxHEIGHT.
type dims struct {
	width, height int
	set           bool
}

func (d *dims) String() string {
	if d == nil || !d.set {
		return ""
	}
	return fmt.Sprintf("%dx%d", d.width, d.height)
}

func (d *dims) Set(s string) error {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return fmt.Errorf("expected WIDTHxHEIGHT, got %q", s)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return fmt.Errorf("invalid width in %q: %w", s, err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return fmt.Errorf("invalid height in %q: %w", s, err)
	}
	d.width, d.height, d.set = width, height, true
	return nil
}

// ParseFlags parses command-line flags. Call this early in main() with the
// arguments that follow the subcommand. Flags after the first positional
// argument are rejected rather than silently treated as positionals.
func ParseFlags(args []string) error {
	if err := Flags.Parse(args); err != nil {
		return err
	}
	for _, arg := range Flags.Args() {
		if len(arg) > 1 && strings.HasPrefix(arg, "-") {
			return fmt.Errorf("%w: %s", ErrFlagAfterArgs, arg)
		}
	}
	return nil
}

// Args returns the positional arguments left after flag parsing.
func Args() []string {
	return Flags.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// setFlags returns the names of the flags given on the command line.
func setFlags() map[string]bool {
	set := make(map[string]bool)
	Flags.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// applyFlags applies CLI flag overrides to the config. Only flags that were
// given are applied, with their values as given.
func applyFlags(cfg *Config) {
	set := setFlags()

	if set["debug"] && *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if set["heightmap"] {
		cfg.Terrain.Heightmap = *flagHeightmap
	}
	if set["scale"] || set["s"] {
		cfg.Terrain.BrickScale = float32(*flagScale)
	}
	if set["dims"] || set["d"] {
		cfg.Terrain.Width = flagDims.width
		cfg.Terrain.Height = flagDims.height
	}
	if set["width"] {
		cfg.Terrain.Width = *flagWidth
	}
	if set["height"] {
		cfg.Terrain.Height = *flagHeight
	}
	if set["max-height"] {
		cfg.Terrain.MaxHeight = *flagMaxHeight
	}
	if set["output"] || set["o"] {
		cfg.Terrain.OutputName = *flagOutput
	}
	if set["db"] {
		cfg.Scene.Path = *flagDB
	}
	if set["workers"] {
		cfg.Compute.Workers = *flagWorkers
	}
}
