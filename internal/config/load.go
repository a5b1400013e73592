package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Load for settings outside the terrain section
// that no command can run with. Terrain values are checked by
// voxel.GridConfig.Validate when a conversion starts.
var ErrInvalid = errors.New("invalid configuration")

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	cfg := Default()

	// Explicit path takes priority
	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	// Flag paths stay relative to the working directory
	applyFlags(cfg)

	cfg.Terrain.MaxHeight = ClampMaxHeight(cfg.Terrain.MaxHeight)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./voxelize.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Brickterrain")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Brickterrain")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "brickterrain")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "brickterrain")
	}
}

// loadFromFile merges a YAML file into cfg. Unknown keys are rejected, and
// relative heightmap and database paths set by the file are taken relative
// to the file's directory.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	heightmap, scenePath := cfg.Terrain.Heightmap, cfg.Scene.Path

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	dir := filepath.Dir(path)
	if cfg.Terrain.Heightmap != heightmap {
		cfg.Terrain.Heightmap = relativeTo(dir, cfg.Terrain.Heightmap)
	}
	if cfg.Scene.Path != scenePath && cfg.Scene.Path != ":memory:" {
		cfg.Scene.Path = relativeTo(dir, cfg.Scene.Path)
	}
	return nil
}

func relativeTo(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Scene.Driver) {
	case "", "sqlite":
	case "postgres":
		if c.Scene.DSN == "" {
			return fmt.Errorf("%w: scene driver postgres needs a dsn", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown scene driver %q", ErrInvalid, c.Scene.Driver)
	}
	if c.Compute.Workers < 0 {
		return fmt.Errorf("%w: compute workers must not be negative, got %d", ErrInvalid, c.Compute.Workers)
	}
	if c.Compute.MaxBufferMB < 0 {
		return fmt.Errorf("%w: compute max_buffer_mb must not be negative, got %d", ErrInvalid, c.Compute.MaxBufferMB)
	}
	return nil
}
