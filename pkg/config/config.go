// Package config provides configuration loading and management for
// histotile. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Pipeline parameters shared by all slides of a run
	Pipeline struct {
		// TileSize is the edge size of saved tiles in pixels
		TileSize int `yaml:"tileSize"`

		// Magnification is the target magnification tiles are extracted at.
		// The library default is 20; the CLI overrides it with its own
		// default of 40.
		Magnification float64 `yaml:"magnification"`

		// Overlap is the inverse-density stride divisor (0 = no overlap)
		Overlap int `yaml:"overlap"`

		// TissueThreshold is the minimum tissue coverage in [0,1] for a
		// candidate window to become a tile
		TissueThreshold float64 `yaml:"tissueThreshold"`

		// BlurThreshold is the Laplacian-variance threshold separating
		// in-focus from blurry tiles
		BlurThreshold float64 `yaml:"blurThreshold"`

		// MaskDownsample is the ratio of native pixels per tissue-mask pixel
		MaskDownsample int `yaml:"maskDownsample"`
	} `yaml:"pipeline"`

	// Slide parameters for the built-in flat-image reader
	Slide struct {
		// Magnification is the native magnification assumed for plain
		// raster files, which carry no scanner metadata
		Magnification float64 `yaml:"magnification"`

		// Scale relates the storage resolution to the reference resolution
		Scale float64 `yaml:"scale"`
	} `yaml:"slide"`

	// Workers is the number of slides processed in parallel
	Workers int `yaml:"workers"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Pipeline.TileSize = 256
	cfg.Pipeline.Magnification = 20
	cfg.Pipeline.Overlap = 0
	cfg.Pipeline.TissueThreshold = 0.8
	cfg.Pipeline.BlurThreshold = 0.015
	cfg.Pipeline.MaskDownsample = 32

	cfg.Slide.Magnification = 40
	cfg.Slide.Scale = 1.0

	cfg.Workers = runtime.NumCPU()

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
