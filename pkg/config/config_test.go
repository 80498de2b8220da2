package config

import (
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies the library-level defaults. The target
// magnification default here is 20; the CLI applies its own default of 40.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Pipeline.TileSize != 256 {
		t.Errorf("Expected tile size 256, got %d", cfg.Pipeline.TileSize)
	}
	if cfg.Pipeline.Magnification != 20 {
		t.Errorf("Expected magnification 20, got %v", cfg.Pipeline.Magnification)
	}
	if cfg.Pipeline.Overlap != 0 {
		t.Errorf("Expected overlap 0, got %d", cfg.Pipeline.Overlap)
	}
	if cfg.Pipeline.TissueThreshold != 0.8 {
		t.Errorf("Expected tissue threshold 0.8, got %v", cfg.Pipeline.TissueThreshold)
	}
	if cfg.Pipeline.BlurThreshold != 0.015 {
		t.Errorf("Expected blur threshold 0.015, got %v", cfg.Pipeline.BlurThreshold)
	}
	if cfg.Workers < 1 {
		t.Errorf("Expected at least one worker, got %d", cfg.Workers)
	}
}

// TestLoadConfigMissingFile verifies defaults are returned when no config
// file exists
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got error: %v", err)
	}
	if cfg.Pipeline.TileSize != 256 {
		t.Errorf("Expected default tile size, got %d", cfg.Pipeline.TileSize)
	}
}

// TestSaveLoadRoundTrip verifies YAML persistence
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "histotile.yaml")

	cfg := DefaultConfig()
	cfg.Pipeline.Magnification = 40
	cfg.Pipeline.BlurThreshold = 0.02
	cfg.Workers = 3

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Pipeline.Magnification != 40 {
		t.Errorf("Expected magnification 40, got %v", loaded.Pipeline.Magnification)
	}
	if loaded.Pipeline.BlurThreshold != 0.02 {
		t.Errorf("Expected blur threshold 0.02, got %v", loaded.Pipeline.BlurThreshold)
	}
	if loaded.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", loaded.Workers)
	}
}
