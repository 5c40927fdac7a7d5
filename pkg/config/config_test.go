package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"triplanar/internal/models"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Viewer.Colormap != "gray" {
		t.Errorf("Expected default colormap gray, got %q", cfg.Viewer.Colormap)
	}
	if cfg.ROI.RadiusMm != 32 {
		t.Errorf("Expected default radius 32, got %f", cfg.ROI.RadiusMm)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := DefaultConfig()
			cfg.Viewer.Colormap = "viridis"
			cfg.ROI.Difference = 0.25
			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig: %v", err)
			}
			loaded, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			if loaded.Viewer.Colormap != "viridis" {
				t.Errorf("Expected viridis, got %q", loaded.Viewer.Colormap)
			}
			if loaded.ROI.Difference != 0.25 {
				t.Errorf("Expected difference 0.25, got %f", loaded.ROI.Difference)
			}
		})
	}
}

func TestLoadRejectsUnknownColormap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("viewer:\n  colormap: rainbow-unicorn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfig(path)
	var cerr *models.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
	if cerr.Param != "viewer.colormap" {
		t.Errorf("Expected param viewer.colormap, got %q", cerr.Param)
	}
}
