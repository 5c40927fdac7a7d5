// Package config provides configuration loading and management for triplanar.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"triplanar/internal/models"
	"triplanar/pkg/colormap"
	"triplanar/pkg/logging"
)

// Config represents the application configuration
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores the parallel kernels use
		NumCores int `yaml:"numCores" toml:"num_cores"`
	} `yaml:"processing" toml:"processing"`

	// Viewer display parameters
	Viewer struct {
		// Colormap is the base colormap name
		Colormap string `yaml:"colormap" toml:"colormap"`

		// OverlayAlpha is the overlay transparency in [0,1]
		OverlayAlpha float64 `yaml:"overlayAlpha" toml:"overlay_alpha"`

		// OverlayThreshold is relative to the overlay maximum, in [0,1]
		OverlayThreshold float64 `yaml:"overlayThreshold" toml:"overlay_threshold"`

		// Crosshairs controls whether crosshair lines are drawn
		Crosshairs bool `yaml:"crosshairs" toml:"crosshairs"`

		// SmoothScaling selects bilinear instead of nearest neighbour stretch
		SmoothScaling bool `yaml:"smoothScaling" toml:"smooth_scaling"`
	} `yaml:"viewer" toml:"viewer"`

	// Region growing defaults
	ROI struct {
		// RadiusMm is the default sphere radius in mm
		RadiusMm float64 `yaml:"radiusMm" toml:"radius_mm"`

		// Difference is the default absolute intensity tolerance
		Difference float64 `yaml:"difference" toml:"difference"`

		// Type is written to the sidecar Type field
		Type string `yaml:"type" toml:"type"`
	} `yaml:"roi" toml:"roi"`

	// Output parameters
	Output struct {
		// Dir is where snapshots are exported
		Dir string `yaml:"dir" toml:"dir"`

		// ThumbnailWidth enables a thumbnail per snapshot when > 0
		ThumbnailWidth int `yaml:"thumbnailWidth" toml:"thumbnail_width"`

		// Format is png or jpeg
		Format string `yaml:"format" toml:"format"`
	} `yaml:"output" toml:"output"`

	Log logging.LogConfig `yaml:"log" toml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Viewer.Colormap = "gray"
	cfg.Viewer.OverlayAlpha = 0.7
	cfg.Viewer.OverlayThreshold = 0.1
	cfg.Viewer.Crosshairs = true
	cfg.Viewer.SmoothScaling = true

	cfg.ROI.RadiusMm = 32
	cfg.ROI.Difference = 0.16
	cfg.ROI.Type = "ROI"

	cfg.Output.Dir = "snapshots"
	cfg.Output.Format = "png"

	cfg.Log.MaxSize = 10
	cfg.Log.MaxAge = 30
	cfg.Log.MaxBackups = 5

	return cfg
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return &models.ConfigError{Param: "processing.numCores", Value: fmt.Sprint(c.Processing.NumCores), Reason: "must be at least 1"}
	}
	if !colormap.Known(c.Viewer.Colormap) {
		return &models.ConfigError{Param: "viewer.colormap", Value: c.Viewer.Colormap, Reason: "unknown colormap"}
	}
	if c.Viewer.OverlayAlpha < 0 || c.Viewer.OverlayAlpha > 1 {
		return &models.ConfigError{Param: "viewer.overlayAlpha", Value: fmt.Sprint(c.Viewer.OverlayAlpha), Reason: "must be in [0,1]"}
	}
	if c.Viewer.OverlayThreshold < 0 || c.Viewer.OverlayThreshold > 1 {
		return &models.ConfigError{Param: "viewer.overlayThreshold", Value: fmt.Sprint(c.Viewer.OverlayThreshold), Reason: "must be in [0,1]"}
	}
	if c.ROI.RadiusMm < 0 {
		return &models.ConfigError{Param: "roi.radiusMm", Value: fmt.Sprint(c.ROI.RadiusMm), Reason: "must not be negative"}
	}
	if c.ROI.Difference < 0 {
		return &models.ConfigError{Param: "roi.difference", Value: fmt.Sprint(c.ROI.Difference), Reason: "must not be negative"}
	}
	switch c.Output.Format {
	case "png", "jpeg", "jpg":
	default:
		return &models.ConfigError{Param: "output.format", Value: c.Output.Format, Reason: "must be png or jpeg"}
	}
	return nil
}

// LoadConfig loads configuration from a YAML or TOML file.
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

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	defer f.Close()

	if isTOML(configPath) {
		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		return nil
	}

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	return enc.Close()
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
