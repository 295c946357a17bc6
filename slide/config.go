package slide

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the pipeline configuration. Defaults match the tuned
// production values (zoom level 2, 320px tiles, batches of 32).
type Config struct {
	// ZoomLevel is the pyramid level tiles are extracted at.
	ZoomLevel int `yaml:"zoom_level"`

	// TileSize is the logical tile edge in pixels (tiles are square).
	TileSize int `yaml:"tile_size"`

	// TileOverlap is the number of pixels shared between adjacent tiles.
	TileOverlap int `yaml:"tile_overlap"`

	// BatchSize is the number of tiles per classifier call.
	BatchSize int `yaml:"batch_size"`

	// Workers bounds the tile-extraction worker pool. Zero means one
	// worker per CPU.
	Workers int `yaml:"workers"`

	Foreground DetectorParams   `yaml:"foreground"`
	Classifier ClassifierConfig `yaml:"classifier"`
}

// ClassifierConfig configures the remote classifier endpoint. An empty
// endpoint means the caller wires a Classifier in code instead.
type ClassifierConfig struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ZoomLevel:   2,
		TileSize:    320,
		TileOverlap: 0,
		BatchSize:   32,
		Workers:     0,
		Foreground:  DefaultDetectorParams(),
		Classifier: ClassifierConfig{
			TimeoutSeconds: 60,
		},
	}
}

// LoadConfig loads the pipeline configuration from a YAML file. Missing
// fields keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks field ranges that the pipeline depends on.
func (c *Config) Validate() error {
	if c.ZoomLevel < 0 {
		return fmt.Errorf("zoom_level must be >= 0, got %d", c.ZoomLevel)
	}
	if c.TileSize <= 0 {
		return fmt.Errorf("tile_size must be positive, got %d", c.TileSize)
	}
	if c.TileOverlap < 0 || c.TileOverlap >= c.TileSize {
		return fmt.Errorf("tile_overlap must be in [0, tile_size), got %d", c.TileOverlap)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if err := c.Foreground.Validate(); err != nil {
		return fmt.Errorf("foreground: %w", err)
	}
	return nil
}
