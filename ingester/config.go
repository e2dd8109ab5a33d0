package ingester

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the full dsingest configuration.
type Config struct {
	Listen       string `yaml:"listen"`
	UploadsDir   string `yaml:"uploads_dir"`
	StorePath    string `yaml:"store_path"`
	EventsDBPath string `yaml:"events_db_path"`
	MaxFileMB    int    `yaml:"max_file_mb"`
	MaxBodyMB    int    `yaml:"max_body_mb"` // cap on a whole multipart request body
	StrictDecode bool   `yaml:"strict_decode"` // abort the whole batch when one image fails to decode
	LogLevel     string `yaml:"log_level"`     // debug | info | warn | error
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:       ":5000",
		UploadsDir:   "uploads",
		StorePath:    "datasets.json",
		EventsDBPath: "dsingest_events.db",
		MaxFileMB:    25,
		MaxBodyMB:    500,
		LogLevel:     "info",
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.UploadsDir == "" {
		return fmt.Errorf("uploads_dir is required")
	}
	if c.StorePath == "" {
		return fmt.Errorf("store_path is required")
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be > 0")
	}
	if c.MaxBodyMB < c.MaxFileMB {
		return fmt.Errorf("max_body_mb must be >= max_file_mb")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level %q (use debug, info, warn or error)", c.LogLevel)
	}
	return nil
}

// MaxFileBytes returns max file size in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }

// MaxBodyBytes returns the whole-request body cap in bytes.
func (c *Config) MaxBodyBytes() int64 { return int64(c.MaxBodyMB) * 1024 * 1024 }

// RawDir is where non-image uploads are stored verbatim.
func (c *Config) RawDir() string { return filepath.Join(c.UploadsDir, "tmp") }

// ProcessedDir is where transformed images are written.
func (c *Config) ProcessedDir() string { return filepath.Join(c.UploadsDir, "processed") }
