// Package config holds the process configuration read from YAML at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Main is the top level configuration.
type Main struct {
	// Listen is the address the firewall accepts client connections on.
	Listen string `yaml:"listen"`

	// Upstream is the base URL admitted requests are proxied to.
	Upstream string `yaml:"upstream"`

	// MaxConnections caps concurrently open client connections. Zero means no cap.
	MaxConnections int `yaml:"max_connections"`

	// ExemptLocal keeps loopback and private peers instead of treating them as unknown.
	ExemptLocal bool `yaml:"exempt_local"`

	// DatasetPath is a signature dataset file. Empty selects the built in dataset.
	DatasetPath string `yaml:"dataset_path"`

	Evidence Evidence `yaml:"evidence"`
	Log      Log      `yaml:"log"`
	Metrics  Metrics  `yaml:"metrics"`
}

// Evidence configures where rejected requests are recorded.
type Evidence struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`

	// LockTimeout bounds waiting for a locked database.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// WriteTimeout bounds how long a rejected request waits for its evidence write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PruneInterval runs a standalone prune on this period. Zero leaves pruning to inserts.
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// Log configures the process and results logs.
type Log struct {
	Level string `yaml:"level"`

	// File receives the process log as JSON. Empty logs to stderr.
	File string `yaml:"file"`

	// ResultsDir receives the results log. Empty sends results to the process log.
	ResultsDir string `yaml:"results_dir"`

	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	// Listen is the address serving /metrics. Empty disables it.
	Listen string `yaml:"listen"`
}

// FileSystem is the interface used to read config files.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
}

// FileSystemImpl reads config files from the local disk.
type FileSystemImpl struct{}

// ReadFile reads the whole named file.
func (fs *FileSystemImpl) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// Default returns the configuration used when no file is given.
func Default() Main {
	return Main{
		Listen:   ":8080",
		Upstream: "http://127.0.0.1:8081",
		Evidence: Evidence{
			Driver:        "sqlite",
			Path:          "data/firewall.db",
			LockTimeout:   10 * time.Second,
			WriteTimeout:  2 * time.Second,
			PruneInterval: time.Hour,
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the YAML file at path over Default. An empty path returns Default unchanged.
func Load(fs FileSystem, path string) (c Main, err error) {
	c = Default()
	if path == "" {
		return
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read config %v: %w", path, err)
		return
	}

	if err = yaml.Unmarshal(data, &c); err != nil {
		err = fmt.Errorf("failed to parse config %v: %w", path, err)
		return
	}

	if err = c.Validate(); err != nil {
		err = fmt.Errorf("invalid config %v: %w", path, err)
	}
	return
}

// Validate reports the first setting that cannot work.
func (c *Main) Validate() error {
	switch {
	case c.Listen == "":
		return errors.New("listen address is required")
	case c.Upstream == "":
		return errors.New("upstream is required")
	case c.MaxConnections < 0:
		return errors.New("max_connections must not be negative")
	case c.Evidence.WriteTimeout < 0 || c.Evidence.LockTimeout < 0 || c.Evidence.PruneInterval < 0:
		return errors.New("evidence durations must not be negative")
	}
	return nil
}
