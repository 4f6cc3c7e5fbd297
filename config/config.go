// Package config provides configuration parsing for hostpulse.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the hostpulse configuration.
type Config struct {
	// Store holds sample persistence settings.
	Store StoreConfig `yaml:"store"`

	// Record holds collection loop settings.
	Record RecordConfig `yaml:"record"`

	// Log holds logging settings.
	Log LogConfig `yaml:"log"`
}

// StoreConfig holds sample persistence settings.
type StoreConfig struct {
	// Dir is the directory holding shard files.
	Dir string `yaml:"dir"`
	// ShardWindow is a duration string (e.g. "24h") bounding the time
	// span of one shard file.
	ShardWindow string `yaml:"shard_window"`
	// MaxShardMB rotates a shard early once it reaches this size in
	// megabytes. Zero disables size-based rotation.
	MaxShardMB int `yaml:"max_shard_mb"`
	// Compress enables zstd compression of stored frames.
	Compress bool `yaml:"compress"`
}

// RecordConfig holds collection loop settings.
type RecordConfig struct {
	// Interval is a duration string (e.g. "5s") between samples.
	Interval string `yaml:"interval"`
	// RetainAge is a duration string; shards older than this are
	// evicted. Empty keeps everything.
	RetainAge string `yaml:"retain_age"`
	// RetainSizeMB evicts oldest shards once the store exceeds this
	// size in megabytes. Zero keeps everything.
	RetainSizeMB int `yaml:"retain_size_mb"`
	// CgroupRoot is the cgroup-v2 mount to walk. Empty uses the
	// standard mount.
	CgroupRoot string `yaml:"cgroup_root"`
	// Collectors toggles individual collectors.
	Collectors CollectorToggles `yaml:"collectors"`
}

// CollectorToggles holds individual collector toggles.
type CollectorToggles struct {
	// System enables host-wide counter collection.
	System bool `yaml:"system"`
	// Process enables per-process counter collection.
	Process bool `yaml:"process"`
	// Cgroup enables cgroup hierarchy collection.
	Cgroup bool `yaml:"cgroup"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum level: "debug", "info", "warn", or "error".
	Level string `yaml:"level"`
	// File is the log output path; empty logs to stderr.
	File string `yaml:"file"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Store: StoreConfig{
			Dir:         filepath.Join(home, ".local", "share", "hostpulse", "store"),
			ShardWindow: "24h",
			MaxShardMB:  256,
			Compress:    true,
		},
		Record: RecordConfig{
			Interval:     "5s",
			RetainAge:    "168h",
			RetainSizeMB: 2048,
			CgroupRoot:   "",
			Collectors: CollectorToggles{
				System:  true,
				Process: true,
				Cgroup:  true,
			},
		},
		Log: LogConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadConfig loads configuration from a YAML file, merging with defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for required fields and logical consistency.
func (c *Config) Validate() error {
	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir is required")
	}
	if _, err := time.ParseDuration(c.Store.ShardWindow); err != nil {
		return fmt.Errorf("store.shard_window is not a duration: %q", c.Store.ShardWindow)
	}
	if c.Store.MaxShardMB < 0 {
		return fmt.Errorf("store.max_shard_mb must be non-negative, got %d", c.Store.MaxShardMB)
	}

	interval, err := time.ParseDuration(c.Record.Interval)
	if err != nil {
		return fmt.Errorf("record.interval is not a duration: %q", c.Record.Interval)
	}
	if interval < time.Second {
		return fmt.Errorf("record.interval must be at least 1s, got %q", c.Record.Interval)
	}
	if c.Record.RetainAge != "" {
		if _, err := time.ParseDuration(c.Record.RetainAge); err != nil {
			return fmt.Errorf("record.retain_age is not a duration: %q", c.Record.RetainAge)
		}
	}
	if c.Record.RetainSizeMB < 0 {
		return fmt.Errorf("record.retain_size_mb must be non-negative, got %d", c.Record.RetainSizeMB)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Log.Level)
	}

	return nil
}

// ShardWindowDuration returns the parsed shard window. Call Validate
// first; an unparseable value falls back to 24h.
func (c *StoreConfig) ShardWindowDuration() time.Duration {
	d, err := time.ParseDuration(c.ShardWindow)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// IntervalDuration returns the parsed collection interval. Call
// Validate first; an unparseable value falls back to 5s.
func (c *RecordConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// RetainAgeDuration returns the parsed retention age, zero when
// unset.
func (c *RecordConfig) RetainAgeDuration() time.Duration {
	if c.RetainAge == "" {
		return 0
	}
	d, err := time.ParseDuration(c.RetainAge)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// SaveConfig saves configuration to a YAML file.
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
