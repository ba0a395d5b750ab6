// Package config loads vectordbd's configuration from defaults, a YAML
// file, and environment variables, in that order of increasing
// precedence, mirroring the teacher's config-loading pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete vectordbd configuration.
type Config struct {
	Version      int                `yaml:"version" json:"version"`
	DataDir      string             `yaml:"data_dir" json:"data_dir"`
	Listen       ListenConfig       `yaml:"listen" json:"listen"`
	Defaults     CollectionDefaults `yaml:"defaults" json:"defaults"`
	Durability   string             `yaml:"durability" json:"durability"`
	Snapshot     SnapshotConfig     `yaml:"snapshot" json:"snapshot"`
	Vacuum       VacuumConfig       `yaml:"vacuum" json:"vacuum"`
	Replication  ReplicationConfig  `yaml:"replication" json:"replication"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging"`
}

// ListenConfig configures the RPC bind address.
type ListenConfig struct {
	Address string `yaml:"address" json:"address"`
}

// CollectionDefaults are applied to a CreateCollectionRequest that omits
// them.
type CollectionDefaults struct {
	Metric         string `yaml:"metric" json:"metric"`
	Quantization   string `yaml:"quantization" json:"quantization"`
	M              int    `yaml:"m" json:"m"`
	MMax0          int    `yaml:"m_max0" json:"m_max0"`
	EfConstruction int    `yaml:"ef_construction" json:"ef_construction"`
	EfSearch       int    `yaml:"ef_search" json:"ef_search"`
	MaxOpenChunks  int    `yaml:"max_open_chunks" json:"max_open_chunks"`
}

// SnapshotConfig configures periodic snapshotting.
type SnapshotConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// VacuumConfig configures the background vacuum scheduler.
type VacuumConfig struct {
	TombstoneThreshold float64 `yaml:"tombstone_threshold" json:"tombstone_threshold"`
}

// ReplicationConfig configures this node's role in leader/follower
// replication (spec.md §4.E).
type ReplicationConfig struct {
	Role         string `yaml:"role" json:"role"` // "standalone", "leader", or "follower"
	UpstreamAddr string `yaml:"upstream_addr" json:"upstream_addr"`
	BucketFanout int    `yaml:"bucket_fanout" json:"bucket_fanout"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // "text" or "json"
	Path   string `yaml:"path" json:"path"`     // empty means stderr
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Listen:  ListenConfig{Address: "127.0.0.1:7070"},
		Defaults: CollectionDefaults{
			Metric:         "euclidean",
			Quantization:   "none",
			M:              16,
			MMax0:          32,
			EfConstruction: 200,
			EfSearch:       50,
			MaxOpenChunks:  64,
		},
		Durability: "default",
		Snapshot:   SnapshotConfig{Interval: 5 * time.Minute},
		Vacuum:     VacuumConfig{TombstoneThreshold: 0.25},
		Replication: ReplicationConfig{
			Role:         "standalone",
			BucketFanout: 16,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "vectordbd")
	}
	return filepath.Join(home, ".vectordbd")
}

// GetUserConfigPath returns the XDG-style path to the user configuration
// file: $XDG_CONFIG_HOME/vectordbd/config.yaml, or ~/.config/vectordbd/
// config.yaml if XDG_CONFIG_HOME is unset.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vectordbd", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "vectordbd", "config.yaml")
	}
	return filepath.Join(home, ".config", "vectordbd", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user config file.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user config file is present.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load applies configuration in order of increasing precedence:
//  1. hardcoded defaults
//  2. the user config file ($XDG_CONFIG_HOME/vectordbd/config.yaml)
//  3. an explicit --config file, if path is non-empty
//  4. VECTORDBD_* environment variables
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays every non-zero field of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	if other.Listen.Address != "" {
		c.Listen.Address = other.Listen.Address
	}
	if other.Defaults.Metric != "" {
		c.Defaults.Metric = other.Defaults.Metric
	}
	if other.Defaults.Quantization != "" {
		c.Defaults.Quantization = other.Defaults.Quantization
	}
	if other.Defaults.M != 0 {
		c.Defaults.M = other.Defaults.M
	}
	if other.Defaults.MMax0 != 0 {
		c.Defaults.MMax0 = other.Defaults.MMax0
	}
	if other.Defaults.EfConstruction != 0 {
		c.Defaults.EfConstruction = other.Defaults.EfConstruction
	}
	if other.Defaults.EfSearch != 0 {
		c.Defaults.EfSearch = other.Defaults.EfSearch
	}
	if other.Defaults.MaxOpenChunks != 0 {
		c.Defaults.MaxOpenChunks = other.Defaults.MaxOpenChunks
	}
	if other.Durability != "" {
		c.Durability = other.Durability
	}
	if other.Snapshot.Interval != 0 {
		c.Snapshot.Interval = other.Snapshot.Interval
	}
	if other.Vacuum.TombstoneThreshold != 0 {
		c.Vacuum.TombstoneThreshold = other.Vacuum.TombstoneThreshold
	}
	if other.Replication.Role != "" {
		c.Replication.Role = other.Replication.Role
	}
	if other.Replication.UpstreamAddr != "" {
		c.Replication.UpstreamAddr = other.Replication.UpstreamAddr
	}
	if other.Replication.BucketFanout != 0 {
		c.Replication.BucketFanout = other.Replication.BucketFanout
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Format != "" {
		c.Logging.Format = other.Logging.Format
	}
	if other.Logging.Path != "" {
		c.Logging.Path = other.Logging.Path
	}
}

// applyEnvOverrides applies VECTORDBD_* environment variable overrides,
// the highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VECTORDBD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("VECTORDBD_LISTEN_ADDRESS"); v != "" {
		c.Listen.Address = v
	}
	if v := os.Getenv("VECTORDBD_DURABILITY"); v != "" {
		c.Durability = v
	}
	if v := os.Getenv("VECTORDBD_DEFAULT_METRIC"); v != "" {
		c.Defaults.Metric = v
	}
	if v := os.Getenv("VECTORDBD_DEFAULT_QUANTIZATION"); v != "" {
		c.Defaults.Quantization = v
	}
	if v := os.Getenv("VECTORDBD_EF_SEARCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Defaults.EfSearch = n
		}
	}
	if v := os.Getenv("VECTORDBD_SNAPSHOT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Snapshot.Interval = d
		}
	}
	if v := os.Getenv("VECTORDBD_VACUUM_TOMBSTONE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.Vacuum.TombstoneThreshold = f
		}
	}
	if v := os.Getenv("VECTORDBD_REPLICATION_ROLE"); v != "" {
		c.Replication.Role = v
	}
	if v := os.Getenv("VECTORDBD_REPLICATION_UPSTREAM"); v != "" {
		c.Replication.UpstreamAddr = v
	}
	if v := os.Getenv("VECTORDBD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VECTORDBD_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate returns an error describing the first invalid field found.
func (c *Config) Validate() error {
	validDurability := map[string]bool{"strict": true, "default": true, "batch": true, "async": true}
	if !validDurability[strings.ToLower(c.Durability)] {
		return fmt.Errorf("durability must be one of strict|default|batch|async, got %q", c.Durability)
	}

	validMetric := map[string]bool{"euclidean": true, "cosine": true, "poincare": true, "lorentz": true}
	if !validMetric[strings.ToLower(c.Defaults.Metric)] {
		return fmt.Errorf("defaults.metric must be one of euclidean|cosine|poincare|lorentz, got %q", c.Defaults.Metric)
	}

	validQuant := map[string]bool{"none": true, "scalar_i8": true, "binary": true}
	if !validQuant[strings.ToLower(c.Defaults.Quantization)] {
		return fmt.Errorf("defaults.quantization must be one of none|scalar_i8|binary, got %q", c.Defaults.Quantization)
	}

	if c.Defaults.Metric == "lorentz" && c.Defaults.Quantization == "binary" {
		return fmt.Errorf("binary quantization is not supported with the lorentz metric")
	}

	validRole := map[string]bool{"standalone": true, "leader": true, "follower": true}
	if !validRole[strings.ToLower(c.Replication.Role)] {
		return fmt.Errorf("replication.role must be one of standalone|leader|follower, got %q", c.Replication.Role)
	}
	if c.Replication.Role == "follower" && c.Replication.UpstreamAddr == "" {
		return fmt.Errorf("replication.upstream_addr is required when replication.role is follower")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of debug|info|warn|error, got %q", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Vacuum.TombstoneThreshold < 0 || c.Vacuum.TombstoneThreshold > 1 {
		return fmt.Errorf("vacuum.tombstone_threshold must be between 0 and 1, got %f", c.Vacuum.TombstoneThreshold)
	}

	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
