package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "127.0.0.1:7070", cfg.Listen.Address)
	assert.Equal(t, "euclidean", cfg.Defaults.Metric)
	assert.Equal(t, "none", cfg.Defaults.Quantization)
	assert.Equal(t, 16, cfg.Defaults.M)
	assert.Equal(t, 32, cfg.Defaults.MMax0)
	assert.Equal(t, 200, cfg.Defaults.EfConstruction)
	assert.Equal(t, 50, cfg.Defaults.EfSearch)
	assert.Equal(t, "default", cfg.Durability)
	assert.Equal(t, 5*time.Minute, cfg.Snapshot.Interval)
	assert.Equal(t, 0.25, cfg.Vacuum.TombstoneThreshold)
	assert.Equal(t, "standalone", cfg.Replication.Role)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_LoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
listen:
  address: "0.0.0.0:9090"
defaults:
  metric: cosine
  ef_search: 100
durability: strict
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.Listen.Address)
	assert.Equal(t, "cosine", cfg.Defaults.Metric)
	assert.Equal(t, 100, cfg.Defaults.EfSearch)
	assert.Equal(t, "strict", cfg.Durability)
	// unspecified fields keep their defaults
	assert.Equal(t, 16, cfg.Defaults.M)
}

func TestConfig_EnvOverridesTakePrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("durability: batch\n"), 0o644))

	t.Setenv("VECTORDBD_DURABILITY", "strict")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "strict", cfg.Durability)
}

func TestConfig_ValidateRejectsUnknownDurability(t *testing.T) {
	cfg := NewConfig()
	cfg.Durability = "whenever"
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsUnknownMetric(t *testing.T) {
	cfg := NewConfig()
	cfg.Defaults.Metric = "manhattan"
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsBinaryQuantizationWithLorentz(t *testing.T) {
	cfg := NewConfig()
	cfg.Defaults.Metric = "lorentz"
	cfg.Defaults.Quantization = "binary"
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRequiresUpstreamForFollower(t *testing.T) {
	cfg := NewConfig()
	cfg.Replication.Role = "follower"
	assert.Error(t, cfg.Validate())

	cfg.Replication.UpstreamAddr = "leader.internal:7070"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_WriteYAMLThenLoadRoundtrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := NewConfig()
	cfg.Listen.Address = "10.0.0.1:7070"
	require.NoError(t, cfg.WriteYAML(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:7070", reloaded.Listen.Address)
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "vectordbd", "config.yaml"), GetUserConfigPath())
}
