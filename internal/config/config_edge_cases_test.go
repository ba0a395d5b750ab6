package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Listen.Address, cfg.Listen.Address)
}

func TestLoad_NonexistentExplicitPathErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_UnreadableConfigFileReturnsError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("test requires a non-root user")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("durability: strict"), 0o000))
	defer os.Chmod(path, 0o644)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ZeroValuesDoNotOverrideDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaults:\n  ef_search: 0\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Defaults.EfSearch, "zero in YAML should not override the default")
}

func TestLoad_InvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("durability: [this is not a string"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_EnvOverrideIgnoredWhenMalformed(t *testing.T) {
	t.Setenv("VECTORDBD_VACUUM_TOMBSTONE_THRESHOLD", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Vacuum.TombstoneThreshold)
}

func TestGetUserConfigPath_FallsBackToDotConfigWithoutXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "vectordbd", "config.yaml"), GetUserConfigPath())
}
