package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withXDGConfigHome(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", dir)
}

func TestBackupUserConfig_NoConfigExists(t *testing.T) {
	withXDGConfigHome(t, t.TempDir())

	backupPath, err := BackupUserConfig()
	require.NoError(t, err)
	assert.Empty(t, backupPath)
}

func TestBackupUserConfig_BacksUpExistingConfig(t *testing.T) {
	xdg := t.TempDir()
	withXDGConfigHome(t, xdg)

	configDir := filepath.Join(xdg, "vectordbd")
	configPath := filepath.Join(configDir, "config.yaml")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	content := "durability: strict\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	backupPath, err := BackupUserConfig()
	require.NoError(t, err)
	require.NotEmpty(t, backupPath)
	assert.True(t, filepath.IsAbs(backupPath))

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestListUserConfigBackups_NoneExist(t *testing.T) {
	xdg := t.TempDir()
	withXDGConfigHome(t, xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "vectordbd"), 0o755))

	backups, err := ListUserConfigBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestListUserConfigBackups_SortedNewestFirst(t *testing.T) {
	xdg := t.TempDir()
	withXDGConfigHome(t, xdg)
	configDir := filepath.Join(xdg, "vectordbd")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	for _, ts := range []string{"20260101-100000", "20260101-110000", "20260101-120000"} {
		path := filepath.Join(configDir, "config.yaml.bak."+ts)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	backups, err := ListUserConfigBackups()
	require.NoError(t, err)
	require.Len(t, backups, 3)

	for i := 1; i < len(backups); i++ {
		infoPrev, err := os.Stat(backups[i-1])
		require.NoError(t, err)
		infoCur, err := os.Stat(backups[i])
		require.NoError(t, err)
		assert.False(t, infoPrev.ModTime().Before(infoCur.ModTime()))
	}
}

func TestBackupUserConfig_CleansUpBeyondMaxBackups(t *testing.T) {
	xdg := t.TempDir()
	withXDGConfigHome(t, xdg)
	configDir := filepath.Join(xdg, "vectordbd")
	configPath := filepath.Join(configDir, "config.yaml")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(configPath, []byte("durability: strict\n"), 0o644))

	for i := 0; i < MaxBackups+1; i++ {
		_, err := BackupUserConfig()
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	backups, err := ListUserConfigBackups()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(backups), MaxBackups)
}

func TestRestoreUserConfig(t *testing.T) {
	xdg := t.TempDir()
	withXDGConfigHome(t, xdg)
	configDir := filepath.Join(xdg, "vectordbd")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	backupPath := filepath.Join(configDir, "config.yaml.bak.20260101-000000")
	require.NoError(t, os.WriteFile(backupPath, []byte("durability: strict\n"), 0o644))

	require.NoError(t, RestoreUserConfig(backupPath))

	data, err := os.ReadFile(GetUserConfigPath())
	require.NoError(t, err)
	assert.Equal(t, "durability: strict\n", string(data))
}

func TestWriteYAML_ThenReadBackContainsField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := NewConfig()
	cfg.Durability = "strict"
	require.NoError(t, cfg.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "durability: strict"))
}
