package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Admission.CommandsPerMinute)
	assert.Equal(t, 100, cfg.Admission.CommandsPerHour)
	assert.Equal(t, 5*time.Minute, cfg.Admission.Cooldowns["start-event"])
	assert.Equal(t, 6*time.Hour, cfg.Backup.Interval)
	assert.Equal(t, 1100*time.Millisecond, cfg.Mirror.MinInterval)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "backups"), cfg.BackupDir)
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ballast.yaml")
	content := `
data_dir: /srv/guildops
log:
  level: debug
mirror:
  enabled: true
  endpoint: https://mirror.example.com
backup:
  keep: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/guildops", cfg.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Mirror.Enabled)
	assert.Equal(t, 5, cfg.Backup.Keep)

	// Untouched values keep their defaults
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, 10, cfg.Admission.CommandsPerMinute)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ballast.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /from/file\n"), 0644))

	t.Setenv("BALLAST_DATA_DIR", "/from/env")
	t.Setenv("BALLAST_MIRROR_ENDPOINT", "https://env.example.com")
	t.Setenv("BALLAST_MIRROR_API_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.DataDir)
	assert.True(t, cfg.Mirror.Enabled, "setting the endpoint enables the mirror")
	assert.Equal(t, "secret", cfg.Mirror.APIKey)
}

func TestAPIKeyNeverReadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ballast.yaml")
	content := `
mirror:
  enabled: true
  endpoint: https://mirror.example.com
  apikey: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Mirror.APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"mirror without endpoint", func(c *Config) { c.Mirror.Enabled = true; c.Mirror.Endpoint = "" }},
		{"zero minute budget", func(c *Config) { c.Admission.CommandsPerMinute = 0 }},
		{"hour below minute", func(c *Config) { c.Admission.CommandsPerHour = 5 }},
		{"zero backup keep", func(c *Config) { c.Backup.Keep = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
