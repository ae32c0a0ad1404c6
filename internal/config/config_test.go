package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ifuryst/reelcast/internal/models"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, 3.0, cfg.Scheduler.DailyFrequency)
	require.Equal(t, "America/Los_Angeles", cfg.Scheduler.Timezone)
	require.Equal(t, 8, cfg.Scheduler.Hour())
	require.Equal(t, 10, cfg.Upload.MaxRetries)
	require.Equal(t, "24", cfg.Upload.CategoryID)
	require.Equal(t, models.PrivacyPrivate, cfg.Upload.PrivacyStatus)
	require.Equal(t, filepath.Join("mosaics", "file_upload_log.csv"), cfg.Queue.Path)
	require.Equal(t, 1, cfg.Queue.MaxUploadsPerRun)
	require.Equal(t, "sqlite", cfg.Database.Type)
}

func TestLoadConfig_ReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reelcast.yaml")
	body := `
scheduler:
  daily_frequency: 4
  timezone: Europe/Berlin
  anchor_hour: 0
queue:
  mosaics_dir: /data/mosaics
upload:
  privacy_status: unlisted
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, 4.0, cfg.Scheduler.DailyFrequency)
	require.Equal(t, "Europe/Berlin", cfg.Scheduler.Timezone)
	require.Equal(t, 0, cfg.Scheduler.Hour())
	require.Equal(t, filepath.Join("/data/mosaics", "file_upload_log.csv"), cfg.Queue.Path)
	require.Equal(t, "unlisted", cfg.Upload.PrivacyStatus)
}

func TestValidate_RejectsBadSettings(t *testing.T) {
	cases := map[string]func(*Config){
		"negative frequency": func(c *Config) { c.Scheduler.DailyFrequency = -1 },
		"unknown timezone":   func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" },
		"privacy":            func(c *Config) { c.Upload.PrivacyStatus = "secret" },
		"base delay":         func(c *Config) { c.Upload.BaseDelay = "soon" },
		"database":           func(c *Config) { c.Database.Type = "mysql" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), models.ErrConfiguration)
		})
	}
}
