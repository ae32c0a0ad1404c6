package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ifuryst/reelcast/internal/models"
	"github.com/ifuryst/reelcast/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Quota     QuotaConfig     `yaml:"quota"`
	Queue     QueueConfig     `yaml:"queue"`
	Upload    UploadConfig    `yaml:"upload"`
	YouTube   YouTubeConfig   `yaml:"youtube"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// TOTPSecret enables one-time-code protection of the run trigger.
	TOTPSecret string `yaml:"totp_secret"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Type     string `yaml:"type"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

// SchedulerConfig drives both publish slot computation and the periodic runner.
type SchedulerConfig struct {
	DailyFrequency float64 `yaml:"daily_frequency"`
	Timezone       string  `yaml:"timezone"`
	AnchorHour     *int    `yaml:"anchor_hour"`
	Enabled        bool    `yaml:"enabled"`
	RunInterval    string  `yaml:"run_interval"`
}

type QuotaConfig struct {
	CostsFile   string `yaml:"costs_file"`
	LogFile     string `yaml:"log_file"`
	DailyBudget int    `yaml:"daily_budget"`
}

type QueueConfig struct {
	Path             string `yaml:"path"`
	MosaicsDir       string `yaml:"mosaics_dir"`
	ArchiveDir       string `yaml:"archive_dir"`
	UnmatchedDir     string `yaml:"unmatched_dir"`
	CompletedDir     string `yaml:"completed_dir"`
	ArchivedCSVDir   string `yaml:"archived_csv_dir"`
	Prepare          bool   `yaml:"prepare"`
	Watch            bool   `yaml:"watch"`
	MaxUploadsPerRun int    `yaml:"max_uploads_per_run"`
}

type UploadConfig struct {
	MaxRetries    int    `yaml:"max_retries"`
	BaseDelay     string `yaml:"base_delay"`
	CategoryID    string `yaml:"category_id"`
	PrivacyStatus string `yaml:"privacy_status"`
	ChunkSizeMB   int    `yaml:"chunk_size_mb"`
	CompletedDir  string `yaml:"completed_dir"`
}

type YouTubeConfig struct {
	ClientSecretFile string `yaml:"client_secret_file"`
	TokenCacheFile   string `yaml:"token_cache_file"`
	ChannelID        string `yaml:"channel_id"`
	MaxScanItems     int64  `yaml:"max_scan_items"`
}

// LoadConfig reads configPath with environment interpolation and applies
// defaults. A missing file yields the defaults alone.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := yamlenv.LoadConfig[Config](configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5335
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "reelcast.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.TimeZone == "" {
		c.Database.TimeZone = "UTC"
	}

	if c.Scheduler.DailyFrequency == 0 {
		c.Scheduler.DailyFrequency = 3
	}
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "America/Los_Angeles"
	}
	if c.Scheduler.AnchorHour == nil {
		hour := 8
		c.Scheduler.AnchorHour = &hour
	}
	if c.Scheduler.RunInterval == "" {
		c.Scheduler.RunInterval = "8h"
	}

	if c.Quota.LogFile == "" {
		c.Quota.LogFile = "quota_usage_log.csv"
	}
	if c.Quota.CostsFile == "" {
		c.Quota.CostsFile = "quota_costs.json"
	}
	if c.Quota.DailyBudget == 0 {
		c.Quota.DailyBudget = 10000
	}

	if c.Queue.MosaicsDir == "" {
		c.Queue.MosaicsDir = "mosaics"
	}
	if c.Queue.Path == "" {
		c.Queue.Path = filepath.Join(c.Queue.MosaicsDir, "file_upload_log.csv")
	}
	if c.Queue.ArchiveDir == "" {
		c.Queue.ArchiveDir = "archive"
	}
	if c.Queue.UnmatchedDir == "" {
		c.Queue.UnmatchedDir = filepath.Join(c.Queue.MosaicsDir, "unmatched_mosaics")
	}
	if c.Queue.CompletedDir == "" {
		c.Queue.CompletedDir = filepath.Join(c.Queue.MosaicsDir, "completed")
	}
	if c.Queue.ArchivedCSVDir == "" {
		c.Queue.ArchivedCSVDir = filepath.Join(c.Queue.MosaicsDir, "archived_csv")
	}
	if c.Queue.MaxUploadsPerRun == 0 {
		c.Queue.MaxUploadsPerRun = 1
	}

	if c.Upload.MaxRetries == 0 {
		c.Upload.MaxRetries = 10
	}
	if c.Upload.BaseDelay == "" {
		c.Upload.BaseDelay = "1s"
	}
	if c.Upload.CategoryID == "" {
		c.Upload.CategoryID = "24"
	}
	if c.Upload.PrivacyStatus == "" {
		c.Upload.PrivacyStatus = models.PrivacyPrivate
	}
	if c.Upload.ChunkSizeMB == 0 {
		c.Upload.ChunkSizeMB = 8
	}

	if c.YouTube.ClientSecretFile == "" {
		c.YouTube.ClientSecretFile = "client_secrets.json"
	}
	if c.YouTube.TokenCacheFile == "" {
		c.YouTube.TokenCacheFile = "reelcast-oauth2.json"
	}
	if c.YouTube.MaxScanItems == 0 {
		c.YouTube.MaxScanItems = 50
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	f := c.Scheduler.DailyFrequency
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: scheduler.daily_frequency must be positive, got %v", models.ErrConfiguration, f)
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return err
	}
	if h := c.Scheduler.Hour(); h < 0 || h > 23 {
		return fmt.Errorf("%w: scheduler.anchor_hour must be within 0-23, got %d", models.ErrConfiguration, h)
	}
	if _, err := time.ParseDuration(c.Scheduler.RunInterval); err != nil {
		return fmt.Errorf("%w: scheduler.run_interval: %v", models.ErrConfiguration, err)
	}
	if c.Upload.MaxRetries < 0 {
		return fmt.Errorf("%w: upload.max_retries must not be negative", models.ErrConfiguration)
	}
	if _, err := c.Upload.Delay(); err != nil {
		return err
	}
	if !models.ValidPrivacyStatus(c.Upload.PrivacyStatus) {
		return fmt.Errorf("%w: upload.privacy_status must be public, private or unlisted, got %q", models.ErrConfiguration, c.Upload.PrivacyStatus)
	}
	if c.Queue.MaxUploadsPerRun < 0 {
		return fmt.Errorf("%w: queue.max_uploads_per_run must not be negative", models.ErrConfiguration)
	}
	if c.Quota.DailyBudget < 0 {
		return fmt.Errorf("%w: quota.daily_budget must not be negative", models.ErrConfiguration)
	}
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unsupported database type %q", models.ErrConfiguration, c.Database.Type)
	}
	return nil
}

// Location resolves the reference timezone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: scheduler.timezone %q: %v", models.ErrConfiguration, s.Timezone, err)
	}
	return loc, nil
}

// Hour returns the anchor hour used when nothing is scheduled.
func (s SchedulerConfig) Hour() int {
	if s.AnchorHour == nil {
		return 8
	}
	return *s.AnchorHour
}

// Delay parses the retry base delay.
func (u UploadConfig) Delay() (time.Duration, error) {
	d, err := time.ParseDuration(u.BaseDelay)
	if err != nil {
		return 0, fmt.Errorf("%w: upload.base_delay: %v", models.ErrConfiguration, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: upload.base_delay must be positive", models.ErrConfiguration)
	}
	return d, nil
}
