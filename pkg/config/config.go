package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full Ballast configuration. Values come from an
// optional YAML file overridden by BALLAST_* environment variables;
// the environment is the authority for credentials.
type Config struct {
	DataDir     string          `yaml:"data_dir"`
	BackupDir   string          `yaml:"backup_dir"`
	MetricsAddr string          `yaml:"metrics_addr"`
	Log         LogConfig       `yaml:"log"`
	Mirror      MirrorConfig    `yaml:"mirror"`
	Admission   AdmissionConfig `yaml:"admission"`
	Backup      BackupConfig    `yaml:"backup"`
}

// LogConfig controls logging output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MirrorConfig configures the remote tabular mirror
type MirrorConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"-"` // environment only, never from file
	Timeout     time.Duration `yaml:"timeout"`
	MinInterval time.Duration `yaml:"min_interval"`
	MaxRetries  int           `yaml:"max_retries"`
	BatchSize   int           `yaml:"batch_size"`
}

// AdmissionConfig holds rate-limit thresholds
type AdmissionConfig struct {
	CommandsPerMinute int                      `yaml:"commands_per_minute"`
	CommandsPerHour   int                      `yaml:"commands_per_hour"`
	ButtonsPerMinute  int                      `yaml:"buttons_per_minute"`
	BurstWindow       time.Duration            `yaml:"burst_window"`
	BurstLimit        int                      `yaml:"burst_limit"`
	Cooldowns         map[string]time.Duration `yaml:"cooldowns"`
}

// BackupConfig holds snapshot retention policy
type BackupConfig struct {
	Interval time.Duration `yaml:"interval"`
	Keep     int           `yaml:"keep"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// Default returns the configuration defaults
func Default() *Config {
	return &Config{
		DataDir:     "data",
		MetricsAddr: ":9090",
		Log: LogConfig{
			Level: "info",
		},
		Mirror: MirrorConfig{
			Timeout:     15 * time.Second,
			MinInterval: 1100 * time.Millisecond,
			MaxRetries:  5,
			BatchSize:   100,
		},
		Admission: AdmissionConfig{
			CommandsPerMinute: 10,
			CommandsPerHour:   100,
			ButtonsPerMinute:  5,
			BurstWindow:       2 * time.Second,
			BurstLimit:        3,
			Cooldowns: map[string]time.Duration{
				"start-event": 5 * time.Minute,
				"record-win":  time.Minute,
				"record-loss": time.Minute,
				"block":       30 * time.Second,
				"unblock":     30 * time.Second,
			},
		},
		Backup: BackupConfig{
			Interval: 6 * time.Hour,
			Keep:     30,
			MaxAge:   90 * 24 * time.Hour,
		},
	}
}

// Load builds a configuration from defaults, an optional YAML file, and
// environment overrides, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(cfg.DataDir, "backups")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BALLAST_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("BALLAST_BACKUP_DIR"); v != "" {
		c.BackupDir = v
	}
	if v := os.Getenv("BALLAST_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("BALLAST_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("BALLAST_LOG_JSON"); v != "" {
		c.Log.JSON = v == "true" || v == "1"
	}
	if v := os.Getenv("BALLAST_MIRROR_ENDPOINT"); v != "" {
		c.Mirror.Endpoint = v
		c.Mirror.Enabled = true
	}
	if v := os.Getenv("BALLAST_MIRROR_API_KEY"); v != "" {
		c.Mirror.APIKey = v
	}
	if v := os.Getenv("BALLAST_BACKUP_KEEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Backup.Keep = n
		}
	}
}

// Validate checks for fatal configuration errors. The process must not
// serve with a non-functional store, so a missing or unusable data
// directory fails startup loudly.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if c.Mirror.Enabled && c.Mirror.Endpoint == "" {
		return fmt.Errorf("config: mirror enabled but no endpoint configured")
	}
	if c.Admission.CommandsPerMinute <= 0 {
		return fmt.Errorf("config: admission.commands_per_minute must be positive")
	}
	if c.Admission.CommandsPerHour < c.Admission.CommandsPerMinute {
		return fmt.Errorf("config: admission.commands_per_hour must be >= commands_per_minute")
	}
	if c.Backup.Keep <= 0 {
		return fmt.Errorf("config: backup.keep must be positive")
	}
	return nil
}
