// Package config loads and validates the daemon's on-disk configuration,
// layering environment variable overrides on top of the YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the alertd daemon's top-level configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Email    EmailConfig    `yaml:"email"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the Control Server's HTTP bind addresses.
type ServerConfig struct {
	BindAddrs []string `yaml:"bind_addrs"`
	Disabled  bool     `yaml:"disabled"`
}

// DatabaseConfig configures the SQL Source Runner's connection.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// EmailConfig configures SMTP delivery for email-targeted alerts.
type EmailConfig struct {
	Addr     string `yaml:"addr"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AlertsConfig configures where definitions live and how they're scheduled.
type AlertsConfig struct {
	Dir           string   `yaml:"dir"`
	IntervalFloor Duration `yaml:"interval_floor"`
	DryRun        bool     `yaml:"dry_run"`
}

// Duration unmarshals from a YAML duration string (e.g. "30s") into a
// time.Duration; yaml.v3 has no built-in support for that conversion.
type Duration time.Duration

func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoggingConfig configures the daemon's structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, parses, applies environment overrides to, and validates the
// configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Alerts.Dir == "" {
		cfg.Alerts.Dir = "/etc/alertd/alerts.d"
	}
	if cfg.Alerts.IntervalFloor == 0 {
		cfg.Alerts.IntervalFloor = Duration(time.Minute)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if len(cfg.Server.BindAddrs) == 0 {
		cfg.Server.BindAddrs = []string{"[::1]:8271", "127.0.0.1:8271"}
	}
}

// loadFromEnv overlays a small set of environment variables on top of an
// already-parsed config, for the values operators most often want to
// override per-deployment without editing the file.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("ALERTD_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("ALERTD_EMAIL_ADDR"); v != "" {
		cfg.Email.Addr = v
	}
	if v := os.Getenv("ALERTD_EMAIL_USERNAME"); v != "" {
		cfg.Email.Username = v
	}
	if v := os.Getenv("ALERTD_EMAIL_PASSWORD"); v != "" {
		cfg.Email.Password = v
	}
	if v := os.Getenv("ALERTD_ALERTS_DIR"); v != "" {
		cfg.Alerts.Dir = v
	}
	if v := os.Getenv("ALERTD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ALERTD_BIND_ADDRS"); v != "" {
		cfg.Server.BindAddrs = strings.Split(v, ",")
	}
	if v := os.Getenv("ALERTD_DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing ALERTD_DRY_RUN: %w", err)
		}
		cfg.Alerts.DryRun = b
	}
	if v := os.Getenv("ALERTD_DISABLE_SERVER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing ALERTD_DISABLE_SERVER: %w", err)
		}
		cfg.Server.Disabled = b
	}
	return nil
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validate(cfg *Config) error {
	if cfg.Alerts.Dir == "" {
		return fmt.Errorf("alerts directory is required")
	}
	if cfg.Alerts.IntervalFloor <= 0 {
		return fmt.Errorf("alerts interval floor must be greater than 0")
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("unsupported log level: %q", cfg.Logging.Level)
	}
	if len(cfg.Server.BindAddrs) == 0 && !cfg.Server.Disabled {
		return fmt.Errorf("at least one server bind address is required unless the server is disabled")
	}
	return nil
}
