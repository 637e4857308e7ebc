package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Pacing   PacingConfig   `yaml:"pacing"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	DKIM     DKIMConfig     `yaml:"dkim"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// BaseURL is the externally reachable URL used to build tracking links.
	BaseURL string `yaml:"base_url"`
}

// DatabaseConfig contains SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DispatchConfig contains background worker settings
type DispatchConfig struct {
	// QueuePath is the bbolt file holding scheduled dispatch entries.
	QueuePath    string        `yaml:"queue_path"`
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	SendTimeout  time.Duration `yaml:"send_timeout"`
}

// PacingConfig controls how a dispatch run is spread over time. The
// defaults reproduce the historical policy: a ~25 emails/hour baseline
// widened into a 2-3 hour window.
type PacingConfig struct {
	EmailsPerHour  float64 `yaml:"emails_per_hour"`
	MinWindowHours float64 `yaml:"min_window_hours"`
	MaxWindowHours float64 `yaml:"max_window_hours"`
}

// SMTPConfig contains the mail submission relay settings
type SMTPConfig struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	SSL       bool          `yaml:"ssl"` // implicit TLS (port 465) instead of STARTTLS
	FromEmail string        `yaml:"from_email"`
	FromName  string        `yaml:"from_name"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DKIMConfig contains DKIM signing settings for outgoing mail
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// AuthConfig contains API authentication settings
type AuthConfig struct {
	// Enabled requires an API key on /api/v1 routes. Tracking endpoints
	// are always public.
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			BaseURL:    "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Path: "/var/lib/outflow/outflow.db",
		},
		Dispatch: DispatchConfig{
			QueuePath:    "/var/lib/outflow/schedule.db",
			Workers:      4,
			PollInterval: 5 * time.Second,
			SendTimeout:  30 * time.Second,
		},
		Pacing: PacingConfig{
			EmailsPerHour:  25,
			MinWindowHours: 2,
			MaxWindowHours: 3,
		},
		SMTP: SMTPConfig{
			Host:    "localhost",
			Port:    587,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
		},
	}
}

// Load reads configuration from a YAML file, applying defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Dispatch.QueuePath == "" {
		return fmt.Errorf("dispatch.queue_path is required")
	}
	if c.Dispatch.Workers <= 0 {
		return fmt.Errorf("dispatch.workers must be positive")
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port must be between 1 and 65535")
	}
	if c.SMTP.FromEmail == "" {
		return fmt.Errorf("smtp.from_email is required")
	}
	if c.Pacing.EmailsPerHour <= 0 {
		return fmt.Errorf("pacing.emails_per_hour must be positive")
	}
	if c.Pacing.MinWindowHours <= 0 || c.Pacing.MaxWindowHours < c.Pacing.MinWindowHours {
		return fmt.Errorf("pacing window bounds are invalid")
	}
	if c.DKIM.Enabled {
		if c.DKIM.Domain == "" || c.DKIM.Selector == "" || c.DKIM.KeyFile == "" {
			return fmt.Errorf("dkim requires domain, selector and key_file")
		}
	}
	return nil
}
