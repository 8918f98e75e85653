package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all galfo configuration. Secrets (JWT, admin hash) come from
// the environment, never the file.
type Config struct {
	Port         string `yaml:"port"`
	DBPath       string `yaml:"db_path"`
	ObsDBPath    string `yaml:"obs_db_path"`
	CookieDomain string `yaml:"cookie_domain"`
	Secure       bool   `yaml:"secure"`

	BackOffice BackOfficeConfig `yaml:"back_office"`
	Slots      SlotsConfig      `yaml:"slots"`
	Retention  RetentionConfig  `yaml:"retention"`
}

// BackOfficeConfig describes the BO the gallery fetches media from.
type BackOfficeConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyMiB   int           `yaml:"max_body_mib"`
	Retries      int           `yaml:"retries"`
	AllowPrivate bool          `yaml:"allow_private"` // BO on a private network
}

// SlotsConfig controls the render slot registry.
type SlotsConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	MaxBlobs        int           `yaml:"max_blobs"`
}

// RetentionConfig controls observability cleanup.
type RetentionConfig struct {
	EventLogsDays int `yaml:"event_logs_days"`
	MetricsDays   int `yaml:"metrics_days"`
}

func (c *Config) defaults() {
	if c.Port == "" {
		c.Port = "8090"
	}
	if c.DBPath == "" {
		c.DBPath = "galfo.db"
	}
	if c.ObsDBPath == "" {
		c.ObsDBPath = "galfo-obs.db"
	}
	if c.BackOffice.Timeout <= 0 {
		c.BackOffice.Timeout = 30 * time.Second
	}
	if c.BackOffice.MaxBodyMiB <= 0 {
		c.BackOffice.MaxBodyMiB = 32
	}
	if c.BackOffice.Retries <= 0 {
		c.BackOffice.Retries = 2
	}
	if c.Slots.TTL <= 0 {
		c.Slots.TTL = 10 * time.Minute
	}
	if c.Slots.JanitorInterval <= 0 {
		c.Slots.JanitorInterval = time.Minute
	}
	if c.Slots.MaxBlobs <= 0 {
		c.Slots.MaxBlobs = 4096
	}
	if c.Retention.EventLogsDays <= 0 {
		c.Retention.EventLogsDays = 90
	}
	if c.Retention.MetricsDays <= 0 {
		c.Retention.MetricsDays = 30
	}
}

func (c *Config) validate() error {
	if c.BackOffice.URL == "" {
		return fmt.Errorf("config: back_office.url is required")
	}
	return nil
}

// loadConfig reads the YAML file when path is non-empty, applies defaults
// and validates.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.BackOffice.URL == "" {
		cfg.BackOffice.URL = os.Getenv("GALFO_BO_URL")
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
