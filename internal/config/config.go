package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Driver string `yaml:"driver"` // "sqlite" or "postgres"
		Path   string `yaml:"path"`   // sqlite file
		URL    string `yaml:"url"`    // postgres connection string
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	API struct {
		ListenAddr   string  `yaml:"listen_addr"`
		AdminKey     string  `yaml:"admin_key"`
		MaxRangeDays int     `yaml:"max_range_days"`
		RateLimit    float64 `yaml:"rate_limit"`
		RateBurst    int     `yaml:"rate_burst"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		AutoConfirm       bool `yaml:"auto_confirm"`
		MinAdvanceMinutes int  `yaml:"min_advance_minutes"`
		MaxAdvanceDays    int  `yaml:"max_advance_days"`
		TimeoutSeconds    int  `yaml:"timeout_seconds"`
	} `yaml:"booking"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			cfg.Database.Path = "data/slotbook.db"
		}
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	case "postgres":
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("unknown database.driver %q", cfg.Database.Driver)
	}

	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = ":8080"
	}

	return &cfg, nil
}

func (c *Config) BookingMinAdvance() time.Duration {
	if c.Booking.MinAdvanceMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Booking.MinAdvanceMinutes) * time.Minute
}

func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 0
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}

func (c *Config) BookingTimeout() time.Duration {
	if c.Booking.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Booking.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}
