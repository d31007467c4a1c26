package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate when a field is left empty.
const (
	DefaultTimeout   = 15 * time.Second
	DefaultNamespace = "default"
	DefaultDriver    = "memory"
	DefaultLogLevel  = "info"
)

// Config is the sitesync.yml configuration. Every field can be overridden
// from the environment, e.g. SITESYNC_API_BASE_URL.
type Config struct {
	API         APIConfig         `yaml:"api" envPrefix:"SITESYNC_API_"`
	Realtime    RealtimeConfig    `yaml:"realtime" envPrefix:"SITESYNC_REALTIME_"`
	Persistence PersistenceConfig `yaml:"persistence" envPrefix:"SITESYNC_PERSISTENCE_"`
	Log         LogConfig         `yaml:"log" envPrefix:"SITESYNC_LOG_"`
	Metrics     MetricsConfig     `yaml:"metrics" envPrefix:"SITESYNC_METRICS_"`
}

// APIConfig points at the remote API.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout,omitempty" env:"TIMEOUT"`
	// Token is never read from the file.
	Token string `yaml:"-" env:"TOKEN"`
}

// RealtimeConfig selects the Redis Pub/Sub server. An empty RedisURL
// disables realtime.
type RealtimeConfig struct {
	RedisURL  string `yaml:"redis_url,omitempty" env:"REDIS_URL"`
	Namespace string `yaml:"namespace,omitempty" env:"NAMESPACE"`
}

// PersistenceConfig selects the local store: memory, redis or sqlite.
type PersistenceConfig struct {
	Driver   string `yaml:"driver,omitempty" env:"DRIVER"`
	Path     string `yaml:"path,omitempty" env:"PATH"`
	RedisURL string `yaml:"redis_url,omitempty" env:"REDIS_URL"`
}

// LogConfig sets the minimum log level.
type LogConfig struct {
	Level string `yaml:"level,omitempty" env:"LEVEL"`
}

// MetricsConfig enables the Prometheus endpoint on Addr.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty" env:"ENABLED"`
	Addr    string `yaml:"addr,omitempty" env:"ADDR"`
}

// Validate applies defaults and performs strict validation
func (c *Config) Validate() error {
	// Required: api.base_url
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}

	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultTimeout
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}

	if c.Realtime.Namespace == "" {
		c.Realtime.Namespace = DefaultNamespace
	}

	if c.Persistence.Driver == "" {
		c.Persistence.Driver = DefaultDriver
	}
	switch c.Persistence.Driver {
	case "memory":
	case "sqlite":
		if c.Persistence.Path == "" {
			return fmt.Errorf("persistence.path is required for the sqlite driver")
		}
	case "redis":
		if c.Persistence.RedisURL == "" {
			c.Persistence.RedisURL = c.Realtime.RedisURL
		}
		if c.Persistence.RedisURL == "" {
			return fmt.Errorf("persistence.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("invalid persistence.driver: %s (must be 'memory', 'redis', or 'sqlite')", c.Persistence.Driver)
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log.level: %s (must be 'debug', 'info', 'warn', or 'error')", l.Level)
	}
	return level, nil
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}
