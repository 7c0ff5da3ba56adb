package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Server     ServerConfig     `yaml:"server"`
	Sync       SyncConfig       `yaml:"sync"`
	Cache      CacheConfig      `yaml:"cache"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	TTL      int    `yaml:"ttl_seconds"`
}

// ServerConfig describes the authoritative job API this agent syncs against.
type ServerConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type SyncConfig struct {
	MaxRetries     int     `yaml:"max_retries"`
	InitialDelay   string  `yaml:"initial_delay"`
	MaxDelay       string  `yaml:"max_delay"`
	BackoffFactor  float64 `yaml:"backoff_factor"`
	DrainInterval  string  `yaml:"drain_interval"`
	ProbeInterval  string  `yaml:"probe_interval"`
	RetentionHours int     `yaml:"retention_hours"`
	PruneInterval  string  `yaml:"prune_interval"`
}

type CacheConfig struct {
	ManifestPath string `yaml:"manifest_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; environment wins when present.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Server.BaseURL == "" {
		return errors.New("server base_url is required")
	}
	if c.Sync.MaxRetries < 0 {
		return errors.New("sync max_retries must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "fieldsync-agent"
	}
	if c.Server.TimeoutSeconds == 0 {
		c.Server.TimeoutSeconds = 15
	}
	if c.Server.RateLimitRPS == 0 {
		c.Server.RateLimitRPS = 10
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = 20
	}
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = 5
	}
	if c.Sync.InitialDelay == "" {
		c.Sync.InitialDelay = "2s"
	}
	if c.Sync.MaxDelay == "" {
		c.Sync.MaxDelay = "1m"
	}
	if c.Sync.BackoffFactor == 0 {
		c.Sync.BackoffFactor = 2
	}
	if c.Sync.DrainInterval == "" {
		c.Sync.DrainInterval = "5m"
	}
	if c.Sync.ProbeInterval == "" {
		c.Sync.ProbeInterval = "30s"
	}
	if c.Sync.RetentionHours == 0 {
		c.Sync.RetentionHours = 72
	}
	if c.Sync.PruneInterval == "" {
		c.Sync.PruneInterval = "1h"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 300
	}
	if c.Cache.ManifestPath == "" {
		c.Cache.ManifestPath = "data/cache_version"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

// Duration parses a duration field with a fallback when empty or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
