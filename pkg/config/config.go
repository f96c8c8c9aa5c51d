package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration. Values come from the YAML
// file first, then CARAVEL_* environment variables override.
type Config struct {
	DataDir     string          `yaml:"data_dir"`
	RedisAddr   string          `yaml:"redis_addr"`
	MetricsAddr string          `yaml:"metrics_addr"`
	Log         LogConfig       `yaml:"log"`
	Worker      WorkerConfig    `yaml:"worker"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Terraform   TerraformConfig `yaml:"terraform"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// WorkerConfig sizes the worker pool.
type WorkerConfig struct {
	Count               int `yaml:"count"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	MaxConcurrent       int `yaml:"max_concurrent"`
}

// RateLimitConfig tunes the per-client token buckets.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size"`
}

// TerraformConfig locates executor working directories.
type TerraformConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir:     "/var/lib/caravel",
		MetricsAddr: ":9090",
		Log: LogConfig{
			Level: "info",
			JSON:  true,
		},
		Worker: WorkerConfig{
			Count:               1,
			PollIntervalSeconds: 2,
			MaxConcurrent:       5,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 300,
			BurstSize:         30,
		},
	}
}

// Load reads the YAML file at path (when non-empty) over the defaults
// and applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CARAVEL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CARAVEL_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("CARAVEL_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("CARAVEL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CARAVEL_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.Count = n
		}
	}
	if v := os.Getenv("CARAVEL_WORKER_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.PollIntervalSeconds = n
		}
	}
	if v := os.Getenv("CARAVEL_WORKER_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.MaxConcurrent = n
		}
	}
	if v := os.Getenv("CARAVEL_RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("CARAVEL_TERRAFORM_BASE_DIR"); v != "" {
		c.Terraform.BaseDir = v
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.Worker.Count < 0 {
		return fmt.Errorf("worker count must not be negative")
	}
	if c.Worker.PollIntervalSeconds <= 0 {
		return fmt.Errorf("worker poll interval must be positive")
	}
	if c.Worker.MaxConcurrent <= 0 {
		return fmt.Errorf("worker max_concurrent must be positive")
	}
	if c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.BurstSize <= 0 {
		return fmt.Errorf("rate limit values must be positive")
	}
	return nil
}

// PollInterval returns the worker poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Worker.PollIntervalSeconds) * time.Second
}
