package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds shared runtime configuration for the dispatcher and worker
// services. It is loaded once at startup and immutable afterwards.
type Config struct {
	Env         string `yaml:"env"`
	HTTPPort    string `yaml:"http_port"`
	MetricsAddr string `yaml:"metrics_addr"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SuspectAfter      time.Duration `yaml:"suspect_after"`
	DeadAfter         time.Duration `yaml:"dead_after"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`

	MaxAttempts     int `yaml:"max_attempts"`
	DefaultCapacity int `yaml:"default_capacity"`

	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`

	RateLimitCapacity int     `yaml:"rate_limit_capacity"`
	RateLimitRefill   float64 `yaml:"rate_limit_refill_per_sec"`

	// Worker-side options.
	ServerURL      string `yaml:"server_url"`
	WorkerID       string `yaml:"worker_id"`
	WorkerCapacity int    `yaml:"worker_capacity"`
}

// Load reads configuration with sane local-development defaults, applies an
// optional YAML file (CONFIG_FILE env or the path argument), then overlays
// environment variables. The result is validated before being returned.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Env:               "dev",
		HTTPPort:          "8080",
		MetricsAddr:       ":9090",
		RedisAddr:         "localhost:6379",
		HeartbeatInterval: 2 * time.Second,
		SuspectAfter:      6 * time.Second,
		DeadAfter:         30 * time.Second,
		VisibilityTimeout: 30 * time.Second,
		SweepInterval:     time.Second,
		MaxAttempts:       5,
		DefaultCapacity:   4,
		BackoffInitial:    2 * time.Second,
		BackoffMax:        5 * time.Minute,
		RateLimitCapacity: 50,
		RateLimitRefill:   20,
		ServerURL:         "http://localhost:8080",
		WorkerCapacity:    4,
	}
}

func applyEnv(cfg *Config) {
	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.HeartbeatInterval = getEnvDuration("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	cfg.SuspectAfter = getEnvDuration("SUSPECT_AFTER", cfg.SuspectAfter)
	cfg.DeadAfter = getEnvDuration("DEAD_AFTER", cfg.DeadAfter)
	cfg.VisibilityTimeout = getEnvDuration("VISIBILITY_TIMEOUT", cfg.VisibilityTimeout)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.MaxAttempts = getEnvInt("MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.DefaultCapacity = getEnvInt("DEFAULT_CAPACITY", cfg.DefaultCapacity)
	cfg.BackoffInitial = getEnvDuration("BACKOFF_INITIAL", cfg.BackoffInitial)
	cfg.BackoffMax = getEnvDuration("BACKOFF_MAX", cfg.BackoffMax)
	cfg.RateLimitCapacity = getEnvInt("RATE_LIMIT_CAPACITY", cfg.RateLimitCapacity)
	cfg.RateLimitRefill = getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", cfg.RateLimitRefill)
	cfg.ServerURL = getEnv("SERVER_URL", cfg.ServerURL)
	cfg.WorkerID = getEnv("WORKER_ID", cfg.WorkerID)
	cfg.WorkerCapacity = getEnvInt("WORKER_CAPACITY", cfg.WorkerCapacity)
}

func (c Config) validate() error {
	if c.SuspectAfter <= 0 || c.DeadAfter <= 0 {
		return fmt.Errorf("suspect_after and dead_after must be positive")
	}
	if c.DeadAfter <= c.SuspectAfter {
		return fmt.Errorf("dead_after (%s) must be longer than suspect_after (%s)",
			c.DeadAfter, c.SuspectAfter)
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.SuspectAfter {
		return fmt.Errorf("heartbeat_interval (%s) must be positive and shorter than suspect_after (%s)",
			c.HeartbeatInterval, c.SuspectAfter)
	}
	if c.VisibilityTimeout <= 0 {
		return fmt.Errorf("visibility_timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive")
	}
	if c.DefaultCapacity <= 0 || c.WorkerCapacity <= 0 {
		return fmt.Errorf("capacities must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
