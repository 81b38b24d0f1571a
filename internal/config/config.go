// Package config provides runtime configuration values for the service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration knobs for the HTTP server, storage, the write
// buffer workers and background jobs.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogMode         string        `yaml:"log_mode"`

	DatabaseURL string `yaml:"database_url"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisStream string `yaml:"redis_stream"`
	JWTSecret   string `yaml:"jwt_secret"`

	InitialWorkerCount      int           `yaml:"worker_count"`
	WorkerMin               int           `yaml:"worker_min"`
	WorkerMax               int           `yaml:"worker_max"`
	ScaleInterval           time.Duration `yaml:"scale_interval"`
	ScaleUpBacklogPerWorker int           `yaml:"scale_up_backlog_per_worker"`
	ScaleDownIdleTicks      int           `yaml:"scale_down_idle_ticks"`
	QueueHighWatermark      int           `yaml:"queue_high_watermark"`
	FlushQuiet              time.Duration `yaml:"flush_quiet"`

	EventBuffer        int    `yaml:"event_buffer"`
	VisitRetentionDays int    `yaml:"visit_retention_days"`
	PruneCron          string `yaml:"prune_cron"`

	EnrichURL         string        `yaml:"enrich_url"`
	EnrichTimeout     time.Duration `yaml:"enrich_timeout"`
	AgentInstructions string        `yaml:"agent_instructions"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, def time.Duration) time.Duration {
	ms := atoienv(key, int(def/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, def time.Duration) time.Duration {
	sec := atoienv(key, int(def/time.Second))
	return time.Duration(sec) * time.Second
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTPAddr:                ":8080",
		ShutdownTimeout:         15 * time.Second,
		LogMode:                 "production",
		RedisStream:             "storefront:visits",
		InitialWorkerCount:      2,
		WorkerMin:               2,
		WorkerMax:               6,
		ScaleInterval:           500 * time.Millisecond,
		ScaleUpBacklogPerWorker: 100,
		ScaleDownIdleTicks:      6,
		QueueHighWatermark:      5000,
		FlushQuiet:              1500 * time.Millisecond,
		EventBuffer:             1024,
		VisitRetentionDays:      90,
		PruneCron:               "0 30 3 * * *",
		EnrichTimeout:           20 * time.Second,
	}
}

// Load collects configuration: built-in defaults, then the YAML file named
// by CONFIG_PATH (if any), then environment overrides.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if cfg.InitialWorkerCount < cfg.WorkerMin {
		cfg.InitialWorkerCount = cfg.WorkerMin
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
	c.ShutdownTimeout = durenvs("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.LogMode = getenv("LOG_MODE", c.LogMode)
	c.DatabaseURL = getenv("DATABASE_URL", c.DatabaseURL)
	c.RedisAddr = getenv("REDIS_ADDR", c.RedisAddr)
	c.RedisStream = getenv("REDIS_STREAM", c.RedisStream)
	c.JWTSecret = getenv("JWT_SECRET", c.JWTSecret)
	c.WorkerMin = atoienv("WORKER_MIN", c.WorkerMin)
	c.WorkerMax = atoienv("WORKER_MAX", c.WorkerMax)
	c.InitialWorkerCount = atoienv("WORKER_COUNT", c.InitialWorkerCount)
	c.ScaleInterval = durenvms("SCALE_INTERVAL_MS", c.ScaleInterval)
	c.ScaleUpBacklogPerWorker = atoienv("SCALE_UP_BACKLOG_PER_WORKER", c.ScaleUpBacklogPerWorker)
	c.ScaleDownIdleTicks = atoienv("SCALE_DOWN_IDLE_TICKS", c.ScaleDownIdleTicks)
	c.QueueHighWatermark = atoienv("QUEUE_HIGH_WATERMARK", c.QueueHighWatermark)
	c.FlushQuiet = durenvms("FLUSH_QUIET_MS", c.FlushQuiet)
	c.EventBuffer = atoienv("EVENT_BUFFER", c.EventBuffer)
	c.VisitRetentionDays = atoienv("VISIT_RETENTION_DAYS", c.VisitRetentionDays)
	c.PruneCron = getenv("PRUNE_CRON", c.PruneCron)
	c.EnrichURL = getenv("ENRICH_URL", c.EnrichURL)
	c.EnrichTimeout = durenvms("ENRICH_TIMEOUT_MS", c.EnrichTimeout)
	c.AgentInstructions = getenv("AGENT_INSTRUCTIONS", c.AgentInstructions)
}

// Validate checks that the values are usable.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.WorkerMin < 1 || c.WorkerMax < c.WorkerMin {
		return fmt.Errorf("worker bounds invalid: min=%d max=%d", c.WorkerMin, c.WorkerMax)
	}
	if c.ScaleInterval <= 0 {
		return fmt.Errorf("scale_interval must be positive")
	}
	if c.FlushQuiet < 0 {
		return fmt.Errorf("flush_quiet must not be negative")
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be positive")
	}
	if c.VisitRetentionDays < 0 {
		return fmt.Errorf("visit_retention_days must not be negative")
	}
	return nil
}
