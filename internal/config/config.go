// Package config loads the wot YAML configuration.
//
// A missing section or key takes its default; Load then validates the
// result. Durations are written as Go duration strings ("1s", "720h").
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

var (
	ErrConfigFileUnreadable     = errors.New("config file unreadable")
	ErrConfigFileUnmarshallable = errors.New("config file unmarshallable")
	ErrInvalid                  = errors.New("invalid config")
)

// Config is the root configuration.
type Config struct {
	Database  Database  `yaml:"database"`
	HTTP      HTTP      `yaml:"http"`
	TaskQueue TaskQueue `yaml:"taskqueue"`
	Dispatch  Dispatch  `yaml:"dispatch"`
	Trigger   Trigger   `yaml:"trigger"`
	Retention Retention `yaml:"retention"`
	Cache     Cache     `yaml:"cache"`
}

type Database struct {
	Path string `yaml:"path"`
}

type HTTP struct {
	Addr      string    `yaml:"addr"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

// RateLimit bounds data point writes per client IP. A zero limit disables it.
type RateLimit struct {
	Limit float64 `yaml:"limit"` // requests per second
	Burst int     `yaml:"burst"`
}

type TaskQueue struct {
	Workers int `yaml:"workers"`
}

type Dispatch struct {
	Pacing       time.Duration `yaml:"pacing"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

type Trigger struct {
	PageSize int `yaml:"page_size"`
}

// Retention prunes finished delivery log rows older than MaxAge on a cron
// schedule. An empty schedule disables pruning.
type Retention struct {
	Schedule string        `yaml:"schedule"`
	MaxAge   time.Duration `yaml:"max_age"`
}

type Cache struct {
	ResourceTTL time.Duration `yaml:"resource_ttl"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigFileUnreadable, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigFileUnmarshallable, err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "wot.db"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8000"
	}
	if cfg.TaskQueue.Workers == 0 {
		cfg.TaskQueue.Workers = 4
	}
	if cfg.Dispatch.Pacing == 0 {
		cfg.Dispatch.Pacing = time.Second
	}
	if cfg.Dispatch.Timeout == 0 {
		cfg.Dispatch.Timeout = 10 * time.Second
	}
	if cfg.Dispatch.MaxAttempts == 0 {
		cfg.Dispatch.MaxAttempts = 1
	}
	if cfg.Dispatch.RetryBackoff == 0 {
		cfg.Dispatch.RetryBackoff = 2 * time.Second
	}
	if cfg.Trigger.PageSize == 0 {
		cfg.Trigger.PageSize = 100
	}
	if cfg.Retention.MaxAge == 0 {
		cfg.Retention.MaxAge = 30 * 24 * time.Hour
	}
	if cfg.Cache.ResourceTTL == 0 {
		cfg.Cache.ResourceTTL = time.Minute
	}
}

// Validate checks value ranges and the retention schedule.
func (c Config) Validate() error {
	switch {
	case c.TaskQueue.Workers < 1:
		return fmt.Errorf("%w: taskqueue.workers must be at least 1", ErrInvalid)
	case c.Dispatch.Pacing < 0:
		return fmt.Errorf("%w: dispatch.pacing must not be negative", ErrInvalid)
	case c.Dispatch.Timeout < 0:
		return fmt.Errorf("%w: dispatch.timeout must not be negative", ErrInvalid)
	case c.Dispatch.MaxAttempts < 1:
		return fmt.Errorf("%w: dispatch.max_attempts must be at least 1", ErrInvalid)
	case c.Dispatch.RetryBackoff < 0:
		return fmt.Errorf("%w: dispatch.retry_backoff must not be negative", ErrInvalid)
	case c.Trigger.PageSize < 1:
		return fmt.Errorf("%w: trigger.page_size must be at least 1", ErrInvalid)
	case c.Retention.MaxAge < 0:
		return fmt.Errorf("%w: retention.max_age must not be negative", ErrInvalid)
	case c.HTTP.RateLimit.Limit < 0:
		return fmt.Errorf("%w: http.rate_limit.limit must not be negative", ErrInvalid)
	case c.HTTP.RateLimit.Limit > 0 && c.HTTP.RateLimit.Burst < 1:
		return fmt.Errorf("%w: http.rate_limit.burst must be at least 1", ErrInvalid)
	}

	if c.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
			return fmt.Errorf("%w: retention.schedule: %v", ErrInvalid, err)
		}
	}
	return nil
}
