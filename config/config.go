package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jirevwe/litecollector"
	"github.com/jirevwe/litecollector/job"
	"github.com/jirevwe/litecollector/store"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPoolSize      = 4
	DefaultQueueCapacity = 30
	DefaultLogLevel      = "info"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the file configuration of a litecollector process.
type Config struct {
	CollectPoolSize     int           `yaml:"collect_pool_size"`
	PostCollectPoolSize int           `yaml:"post_collect_pool_size"`
	QueueCapacity       int           `yaml:"queue_capacity"`
	MetricsEnabled      bool          `yaml:"metrics_enabled"`
	ExecutionTimeout    time.Duration `yaml:"execution_timeout"` // Go duration, e.g. 30s
	LogLevel            string        `yaml:"log_level"`         // debug, info, warn, error

	// MetricsAddr serves prometheus metrics when set, e.g. :9090
	MetricsAddr string `yaml:"metrics_addr"`

	Store StoreConfig `yaml:"store"`
}

// StoreConfig selects the result store, an empty driver disables it.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite3, postgres
	DSN    string `yaml:"dsn"`
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		CollectPoolSize:     DefaultPoolSize,
		PostCollectPoolSize: DefaultPoolSize,
		QueueCapacity:       DefaultQueueCapacity,
		ExecutionTimeout:    litecollector.DefaultExecutionTimeout,
		LogLevel:            DefaultLogLevel,
	}
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Validate(cfg *Config) error {
	if cfg.CollectPoolSize < 1 {
		return fmt.Errorf("%w: collect_pool_size must be > 0, got %d", ErrInvalid, cfg.CollectPoolSize)
	}

	if cfg.PostCollectPoolSize < 1 {
		return fmt.Errorf("%w: post_collect_pool_size must be > 0, got %d", ErrInvalid, cfg.PostCollectPoolSize)
	}

	if cfg.QueueCapacity < 1 {
		return fmt.Errorf("%w: queue_capacity must be > 0, got %d", ErrInvalid, cfg.QueueCapacity)
	}

	if cfg.ExecutionTimeout <= 0 {
		return fmt.Errorf("%w: execution_timeout must be positive, got %s", ErrInvalid, cfg.ExecutionTimeout)
	}

	if _, err := cfg.Level(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	switch cfg.Store.Driver {
	case "":
	case store.DriverSqlite, store.DriverPostgres:
		if cfg.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for driver %s", ErrInvalid, cfg.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalid, cfg.Store.Driver)
	}

	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Dispatcher builds the dispatcher configuration running j.
func (c *Config) Dispatcher(j job.Job, logger *slog.Logger) *litecollector.Config {
	return &litecollector.Config{
		Job:                 j,
		CollectPoolSize:     c.CollectPoolSize,
		PostCollectPoolSize: c.PostCollectPoolSize,
		QueueCapacity:       c.QueueCapacity,
		MetricsEnabled:      c.MetricsEnabled,
		ExecutionTimeout:    c.ExecutionTimeout,
		Logger:              logger,
	}
}
