package litecollector

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jirevwe/litecollector/job"
)

// DefaultExecutionTimeout is used when Config.ExecutionTimeout is zero.
const DefaultExecutionTimeout = time.Minute

type Config struct {
	// Job is run for every accepted request
	Job job.Job

	// CollectPoolSize is the number of workers running Job.Collect
	CollectPoolSize int

	// PostCollectPoolSize is the number of workers running Job.PostCollect
	PostCollectPoolSize int

	// QueueCapacity is the maximum number of requests in flight
	QueueCapacity int

	// MetricsEnabled turns on outcome counting, Snapshot returns
	// metrics.Disabled otherwise
	MetricsEnabled bool

	// ExecutionTimeout bounds each phase of a job
	ExecutionTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Job == nil {
		return fmt.Errorf("%w: job is required", ErrInvalidConfig)
	}

	if c.CollectPoolSize < 1 {
		return fmt.Errorf("%w: collect pool size must be > 0, got %d", ErrInvalidConfig, c.CollectPoolSize)
	}

	if c.PostCollectPoolSize < 1 {
		return fmt.Errorf("%w: post-collect pool size must be > 0, got %d", ErrInvalidConfig, c.PostCollectPoolSize)
	}

	if c.QueueCapacity < 1 {
		return fmt.Errorf("%w: queue capacity must be > 0, got %d", ErrInvalidConfig, c.QueueCapacity)
	}

	if c.ExecutionTimeout < 0 {
		return fmt.Errorf("%w: execution timeout must not be negative", ErrInvalidConfig)
	}

	return nil
}

func (c *Config) withDefaults() {
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}

	if c.ExecutionTimeout == 0 {
		c.ExecutionTimeout = DefaultExecutionTimeout
	}
}
