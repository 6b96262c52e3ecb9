package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the dispatch/poll HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeExecutor runs workflow workers that consume job-start events.
	ServiceModeExecutor ServiceMode = "executor"
	// ServiceModeSweeper runs the retention sweep.
	ServiceModeSweeper ServiceMode = "sweeper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeExecutor, ServiceModeSweeper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}
		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeExecutor, ServiceModeSweeper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, executor, sweeper)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}
	return services, nil
}

// ExecutorConfig contains workflow executor configuration.
type ExecutorConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"EXECUTOR_CONCURRENCY" envDefault:"4"`

	// Lease is how long a reserved event stays invisible to other workers.
	// Workers heartbeat at a third of the lease.
	Lease time.Duration `env:"EXECUTOR_LEASE" envDefault:"60s"`

	// MaxDeliveries bounds how many times one job-start event is delivered.
	MaxDeliveries int `env:"EXECUTOR_MAX_DELIVERIES" envDefault:"5"`

	// RedeliveryDelay is the base delay before a nacked event is redelivered.
	RedeliveryDelay time.Duration `env:"EXECUTOR_REDELIVERY_DELAY" envDefault:"5s"`

	// Step retry policy.
	StepMaxAttempts    int           `env:"EXECUTOR_STEP_MAX_ATTEMPTS"    envDefault:"3"`
	StepInitialBackoff time.Duration `env:"EXECUTOR_STEP_INITIAL_BACKOFF" envDefault:"1s"`
	StepMaxBackoff     time.Duration `env:"EXECUTOR_STEP_MAX_BACKOFF"     envDefault:"30s"`
	StepBackoffFactor  float64       `env:"EXECUTOR_STEP_BACKOFF_FACTOR"  envDefault:"2"`

	// StepTimeout bounds a single step attempt. Zero disables the bound.
	StepTimeout time.Duration `env:"EXECUTOR_STEP_TIMEOUT" envDefault:"2m"`

	// ChunkConcurrency bounds concurrently running chunks within one job.
	ChunkConcurrency int `env:"EXECUTOR_CHUNK_CONCURRENCY" envDefault:"4"`

	// ChunkMaxRunes bounds the size of text chunks handed to per-chunk capabilities.
	ChunkMaxRunes int `env:"EXECUTOR_CHUNK_MAX_RUNES" envDefault:"1000"`
}

// Sanitize applies guardrails to executor configuration values.
func (e *ExecutorConfig) Sanitize() {
	if e.Concurrency < 1 {
		e.Concurrency = 1
	}
	if e.Lease < 5*time.Second {
		e.Lease = 5 * time.Second
	}
	if e.MaxDeliveries < 1 {
		e.MaxDeliveries = 1
	}
	if e.RedeliveryDelay <= 0 {
		e.RedeliveryDelay = time.Second
	}
	if e.StepMaxAttempts < 1 {
		e.StepMaxAttempts = 1
	}
	if e.StepInitialBackoff <= 0 {
		e.StepInitialBackoff = 100 * time.Millisecond
	}
	if e.StepMaxBackoff < e.StepInitialBackoff {
		e.StepMaxBackoff = e.StepInitialBackoff
	}
	if e.StepBackoffFactor < 1 {
		e.StepBackoffFactor = 1
	}
	if e.StepTimeout < 0 {
		e.StepTimeout = 0
	}
	if e.ChunkConcurrency < 1 {
		e.ChunkConcurrency = 1
	}
	if e.ChunkMaxRunes < 50 {
		e.ChunkMaxRunes = 50
	}
}

// SweeperConfig contains retention sweep configuration.
type SweeperConfig struct {
	// Schedule is a robfig/cron spec, e.g. "@hourly" or "*/15 * * * *".
	Schedule string `env:"SWEEPER_SCHEDULE" envDefault:"@hourly"`

	// Retention is how long results of any status are kept after creation.
	Retention time.Duration `env:"SWEEPER_RETENTION" envDefault:"1h"`

	// BatchSize is the maximum number of rows deleted per statement.
	BatchSize int `env:"SWEEPER_BATCH_SIZE" envDefault:"1000"`

	// RunOnStart triggers one sweep immediately when the sweeper starts.
	RunOnStart bool `env:"SWEEPER_RUN_ON_START" envDefault:"false"`
}

// Sanitize applies guardrails to sweeper configuration values.
func (s *SweeperConfig) Sanitize() {
	s.Schedule = strings.TrimSpace(s.Schedule)
	if _, err := cron.ParseStandard(s.Schedule); err != nil {
		s.Schedule = "@hourly"
	}
	if s.Retention < time.Minute {
		s.Retention = time.Minute
	}
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
	if s.BatchSize > 10000 {
		s.BatchSize = 10000
	}
}
