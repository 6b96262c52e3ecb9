package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/buidl-renaissance/collector-quest-sub003/config"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/adapters/capability"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/data"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/generators"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/notify/pagerduty"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/notify/slack"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/statsd"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/service"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/service/failurenotifier"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/workflow"
)

// ServiceDeps groups the infrastructure handed to NewServices.
type ServiceDeps struct {
	Config *config.AppConfig
	DB     *sql.DB
	Redis  redis.UniversalClient // Optional
	Logger *slog.Logger
}

// Repositories are the storage adapters behind the service ports.
type Repositories struct {
	Results core.GenerationResultRepository
	Events  *data.GenerationEventRepo // nil in tests that skip the executor
	Queue   core.EventQueue
	Publish core.EventPublisher
	Sweep   core.SweepRepository
	Lock    core.DispatchLock // nil when Redis is disabled
	Ledger  core.StepLedger   // nil when Redis is disabled
}

// ServiceContainer holds the wired application services.
type ServiceContainer struct {
	Repos      Repositories
	Registry   *workflow.Registry
	Engine     *workflow.Engine
	Dispatcher *service.DispatcherService
	Results    *service.ResultService
	Capability *capability.HTTPCapability

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     statsd.Sink // nil when metrics are disabled
	MetricsClient   *statsd.Client
	FailureNotifier *failurenotifier.Service
}

// NewServices builds Postgres and Redis repositories and wires every service on top.
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service deps with config are required")
	}
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}
	repos, err := buildRepositories(deps)
	if err != nil {
		return nil, err
	}
	return assembleServices(deps.Config, repos, deps.Logger)
}

func buildRepositories(deps *ServiceDeps) (Repositories, error) {
	cfg := deps.Config
	events := data.NewGenerationEventRepo(deps.DB, data.GenerationEventRepoOptions{
		MaxAttempts: cfg.Executor.MaxDeliveries,
		RetryDelay:  cfg.Executor.RedeliveryDelay,
		Logger:      deps.Logger,
	})
	repos := Repositories{
		Results: data.NewGenerationResultRepo(deps.DB, data.GenerationResultRepoOptions{Logger: deps.Logger}),
		Events:  events,
		Queue:   events,
		Publish: events,
		Sweep:   data.NewSweepRepo(deps.DB, nil),
	}
	if deps.Redis != nil {
		lock, err := data.NewRedisDispatchLock(data.RedisDispatchLockOptions{Client: deps.Redis})
		if err != nil {
			return Repositories{}, fmt.Errorf("dispatch lock: %w", err)
		}
		repos.Lock = lock
		repos.Ledger = data.NewRedisStepLedger(deps.Redis, cfg.Sweeper.Retention)
	}
	return repos, nil
}

// assembleServices wires services over already-built repositories.
func assembleServices(cfg *config.AppConfig, repos Repositories, logger *slog.Logger) (*ServiceContainer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	obs := buildObservability(logger, cfg.Observability)

	client, err := capability.New(capability.Options{Config: cfg.Capability, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("capability client: %w", err)
	}

	registry := workflow.NewRegistry()
	if err := generators.Register(registry, client, generators.Options{
		ChunkMaxRunes:    cfg.Executor.ChunkMaxRunes,
		ChunkConcurrency: cfg.Executor.ChunkConcurrency,
	}); err != nil {
		return nil, fmt.Errorf("register workflows: %w", err)
	}

	results, err := service.NewResultService(service.ResultServiceOptions{
		Repo:      repos.Results,
		Sweeper:   repos.Sweep,
		BatchSize: cfg.Sweeper.BatchSize,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("result service: %w", err)
	}

	dispatcher, err := service.NewDispatcherService(service.DispatcherServiceOptions{
		Results:   repos.Results,
		Publisher: repos.Publish,
		Lock:      repos.Lock,
		Catalog:   registry,
		Config:    cfg.Dispatch,
		Logger:    logger,
		Metrics:   obs.MetricsSink,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher service: %w", err)
	}

	engine, err := workflow.NewEngine(workflow.EngineOptions{
		Results:  repos.Results,
		Registry: registry,
		Ledger:   repos.Ledger,
		Cancel:   results,
		Notifier: obs.FailureNotifier,
		Retry: workflow.RetryPolicy{
			MaxAttempts:    cfg.Executor.StepMaxAttempts,
			InitialBackoff: cfg.Executor.StepInitialBackoff,
			MaxBackoff:     cfg.Executor.StepMaxBackoff,
			Multiplier:     cfg.Executor.StepBackoffFactor,
		},
		StepTimeout: cfg.Executor.StepTimeout,
		Logger:      logger,
		Metrics:     obs.MetricsSink,
	})
	if err != nil {
		return nil, fmt.Errorf("workflow engine: %w", err)
	}

	return &ServiceContainer{
		Repos:         repos,
		Registry:      registry,
		Engine:        engine,
		Dispatcher:    dispatcher,
		Results:       results,
		Capability:    client,
		Observability: obs,
	}, nil
}

// buildObservability configures the statsd sink and the failure notifier.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	var out ObservabilityContainer
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:       true,
			Address:       cfg.Metrics.StatsdAddress,
			Prefix:        cfg.Metrics.Prefix,
			GlobalTags:    cfg.Metrics.Tags,
			FlushInterval: cfg.Metrics.FlushInterval,
			Logger:        logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.MetricsClient = client
			out.MetricsSink = client
		}
	}
	out.FailureNotifier = buildFailureNotifier(logger, cfg.Notifications)
	return out
}

// buildFailureNotifier registers the configured Slack and PagerDuty sinks.
// Cancelled jobs never page anyone.
func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	opts := failurenotifier.Options{
		Logger:     logger,
		SkipErrors: []string{workflow.ErrCancelled.Error()},
		EventNames: cfg.EventNames,
		Reasons:    cfg.Reasons,
	}
	if !cfg.Enabled {
		return failurenotifier.NewService(opts)
	}

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:      cfg.Slack.WebhookURL,
			Channel:         cfg.Slack.Channel,
			Username:        cfg.Slack.Username,
			Timeout:         cfg.Timeout,
			RetryLimit:      cfg.RetryLimit,
			ResultURLPrefix: cfg.ResultURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			opts.Sinks = append(opts.Sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey:      cfg.PagerDuty.RoutingKey,
			Source:          cfg.PagerDuty.Source,
			Component:       cfg.PagerDuty.Component,
			Timeout:         cfg.Timeout,
			RetryLimit:      cfg.RetryLimit,
			ResultURLPrefix: cfg.ResultURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			opts.Sinks = append(opts.Sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(opts)
}
