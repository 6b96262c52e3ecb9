// Package sweeper provides the adapter that runs the retention sweeper as a service.
package sweeper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/buidl-renaissance/collector-quest-sub003/config"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/data"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/statsd"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/service"
)

// Runner starts the sweep schedule when run and stops it on shutdown.
type Runner struct {
	sweeper *service.SweepService
	logger  *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.SweeperConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo    core.SweepRepository
	Metrics statsd.Sink
}

// NewRunner creates a sweeper runner. Either DB or Repo must be set.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("either DB or Repo must be provided")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		repo = data.NewSweepRepo(opts.DB, nil)
	}

	svc, err := service.NewSweepService(service.SweepServiceOptions{
		Repo:    repo,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire sweep service: %w", err)
	}

	return &Runner{sweeper: svc, logger: opts.Logger}, nil
}

// Service returns the underlying sweep service.
func (r *Runner) Service() *service.SweepService { return r.sweeper }

// Run starts the schedule and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting sweeper runner")
	if err := r.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	<-ctx.Done()
	r.sweeper.Stop()
	r.logger.InfoContext(context.WithoutCancel(ctx), "sweeper runner stopped")
	return ctx.Err()
}
