package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/buidl-renaissance/collector-quest-sub003/config"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/adapters/executor"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/adapters/sweeper"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/queue"
	httpx "github.com/buidl-renaissance/collector-quest-sub003/internal/http"
)

const shutdownTimeout = 10 * time.Second

// RunConfig groups what RunServices needs.
type RunConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	DB       *sql.DB               // Optional: readiness check
	Redis    redis.UniversalClient // Optional: readiness check
	Logger   *slog.Logger
}

// RunServices runs every enabled service until ctx is cancelled or one of them
// fails. A cancelled ctx is a clean shutdown and returns nil.
func RunServices(ctx context.Context, cfg *RunConfig) error {
	if cfg == nil || cfg.Config == nil || cfg.Services == nil {
		return errors.New("run config with app config and services is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if enabled[config.ServiceModeHTTP] {
		srv := newHTTPServer(cfg, logger)
		g.Go(func() error { return serveHTTP(gctx, srv, logger) })
	}

	if enabled[config.ServiceModeExecutor] {
		runner, err := newExecutorRunner(cfg, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return runner.Run(gctx) })
	}

	if enabled[config.ServiceModeSweeper] {
		runner, err := sweeper.NewRunner(sweeper.RunnerOptions{
			Config:  cfg.Config.Sweeper,
			Logger:  logger,
			Repo:    cfg.Services.Repos.Sweep,
			Metrics: cfg.Services.Observability.MetricsSink,
		})
		if err != nil {
			return fmt.Errorf("sweeper runner: %w", err)
		}
		g.Go(func() error { return runner.Run(gctx) })
	}

	err = g.Wait()
	if mc := cfg.Services.Observability.MetricsClient; mc != nil {
		if cerr := mc.Close(); cerr != nil {
			logger.Warn("close statsd client failed", "error", cerr)
		}
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		logger.Info("services stopped")
		return nil
	}
	return err
}

func newHTTPServer(cfg *RunConfig, logger *slog.Logger) *http.Server {
	checks := map[string]httpx.ReadinessCheck{}
	if cfg.DB != nil {
		checks["database"] = cfg.DB.PingContext
	}
	if cfg.Redis != nil {
		rdb := cfg.Redis
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Dispatcher:         cfg.Services.Dispatcher,
		Results:            cfg.Services.Results,
		Readiness:          checks,
		CORSAllowedOrigins: cfg.Config.HTTP.CORSAllowedOrigins,
		MaxBodyBytes:       cfg.Config.HTTP.MaxBodyBytes,
		Logger:             logger,
	})

	addr := cfg.Config.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// serveHTTP runs srv until ctx is done, then drains in-flight requests.
func serveHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("HTTP server stopped")
	return ctx.Err()
}

func newExecutorRunner(cfg *RunConfig, logger *slog.Logger) (*executor.Runner, error) {
	svc := cfg.Services
	var notifier *queue.Notifier
	if svc.Repos.Events != nil {
		n, err := queue.NewNotifier(queue.NotifierOptions{Waiter: svc.Repos.Events})
		if err != nil {
			return nil, fmt.Errorf("queue notifier: %w", err)
		}
		notifier = n
	}

	runner, err := executor.NewRunner(executor.RunnerOptions{
		Queue:       svc.Repos.Queue,
		Results:     svc.Repos.Results,
		Engine:      svc.Engine,
		Notifier:    notifier,
		Failures:    svc.Observability.FailureNotifier,
		EventNames:  svc.Registry.EventNames(),
		Concurrency: cfg.Config.Executor.Concurrency,
		Lease:       cfg.Config.Executor.Lease,
		Logger:      logger,
		Metrics:     svc.Observability.MetricsSink,
	})
	if err != nil {
		return nil, fmt.Errorf("executor runner: %w", err)
	}
	return runner, nil
}
