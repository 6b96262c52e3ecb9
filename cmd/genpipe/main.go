package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/buidl-renaissance/collector-quest-sub003/config"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		slog.ErrorContext(ctx, "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
	logger := bootstrap.InitLogger(cfg.Log)

	if err := run(ctx, &cfg, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	if err := bootstrap.ValidateServiceConfig(cfg); err != nil {
		return err
	}
	logger.InfoContext(ctx, "starting genpipe",
		"db_host", cfg.Postgres.Host,
		"db_name", cfg.Postgres.Name,
		"redis_enabled", cfg.Redis.Enabled,
		"enabled_services", cfg.EnabledServiceNames())

	db, redisClient, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeInfra(logger, db, redisClient)

	if cfg.Postgres.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config: cfg,
		DB:     db,
		Redis:  redisClient,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	return bootstrap.RunServices(ctx, &bootstrap.RunConfig{
		Config:   cfg,
		Services: services,
		DB:       db,
		Redis:    redisClient,
		Logger:   logger,
	})
}

//nolint:ireturn // redis.UniversalClient covers direct, sentinel and cluster deployments.
func connect(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*sql.DB, redis.UniversalClient, error) {
	db, err := bootstrap.ConnectDB(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	redisClient, err := bootstrap.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		closeInfra(logger, db, nil)
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return db, redisClient, nil
}

func closeInfra(logger *slog.Logger, db *sql.DB, redisClient redis.UniversalClient) {
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis failed", "error", err)
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("close database failed", "error", err)
		}
	}
}
