// Package testutil provides Postgres/Redis fixtures and in-memory doubles for tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	// Import pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/migrate"
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// TestDBConfig locates the test database. The defaults match the docker-compose
// test profile; CI overrides them through TEST_DB_*.
type TestDBConfig struct {
	Host     string `env:"TEST_DB_HOST"     envDefault:"localhost"`
	Port     string `env:"TEST_DB_PORT"     envDefault:"55432"`
	User     string `env:"TEST_DB_USER"     envDefault:"genpipe"`
	Password string `env:"TEST_DB_PASSWORD" envDefault:"genpipe"`
	DBName   string `env:"TEST_DB_NAME"     envDefault:"genpipe"`
	SSLMode  string `env:"DB_SSL_MODE"      envDefault:"disable"`
}

// DefaultTestDBConfig reads TestDBConfig from the environment. Empty variables
// count as unset.
func DefaultTestDBConfig() TestDBConfig {
	cfg, err := env.ParseAsWithOptions[TestDBConfig](env.Options{Environment: nonEmptyEnviron()})
	if err != nil {
		panic(fmt.Sprintf("parse test db config: %v", err))
	}
	return cfg
}

func (c TestDBConfig) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		c.User, c.Password, net.JoinHostPort(c.Host, c.Port), c.DBName, c.SSLMode)
}

type redisTestConfig struct {
	Addr string `env:"REDIS_ADDR"    envDefault:"localhost:56379"`
	DB   int    `env:"TEST_REDIS_DB" envDefault:"1"`
}

type infraRequirements struct {
	DB    bool `env:"TEST_REQUIRE_DB"`
	Redis bool `env:"TEST_REQUIRE_REDIS"`
	Infra bool `env:"TEST_REQUIRE_INFRA"`
}

func requirements() infraRequirements {
	r, _ := env.ParseAsWithOptions[infraRequirements](env.Options{Environment: nonEmptyEnviron()})
	return r
}

// The test binary shares one migrated pool; every SetupTestDB call only truncates.
var shared struct {
	once sync.Once
	db   *sql.DB
	err  error
}

func openSharedDB() (*sql.DB, error) {
	shared.once.Do(func() {
		db, err := sql.Open("pgx", DefaultTestDBConfig().dsn())
		if err != nil {
			shared.err = fmt.Errorf("open: %w", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			shared.err = fmt.Errorf("ping: %w", err)
			return
		}
		if err := migrate.Run(ctx, db); err != nil {
			_ = db.Close()
			shared.err = fmt.Errorf("migrate: %w", err)
			return
		}
		shared.db = db
	})
	return shared.db, shared.err
}

// SetupTestDB returns the migrated test database with pipeline tables emptied
// before and after the test. The test is skipped when no database is reachable
// unless TEST_REQUIRE_DB or TEST_REQUIRE_INFRA is set.
func SetupTestDB(t TestingTB) *sql.DB {
	t.Helper()
	db, err := openSharedDB()
	if err != nil {
		r := requirements()
		skipOrFail(t, r.DB || r.Infra, "test database not available:", err)
		return nil
	}

	CleanupTestDB(t, db)
	if tc, ok := any(t).(interface{ Cleanup(func()) }); ok {
		tc.Cleanup(func() { CleanupTestDB(t, db) })
	}
	return db
}

// CleanupTestDB removes all pipeline rows.
func CleanupTestDB(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "TRUNCATE generation_events, generation_results"); err != nil {
		t.Fatalf("truncate pipeline tables: %v", err)
	}
}

// SetupTestRedis returns a client on a flushed test DB (REDIS_ADDR, TEST_REDIS_DB),
// skipping when Redis is unreachable.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	cfg, err := env.ParseAsWithOptions[redisTestConfig](env.Options{Environment: nonEmptyEnviron()})
	if err != nil {
		t.Fatalf("parse test redis config: %v", err)
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: max(cfg.DB, 0)})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		r := requirements()
		skipOrFail(t, r.Redis || r.Infra, fmt.Sprintf("redis not available at %s:", cfg.Addr), err)
		return nil
	}

	client.FlushDB(ctx)
	if tc, ok := any(t).(interface{ Cleanup(func()) }); ok {
		tc.Cleanup(func() {
			if cerr := client.Close(); cerr != nil {
				t.Logf("close test redis client: %v", cerr)
			}
		})
	}
	return client
}

func skipOrFail(t TestingTB, required bool, args ...any) {
	t.Helper()
	if required {
		t.Fatal(args...)
	}
	t.Skip(args...)
}

func nonEmptyEnviron() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && v != "" {
			out[k] = v
		}
	}
	return out
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func StringPtr(s string) *string {
	return &s
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
