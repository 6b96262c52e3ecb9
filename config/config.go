// Package config holds the environment-driven configuration for genpipe.
package config

import (
	"log/slog"
	"os"
	"sort"
	"strings"
)

// AppConfig is everything genpipe reads from the environment, parsed with
// github.com/caarlos0/env. Each concern has its own struct and file:
//   - database.go: Postgres and Redis
//   - http.go: HTTP server and CORS
//   - services.go: service modes, executor and sweeper
//   - pipeline.go: dispatch and capability client
//   - observability.go: StatsD metrics and failure notifications
//
// Call Sanitize after parsing.
type AppConfig struct {
	Log LogConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig

	// Services is a comma-delimited list of enabled services: http, executor, sweeper.
	Services string `env:"SERVICES" envDefault:"http,executor,sweeper"`

	Executor   ExecutorConfig
	Sweeper    SweeperConfig
	Dispatch   DispatchConfig
	Capability CapabilityConfig

	Observability ObservabilityConfig
}

func (c *AppConfig) Sanitize() {
	c.Log.Sanitize()
	c.HTTP.Sanitize()
	c.Executor.Sanitize()
	c.Sweeper.Sanitize()
	c.Dispatch.Sanitize()
	c.Capability.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices parses Services.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// EnabledServiceNames lists the enabled services in sorted order, or nil when
// Services does not parse.
func (c *AppConfig) EnabledServiceNames() []string {
	services, err := c.GetEnabledServices()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(services))
	for mode := range services {
		names = append(names, string(mode))
	}
	sort.Strings(names)
	return names
}

func (c *AppConfig) IsServiceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	return err == nil && services[mode]
}

const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// LogConfig selects the slog handler. Dev mode (DEV=true or GO_ENV=development)
// defaults to text at debug level; otherwise JSON at info. LOG_LEVEL and
// LOG_FORMAT override either default.
type LogConfig struct {
	Dev    bool   `env:"DEV"        envDefault:"false"`
	Level  string `env:"LOG_LEVEL"`
	Format string `env:"LOG_FORMAT"`
}

func (l *LogConfig) Sanitize() {
	if !l.Dev {
		goEnv := strings.ToLower(os.Getenv("GO_ENV"))
		l.Dev = goEnv == "development" || goEnv == "dev"
	}

	l.Format = strings.ToLower(strings.TrimSpace(l.Format))
	if l.Format != LogFormatJSON && l.Format != LogFormatText {
		l.Format = LogFormatJSON
		if l.Dev {
			l.Format = LogFormatText
		}
	}

	lvl := slog.LevelInfo
	if l.Dev {
		lvl = slog.LevelDebug
	}
	if raw := strings.TrimSpace(l.Level); raw != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(raw)); err == nil {
			lvl = parsed
		}
	}
	l.Level = strings.ToLower(lvl.String())
}

// SlogLevel returns Level as a slog.Level. Unparseable values are info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
