package config

import (
	"strings"
	"time"
)

// DispatchConfig contains dispatcher configuration.
type DispatchConfig struct {
	// LockTTL is the lifetime of the per-target Redis dispatch lock.
	LockTTL time.Duration `env:"DISPATCH_LOCK_TTL" envDefault:"10s"`

	// LockWait bounds how long a dispatcher waits for a concurrent dispatcher
	// of the same target before falling back to the database.
	LockWait time.Duration `env:"DISPATCH_LOCK_WAIT" envDefault:"2s"`
}

// Sanitize applies guardrails to dispatch configuration values.
func (d *DispatchConfig) Sanitize() {
	if d.LockTTL < time.Second {
		d.LockTTL = time.Second
	}
	if d.LockWait < 0 {
		d.LockWait = 0
	}
	if d.LockWait > d.LockTTL {
		d.LockWait = d.LockTTL
	}
}

// CapabilityConfig configures the external generation capability client.
type CapabilityConfig struct {
	// BaseURL is the root of the capability service; operations are POSTed to BaseURL/<operation>.
	BaseURL string `env:"CAPABILITY_BASE_URL" envDefault:"http://localhost:9090"`

	// APIKey is sent as a bearer token when set.
	APIKey string `env:"CAPABILITY_API_KEY"`

	Timeout time.Duration `env:"CAPABILITY_TIMEOUT" envDefault:"60s"`

	// RateLimit is the sustained requests per second across all operations; Burst the bucket size.
	RateLimit float64 `env:"CAPABILITY_RATE_LIMIT" envDefault:"5"`
	Burst     int     `env:"CAPABILITY_BURST"      envDefault:"5"`

	// MaxFetchBytes caps artifact downloads.
	MaxFetchBytes int64 `env:"CAPABILITY_MAX_FETCH_BYTES" envDefault:"52428800"`

	// ResultExpressions maps an operation to the JMESPath expression that extracts its
	// result from the response body, e.g. "synthesize=data.audio_url".
	ResultExpressions map[string]string `env:"CAPABILITY_RESULT_EXPRESSIONS" envKeyValSeparator:"="`
}

// Sanitize applies guardrails to capability configuration values.
func (c *CapabilityConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 1
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.MaxFetchBytes <= 0 {
		c.MaxFetchBytes = 50 << 20
	}
}
