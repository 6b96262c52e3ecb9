package config

import (
	"slices"
	"strings"
	"time"
)

const defaultObservabilityName = "genpipe"

// Failure reasons accepted by OBSERVABILITY_NOTIFICATIONS_REASONS.
const (
	NotifyReasonFailed       = "failed"
	NotifyReasonDeadLettered = "dead_lettered"
)

// ObservabilityConfig groups the StatsD sink and the failure notification fan-out.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig controls pipeline metrics. Tags are attached to every
// metric, e.g. OBSERVABILITY_METRICS_TAGS=env:prod,region:us-east.
type ObservabilityMetricsConfig struct {
	Enabled       bool              `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string            `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string            `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"genpipe"`
	Tags          map[string]string `env:"OBSERVABILITY_METRICS_TAGS"`
	FlushInterval time.Duration     `env:"OBSERVABILITY_METRICS_FLUSH_INTERVAL" envDefault:"1s"`
}

func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled reports whether a StatsD client should be created.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls who hears about failed generations.
// EventNames restricts notifications to those event names (empty means all) and
// Reasons selects failed and/or dead_lettered jobs. Result links in Slack
// messages and PagerDuty incidents are ResultURLPrefix + result id.
type ObservabilityNotificationsConfig struct {
	Enabled    bool          `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	EventNames []string      `env:"OBSERVABILITY_NOTIFICATIONS_EVENT_NAMES"`
	Reasons    []string      `env:"OBSERVABILITY_NOTIFICATIONS_REASONS"     envDefault:"failed,dead_lettered"`

	ResultURLPrefix string `env:"OBSERVABILITY_NOTIFICATIONS_RESULT_URL_PREFIX"`

	Slack     SlackNotificationConfig     `envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty PagerDutyNotificationConfig `envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)
	c.ResultURLPrefix = strings.TrimSpace(c.ResultURLPrefix)
	c.EventNames = cleanList(c.EventNames, nil)
	c.Reasons = cleanList(c.Reasons, func(s string) bool {
		return s == NotifyReasonFailed || s == NotifyReasonDeadLettered
	})
	if len(c.Reasons) == 0 {
		c.Reasons = []string{NotifyReasonFailed, NotifyReasonDeadLettered}
	}

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	// Sinks only run under the master switch and with credentials.
	c.Slack.Enabled = c.Enabled && c.Slack.Enabled && c.Slack.WebhookURL != ""
	c.PagerDuty.Enabled = c.Enabled && c.PagerDuty.Enabled && c.PagerDuty.RoutingKey != ""
}

// SlackNotificationConfig configures the Slack incoming webhook sink.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"genpipe"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.Username = orDefault(c.Username, defaultObservabilityName)
}

// PagerDutyNotificationConfig configures the PagerDuty Events API v2 sink.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"genpipe"`
	Component  string `env:"COMPONENT"   envDefault:"genpipe"`
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	c.Source = orDefault(c.Source, defaultObservabilityName)
	c.Component = orDefault(c.Component, defaultObservabilityName)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

// cleanList trims, lowercases, drops empties and duplicates, and keeps only
// entries accepted by keep when it is non-nil.
func cleanList(in []string, keep func(string) bool) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || slices.Contains(out, s) || (keep != nil && !keep(s)) {
			continue
		}
		out = append(out, s)
	}
	return out
}
