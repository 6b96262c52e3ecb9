// Package pagerduty triggers PagerDuty incidents for failed generation jobs.
package pagerduty

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint.
	Endpoint string
	// ResultURLPrefix, when set, attaches a link to the result.
	ResultURLPrefix string
}

// Client publishes trigger events via the Events API v2.
type Client struct {
	routingKey      string
	source          string
	component       string
	endpoint        string
	resultURLPrefix string
	poster          *notify.Poster
}

func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	return &Client{
		routingKey:      key,
		source:          or(cfg.Source, "genpipe"),
		component:       or(cfg.Component, "genpipe"),
		endpoint:        or(cfg.Endpoint, APIEndpoint),
		resultURLPrefix: strings.TrimSpace(cfg.ResultURLPrefix),
		poster: notify.NewPoster(notify.PosterConfig{
			Sink:       "pagerduty",
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
			Client:     cfg.Client,
		}),
	}, nil
}

type event struct {
	RoutingKey  string  `json:"routing_key"`
	EventAction string  `json:"event_action"`
	DedupKey    string  `json:"dedup_key,omitempty"`
	Payload     payload `json:"payload"`
	Links       []link  `json:"links,omitempty"`
}

type payload struct {
	Summary       string         `json:"summary"`
	Severity      string         `json:"severity"`
	Source        string         `json:"source"`
	Component     string         `json:"component,omitempty"`
	Class         string         `json:"class,omitempty"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details,omitempty"`
}

type link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// SendFailure submits a trigger event.
func (c *Client) SendFailure(ctx context.Context, p notify.FailurePayload) error {
	return c.poster.PostJSON(ctx, c.endpoint, c.buildEvent(p))
}

func (c *Client) buildEvent(p notify.FailurePayload) event {
	at := p.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	details := map[string]any{
		"result_id":   p.ResultID,
		"event_name":  p.EventName,
		"target":      p.Target(),
		"reason":      p.Reason,
		"attempts":    p.Attempts,
		"error":       p.Error,
		"error_class": p.ErrorClass,
	}
	for k, v := range p.Metadata {
		if _, taken := details[k]; !taken {
			details[k] = v
		}
	}

	ev := event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		// One incident per result; redelivered failures update it.
		DedupKey: strings.Trim(p.EventName+":"+p.ResultID, ":"),
		Payload: payload{
			Summary: fmt.Sprintf("Generation %s (%s) %s",
				or(p.ResultID, "unknown"), or(p.EventName, "unknown"), or(p.Reason, notify.ReasonFailed)),
			Severity:      or(strings.ToLower(p.Severity), notify.SeverityCritical),
			Source:        c.source,
			Component:     c.component,
			Class:         p.ErrorClass,
			Timestamp:     at.UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
	if href := notify.ResultLink(c.resultURLPrefix, p.ResultID); href != "" {
		ev.Links = []link{{Href: href, Text: "Generation result " + p.ResultID}}
	}
	return ev
}

func or(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
