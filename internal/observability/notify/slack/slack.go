// Package slack posts failure notifications to a Slack incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/notify"
)

type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// ResultURLPrefix, when set, links the result id, e.g. https://genpipe.example/api/generations.
	ResultURLPrefix string
}

// Client delivers failure notifications to a Slack webhook.
type Client struct {
	webhookURL      string
	channel         string
	username        string
	resultURLPrefix string
	poster          *notify.Poster
}

func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "genpipe"
	}
	return &Client{
		webhookURL:      webhookURL,
		channel:         strings.TrimSpace(cfg.Channel),
		username:        username,
		resultURLPrefix: strings.TrimSpace(cfg.ResultURLPrefix),
		poster: notify.NewPoster(notify.PosterConfig{
			Sink:       "slack",
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
			Client:     cfg.Client,
		}),
	}, nil
}

// message is the incoming-webhook body.
type message struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

// SendFailure posts a formatted message to Slack.
func (c *Client) SendFailure(ctx context.Context, payload notify.FailurePayload) error {
	return c.poster.PostJSON(ctx, c.webhookURL, c.formatMessage(payload))
}

func (c *Client) formatMessage(p notify.FailurePayload) message {
	at := p.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	var b strings.Builder
	b.WriteString("*Generation failure*")
	if p.EventName != "" {
		fmt.Fprintf(&b, " `%s`", p.EventName)
	}
	b.WriteByte('\n')

	severity := p.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}
	var attempts string
	if p.Attempts > 0 {
		attempts = strconv.Itoa(p.Attempts)
	}

	bullet(&b, "Severity", severity)
	bullet(&b, "Result", c.formatResultValue(p.ResultID))
	bullet(&b, "Target", escape(p.Target()))
	bullet(&b, "Reason", p.Reason)
	bullet(&b, "Attempts", attempts)
	bullet(&b, "Error class", p.ErrorClass)
	bullet(&b, "Error", escape(p.Error))
	if len(p.Metadata) > 0 {
		b.WriteString("• Metadata:\n")
		keys := make([]string, 0, len(p.Metadata))
		for k := range p.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "    • %s: %s\n", k, escape(p.Metadata[k]))
		}
	}
	b.WriteString("• Timestamp: ")
	b.WriteString(at.UTC().Format(time.RFC3339))

	return message{Text: b.String(), Username: c.username, Channel: c.channel}
}

// formatResultValue renders the result id, as a Slack link when a prefix is configured.
func (c *Client) formatResultValue(resultID string) string {
	id := escape(strings.TrimSpace(resultID))
	if id == "" {
		return ""
	}
	if link := notify.ResultLink(c.resultURLPrefix, resultID); link != "" {
		return "<" + link + "|" + id + ">"
	}
	return id
}

func bullet(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "• %s: %s\n", label, value)
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return slackEscaper.Replace(s)
}
