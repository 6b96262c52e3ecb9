package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultPostTimeout = 5 * time.Second
	defaultPostBackoff = 200 * time.Millisecond
	maxErrorBody       = 4 << 10
)

// StatusError is a non-2xx answer from a notification endpoint.
type StatusError struct {
	Sink   string
	Status string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Sink, e.Status, e.Body)
}

// Retryable reports whether the endpoint may accept the same request later.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// PosterConfig configures a Poster.
type PosterConfig struct {
	Sink       string // used in error messages, e.g. "slack"
	Timeout    time.Duration
	RetryLimit int
	Backoff    time.Duration // linear: attempt n waits n*Backoff
	Client     *http.Client
}

// Poster POSTs JSON documents to chat and paging webhooks, retrying transport
// errors and retryable statuses up to RetryLimit times.
type Poster struct {
	sink       string
	retryLimit int
	backoff    time.Duration
	client     *http.Client
}

func NewPoster(cfg PosterConfig) *Poster {
	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultPostTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultPostBackoff
	}
	return &Poster{
		sink:       cfg.Sink,
		retryLimit: max(cfg.RetryLimit, 0),
		backoff:    backoff,
		client:     hc,
	}
}

// PostJSON encodes v and delivers it to endpoint. It returns the last error
// once retries are exhausted or the endpoint rejects the request outright.
func (p *Poster) PostJSON(ctx context.Context, endpoint string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", p.sink, err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.retryLimit; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * p.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		lastErr = p.post(ctx, endpoint, body)
		if lastErr == nil {
			return nil
		}
		var se *StatusError
		if errors.As(lastErr, &se) && !se.Retryable() {
			return lastErr
		}
	}
	return lastErr
}

func (p *Poster) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.sink, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.sink, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Sink:   p.sink,
			Status: resp.Status,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(respBody)),
		}
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain %s response body: %w", p.sink, err)
	}
	return nil
}

// ResultLink joins an absolute URL prefix and a result id. It returns "" when
// either is missing or the prefix is not an absolute URL.
func ResultLink(prefix, resultID string) string {
	prefix, resultID = strings.TrimSpace(prefix), strings.TrimSpace(resultID)
	if prefix == "" || resultID == "" {
		return ""
	}
	u, err := url.Parse(prefix)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	link, err := url.JoinPath(u.String(), resultID)
	if err != nil {
		return ""
	}
	return link
}
