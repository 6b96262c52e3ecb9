// Package capability is the HTTP client for the external generation service
// (text, image and speech models) that workflow steps invoke.
package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/time/rate"

	"github.com/buidl-renaissance/collector-quest-sub003/config"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/workflow"
)

const maxErrorBody = 4 << 10

// StatusError is a non-2xx response from the capability service.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("capability %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// ErrorClass groups responses by status family, e.g. "capability_5xx".
func (e *StatusError) ErrorClass() string {
	return fmt.Sprintf("capability_%dxx", e.StatusCode/100)
}

// Response is a decoded capability response.
type Response struct {
	Body json.RawMessage
	// Value is the result extracted by the operation's expression, or the whole body.
	Value any
	data  any
}

// Text returns Value as a string.
func (r *Response) Text() (string, error) {
	s, ok := r.Value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("capability result is %T, want non-empty string", r.Value)
	}
	return s, nil
}

// Search evaluates a JMESPath expression against the response body.
func (r *Response) Search(expr string) (any, error) {
	return jmespath.Search(expr, r.data)
}

// NewResponse decodes a JSON body and, when expr is non-empty, extracts Value with it.
func NewResponse(body []byte, expr string) (*Response, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	out := &Response{Body: body, Value: data, data: data}
	if expr == "" {
		return out, nil
	}
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return nil, fmt.Errorf("extract result: %w", err)
	}
	if v == nil {
		return nil, errors.New("extract result: expression matched nothing")
	}
	out.Value = v
	return out, nil
}

// Artifact is a downloaded result.
type Artifact struct {
	Data        []byte
	ContentType string
}

// Options groups dependencies for HTTPCapability.
type Options struct {
	Config config.CapabilityConfig
	// Client defaults to an *http.Client with Config.Timeout.
	Client *http.Client
	Logger *slog.Logger
}

// HTTPCapability invokes operations over HTTP with a shared rate limit.
type HTTPCapability struct {
	baseURL  string
	apiKey   string
	maxFetch int64
	client   *http.Client
	limiter  *rate.Limiter
	exprs    map[string]string
	logger   *slog.Logger
}

// New validates the configured result expressions and returns a client.
func New(opts Options) (*HTTPCapability, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid capability base url %q: %w", cfg.BaseURL, err)
	}

	exprs := make(map[string]string, len(cfg.ResultExpressions))
	for op, expr := range cfg.ResultExpressions {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("invalid result expression for %s: %w", op, err)
		}
		exprs[op] = expr
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPCapability{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		maxFetch: cfg.MaxFetchBytes,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		exprs:    exprs,
		logger:   logger.With("component", "capability"),
	}, nil
}

// Invoke POSTs {"operation": op, "input": input} to <base>/<op>.
//
// 429 and 5xx responses are returned as plain errors so the calling step
// retries them; other 4xx responses are marked permanent.
func (c *HTTPCapability) Invoke(ctx context.Context, op string, input any) (*Response, error) {
	body, err := json.Marshal(map[string]any{"operation": op, "input": input})
	if err != nil {
		return nil, workflow.Permanent(fmt.Errorf("encode %s input: %w", op, err))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("capability rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+url.PathEscape(op), bytes.NewReader(body))
	if err != nil {
		return nil, workflow.Permanent(fmt.Errorf("build %s request: %w", op, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capability %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(op, resp); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	out, err := NewResponse(raw, c.exprs[op])
	if err != nil {
		return nil, workflow.Permanent(fmt.Errorf("%s response: %w", op, err))
	}

	c.logger.DebugContext(ctx, "capability invoked", "operation", op, "status", resp.StatusCode, "bytes", len(raw))
	return out, nil
}

// Fetch downloads an artifact, refusing bodies larger than the configured cap.
func (c *HTTPCapability) Fetch(ctx context.Context, rawURL string) (*Artifact, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, workflow.Permanent(fmt.Errorf("invalid artifact url %q", rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, workflow.Permanent(fmt.Errorf("build fetch request: %w", err))
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus("fetch", resp); err != nil {
		return nil, err
	}
	if resp.ContentLength > c.maxFetch {
		return nil, workflow.Permanent(fmt.Errorf("artifact is %d bytes, limit %d", resp.ContentLength, c.maxFetch))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxFetch+1))
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if int64(len(data)) > c.maxFetch {
		return nil, workflow.Permanent(fmt.Errorf("artifact exceeds %d bytes", c.maxFetch))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &Artifact{Data: data, ContentType: contentType}, nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{Operation: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	if retryable(resp.StatusCode) {
		return statusErr
	}
	return workflow.Permanent(statusErr)
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// IsStatus reports whether err carries a capability response with the given status code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
