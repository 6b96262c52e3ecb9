package poller

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

	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
)

const maxErrorBody = 4 << 10

// APIError is a non-2xx response from the generations API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("generations api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("generations api: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// DispatchResponse is the body returned by POST /api/generations.
type DispatchResponse struct {
	ID     string                 `json:"id"`
	Status model.GenerationStatus `json:"status"`
	Reused bool                   `json:"reused"`
}

// HTTPClient talks to the generations API. It implements Fetcher.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

var _ Fetcher = (*HTTPClient)(nil)

// NewHTTPClient returns a client for baseURL. A nil hc uses a client with a 30s timeout.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Fetch implements Fetcher with GET /api/generations/{id}.
func (c *HTTPClient) Fetch(ctx context.Context, id string) (*model.GenerationResult, error) {
	var res model.GenerationResult
	if err := c.do(ctx, http.MethodGet, "/api/generations/"+url.PathEscape(id), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Dispatch starts (or reuses) a generation.
func (c *HTTPClient) Dispatch(ctx context.Context, req model.DispatchRequest) (*DispatchResponse, error) {
	var out DispatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/generations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel requests cancellation of a pending generation.
func (c *HTTPClient) Cancel(ctx context.Context, id string) (*model.GenerationResult, error) {
	var res model.GenerationResult
	if err := c.do(ctx, http.MethodPost, "/api/generations/"+url.PathEscape(id)+"/cancel", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, dst any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); len(b) > 0 {
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code, apiErr.Message = envelope.Error, envelope.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(b))
		}
	}
	if resp.StatusCode == http.StatusNotFound {
		return errors.Join(ErrNotFound, apiErr)
	}
	return apiErr
}
