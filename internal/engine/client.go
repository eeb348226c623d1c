// Package engine is the console's client for the local engine API. Every call
// goes through the health gate.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/byze/byze-console/internal/gate"
)

// DefaultBaseURL is the engine API root.
const DefaultBaseURL = "http://127.0.0.1:16688/byze/v0.2"

// ServiceName is the registry name of the engine API.
const ServiceName = "engine-api"

// Doer sends HTTP requests. *resilience.Client and *http.Client implement it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a non-2xx engine response.
type APIError struct {
	StatusCode   int    `json:"statusCode"`
	BusinessCode int    `json:"businessCode,omitempty"`
	Message      string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("engine returned %d", e.StatusCode)
	}
	return fmt.Sprintf("engine returned %d: %s", e.StatusCode, e.Message)
}

// Config holds configuration for the engine client.
type Config struct {
	BaseURL string
	HTTP    Doer
	Gate    *gate.Gate
	Logger  zerolog.Logger
}

// Client calls the engine API.
type Client struct {
	baseURL string
	http    Doer
	gate    *gate.Gate
	logger  zerolog.Logger
}

// NewClient creates an engine client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		gate:    cfg.Gate,
		logger:  cfg.Logger,
	}
}

// envelope is the engine's response wrapper.
type envelope struct {
	BusinessCode int             `json:"business_code"`
	Message      string          `json:"message"`
	Error        string          `json:"error"`
	Data         json.RawMessage `json:"data"`
}

// Get calls GET path with query and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.call(ctx, http.MethodGet, path, query, nil, out)
}

// Post calls POST path with body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, http.MethodPost, path, nil, body, out)
}

// Put calls PUT path with body encoded as JSON.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, http.MethodPut, path, nil, body, out)
}

// Delete calls DELETE path. The engine takes delete arguments in the body.
func (c *Client) Delete(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, http.MethodDelete, path, nil, body, out)
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := func(ctx context.Context) error {
		return c.do(ctx, method, path, query, body, out)
	}
	if c.gate == nil {
		return op(ctx)
	}
	return c.gate.Do(ctx, op)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
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
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	// a body that is not an envelope is fine; it is decoded as is below
	_ = json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode:   resp.StatusCode,
			BusinessCode: env.BusinessCode,
			Message:      env.Message,
		}
		if apiErr.Message == "" {
			apiErr.Message = env.Error
		}
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Int("business_code", env.BusinessCode).
			Msg("engine request failed")
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	payload := raw
	if hasData(env.Data) {
		payload = env.Data
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// hasData reports whether an envelope carries a usable data field.
func hasData(data json.RawMessage) bool {
	switch strings.TrimSpace(string(data)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}
