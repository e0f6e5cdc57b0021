// Package api is the HTTP client the web frontend uses to talk to the
// gateway backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dlerazeezcore/the-book-platform/logger"
	"github.com/dlerazeezcore/the-book-platform/version"
)

const defaultEndpoint = "http://127.0.0.1:5050"

// Config is configuration for the API Client.
type Config struct {
	// Endpoint is the gateway base URL, without a trailing slash.
	Endpoint string

	// Timeout for each request. The default is generous because fare
	// searches can take most of a minute upstream.
	Timeout time.Duration

	// The http client used, leave nil for the default
	HTTPClient *http.Client
}

// A Client manages communication with the gateway API.
type Client struct {
	conf   Config
	client *http.Client
	logger logger.Logger
}

// NewClient returns a new gateway API Client.
func NewClient(l logger.Logger, conf Config) *Client {
	if conf.Endpoint == "" {
		conf.Endpoint = defaultEndpoint
	}
	conf.Endpoint = strings.TrimRight(conf.Endpoint, "/")
	if conf.Timeout <= 0 {
		conf.Timeout = 60 * time.Second
	}

	client := conf.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: conf.Timeout}
	}

	return &Client{
		conf:   conf,
		client: client,
		logger: l,
	}
}

// Config returns the internal configuration for the Client
func (c *Client) Config() Config {
	return c.conf
}

// An ErrorResponse is a non-2xx reply from the gateway.
type ErrorResponse struct {
	StatusCode int
	Body       string
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("gateway replied %d: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, v any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.conf.Endpoint+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	// 202 carries a pending booking body, which callers still want
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ErrorResponse{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if v == nil {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// Health reports whether the gateway replies 200 on /health within the
// given client timeout.
func (c *Client) Health(ctx context.Context) bool {
	var body map[string]any
	return c.do(ctx, http.MethodGet, "/health", nil, &body) == nil
}

// Permissions fetches the gateway's provider permissions document.
func (c *Client) Permissions(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/permissions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AvailabilityResponse is the gateway's search reply, with results kept
// loose so enrichment can annotate them in place.
type AvailabilityResponse struct {
	Meta          map[string]any   `json:"meta"`
	Results       []map[string]any `json:"results"`
	ResultsReturn []map[string]any `json:"results_return"`
	Error         string           `json:"error,omitempty"`
}

// Availability runs a flight search through the gateway.
func (c *Client) Availability(ctx context.Context, payload any) (*AvailabilityResponse, error) {
	var out AvailabilityResponse
	if err := c.do(ctx, http.MethodPost, "/api/availability", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Book forwards a booking request to the gateway. The reply is returned
// as-is together with its status code: pending bookings come back 202.
func (c *Client) Book(ctx context.Context, payload any) (map[string]any, int, error) {
	var reader io.Reader
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encoding request body: %w", err)
	}
	reader = bytes.NewReader(data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.Endpoint+"/api/book", reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response body: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decoding response body: %w", err)
	}
	return out, resp.StatusCode, nil
}
