// Package wings is a client for the Wings OTA API: low-fare search (JSON)
// and booking (OTA XML), plus normalization of the search results.
package wings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/buildkite/roko"
	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/logger"
	"github.com/dlerazeezcore/the-book-platform/version"
)

const (
	defaultBaseURL = "https://wings.laveen-air.com/RIAM_main/rest/api"
	defaultTimeout = 45 * time.Second
)

// Config is configuration for the Wings Client.
type Config struct {
	// BaseURL of the Wings REST API, without the endpoint path.
	BaseURL string

	// Token is sent verbatim in the Authorization header.
	Token string

	// Timeout for each request. Defaults to 45s, which is what the
	// upstream needs for slow fare searches.
	Timeout time.Duration

	// The http client used, leave nil for the default.
	HTTPClient *http.Client
}

// Client manages communication with the Wings OTA API.
type Client struct {
	conf   Config
	client *http.Client
	logger logger.Logger
}

// NewClient returns a new Wings API client.
func NewClient(l logger.Logger, conf Config) *Client {
	if conf.BaseURL == "" {
		conf.BaseURL = defaultBaseURL
	}
	conf.BaseURL = strings.TrimRight(conf.BaseURL, "/")
	if conf.Timeout <= 0 {
		conf.Timeout = defaultTimeout
	}

	client := conf.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: conf.Timeout}
	}

	return &Client{conf: conf, client: client, logger: l}
}

// ConfigFromEnvironment builds a Config from the environment. The token
// comes from WINGS_AUTH_TOKEN or AUTH_TOKEN; the base URL from
// WINGS_BASE_URL, or is derived from SEARCH_URL/BOOK_URL (or their
// WINGS_-prefixed variants) by chopping the endpoint path segment. ok is
// false when no token is configured, or when no base URL is set and none
// can be derived; a token alone is not a usable configuration.
func ConfigFromEnvironment(e *env.Environment) (conf Config, ok bool) {
	token := strings.TrimSpace(e.GetOrDefault("WINGS_AUTH_TOKEN", e.GetOrDefault("AUTH_TOKEN", "")))
	if token == "" {
		return Config{}, false
	}

	base := strings.TrimSpace(e.GetOrDefault("WINGS_BASE_URL", ""))
	if base == "" {
		searchURL := e.GetOrDefault("SEARCH_URL", e.GetOrDefault("WINGS_SEARCH_URL", ""))
		bookURL := e.GetOrDefault("BOOK_URL", e.GetOrDefault("WINGS_BOOK_URL", ""))
		base = deriveBaseFromFullURL(searchURL)
		if base == "" {
			base = deriveBaseFromFullURL(bookURL)
		}
	}
	if base == "" {
		return Config{}, false
	}

	return Config{BaseURL: base, Token: token}, true
}

// deriveBaseFromFullURL recovers a base URL from a full endpoint URL by
// dropping the last path component.
func deriveBaseFromFullURL(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if u == "" {
		return ""
	}
	if i := strings.LastIndex(u, "/"); i > 0 {
		return u[:i]
	}
	return u
}

// An APIError is a non-2xx reply from Wings.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wings %s replied %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// AirLowFareSearch runs a fare search. Transient failures are retried a
// couple of times; 4xx responses are not.
func (c *Client) AirLowFareSearch(ctx context.Context, payload *SearchRequest) (*SearchResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding search payload: %w", err)
	}

	r := roko.NewRetrier(
		roko.WithMaxAttempts(3),
		roko.WithStrategy(roko.Constant(1*time.Second)),
		roko.WithJitter(),
	)

	return roko.DoFunc(ctx, r, func(r *roko.Retrier) (*SearchResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.BaseURL+"/AirLowFareSearch", bytes.NewReader(body))
		if err != nil {
			r.Break()
			return nil, err
		}
		req.Header.Set("Authorization", c.conf.Token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())

		resp, err := c.client.Do(req)
		if err != nil {
			c.logger.Warn("Wings search failed: %v (%s)", err, r)
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				Endpoint:   "AirLowFareSearch",
				Body:       readBodyForError(resp.Body),
			}
			// Client errors won't improve on retry
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				r.Break()
			}
			return nil, apiErr
		}

		var sr SearchResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			r.Break()
			return nil, fmt.Errorf("decoding search response: %w", err)
		}
		return &sr, nil
	})
}

// AirBook posts an OTA_AirBookRQ document and returns the raw XML reply.
// Booking is never retried.
func (c *Client) AirBook(ctx context.Context, xmlBody string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.BaseURL+"/AirBook", strings.NewReader(xmlBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.conf.Token)
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting AirBook: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading AirBook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   "AirBook",
			Body:       truncate(string(body), 512),
		}
	}

	return string(body), nil
}

func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
