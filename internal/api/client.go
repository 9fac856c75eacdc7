package api

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

	"github.com/dtroode/expensekeeper-client/internal/logger"
)

const maxErrorBody = 4 << 10

// ErrUnauthorized is returned when the server rejected the request's
// credentials and the transport could not recover.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx response from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api responded with status %d: %s", e.StatusCode, e.Body)
}

// Client is a JSON client for the sync API. Authentication is the job of
// the http.Client it is built on.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	logger  *logger.Logger
}

// NewClient creates a Client for baseURL.
func NewClient(httpClient *http.Client, baseURL string, logger *logger.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	return &Client{http: httpClient, baseURL: u, logger: logger}, nil
}

// Do sends in (if not nil) as JSON and decodes the response into out (if not nil).
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Get fetches path and decodes the JSON response as T.
func Get[T any](ctx context.Context, c *Client, path string) (T, error) {
	var out T
	if err := c.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Ping fetches path and discards the body. It is used by the periodic sync.
func (c *Client) Ping(ctx context.Context, path string) error {
	if err := c.Do(ctx, http.MethodGet, path, nil, nil); err != nil {
		return err
	}
	c.logger.Debug("sync endpoint reachable", "path", path)
	return nil
}
