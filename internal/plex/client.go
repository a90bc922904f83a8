// Package plex is a small client for the Plex Media Server HTTP API covering
// library listing, metadata edits and subtitle uploads.
package plex

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// Options configures a Client.
type Options struct {
	Timeout time.Duration // per request, 0 means 30s

	// Path mapping when Plex sees media under a different prefix.
	LocalPath  string
	RemotePath string

	// CircuitBreaker stops hammering a server that keeps failing.
	CircuitBreaker bool

	HTTPClient *http.Client // optional, overrides Timeout
}

// Client interacts with the Plex Media Server API.
type Client struct {
	baseURL    string
	token      string
	localPath  string
	remotePath string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	log        *slog.Logger
}

// NewClient creates a new Plex client.
func NewClient(baseURL, token string, opts Options, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "plex")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		localPath:  strings.TrimSuffix(opts.LocalPath, "/"),
		remotePath: strings.TrimSuffix(opts.RemotePath, "/"),
		httpClient: httpClient,
		log:        log,
	}

	if opts.CircuitBreaker {
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "plex",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Permanent errors say nothing about server health.
			IsSuccessful: func(err error) bool {
				return err == nil || !IsTransient(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		})
	}

	return c
}

// TranslateToRemote converts a local path to the path Plex expects.
func (c *Client) TranslateToRemote(path string) string {
	if c.localPath == "" || c.remotePath == "" {
		return path
	}
	if path == c.localPath || strings.HasPrefix(path, c.localPath+"/") {
		return c.remotePath + path[len(c.localPath):]
	}
	return path
}

// TranslateToLocal converts a Plex path to the local path.
func (c *Client) TranslateToLocal(path string) string {
	if c.localPath == "" || c.remotePath == "" {
		return path
	}
	if path == c.remotePath || strings.HasPrefix(path, c.remotePath+"/") {
		return c.localPath + path[len(c.remotePath):]
	}
	return path
}

// request describes a single API call.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

// do executes the request through the circuit breaker and returns the body
// of a 2xx response.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	if c.breaker == nil {
		return c.send(ctx, r)
	}
	return c.breaker.Execute(func() ([]byte, error) {
		return c.send(ctx, r)
	})
}

func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	reqURL := c.baseURL + r.path
	if len(r.query) > 0 {
		reqURL += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Accept", "application/xml")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.log.Debug("plex request", "method", r.method, "path", r.path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: r.method, Path: r.path, Code: resp.StatusCode}
	}
	return data, nil
}
