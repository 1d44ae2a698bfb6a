// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport posts unified chat requests to the provider proxy and
// demultiplexes the replies, streaming or complete, into the stores.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/forgechat/internal/provider"
)

// Configuration constants for proxy requests.
const (
	// DefaultTimeout bounds non-streaming JSON calls.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed complete-response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared HTTP client for all non-streaming proxy calls.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for SSE requests (no timeout,
	// context-controlled).
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		// No timeout for streaming - controlled via context
	}
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoOrigin indicates the client has no proxy origin configured.
	ErrNoOrigin = errors.New("transport: proxy origin not configured")

	// ErrUnknownProvider indicates a provider outside the supported set.
	ErrUnknownProvider = errors.New("transport: unknown provider")

	// ErrAuthFailed indicates the upstream rejected the API key.
	ErrAuthFailed = errors.New("transport: authentication failed")

	// ErrRateLimited indicates the upstream throttled the request.
	ErrRateLimited = errors.New("transport: rate limited")
)

// ProxyError carries a non-2xx proxy reply that maps to no sentinel.
type ProxyError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	return fmt.Sprintf("proxy error (status %d): %s", e.Status, e.Message)
}

// decodeProxyError converts a non-2xx proxy reply into a Go error. The proxy
// answers errors as {"error":"<message>"}; anything else degrades to the raw
// body text.
func decodeProxyError(status int, body []byte) error {
	var reply struct {
		Error string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(body, &reply); err == nil {
		msg = reply.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrAuthFailed, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	}
	return &ProxyError{Status: status, Message: msg}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client speaks to the provider proxy. The zero value is unusable; construct
// with NewClient.
type Client struct {
	origin string
	json   *http.Client
	stream *http.Client
	logger *log.Logger
}

// NewClient creates a client for the proxy at origin, typically
// "http://127.0.0.1:<port>".
func NewClient(origin string) *Client {
	return &Client{
		origin: strings.TrimSuffix(origin, "/"),
		json:   sharedHTTPClient,
		stream: sharedStreamingClient,
	}
}

// WithHTTPClient overrides the client used for non-streaming calls.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.json = hc
	return c
}

// WithStreamClient overrides the client used for SSE calls.
func (c *Client) WithStreamClient(hc *http.Client) *Client {
	c.stream = hc
	return c
}

// WithLogger enables request logging.
func (c *Client) WithLogger(l *log.Logger) *Client {
	c.logger = l
	return c
}

// logRequest logs an outbound request.
// SECURITY: Logs method and path only; the body carries the API key.
func (c *Client) logRequest(path string) {
	if c.logger != nil {
		c.logger.Printf("POST %s", path)
	}
}

// logResponse logs the reply status and duration.
func (c *Client) logResponse(status int, d time.Duration) {
	if c.logger != nil {
		c.logger.Printf("%d | %.3fs", status, d.Seconds())
	}
}

// post sends req as JSON to the proxy route for p.
func (c *Client) post(ctx context.Context, hc *http.Client, p provider.Provider, req *provider.ChatRequest, streaming bool) (*http.Response, error) {
	if c.origin == "" {
		return nil, ErrNoOrigin
	}
	if !p.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	path := p.ProxyPath()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.origin+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Cache-Control", "no-cache")
	}

	c.logRequest(path)
	start := time.Now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.logResponse(resp.StatusCode, time.Since(start))
	return resp, nil
}

// Complete posts req without streaming and returns the full assistant text
// extracted per p's response schema.
func (c *Client) Complete(ctx context.Context, p provider.Provider, req *provider.ChatRequest) (string, error) {
	r := *req
	r.Stream = false

	resp, err := c.post(ctx, c.json, p, &r, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", decodeProxyError(resp.StatusCode, body)
	}
	return CompleteText(p, body)
}

// readResponse reads the reply body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", int64(MaxResponseSize))
	}
	return body, nil
}
