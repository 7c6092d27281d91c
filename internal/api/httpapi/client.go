// Package httpapi implements the api ports over the backend's JSON HTTP API.
//
// Successful responses are wrapped in a {"data": ...} envelope. Rejections
// with a {"message", "errors"} body become *api.ValidationError; everything
// else (dial failures, timeouts, unreadable bodies) becomes *api.TransportError.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"budgetsync/internal/api"
)

const (
	csrfCookieName = "XSRF-TOKEN"
	csrfHeaderName = "X-XSRF-TOKEN"
	maxBodyBytes   = 1 << 20
)

var _ api.Client = (*Client)(nil)

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the pooled default; its Jar is replaced when nil.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	token string
}

// New creates a client for the API rooted at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("missing API base URL")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL scheme %q: must be http or https", base.Scheme)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClientWithPooling(cfg.Timeout)
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{baseURL: base, httpClient: httpClient, logger: logger}, nil
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling,
// proper timeouts and keep-alive settings.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// SetBearerToken makes every following request carry "Authorization: Bearer <token>".
func (c *Client) SetBearerToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearBearerToken stops sending the Authorization header.
func (c *Client) ClearBearerToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) bearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// do sends one request. body is JSON-encoded when non-nil; out receives the
// envelope's data when non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	u := c.baseURL.JoinPath(path)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearerToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if xsrf := c.csrfToken(); xsrf != "" {
		req.Header.Set(csrfHeaderName, xsrf)
	}
	requestID := RequestID(ctx)
	if requestID == "" {
		requestID = GenerateRequestID()
	}
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "API request failed",
			"request_id", requestID, "op", op, "method", method, "path", u.Path, "error", err)
		return &api.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &api.TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.DebugContext(ctx, "API request completed",
		"request_id", requestID,
		"op", op,
		"method", method,
		"path", u.Path,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFailure(op, resp, respBody)
	}
	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return &api.TransportError{Op: op, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return &api.TransportError{Op: op, Err: errors.New("response envelope has no data")}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &api.TransportError{Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

func decodeFailure(op string, resp *http.Response, body []byte) error {
	verr := &api.ValidationError{}
	if err := json.Unmarshal(body, verr); err != nil || (verr.Message == "" && verr.Errors == nil) {
		return &api.TransportError{Op: op, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	verr.StatusCode = resp.StatusCode
	return verr
}

func (c *Client) csrfToken() string {
	if c.httpClient.Jar == nil {
		return ""
	}
	for _, ck := range c.httpClient.Jar.Cookies(c.baseURL) {
		if ck.Name != csrfCookieName {
			continue
		}
		if v, err := url.QueryUnescape(ck.Value); err == nil {
			return v
		}
		return ck.Value
	}
	return ""
}
