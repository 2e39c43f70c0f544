// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the REST client for the bookshelf backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeranaias/bookshelf-tui/internal/logging"
)

// Configuration constants for the backend client.
const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize caps JSON response bodies.
	MaxResponseSize = 10 * 1024 * 1024
)

// Client talks to the bookshelf backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	carrier    Carrier
	limiter    *rate.Limiter
	maxRetries int
	userAgent  string
	log        *slog.Logger

	hookMu         sync.RWMutex
	onUnauthorized func()
}

// New creates a client for baseURL using carrier for the session.
func New(baseURL string, carrier Carrier) *Client {
	hc := &http.Client{Timeout: DefaultTimeout}
	carrier.Install(hc)
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		carrier:    carrier,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		userAgent:  "bookshelf/1.0",
		log:        logging.L(),
	}
}

// WithTimeout sets the request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithMaxRetries sets how often idempotent reads are retried on 5xx or
// network failure. Mutations are never retried.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// WithRateLimit caps outbound requests per second. 0 disables the limit.
func (c *Client) WithRateLimit(rps float64) *Client {
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
		return c
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// WithUserAgent sets the User-Agent header.
func (c *Client) WithUserAgent(ua string) *Client {
	c.userAgent = ua
	return c
}

// WithLogger sets the request logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	c.log = l
	return c
}

// WithHTTPClient replaces the underlying HTTP client, keeping the carrier installed.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.carrier.Install(hc)
	c.httpClient = hc
	return c
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Carrier returns the session carrier.
func (c *Client) Carrier() Carrier {
	return c.carrier
}

// OnUnauthorized registers the handler invoked when an authenticated call
// returns 401. Login and session checks do not trigger it.
func (c *Client) OnUnauthorized(fn func()) {
	c.hookMu.Lock()
	c.onUnauthorized = fn
	c.hookMu.Unlock()
}

func (c *Client) fireUnauthorized() {
	c.hookMu.RLock()
	fn := c.onUnauthorized
	c.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// request describes one backend call.
type request struct {
	method string
	path   string
	query  url.Values

	// jsonBody is marshalled; rawBody is sent as-is with contentType.
	jsonBody    any
	rawBody     io.Reader
	contentType string

	// public calls never fire the unauthorized hook.
	public bool
}

func (r request) op() string {
	return r.method + " " + r.path
}

func (r request) idempotent() bool {
	return r.method == http.MethodGet
}

// do sends r, retrying idempotent reads when configured. The caller owns
// the returned response body.
func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	var payload []byte
	if r.jsonBody != nil {
		var err error
		payload, err = json.Marshal(r.jsonBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		r.contentType = "application/json"
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	attempts := 1
	if r.idempotent() {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body := r.rawBody
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, target, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(req, r.contentType)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		elapsed := time.Since(start)
		reqID := req.Header.Get("X-Request-ID")

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn("api request failed", "op", r.op(), "request_id", reqID, "duration", elapsed, "error", err)
			lastErr = fmt.Errorf("%w: %s: %v", ErrTransport, r.op(), err)
			continue
		}

		c.log.Debug("api response", "op", r.op(), "status", resp.StatusCode, "request_id", reqID, "duration", elapsed)

		if resp.StatusCode >= 500 && attempt < attempts-1 {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// call performs r and decodes a JSON response into out (which may be nil).
func (c *Client) call(ctx context.Context, r request, out any) error {
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return err
	}
	if err := c.check(r, resp, body); err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to parse response: %w", r.op(), err)
	}
	return nil
}

// check converts a non-2xx response into an APIError, firing the
// unauthorized hook for authenticated calls.
func (c *Client) check(r request, resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := decodeError(r.op(), resp.StatusCode, body)
	c.log.Info("api error", "op", r.op(), "status", resp.StatusCode, "detail", apiErr.Detail)
	if resp.StatusCode == http.StatusUnauthorized && !r.public {
		c.fireUnauthorized()
	}
	return apiErr
}

// setHeaders sets the headers common to every request.
// Headers are never logged; they may carry the credential.
func (c *Client) setHeaders(req *http.Request, contentType string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.carrier.Apply(req)
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// calculateBackoff returns the delay to wait before retry attempt n (n >= 1).
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// pathf builds a path with escaped segments.
func pathf(format string, segments ...any) string {
	escaped := make([]any, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(fmt.Sprint(s))
	}
	return fmt.Sprintf(format, escaped...)
}
