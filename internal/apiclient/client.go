// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package apiclient is the typed HTTP client for the remote observation API.
//
// Every request passes through an interceptor that attaches the bearer
// credential and turns 401 responses into a single Unauthorized signal that
// the session store subscribes to.
package apiclient

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

	"github.com/olegiv/wxdesk/internal/metrics"
)

// maxErrorBody bounds how much of an error response is read for its detail.
const maxErrorBody = 64 << 10

// TokenSource supplies the current bearer credential, or "" when signed out.
type TokenSource interface {
	Credential() string
}

// Options configures a Client.
type Options struct {
	BaseURL string
	// Timeout bounds each JSON call including its body. Streamed exports
	// are bounded only by the caller's context.
	Timeout time.Duration
	// Transport is the underlying round tripper (nil = http.DefaultTransport).
	Transport http.RoundTripper
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Client calls the observation API.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu           sync.RWMutex
	tokens       TokenSource
	unauthorized []func(credential string)
}

// New creates a client for the API at opts.BaseURL.
func New(opts Options) *Client {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		logger:  logger,
		metrics: opts.Metrics,
	}
	c.http = &http.Client{
		Transport: &authTransport{base: base, client: c},
		// The API never redirects; surface 3xx as-is instead of following.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return c
}

// SetTokenSource sets where ambient requests take their credential from.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

// OnUnauthorized registers fn to run whenever a request sent with the
// ambient credential is answered with 401. fn receives the rejected credential.
func (c *Client) OnUnauthorized(fn func(credential string)) {
	c.mu.Lock()
	c.unauthorized = append(c.unauthorized, fn)
	c.mu.Unlock()
}

func (c *Client) credential() string {
	c.mu.RLock()
	ts := c.tokens
	c.mu.RUnlock()
	if ts == nil {
		return ""
	}
	return ts.Credential()
}

func (c *Client) raiseUnauthorized(credential string) {
	c.mu.RLock()
	subs := append([]func(string){}, c.unauthorized...)
	c.mu.RUnlock()
	for _, fn := range subs {
		fn(credential)
	}
}

// credentialMode controls which credential the interceptor attaches.
type credentialMode int

const (
	// ambient uses the token source and raises the Unauthorized signal on 401.
	ambient credentialMode = iota
	// explicit uses the credential in the context; the caller handles 401.
	explicit
	// anonymous sends no credential (login endpoints).
	anonymous
)

type credentialKey struct{}

type credentialValue struct {
	mode  credentialMode
	token string
}

func withCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialKey{}, credentialValue{mode: explicit, token: token})
}

func withoutCredential(ctx context.Context) context.Context {
	return context.WithValue(ctx, credentialKey{}, credentialValue{mode: anonymous})
}

// authTransport attaches the bearer credential and raises the Unauthorized
// signal for 401 responses to ambient requests.
type authTransport struct {
	base   http.RoundTripper
	client *Client
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cv, ok := req.Context().Value(credentialKey{}).(credentialValue)
	if !ok {
		cv = credentialValue{mode: ambient, token: t.client.credential()}
	}

	if cv.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+cv.token)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// Only a request that carried the session's credential can prove it invalid.
	if resp.StatusCode == http.StatusUnauthorized && cv.mode == ambient && cv.token != "" {
		t.client.logger.Warn("api rejected credential", "path", req.URL.Path)
		t.client.raiseUnauthorized(cv.token)
	}
	return resp, nil
}

// send performs a request and returns the response for 2xx statuses.
// Any other status is returned as *APIError with the body consumed.
func (c *Client) send(ctx context.Context, endpoint, method, path string, query url.Values, in any) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding request: %w", endpoint, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveAPI(endpoint, 0, time.Since(start))
		return nil, fmt.Errorf("%s: %w: %w", endpoint, ErrNetwork, err)
	}
	c.metrics.ObserveAPI(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Endpoint: endpoint, Status: resp.StatusCode, Detail: parseDetail(raw)}
	if resp.StatusCode >= 500 {
		c.logger.Error("api request failed", "endpoint", endpoint, "status", resp.StatusCode, "detail", apiErr.Detail)
	} else {
		c.logger.Debug("api request rejected", "endpoint", endpoint, "status", resp.StatusCode, "detail", apiErr.Detail)
	}
	return nil, apiErr
}

// do performs a JSON request and decodes the response into out (if non-nil).
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.send(ctx, endpoint, method, path, query, in)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w: %w", endpoint, ErrServer, err)
	}
	return nil
}

// Message is the acknowledgement body of action endpoints.
type Message struct {
	Message string `json:"message"`
}
