// Package supabase talks to a hosted Supabase project: GoTrue for accounts
// and PostgREST for the tasks and focus_sessions tables.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	authPath = "/auth/v1"
	restPath = "/rest/v1"

	defaultTimeout = 15 * time.Second
)

// Client is a Supabase project client. Data requests carry the bearer token
// from the configured TokenSource; auth requests carry only the anon key.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	logger  *zap.Logger

	mu   sync.RWMutex
	data *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the project at baseURL.
func NewClient(baseURL, anonKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.data = c.http
	return c
}

// SetTokenSource makes data requests authenticate as the token's user.
func (c *Client) SetTokenSource(ts oauth2.TokenSource) {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.http)
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = c.http.Timeout

	c.mu.Lock()
	c.data = hc
	c.mu.Unlock()
}

func (c *Client) dataClient() *http.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	bearer  string
	prefer  string
	useData bool
}

// do sends req and decodes a 2xx JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, req request, out any) error {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("apikey", c.anonKey)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.prefer != "" {
		httpReq.Header.Set("Prefer", req.prefer)
	}

	hc := c.http
	switch {
	case req.bearer != "":
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	case req.useData:
		hc = c.dataClient()
		if hc == c.http {
			httpReq.Header.Set("Authorization", "Bearer "+c.anonKey)
		}
	default:
		httpReq.Header.Set("Authorization", "Bearer "+c.anonKey)
	}

	start := time.Now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("supabase_request",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status_code", resp.StatusCode),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func eq(value string) string {
	return "eq." + value
}
