// Package telephony is a REST client for the outbound click-to-call gateway.
// It authenticates once with organization credentials, reuses the bearer token
// for subsequent requests and exposes call initiation, status lookup, hangup
// and a status poller.
package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/callpilot/internal/resilience"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultPollInterval = 3 * time.Second
)

// Status is the lifecycle state of an outbound call leg.
type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status ends the call lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Config carries the gateway credentials and endpoint.
type Config struct {
	BaseURL      string
	Organization string
	Username     string
	Password     string
	APIKey       string
	SenderID     string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. Primarily used in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval overrides the status poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithBreaker overrides the circuit breaker guarding gateway requests.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// Client talks to the click-to-call gateway. Safe for concurrent use.
type Client struct {
	cfg          Config
	httpClient   *http.Client
	pollInterval time.Duration
	breaker      *resilience.Breaker

	mu    sync.Mutex
	token string
}

// New creates a Client with the given gateway configuration.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("telephony: base URL is required")
	}
	c := &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		pollInterval: defaultPollInterval,
		breaker:      resilience.NewBreaker(resilience.BreakerConfig{Name: "telephony-gateway"}),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// CallRequest describes an outbound call to place.
type CallRequest struct {
	From           string `json:"from"`
	To             string `json:"to"`
	CallerID       string `json:"callerId,omitempty"`
	TimeoutSeconds int    `json:"timeout,omitempty"`
}

// CallResult is the gateway's view of one call leg.
type CallResult struct {
	Success bool   `json:"success"`
	CallID  string `json:"callId"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type loginRequest struct {
	Organization string `json:"organization"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"accessToken"`
}

// authenticate logs in and caches the bearer token. Callers must not hold mu.
func (c *Client) authenticate(ctx context.Context) error {
	c.mu.Lock()
	if c.token != "" {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var resp loginResponse
	req := loginRequest{
		Organization: c.cfg.Organization,
		Username:     c.cfg.Username,
		Password:     c.cfg.Password,
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return fmt.Errorf("telephony: login: %w", err)
	}

	token := resp.Token
	if token == "" {
		token = resp.AccessToken
	}
	if token == "" {
		return fmt.Errorf("telephony: login: no token in response")
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// Ping verifies the gateway is reachable and the credentials work. Used as
// a readiness probe; once a token is cached it is a cheap no-op.
func (c *Client) Ping(ctx context.Context) error {
	return c.authenticate(ctx)
}

// InitiateCall places an outbound call and returns the gateway's result.
func (c *Client) InitiateCall(ctx context.Context, req CallRequest) (CallResult, error) {
	if err := c.authenticate(ctx); err != nil {
		return CallResult{}, err
	}
	var res CallResult
	if err := c.do(ctx, http.MethodPost, "/voice/click2call", req, &res); err != nil {
		return CallResult{}, fmt.Errorf("telephony: initiate call: %w", err)
	}
	return res, nil
}

// CallStatus fetches the current status of a call leg.
func (c *Client) CallStatus(ctx context.Context, callID string) (CallResult, error) {
	if err := c.authenticate(ctx); err != nil {
		return CallResult{}, err
	}
	var res CallResult
	if err := c.do(ctx, http.MethodGet, "/voice/status/"+callID, nil, &res); err != nil {
		return CallResult{}, fmt.Errorf("telephony: call status: %w", err)
	}
	return res, nil
}

// EndCall hangs up a call leg. A call that has already completed is not an
// error.
func (c *Client) EndCall(ctx context.Context, callID string) error {
	if err := c.authenticate(ctx); err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPost, "/voice/hangup/"+callID, nil, nil); err != nil {
		return fmt.Errorf("telephony: end call: %w", err)
	}
	return nil
}

// PollStatus polls the call status on the configured interval, invoking fn on
// every observed status. It returns when the status turns terminal or the
// context ends.
func (c *Client) PollStatus(ctx context.Context, callID string, fn func(Status)) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := c.CallStatus(ctx, callID)
			if err != nil {
				return err
			}
			if fn != nil {
				fn(res.Status)
			}
			if res.Status.Terminal() {
				return nil
			}
		}
	}
}

// do performs one JSON request against the gateway. A nil body sends no
// payload; a nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}
	if c.cfg.SenderID != "" {
		req.Header.Set("X-Sender-ID", c.cfg.SenderID)
	}
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	// Only transport failures feed the breaker; HTTP error statuses mean
	// the gateway is reachable.
	var resp *http.Response
	err = c.breaker.Do(func() error {
		var derr error
		resp, derr = c.httpClient.Do(req)
		return derr
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token expired; force a fresh login on the next request.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return fmt.Errorf("unauthorized (status %d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
