// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package tractionrec

import (
	"bytes"
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/metrics"
	"github.com/tomtom215/tractionsync/internal/soql"
)

// maxErrorBodySize limits how much of an error response is read.
const maxErrorBodySize = 64 * 1024

// Record is one simplified remote record.
type Record = map[string]any

// PageResult is one page of query results. When NextRecordsURL is set the
// logical result continues on the next page.
type PageResult struct {
	Records        []Record `json:"records"`
	NextRecordsURL string   `json:"nextRecordsUrl,omitempty"`
	TotalSize      int      `json:"totalSize"`
	Done           bool     `json:"done"`
}

// API is the subset of Client used by the gateway.
type API interface {
	ExecuteQuery(ctx context.Context, q *soql.Query, alterContext string) (*PageResult, error)
	NextPage(ctx context.Context, nextURL string) (*PageResult, error)
}

// Client talks to the TractionRec REST API. It is safe for concurrent use.
type Client struct {
	cfg            config.TractionRecConfig
	httpClient     *http.Client
	limiter        *rate.Limiter
	breaker        *circuitBreaker
	key            *rsa.PrivateKey
	alter          soql.Alter
	now            func() time.Time
	maxRetries     int
	retryBaseDelay time.Duration

	mu    sync.Mutex
	token string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithAlter installs a hook applied to every query before execution.
func WithAlter(alter soql.Alter) ClientOption {
	return func(c *Client) { c.alter = alter }
}

// WithClock replaces time.Now for assertion expiry.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// WithPrivateKey supplies the signing key directly instead of reading
// PrivateKeyPath.
func WithPrivateKey(key *rsa.PrivateKey) ClientOption {
	return func(c *Client) { c.key = key }
}

// NewClient creates a client. The RSA key is loaded from cfg.PrivateKeyPath
// unless WithPrivateKey is given.
func NewClient(cfg *config.TractionRecConfig, opts ...ClientOption) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		cfg:            *cfg,
		httpClient:     &http.Client{Timeout: timeout},
		limiter:        rate.NewLimiter(limit, burst),
		breaker:        newCircuitBreaker(breakerName),
		now:            time.Now,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.key == nil {
		pem, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		c.key = key
	}
	return c, nil
}

// BreakerState reports the circuit breaker state ("closed", "open", "half-open").
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

// ExecuteQuery runs q against the query endpoint. The alter hook sees the
// query together with alterContext before it is built.
func (c *Client) ExecuteQuery(ctx context.Context, q *soql.Query, alterContext string) (*PageResult, error) {
	if c.alter != nil {
		c.alter(q, alterContext)
	}
	built, err := q.Build()
	if err != nil {
		return nil, err
	}

	target := c.cfg.ServicesURL + "query/?q=" + url.QueryEscape(built)
	data, err := c.authorized(ctx, "query", http.MethodGet, target, nil)
	if err != nil {
		logging.Error().Err(err).Str("query", built).Msg("TractionRec query failed")
		return nil, err
	}
	return decodePage(data)
}

// NextPage follows a nextRecordsUrl cursor. The cursor is a path that
// already carries its query parameters and is resolved against APIBaseURL.
func (c *Client) NextPage(ctx context.Context, nextURL string) (*PageResult, error) {
	data, err := c.authorized(ctx, "next_page", http.MethodGet, c.resolve(nextURL), nil)
	if err != nil {
		logging.Error().Err(err).Str("next_url", nextURL).Msg("TractionRec pagination failed")
		return nil, err
	}
	return decodePage(data)
}

// Send issues an authenticated request against APIBaseURL + path and
// returns the decoded JSON object. An empty response yields an empty map.
func (c *Client) Send(ctx context.Context, method, path string, body any) (map[string]any, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	data, err := c.authorized(ctx, "send", method, c.resolve(path), payload)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(c.cfg.APIBaseURL, "/") + path
}

// authorized performs a bearer-authenticated request. A 401 clears the
// cached token and retries once with a fresh one.
func (c *Client) authorized(ctx context.Context, op, method, target string, body []byte) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.AccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		if token == "" {
			return nil, ErrInvalidToken
		}

		data, err := c.roundTrip(ctx, op, method, target, body, "application/json", token)
		var respErr *InvalidResponseError
		if err != nil && attempt == 0 && errors.As(err, &respErr) && respErr.StatusCode == http.StatusUnauthorized {
			logging.Info().Str("operation", op).Msg("TractionRec token rejected, refreshing")
			c.ResetToken()
			continue
		}
		return data, err
	}
}

// roundTrip sends one request through the limiter and circuit breaker and
// returns the body of a 2xx response.
func (c *Client) roundTrip(ctx context.Context, op, method, target string, body []byte, contentType, token string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := c.breaker.execute(func() (interface{}, error) {
		var reader io.Reader = http.NoBody
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.doRequestWithRateLimit(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, newInvalidResponseError(resp.StatusCode, readBodyForError(resp.Body))
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return data, nil
	})
	metrics.RecordRemoteRequest(op, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	data, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return data, nil
}

// doRequestWithRateLimit executes req, retrying HTTP 429 with exponential
// backoff and honouring Retry-After.
func (c *Client) doRequestWithRateLimit(req *http.Request) (*http.Response, error) {
	maxRetries := c.maxRetries
	baseDelay := c.retryBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			b, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = b
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		resp.Body.Close()
		metrics.RemoteRateLimitHits.Inc()

		if attempt == maxRetries {
			break
		}

		retryDelay := baseDelay * (1 << attempt)
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				retryDelay = seconds
			}
		}

		logging.Warn().Dur("retry_delay", retryDelay).Int("attempt", attempt+1).Int("max_retries", maxRetries).Msg("TractionRec API rate limited (HTTP 429), retrying")

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("rate limit exceeded after %d retries", maxRetries)
}

func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

func decodePage(data []byte) (*PageResult, error) {
	var raw struct {
		Records        []map[string]any `json:"records"`
		NextRecordsURL string           `json:"nextRecordsUrl"`
		TotalSize      int              `json:"totalSize"`
		Done           bool             `json:"done"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	page := &PageResult{
		Records:        make([]Record, len(raw.Records)),
		NextRecordsURL: raw.NextRecordsURL,
		TotalSize:      raw.TotalSize,
		Done:           raw.Done,
	}
	for i, r := range raw.Records {
		page.Records[i] = SimplifyRecord(r)
	}
	return page, nil
}
