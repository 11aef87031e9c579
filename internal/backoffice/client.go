// Package backoffice is the client of the back-office HTTP API that owns
// products, fee types and orders.
package backoffice

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
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/resilience"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

var clientNopLogger = zerolog.Nop()

var (
	// ErrNotFound indicates the requested resource does not exist upstream.
	ErrNotFound = errors.New("backoffice: not found")
	// ErrUnavailable wraps transport failures, upstream 5xx and open breakers.
	ErrUnavailable = errors.New("backoffice: unavailable")
)

// APIError is a 4xx response other than 404.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backoffice: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backoffice: %d %s", e.StatusCode, e.Message)
}

// Config configures the client.
type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	// TenantHeader forwards the tenant on the context to the back office.
	TenantHeader string
}

// Client calls the back-office API through the resilient HTTP wrapper.
type Client struct {
	baseURL      *url.URL
	apiKey       string
	tenantHeader string
	http         resilience.HTTPClient
	logger       *zerolog.Logger
}

// New constructs a client with an otelhttp instrumented transport and a
// circuit breaker labelled "backoffice".
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + "/")
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("backoffice: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.TenantHeader == "" {
		cfg.TenantHeader = "X-Tenant-ID"
	}
	return &Client{
		baseURL:      base,
		apiKey:       cfg.APIKey,
		tenantHeader: cfg.TenantHeader,
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     resilience.NewBreaker(5, 0.5, 15*time.Second).WithTarget("backoffice"),
			BaseBackoff: cfg.BaseBackoff,
			MaxAttempts: cfg.MaxAttempts,
			Jitter:      0.2,
			Timeout:     cfg.Timeout,
		},
		logger: &clientNopLogger,
	}, nil
}

// WithLogger sets the logger used for upstream failures.
func (c *Client) WithLogger(logger zerolog.Logger) *Client {
	c.logger = &logger
	return c
}

// WithHTTPClient replaces the underlying HTTP client, e.g. with an httptest
// server client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http.Client = hc
	return c
}

// Ping checks that the back office answers at all.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, call{op: "ping", method: http.MethodGet, path: "api/health"})
}

// call describes a single back-office request.
type call struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	out     any
	idemKey string
}

func (c *Client) do(ctx context.Context, cl call) error {
	op := cl.op
	ref, err := url.Parse(cl.path)
	if err != nil {
		return fmt.Errorf("backoffice: build %s url: %w", op, err)
	}
	u := c.baseURL.ResolveReference(ref)
	if len(cl.query) > 0 {
		u.RawQuery = cl.query.Encode()
	}

	var reader io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("backoffice: encode %s: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("backoffice: new %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if id, ok := tenant.From(ctx); ok {
		req.Header.Set(c.tenantHeader, id)
	}
	if cl.idemKey != "" {
		req.Header.Set("Idempotency-Key", cl.idemKey)
	}

	hc := c.http
	hc.Observe = func(result string, elapsed time.Duration) {
		obs.ObserveBackoffice(op, result, obs.DurationMillis(elapsed))
	}
	resp, err := hc.Do(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Warn().Err(err).Str("operation", op).Msg("backoffice_unavailable")
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode >= 400:
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&envelope); err == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s: %w", op, apiErr)
	}
	if cl.out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
		return fmt.Errorf("backoffice: decode %s: %w", op, err)
	}
	return nil
}
