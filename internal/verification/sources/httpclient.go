package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const maxResponseBytes = 2 << 20

// HTTPClient is the shared JSON-over-HTTP transport for adapters. It applies
// a per-request timeout and an outbound rate limit, and maps transport and
// status failures onto ProviderError categories.
type HTTPClient struct {
	source  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	auth    func(*http.Request)
	timeout time.Duration
}

type HTTPOption func(*HTTPClient)

func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps outbound requests per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithAuth decorates every request, e.g. with an API key header.
func WithAuth(fn func(*http.Request)) HTTPOption {
	return func(c *HTTPClient) {
		c.auth = fn
	}
}

func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

func NewHTTPClient(source, baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("source %s: invalid base url: %w", source, err)
	}
	c := &HTTPClient{
		source:  source,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: 8 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetJSON issues GET baseURL+path?query and decodes a 200 body into out.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return NewProviderError(ErrorRateLimited, c.source, "outbound rate limit wait aborted", err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return NewProviderError(ErrorInternal, c.source, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.auth != nil {
		c.auth(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return NewProviderError(ErrorTimeout, c.source, "request timed out", err)
		}
		return NewProviderError(ErrorProviderOutage, c.source, "request failed", err)
	}
	defer resp.Body.Close()

	if cat, ok := categoryForStatus(resp.StatusCode); ok {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return NewProviderError(cat, c.source, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return NewProviderError(ErrorTimeout, c.source, "response read timed out", err)
		}
		return NewProviderError(ErrorBadData, c.source, "malformed response body", err)
	}
	return nil
}

func categoryForStatus(status int) (ErrorCategory, bool) {
	switch {
	case status == http.StatusOK:
		return "", false
	case status == http.StatusNotFound:
		return ErrorNotFound, true
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorAuthentication, true
	case status == http.StatusTooManyRequests:
		return ErrorRateLimited, true
	case status >= 500:
		return ErrorProviderOutage, true
	default:
		return ErrorContractMismatch, true
	}
}
