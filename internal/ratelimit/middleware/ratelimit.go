// Package middleware applies the fixed-window limiter to HTTP clients by IP.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	dErrors "trustos/pkg/domain-errors"
	"trustos/pkg/platform/httputil"
	"trustos/pkg/platform/middleware/metadata"
)

// Checker is the subset of ratelimit.Limiter the middleware needs.
type Checker interface {
	CheckLimit(ctx context.Context, key string, max int, window time.Duration) bool
}

type Middleware struct {
	limiter  Checker
	logger   *slog.Logger
	max      int
	window   time.Duration
	disabled bool
}

type Option func(*Middleware)

// WithDisabled lets every request through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

// New limits each client IP to max requests per window.
func New(limiter Checker, max int, window time.Duration, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  slog.New(slog.DiscardHandler),
		max:     max,
		window:  window,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		m.logger.Info("client rate limiting disabled")
	}
	return m
}

// RateLimit rejects a client over its budget with 429 and Retry-After.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := metadata.GetClientIP(ctx)
		if ip == "" {
			ip = metadata.ClientIPFromRequest(r)
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.max))
		if !m.limiter.CheckLimit(ctx, "ip:"+ip, m.max, m.window) {
			m.logger.WarnContext(ctx, "client rate limit exceeded",
				"client_ip", ip,
				"path", r.URL.Path,
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(m.window.Seconds())))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests from this client, retry later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
