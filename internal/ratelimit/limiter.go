// Package ratelimit admits verification calls per subject using a fixed-window
// counter backed by the shared cache counter primitive.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"trustos/internal/cache"
	"trustos/internal/ratelimit/metrics"
)

const keyPrefix = "ratelimit:"

// Limiter is a fixed-window limiter. Each key has its own independent window,
// so up to 2*max calls can land around a window boundary.
//
// When the counter store fails the limiter fails open: the call is allowed,
// a warning is logged and the fail-open counter is incremented.
type Limiter struct {
	counter cache.Counter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func New(counter cache.Counter, opts ...Option) (*Limiter, error) {
	if counter == nil {
		return nil, errors.New("counter store is required")
	}
	l := &Limiter{
		counter: counter,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CheckLimit increments key's counter and reports whether the call is within
// max requests for the current window. A non-positive max or window denies.
func (l *Limiter) CheckLimit(ctx context.Context, key string, max int, window time.Duration) bool {
	if max <= 0 || window <= 0 {
		l.metrics.IncrementRejected()
		return false
	}

	count, err := l.counter.Increment(ctx, keyPrefix+key, window)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limit counter unavailable, failing open",
			"key", key,
			"error", err,
		)
		l.metrics.IncrementFailOpen()
		return true
	}

	if count > int64(max) {
		l.logger.DebugContext(ctx, "rate limit exceeded",
			"key", key,
			"count", count,
			"max", max,
		)
		l.metrics.IncrementRejected()
		return false
	}
	l.metrics.IncrementAllowed()
	return true
}
