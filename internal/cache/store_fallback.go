package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"trustos/pkg/platform/circuit"
	"trustos/pkg/platform/sentinel"
)

// Backend is a Store that can also count, which both built-in stores satisfy.
type Backend interface {
	Store
	Counter
}

// FallbackStore routes calls to a primary backend and switches to a local
// fallback while the primary is failing. While the breaker is open the primary
// is probed at most once per probe interval; enough successful probes close it.
type FallbackStore struct {
	primary  Backend
	fallback Backend
	breaker  *circuit.Breaker
	logger   *slog.Logger
	probe    time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastProbe time.Time
	onChange  func(open bool)
}

type FallbackOption func(*FallbackStore)

func WithFallbackLogger(logger *slog.Logger) FallbackOption {
	return func(s *FallbackStore) {
		s.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) FallbackOption {
	return func(s *FallbackStore) {
		if b != nil {
			s.breaker = b
		}
	}
}

func WithProbeInterval(d time.Duration) FallbackOption {
	return func(s *FallbackStore) {
		s.probe = d
	}
}

// WithStateListener is called whenever the breaker opens or closes.
func WithStateListener(fn func(open bool)) FallbackOption {
	return func(s *FallbackStore) {
		s.onChange = fn
	}
}

func NewFallbackStore(primary, fallback Backend, opts ...FallbackOption) (*FallbackStore, error) {
	if primary == nil {
		return nil, errors.New("primary cache backend is required")
	}
	if fallback == nil {
		return nil, errors.New("fallback cache backend is required")
	}
	s := &FallbackStore{
		primary:  primary,
		fallback: fallback,
		breaker:  circuit.New("cache"),
		logger:   slog.New(slog.DiscardHandler),
		probe:    5 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Degraded reports whether calls are currently served by the fallback.
func (s *FallbackStore) Degraded() bool {
	return s.breaker.IsOpen()
}

func (s *FallbackStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.do(ctx, "get", func(b Backend) error {
		var err error
		out, err = b.Get(ctx, key)
		return err
	})
	return out, err
}

func (s *FallbackStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.do(ctx, "set", func(b Backend) error {
		return b.Set(ctx, key, value, ttl)
	})
}

func (s *FallbackStore) Delete(ctx context.Context, key string) error {
	return s.do(ctx, "delete", func(b Backend) error {
		return b.Delete(ctx, key)
	})
}

func (s *FallbackStore) Clear(ctx context.Context) error {
	return s.do(ctx, "clear", func(b Backend) error {
		return b.Clear(ctx)
	})
}

func (s *FallbackStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	var n int64
	err := s.do(ctx, "increment", func(b Backend) error {
		var err error
		n, err = b.Increment(ctx, key, window)
		return err
	})
	return n, err
}

func (s *FallbackStore) do(ctx context.Context, op string, call func(Backend) error) error {
	if s.breaker.IsOpen() && !s.shouldProbe() {
		return call(s.fallback)
	}

	err := call(s.primary)
	if err == nil || errors.Is(err, sentinel.ErrNotFound) {
		if _, change := s.breaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "cache primary recovered", "breaker", s.breaker.Name())
			s.notify(false)
		}
		if !s.breaker.IsOpen() {
			return err
		}
		return call(s.fallback)
	}

	useFallback, change := s.breaker.RecordFailure()
	if change.Opened {
		s.markProbe()
		s.logger.WarnContext(ctx, "cache primary unavailable, switching to fallback",
			"breaker", s.breaker.Name(),
			"op", op,
			"error", err,
		)
		s.notify(true)
	}
	if useFallback {
		return call(s.fallback)
	}
	return err
}

func (s *FallbackStore) shouldProbe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastProbe) < s.probe {
		return false
	}
	s.lastProbe = now
	return true
}

func (s *FallbackStore) markProbe() {
	s.mu.Lock()
	s.lastProbe = s.now()
	s.mu.Unlock()
}

func (s *FallbackStore) notify(open bool) {
	if s.onChange != nil {
		s.onChange(open)
	}
}
