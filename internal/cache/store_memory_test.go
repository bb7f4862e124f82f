package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustos/pkg/platform/sentinel"
)

// =============================================================================
// MemoryStore Test Suite
// =============================================================================
// Justification for unit tests: expiry is lazy and clock-driven, so the
// boundary behaviour (expired == missing, overwrite re-arms TTL, window reset)
// is only observable with an injected clock.

type MemoryStoreSuite struct {
	suite.Suite
	now   time.Time
	store *MemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewMemoryStore(WithClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) advance(d time.Duration) {
	s.now = s.now.Add(d)
}

func (s *MemoryStoreSuite) TestGetSet() {
	s.Run("miss returns not found", func() {
		_, err := s.store.Get(s.ctx, "company:missing:unknown")
		s.ErrorIs(err, sentinel.ErrNotFound)
		s.True(IsMiss(err))
	})

	s.Run("round trip returns a copy", func() {
		val := []byte(`{"trustScore":60}`)
		s.Require().NoError(s.store.Set(s.ctx, "k", val, time.Minute))
		val[0] = 'X'

		got, err := s.store.Get(s.ctx, "k")
		s.Require().NoError(err)
		s.Equal(`{"trustScore":60}`, string(got))
	})
}

func (s *MemoryStoreSuite) TestExpiry() {
	s.Run("entry is live until exactly ttl", func() {
		s.Require().NoError(s.store.Set(s.ctx, "ttl", []byte("v"), time.Second))

		s.advance(999 * time.Millisecond)
		_, err := s.store.Get(s.ctx, "ttl")
		s.NoError(err)

		s.advance(time.Millisecond)
		_, err = s.store.Get(s.ctx, "ttl")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("overwrite replaces value and re-arms ttl", func() {
		s.Require().NoError(s.store.Set(s.ctx, "k", []byte("v1"), time.Second))
		s.advance(900 * time.Millisecond)
		s.Require().NoError(s.store.Set(s.ctx, "k", []byte("v2"), time.Second))
		s.advance(900 * time.Millisecond)

		got, err := s.store.Get(s.ctx, "k")
		s.Require().NoError(err)
		s.Equal("v2", string(got))
	})

	s.Run("zero ttl never expires", func() {
		s.Require().NoError(s.store.Set(s.ctx, "forever", []byte("v"), 0))
		s.advance(365 * 24 * time.Hour)
		_, err := s.store.Get(s.ctx, "forever")
		s.NoError(err)
	})
}

func (s *MemoryStoreSuite) TestDeleteAndClear() {
	s.Require().NoError(s.store.Set(s.ctx, "a", []byte("1"), 0))
	s.Require().NoError(s.store.Set(s.ctx, "b", []byte("2"), 0))

	s.Require().NoError(s.store.Delete(s.ctx, "a"))
	_, err := s.store.Get(s.ctx, "a")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Require().NoError(s.store.Delete(s.ctx, "never-existed"))

	s.Require().NoError(s.store.Clear(s.ctx))
	s.Equal(0, s.store.Len())
}

func (s *MemoryStoreSuite) TestIncrement() {
	s.Run("counts within window and resets after", func() {
		for i := int64(1); i <= 3; i++ {
			n, err := s.store.Increment(s.ctx, "ratelimit:x", time.Minute)
			s.Require().NoError(err)
			s.Equal(i, n)
		}
		s.advance(time.Minute)
		n, err := s.store.Increment(s.ctx, "ratelimit:x", time.Minute)
		s.Require().NoError(err)
		s.Equal(int64(1), n)
	})

	s.Run("concurrent increments are not lost", func() {
		var wg sync.WaitGroup
		for range 50 {
			wg.Go(func() {
				_, _ = s.store.Increment(s.ctx, "ratelimit:race", time.Hour)
			})
		}
		wg.Wait()
		n, err := s.store.Increment(s.ctx, "ratelimit:race", time.Hour)
		s.Require().NoError(err)
		s.Equal(int64(51), n)
	})
}

func (s *MemoryStoreSuite) TestSweep() {
	s.Require().NoError(s.store.Set(s.ctx, "short", []byte("v"), time.Second))
	s.Require().NoError(s.store.Set(s.ctx, "long", []byte("v"), time.Hour))
	s.advance(time.Minute)

	s.Equal(1, s.store.Sweep())
	s.Equal(1, s.store.Len())
}

func TestJSONHelpers(t *testing.T) {
	type payload struct {
		Score float64 `json:"score"`
	}
	ctx := context.Background()
	store := NewMemoryStore()

	if err := SetJSON(ctx, store, "p", payload{Score: 72.5}, 0); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	got, err := GetJSON[payload](ctx, store, "p")
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.Score != 72.5 {
		t.Fatalf("expected 72.5, got %v", got.Score)
	}

	_ = store.Set(ctx, "bad", []byte("{"), 0)
	if _, err := GetJSON[payload](ctx, store, "bad"); err == nil || IsMiss(err) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
