//go:build integration

package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustos/internal/cache"
	"trustos/pkg/platform/sentinel"
	"trustos/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *cache.RedisStore
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = cache.NewRedisStore(s.redis.Client, cache.WithKeyPrefix("it:"))
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestRoundTripAndExpiry() {
	s.Require().NoError(s.store.Set(s.ctx, "company:12345678:london", []byte(`{"trustScore":80}`), 150*time.Millisecond))

	got, err := s.store.Get(s.ctx, "company:12345678:london")
	s.Require().NoError(err)
	s.JSONEq(`{"trustScore":80}`, string(got))

	s.Eventually(func() bool {
		_, err := s.store.Get(s.ctx, "company:12345678:london")
		return cache.IsMiss(err)
	}, 2*time.Second, 25*time.Millisecond)
}

func (s *RedisStoreSuite) TestPermanentKeyHasNoTTL() {
	s.Require().NoError(s.store.Set(s.ctx, "verification:stats", []byte("{}"), 0))
	ttl, err := s.redis.Client.TTL(s.ctx, "it:verification:stats").Result()
	s.Require().NoError(err)
	s.Equal(time.Duration(-1), ttl)
}

func (s *RedisStoreSuite) TestClearOnlyTouchesPrefix() {
	s.Require().NoError(s.redis.Client.Set(s.ctx, "foreign", "x", 0).Err())
	for _, k := range []string{"a", "b", "c"} {
		s.Require().NoError(s.store.Set(s.ctx, k, []byte("v"), 0))
	}

	s.Require().NoError(s.store.Clear(s.ctx))

	_, err := s.store.Get(s.ctx, "a")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Equal("x", s.redis.Client.Get(s.ctx, "foreign").Val())
}

func (s *RedisStoreSuite) TestIncrementIsAtomicAndWindowed() {
	var wg sync.WaitGroup
	for range 40 {
		wg.Go(func() {
			_, err := s.store.Increment(s.ctx, "ratelimit:acme", 300*time.Millisecond)
			s.NoError(err)
		})
	}
	wg.Wait()

	n, err := s.store.Increment(s.ctx, "ratelimit:acme", 300*time.Millisecond)
	s.Require().NoError(err)
	s.Equal(int64(41), n)

	pttl := s.redis.Client.PTTL(s.ctx, "it:ratelimit:acme").Val()
	s.Greater(pttl, time.Duration(0))

	s.Eventually(func() bool {
		n, err := s.store.Increment(s.ctx, "ratelimit:acme", 300*time.Millisecond)
		return err == nil && n == 1
	}, 2*time.Second, 50*time.Millisecond)
}
