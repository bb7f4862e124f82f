// Package cache provides the key/value contract shared by the verification
// engine, with in-memory and Redis backends. Keys are opaque strings; values
// are serialized bytes. An expired entry is indistinguishable from a missing one.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trustos/pkg/platform/sentinel"
)

// Store is the cache contract. Get returns sentinel.ErrNotFound on a miss.
// A ttl <= 0 on Set stores the value without expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Counter is an atomic fixed-window counter. The first Increment for a key
// starts a window of the given length and returns 1; later increments inside
// the window return the running count. Once the window elapses the next
// Increment starts a new one.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// IsMiss reports whether err means the key is absent.
func IsMiss(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound)
}

// GetJSON reads key and decodes it into T.
func GetJSON[T any](ctx context.Context, s Store, key string) (*T, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return &v, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}
