package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustos/internal/cache"
	"trustos/internal/ratelimit"
)

func newHandler(t *testing.T, max int, opts ...Option) http.Handler {
	t.Helper()
	limiter, err := ratelimit.New(cache.NewMemoryStore())
	require.NoError(t, err)
	mw := New(limiter, max, time.Minute, opts...)
	return mw.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func request(ip string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	r.Header.Set("X-Forwarded-For", ip)
	return r
}

func TestRateLimit(t *testing.T) {
	h := newHandler(t, 2)

	for range 2 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("203.0.113.1"))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("203.0.113.1"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "rate_limited", body["error"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("203.0.113.2"))
	assert.Equal(t, http.StatusNoContent, rec.Code, "clients are limited independently")
}

func TestRateLimit_Disabled(t *testing.T) {
	h := newHandler(t, 1, WithDisabled(true))
	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("203.0.113.1"))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}
