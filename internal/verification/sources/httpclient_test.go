package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_GetJSON(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "acme", r.URL.Query().Get("q"))
			assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
			_, _ = w.Write([]byte(`{"name":"Acme"}`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/auth":
			w.WriteHeader(http.StatusUnauthorized)
		case "/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		case "/teapot":
			w.WriteHeader(http.StatusTeapot)
		case "/garbage":
			_, _ = w.Write([]byte(`{not json`))
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient("test", srv.URL+"/",
		WithTimeout(200*time.Millisecond),
		WithAuth(func(r *http.Request) { r.Header.Set("X-Api-Key", "secret") }),
	)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("decodes 200 body", func(t *testing.T) {
		var out struct {
			Name string `json:"name"`
		}
		require.NoError(t, client.GetJSON(ctx, "/ok", url.Values{"q": {"acme"}}, &out))
		assert.Equal(t, "Acme", out.Name)
	})

	categories := map[string]ErrorCategory{
		"/missing": ErrorNotFound,
		"/auth":    ErrorAuthentication,
		"/busy":    ErrorRateLimited,
		"/down":    ErrorProviderOutage,
		"/teapot":  ErrorContractMismatch,
		"/garbage": ErrorBadData,
		"/slow":    ErrorTimeout,
	}
	for path, want := range categories {
		t.Run("maps "+path, func(t *testing.T) {
			var out map[string]any
			err := client.GetJSON(ctx, path, nil, &out)
			require.Error(t, err)
			assert.Equal(t, want, GetCategory(err))
		})
	}

	t.Run("caller cancellation is honoured", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		var out map[string]any
		assert.Error(t, client.GetJSON(cctx, "/ok", nil, &out))
	})
}

func TestHTTPClient_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient("test", srv.URL, WithRateLimit(0.5, 1), WithTimeout(100*time.Millisecond))
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, client.GetJSON(context.Background(), "/", nil, &out))
	// The bucket is empty and refills in 2s, longer than the request timeout.
	err = client.GetJSON(context.Background(), "/", nil, &out)
	require.Error(t, err)
	assert.Equal(t, ErrorRateLimited, GetCategory(err))
}

func TestNewHTTPClient_InvalidURL(t *testing.T) {
	_, err := NewHTTPClient("test", "not a url")
	assert.Error(t, err)
}
