package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Verification.CacheTTL)
	assert.Equal(t, 100, cfg.Verification.RateLimitMax)
	assert.Equal(t, time.Minute, cfg.Verification.RateLimitWindow)
	assert.InDelta(t, 40, cfg.Verification.SecondaryGate, 0)
	assert.InDelta(t, 80, cfg.Verification.VerifiedThreshold, 0)
	assert.Equal(t, 7*24*time.Hour, cfg.Jobs.Retention)
	assert.Equal(t, 100, cfg.Jobs.MaxBatchSize)
	assert.Equal(t, 600, cfg.ClientRateLimit.Max)
	assert.False(t, cfg.ClientRateLimit.Disabled)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Verification.Weights)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("VERIFY_RATE_LIMIT_MAX", "5")
	t.Setenv("VERIFY_RATE_LIMIT_WINDOW", "10s")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("SOURCE_WEIGHTS", "opencorporates=50")
	t.Setenv("CLIENT_RATE_LIMIT_DISABLED", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Verification.RateLimitMax)
	assert.Equal(t, 10*time.Second, cfg.Verification.RateLimitWindow)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, Weight{Points: 50}, cfg.Verification.Weights["opencorporates"])
	assert.True(t, cfg.ClientRateLimit.Disabled)
}

func TestFromEnv_InvalidValue(t *testing.T) {
	t.Setenv("SOURCE_TIMEOUT", "soon")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOURCE_TIMEOUT")

	t.Setenv("SOURCE_TIMEOUT", "")
	t.Setenv("CLIENT_RATE_LIMIT_DISABLED", "sometimes")
	_, err = FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLIENT_RATE_LIMIT_DISABLED")
}

func TestParseWeights(t *testing.T) {
	w, err := ParseWeights("OpenCorporates=40, linkedin=0:0.333:30")
	require.NoError(t, err)
	assert.Equal(t, Weight{Points: 40}, w["opencorporates"])
	assert.Equal(t, Weight{Factor: 0.333, Cap: 30}, w["linkedin"])

	for _, bad := range []string{"noequals", "=5", "x=abc", "x=1:2:3:4", "x=-1"} {
		_, err := ParseWeights(bad)
		assert.Error(t, err, bad)
	}
}
