package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustos/internal/platform/config"
	"trustos/internal/platform/logger"
	"trustos/internal/verification/models"
	"trustos/internal/verification/sources"
)

func TestBuildRegistry_FixturesWithoutKeys(t *testing.T) {
	cfg := config.Server{}
	reg, err := buildRegistry(cfg, logger.Discard())
	require.NoError(t, err)

	require.Equal(t, 3, reg.Len())
	primaries := reg.Tier(models.TierPrimary)
	require.Len(t, primaries, 2)
	assert.Equal(t, "opencorporates", primaries[0].Adapter.Name())
	assert.Equal(t, "companieshouse", primaries[1].Adapter.Name())

	secondaries := reg.Tier(models.TierSecondary)
	require.Len(t, secondaries, 1)
	assert.Equal(t, sources.Weight{Factor: 1.0 / 3, Cap: 30}, secondaries[0].Weight)
}

func TestBuildRegistry_WeightOverride(t *testing.T) {
	weights, err := config.ParseWeights("companieshouse=35")
	require.NoError(t, err)
	cfg := config.Server{Verification: config.VerificationConfig{Weights: weights}}

	reg, err := buildRegistry(cfg, logger.Discard())
	require.NoError(t, err)
	primaries := reg.Tier(models.TierPrimary)
	assert.Equal(t, sources.Weight{Points: 40}, primaries[0].Weight)
	assert.Equal(t, sources.Weight{Points: 35}, primaries[1].Weight)
}

func TestBuildRegistry_InvalidBaseURL(t *testing.T) {
	cfg := config.Server{}
	cfg.Sources.OpenCorporates = config.ProviderConfig{APIKey: "key", BaseURL: "not a url"}
	_, err := buildRegistry(cfg, logger.Discard())
	require.Error(t, err)
}
