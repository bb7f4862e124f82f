package main

import (
	"log/slog"

	"trustos/internal/platform/config"
	"trustos/internal/verification/models"
	"trustos/internal/verification/sources"
	"trustos/internal/verification/sources/companieshouse"
	"trustos/internal/verification/sources/linkedin"
	"trustos/internal/verification/sources/opencorporates"
	"trustos/internal/verification/sources/static"
)

// defaultWeights is the reference calibration; SOURCE_WEIGHTS overrides it
// per source.
var defaultWeights = map[string]sources.Weight{
	"opencorporates": {Points: 40},
	"companieshouse": {Points: 20},
	"linkedin":       {Factor: 1.0 / 3, Cap: 30},
}

func weightFor(cfg config.Server, name string) sources.Weight {
	if w, ok := cfg.Verification.Weights[name]; ok {
		return sources.Weight{Points: w.Points, Factor: w.Factor, Cap: w.Cap}
	}
	return defaultWeights[name]
}

// buildRegistry registers every provider. A provider without an API key is
// served from fixtures so the engine runs end to end in development.
func buildRegistry(cfg config.Server, log *slog.Logger) (*sources.Registry, error) {
	reg := sources.NewRegistry()
	timeout := cfg.Verification.SourceTimeout

	oc := cfg.Sources.OpenCorporates
	var ocAdapter sources.Adapter = static.New("opencorporates", static.DefaultFixtures)
	if oc.APIKey != "" {
		client, err := sources.NewHTTPClient("opencorporates", oc.BaseURL,
			sources.WithTimeout(timeout),
			sources.WithRateLimit(oc.RPS, 1),
		)
		if err != nil {
			return nil, err
		}
		ocAdapter = opencorporates.New(client, oc.APIKey)
	}

	ch := cfg.Sources.CompaniesHouse
	var chAdapter sources.Adapter = static.New("companieshouse", static.DefaultFixtures)
	if ch.APIKey != "" {
		client, err := sources.NewHTTPClient("companieshouse", ch.BaseURL,
			sources.WithTimeout(timeout),
			sources.WithRateLimit(ch.RPS, 1),
			sources.WithAuth(companieshouse.BasicAuth(ch.APIKey)),
		)
		if err != nil {
			return nil, err
		}
		chAdapter = companieshouse.New(client)
	}

	li := cfg.Sources.LinkedIn
	var liAdapter sources.Adapter = static.New("linkedin", static.DefaultFixtures)
	if li.APIKey != "" {
		client, err := sources.NewHTTPClient("linkedin", li.BaseURL,
			sources.WithTimeout(timeout),
			sources.WithRateLimit(li.RPS, 1),
			sources.WithAuth(linkedin.BearerAuth(li.APIKey)),
		)
		if err != nil {
			return nil, err
		}
		liAdapter = linkedin.New(client)
	}

	for _, e := range []struct {
		adapter sources.Adapter
		tier    models.Tier
		live    bool
	}{
		{ocAdapter, models.TierPrimary, oc.APIKey != ""},
		{chAdapter, models.TierPrimary, ch.APIKey != ""},
		{liAdapter, models.TierSecondary, li.APIKey != ""},
	} {
		if err := reg.Register(e.adapter, e.tier, weightFor(cfg, e.adapter.Name())); err != nil {
			return nil, err
		}
		log.Info("verification source registered",
			"source", e.adapter.Name(),
			"tier", e.tier,
			"live", e.live,
		)
	}
	return reg, nil
}
