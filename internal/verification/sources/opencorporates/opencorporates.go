// Package opencorporates queries the OpenCorporates company search API, a
// registry-of-record aggregator.
package opencorporates

import (
	"context"
	"net/url"
	"time"

	"trustos/internal/verification/models"
	"trustos/internal/verification/sources"
	pstrings "trustos/pkg/platform/strings"
)

const Name = "opencorporates"

type searchResponse struct {
	Results struct {
		Companies []struct {
			Company company `json:"company"`
		} `json:"companies"`
	} `json:"results"`
}

type company struct {
	Name              string `json:"name"`
	CompanyNumber     string `json:"company_number"`
	JurisdictionCode  string `json:"jurisdiction_code"`
	CurrentStatus     string `json:"current_status"`
	IncorporationDate string `json:"incorporation_date"`
	RegisteredAddress string `json:"registered_address_in_full"`
	OpenCorporatesURL string `json:"opencorporates_url"`
}

type Adapter struct {
	client *sources.HTTPClient
	apiKey string
	now    func() time.Time
}

func New(client *sources.HTTPClient, apiKey string) *Adapter {
	return &Adapter{client: client, apiKey: apiKey, now: time.Now}
}

func (a *Adapter) Name() string {
	return Name
}

// Query searches by name and picks the first company whose number equals the
// subject's registration number or, failing that, whose normalized name equals
// the subject's.
func (a *Adapter) Query(ctx context.Context, subject models.Subject) (*models.SourceResult, error) {
	q := url.Values{}
	q.Set("q", subject.Name)
	if a.apiKey != "" {
		q.Set("api_token", a.apiKey)
	}

	var resp searchResponse
	if err := a.client.GetJSON(ctx, "/companies/search", q, &resp); err != nil {
		if sources.GetCategory(err) == sources.ErrorNotFound {
			return a.unmatched(), nil
		}
		return nil, err
	}

	want := pstrings.NormalizeText(subject.Name)
	var best *company
	for i := range resp.Results.Companies {
		c := &resp.Results.Companies[i].Company
		if subject.RegistrationNumber != "" && c.CompanyNumber == subject.RegistrationNumber {
			best = c
			break
		}
		if best == nil && pstrings.NormalizeText(c.Name) == want {
			best = c
		}
	}
	if best == nil {
		return a.unmatched(), nil
	}

	return &models.SourceResult{
		Source:        Name,
		Matched:       true,
		CompanyStatus: best.CurrentStatus,
		FoundingDate:  best.IncorporationDate,
		Details: map[string]string{
			"name":           best.Name,
			"company_number": best.CompanyNumber,
			"jurisdiction":   best.JurisdictionCode,
			"address":        best.RegisteredAddress,
			"url":            best.OpenCorporatesURL,
		},
		RawConfidence: 100,
		CheckedAt:     a.now().UTC(),
	}, nil
}

func (a *Adapter) unmatched() *models.SourceResult {
	return &models.SourceResult{Source: Name, CheckedAt: a.now().UTC()}
}
