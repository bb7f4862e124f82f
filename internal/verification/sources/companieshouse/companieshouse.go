// Package companieshouse looks companies up by number in the UK Companies
// House public data API.
package companieshouse

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trustos/internal/verification/models"
	"trustos/internal/verification/sources"
)

const Name = "companieshouse"

type profile struct {
	CompanyName    string `json:"company_name"`
	CompanyNumber  string `json:"company_number"`
	CompanyStatus  string `json:"company_status"`
	DateOfCreation string `json:"date_of_creation"`
	Type           string `json:"type"`
	Address        struct {
		Line1      string `json:"address_line_1"`
		Line2      string `json:"address_line_2"`
		Locality   string `json:"locality"`
		PostalCode string `json:"postal_code"`
	} `json:"registered_office_address"`
}

func (p profile) address() string {
	parts := make([]string, 0, 4)
	for _, s := range []string{p.Address.Line1, p.Address.Line2, p.Address.Locality, p.Address.PostalCode} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

type Adapter struct {
	client *sources.HTTPClient
	now    func() time.Time
}

func New(client *sources.HTTPClient) *Adapter {
	return &Adapter{client: client, now: time.Now}
}

// BasicAuth authenticates with the API key as the username and no password.
func BasicAuth(apiKey string) func(*http.Request) {
	return func(r *http.Request) {
		r.SetBasicAuth(apiKey, "")
	}
}

func (a *Adapter) Name() string {
	return Name
}

// Query needs a registration number; without one the subject is unmatched.
func (a *Adapter) Query(ctx context.Context, subject models.Subject) (*models.SourceResult, error) {
	if subject.RegistrationNumber == "" {
		return &models.SourceResult{Source: Name, CheckedAt: a.now().UTC()}, nil
	}

	var p profile
	err := a.client.GetJSON(ctx, "/company/"+url.PathEscape(subject.RegistrationNumber), nil, &p)
	if sources.GetCategory(err) == sources.ErrorNotFound {
		return &models.SourceResult{Source: Name, CheckedAt: a.now().UTC()}, nil
	}
	if err != nil {
		return nil, err
	}
	if p.CompanyNumber == "" {
		return nil, sources.NewProviderError(sources.ErrorContractMismatch, Name, "profile without company_number", nil)
	}

	return &models.SourceResult{
		Source:        Name,
		Matched:       true,
		CompanyStatus: p.CompanyStatus,
		FoundingDate:  p.DateOfCreation,
		Details: map[string]string{
			"name":           p.CompanyName,
			"company_number": p.CompanyNumber,
			"type":           p.Type,
			"address":        p.address(),
		},
		RawConfidence: 100,
		CheckedAt:     a.now().UTC(),
	}, nil
}
