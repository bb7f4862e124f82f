// Package static answers queries from a fixed fixture set. It stands in for a
// provider that has no API key configured, so the engine runs end to end in
// development.
package static

import (
	"context"
	"strings"
	"time"

	"trustos/internal/verification/models"
)

// Fixture is one known company.
type Fixture struct {
	Name               string
	RegistrationNumber string
	Jurisdiction       string
	Status             string
	IncorporationDate  string
	Address            string
	EmployeeCount      int
	Confidence         float64
}

// DefaultFixtures are the development companies.
var DefaultFixtures = []Fixture{
	{
		Name:               "Acme Corporation",
		RegistrationNumber: "12345678",
		Jurisdiction:       "gb",
		Status:             "active",
		IncorporationDate:  "2010-01-01",
		Address:            "123 Business Street, London, UK",
		EmployeeCount:      250,
		Confidence:         100,
	},
	{
		Name:               "Tech Innovators Ltd",
		RegistrationNumber: "87654321",
		Jurisdiction:       "us",
		Status:             "active",
		IncorporationDate:  "2015-06-15",
		Address:            "456 Innovation Drive, San Francisco, CA, USA",
		EmployeeCount:      40,
		Confidence:         75,
	},
}

type Adapter struct {
	name     string
	fixtures []Fixture
	now      func() time.Time
}

// New serves fixtures under the given source name.
func New(name string, fixtures []Fixture) *Adapter {
	return &Adapter{name: name, fixtures: fixtures, now: time.Now}
}

func (a *Adapter) Name() string {
	return a.name
}

// Query matches on registration number, or on the fixture name containing the
// subject name (case-insensitive).
func (a *Adapter) Query(ctx context.Context, subject models.Subject) (*models.SourceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := strings.ToLower(subject.Name)
	for _, f := range a.fixtures {
		byNumber := subject.RegistrationNumber != "" && f.RegistrationNumber == subject.RegistrationNumber
		byName := want != "" && strings.Contains(strings.ToLower(f.Name), want)
		if !byNumber && !byName {
			continue
		}
		return &models.SourceResult{
			Source:        a.name,
			Matched:       true,
			CompanyStatus: f.Status,
			FoundingDate:  f.IncorporationDate,
			EmployeeCount: f.EmployeeCount,
			Details: map[string]string{
				"name":           f.Name,
				"company_number": f.RegistrationNumber,
				"jurisdiction":   f.Jurisdiction,
				"address":        f.Address,
				"mode":           "fixture",
			},
			RawConfidence: f.Confidence,
			CheckedAt:     a.now().UTC(),
		}, nil
	}
	return &models.SourceResult{Source: a.name, CheckedAt: a.now().UTC()}, nil
}
