package models

import (
	"strings"
	"time"

	dErrors "trustos/pkg/domain-errors"
	pstrings "trustos/pkg/platform/strings"
)

// Company is the employer named on a job posting.
type Company struct {
	Name               string `json:"name"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	Website            string `json:"website,omitempty"`
	Industry           string `json:"industry,omitempty"`
}

type SalaryRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency,omitempty"`
}

// JobPosting is the job-posting flavour of a verification subject.
type JobPosting struct {
	ID           string       `json:"id,omitempty"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Company      Company      `json:"company"`
	Location     string       `json:"location"`
	Requirements []string     `json:"requirements,omitempty"`
	Salary       *SalaryRange `json:"salary,omitempty"`
	PostedDate   time.Time    `json:"postedDate"`
}

// Normalize trims text fields in place.
func (p *JobPosting) Normalize() {
	p.ID = strings.TrimSpace(p.ID)
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.Company.Name = strings.TrimSpace(p.Company.Name)
	p.Company.RegistrationNumber = strings.TrimSpace(p.Company.RegistrationNumber)
	p.Company.Website = strings.TrimSpace(p.Company.Website)
	p.Company.Industry = strings.TrimSpace(p.Company.Industry)
	p.Location = strings.TrimSpace(p.Location)
	p.Requirements = pstrings.DedupeAndTrim(p.Requirements)
}

// Validate checks the fields required before a posting may be queued.
func (p JobPosting) Validate() error {
	switch {
	case p.Title == "":
		return dErrors.New(dErrors.CodeValidation, "title is required")
	case p.Description == "":
		return dErrors.New(dErrors.CodeValidation, "description is required")
	case p.Company.Name == "":
		return dErrors.New(dErrors.CodeValidation, "company name is required")
	case p.Location == "":
		return dErrors.New(dErrors.CodeValidation, "location is required")
	case p.Salary != nil && p.Salary.Max < p.Salary.Min:
		return dErrors.New(dErrors.CodeValidation, "salary max must not be below min")
	}
	return nil
}

// Subject derives the company subject verified for this posting.
func (p JobPosting) Subject() Subject {
	return Subject{
		Name:               p.Company.Name,
		RegistrationNumber: p.Company.RegistrationNumber,
		Location:           p.Location,
		Industry:           p.Company.Industry,
		Website:            p.Company.Website,
	}
}

// DuplicateMatch is one stored posting that resembles the candidate.
type DuplicateMatch struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Company    string    `json:"company"`
	PostedDate time.Time `json:"postedDate"`
	Similarity float64   `json:"similarity"`
}

// DuplicateCheckResult reports matches at or above the threshold, best first.
type DuplicateCheckResult struct {
	IsDuplicate bool             `json:"isDuplicate"`
	Similarity  float64          `json:"similarity"`
	Matches     []DuplicateMatch `json:"matches"`
}

// Outcome is what a job produces: the company verification plus, for
// postings, the posting id and posting-level analysis flags.
type Outcome struct {
	PostingID    string              `json:"postingId,omitempty"`
	Verification *VerificationResult `json:"verification"`
	Flags        []string            `json:"flags,omitempty"`
}
