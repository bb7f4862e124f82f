// Package models holds the verification engine's data types. Every type here
// round-trips through JSON without losing fields, since results and job
// records are persisted through the cache.
package models

import (
	"strings"
	"time"

	dErrors "trustos/pkg/domain-errors"
	pstrings "trustos/pkg/platform/strings"
)

// Status is the terminal outcome of a verification.
type Status string

const (
	StatusVerified Status = "verified"
	StatusPending  Status = "pending"
	StatusFailed   Status = "failed"
)

// Tier orders sources: secondary sources only run once primaries clear the gate.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
)

// Flag types recorded into statistics.
const (
	FlagSourceUnavailable       = "SOURCE_UNAVAILABLE"
	FlagLookupFailed            = "LOOKUP_FAILED"
	FlagInsufficientDescription = "INSUFFICIENT_DESCRIPTION"
	FlagMissingSalaryRange      = "MISSING_SALARY_RANGE"
	FlagDuplicatePosting        = "DUPLICATE_POSTING"
)

// Failure codes carried on Failed results.
const (
	FailureAllSourcesFailed = "all_sources_failed"
	FailureNotFound         = "not_found"
)

// Subject identifies the company being verified. It is treated as immutable
// once submitted.
type Subject struct {
	Name               string `json:"name"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	Location           string `json:"location,omitempty"`
	Industry           string `json:"industry,omitempty"`
	Website            string `json:"website,omitempty"`
}

// Normalize trims every field in place.
func (s *Subject) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.RegistrationNumber = strings.TrimSpace(s.RegistrationNumber)
	s.Location = strings.TrimSpace(s.Location)
	s.Industry = strings.TrimSpace(s.Industry)
	s.Website = strings.TrimSpace(s.Website)
}

// Validate checks required fields. Call Normalize first.
func (s Subject) Validate() error {
	if s.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "company name is required")
	}
	if len(s.Name) > 256 {
		return dErrors.New(dErrors.CodeValidation, "company name must be at most 256 characters")
	}
	if len(s.RegistrationNumber) > 64 {
		return dErrors.New(dErrors.CodeValidation, "registration number must be at most 64 characters")
	}
	return nil
}

// Identity is the stable identifier used for rate limiting and caching:
// the registration number when present, else the normalized name.
func (s Subject) Identity() string {
	if s.RegistrationNumber != "" {
		return strings.ToLower(s.RegistrationNumber)
	}
	return pstrings.NormalizeText(s.Name)
}

// CacheKey is company:<identity>:<location|unknown>.
func (s Subject) CacheKey() string {
	loc := pstrings.NormalizeText(s.Location)
	if loc == "" {
		loc = "unknown"
	}
	return "company:" + s.Identity() + ":" + loc
}

// SourceResult is the output of one source query. It is never mutated after
// the query that produced it returns.
type SourceResult struct {
	Source        string            `json:"source"`
	Tier          Tier              `json:"tier"`
	Matched       bool              `json:"matched"`
	CompanyStatus string            `json:"companyStatus,omitempty"`
	FoundingDate  string            `json:"foundingDate,omitempty"`
	EmployeeCount int               `json:"employeeCount,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
	RawConfidence float64           `json:"rawConfidence"`
	Contribution  float64           `json:"contribution"`
	CheckedAt     time.Time         `json:"checkedAt"`
}

// Failure explains a Failed result.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// VerificationResult is immutable once produced and may be shared by cache readers.
type VerificationResult struct {
	TrustScore float64        `json:"trustScore"`
	Status     Status         `json:"status"`
	Sources    []SourceResult `json:"sources"`
	Flags      []string       `json:"flags,omitempty"`
	Failure    *Failure       `json:"failure,omitempty"`
	ComputedAt time.Time      `json:"computedAt"`
	CacheKey   string         `json:"cacheKey"`
}
