package handler

import (
	"time"

	"trustos/internal/verification/jobs"
	"trustos/internal/verification/models"
)

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	JobID       string          `json:"jobId"`
	State       models.JobState `json:"state"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

type BulkSubmitResponse struct {
	Accepted int              `json:"accepted"`
	Rejected int              `json:"rejected"`
	Items    []jobs.BatchItem `json:"items"`
}

type BulkStatusResponse struct {
	Items []jobs.StatusItem `json:"items"`
}

// BadgeResponse is the public trust badge of a completed job.
type BadgeResponse struct {
	JobID      string        `json:"jobId"`
	Company    string        `json:"company"`
	Status     models.Status `json:"status"`
	TrustScore float64       `json:"trustScore"`
	VerifiedAt time.Time     `json:"verifiedAt"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
