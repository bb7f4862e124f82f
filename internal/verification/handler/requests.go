package handler

import (
	"trustos/internal/verification/models"
	dErrors "trustos/pkg/domain-errors"
)

// VerifyCompanyRequest is the body of a synchronous company verification.
type VerifyCompanyRequest struct {
	models.Subject
}

func (r *VerifyCompanyRequest) Validate() error {
	r.Normalize()
	return r.Subject.Validate()
}

// BulkSubmitRequest carries up to the batch limit of job requests. Items are
// validated individually by the job service.
type BulkSubmitRequest struct {
	Items []models.JobRequest `json:"items"`
}

func (r *BulkSubmitRequest) Validate() error {
	if len(r.Items) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "items must not be empty")
	}
	return nil
}

// BulkStatusRequest lists job ids to poll.
type BulkStatusRequest struct {
	JobIDs []string `json:"jobIds"`
}

func (r *BulkStatusRequest) Validate() error {
	if len(r.JobIDs) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "jobIds must not be empty")
	}
	return nil
}

// DuplicateCheckRequest is a posting checked against recent submissions.
type DuplicateCheckRequest struct {
	models.JobPosting
}

func (r *DuplicateCheckRequest) Validate() error {
	r.Normalize()
	return r.JobPosting.Validate()
}
