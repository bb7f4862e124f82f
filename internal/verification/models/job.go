package models

import (
	"maps"
	"slices"
	"time"
)

// JobState is the async lifecycle position of a verification job.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobCompleted JobState = "COMPLETED"
	JobFailed    JobState = "FAILED"
)

// JobKind selects what a job verifies.
type JobKind string

const (
	JobKindCompany JobKind = "company"
	JobKindPosting JobKind = "posting"
)

// JobRequest is what was submitted; it is retained so a failed job can be retried.
type JobRequest struct {
	Kind    JobKind     `json:"kind"`
	Subject *Subject    `json:"subject,omitempty"`
	Posting *JobPosting `json:"posting,omitempty"`
}

// JobRecord tracks one submitted verification from PENDING to a terminal state.
type JobRecord struct {
	ID          string     `json:"jobId"`
	State       JobState   `json:"state"`
	Request     JobRequest `json:"request"`
	Result      *Outcome   `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	SubmittedAt time.Time  `json:"submittedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Clone returns a copy of r that shares no memory with it.
func (r *JobRecord) Clone() *JobRecord {
	out := *r
	if r.Request.Subject != nil {
		subject := *r.Request.Subject
		out.Request.Subject = &subject
	}
	if p := r.Request.Posting; p != nil {
		posting := *p
		posting.Requirements = slices.Clone(p.Requirements)
		if p.Salary != nil {
			salary := *p.Salary
			posting.Salary = &salary
		}
		out.Request.Posting = &posting
	}
	if r.Result != nil {
		result := *r.Result
		result.Flags = slices.Clone(r.Result.Flags)
		if v := r.Result.Verification; v != nil {
			verification := *v
			verification.Flags = slices.Clone(v.Flags)
			verification.Sources = slices.Clone(v.Sources)
			for i := range verification.Sources {
				verification.Sources[i].Details = maps.Clone(v.Sources[i].Details)
			}
			if v.Failure != nil {
				failure := *v.Failure
				verification.Failure = &failure
			}
			result.Verification = &verification
		}
		out.Result = &result
	}
	return &out
}
