package jobs

import (
	"context"
	"time"

	"trustos/internal/verification/models"
)

// Store persists job records.
//
// Error Contract:
// - Get and Update return sentinel.ErrNotFound when the job does not exist
// - Update returns whatever error fn returns, leaving the record unchanged
// - Records are copied in and out; callers never share a record with the store
type Store interface {
	Create(ctx context.Context, rec *models.JobRecord) error
	Get(ctx context.Context, id string) (*models.JobRecord, error)
	// Update applies fn to the stored record atomically.
	Update(ctx context.Context, id string, fn func(rec *models.JobRecord) error) (*models.JobRecord, error)
	// DeleteSubmittedBefore removes records submitted before cutoff and
	// returns how many were removed.
	DeleteSubmittedBefore(ctx context.Context, cutoff time.Time) (int, error)
}
