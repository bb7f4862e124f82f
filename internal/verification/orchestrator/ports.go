package orchestrator

import (
	"context"
	"time"

	"trustos/internal/verification/models"
)

// Limiter admits verification calls per subject.
type Limiter interface {
	CheckLimit(ctx context.Context, key string, max int, window time.Duration) bool
}

// DuplicateChecker compares a posting against recent submissions and
// remembers it.
type DuplicateChecker interface {
	Check(posting models.JobPosting) models.DuplicateCheckResult
}

// StatsRecorder folds one fresh outcome into the running statistics.
type StatsRecorder interface {
	Record(ctx context.Context, status models.Status, confidence float64, flags []string) error
}

// HistoryRecorder keeps a durable log of fresh outcomes.
type HistoryRecorder interface {
	Record(ctx context.Context, subject models.Subject, result *models.VerificationResult) error
}

// EventPublisher announces fresh outcomes to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, subject models.Subject, result *models.VerificationResult) error
}
