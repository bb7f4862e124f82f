package orchestrator

import (
	"context"
	"unicode/utf8"

	"trustos/internal/verification/models"
)

// MinDescriptionLength is the shortest description that is not flagged.
const MinDescriptionLength = 50

// Analyzer inspects a posting's content and returns flag types. Flags are
// reported and counted; they never change the trust score.
type Analyzer interface {
	Analyze(ctx context.Context, posting models.JobPosting) []string
}

// RuleAnalyzer applies fixed content rules.
type RuleAnalyzer struct{}

func (RuleAnalyzer) Analyze(_ context.Context, p models.JobPosting) []string {
	var flags []string
	if utf8.RuneCountInString(p.Description) < MinDescriptionLength {
		flags = append(flags, models.FlagInsufficientDescription)
	}
	if p.Salary == nil || (p.Salary.Min == 0 && p.Salary.Max == 0) {
		flags = append(flags, models.FlagMissingSalaryRange)
	}
	return flags
}
