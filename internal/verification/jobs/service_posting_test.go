package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustos/internal/cache"
	"trustos/internal/duplicate"
	"trustos/internal/ratelimit"
	"trustos/internal/stats"
	"trustos/internal/verification/models"
	"trustos/internal/verification/orchestrator"
	"trustos/internal/verification/sources"
	"trustos/internal/verification/sources/static"
)

// =============================================================================
// Posting Job Retry Suite
// =============================================================================
// Justification for unit tests: a posting job crosses the rate limiter and the
// duplicate detector on every attempt, so the retry path is only meaningful
// against the real orchestrator with a controllable clock.

type PostingRetrySuite struct {
	suite.Suite
	ctx context.Context
	now time.Time
	svc *Service
}

func TestPostingRetrySuite(t *testing.T) {
	suite.Run(t, new(PostingRetrySuite))
}

func (s *PostingRetrySuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	store := cache.NewMemoryStore(cache.WithClock(clock))
	limiter, err := ratelimit.New(store)
	s.Require().NoError(err)
	agg, err := stats.New(store, stats.WithClock(clock))
	s.Require().NoError(err)

	reg := sources.NewRegistry()
	s.Require().NoError(reg.Register(static.New("opencorporates", static.DefaultFixtures), models.TierPrimary, sources.Weight{Points: 40}))
	s.Require().NoError(reg.Register(static.New("companieshouse", static.DefaultFixtures), models.TierPrimary, sources.Weight{Points: 20}))

	cfg := orchestrator.DefaultConfig()
	cfg.RateLimitMax = 1
	orch, err := orchestrator.New(store, limiter, duplicate.New(), agg, reg,
		orchestrator.WithConfig(cfg),
		orchestrator.WithClock(clock),
	)
	s.Require().NoError(err)

	s.svc, err = New(NewInMemoryStore(), orch, WithClock(clock))
	s.Require().NoError(err)
}

func (s *PostingRetrySuite) TestThrottledPostingCompletesOnRetry() {
	company, err := s.svc.Submit(s.ctx, models.JobRequest{Subject: &models.Subject{Name: "Acme Corp", RegistrationNumber: "12345678", Location: "London"}})
	s.Require().NoError(err)
	s.svc.Wait()
	got, err := s.svc.PollStatus(s.ctx, company.ID)
	s.Require().NoError(err)
	s.Require().Equal(models.JobCompleted, got.State)

	rec, err := s.svc.Submit(s.ctx, models.JobRequest{Posting: &models.JobPosting{
		Title:       "Platform Engineer",
		Description: "Run the company registry integrations.",
		Company:     models.Company{Name: "Acme Corp", RegistrationNumber: "12345678"},
		Location:    "London",
	}})
	s.Require().NoError(err)
	postingID := rec.Request.Posting.ID
	s.Require().NotEmpty(postingID)
	s.svc.Wait()

	failed, err := s.svc.PollStatus(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Require().Equal(models.JobFailed, failed.State)
	s.Equal("too many verification requests for this company, retry later", failed.Error)

	s.now = s.now.Add(2 * time.Minute)
	retried, err := s.svc.Retry(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(postingID, retried.Request.Posting.ID)
	s.svc.Wait()

	done, err := s.svc.PollStatus(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.JobCompleted, done.State, "job error: %s", done.Error)
	s.Require().NotNil(done.Result)
	s.Equal(postingID, done.Result.PostingID)
	s.Equal(2, done.Attempts)
}
