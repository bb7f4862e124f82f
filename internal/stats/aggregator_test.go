package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustos/internal/cache"
	"trustos/internal/verification/models"
)

// =============================================================================
// Aggregator Test Suite
// =============================================================================
// Justification for unit tests: the running-average invariant and the derived
// ratios are arithmetic contracts that must hold exactly.

type AggregatorSuite struct {
	suite.Suite
	now   time.Time
	store *cache.MemoryStore
	agg   *Aggregator
	ctx   context.Context
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) SetupTest() {
	s.now = time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)
	s.store = cache.NewMemoryStore()
	var err error
	s.agg, err = New(s.store, WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func (s *AggregatorSuite) TestRequiresStore() {
	_, err := New(nil)
	s.Error(err)
}

func (s *AggregatorSuite) TestEmptyStats() {
	st, err := s.agg.Stats(s.ctx)
	s.Require().NoError(err)
	s.Zero(st.TotalVerifications)
	s.Empty(st.FlagCounts)

	d, err := s.agg.DetailedStats(s.ctx)
	s.Require().NoError(err)
	s.Zero(d.VerificationRate)
	s.Empty(d.FlagDistribution)
}

func (s *AggregatorSuite) TestRunningAverage() {
	for _, c := range []float64{100, 0, 50} {
		s.Require().NoError(s.agg.Record(s.ctx, models.StatusPending, c, nil))
	}
	st, err := s.agg.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(3), st.TotalVerifications)
	s.Equal(50.0, st.AverageConfidence)
}

func (s *AggregatorSuite) TestCountersAndFlags() {
	s.Require().NoError(s.agg.Record(s.ctx, models.StatusVerified, 90, nil))
	s.Require().NoError(s.agg.Record(s.ctx, models.StatusPending, 40, []string{models.FlagMissingSalaryRange}))
	s.Require().NoError(s.agg.Record(s.ctx, models.StatusPending, 20, []string{
		models.FlagMissingSalaryRange, models.FlagInsufficientDescription,
	}))
	s.Require().NoError(s.agg.Record(s.ctx, models.StatusFailed, 0, []string{models.FlagLookupFailed}))

	st, err := s.agg.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(4), st.TotalVerifications)
	s.Equal(int64(1), st.VerifiedCount)
	s.Equal(int64(3), st.FlaggedCount)
	s.Equal([]FlagCount{
		{Type: models.FlagMissingSalaryRange, Count: 2},
		{Type: models.FlagInsufficientDescription, Count: 1},
		{Type: models.FlagLookupFailed, Count: 1},
	}, st.FlagCounts)
	s.True(s.now.Equal(st.LastUpdated))

	d, err := s.agg.DetailedStats(s.ctx)
	s.Require().NoError(err)
	s.InDelta(0.25, d.VerificationRate, 1e-12)
	s.InDelta(0.75, d.FlagRate, 1e-12)
	s.InDelta(0.5, d.FlagDistribution[models.FlagMissingSalaryRange], 1e-12)
	s.InDelta(0.25, d.FlagDistribution[models.FlagLookupFailed], 1e-12)
	s.InDelta(4, d.AverageVerificationsPerDay, 0)
}

func (s *AggregatorSuite) TestAverageVerificationsPerDay() {
	for range 10 {
		s.Require().NoError(s.agg.Record(s.ctx, models.StatusPending, 10, nil))
	}
	s.now = s.now.Add(5 * 24 * time.Hour)

	d, err := s.agg.DetailedStats(s.ctx)
	s.Require().NoError(err)
	s.InDelta(2, d.AverageVerificationsPerDay, 1e-9)
}

func (s *AggregatorSuite) TestSurvivesReconstruction() {
	s.Require().NoError(s.agg.Record(s.ctx, models.StatusVerified, 80, []string{"X"}))

	again, err := New(s.store)
	s.Require().NoError(err)
	st, err := again.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), st.TotalVerifications)
	s.Equal(80.0, st.AverageConfidence)

	_, err = s.store.Get(s.ctx, DefaultKey)
	s.NoError(err, "stats are persisted under the default key")
}

func (s *AggregatorSuite) TestPartitionKeyAndReset() {
	other, err := New(s.store, WithKey("verification:stats:tenant-b"))
	s.Require().NoError(err)
	s.Require().NoError(other.Record(s.ctx, models.StatusVerified, 100, nil))

	st, err := s.agg.Stats(s.ctx)
	s.Require().NoError(err)
	s.Zero(st.TotalVerifications)

	s.Require().NoError(other.Reset(s.ctx))
	st, err = other.Stats(s.ctx)
	s.Require().NoError(err)
	s.Zero(st.TotalVerifications)
}

func (s *AggregatorSuite) TestMergeFoldsFallbackUpdates() {
	s.Require().NoError(s.agg.Record(s.ctx, models.StatusVerified, 90, []string{models.FlagMissingSalaryRange}))
	s.Require().NoError(s.agg.Record(s.ctx, models.StatusPending, 30, nil))

	fallback := cache.NewMemoryStore()
	outage, err := New(fallback, WithClock(func() time.Time { return s.now.Add(time.Hour) }))
	s.Require().NoError(err)
	s.Require().NoError(outage.Record(s.ctx, models.StatusVerified, 60, []string{models.FlagMissingSalaryRange, models.FlagLookupFailed}))

	s.Require().NoError(s.agg.Merge(s.ctx, fallback))

	st, err := s.agg.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(3), st.TotalVerifications)
	s.Equal(int64(2), st.VerifiedCount)
	s.Equal(int64(2), st.FlaggedCount)
	s.InDelta(60, st.AverageConfidence, 1e-9)
	s.Equal([]FlagCount{
		{Type: models.FlagMissingSalaryRange, Count: 2},
		{Type: models.FlagLookupFailed, Count: 1},
	}, st.FlagCounts)
	s.Equal(s.now.Add(time.Hour), st.LastUpdated)

	_, err = fallback.Get(s.ctx, DefaultKey)
	s.True(cache.IsMiss(err), "merged updates are removed from the fallback")

	s.Require().NoError(s.agg.Merge(s.ctx, fallback))
	st, err = s.agg.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(3), st.TotalVerifications, "a second merge adds nothing")
}

func (s *AggregatorSuite) TestConcurrentRecordsAreSerialized() {
	var wg sync.WaitGroup
	for i := range 200 {
		wg.Go(func() {
			s.NoError(s.agg.Record(s.ctx, models.StatusPending, float64(i%2)*100, nil))
		})
	}
	wg.Wait()

	st, err := s.agg.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(200), st.TotalVerifications)
	s.InDelta(50, st.AverageConfidence, 1e-9)
}
