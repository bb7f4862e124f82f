// Package stats keeps running verification statistics persisted through the
// cache without expiry.
package stats

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"trustos/internal/cache"
	"trustos/internal/verification/models"
)

// DefaultKey is the cache key of the deployment-wide aggregate.
const DefaultKey = "verification:stats"

// FlagCount is how often a flag type has been recorded.
type FlagCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// Stats is the persisted aggregate.
type Stats struct {
	TotalVerifications int64       `json:"totalVerifications"`
	VerifiedCount      int64       `json:"verifiedCount"`
	FlaggedCount       int64       `json:"flaggedCount"`
	AverageConfidence  float64     `json:"averageConfidence"`
	ConfidenceSum      float64     `json:"confidenceSum"`
	FlagCounts         []FlagCount `json:"flagCounts"`
	LastUpdated        time.Time   `json:"lastUpdated"`
}

// DetailedStats adds derived ratios to Stats.
type DetailedStats struct {
	Stats
	VerificationRate           float64            `json:"verificationRate"`
	FlagRate                   float64            `json:"flagRate"`
	FlagDistribution           map[string]float64 `json:"flagDistribution"`
	AverageVerificationsPerDay float64            `json:"averageVerificationsPerDay"`
}

// Aggregator serializes every read-modify-write of one aggregate key. Within
// a process updates are exact; instances sharing a cache backend may lose
// concurrent updates (last write wins), so cross-instance figures are
// eventually consistent.
//
// Behind a cache.FallbackStore, updates made while the primary is down land
// in the fallback. Merge carries them back once the primary recovers; until
// then reads only see one side.
type Aggregator struct {
	mu     sync.Mutex
	store  cache.Store
	key    string
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Aggregator)

// WithKey partitions statistics under a different cache key.
func WithKey(key string) Option {
	return func(a *Aggregator) {
		if key != "" {
			a.key = key
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func New(store cache.Store, opts ...Option) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("stats store is required")
	}
	a := &Aggregator{
		store:  store,
		key:    DefaultKey,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Record folds one verification outcome into the aggregate.
func (a *Aggregator) Record(ctx context.Context, status models.Status, confidence float64, flags []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.load(ctx)
	if err != nil {
		return err
	}

	s.TotalVerifications++
	if status == models.StatusVerified {
		s.VerifiedCount++
	}
	if len(flags) > 0 {
		s.FlaggedCount++
	}
	s.ConfidenceSum += confidence
	s.AverageConfidence = s.ConfidenceSum / float64(s.TotalVerifications)

	counts := make(map[string]int64, len(s.FlagCounts)+len(flags))
	for _, fc := range s.FlagCounts {
		counts[fc.Type] = fc.Count
	}
	for _, f := range flags {
		counts[f]++
	}
	s.FlagCounts = sortedFlags(counts)
	s.LastUpdated = a.now().UTC()

	if err := cache.SetJSON(ctx, a.store, a.key, s, 0); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

// Stats returns the current aggregate; an empty aggregate if nothing was recorded.
func (a *Aggregator) Stats(ctx context.Context) (*Stats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load(ctx)
}

// DetailedStats derives rates and distribution from the aggregate.
//
// AverageVerificationsPerDay divides the total by the days elapsed since the
// last update, with anything under a day counting as one day. It is a rough
// activity indicator, not a true daily rate.
func (a *Aggregator) DetailedStats(ctx context.Context) (*DetailedStats, error) {
	s, err := a.Stats(ctx)
	if err != nil {
		return nil, err
	}
	d := &DetailedStats{Stats: *s, FlagDistribution: map[string]float64{}}
	if s.TotalVerifications > 0 {
		total := float64(s.TotalVerifications)
		d.VerificationRate = float64(s.VerifiedCount) / total
		d.FlagRate = float64(s.FlaggedCount) / total
	}

	var totalFlags int64
	for _, fc := range s.FlagCounts {
		totalFlags += fc.Count
	}
	for _, fc := range s.FlagCounts {
		d.FlagDistribution[fc.Type] = float64(fc.Count) / float64(totalFlags)
	}

	d.AverageVerificationsPerDay = float64(s.TotalVerifications)
	if !s.LastUpdated.IsZero() {
		if days := a.now().Sub(s.LastUpdated).Hours() / 24; days > 1 {
			d.AverageVerificationsPerDay = float64(s.TotalVerifications) / days
		}
	}
	return d, nil
}

// Reset clears the aggregate.
func (a *Aggregator) Reset(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.store.Delete(ctx, a.key); err != nil {
		return fmt.Errorf("reset stats: %w", err)
	}
	a.logger.InfoContext(ctx, "verification statistics reset", "key", a.key)
	return nil
}

// Merge adds the aggregate held in from to this aggregate and removes it from
// from. A missing aggregate in from is a no-op.
func (a *Aggregator) Merge(ctx context.Context, from cache.Store) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delta, err := cache.GetJSON[Stats](ctx, from, a.key)
	if cache.IsMiss(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load stats to merge: %w", err)
	}
	s, err := a.load(ctx)
	if err != nil {
		return err
	}

	s.TotalVerifications += delta.TotalVerifications
	s.VerifiedCount += delta.VerifiedCount
	s.FlaggedCount += delta.FlaggedCount
	s.ConfidenceSum += delta.ConfidenceSum
	if s.TotalVerifications > 0 {
		s.AverageConfidence = s.ConfidenceSum / float64(s.TotalVerifications)
	}

	counts := make(map[string]int64, len(s.FlagCounts)+len(delta.FlagCounts))
	for _, fc := range s.FlagCounts {
		counts[fc.Type] += fc.Count
	}
	for _, fc := range delta.FlagCounts {
		counts[fc.Type] += fc.Count
	}
	s.FlagCounts = sortedFlags(counts)
	if delta.LastUpdated.After(s.LastUpdated) {
		s.LastUpdated = delta.LastUpdated
	}

	if err := cache.SetJSON(ctx, a.store, a.key, s, 0); err != nil {
		return fmt.Errorf("save merged stats: %w", err)
	}
	if err := from.Delete(ctx, a.key); err != nil {
		return fmt.Errorf("clear merged stats: %w", err)
	}
	a.logger.InfoContext(ctx, "verification statistics merged",
		"key", a.key,
		"verifications", delta.TotalVerifications,
	)
	return nil
}

func (a *Aggregator) load(ctx context.Context) (*Stats, error) {
	s, err := cache.GetJSON[Stats](ctx, a.store, a.key)
	if cache.IsMiss(err) {
		return &Stats{FlagCounts: []FlagCount{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	if s.FlagCounts == nil {
		s.FlagCounts = []FlagCount{}
	}
	return s, nil
}

// sortedFlags orders by count descending, then type for a stable output.
func sortedFlags(counts map[string]int64) []FlagCount {
	out := make([]FlagCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, FlagCount{Type: t, Count: c})
	}
	slices.SortFunc(out, func(a, b FlagCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Type, b.Type)
	})
	return out
}
