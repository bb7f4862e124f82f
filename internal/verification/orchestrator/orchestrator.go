// Package orchestrator runs one company verification: cache check, tiered
// source fan-out, composite scoring, status assignment and write-through.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"trustos/internal/cache"
	"trustos/internal/verification/metrics"
	"trustos/internal/verification/models"
	"trustos/internal/verification/sources"
	dErrors "trustos/pkg/domain-errors"
)

const maxScore = 100

// Config holds scoring thresholds and limits.
type Config struct {
	CacheTTL          time.Duration
	RateLimitMax      int
	RateLimitWindow   time.Duration
	SecondaryGate     float64
	VerifiedThreshold float64
	SourceTimeout     time.Duration
}

// DefaultConfig returns the reference calibration.
func DefaultConfig() Config {
	return Config{
		CacheTTL:          24 * time.Hour,
		RateLimitMax:      100,
		RateLimitWindow:   time.Minute,
		SecondaryGate:     40,
		VerifiedThreshold: 80,
		SourceTimeout:     8 * time.Second,
	}
}

// DuplicateError rejects a posting that matches a recent submission.
type DuplicateError struct {
	Check models.DuplicateCheckResult
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("posting duplicates %d recent posting(s), best similarity %.2f", len(e.Check.Matches), e.Check.Similarity)
}

func (e *DuplicateError) Unwrap() error {
	return dErrors.New(dErrors.CodeDuplicate, e.Error())
}

// Orchestrator is safe for concurrent use. Concurrent misses for the same
// subject may each compute a result; the last cache write wins.
type Orchestrator struct {
	store    cache.Store
	limiter  Limiter
	detector DuplicateChecker
	stats    StatsRecorder
	registry *sources.Registry

	analyzer  Analyzer
	history   HistoryRecorder
	publisher EventPublisher
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Orchestrator)

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		o.cfg = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithAnalyzer replaces the posting content rules.
func WithAnalyzer(a Analyzer) Option {
	return func(o *Orchestrator) {
		o.analyzer = a
	}
}

func WithHistory(h HistoryRecorder) Option {
	return func(o *Orchestrator) {
		o.history = h
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func New(
	store cache.Store,
	limiter Limiter,
	detector DuplicateChecker,
	stats StatsRecorder,
	registry *sources.Registry,
	opts ...Option,
) (*Orchestrator, error) {
	switch {
	case store == nil:
		return nil, errors.New("cache store is required")
	case limiter == nil:
		return nil, errors.New("rate limiter is required")
	case detector == nil:
		return nil, errors.New("duplicate detector is required")
	case stats == nil:
		return nil, errors.New("stats recorder is required")
	case registry == nil || registry.Len() == 0:
		return nil, errors.New("at least one source adapter is required")
	}

	o := &Orchestrator{
		store:    store,
		limiter:  limiter,
		detector: detector,
		stats:    stats,
		registry: registry,
		analyzer: RuleAnalyzer{},
		cfg:      DefaultConfig(),
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer("trustos/verification"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Verify returns the verification for subject, from cache when a live entry
// exists. Validation and rate-limit errors are returned; source failures are
// folded into the result.
func (o *Orchestrator) Verify(ctx context.Context, subject models.Subject) (*models.VerificationResult, error) {
	subject.Normalize()
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	ctx, span := o.startSpan(ctx, subject)
	defer span.End()

	if err := o.admit(ctx, span, subject); err != nil {
		return nil, err
	}
	return o.resolve(ctx, span, subject, nil), nil
}

// VerifyPosting verifies the posting's company. The posting is admitted by the
// company's rate limit before it is compared against recent postings, so a
// throttled posting is not remembered and can be resubmitted later.
func (o *Orchestrator) VerifyPosting(ctx context.Context, posting models.JobPosting) (*models.Outcome, error) {
	posting.Normalize()
	if err := posting.Validate(); err != nil {
		return nil, err
	}
	if posting.ID == "" {
		posting.ID = uuid.NewString()
	}
	subject := posting.Subject()
	subject.Normalize()
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	ctx, span := o.startSpan(ctx, subject)
	defer span.End()
	span.SetAttributes(attribute.String("posting.id", posting.ID))

	if err := o.admit(ctx, span, subject); err != nil {
		return nil, err
	}

	if dup := o.detector.Check(posting); dup.IsDuplicate {
		o.metrics.IncrementDuplicate()
		span.SetStatus(codes.Error, "duplicate posting")
		o.logger.InfoContext(ctx, "posting rejected as duplicate",
			"posting_id", posting.ID,
			"similarity", dup.Similarity,
		)
		return nil, &DuplicateError{Check: dup}
	}

	flags := o.analyzer.Analyze(ctx, posting)
	res := o.resolve(ctx, span, subject, flags)
	return &models.Outcome{PostingID: posting.ID, Verification: res, Flags: flags}, nil
}

// CheckDuplicate runs the duplicate check alone. The posting is remembered.
func (o *Orchestrator) CheckDuplicate(ctx context.Context, posting models.JobPosting) (models.DuplicateCheckResult, error) {
	posting.Normalize()
	if err := posting.Validate(); err != nil {
		return models.DuplicateCheckResult{}, err
	}
	res := o.detector.Check(posting)
	if res.IsDuplicate {
		o.metrics.IncrementDuplicate()
	}
	return res, nil
}

func (o *Orchestrator) startSpan(ctx context.Context, subject models.Subject) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "verification.Verify",
		trace.WithAttributes(attribute.String("subject.identity", subject.Identity())),
	)
}

// admit consumes one slot of the subject's rate limit.
func (o *Orchestrator) admit(ctx context.Context, span trace.Span, subject models.Subject) error {
	if o.limiter.CheckLimit(ctx, "verify:"+subject.Identity(), o.cfg.RateLimitMax, o.cfg.RateLimitWindow) {
		return nil
	}
	o.metrics.IncrementRateLimited()
	span.SetStatus(codes.Error, "rate limited")
	return dErrors.New(dErrors.CodeRateLimited, "too many verification requests for this company, retry later")
}

// resolve serves the cached result or computes and persists a fresh one.
// postingFlags are counted into statistics with a fresh outcome but are not
// part of the cached company result.
func (o *Orchestrator) resolve(ctx context.Context, span trace.Span, subject models.Subject, postingFlags []string) *models.VerificationResult {
	key := subject.CacheKey()
	if res, ok := o.cached(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return res
	}

	start := o.now()
	res := o.compute(ctx, subject, key)
	o.metrics.ObserveVerifyLatency(o.now().Sub(start))
	o.metrics.IncrementOutcome(string(res.Status))
	span.SetAttributes(
		attribute.Bool("cache.hit", false),
		attribute.String("verification.status", string(res.Status)),
		attribute.Float64("verification.score", res.TrustScore),
	)

	o.persist(ctx, subject, res, postingFlags)
	return res
}

// cached treats any backend error as a miss.
func (o *Orchestrator) cached(ctx context.Context, key string) (*models.VerificationResult, bool) {
	res, err := cache.GetJSON[models.VerificationResult](ctx, o.store, key)
	switch {
	case err == nil:
		o.metrics.IncrementCacheLookup("hit")
		return res, true
	case cache.IsMiss(err):
		o.metrics.IncrementCacheLookup("miss")
	default:
		o.metrics.IncrementCacheLookup("error")
		o.logger.WarnContext(ctx, "verification cache unavailable, computing fresh",
			"cache_key", key,
			"error", err,
		)
	}
	return nil, false
}

// tierOutcome is what one tier of sources produced.
type tierOutcome struct {
	results []models.SourceResult
	score   float64
	queried int
	failed  int
}

func (o *Orchestrator) compute(ctx context.Context, subject models.Subject, key string) *models.VerificationResult {
	primary := o.query(ctx, o.registry.Tier(models.TierPrimary), subject)

	results := primary.results
	score := primary.score
	queried, failed := primary.queried, primary.failed

	if primary.score >= o.cfg.SecondaryGate {
		secondary := o.query(ctx, o.registry.Tier(models.TierSecondary), subject)
		results = append(results, secondary.results...)
		score += secondary.score
		queried += secondary.queried
		failed += secondary.failed
	}

	res := &models.VerificationResult{
		Sources:    results,
		ComputedAt: o.now().UTC(),
		CacheKey:   key,
	}
	if res.Sources == nil {
		res.Sources = []models.SourceResult{}
	}
	if failed > 0 {
		res.Flags = append(res.Flags, models.FlagSourceUnavailable)
	}

	switch {
	case queried > 0 && failed == queried:
		res.Status = models.StatusFailed
		res.Failure = &models.Failure{
			Code:    models.FailureAllSourcesFailed,
			Message: fmt.Sprintf("all %d queried sources failed", queried),
		}
	case !anyMatched(results):
		res.Status = models.StatusFailed
		res.Failure = &models.Failure{
			Code:    models.FailureNotFound,
			Message: "company not found in any source",
		}
	default:
		res.TrustScore = min(score, maxScore)
		res.Status = models.StatusPending
		if res.TrustScore >= o.cfg.VerifiedThreshold {
			res.Status = models.StatusVerified
		}
	}
	if res.Status == models.StatusFailed {
		res.Flags = append(res.Flags, models.FlagLookupFailed)
	}
	return res
}

// query fans out to every entry concurrently. A failed or timed-out adapter
// is counted and left out of the results; it never aborts the others.
// Results keep registration order.
func (o *Orchestrator) query(ctx context.Context, entries []sources.Entry, subject models.Subject) tierOutcome {
	slots := make([]*models.SourceResult, len(entries))

	var g errgroup.Group
	for i, e := range entries {
		g.Go(func() error {
			slots[i] = o.queryOne(ctx, e, subject)
			return nil
		})
	}
	_ = g.Wait()

	out := tierOutcome{queried: len(entries)}
	for _, r := range slots {
		if r == nil {
			out.failed++
			continue
		}
		out.results = append(out.results, *r)
		out.score += r.Contribution
	}
	return out
}

func (o *Orchestrator) queryOne(ctx context.Context, e sources.Entry, subject models.Subject) *models.SourceResult {
	name := e.Adapter.Name()
	ctx, span := o.tracer.Start(ctx, "verification.source",
		trace.WithAttributes(
			attribute.String("source", name),
			attribute.String("tier", string(e.Tier)),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.SourceTimeout)
	defer cancel()

	start := o.now()
	res, err := e.Adapter.Query(ctx, subject)
	o.metrics.ObserveSourceLatency(name, o.now().Sub(start))

	if err == nil && res == nil {
		err = sources.NewProviderError(sources.ErrorContractMismatch, name, "adapter returned no result", nil)
	}
	if err != nil {
		category := sources.GetCategory(err)
		if errors.Is(err, context.DeadlineExceeded) {
			category = sources.ErrorTimeout
		}
		o.metrics.IncrementSourceFailure(name, string(category))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(category))
		o.logger.WarnContext(ctx, "source query failed",
			"source", name,
			"category", category,
			"error", err,
		)
		return nil
	}

	r := *res
	r.Source = name
	r.Tier = e.Tier
	if !r.Matched {
		r.RawConfidence = 0
	}
	r.Contribution = e.Weight.Contribution(&r)
	return &r
}

func anyMatched(results []models.SourceResult) bool {
	for _, r := range results {
		if r.Matched {
			return true
		}
	}
	return false
}

// persist is best effort: a failed sink is logged and counted, the result
// still stands. Failed outcomes are not cached so the next call retries the
// sources.
func (o *Orchestrator) persist(ctx context.Context, subject models.Subject, res *models.VerificationResult, postingFlags []string) {
	ctx = context.WithoutCancel(ctx)

	if res.Status != models.StatusFailed {
		if err := cache.SetJSON(ctx, o.store, res.CacheKey, res, o.cfg.CacheTTL); err != nil {
			o.sinkFailed(ctx, "cache", res.CacheKey, err)
		}
	}

	flags := append(append([]string(nil), res.Flags...), postingFlags...)
	if err := o.stats.Record(ctx, res.Status, res.TrustScore, flags); err != nil {
		o.sinkFailed(ctx, "stats", res.CacheKey, err)
	}

	if o.history != nil {
		if err := o.history.Record(ctx, subject, res); err != nil {
			o.sinkFailed(ctx, "history", res.CacheKey, err)
		}
	}
	if o.publisher != nil {
		if err := o.publisher.Publish(ctx, subject, res); err != nil {
			o.sinkFailed(ctx, "events", res.CacheKey, err)
		}
	}
}

func (o *Orchestrator) sinkFailed(ctx context.Context, sink, key string, err error) {
	o.metrics.IncrementPersistFailure(sink)
	o.logger.WarnContext(ctx, "failed to persist verification",
		"sink", sink,
		"cache_key", key,
		"error", err,
	)
}
